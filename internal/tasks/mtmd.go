package tasks

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// SplitDescription/JoinDescription exist for compatibility with legacy
// task descriptions that still carry an inline MTMD block (e.g. tasks
// restored from an older archive). New and updated tasks carry Metadata
// as its own typed field on Task rather than embedding it in free text.
//
// metadataOpenTag / metadataCloseTag delimit that legacy embedded block.
const (
	metadataOpenTag  = "<!-- mtmd:begin -->"
	metadataCloseTag = "<!-- mtmd:end -->"
)

// SplitDescription separates free text from an embedded MTMD YAML block,
// if present. It never errors: an absent or malformed block simply
// yields (original text, nil), preserving the raw remainder losslessly
// rather than raising — a strongly typed "Option<Metadata>" in spirit.
func SplitDescription(desc string) (text string, meta *Metadata) {
	start := strings.Index(desc, metadataOpenTag)
	if start < 0 {
		return desc, nil
	}
	end := strings.Index(desc, metadataCloseTag)
	if end < 0 || end < start {
		return desc, nil
	}
	block := desc[start+len(metadataOpenTag) : end]
	var m Metadata
	if err := yaml.Unmarshal([]byte(block), &m); err != nil {
		return desc, nil
	}
	rest := desc[:start] + desc[end+len(metadataCloseTag):]
	return strings.TrimSpace(rest), &m
}

// JoinDescription re-embeds meta into text, producing the same shape
// SplitDescription expects to parse back out — the round-trip the
// design note requires in place of free-text YAML scraping.
func JoinDescription(text string, meta *Metadata) string {
	if meta == nil {
		return text
	}
	b, err := yaml.Marshal(meta)
	if err != nil {
		return text
	}
	var sb strings.Builder
	sb.WriteString(text)
	sb.WriteString("\n\n")
	sb.WriteString(metadataOpenTag)
	sb.WriteString("\n")
	sb.Write(b)
	sb.WriteString(metadataCloseTag)
	return sb.String()
}
