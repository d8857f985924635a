package proxy

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// injectionBlock matches one <macf-policy-injection policy="NAME">...</macf-policy-injection>
// block within a single decoded message-content string.
var injectionBlock = regexp.MustCompile(`(?s)<macf-policy-injection policy="([^"]*)">.*?</macf-policy-injection>`)

// RewriteMode selects how repeated injection blocks for the same policy
// across the conversation are handled.
type RewriteMode string

const (
	// ModeDeduplicate keeps only the newest occurrence of each named
	// policy's injection block, replacing earlier repeats with a marker.
	ModeDeduplicate RewriteMode = "deduplicate"
	// ModeCleanupAll replaces every injection block with a marker,
	// unconditionally. Activated when the event log shows a
	// task_completed event since the last forwarded request.
	ModeCleanupAll RewriteMode = "cleanup_all"
)

// RewriteReport is the §4.10 bullet-3 rewrite summary.
type RewriteReport struct {
	ReplacementsMade int
	BytesSaved       int
	PoliciesReplaced []string
}

func (r *RewriteReport) record(bytesSaved int, policy string) {
	r.ReplacementsMade++
	r.BytesSaved += bytesSaved
	for _, p := range r.PoliciesReplaced {
		if p == policy {
			return
		}
	}
	r.PoliciesReplaced = append(r.PoliciesReplaced, policy)
}

// marker renders the self-closing replacement left in place of a
// removed injection block, per §4.10 bullet 3.
func marker(policy, breadcrumb string) string {
	return fmt.Sprintf(`<macf-policy-injection name=%q replaced_at=%q />`, policy, breadcrumb)
}

// textLocation is one decoded string the rewriter can replace blocks
// within: a message's plain string content, or one "text" block inside
// a typed content list.
type textLocation struct {
	text string
	set  func(string)
}

// occurrence is one injectionBlock match tagged with which location (in
// document order) it came from, so "latest wins" can be decided across
// the whole message list rather than independently per location.
type occurrence struct {
	loc        int
	start, end int
	policy     string
}

// selectOccurrences decides which occurrences, out of all of them found
// across every location in document order, mode marks for replacement.
func selectOccurrences(occs []occurrence, mode RewriteMode) map[int]bool {
	sel := map[int]bool{}
	if mode == ModeCleanupAll {
		for i := range occs {
			sel[i] = true
		}
		return sel
	}
	lastByPolicy := map[string]int{}
	for i, o := range occs {
		lastByPolicy[o.policy] = i
	}
	for i, o := range occs {
		if lastByPolicy[o.policy] != i {
			sel[i] = true
		}
	}
	return sel
}

// rewriteLocations replaces the selected occurrences across every
// location with a self-closing marker, positions computed first and
// replacements applied back-to-front within each location so earlier
// offsets stay valid.
func rewriteLocations(locs []textLocation, breadcrumb string, mode RewriteMode) ([]string, RewriteReport) {
	type locMatch struct {
		loc int
		m   []int // start, end, policyStart, policyEnd
	}

	var flat []locMatch
	for li, loc := range locs {
		for _, m := range injectionBlock.FindAllStringSubmatchIndex(loc.text, -1) {
			flat = append(flat, locMatch{li, m})
		}
	}

	occs := make([]occurrence, len(flat))
	for i, fm := range flat {
		occs[i] = occurrence{
			loc:    fm.loc,
			start:  fm.m[0],
			end:    fm.m[1],
			policy: locs[fm.loc].text[fm.m[2]:fm.m[3]],
		}
	}
	selected := selectOccurrences(occs, mode)

	byLoc := map[int][]locMatch{}
	for i, fm := range flat {
		if selected[i] {
			byLoc[fm.loc] = append(byLoc[fm.loc], fm)
		}
	}

	var report RewriteReport
	out := make([]string, len(locs))
	for li, loc := range locs {
		matches := byLoc[li]
		if len(matches) == 0 {
			out[li] = loc.text
			continue
		}
		text := loc.text
		for i := len(matches) - 1; i >= 0; i-- {
			m := matches[i].m
			policy := text[m[2]:m[3]]
			repl := marker(policy, breadcrumb)
			report.record((m[1]-m[0])-len(repl), policy)
			text = text[:m[0]] + repl + text[m[1]:]
		}
		out[li] = text
	}
	return out, report
}

// RewriteInjections rewrites the injection blocks in a single decoded
// content string in isolation. Real requests carry many such strings
// across a message list, where "latest occurrence wins" must be judged
// across all of them together — see RewriteRequestBody.
func RewriteInjections(text, breadcrumb string, mode RewriteMode) (string, RewriteReport) {
	out, report := rewriteLocations([]textLocation{{text: text}}, breadcrumb, mode)
	return out[0], report
}

// RewriteRequestBody decodes body as an Anthropic /v1/messages request,
// rewrites injection blocks found in user-role message content — string
// or list-of-typed-blocks alike — and re-encodes it. Dedup/cleanup
// decisions are made across the whole message list, not per message.
// Bodies that don't decode, or carry no messages, pass through
// unchanged with a zero report.
func RewriteRequestBody(body []byte, breadcrumb string, mode RewriteMode) ([]byte, RewriteReport) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return body, RewriteReport{}
	}
	rawMessages, ok := top["messages"]
	if !ok {
		return body, RewriteReport{}
	}
	var messages []map[string]json.RawMessage
	if err := json.Unmarshal(rawMessages, &messages); err != nil {
		return body, RewriteReport{}
	}

	blockLists := make([][]map[string]json.RawMessage, len(messages))
	var locs []textLocation

	for mi, msg := range messages {
		var role string
		if r, ok := msg["role"]; ok {
			_ = json.Unmarshal(r, &role)
		}
		if role != "user" {
			continue
		}
		contentRaw, ok := msg["content"]
		if !ok {
			continue
		}

		var s string
		if err := json.Unmarshal(contentRaw, &s); err == nil {
			mi := mi
			locs = append(locs, textLocation{text: s, set: func(v string) {
				enc, err := json.Marshal(v)
				if err == nil {
					messages[mi]["content"] = enc
				}
			}})
			continue
		}

		var blocks []map[string]json.RawMessage
		if err := json.Unmarshal(contentRaw, &blocks); err != nil {
			continue
		}
		blockLists[mi] = blocks
		for bi, block := range blocks {
			var btype string
			if t, ok := block["type"]; ok {
				_ = json.Unmarshal(t, &btype)
			}
			if btype != "text" {
				continue
			}
			var text string
			if err := json.Unmarshal(block["text"], &text); err != nil {
				continue
			}
			mi, bi := mi, bi
			locs = append(locs, textLocation{text: text, set: func(v string) {
				enc, err := json.Marshal(v)
				if err == nil {
					blockLists[mi][bi]["text"] = enc
				}
			}})
		}
	}

	if len(locs) == 0 {
		return body, RewriteReport{}
	}

	rewritten, report := rewriteLocations(locs, breadcrumb, mode)
	if report.ReplacementsMade == 0 {
		return body, RewriteReport{}
	}

	for i, loc := range locs {
		loc.set(rewritten[i])
	}
	for mi := range messages {
		if blockLists[mi] == nil {
			continue
		}
		enc, err := json.Marshal(blockLists[mi])
		if err != nil {
			return body, RewriteReport{}
		}
		messages[mi]["content"] = enc
	}

	newMessages, err := json.Marshal(messages)
	if err != nil {
		return body, RewriteReport{}
	}
	top["messages"] = newMessages
	out, err := json.Marshal(top)
	if err != nil {
		return body, RewriteReport{}
	}
	return out, report
}

// IsMainConversationRequest reports whether body looks like a main
// conversation turn rather than a hook sub-call, per §4.10 step 2: the
// presence of a top-level context_management key.
func IsMainConversationRequest(body []byte) bool {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return false
	}
	_, ok := top["context_management"]
	return ok
}

// CountPolicyNames returns the distinct policy names named in a single
// decoded content string's injection blocks.
func CountPolicyNames(text string) []string {
	matches := injectionBlock.FindAllStringSubmatch(text, -1)
	seen := map[string]bool{}
	var out []string
	for _, m := range matches {
		name := m[1]
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// PolicyNamesInRequestBody returns the distinct injection policy names
// named anywhere in body's user-role message content, decoding content
// whether it is a plain string or a list of typed blocks.
func PolicyNamesInRequestBody(body []byte) []string {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil
	}
	rawMessages, ok := top["messages"]
	if !ok {
		return nil
	}
	var messages []map[string]json.RawMessage
	if err := json.Unmarshal(rawMessages, &messages); err != nil {
		return nil
	}

	seen := map[string]bool{}
	var out []string
	add := func(text string) {
		for _, name := range CountPolicyNames(text) {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}

	for _, msg := range messages {
		var role string
		if r, ok := msg["role"]; ok {
			_ = json.Unmarshal(r, &role)
		}
		if role != "user" {
			continue
		}
		contentRaw, ok := msg["content"]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(contentRaw, &s); err == nil {
			add(s)
			continue
		}
		var blocks []map[string]json.RawMessage
		if err := json.Unmarshal(contentRaw, &blocks); err != nil {
			continue
		}
		for _, block := range blocks {
			var btype string
			if t, ok := block["type"]; ok {
				_ = json.Unmarshal(t, &btype)
			}
			if btype != "text" {
				continue
			}
			var text string
			if json.Unmarshal(block["text"], &text) == nil {
				add(text)
			}
		}
	}
	return out
}
