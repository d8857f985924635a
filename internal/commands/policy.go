package commands

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cversek/macf/internal/llm"
	"github.com/cversek/macf/internal/manifest"
	"github.com/cversek/macf/internal/output"
	"github.com/cversek/macf/internal/policyindex"
	"github.com/cversek/macf/internal/searchd"
)

// NewPolicyCmd wraps the layered policy manifest (C7 §3.7) and the
// hybrid FTS/vector search index (C7 §4.8) for operator inspection,
// independent of the warm search-service daemon (search-service).
func NewPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect the merged policy manifest and its search index",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newPolicyManifestCmd())
	cmd.AddCommand(newPolicySearchCmd())
	cmd.AddCommand(newPolicyNavigateCmd())
	cmd.AddCommand(newPolicyReadCmd())
	cmd.AddCommand(newPolicyListCmd())
	cmd.AddCommand(newPolicyCATypesCmd())
	cmd.AddCommand(newPolicyRecommendCmd())
	cmd.AddCommand(newPolicyBuildIndexCmd())
	namespaceIndex(cmd)
	return cmd
}

func policyIndexPath(dir string) string {
	return filepath.Join(dir, "policy_index.db")
}

func newPolicyManifestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "manifest",
		Short: "Print the merged framework+project policy manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			return output.PrintSuccess(cc.Manifest)
		},
	}
}

func openPolicyIndex(cc *commandContext) (*policyindex.Index, error) {
	dir, err := cc.Env.ConfigDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	return policyindex.Open(policyIndexPath(dir))
}

func newPolicySearchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search KEYWORDS...",
		Short: "Run a one-shot hybrid FTS/vector search over the policy index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			idx, err := openPolicyIndex(cc)
			if err != nil {
				return cmdErr(err)
			}
			defer idx.Close()

			retriever := searchd.NewPolicyRetriever(idx, cc.Manifest)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			resp, err := retriever.Search(ctx, strings.Join(args, " "), limit)
			if err != nil {
				return cmdErr(err)
			}
			return output.PrintSuccess(resp)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 5, "maximum results to return")
	return cmd
}

func newPolicyNavigateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "navigate NAME",
		Short: "Resolve a policy name to its file path on disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			path, ok := manifest.FindPolicyFile(cc.Manifest, args[0])
			if !ok {
				return cmdErr(fmt.Errorf("policy navigate: %q not found in any policy_dirs entry", args[0]))
			}
			return output.PrintSuccess(map[string]string{"name": args[0], "path": path})
		},
	}
}

func newPolicyReadCmd() *cobra.Command {
	var lineRange string
	var section int
	cmd := &cobra.Command{
		Use:   "read NAME",
		Short: "Print a policy file's contents, optionally sliced by line range or section",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			path, ok := manifest.FindPolicyFile(cc.Manifest, args[0])
			if !ok {
				return cmdErr(fmt.Errorf("policy read: %q not found in any policy_dirs entry", args[0]))
			}
			b, err := os.ReadFile(path)
			if err != nil {
				return cmdErr(err)
			}
			lines := strings.Split(string(b), "\n")

			if section > 0 {
				lines = sectionLines(lines, section)
			} else if lineRange != "" {
				lines, err = sliceLines(lines, lineRange)
				if err != nil {
					return cmdErr(err)
				}
			}
			return output.PrintSuccess(map[string]string{"path": path, "text": strings.Join(lines, "\n")})
		},
	}
	cmd.Flags().StringVar(&lineRange, "lines", "", "inclusive line range A:B, 1-indexed")
	cmd.Flags().IntVar(&section, "section", 0, "the Nth markdown '## ' section (1-indexed)")
	return cmd
}

func sliceLines(lines []string, rangeSpec string) ([]string, error) {
	parts := strings.SplitN(rangeSpec, ":", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid --lines %q, want A:B", rangeSpec)
	}
	a, err1 := strconv.Atoi(parts[0])
	b, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || a < 1 || b < a {
		return nil, fmt.Errorf("invalid --lines %q, want A:B with 1<=A<=B", rangeSpec)
	}
	if a > len(lines) {
		return []string{}, nil
	}
	if b > len(lines) {
		b = len(lines)
	}
	return lines[a-1 : b], nil
}

// sectionLines returns the n'th "## " markdown section (1-indexed),
// including its heading line and everything up to the next "## " or EOF.
func sectionLines(lines []string, n int) []string {
	var starts []int
	for i, l := range lines {
		if strings.HasPrefix(l, "## ") {
			starts = append(starts, i)
		}
	}
	if n > len(starts) {
		return nil
	}
	start := starts[n-1]
	end := len(lines)
	if n < len(starts) {
		end = starts[n]
	}
	return lines[start:end]
}

func newPolicyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every policy file discoverable under policy_dirs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			return output.PrintSuccess(listPolicyFiles(cc.Manifest))
		},
	}
}

func listPolicyFiles(m manifest.Manifest) []string {
	var out []string
	for _, dir := range m.PolicyDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if strings.HasSuffix(e.Name(), ".md") || strings.HasSuffix(e.Name(), ".yaml") {
				out = append(out, strings.TrimSuffix(strings.TrimSuffix(e.Name(), ".md"), ".yaml"))
			}
		}
	}
	sort.Strings(out)
	return out
}

func newPolicyCATypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ca-types",
		Short: "List the consciousness-artifact types the manifest's discovery_index recognizes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			var types []string
			for k := range cc.Manifest.DiscoveryIndex {
				types = append(types, k)
			}
			sort.Strings(types)
			return output.PrintSuccess(types)
		},
	}
}

func newPolicyRecommendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recommend QUESTION...",
		Short: "Recommend policies for a free-form question, preferring task_type_policies matches",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			query := strings.Join(args, " ")

			var direct []string
			ql := strings.ToLower(query)
			for taskType, policies := range cc.Manifest.TaskTypePolicies {
				if strings.Contains(ql, strings.ToLower(taskType)) {
					direct = append(direct, policies...)
				}
			}
			if len(direct) > 0 {
				sort.Strings(direct)
				return output.PrintSuccess(map[string]any{"source": "task_type_policies", "policies": direct})
			}

			idx, err := openPolicyIndex(cc)
			if err != nil {
				return cmdErr(err)
			}
			defer idx.Close()
			retriever := searchd.NewPolicyRetriever(idx, cc.Manifest)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			resp, err := retriever.Search(ctx, query, 5)
			if err != nil {
				return cmdErr(err)
			}
			return output.PrintSuccess(map[string]any{"source": "search_index", "response": resp})
		},
	}
	return cmd
}

// navigationQuestionPrompt asks the external agent CLI for the
// handful of questions a developer would plausibly search for that
// this policy document answers, one per line, no numbering or
// commentary.
func navigationQuestionPrompt(title, body string) string {
	const maxBody = 6000
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	return fmt.Sprintf(
		"Below is a policy document titled %q. List at most 5 short questions "+
			"a developer would search for that this document answers. One "+
			"question per line, no numbering, no extra commentary.\n\n%s",
		title, body)
}

// pseudoEmbed derives a deterministic, fixed-width vector from text via
// FNV hashing. macf has no local embedding model and no pack dependency
// runs one (see DESIGN.md); this stands in for the real thing so the
// questions table's cosine-similarity leg has something to compare
// against, and is good only for exact/near-exact repeat phrasing, not
// semantic similarity.
func pseudoEmbed(text string) []float32 {
	const dims = 32
	vec := make([]float32, dims)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[int(h.Sum32())%dims]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		vec[i] = float32(float64(v) / norm)
	}
	return vec
}

func newPolicyBuildIndexCmd() *cobra.Command {
	var extractQuestions bool
	cmd := &cobra.Command{
		Use:   "build_index",
		Short: "(Re)build the FTS side of the policy search index from policy_dirs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := loadCommandContext(cmd)
			if err != nil {
				return cmdErr(err)
			}
			idx, err := openPolicyIndex(cc)
			if err != nil {
				return cmdErr(err)
			}
			defer idx.Close()
			retriever := searchd.NewPolicyRetriever(idx, cc.Manifest)

			var runner *llm.Runner
			if extractQuestions {
				runner, err = llm.NewRunner(cc.Agent)
				if err != nil {
					return cmdErr(fmt.Errorf("build_index: --questions requested but no CLI available: %w", err))
				}
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			count, questions := 0, 0
			for _, dir := range cc.Manifest.PolicyDirs {
				entries, err := os.ReadDir(dir)
				if err != nil {
					continue
				}
				for _, e := range entries {
					if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
						continue
					}
					path := filepath.Join(dir, e.Name())
					b, err := os.ReadFile(path)
					if err != nil {
						continue
					}
					name := strings.TrimSuffix(e.Name(), ".md")
					title := name
					if lines := strings.SplitN(string(b), "\n", 2); len(lines) > 0 {
						title = strings.TrimPrefix(strings.TrimSpace(lines[0]), "# ")
					}
					if err := idx.IndexDocument(ctx, policyindex.Document{
						Name: name, Path: path, Title: title, Body: string(b),
					}); err != nil {
						return cmdErr(err)
					}
					count++

					if runner == nil {
						continue
					}
					text, err := runner.Extract(ctx, navigationQuestionPrompt(title, string(b)))
					if err != nil {
						continue
					}
					for _, q := range strings.Split(text, "\n") {
						q = strings.TrimSpace(q)
						if q == "" {
							continue
						}
						if err := retriever.IndexPolicyQuestion(ctx, name, q, pseudoEmbed(q)); err == nil {
							questions++
						}
					}
				}
			}
			return output.PrintSuccess(map[string]int{"indexed": count, "questions_indexed": questions})
		},
	}
	cmd.Flags().BoolVar(&extractQuestions, "questions", false, "also extract navigation-guide questions via the external agent CLI (internal/llm)")
	return cmd
}
