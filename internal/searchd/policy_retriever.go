package searchd

import (
	"context"
	"strings"

	"github.com/cversek/macf/internal/manifest"
	"github.com/cversek/macf/internal/policyindex"
)

// PolicyRetriever is the default "policy" namespace retriever, wrapping
// the C7 hybrid index.
type PolicyRetriever struct {
	Index    *policyindex.Index
	Manifest manifest.Manifest
	Cache    *EmbeddingCache
}

// NewPolicyRetriever builds a PolicyRetriever over an already-open index,
// with an in-process embedding cache (no Redis).
func NewPolicyRetriever(idx *policyindex.Index, m manifest.Manifest) *PolicyRetriever {
	return &PolicyRetriever{Index: idx, Manifest: m, Cache: NewEmbeddingCache("")}
}

// NewPolicyRetrieverWithCache is NewPolicyRetriever but backed by a
// shared cache (e.g. one pointed at Redis via MACF_REDIS_ADDR), so a
// warm restart doesn't recompute embeddings the previous process
// already cached for unchanged policies.
func NewPolicyRetrieverWithCache(idx *policyindex.Index, m manifest.Manifest, cache *EmbeddingCache) *PolicyRetriever {
	return &PolicyRetriever{Index: idx, Manifest: m, Cache: cache}
}

// IndexPolicyQuestion adds one navigation-guide question for policyName,
// reusing embedding straight from the caller unless an identical
// question was cached from a prior run.
func (p *PolicyRetriever) IndexPolicyQuestion(ctx context.Context, policyName, question string, embedding []float32) error {
	cacheKey := policyName + ":" + question
	if cached, ok := p.Cache.Get(ctx, cacheKey); ok {
		embedding = cached
	} else {
		p.Cache.Set(ctx, cacheKey, embedding)
	}
	return p.Index.IndexQuestion(ctx, policyName, question, embedding)
}

func (p *PolicyRetriever) Namespace() string { return "policy" }

// Warmup performs one throwaway query to JIT-compile codepaths, per §4.9.
func (p *PolicyRetriever) Warmup(ctx context.Context) error {
	_, err := p.Index.Search(ctx, "warmup query string", nil, nil)
	return err
}

func (p *PolicyRetriever) Search(ctx context.Context, query string, limit int) (Response, error) {
	candidates := discoveryCandidates(p.Manifest, query)
	fused, err := p.Index.Search(ctx, query, nil, candidates)
	if err != nil {
		return Response{Error: err.Error()}, err
	}
	if len(fused) == 0 {
		return Response{Formatted: ""}, nil
	}

	var sb strings.Builder
	var explanations []string
	for i, f := range fused {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(f.Name)
		explanations = append(explanations, f.Name+": "+f.Confidence)
	}
	return Response{Formatted: sb.String(), Explanations: explanations}, nil
}

func (p *PolicyRetriever) Shutdown(ctx context.Context) error {
	return p.Index.Close()
}

// discoveryCandidates matches query keywords against the manifest's
// discovery_index.
func discoveryCandidates(m manifest.Manifest, query string) []string {
	q := strings.ToLower(query)
	var out []string
	seen := map[string]bool{}
	for keyword, policies := range m.DiscoveryIndex {
		if strings.Contains(q, strings.ToLower(keyword)) {
			for _, p := range policies {
				if !seen[p] {
					seen[p] = true
					out = append(out, p)
				}
			}
		}
	}
	return out
}
