package searchd

import (
	"context"

	"github.com/cenkalti/backoff/v4"
)

// Retriever is the trait/interface every search namespace registers,
// replacing the source system's duck-typed retriever registration per
// the design note calling for a typed interface + registry.
type Retriever interface {
	Namespace() string
	// Warmup loads resources (embedding model, open index). Called once
	// at daemon startup; no timeout — startup cost is accepted.
	Warmup(ctx context.Context) error
	Search(ctx context.Context, query string, limit int) (Response, error)
	Shutdown(ctx context.Context) error
}

// Registry maps namespace name to Retriever.
type Registry struct {
	retrievers map[string]Retriever
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{retrievers: map[string]Retriever{}}
}

// Register adds r under its own namespace name.
func (reg *Registry) Register(r Retriever) {
	reg.retrievers[r.Namespace()] = r
}

// Get returns the retriever for namespace, if registered.
func (reg *Registry) Get(namespace string) (Retriever, bool) {
	r, ok := reg.retrievers[namespace]
	return r, ok
}

// WarmupAll warms every registered retriever, in registration order is
// not guaranteed (map iteration) — acceptable since warmup has no
// cross-retriever dependency per §4.9. Each retriever's Warmup gets a
// few exponential-backoff retries: at daemon startup the policy index
// file may still be mid-migration under another process's lock.
func (reg *Registry) WarmupAll(ctx context.Context) error {
	for _, r := range reg.retrievers {
		bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
		if err := backoff.Retry(func() error { return r.Warmup(ctx) }, bo); err != nil {
			return err
		}
	}
	return nil
}

// ShutdownAll releases every registered retriever's resources.
func (reg *Registry) ShutdownAll(ctx context.Context) {
	for _, r := range reg.retrievers {
		_ = r.Shutdown(ctx)
	}
}
