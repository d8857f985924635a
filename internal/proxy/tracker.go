package proxy

import (
	"sort"
	"sync"
)

// InjectionTracker watches the policy names actually present in
// successive main-conversation requests and reports the names added and
// removed since the previous one. The first call reports every observed
// name as added; the tracker holds no expected policy set and makes no
// expected-versus-actual comparison.
type InjectionTracker struct {
	mu   sync.Mutex
	seen bool
	prev map[string]bool
}

// NewInjectionTracker builds an empty tracker; its first Observe call
// always reports First: true.
func NewInjectionTracker() *InjectionTracker {
	return &InjectionTracker{prev: map[string]bool{}}
}

// InjectionStateChange is the step-2 report for one observed request.
type InjectionStateChange struct {
	First   bool
	Actual  []string
	Added   []string
	Removed []string
}

// Observe records actual as the policy set seen in the latest
// main-conversation request and reports the delta against the
// previously observed set.
func (t *InjectionTracker) Observe(actual []string) InjectionStateChange {
	t.mu.Lock()
	defer t.mu.Unlock()

	actualSet := make(map[string]bool, len(actual))
	for _, p := range actual {
		actualSet[p] = true
	}

	change := InjectionStateChange{First: !t.seen, Actual: actual}
	for p := range actualSet {
		if !t.prev[p] {
			change.Added = append(change.Added, p)
		}
	}
	for p := range t.prev {
		if !actualSet[p] {
			change.Removed = append(change.Removed, p)
		}
	}
	sort.Strings(change.Added)
	sort.Strings(change.Removed)

	t.seen = true
	t.prev = actualSet
	return change
}
