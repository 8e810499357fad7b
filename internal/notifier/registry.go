package notifier

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Registry holds the configured notifiers keyed by name.
type Registry struct {
	mu        sync.RWMutex
	notifiers map[string]Notifier
}

func NewRegistry() *Registry {
	return &Registry{notifiers: make(map[string]Notifier)}
}

// Register adds n. Names must be unique.
func (r *Registry) Register(n Notifier) error {
	if n == nil || n.Name() == "" {
		return fmt.Errorf("notifier must have a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.notifiers[n.Name()]; exists {
		return fmt.Errorf("notifier %s already registered", n.Name())
	}
	r.notifiers[n.Name()] = n
	return nil
}

func (r *Registry) Get(name string) (Notifier, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.notifiers[name]
	return n, ok
}

// GetAll returns the notifiers sorted by name.
func (r *Registry) GetAll() []Notifier {
	r.mu.RLock()
	all := make([]Notifier, 0, len(r.notifiers))
	for _, n := range r.notifiers {
		all = append(all, n)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].Name() < all[j].Name() })
	return all
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.notifiers)
}

// NotifyAll delivers e to every notifier concurrently and waits for all of
// them. A slow or failing notifier does not hold back the others. The
// returned map holds failures by notifier name and is empty on success.
func (r *Registry) NotifyAll(ctx context.Context, e Event) map[string]error {
	var (
		mu       sync.Mutex
		failures = make(map[string]error)
		g        errgroup.Group
	)
	for _, n := range r.GetAll() {
		g.Go(func() error {
			if err := n.Notify(ctx, e); err != nil {
				mu.Lock()
				failures[n.Name()] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failures
}
