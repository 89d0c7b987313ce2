package channels

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/haasonsaas/mira/pkg/models"
)

// Router manages multiple channel adapters and routes outbound text by the
// channel prefix of the user id.
type Router struct {
	mu       sync.RWMutex
	adapters map[models.ChannelType]Adapter
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{adapters: make(map[models.ChannelType]Adapter)}
}

// Register adds an adapter, replacing any adapter of the same type.
func (r *Router) Register(adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.Type()] = adapter
}

// Get returns the adapter for a channel type.
func (r *Router) Get(channel models.ChannelType) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[channel]
	return a, ok
}

// All returns the registered adapters ordered by type.
func (r *Router) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type() < out[j].Type() })
	return out
}

// Send delivers text through the adapter named by the user id prefix.
func (r *Router) Send(ctx context.Context, userID, text string) error {
	channel, _, ok := models.SplitUserID(userID)
	if !ok {
		return fmt.Errorf("%w: user id %q has no channel prefix", ErrUnknownChannel, userID)
	}
	adapter, ok := r.Get(channel)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}
	return adapter.Send(ctx, userID, text)
}

// StartAll starts every adapter, stopping at the first failure.
func (r *Router) StartAll(ctx context.Context) error {
	for _, a := range r.All() {
		if err := a.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", a.Type(), err)
		}
	}
	return nil
}

// StopAll stops every adapter and joins the errors.
func (r *Router) StopAll(ctx context.Context) error {
	var errs []error
	for _, a := range r.All() {
		if err := a.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", a.Type(), err))
		}
	}
	return errors.Join(errs...)
}

// AggregateMessages fans in the inbound messages of every adapter. The
// returned channel closes once every adapter channel has closed or ctx ends.
func (r *Router) AggregateMessages(ctx context.Context) <-chan models.Inbound {
	out := make(chan models.Inbound)
	adapters := r.All()

	var wg sync.WaitGroup
	wg.Add(len(adapters))
	for _, adapter := range adapters {
		go func(a Adapter) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-a.Messages():
					if !ok {
						return
					}
					select {
					case out <- msg:
					case <-ctx.Done():
						return
					}
				}
			}
		}(adapter)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
