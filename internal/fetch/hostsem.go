package fetch

import (
	"context"
	"net/url"
	"sync"
)

// hostSemaphore limits concurrent requests per scheme+host so that xlink
// rounds with many targets on one ad server do not stampede it.
type hostSemaphore struct {
	mu    sync.Mutex
	sems  map[string]chan struct{}
	limit int
}

func newHostSemaphore(concurrency int) *hostSemaphore {
	if concurrency < 1 {
		concurrency = 1
	}
	return &hostSemaphore{
		sems:  make(map[string]chan struct{}),
		limit: concurrency,
	}
}

// acquire blocks until a slot for u's host is free or ctx ends. The returned
// func releases the slot.
func (h *hostSemaphore) acquire(ctx context.Context, u *url.URL) (func(), error) {
	sem := h.semFor(u.Scheme + "://" + u.Host)
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *hostSemaphore) semFor(host string) chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sems[host]
	if !ok {
		s = make(chan struct{}, h.limit)
		h.sems[host] = s
	}
	return s
}
