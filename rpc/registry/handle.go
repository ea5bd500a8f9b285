package registry

import (
	"context"
	"github.com/ValentinKolb/rconn/rpc/frame"
	"sync"
	"time"
)

// Handle is the caller-visible completion handle of a request (a future).
// It is completed exactly once, either with the response frame or with an error.
type Handle struct {
	key     any
	created time.Time

	once  sync.Once
	done  chan struct{}
	frame frame.Frame
	err   error
}

func newHandle(key any) *Handle {
	return &Handle{
		key:     key,
		created: time.Now(),
		done:    make(chan struct{}),
	}
}

// Key returns the correlation key the handle was registered with
func (h *Handle) Key() any {
	return h.key
}

// Created returns the time the request was registered
func (h *Handle) Created() time.Time {
	return h.created
}

// Done is closed once the handle is completed
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Result returns the outcome without blocking. The last return value is false
// while the handle is still pending.
func (h *Handle) Result() (frame.Frame, error, bool) {
	select {
	case <-h.done:
		return h.frame, h.err, true
	default:
		return frame.Frame{}, nil, false
	}
}

// Wait blocks until the handle is completed or ctx is done. Giving up on ctx does
// not cancel the request, the handle still completes later.
func (h *Handle) Wait(ctx context.Context) (frame.Frame, error) {
	select {
	case <-h.done:
		return h.frame, h.err
	case <-ctx.Done():
		return frame.Frame{}, ctx.Err()
	}
}

// complete resolves the handle, returns false if it was already completed
func (h *Handle) complete(f frame.Frame, err error) bool {
	completed := false
	h.once.Do(func() {
		h.frame = f
		h.err = err
		close(h.done)
		completed = true
	})
	return completed
}
