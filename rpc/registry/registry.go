package registry

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/rconn/rpc/common"
	"github.com/ValentinKolb/rconn/rpc/frame"
	"github.com/lni/dragonboat/v4/logger"
	"sync"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("registry")

// ErrDuplicateKey is returned by Register while another request with the same key is pending
var ErrDuplicateKey = errors.New("a request with this key is already pending")

// entry is a pending request
type entry struct {
	id       uint64
	handle   *Handle
	deadline time.Time
	timerID  uint64
}

// Stats are the lifetime counters of a registry
type Stats struct {
	Registered uint64
	Resolved   uint64
	Expired    uint64
	Failed     uint64
}

// Registry correlates issued requests with inbound response frames.
//
// Every registered request is completed exactly once: by Resolve (success), by its
// deadline (TimeoutError) or by Fail/FailAll. The map is guarded by a single mutex,
// only O(1) map operations and scheduler bookkeeping happen under it.
type Registry[K comparable] struct {
	mu         sync.Mutex
	entries    map[K]*entry
	nextID     uint64
	generation uint64

	scheduler     *Scheduler
	ownsScheduler bool
	registered    atomic.Uint64
	resolved      atomic.Uint64
	expired       atomic.Uint64
	failed        atomic.Uint64
}

// New creates a registry. If scheduler is nil the registry starts its own, which
// is stopped by Close.
func New[K comparable](scheduler *Scheduler) *Registry[K] {
	r := &Registry[K]{
		entries:   make(map[K]*entry),
		scheduler: scheduler,
	}
	if r.scheduler == nil {
		r.scheduler = NewScheduler()
		r.ownsScheduler = true
	}
	return r
}

// --------------------------------------------------------------------------
// Operations
// --------------------------------------------------------------------------

// Register inserts a pending request. It has to be called before the request frame is
// written, otherwise a fast response could find no matching entry.
func (r *Registry[K]) Register(key K, deadline time.Time) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[key]; exists {
		return nil, fmt.Errorf("register %v: %w", key, ErrDuplicateKey)
	}

	r.nextID++
	e := &entry{
		id:       r.nextID,
		handle:   newHandle(key),
		deadline: deadline,
	}

	id := e.id
	e.timerID = r.scheduler.Schedule(deadline, func() {
		r.expire(key, id)
	})

	r.entries[key] = e
	r.registered.Add(1)
	return e.handle, nil
}

// Resolve completes the pending request for key with f. It returns false if no
// request is pending for key, the caller then treats f as unsolicited.
func (r *Registry[K]) Resolve(key K, f frame.Frame) bool {
	e := r.remove(key, 0)
	if e == nil {
		return false
	}

	r.scheduler.Cancel(e.timerID)
	if e.handle.complete(f, nil) {
		r.resolved.Add(1)
	}
	return true
}

// ExpireIfStillPending fails the request for key with a TimeoutError if it is still
// pending. A request that was already resolved is left untouched.
func (r *Registry[K]) ExpireIfStillPending(key K) bool {
	return r.expire(key, 0)
}

// Fail completes the pending request for key with err
func (r *Registry[K]) Fail(key K, err error) bool {
	e := r.remove(key, 0)
	if e == nil {
		return false
	}

	r.scheduler.Cancel(e.timerID)
	if e.handle.complete(frame.Frame{}, err) {
		r.failed.Add(1)
	}
	return true
}

// FailHandle fails the pending request for key only if it is still the request
// of h. A newer request registered under the same key is left untouched.
func (r *Registry[K]) FailHandle(key K, h *Handle, err error) bool {
	e := r.removeIf(key, func(e *entry) bool { return e.handle == h })
	if e == nil {
		return false
	}

	r.scheduler.Cancel(e.timerID)
	if e.handle.complete(frame.Frame{}, err) {
		r.failed.Add(1)
	}
	return true
}

// FailAll completes every pending request with reason and starts a new generation.
// It returns the number of failed requests.
func (r *Registry[K]) FailAll(reason error) int {
	if reason == nil {
		reason = common.ErrConnectionReset
	}

	r.mu.Lock()
	old := r.entries
	r.entries = make(map[K]*entry)
	r.generation++
	r.mu.Unlock()

	for _, e := range old {
		r.scheduler.Cancel(e.timerID)
		if e.handle.complete(frame.Frame{}, reason) {
			r.failed.Add(1)
		}
	}

	if len(old) > 0 {
		Logger.Debugf("failed %d pending requests: %v", len(old), reason)
	}
	return len(old)
}

// Close fails all pending requests and stops the scheduler if the registry owns it
func (r *Registry[K]) Close() {
	r.FailAll(common.ErrConnectionReset)
	if r.ownsScheduler {
		r.scheduler.Stop()
	}
}

// --------------------------------------------------------------------------
// Introspection
// --------------------------------------------------------------------------

// Len returns the number of pending requests
func (r *Registry[K]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Contains returns true if a request is pending for key
func (r *Registry[K]) Contains(key K) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[key]
	return ok
}

// Generation returns how many times FailAll discarded the pending requests
func (r *Registry[K]) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}

// Stats returns the lifetime counters
func (r *Registry[K]) Stats() Stats {
	return Stats{
		Registered: r.registered.Load(),
		Resolved:   r.resolved.Load(),
		Expired:    r.expired.Load(),
		Failed:     r.failed.Load(),
	}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// remove takes the entry for key out of the map. If id is not 0 the entry is only
// removed if it has this id, so an old timer never removes a newer request.
func (r *Registry[K]) remove(key K, id uint64) *entry {
	return r.removeIf(key, func(e *entry) bool { return id == 0 || e.id == id })
}

// removeIf takes the entry for key out of the map if match returns true
func (r *Registry[K]) removeIf(key K, match func(e *entry) bool) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok || !match(e) {
		return nil
	}
	delete(r.entries, key)
	return e
}

// expire is the timer callback of a pending request
func (r *Registry[K]) expire(key K, id uint64) bool {
	e := r.remove(key, id)
	if e == nil {
		return false
	}

	if id == 0 {
		// called directly, not by the timer
		r.scheduler.Cancel(e.timerID)
	}

	err := &common.TimeoutError{Key: key, After: e.deadline.Sub(e.handle.created).Round(time.Millisecond)}
	if e.handle.complete(frame.Frame{}, err) {
		r.expired.Add(1)
		Logger.Debugf("request %v expired", key)
	}
	return true
}
