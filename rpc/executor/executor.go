package executor

import (
	"errors"
	"github.com/lni/dragonboat/v4/logger"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

var Logger = logger.GetLogger("executor")

// ErrExecutorClosed is returned when submitting to a closed executor
var ErrExecutorClosed = errors.New("executor closed")

// Job is a unit of work executed by the executor's worker goroutine
type Job func()

// node represents a single job in the queue
type node struct {
	job  Job
	next atomic.Pointer[node]
}

// Executor runs submitted jobs one after another on a single worker goroutine.
// Jobs never run concurrently with each other and run in the order in which their
// submission completed (for a single producer this is its submission order).
//
// The queue is a lock-free linked list: any number of goroutines may Submit
// concurrently, only the worker consumes.
type Executor struct {
	name string

	head atomic.Pointer[node]
	tail atomic.Pointer[node]

	closed     atomic.Bool
	submitting atomic.Int64 // Submit calls between the closed check and the end of push
	length     atomic.Int64
	done   chan struct{}

	// condition variable for efficient waiting of the worker
	mu   sync.Mutex
	cond *sync.Cond
}

// New creates an executor and starts its worker goroutine
func New(name string) *Executor {
	// sentinel node (dummy node at the beginning)
	sentinel := &node{}

	e := &Executor{
		name: name,
		done: make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)

	e.head.Store(sentinel)
	e.tail.Store(sentinel)

	go e.run()

	return e
}

// Name returns the name given at creation
func (e *Executor) Name() string {
	return e.name
}

// Submit enqueues a job without waiting for it (fire-and-forget).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (e *Executor) Submit(job Job) error {
	if job == nil {
		return errors.New("nil job")
	}

	// the worker does not exit while a submit that passed the check is still pushing
	e.submitting.Add(1)
	defer e.submitting.Add(-1)

	if e.closed.Load() {
		return ErrExecutorClosed
	}
	e.push(&node{job: job})
	return nil
}

// SubmitSync enqueues a job and blocks until the worker has run it. Everything the
// job wrote happens-before SubmitSync returns.
//
// SubmitSync must not be called from inside a job of the same executor, the
// worker would wait for itself.
func (e *Executor) SubmitSync(job Job) error {
	if job == nil {
		return errors.New("nil job")
	}

	finished := make(chan struct{})
	err := e.Submit(func() {
		defer close(finished)
		job()
	})
	if err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-e.done:
		// the worker drains the queue before it stops, so the job either ran or never will
		select {
		case <-finished:
			return nil
		default:
			return ErrExecutorClosed
		}
	}
}

// Close stops accepting jobs, runs all jobs already queued and waits for the worker to exit.
// Calling Close more than once is safe.
func (e *Executor) Close() {
	if e.closed.CompareAndSwap(false, true) {
		// wake up the worker if it's waiting
		e.mu.Lock()
		e.cond.Signal()
		e.mu.Unlock()
	}
	<-e.done
}

// IsClosed returns true if the executor is closed
func (e *Executor) IsClosed() bool {
	return e.closed.Load()
}

// Len returns the number of queued jobs that did not start yet
func (e *Executor) Len() int {
	return int(e.length.Load())
}

// push appends a node to the tail of the list
func (e *Executor) push(n *node) {
	e.length.Add(1)

	var backoff uint8 = 0
	for {
		tailNode := e.tail.Load()

		next := tailNode.next.Load()
		if next == nil {
			// the tail has no next node yet, try to append our node
			if tailNode.next.CompareAndSwap(nil, n) {
				// may fail if another producer already helped, the tail is updated either way
				e.tail.CompareAndSwap(tailNode, n)

				e.mu.Lock()
				e.cond.Signal()
				e.mu.Unlock()
				return
			}
		} else {
			// help update the tail pointer if another producer appended but did not move the tail yet
			e.tail.CompareAndSwap(tailNode, next)
		}

		// back off under contention
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// run is the worker loop, it is the only consumer of the list
func (e *Executor) run() {
	defer close(e.done)

	for {
		hasItems := false

		for {
			head := e.head.Load()
			next := head.next.Load()
			if next == nil {
				break
			}
			hasItems = true

			job := next.job

			// move head pointer, the old head is garbage now
			e.head.Store(next)
			next.job = nil
			e.length.Add(-1)

			e.execute(job)
		}

		if !hasItems && e.closed.Load() {
			if e.submitting.Load() == 0 && e.head.Load().next.Load() == nil {
				return
			}
			// a submit is still pushing, drain again once it is done
			runtime.Gosched()
			continue
		}

		if !hasItems {
			e.mu.Lock()
			// double-check after acquiring the lock, push signals under the same lock
			if e.head.Load().next.Load() == nil && !e.closed.Load() {
				e.cond.Wait()
			}
			e.mu.Unlock()
		}
	}
}

// execute runs a job and keeps the worker alive if it panics
func (e *Executor) execute(job Job) {
	defer func() {
		if r := recover(); r != nil {
			Logger.Errorf("[%s] recovered from panic in job: %v\n%s", e.name, r, debug.Stack())
		}
	}()
	job()
}
