package registry

import (
	"container/heap"
	"strconv"
	"sync"
	"time"
)

// --------------------------------------------------------------------------
// Deadline heap (heap + map for O(1) access by id)
// --------------------------------------------------------------------------

// timerItem is a scheduled callback
type timerItem struct {
	ID       uint64 // Unique identifier, returned by Schedule
	Deadline int64  // Unix nano, used as priority in the heap
	fn       func()
	index    int // Index in the heap, maintained by heap package
}

func (i *timerItem) String() string {
	return "{ID: " + strconv.FormatUint(i.ID, 10) + ", Deadline: " + strconv.FormatInt(i.Deadline, 10) + "}"
}

// deadlineHeap is a min-heap by deadline with key-based removal
type deadlineHeap struct {
	items    []*timerItem
	itemsMap map[uint64]*timerItem
}

func newDeadlineHeap() *deadlineHeap {
	return &deadlineHeap{
		items:    make([]*timerItem, 0),
		itemsMap: make(map[uint64]*timerItem),
	}
}

// Len returns the number of items in the queue (part of heap.Interface)
func (h *deadlineHeap) Len() int { return len(h.items) }

// Less compares items by deadline (part of heap.Interface)
func (h *deadlineHeap) Less(i, j int) bool {
	return h.items[i].Deadline < h.items[j].Deadline
}

// Swap exchanges items at positions i and j (part of heap.Interface)
func (h *deadlineHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

// Push adds an item to the heap (part of heap.Interface)
func (h *deadlineHeap) Push(x interface{}) {
	item := x.(*timerItem)
	item.index = len(h.items)
	h.items = append(h.items, item)
	h.itemsMap[item.ID] = item
}

// Pop removes and returns the earliest item (part of heap.Interface)
func (h *deadlineHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // Avoid memory leak
	item.index = -1 // For safety
	h.items = old[:n-1]
	delete(h.itemsMap, item.ID)
	return item
}

// removeByID removes an item by its id
func (h *deadlineHeap) removeByID(id uint64) bool {
	item, exists := h.itemsMap[id]
	if !exists {
		return false
	}
	heap.Remove(h, item.index)
	return true
}

// peek returns the earliest item without removing it
func (h *deadlineHeap) peek() (*timerItem, bool) {
	if len(h.items) == 0 {
		return nil, false
	}
	return h.items[0], true
}

// --------------------------------------------------------------------------
// Scheduler
// --------------------------------------------------------------------------

// Scheduler runs callbacks at their deadline on a single goroutine.
// Callbacks run outside the scheduler's lock and may call Schedule or Cancel.
type Scheduler struct {
	mu      sync.Mutex
	heap    *deadlineHeap
	nextID  uint64
	stopped bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// NewScheduler creates a scheduler and starts its goroutine
func NewScheduler() *Scheduler {
	s := &Scheduler{
		heap: newDeadlineHeap(),
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

// Schedule registers fn to be called once at deadline and returns an id for Cancel.
// Deadlines in the past fire as soon as possible. After Stop, fn is never called.
func (s *Scheduler) Schedule(deadline time.Time, fn func()) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	if s.stopped {
		return id
	}

	heap.Push(s.heap, &timerItem{
		ID:       id,
		Deadline: deadline.UnixNano(),
		fn:       fn,
	})

	// wake the loop if the new item is the earliest one
	if first, _ := s.heap.peek(); first.ID == id {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
	return id
}

// Cancel removes a scheduled callback. Returns false if it already fired or was cancelled.
func (s *Scheduler) Cancel(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heap.removeByID(id)
}

// Len returns the number of scheduled callbacks
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heap.Len()
}

// Stop stops the scheduler goroutine and drops all scheduled callbacks
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.stopped = true
	s.heap = newDeadlineHeap()
	s.mu.Unlock()

	close(s.stop)
	<-s.done
}

// run waits for the earliest deadline and fires all due callbacks
func (s *Scheduler) run() {
	defer close(s.done)

	for {
		s.mu.Lock()
		now := time.Now().UnixNano()

		// collect all due items
		var due []func()
		for {
			first, ok := s.heap.peek()
			if !ok || first.Deadline > now {
				break
			}
			item := heap.Pop(s.heap).(*timerItem)
			due = append(due, item.fn)
		}

		var wait time.Duration = -1
		if first, ok := s.heap.peek(); ok {
			wait = time.Duration(first.Deadline - now)
		}
		s.mu.Unlock()

		for _, fn := range due {
			fn()
		}
		if len(due) > 0 {
			// deadlines may have passed while running the callbacks
			continue
		}

		var timerC <-chan time.Time
		var timer *time.Timer
		if wait >= 0 {
			timer = time.NewTimer(wait)
			timerC = timer.C
		}

		select {
		case <-timerC:
		case <-s.wake:
		case <-s.stop:
			if timer != nil {
				timer.Stop()
			}
			return
		}

		if timer != nil {
			timer.Stop()
		}
	}
}
