package registry

import (
	"sync"
	"testing"
	"time"
)

// TestSchedulerOrder tests that callbacks fire in deadline order
func TestSchedulerOrder(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	now := time.Now()
	delays := []int{40, 10, 30, 20, 0}
	wg.Add(len(delays))
	for _, d := range delays {
		d := d
		s.Schedule(now.Add(time.Duration(d)*time.Millisecond), func() {
			mu.Lock()
			order = append(order, d)
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()

	for i := 1; i < len(order); i++ {
		if order[i-1] > order[i] {
			t.Fatalf("callbacks out of order: %v", order)
		}
	}
}

// TestSchedulerCancel tests that cancelled callbacks never fire
func TestSchedulerCancel(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	fired := make(chan struct{}, 1)
	id := s.Schedule(time.Now().Add(20*time.Millisecond), func() { fired <- struct{}{} })
	if !s.Cancel(id) {
		t.Fatal("cancel should find the callback")
	}
	if s.Cancel(id) {
		t.Fatal("second cancel should fail")
	}
	if s.Len() != 0 {
		t.Fatalf("expected no scheduled callbacks, got %d", s.Len())
	}

	select {
	case <-fired:
		t.Fatal("cancelled callback fired")
	case <-time.After(50 * time.Millisecond):
	}
}

// TestSchedulerEarlierDeadline tests that a new earlier deadline wakes the loop
func TestSchedulerEarlierDeadline(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	s.Schedule(time.Now().Add(time.Hour), func() {})

	fired := make(chan struct{})
	start := time.Now()
	s.Schedule(time.Now().Add(10*time.Millisecond), func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("earlier deadline did not fire")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("earlier deadline fired late")
	}
}

// TestSchedulerStop tests that Stop drops pending callbacks and is idempotent
func TestSchedulerStop(t *testing.T) {
	s := NewScheduler()

	fired := make(chan struct{}, 1)
	s.Schedule(time.Now().Add(20*time.Millisecond), func() { fired <- struct{}{} })
	s.Stop()
	s.Stop()

	s.Schedule(time.Now(), func() { fired <- struct{}{} })

	select {
	case <-fired:
		t.Fatal("callback fired after stop")
	case <-time.After(50 * time.Millisecond):
	}
}
