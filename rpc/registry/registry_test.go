package registry

import (
	"context"
	"errors"
	"github.com/ValentinKolb/rconn/rpc/common"
	"github.com/ValentinKolb/rconn/rpc/frame"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitHandle(t *testing.T, h *Handle) (frame.Frame, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	f, err := h.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("handle was not completed in time")
	}
	return f, err
}

// TestResolve tests the happy path
func TestResolve(t *testing.T) {
	r := New[int32](nil)
	defer r.Close()

	h, err := r.Register(2, time.Now().Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if !r.Contains(2) || r.Len() != 1 {
		t.Fatal("expected one pending request")
	}

	resp := frame.New(2, []byte("pong"))
	if !r.Resolve(2, resp) {
		t.Fatal("resolve did not find the pending request")
	}

	f, err := waitHandle(t, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(f.Body) != "pong" || f.Type != 2 {
		t.Errorf("unexpected frame %v", f)
	}
	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %d", r.Len())
	}

	// a second response for the same key is unsolicited
	if r.Resolve(2, resp) {
		t.Error("second resolve should not match anything")
	}

	stats := r.Stats()
	if stats.Registered != 1 || stats.Resolved != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

// TestTimeout tests that an unanswered request fails with a TimeoutError
func TestTimeout(t *testing.T) {
	r := New[int32](nil)
	defer r.Close()

	h, err := r.Register(2, time.Now().Add(30*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}

	_, err = waitHandle(t, h)
	var te *common.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if !te.Timeout() {
		t.Error("TimeoutError.Timeout() should be true")
	}
	if te.Key != int32(2) {
		t.Errorf("expected key 2, got %v", te.Key)
	}

	// the late response is dropped
	if r.Resolve(2, frame.New(2, nil)) {
		t.Error("late response should not match")
	}
	if r.Stats().Expired != 1 {
		t.Errorf("expected 1 expired request, got %d", r.Stats().Expired)
	}
}

// TestExpireIfStillPending tests manual expiry and that resolved requests are untouched
func TestExpireIfStillPending(t *testing.T) {
	r := New[string](nil)
	defer r.Close()

	h, _ := r.Register("a", time.Now().Add(time.Hour))
	if !r.ExpireIfStillPending("a") {
		t.Fatal("expected the request to expire")
	}
	if _, err := waitHandle(t, h); !isTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}

	h, _ = r.Register("b", time.Now().Add(time.Hour))
	r.Resolve("b", frame.New(1, nil))
	if r.ExpireIfStillPending("b") {
		t.Fatal("resolved request must not expire")
	}
	if _, err := waitHandle(t, h); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

// TestStaleTimerDoesNotExpireNewEntry tests that the timer of a resolved request
// cannot touch a newer request registered under the same key
func TestStaleTimerDoesNotExpireNewEntry(t *testing.T) {
	r := New[int](nil)
	defer r.Close()

	old, _ := r.Register(1, time.Now().Add(time.Hour))
	oldID := r.entries[1].id
	r.Resolve(1, frame.New(1, nil))
	if _, err := waitHandle(t, old); err != nil {
		t.Fatal(err)
	}

	h, _ := r.Register(1, time.Now().Add(time.Hour))

	// simulate the old timer firing
	if r.expire(1, oldID) {
		t.Fatal("old timer expired the new request")
	}
	if _, _, done := h.Result(); done {
		t.Fatal("new request should still be pending")
	}
}

// TestDuplicateKey tests that a second registration for a pending key is rejected
func TestDuplicateKey(t *testing.T) {
	r := New[int32](nil)
	defer r.Close()

	if _, err := r.Register(4, time.Now().Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	_, err := r.Register(4, time.Now().Add(time.Second))
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 pending request, got %d", r.Len())
	}
}

// TestFailAll tests that a reset fails every pending request
func TestFailAll(t *testing.T) {
	r := New[int32](nil)
	defer r.Close()

	var handles []*Handle
	for i := int32(0); i < 10; i++ {
		h, err := r.Register(i, time.Now().Add(time.Hour))
		if err != nil {
			t.Fatal(err)
		}
		handles = append(handles, h)
	}

	gen := r.Generation()
	if n := r.FailAll(common.ResetError(errors.New("peer closed"))); n != 10 {
		t.Fatalf("expected 10 failed requests, got %d", n)
	}
	if r.Generation() != gen+1 {
		t.Error("FailAll should start a new generation")
	}

	for _, h := range handles {
		_, err := waitHandle(t, h)
		if !errors.Is(err, common.ErrConnectionReset) {
			t.Errorf("expected ErrConnectionReset, got %v", err)
		}
	}
	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %d", r.Len())
	}
}

// TestFail tests failing a single request
func TestFail(t *testing.T) {
	r := New[int32](nil)
	defer r.Close()

	h, _ := r.Register(1, time.Now().Add(time.Hour))
	boom := errors.New("write failed")
	if !r.Fail(1, boom) {
		t.Fatal("fail did not find the request")
	}
	if _, err := waitHandle(t, h); !errors.Is(err, boom) {
		t.Fatalf("expected write error, got %v", err)
	}
	if r.Fail(1, boom) {
		t.Fatal("second fail should not match")
	}
}

// TestFailHandle tests that failing by handle never hits a newer request
func TestFailHandle(t *testing.T) {
	r := New[int32](nil)
	defer r.Close()

	old, _ := r.Register(2, time.Now().Add(time.Hour))
	r.FailAll(common.ErrConnectionReset)
	if _, err := waitHandle(t, old); !errors.Is(err, common.ErrConnectionReset) {
		t.Fatalf("expected reset, got %v", err)
	}

	h, _ := r.Register(2, time.Now().Add(time.Hour))
	if r.FailHandle(2, old, errors.New("stale write")) {
		t.Fatal("stale handle failed the new request")
	}
	if !r.Contains(2) {
		t.Fatal("new request was removed")
	}

	if !r.FailHandle(2, h, common.ErrNotConnected) {
		t.Fatal("expected to fail the current request")
	}
	if _, err := waitHandle(t, h); !errors.Is(err, common.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

// TestExactlyOnce races responses, timeouts and resets against each other and checks
// that every handle completes exactly once
func TestExactlyOnce(t *testing.T) {
	sched := NewScheduler()
	defer sched.Stop()

	r := New[int](sched)
	const n = 500

	handles := make([]*Handle, n)
	for i := 0; i < n; i++ {
		h, err := r.Register(i, time.Now().Add(time.Duration(i%5)*time.Millisecond))
		if err != nil {
			t.Fatal(err)
		}
		handles[i] = h
	}

	var resolved atomic.Int32
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			if r.Resolve(i, frame.New(int32(i), nil)) {
				resolved.Add(1)
			}
		}
	}()
	go func() {
		defer wg.Done()
		time.Sleep(2 * time.Millisecond)
		r.FailAll(common.ErrConnectionReset)
	}()
	wg.Wait()

	for _, h := range handles {
		if _, _, done := h.Result(); !done {
			// only timers may still be running
			waitHandle(t, h)
		}
	}

	// counters are updated right after a handle completes
	var stats Stats
	var total uint64
	for deadline := time.Now().Add(time.Second); time.Now().Before(deadline); time.Sleep(time.Millisecond) {
		stats = r.Stats()
		if total = stats.Resolved + stats.Expired + stats.Failed; total == n {
			break
		}
	}
	if total != n {
		t.Errorf("expected %d completions, got %d (%+v)", n, total, stats)
	}
	if uint64(resolved.Load()) != stats.Resolved {
		t.Errorf("resolve reported %d matches, stats say %d", resolved.Load(), stats.Resolved)
	}
}

// TestHandleWaitContext tests that giving up on a handle does not cancel the request
func TestHandleWaitContext(t *testing.T) {
	r := New[int32](nil)
	defer r.Close()

	h, _ := r.Register(1, time.Now().Add(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := h.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline, got %v", err)
	}
	if !r.Contains(1) {
		t.Fatal("request should still be pending")
	}

	r.Resolve(1, frame.New(1, []byte("x")))
	if f, err := waitHandle(t, h); err != nil || string(f.Body) != "x" {
		t.Fatalf("unexpected result %v %v", f, err)
	}
}

func isTimeout(err error) bool {
	var te *common.TimeoutError
	return errors.As(err, &te)
}
