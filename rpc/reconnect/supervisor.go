package reconnect

import (
	"errors"
	"github.com/ValentinKolb/rconn/rpc/common"
	"github.com/ValentinKolb/rconn/rpc/conn"
	"github.com/ValentinKolb/rconn/rpc/frame"
	"github.com/lni/dragonboat/v4/logger"
	"math/rand"
	"sync"
	"time"
)

var Logger = logger.GetLogger("reconnect")

const (
	DefaultInitialBackoff = 100 * time.Millisecond
	DefaultMaxBackoff     = 5 * time.Second
)

// Supervisor reconnects a connection after it was lost.
// It forwards every event to the wrapped callbacks.
type Supervisor struct {
	conf common.ReconnectConf
	next conn.Callbacks

	mu       sync.Mutex
	attempts int // failed attempts since the last successful connect
	total    int
	timer    *time.Timer
	stopped  bool
	gaveUp   chan struct{}
}

// NewSupervisor creates a supervisor forwarding to next (may be nil)
func NewSupervisor(conf common.ReconnectConf, next conn.Callbacks) *Supervisor {
	if next == nil {
		next = conn.NopCallbacks{}
	}
	if conf.InitialBackoff <= 0 {
		conf.InitialBackoff = DefaultInitialBackoff
	}
	if conf.MaxBackoff <= 0 {
		conf.MaxBackoff = DefaultMaxBackoff
	}
	if conf.MaxBackoff < conf.InitialBackoff {
		conf.MaxBackoff = conf.InitialBackoff
	}

	return &Supervisor{
		conf:   conf,
		next:   next,
		gaveUp: make(chan struct{}),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see conn.Callbacks)
// --------------------------------------------------------------------------

func (s *Supervisor) OnConnected(c *conn.Connection) {
	s.mu.Lock()
	s.attempts = 0
	s.mu.Unlock()

	s.next.OnConnected(c)
}

func (s *Supervisor) OnFrame(c *conn.Connection, f frame.Frame) {
	s.next.OnFrame(c, f)
}

func (s *Supervisor) OnWriteComplete(c *conn.Connection, f frame.Frame, err error) {
	s.next.OnWriteComplete(c, f, err)
}

func (s *Supervisor) OnClosed(c *conn.Connection, reason error) {
	s.next.OnClosed(c, reason)

	// locally requested closes are never undone
	if reason == nil {
		return
	}
	s.schedule(c)
}

// --------------------------------------------------------------------------
// Control
// --------------------------------------------------------------------------

// Stop cancels a scheduled reconnect, no reconnects happen afterward
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Attempts returns the total number of reconnects started by the supervisor
func (s *Supervisor) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// GaveUp is closed when MaxAttempts reconnects in a row failed
func (s *Supervisor) GaveUp() <-chan struct{} {
	return s.gaveUp
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// schedule arms the timer of the next reconnect. Runs on the connection's executor,
// so Reconnect itself is called from the timer goroutine.
func (s *Supervisor) schedule(c *conn.Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || !s.conf.Enabled {
		return
	}
	if s.conf.MaxAttempts > 0 && s.attempts >= s.conf.MaxAttempts {
		Logger.Errorf("giving up on %s after %d attempts", c.Endpoint(), s.attempts)
		s.stopped = true
		close(s.gaveUp)
		return
	}

	delay := Backoff(s.conf.InitialBackoff, s.conf.MaxBackoff, s.attempts)
	s.attempts++
	Logger.Infof("reconnecting to %s in %s (attempt %d)", c.Endpoint(), delay, s.attempts)

	s.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		s.total++
		s.mu.Unlock()

		if err := c.Reconnect(false); err != nil && !errors.Is(err, conn.ErrConnectionClosed) {
			Logger.Warningf("reconnect to %s failed: %v", c.Endpoint(), err)
		}
	})
}

// Backoff returns the delay before reconnect attempt n (0-based): initial * 2^n,
// capped at max, with a random jitter of +-10%
func Backoff(initial, max time.Duration, n int) time.Duration {
	delay := initial
	for i := 0; i < n && delay < max; i++ {
		delay *= 2
	}
	if delay > max {
		delay = max
	}

	// Exponential backoff with a small random jitter (+-10%)
	jitter := float64(delay) * (0.9 + 0.2*rand.Float64())
	return time.Duration(jitter)
}
