package conn

import (
	"context"
	"errors"
	"github.com/ValentinKolb/rconn/rpc/common"
	"github.com/ValentinKolb/rconn/rpc/dispatch"
	"github.com/ValentinKolb/rconn/rpc/executor"
	"github.com/ValentinKolb/rconn/rpc/frame"
	"github.com/ValentinKolb/rconn/rpc/registry"
	"github.com/ValentinKolb/rconn/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("conn")

// ErrConnectionClosed is returned by lifecycle calls after Close
var ErrConnectionClosed = errors.New("connection closed for good")

// attempt is one connect attempt. ready is closed once the attempt is resolved
// (connected, failed or torn down).
type attempt struct {
	gen    uint64
	ready  chan struct{}
	once   sync.Once
	cancel context.CancelFunc
}

func (a *attempt) resolve() {
	a.once.Do(func() {
		a.cancel()
		close(a.ready)
	})
}

// Connection is a persistent, reconnectable stream connection exchanging frames.
//
// Every mutation of the socket and of the state happens in a job on the connection's
// executor. Public lifecycle calls (Init, Reconnect, Disconnect, Close) are additionally
// serialized by resetMu and wait for their job, so two overlapping reconnects can never
// interleave. The pending requests live in a registry owned by this connection.
type Connection struct {
	config     common.ClientConfig
	connector  transport.IClientConnector
	dispatcher dispatch.Dispatcher
	callbacks  Callbacks
	opts       options

	exec         *executor.Executor // owns the socket and the state
	dispatchExec *executor.Executor // runs the dispatcher in arrival order
	pending      *registry.Registry[int32]
	stats        *stats

	resetMu sync.Mutex
	closed  atomic.Bool

	state      atomic.Int32
	generation atomic.Uint64 // transport generation, bumped on connect and teardown
	attempt    atomic.Pointer[attempt]

	// only accessed by executor jobs
	conn          net.Conn
	shutdownTimer *time.Timer
	reconnecting  bool
}

// NewConnection creates a connection in state Closed. Call Init to connect.
// dispatcher receives all frames that do not answer a pending request, it may be nil.
func NewConnection(config common.ClientConfig, connector transport.IClientConnector, dispatcher dispatch.Dispatcher, callbacks Callbacks, opts ...Option) *Connection {
	if dispatcher == nil {
		dispatcher = dispatch.Nop
	}
	if callbacks == nil {
		callbacks = NopCallbacks{}
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	c := &Connection{
		config:       config.WithDefaults(),
		connector:    connector,
		dispatcher:   dispatcher,
		callbacks:    callbacks,
		opts:         o,
		exec:         executor.New("conn " + config.Endpoint),
		dispatchExec: executor.New("dispatch " + config.Endpoint),
		pending:      registry.New[int32](nil),
	}
	c.stats = newStats(c)
	return c
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Init starts the first connect attempt. It returns once the attempt is started,
// use WaitConnected to wait for its outcome. Calling Init on a connection that is
// not Closed does nothing.
func (c *Connection) Init() error {
	c.resetMu.Lock()
	defer c.resetMu.Unlock()

	if c.closed.Load() {
		return ErrConnectionClosed
	}

	return c.exec.SubmitSync(func() {
		if c.State() == Closed {
			c.connect()
		}
	})
}

// Reconnect tears the connection down and starts a new connect attempt with a fresh
// transport. Unless forced it does nothing if the connection is not Closed.
// All pending requests of the old transport fail with common.ErrConnectionReset.
func (c *Connection) Reconnect(forced bool) error {
	c.resetMu.Lock()
	defer c.resetMu.Unlock()

	if c.closed.Load() {
		return ErrConnectionClosed
	}

	return c.exec.SubmitSync(func() {
		if !forced && c.State() != Closed {
			return
		}
		Logger.Infof("reconnecting to %s (forced=%t, state=%s)", c.config.Endpoint, forced, c.State())
		// callers waiting for the old attempt are handed over to the new one by connect
		c.reconnecting = true
		c.teardown(nil)
		c.reconnecting = false
		c.connect()
	})
}

// Disconnect starts an orderly shutdown: the sending side is closed and the connection
// stays in Disconnecting until the peer closes as well or ShutdownTimeout passes.
// Responses arriving in between still resolve their requests.
func (c *Connection) Disconnect() error {
	c.resetMu.Lock()
	defer c.resetMu.Unlock()

	if c.closed.Load() {
		return ErrConnectionClosed
	}

	return c.exec.SubmitSync(c.disconnect)
}

// Close closes the connection immediately (no half-close), fails all pending requests
// and releases the executors and the timer goroutine. The connection can't be used afterward.
func (c *Connection) Close() error {
	c.resetMu.Lock()
	defer c.resetMu.Unlock()

	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	err := c.exec.SubmitSync(func() {
		c.teardown(nil)
	})
	c.exec.Close()
	c.dispatchExec.Close()
	c.pending.Close()
	return err
}

// --------------------------------------------------------------------------
// Introspection
// --------------------------------------------------------------------------

// State returns the current state
func (c *Connection) State() State {
	return State(c.state.Load())
}

// Endpoint returns the endpoint the connection dials
func (c *Connection) Endpoint() string {
	return c.config.Endpoint
}

// Config returns the effective configuration (defaults applied)
func (c *Connection) Config() common.ClientConfig {
	return c.config
}

// Pending returns the number of requests waiting for their response
func (c *Connection) Pending() int {
	return c.pending.Len()
}

// RegistryStats returns the lifetime counters of the pending request registry
func (c *Connection) RegistryStats() registry.Stats {
	return c.pending.Stats()
}

// Latency returns the timer of successful calls
func (c *Connection) Latency() gometrics.Timer {
	return c.stats.latency
}

// WriteMetrics writes the connection's metrics in Prometheus text format
func (c *Connection) WriteMetrics(w io.Writer) {
	c.stats.write(w)
}

// WaitConnected blocks until the connection is Connected. It fails if the connection
// is (or becomes) Closed or Disconnecting, or when ctx is done.
func (c *Connection) WaitConnected(ctx context.Context) error {
	for {
		switch st := c.State(); st {
		case Connected:
			return nil
		case Connecting:
			// the state is updated before ready is closed, so the loop makes progress
			a := c.attempt.Load()
			select {
			case <-a.ready:
			case <-ctx.Done():
				return ctx.Err()
			}
		default:
			return c.notConnected("wait", st)
		}
	}
}

// --------------------------------------------------------------------------
// State machine (executor jobs only)
// --------------------------------------------------------------------------

func (c *Connection) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old != s {
		Logger.Debugf("%s: %s -> %s", c.config.Endpoint, old, s)
	}
}

// connect enters Connecting and dials on a separate goroutine, the result is
// reported back as a job. Precondition: state is Closed.
func (c *Connection) connect() {
	gen := c.generation.Add(1)
	ctx, cancel := context.WithTimeout(context.Background(), c.config.DialTimeout)
	a := &attempt{gen: gen, ready: make(chan struct{}), cancel: cancel}

	prev := c.attempt.Swap(a)
	c.setState(Connecting)
	c.stats.connects.Inc()
	if prev != nil {
		prev.resolve()
	}

	go func() {
		nc, err := c.connector.Connect(ctx, c.config.Endpoint)
		if err == nil {
			if uerr := c.connector.UpgradeConnection(nc, c.config.Socket, c.config.TCP); uerr != nil {
				_ = nc.Close()
				nc, err = nil, uerr
			}
		}

		if serr := c.exec.Submit(func() { c.onDialed(a, nc, err) }); serr != nil && nc != nil {
			_ = nc.Close()
		}
	}()
}

// onDialed finishes a connect attempt
func (c *Connection) onDialed(a *attempt, nc net.Conn, err error) {
	if a.gen != c.generation.Load() || c.State() != Connecting {
		// the attempt was torn down while dialing
		if nc != nil {
			_ = nc.Close()
		}
		return
	}

	if err != nil {
		Logger.Warningf("failed to connect to %s: %v", c.config.Endpoint, err)
		c.teardown(&common.ConnectionError{Op: "dial", Endpoint: c.config.Endpoint, Err: err})
		return
	}

	c.conn = nc
	c.setState(Connected)
	Logger.Infof("connected to %s (%s)", c.config.Endpoint, c.connector.GetName())

	go frame.NewReader(c.config.MaxFrameSize).Run(nc, &readHandler{c: c, gen: a.gen})

	a.resolve()
	c.callbacks.OnConnected(c)
}

// disconnect half-closes the transport and arms the shutdown timeout
func (c *Connection) disconnect() {
	switch c.State() {
	case Connected:
		c.setState(Disconnecting)
		if err := transport.CloseWrite(c.conn); err != nil {
			Logger.Debugf("half-close of %s failed, closing: %v", c.config.Endpoint, err)
			c.teardown(nil)
			return
		}

		gen := c.generation.Load()
		c.shutdownTimer = time.AfterFunc(c.config.ShutdownTimeout, func() {
			_ = c.exec.Submit(func() {
				if gen == c.generation.Load() && c.State() == Disconnecting {
					Logger.Warningf("%s did not close within %s", c.config.Endpoint, c.config.ShutdownTimeout)
					c.teardown(nil)
				}
			})
		})
	case Connecting:
		c.teardown(nil)
	}
}

// teardown disposes the transport, fails every pending request and enters Closed.
// It is idempotent, calling it on a Closed connection does nothing.
// cause is nil for locally requested closes.
func (c *Connection) teardown(cause error) {
	if c.State() == Closed {
		return
	}

	if c.shutdownTimer != nil {
		c.shutdownTimer.Stop()
		c.shutdownTimer = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}

	// stale reader and dial callbacks are dropped from now on
	c.generation.Add(1)
	c.setState(Closed)
	c.stats.resets.Inc()

	if n := c.pending.FailAll(common.ResetError(cause)); n > 0 {
		Logger.Infof("%s: failed %d pending requests", c.config.Endpoint, n)
	}
	if a := c.attempt.Load(); a != nil && !c.reconnecting {
		a.resolve()
	}

	if cause != nil {
		Logger.Warningf("connection to %s closed: %v", c.config.Endpoint, cause)
	} else {
		Logger.Infof("connection to %s closed", c.config.Endpoint)
	}
	c.callbacks.OnClosed(c, cause)
}

// write puts one frame on the wire. It fails if the transport generation changed
// since the caller saw the connection Connected.
func (c *Connection) write(gen uint64, f frame.Frame) error {
	if c.conn == nil || gen != c.generation.Load() || c.State() != Connected {
		return c.notConnected("write", c.State())
	}

	if c.config.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	}

	_, err := c.conn.Write(f.Bytes())
	c.callbacks.OnWriteComplete(c, f, err)
	if err != nil {
		c.stats.writeErrors.Inc()
		werr := &common.ConnectionError{Op: "write", Endpoint: c.config.Endpoint, Err: err}
		c.teardown(werr)
		return werr
	}

	c.stats.frameSent(int(f.Length))
	return nil
}

// --------------------------------------------------------------------------
// Inbound path
// --------------------------------------------------------------------------

// onFrame handles one inbound frame: responses resolve their pending request,
// everything else goes to the dispatcher
func (c *Connection) onFrame(gen uint64, f frame.Frame) {
	if gen != c.generation.Load() {
		return
	}

	c.stats.frameReceived(int(f.Length))
	c.callbacks.OnFrame(c, f)

	if c.pending.Resolve(f.Type, f) {
		return
	}

	c.stats.unsolicited.Inc()
	if err := c.dispatchExec.Submit(func() { c.dispatch(f) }); err != nil {
		Logger.Debugf("dropping frame %v: %v", f, err)
	}
}

// onTransportClosed handles the end of the read loop
func (c *Connection) onTransportClosed(gen uint64, err error) {
	if gen != c.generation.Load() {
		return
	}

	switch {
	case err == nil && c.State() == Disconnecting:
		// the orderly shutdown we asked for
		c.teardown(nil)
	case err == nil:
		c.teardown(&common.ConnectionError{Op: "read", Endpoint: c.config.Endpoint, Err: io.EOF})
	default:
		var ce *common.ConnectionError
		if errors.As(err, &ce) && ce.Endpoint == "" {
			ce.Endpoint = c.config.Endpoint
		}
		c.teardown(err)
	}
}

// dispatch runs the dispatcher for an unsolicited frame and sends its reply.
// Runs on the dispatch executor, never on the connection's executor.
func (c *Connection) dispatch(f frame.Frame) {
	reply, err := c.dispatcher.Dispatch(context.Background(), f)
	if err != nil {
		c.stats.dispatchErrors.Inc()
		var de *common.DispatchError
		if !errors.As(err, &de) {
			err = &common.DispatchError{Type: f.Type, Err: err}
		}
		Logger.Warningf("%s: %v", c.config.Endpoint, err)
		return
	}

	if reply == nil {
		return
	}
	if err := c.Send(reply.Type, reply.Body); err != nil {
		Logger.Warningf("%s: failed to send reply of type %d: %v", c.config.Endpoint, reply.Type, err)
	}
}

// readHandler forwards the events of one transport's read loop to the executor
type readHandler struct {
	c   *Connection
	gen uint64
}

func (h *readHandler) OnFrame(f frame.Frame) {
	_ = h.c.exec.Submit(func() { h.c.onFrame(h.gen, f) })
}

func (h *readHandler) OnClosed() {
	_ = h.c.exec.Submit(func() { h.c.onTransportClosed(h.gen, nil) })
}

func (h *readHandler) OnError(err error) {
	_ = h.c.exec.Submit(func() { h.c.onTransportClosed(h.gen, err) })
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func (c *Connection) notConnected(op string, st State) error {
	return &common.ConnectionError{
		Op:       op,
		Endpoint: c.config.Endpoint,
		Err:      &stateError{state: st},
	}
}

// stateError reports the state that prevented an operation, it matches common.ErrNotConnected
type stateError struct {
	state State
}

func (e *stateError) Error() string {
	return common.ErrNotConnected.Error() + " (state " + e.state.String() + ")"
}

func (e *stateError) Unwrap() error {
	return common.ErrNotConnected
}
