package server

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/rconn/rpc/common"
	"github.com/ValentinKolb/rconn/rpc/dispatch"
	"github.com/ValentinKolb/rconn/rpc/frame"
	"github.com/ValentinKolb/rconn/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"io"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("server")

// ErrServerClosed is returned by Start after Close
var ErrServerClosed = errors.New("server closed")

// Server accepts connections and dispatches their frames.
//
// Frames of one session are handed to up to MaxWorkersPerConn workers. With one worker
// (the default) frames are dispatched one after another and replies leave in arrival
// order. With more workers dispatch runs concurrently and replies of one session may
// leave in any order, which is fine for clients that correlate by frame type.
type Server struct {
	config     common.ServerConfig
	connector  transport.IServerConnector
	dispatcher dispatch.Dispatcher

	mu       sync.Mutex
	listener net.Listener
	closed   atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	sessions *xsync.MapOf[uint64, *session]
	nextID   atomic.Uint64

	set            *metrics.Set
	accepted       *metrics.Counter
	framesReceived *metrics.Counter
	framesSent     *metrics.Counter
	dispatchErrors *metrics.Counter
	protocolErrors *metrics.Counter
}

// NewServer creates a frame server, call Start to listen
//
// Usage:
//
//	s := server.NewServer(
//		config,
//		tcp.NewServerConnector(),
//		dispatch.NewPingRouter(serializer.NewJSONSerializer()),
//	)
//
//	if err := s.Start(); err != nil {
//		panic(err)
//	}
//	defer s.Close()
func NewServer(config common.ServerConfig, connector transport.IServerConnector, dispatcher dispatch.Dispatcher) *Server {
	if dispatcher == nil {
		dispatcher = dispatch.Nop
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:     config.WithDefaults(),
		connector:  connector,
		dispatcher: dispatcher,
		ctx:        ctx,
		cancel:     cancel,
		sessions:   xsync.NewMapOf[uint64, *session](),
		set:        metrics.NewSet(),
	}

	s.accepted = s.set.NewCounter("rconn_server_sessions_accepted_total")
	s.framesReceived = s.set.NewCounter("rconn_server_frames_received_total")
	s.framesSent = s.set.NewCounter("rconn_server_frames_sent_total")
	s.dispatchErrors = s.set.NewCounter("rconn_server_dispatch_errors_total")
	s.protocolErrors = s.set.NewCounter("rconn_server_protocol_errors_total")
	s.set.NewGauge("rconn_server_sessions_active", func() float64 {
		return float64(s.sessions.Size())
	})

	return s
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Start creates the listener and runs the accept loop in the background
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return ErrServerClosed
	}
	if s.listener != nil {
		return fmt.Errorf("server already listening on %s", s.listener.Addr())
	}

	listener, err := s.connector.Listen(s.config.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	s.listener = listener

	Logger.Infof("Starting %s frame server on %s with %d workers per connection",
		s.connector.GetName(), listener.Addr(), s.config.MaxWorkersPerConn)

	s.wg.Add(1)
	go s.acceptLoop(listener)
	return nil
}

// Addr returns the address of the listener, nil before Start
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops accepting, closes every session and waits for all goroutines
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.cancel()

	s.mu.Lock()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.mu.Unlock()

	s.sessions.Range(func(_ uint64, sess *session) bool {
		_ = sess.conn.Close()
		return true
	})

	s.wg.Wait()
	Logger.Infof("frame server stopped")
	return err
}

// --------------------------------------------------------------------------
// Server initiated frames
// --------------------------------------------------------------------------

// Broadcast writes a frame to every connected session and returns how many
// sessions it reached
func (s *Server) Broadcast(typ int32, body []byte) int {
	f := frame.New(typ, body)
	reached := 0

	s.sessions.Range(func(id uint64, sess *session) bool {
		if err := sess.write(f); err != nil {
			Logger.Warningf("broadcast to session %d failed: %v", id, err)
			return true
		}
		s.framesSent.Inc()
		reached++
		return true
	})
	return reached
}

// SendTo writes a frame to one session
func (s *Server) SendTo(id uint64, typ int32, body []byte) error {
	sess, ok := s.sessions.Load(id)
	if !ok {
		return fmt.Errorf("session %d: %w", id, common.ErrNotConnected)
	}
	if err := sess.write(frame.New(typ, body)); err != nil {
		return &common.ConnectionError{Op: "write", Endpoint: sess.conn.RemoteAddr().String(), Err: err}
	}
	s.framesSent.Inc()
	return nil
}

// Sessions returns the connected sessions ordered by id
func (s *Server) Sessions() []SessionInfo {
	infos := make([]SessionInfo, 0, s.sessions.Size())
	s.sessions.Range(func(_ uint64, sess *session) bool {
		infos = append(infos, sess.info())
		return true
	})
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// WriteMetrics writes the server's metrics in Prometheus text format
func (s *Server) WriteMetrics(w io.Writer) {
	s.set.WritePrometheus(w)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (s *Server) acceptLoop(listener net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.closed.Load() {
				return
			}
			Logger.Errorf("Accept error: %v", err)
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if err := s.connector.UpgradeConnection(conn, s.config.Socket, s.config.TCP); err != nil {
			Logger.Warningf("failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
		}

		sess := newSession(s.nextID.Add(1), conn, time.Duration(s.config.TimeoutSecond)*time.Second)
		s.sessions.Store(sess.id, sess)
		s.accepted.Inc()

		// the session may have been stored after Close ranged over the table
		if s.closed.Load() {
			_ = conn.Close()
		}

		s.wg.Add(1)
		go s.handleSession(sess)
	}
}

// handleSession reads frames of one session until it is closed
func (s *Server) handleSession(sess *session) {
	defer s.wg.Done()
	defer s.sessions.Delete(sess.id)
	defer sess.conn.Close()

	Logger.Infof("session %d opened by %s", sess.id, sess.conn.RemoteAddr())

	h := &sessionHandler{
		server: s,
		sess:   sess,
		// Create a semaphore to limit concurrent workers for this connection
		// The buffered channel acts as a counting semaphore
		workers: make(chan struct{}, s.config.MaxWorkersPerConn),
	}

	frame.NewReader(s.config.MaxFrameSize).Run(sess.conn, h)

	// Wait for all workers to finish before closing the connection
	// This ensures we don't lose any in-progress work
	h.wg.Wait()
}

// sessionHandler receives the reader events of one session
type sessionHandler struct {
	server  *Server
	sess    *session
	workers chan struct{}
	wg      sync.WaitGroup
}

func (h *sessionHandler) OnFrame(f frame.Frame) {
	h.sess.framesReceived.Inc()
	h.server.framesReceived.Inc()

	// Acquire a slot in the semaphore (blocks if MaxWorkersPerConn is reached)
	h.workers <- struct{}{}
	h.wg.Add(1)

	go func() {
		defer func() {
			<-h.workers
			h.wg.Done()
		}()
		h.server.process(h.sess, f)
	}()
}

func (h *sessionHandler) OnClosed() {
	Logger.Infof("session %d closed by client", h.sess.id)
}

func (h *sessionHandler) OnError(err error) {
	var pe *common.ProtocolError
	if errors.As(err, &pe) {
		h.server.protocolErrors.Inc()
		Logger.Warningf("session %d: %v", h.sess.id, err)
		return
	}
	if h.server.closed.Load() {
		return
	}
	Logger.Errorf("session %d: %v", h.sess.id, err)
}

// process dispatches one frame and writes the reply
func (s *Server) process(sess *session, f frame.Frame) {
	start := time.Now()
	reply, err := s.dispatcher.Dispatch(s.ctx, f)
	if err != nil {
		s.dispatchErrors.Inc()
		Logger.Warningf("session %d: %v", sess.id, err)
		return
	}
	Logger.Debugf("session %d: processed frame type %d in %s", sess.id, f.Type, time.Since(start))

	if reply == nil {
		return
	}
	if err := sess.write(*reply); err != nil {
		Logger.Errorf("session %d: failed to write reply: %v", sess.id, err)
		return
	}
	s.framesSent.Inc()
}
