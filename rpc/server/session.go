package server

import (
	"github.com/ValentinKolb/rconn/rpc/frame"
	"github.com/puzpuzpuz/xsync/v3"
	"net"
	"sync"
	"time"
)

// SessionInfo describes a connected client
type SessionInfo struct {
	ID             uint64    `json:"id"`
	Remote         string    `json:"remote"`
	Since          time.Time `json:"since"`
	FramesReceived int64     `json:"framesReceived"`
	FramesSent     int64     `json:"framesSent"`
}

// session is one accepted connection
type session struct {
	id      uint64
	conn    net.Conn
	created time.Time
	timeout time.Duration

	// Create a mutex to protect writes to the connection
	writeMu sync.Mutex

	framesReceived *xsync.Counter
	framesSent     *xsync.Counter
}

func newSession(id uint64, conn net.Conn, timeout time.Duration) *session {
	return &session{
		id:             id,
		conn:           conn,
		created:        time.Now(),
		timeout:        timeout,
		framesReceived: xsync.NewCounter(),
		framesSent:     xsync.NewCounter(),
	}
}

// write sends one frame, safe for concurrent use
func (s *session) write(f frame.Frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.timeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
			return err
		}
	}

	if _, err := s.conn.Write(f.Bytes()); err != nil {
		return err
	}
	s.framesSent.Inc()
	return nil
}

func (s *session) info() SessionInfo {
	return SessionInfo{
		ID:             s.id,
		Remote:         s.conn.RemoteAddr().String(),
		Since:          s.created,
		FramesReceived: s.framesReceived.Value(),
		FramesSent:     s.framesSent.Value(),
	}
}
