package transport

import (
	"errors"
	"github.com/ValentinKolb/rconn/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
	"net"
	"time"
)

var Logger = logger.GetLogger("transport")

// ErrHalfCloseUnsupported is returned by CloseWrite for connections without half-close
var ErrHalfCloseUnsupported = errors.New("connection does not support half-close")

// halfCloser is implemented by *net.TCPConn and *net.UnixConn
type halfCloser interface {
	CloseWrite() error
}

// CloseWrite shuts down the sending side of conn. The peer reads EOF while
// conn can still receive until the peer closes as well.
func CloseWrite(conn net.Conn) error {
	hc, ok := conn.(halfCloser)
	if !ok {
		return ErrHalfCloseUnsupported
	}
	return hc.CloseWrite()
}

// bufferedConn is implemented by *net.TCPConn and *net.UnixConn
type bufferedConn interface {
	SetWriteBuffer(bytes int) error
	SetReadBuffer(bytes int) error
}

// ApplySocketConf sets the socket buffer sizes if configured
func ApplySocketConf(conn net.Conn, socket common.SocketConf) error {
	bc, ok := conn.(bufferedConn)
	if !ok {
		return nil // e.g. net.Pipe, nothing to upgrade
	}

	if socket.WriteBufferSize > 0 {
		if err := bc.SetWriteBuffer(socket.WriteBufferSize); err != nil {
			return err
		}
	}

	if socket.ReadBufferSize > 0 {
		if err := bc.SetReadBuffer(socket.ReadBufferSize); err != nil {
			return err
		}
	}

	Logger.Debugf("socket options applied to %s: %+v", conn.RemoteAddr(), socket)
	return nil
}

// ApplyTCPConf applies the TCP specific options to conn.
// Connections that are not TCP connections are left untouched.
func ApplyTCPConf(conn net.Conn, conf common.TCPConf) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}

	// Disable Nagle's algorithm (TCPNoDelay) if configured
	if err := tcpConn.SetNoDelay(conf.TCPNoDelay); err != nil {
		return err
	}

	if conf.TCPKeepAliveSec > 0 {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			return err
		}
		if err := tcpConn.SetKeepAlivePeriod(time.Duration(conf.TCPKeepAliveSec) * time.Second); err != nil {
			return err
		}
	}

	// values <= 0 keep the OS default
	if conf.TCPLingerSec > 0 {
		if err := tcpConn.SetLinger(conf.TCPLingerSec); err != nil {
			return err
		}
	}

	Logger.Debugf("tcp options applied to %s: %+v", conn.RemoteAddr(), conf)
	return nil
}
