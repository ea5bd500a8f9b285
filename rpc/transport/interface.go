package transport

import (
	"context"
	"github.com/ValentinKolb/rconn/rpc/common"
	"net"
)

// --------------------------------------------------------------------------
// Client Connector
// --------------------------------------------------------------------------

// IClientConnector creates the stream sockets used by a conn.Connection.
// A new socket is created for every connect attempt, sockets are never reused.
type IClientConnector interface {
	// Connect dials endpoint, it must honor the deadline and cancellation of ctx
	Connect(ctx context.Context, endpoint string) (net.Conn, error)
	// UpgradeConnection applies socket options to a freshly dialed connection
	UpgradeConnection(conn net.Conn, socket common.SocketConf, tcp common.TCPConf) error
	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string
}

// --------------------------------------------------------------------------
// Server Connector
// --------------------------------------------------------------------------

// IServerConnector creates the listener of the frame server
type IServerConnector interface {
	// Listen creates a listener on endpoint and returns it
	Listen(endpoint string) (net.Listener, error)
	// UpgradeConnection applies socket options to an accepted connection
	UpgradeConnection(conn net.Conn, socket common.SocketConf, tcp common.TCPConf) error
	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string
}
