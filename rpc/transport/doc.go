// Package transport defines how the stream sockets of the module are created.
//
// A conn.Connection gets an IClientConnector and asks it for a fresh net.Conn on
// every connect attempt, the frame server gets an IServerConnector for its listener.
// The connectors only create and tune sockets, framing and request correlation
// happen in the frame and conn packages.
//
// Key Components:
//
//   - IClientConnector / IServerConnector: implemented by the tcp and unix subpackages.
//
//   - ApplySocketConf / ApplyTCPConf: socket options shared by both sides.
//
//   - CloseWrite: half-close used by the orderly shutdown of a connection.
package transport
