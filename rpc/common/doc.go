// Package common provides the types shared by all rpc packages.
//
// The package focuses on:
//   - Configuration structures for client connections and the frame server
//   - Typed errors (ProtocolError, ConnectionError, TimeoutError, DispatchError) and sentinels
//   - Packet types and bodies of the PING/PONG/NOTICE protocol
//   - Custom logging implementation integrated with Dragonboat's logger registry
//
// Key Components:
//
//   - ClientConfig: Configuration of a single connection: endpoint, request timeout,
//     connect wait, maximum frame size, socket options and the reconnect policy.
//
//   - ServerConfig: Configuration of the frame server, including the admin endpoint
//     and the notice interval.
//
//   - Errors: Every error of a torn down connection matches ErrConnectionReset via errors.Is,
//     timeouts are *TimeoutError and oversized frames are *ProtocolError.
//
//   - Logger: Custom logging implementation that integrates with Dragonboat's
//     logging system while providing consistent formatting across the application.
package common
