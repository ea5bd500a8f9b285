// Package tcp implements the transport connectors for TCP sockets.
//
// Accepted and dialed connections are upgraded with the configured socket buffer
// sizes and TCP options (no delay, keep alive, linger).
package tcp
