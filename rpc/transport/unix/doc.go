// Package unix implements the transport connectors for Unix domain sockets.
//
// Useful for a client and server on the same machine, the endpoint is a socket path.
// TCP options are ignored, socket buffer sizes are applied.
package unix
