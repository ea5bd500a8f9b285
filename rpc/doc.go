// Package rpc provides a client connection for length-prefixed, typed frames over
// stream sockets, and a frame server to talk to. Requests are matched to their
// responses by a key derived from the frame type, every request has a timeout, and
// connections can be torn down and re-established without leaking pending requests.
//
// The package is organized into several subpackages:
//
//   - common: Configuration structures, typed errors, packet types and logging.
//
//   - frame: The wire format (8 byte little-endian header: total length, type) and
//     an incremental reader that turns a byte stream into frames.
//
//   - executor: A single goroutine executor that runs jobs in submission order.
//     Every state change of a connection runs on it.
//
//   - registry: Pending requests keyed by their response key, with deadline driven
//     timeouts and exactly-once completion.
//
//   - conn: The connection state machine (Closed, Connecting, Connected,
//     Disconnecting) and the request API on top of it.
//
//   - reconnect: A supervisor that re-establishes lost connections with backoff.
//
//   - dispatch: The Dispatcher interface for unsolicited frames, a type based router
//     and the PING/PONG handler.
//
//   - transport: Dial and listen abstractions with TCP and unix socket implementations.
//
//   - serializer: Frame body encodings (JSON, GOB).
//
//   - server: A frame server that dispatches every frame and can push frames to clients.
package rpc
