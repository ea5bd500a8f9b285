// Package server implements a frame server: it accepts stream connections, reads
// frames from every session and hands them to a dispatch.Dispatcher. Replies are
// written back on the session that sent the request.
//
// The server can also push frames that are not answers to anything (Broadcast),
// which is how clients receive unsolicited frames.
//
// Key Components:
//
//   - Server: accept loop, session table (xsync.MapOf) and metrics.
//
//   - session: one accepted connection. Frames are processed by at most
//     MaxWorkersPerConn goroutines at a time, writes are serialized by a mutex.
//
// With MaxWorkersPerConn = 1 (the default) replies leave in request order.
package server
