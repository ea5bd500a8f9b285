// Package dispatch contains the Dispatcher interface that receives every frame
// which is not the response to a pending request, plus a small type based Router.
//
// On the client side the Dispatcher sees unsolicited frames (e.g. NOTICE frames pushed
// by the server). On the server side it sees every request frame. A non-nil reply
// is written back on the same connection.
//
// Dispatchers are called from their own goroutine and may block, they never run on
// a connection's executor.
package dispatch
