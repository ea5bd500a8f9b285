package conn

import "github.com/ValentinKolb/rconn/rpc/frame"

// Callbacks receives the events of a Connection. The callbacks are fixed when the
// connection is created and are never rebound, also not across reconnects.
//
// All callbacks run on the connection's executor, one at a time and in event order.
// They must return quickly and must not call Init, Reconnect, Disconnect or Close
// synchronously (start a goroutine for that).
type Callbacks interface {
	// OnConnected is called after a connect attempt succeeded
	OnConnected(c *Connection)
	// OnFrame is called for every inbound frame, before it is matched against the pending requests
	OnFrame(c *Connection, f frame.Frame)
	// OnWriteComplete is called after a frame was written, err is the write error if any
	OnWriteComplete(c *Connection, f frame.Frame, err error)
	// OnClosed is called once per teardown. reason is nil if the close was requested locally
	// (Disconnect, Reconnect, Close), otherwise it is the error that killed the connection.
	OnClosed(c *Connection, reason error)
}

// NopCallbacks ignores every event, embed it to implement only some callbacks
type NopCallbacks struct{}

func (NopCallbacks) OnConnected(*Connection)                         {}
func (NopCallbacks) OnFrame(*Connection, frame.Frame)                {}
func (NopCallbacks) OnWriteComplete(*Connection, frame.Frame, error) {}
func (NopCallbacks) OnClosed(*Connection, error)                     {}
