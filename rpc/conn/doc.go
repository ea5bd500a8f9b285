// Package conn implements a persistent, reconnectable stream connection that
// exchanges frames and correlates requests with their responses.
//
// A Connection owns:
//
//   - an executor.Executor that runs every socket operation and state change
//     (connect, write, half-close, close) one after another,
//   - a registry.Registry with the pending requests and their timeouts,
//   - one frame.Reader per transport, running on its own goroutine and handing
//     complete frames to the executor.
//
// States:
//
//	Closed --Init/Reconnect--> Connecting --dial ok--> Connected
//	Connecting|Connected --error/EOF--> Closed
//	Connected --Disconnect--> Disconnecting --peer closed/timeout--> Closed
//
// Inbound frames first try to resolve a pending request (keyed by frame type), all
// other frames go to the dispatch.Dispatcher. Every teardown fails all pending
// requests with an error matching common.ErrConnectionReset. The connection never
// reconnects on its own, see package reconnect for that.
//
// Usage:
//
//	c := conn.NewConnection(config, tcp.NewClientConnector(), dispatcher, callbacks)
//	defer c.Close()
//
//	if err := c.Init(); err != nil {
//		return err
//	}
//	resp, err := c.Call(ctx, int32(common.PacketTypePing), body, 2*time.Second)
package conn
