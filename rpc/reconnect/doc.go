// Package reconnect brings a conn.Connection back after the connection was lost.
//
// A conn.Connection never reconnects on its own. The Supervisor is a conn.Callbacks
// implementation that wraps the user's callbacks and calls Reconnect with exponential
// backoff whenever the connection closes for a reason other than a local request
// (Disconnect, Reconnect or Close).
//
// Usage:
//
//	sup := reconnect.NewSupervisor(config.Reconnect, myCallbacks)
//	c := conn.NewConnection(config, tcp.NewClientConnector(), dispatcher, sup)
//	defer sup.Stop()
package reconnect
