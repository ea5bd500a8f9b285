package conn

// State is the lifecycle state of a Connection
type State int32

const (
	// Closed is the initial and the terminal state, no transport exists
	Closed State = iota
	// Connecting means a connect attempt is in flight
	Connecting
	// Connected means frames can be sent and received
	Connected
	// Disconnecting means the sending side was shut down, the connection waits for the peer to close
	Disconnecting
)

func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Disconnecting:
		return "Disconnecting"
	default:
		return "Unknown"
	}
}
