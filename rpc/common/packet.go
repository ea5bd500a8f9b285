package common

// --------------------------------------------------------------------------
// Packet Types
// --------------------------------------------------------------------------

// PacketType is the type tag written into the frame header
type PacketType int32

const (
	PacketTypePing   PacketType = 1
	PacketTypePong   PacketType = 2
	PacketTypeNotice PacketType = 3
)

func (t PacketType) String() string {
	switch t {
	case PacketTypePing:
		return "PING"
	case PacketTypePong:
		return "PONG"
	case PacketTypeNotice:
		return "NOTICE"
	default:
		return "UNDEFINED"
	}
}

// --------------------------------------------------------------------------
// Packet Bodies
// --------------------------------------------------------------------------

// PacketPing is the body of a PING frame. The server answers with a PONG
// carrying the same values.
type PacketPing struct {
	Num int
	Str string
}

// PacketPong is the body of a PONG frame
type PacketPong struct {
	Num int
	Str string
}

// PacketNotice is a server initiated frame, it is never an answer to a request
type PacketNotice struct {
	Seq     uint64
	Message string
}
