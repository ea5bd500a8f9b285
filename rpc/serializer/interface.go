package serializer

// IBodySerializer is the interface for all frame body serializers
type IBodySerializer interface {
	// Serialize encodes a packet payload (e.g. common.PacketPing) into a frame body
	// It returns the encoded bytes and an error if any
	Serialize(v any) ([]byte, error)
	// Deserialize decodes a frame body into the value pointed to by v
	// It returns an error if any
	Deserialize(b []byte, v any) error
	// Name returns the name used to select the serializer on the command line
	Name() string
}

// New returns the serializer with the given name ("json" or "gob")
func New(name string) (IBodySerializer, bool) {
	switch name {
	case "json":
		return NewJSONSerializer(), true
	case "gob":
		return NewGOBSerializer(), true
	default:
		return nil, false
	}
}
