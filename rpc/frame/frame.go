package frame

import (
	"encoding/binary"
	"fmt"
	"github.com/ValentinKolb/rconn/rpc/common"
)

const (
	// HeaderSize is the fixed size of the frame header: length (4 bytes) + type (4 bytes)
	HeaderSize = 8

	// DefaultMaxFrameSize is the largest total frame length accepted by default
	DefaultMaxFrameSize uint32 = common.DefaultMaxFrameSize
)

// Frame is one length-prefixed unit of the wire protocol.
//
// Wire layout (little endian):
//
//	[0:4)       total length including the header (uint32)
//	[4:8)       frame type (int32)
//	[8:length)  body
type Frame struct {
	Length uint32
	Type   int32
	Body   []byte
}

// New creates a frame with a consistent length field
func New(typ int32, body []byte) Frame {
	return Frame{
		Length: uint32(HeaderSize + len(body)),
		Type:   typ,
		Body:   body,
	}
}

// Bytes encodes the frame into its wire representation
func (f Frame) Bytes() []byte {
	return Encode(f.Type, f.Body)
}

func (f Frame) String() string {
	return fmt.Sprintf("{Length: %d, Type: %d, Body: %d bytes}", f.Length, f.Type, len(f.Body))
}

// --------------------------------------------------------------------------
// Codec
// --------------------------------------------------------------------------

// Encode writes header and body into one contiguous buffer, so a single
// write puts the whole frame on the wire.
func Encode(typ int32, body []byte) []byte {
	buf := make([]byte, HeaderSize+len(body))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(HeaderSize+len(body)))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(typ))
	copy(buf[HeaderSize:], body)
	return buf
}

// DecodeHeader parses a header and validates the declared length against maxSize
func DecodeHeader(header []byte, maxSize uint32) (length uint32, typ int32, err error) {
	if len(header) < HeaderSize {
		return 0, 0, &common.ProtocolError{Length: int64(len(header)), Max: maxSize, Reason: "short header"}
	}

	length = binary.LittleEndian.Uint32(header[0:4])
	typ = int32(binary.LittleEndian.Uint32(header[4:8]))

	// a negative length written by a signed peer shows up as a huge uint32
	if int32(length) < 0 {
		return 0, 0, &common.ProtocolError{Length: int64(int32(length)), Max: maxSize, Reason: "negative length"}
	}
	if length < HeaderSize {
		return 0, 0, &common.ProtocolError{Length: int64(length), Max: maxSize, Reason: "length smaller than header"}
	}
	if length > maxSize {
		return 0, 0, &common.ProtocolError{Length: int64(length), Max: maxSize, Reason: "frame too large"}
	}
	return length, typ, nil
}

// Decode builds a frame from a header and its body
func Decode(header, body []byte, maxSize uint32) (Frame, error) {
	length, typ, err := DecodeHeader(header, maxSize)
	if err != nil {
		return Frame{}, err
	}
	if int(length)-HeaderSize != len(body) {
		return Frame{}, &common.ProtocolError{Length: int64(length), Max: maxSize, Reason: fmt.Sprintf("body has %d bytes", len(body))}
	}
	return Frame{Length: length, Type: typ, Body: body}, nil
}
