package frame

import (
	"errors"
	"github.com/ValentinKolb/rconn/rpc/common"
	"github.com/eapache/queue"
	"io"
)

// ReadBufferSize is the size of the scratch buffer used by Run for a single Read call
const ReadBufferSize = 16 * 1024

// ErrReaderStopped is returned by Feed after the reader stopped
var ErrReaderStopped = errors.New("frame reader stopped")

// State is the state of the incremental frame reader
type State int

const (
	AwaitingHeader State = iota
	AwaitingBody
	Stopped
)

func (s State) String() string {
	switch s {
	case AwaitingHeader:
		return "AwaitingHeader"
	case AwaitingBody:
		return "AwaitingBody"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Handler receives the events of Reader.Run
type Handler interface {
	// OnFrame is called for every complete frame, in wire order
	OnFrame(f Frame)
	// OnClosed is called once when the remote side closed the stream in order
	OnClosed()
	// OnError is called once with a *common.ProtocolError or a *common.ConnectionError
	OnError(err error)
}

// Reader is an incremental state machine turning arbitrary chunks of a byte stream
// into complete frames. A Reader belongs to exactly one transport instance and is
// not reused after a reconnect.
//
// Reader is not safe for concurrent use.
type Reader struct {
	maxSize uint32
	state   State
	err     error

	header   [HeaderSize]byte
	body     []byte
	received int
	typ      int32
	length   uint32

	// completed frames not yet taken by Next
	frames *queue.Queue
}

// NewReader creates a reader that rejects frames larger than maxSize
func NewReader(maxSize uint32) *Reader {
	if maxSize == 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &Reader{
		maxSize: maxSize,
		state:   AwaitingHeader,
		frames:  queue.New(),
	}
}

// State returns the current state
func (r *Reader) State() State {
	return r.state
}

// Err returns the error that stopped the reader, if any
func (r *Reader) Err() error {
	return r.err
}

// Pending returns the number of completed frames waiting to be taken with Next
func (r *Reader) Pending() int {
	return r.frames.Length()
}

// Next returns the oldest completed frame
func (r *Reader) Next() (Frame, bool) {
	if r.frames.Length() == 0 {
		return Frame{}, false
	}
	return r.frames.Remove().(Frame), true
}

// Feed consumes the next chunk of the stream. Chunk boundaries do not matter:
// the same byte sequence always yields the same frames.
// On a protocol violation the reader stops and the error is returned; frames
// completed before the bad header are still available through Next.
func (r *Reader) Feed(p []byte) error {
	if r.state == Stopped {
		if r.err != nil {
			return r.err
		}
		return ErrReaderStopped
	}

	for len(p) > 0 {
		switch r.state {
		case AwaitingHeader:
			n := copy(r.header[r.received:], p)
			r.received += n
			p = p[n:]

			if r.received < HeaderSize {
				continue
			}

			length, typ, err := DecodeHeader(r.header[:], r.maxSize)
			if err != nil {
				r.stop(err)
				return err
			}

			r.length = length
			r.typ = typ
			r.received = 0

			if length == HeaderSize {
				r.emit([]byte{})
				continue
			}

			r.body = make([]byte, length-HeaderSize)
			r.state = AwaitingBody

		case AwaitingBody:
			n := copy(r.body[r.received:], p)
			r.received += n
			p = p[n:]

			if r.received == len(r.body) {
				r.emit(r.body)
			}
		}
	}
	return nil
}

// Stop stops the reader, further calls to Feed fail
func (r *Reader) Stop() {
	r.stop(nil)
}

// emit queues a complete frame and resets the reader to AwaitingHeader
func (r *Reader) emit(body []byte) {
	r.frames.Add(Frame{Length: r.length, Type: r.typ, Body: body})
	r.body = nil
	r.received = 0
	r.state = AwaitingHeader
}

func (r *Reader) stop(err error) {
	r.state = Stopped
	r.err = err
	r.body = nil
}

// --------------------------------------------------------------------------
// Read loop
// --------------------------------------------------------------------------

// Run reads src until it fails and reports every event to h. It returns after
// exactly one of OnClosed or OnError was called. A partial frame is never reported.
func (r *Reader) Run(src io.Reader, h Handler) {
	buf := make([]byte, ReadBufferSize)

	for {
		n, err := src.Read(buf)

		if n > 0 {
			ferr := r.Feed(buf[:n])

			// frames completed before a protocol violation are still valid
			for f, ok := r.Next(); ok; f, ok = r.Next() {
				h.OnFrame(f)
			}

			if ferr != nil {
				h.OnError(ferr)
				return
			}
		}

		if err == nil {
			continue
		}

		r.stop(err)
		if errors.Is(err, io.EOF) {
			h.OnClosed()
		} else {
			h.OnError(&common.ConnectionError{Op: "read", Err: err})
		}
		return
	}
}
