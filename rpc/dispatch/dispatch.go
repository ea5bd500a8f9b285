package dispatch

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/rconn/rpc/common"
	"github.com/ValentinKolb/rconn/rpc/frame"
	"github.com/ValentinKolb/rconn/rpc/serializer"
	"github.com/lni/dragonboat/v4/logger"
	"sync"
)

var Logger = logger.GetLogger("dispatch")

// Dispatcher handles frames that are not a response to a pending request.
// A nil reply means nothing is sent back.
type Dispatcher interface {
	Dispatch(ctx context.Context, req frame.Frame) (reply *frame.Frame, err error)
}

// HandlerFunc handles the frames of one type
type HandlerFunc func(ctx context.Context, req frame.Frame) (*frame.Frame, error)

// Dispatch lets a plain function act as a Dispatcher
func (f HandlerFunc) Dispatch(ctx context.Context, req frame.Frame) (*frame.Frame, error) {
	return f(ctx, req)
}

// Nop drops every frame
var Nop Dispatcher = HandlerFunc(func(context.Context, frame.Frame) (*frame.Frame, error) {
	return nil, nil
})

// --------------------------------------------------------------------------
// Router
// --------------------------------------------------------------------------

// Router routes frames to a handler by frame type.
// Frames of an unknown type are logged and dropped.
type Router struct {
	mu       sync.RWMutex
	handlers map[int32]HandlerFunc
}

// NewRouter creates an empty router
func NewRouter() *Router {
	return &Router{handlers: make(map[int32]HandlerFunc)}
}

// Handle registers h for frames of type typ, replacing an existing handler
func (r *Router) Handle(typ int32, h HandlerFunc) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[typ] = h
	return r
}

// Dispatch implements Dispatcher
func (r *Router) Dispatch(ctx context.Context, req frame.Frame) (*frame.Frame, error) {
	r.mu.RLock()
	h, ok := r.handlers[req.Type]
	r.mu.RUnlock()

	if !ok {
		Logger.Infof("no handler for frame type %s (%d), dropping %d bytes",
			common.PacketType(req.Type), req.Type, len(req.Body))
		return nil, nil
	}

	reply, err := h(ctx, req)
	if err != nil {
		return nil, &common.DispatchError{Type: req.Type, Err: err}
	}
	return reply, nil
}

// --------------------------------------------------------------------------
// Ping Router
// --------------------------------------------------------------------------

// NewPingRouter returns a router that answers every PING with a PONG echoing
// the ping's values. Bodies are encoded with s.
func NewPingRouter(s serializer.IBodySerializer) *Router {
	return NewRouter().Handle(int32(common.PacketTypePing), PingHandler(s))
}

// PingHandler answers a PING frame with a PONG frame
func PingHandler(s serializer.IBodySerializer) HandlerFunc {
	return func(ctx context.Context, req frame.Frame) (*frame.Frame, error) {
		var ping common.PacketPing
		if err := s.Deserialize(req.Body, &ping); err != nil {
			return nil, fmt.Errorf("invalid ping body: %w", err)
		}

		body, err := s.Serialize(common.PacketPong{Num: ping.Num, Str: ping.Str})
		if err != nil {
			return nil, fmt.Errorf("failed to encode pong: %w", err)
		}

		Logger.Debugf("ping %d answered", ping.Num)
		reply := frame.New(int32(common.PacketTypePong), body)
		return &reply, nil
	}
}

// NoticeLogger returns a handler that logs NOTICE frames, it never replies
func NoticeLogger(s serializer.IBodySerializer) HandlerFunc {
	return func(ctx context.Context, req frame.Frame) (*frame.Frame, error) {
		var notice common.PacketNotice
		if err := s.Deserialize(req.Body, &notice); err != nil {
			return nil, fmt.Errorf("invalid notice body: %w", err)
		}
		Logger.Infof("notice #%d: %s", notice.Seq, notice.Message)
		return nil, nil
	}
}
