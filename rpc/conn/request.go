package conn

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/rconn/rpc/common"
	"github.com/ValentinKolb/rconn/rpc/frame"
	"github.com/ValentinKolb/rconn/rpc/registry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"time"
)

// Request sends a frame and returns the handle that completes with the response.
//
// The request is registered under the key derived from typ (see WithResponseKey) before
// the frame is written, so even an immediate response finds it. The handle completes
// exactly once: with the response, a common.TimeoutError after timeout, or an error
// matching common.ErrConnectionReset if the connection is torn down first.
// A timeout <= 0 uses the configured RequestTimeout.
//
// If the connection is Closed the call fails right away with a common.ConnectionError.
// If it is Connecting the call waits up to ConnectWait (and at most until ctx is done)
// for the outcome of the connect attempt.
func (c *Connection) Request(ctx context.Context, typ int32, body []byte, timeout time.Duration) (*registry.Handle, error) {
	if err := c.checkSize(body); err != nil {
		return nil, err
	}

	gen, err := c.awaitConnected(ctx, "request")
	if err != nil {
		return nil, err
	}

	if timeout <= 0 {
		timeout = c.config.RequestTimeout
	}

	key := c.opts.responseKey(typ)
	h, err := c.pending.Register(key, time.Now().Add(timeout))
	if err != nil {
		return nil, err
	}

	f := frame.New(typ, body)
	err = c.exec.Submit(func() {
		if werr := c.write(gen, f); werr != nil {
			c.pending.FailHandle(key, h, werr)
		}
	})
	if err != nil {
		cerr := &common.ConnectionError{Op: "request", Endpoint: c.config.Endpoint, Err: err}
		c.pending.FailHandle(key, h, cerr)
		return nil, cerr
	}

	c.stats.requests.Inc()
	return h, nil
}

// Call is Request followed by waiting for the response. Giving up on ctx does not
// cancel the request, it still completes (or times out) in the background.
func (c *Connection) Call(ctx context.Context, typ int32, body []byte, timeout time.Duration) (frame.Frame, error) {
	ctx, span := c.opts.tracer.Start(ctx, "rconn.Call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rconn.endpoint", c.config.Endpoint),
			attribute.Int("rconn.frame.type", int(typ)),
			attribute.Int("rconn.frame.body_size", len(body)),
		),
	)
	defer span.End()

	start := time.Now()
	resp, err := c.call(ctx, typ, body, timeout)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return frame.Frame{}, err
	}

	c.stats.latency.UpdateSince(start)
	span.SetAttributes(
		attribute.Int("rconn.response.type", int(resp.Type)),
		attribute.Int("rconn.response.body_size", len(resp.Body)),
	)
	span.SetStatus(codes.Ok, "")
	return resp, nil
}

func (c *Connection) call(ctx context.Context, typ int32, body []byte, timeout time.Duration) (frame.Frame, error) {
	h, err := c.Request(ctx, typ, body, timeout)
	if err != nil {
		return frame.Frame{}, err
	}
	return h.Wait(ctx)
}

// Send writes a frame without waiting for a response (fire-and-forget).
// Write failures are reported through Callbacks.OnWriteComplete and tear the connection down.
func (c *Connection) Send(typ int32, body []byte) error {
	if err := c.checkSize(body); err != nil {
		return err
	}

	gen, err := c.awaitConnected(context.Background(), "send")
	if err != nil {
		return err
	}

	f := frame.New(typ, body)
	err = c.exec.Submit(func() {
		if werr := c.write(gen, f); werr != nil {
			Logger.Debugf("send of %v failed: %v", f, werr)
		}
	})
	if err != nil {
		return &common.ConnectionError{Op: "send", Endpoint: c.config.Endpoint, Err: err}
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// awaitConnected returns the transport generation to write on. It waits for
// connect attempts in progress, bounded by ConnectWait and ctx.
func (c *Connection) awaitConnected(ctx context.Context, op string) (uint64, error) {
	var timeout <-chan time.Time
	for {
		switch st := c.State(); st {
		case Connected:
			return c.generation.Load(), nil

		case Connecting:
			if timeout == nil {
				timer := time.NewTimer(c.config.ConnectWait)
				defer timer.Stop()
				timeout = timer.C
			}

			// the attempt may already be replaced by a newer one, the loop re-reads both
			a := c.attempt.Load()
			select {
			case <-a.ready:
			case <-timeout:
				return 0, &common.ConnectionError{
					Op:       op,
					Endpoint: c.config.Endpoint,
					Err:      fmt.Errorf("still connecting after %s: %w", c.config.ConnectWait, common.ErrNotConnected),
				}
			case <-ctx.Done():
				return 0, &common.ConnectionError{Op: op, Endpoint: c.config.Endpoint, Err: ctx.Err()}
			}

		default:
			return 0, c.notConnected(op, st)
		}
	}
}

// checkSize rejects bodies that would exceed the maximum frame size
func (c *Connection) checkSize(body []byte) error {
	length := int64(frame.HeaderSize + len(body))
	if length > int64(c.config.MaxFrameSize) {
		return &common.ProtocolError{Length: length, Max: c.config.MaxFrameSize, Reason: "outbound frame too large"}
	}
	return nil
}
