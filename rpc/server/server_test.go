package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"github.com/ValentinKolb/rconn/rpc/common"
	"github.com/ValentinKolb/rconn/rpc/dispatch"
	"github.com/ValentinKolb/rconn/rpc/frame"
	"github.com/ValentinKolb/rconn/rpc/serializer"
	"github.com/ValentinKolb/rconn/rpc/transport/tcp"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

func startServer(t *testing.T, d dispatch.Dispatcher) *Server {
	t.Helper()
	s := NewServer(common.ServerConfig{Endpoint: "127.0.0.1:0"}, tcp.NewServerConnector(), d)
	if err := s.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func dial(t *testing.T, s *Server) net.Conn {
	t.Helper()
	c, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// readFrame reads one frame with a deadline
func readFrame(t *testing.T, c net.Conn) frame.Frame {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	header := make([]byte, frame.HeaderSize)
	if _, err := io.ReadFull(c, header); err != nil {
		t.Fatalf("failed to read header: %v", err)
	}
	length, _, err := frame.DecodeHeader(header, frame.DefaultMaxFrameSize)
	if err != nil {
		t.Fatal(err)
	}
	body := make([]byte, length-frame.HeaderSize)
	if _, err := io.ReadFull(c, body); err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	f, err := frame.Decode(header, body, frame.DefaultMaxFrameSize)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

// waitFor polls cond until it is true or a second passed
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	for deadline := time.Now().Add(time.Second); time.Now().Before(deadline); time.Sleep(5 * time.Millisecond) {
		if cond() {
			return
		}
	}
	t.Fatalf("timed out waiting for %s", what)
}

// TestPingPong sends a raw PING frame and expects the PONG echo
func TestPingPong(t *testing.T) {
	json := serializer.NewJSONSerializer()
	s := startServer(t, dispatch.NewPingRouter(json))
	c := dial(t, s)

	body := []byte(`{"Num":3,"Str":"test test"}`)
	if _, err := c.Write(frame.Encode(int32(common.PacketTypePing), body)); err != nil {
		t.Fatal(err)
	}

	f := readFrame(t, c)
	if f.Type != int32(common.PacketTypePong) {
		t.Fatalf("expected PONG, got type %d", f.Type)
	}
	var pong common.PacketPong
	if err := json.Deserialize(f.Body, &pong); err != nil {
		t.Fatal(err)
	}
	if pong.Num != 3 || pong.Str != "test test" {
		t.Errorf("unexpected pong %+v", pong)
	}
}

// TestRepliesInArrivalOrder tests that a session with one worker answers in arrival order
func TestRepliesInArrivalOrder(t *testing.T) {
	json := serializer.NewJSONSerializer()
	s := startServer(t, dispatch.NewPingRouter(json))
	c := dial(t, s)

	const n = 20
	var stream []byte
	for i := 1; i <= n; i++ {
		body, err := json.Serialize(common.PacketPing{Num: i})
		if err != nil {
			t.Fatal(err)
		}
		stream = append(stream, frame.Encode(int32(common.PacketTypePing), body)...)
	}
	if _, err := c.Write(stream); err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= n; i++ {
		var pong common.PacketPong
		if err := json.Deserialize(readFrame(t, c).Body, &pong); err != nil {
			t.Fatal(err)
		}
		if pong.Num != i {
			t.Fatalf("expected pong %d, got %d", i, pong.Num)
		}
	}
}

// TestPartialWrites sends a frame byte by byte
func TestPartialWrites(t *testing.T) {
	s := startServer(t, dispatch.NewPingRouter(serializer.NewJSONSerializer()))
	c := dial(t, s)

	for _, b := range frame.Encode(int32(common.PacketTypePing), []byte(`{"Num":1,"Str":"x"}`)) {
		if _, err := c.Write([]byte{b}); err != nil {
			t.Fatal(err)
		}
	}

	if f := readFrame(t, c); f.Type != int32(common.PacketTypePong) {
		t.Fatalf("expected PONG, got type %d", f.Type)
	}
}

// TestBroadcast tests that server initiated frames reach every session
func TestBroadcast(t *testing.T) {
	s := startServer(t, nil)
	a := dial(t, s)
	b := dial(t, s)

	waitFor(t, "two sessions", func() bool { return len(s.Sessions()) == 2 })

	if n := s.Broadcast(int32(common.PacketTypeNotice), []byte("hello")); n != 2 {
		t.Fatalf("expected 2 sessions reached, got %d", n)
	}

	for _, c := range []net.Conn{a, b} {
		f := readFrame(t, c)
		if f.Type != int32(common.PacketTypeNotice) || string(f.Body) != "hello" {
			t.Errorf("unexpected frame %v", f)
		}
	}
}

// TestProtocolErrorClosesSession tests that an oversized header ends the session
func TestProtocolErrorClosesSession(t *testing.T) {
	s := startServer(t, nil)
	c := dial(t, s)

	header := make([]byte, frame.HeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], frame.DefaultMaxFrameSize+1)
	binary.LittleEndian.PutUint32(header[4:8], 1)
	if _, err := c.Write(header); err != nil {
		t.Fatal(err)
	}

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := c.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("expected the server to close the session, got %v", err)
	}
	waitFor(t, "session removal", func() bool { return len(s.Sessions()) == 0 })

	var buf bytes.Buffer
	s.WriteMetrics(&buf)
	if !strings.Contains(buf.String(), "rconn_server_protocol_errors_total 1") {
		t.Errorf("protocol error not counted:\n%s", buf.String())
	}
}

// TestDispatchErrorKeepsSession tests that a failing dispatcher does not close the session
func TestDispatchErrorKeepsSession(t *testing.T) {
	r := dispatch.NewPingRouter(serializer.NewJSONSerializer())
	s := startServer(t, r)
	c := dial(t, s)

	// invalid ping body, then a valid one
	_, _ = c.Write(frame.Encode(int32(common.PacketTypePing), []byte("{")))
	_, _ = c.Write(frame.Encode(int32(common.PacketTypePing), []byte(`{"Num":2}`)))

	if f := readFrame(t, c); f.Type != int32(common.PacketTypePong) {
		t.Fatalf("expected PONG, got type %d", f.Type)
	}
}

// TestSendTo tests writing to a single session
func TestSendTo(t *testing.T) {
	s := startServer(t, nil)
	c := dial(t, s)

	waitFor(t, "session", func() bool { return len(s.Sessions()) == 1 })
	id := s.Sessions()[0].ID

	if err := s.SendTo(id, 3, []byte("direct")); err != nil {
		t.Fatal(err)
	}
	if f := readFrame(t, c); string(f.Body) != "direct" {
		t.Errorf("unexpected frame %v", f)
	}
	if err := s.SendTo(id+100, 3, nil); err == nil {
		t.Error("expected an error for an unknown session")
	}
}

// TestClose tests that Close ends all sessions and a second Start fails
func TestClose(t *testing.T) {
	s := NewServer(common.ServerConfig{Endpoint: "127.0.0.1:0"}, tcp.NewServerConnector(), nil)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	c, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	waitFor(t, "session", func() bool { return len(s.Sessions()) == 1 })

	done := make(chan struct{})
	go func() {
		_ = s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("close did not return")
	}

	_ = c.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := c.Read(make([]byte, 1)); err == nil {
		t.Error("expected the session to be closed")
	}
	if err := s.Start(); err != ErrServerClosed {
		t.Errorf("expected ErrServerClosed, got %v", err)
	}
}

// TestHandlerContextCancelledOnClose tests that dispatchers see the server shutdown
func TestHandlerContextCancelledOnClose(t *testing.T) {
	entered := make(chan struct{})
	d := dispatch.HandlerFunc(func(ctx context.Context, f frame.Frame) (*frame.Frame, error) {
		close(entered)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	s := NewServer(common.ServerConfig{Endpoint: "127.0.0.1:0"}, tcp.NewServerConnector(), d)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	c, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	_, _ = c.Write(frame.Encode(1, nil))

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher was not called")
	}

	done := make(chan struct{})
	go func() {
		_ = s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("close waited for a blocked dispatcher forever")
	}
}
