package client

import (
	"context"
	"github.com/ValentinKolb/rconn/rpc/common"
	"github.com/ValentinKolb/rconn/rpc/conn"
	"github.com/ValentinKolb/rconn/rpc/dispatch"
	"github.com/ValentinKolb/rconn/rpc/serializer"
	"github.com/ValentinKolb/rconn/rpc/server"
	"github.com/ValentinKolb/rconn/rpc/transport/tcp"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// setup starts a ping server and fills the package configuration
func setup(t *testing.T) *server.Server {
	t.Helper()

	bodySerializer = serializer.NewJSONSerializer()
	connector = tcp.NewClientConnector()

	s := server.NewServer(common.ServerConfig{Endpoint: "127.0.0.1:0"}, tcp.NewServerConnector(),
		dispatch.NewPingRouter(bodySerializer))
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })

	clientConfig = common.ClientConfig{
		Endpoint:    s.Addr().String(),
		DialTimeout: time.Second,
		Reconnect:   common.ReconnectConf{Enabled: true},
	}.WithDefaults()
	return s
}

func TestPing(t *testing.T) {
	setup(t)

	c, stop, err := dial(context.Background(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer stop()

	pong, err := ping(context.Background(), c, 7, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if pong.Num != 7 || pong.Str != "hello" {
		t.Errorf("unexpected pong %+v", pong)
	}
}

func TestDialFailure(t *testing.T) {
	s := setup(t)
	_ = s.Close()
	clientConfig.Reconnect.Enabled = false

	if _, _, err := dial(context.Background(), nil, nil); err == nil {
		t.Fatal("expected dial to fail")
	}
}

func TestBenchmark(t *testing.T) {
	setup(t)

	var conns []*conn.Connection
	for i := 0; i < 3; i++ {
		c, stop, err := dial(context.Background(), nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		defer stop()
		conns = append(conns, c)
	}

	r := benchmark(context.Background(), conns, 100*time.Millisecond, "xxxx")
	if r.ops == 0 {
		t.Fatal("expected some requests")
	}
	if r.failed != 0 {
		t.Errorf("expected no failures, got %d", r.failed)
	}
	if r.latency.Count() != r.ops {
		t.Errorf("timer counted %d, expected %d", r.latency.Count(), r.ops)
	}

	path := filepath.Join(t.TempDir(), "perf.csv")
	if err := writeResultToCSV(path, r); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Split(strings.TrimSpace(string(data)), "\n"); len(lines) != 2 {
		t.Errorf("expected header and one row, got %d lines", len(lines))
	}
}
