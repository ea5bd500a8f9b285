package serve

import (
	"encoding/json"
	"github.com/ValentinKolb/rconn/rpc/common"
	"github.com/ValentinKolb/rconn/rpc/server"
	"github.com/ValentinKolb/rconn/rpc/transport/tcp"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestAdminRouter(t *testing.T) {
	serv := server.NewServer(common.ServerConfig{Endpoint: "127.0.0.1:0"}, tcp.NewServerConnector(), nil)
	r := NewAdminRouter(serv)

	// not started yet
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 before Start, got %d", rec.Code)
	}

	if err := serv.Start(); err != nil {
		t.Fatal(err)
	}
	defer serv.Close()

	conn, err := net.Dial("tcp", serv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	t.Run("healthz", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
		if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
			t.Errorf("unexpected response %d %q", rec.Code, rec.Body.String())
		}
	})

	t.Run("sessions", func(t *testing.T) {
		var sessions []server.SessionInfo
		for deadline := time.Now().Add(time.Second); time.Now().Before(deadline); time.Sleep(5 * time.Millisecond) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest("GET", "/sessions", nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("unexpected status %d", rec.Code)
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &sessions); err != nil {
				t.Fatal(err)
			}
			if len(sessions) == 1 {
				break
			}
		}
		if len(sessions) != 1 {
			t.Fatalf("expected one session, got %d", len(sessions))
		}
		if sessions[0].Remote != conn.LocalAddr().String() {
			t.Errorf("expected remote %s, got %s", conn.LocalAddr(), sessions[0].Remote)
		}
	})

	t.Run("metrics", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
		if !strings.Contains(rec.Body.String(), "rconn_server_sessions_accepted_total 1") {
			t.Errorf("unexpected metrics:\n%s", rec.Body.String())
		}
	})

	t.Run("unknown route", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest("GET", "/nope", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}
