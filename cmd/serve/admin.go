package serve

import (
	"encoding/json"
	"github.com/ValentinKolb/rconn/rpc/server"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"net/http"
)

// NewAdminRouter returns the admin HTTP handler of a frame server:
//
//	GET /healthz   plain "OK"
//	GET /metrics   Prometheus text format
//	GET /sessions  connected sessions as JSON
func NewAdminRouter(serv *server.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if serv.Addr() == nil {
			http.Error(w, "not listening", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		serv.WriteMetrics(w)
	})

	r.Get("/sessions", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(serv.Sessions()); err != nil {
			Logger.Errorf("failed to encode sessions: %v", err)
		}
	})

	return r
}
