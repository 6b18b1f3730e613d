// Package debughttp serves the optional operator endpoint: a health
// summary and the pprof handlers. It binds only when configured.
package debughttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"mensabot/pkg/logx"
)

type SubscriberCounter interface {
	Count(ctx context.Context) (int, error)
}

type ArtifactProbe interface {
	HasCurrentArtifact(today time.Time) bool
}

type Config struct {
	Addr     string
	Location *time.Location
}

type Server struct {
	cfg   Config
	subs  SubscriberCounter
	probe ArtifactProbe
	log   logx.Logger
}

func New(cfg Config, subs SubscriberCounter, probe ArtifactProbe, log logx.Logger) *Server {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Server{cfg: cfg, subs: subs, probe: probe, log: log}
}

// Run serves until ctx is done. With an empty address it returns
// immediately.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.Addr == "" {
		return nil
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealthz)
	r.Route("/debug/pprof", func(r chi.Router) {
		r.Get("/", pprof.Index)
		r.Get("/cmdline", pprof.Cmdline)
		r.Get("/profile", pprof.Profile)
		r.Get("/symbol", pprof.Symbol)
		r.Get("/trace", pprof.Trace)
		r.Get("/{name}", func(w http.ResponseWriter, req *http.Request) {
			pprof.Handler(chi.URLParam(req, "name")).ServeHTTP(w, req)
		})
	})

	srv := &http.Server{Addr: s.cfg.Addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	s.log.Info("debug server listening", logx.String("addr", s.cfg.Addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
		return ctx.Err()
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, req *http.Request) {
	type health struct {
		Status         string `json:"status"`
		Subscribers    int    `json:"subscribers"`
		ArtifactCached bool   `json:"artifact_cached"`
	}

	h := health{Status: "ok"}
	if s.subs != nil {
		n, err := s.subs.Count(req.Context())
		if err != nil {
			h.Status = "degraded"
		} else {
			h.Subscribers = n
		}
	}
	if s.probe != nil {
		h.ArtifactCached = s.probe.HasCurrentArtifact(time.Now().In(s.cfg.Location))
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h)
}
