package infra

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Progress is the body of GET /progress.
type Progress struct {
	Total     int   `json:"total"`
	Finalized int32 `json:"finalized"`
	Aborted   int32 `json:"aborted"`
	Pending   int   `json:"pending"`
}

func progressOf(total int, m *MetricInstance) Progress {
	p := Progress{
		Total:     total,
		Finalized: m.Finalized(),
		Aborted:   m.Aborted(),
	}
	p.Pending = total - int(p.Finalized) - int(p.Aborted)
	return p
}

// NewAdminHandler serves the driver metrics and progress.
func NewAdminHandler(total int, m *MetricInstance) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/progress", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(progressOf(total, m)); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	r.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))

	return r
}

type AdminServer struct {
	server *http.Server
	logger *log.Logger
}

func NewAdminServer(addr string, handler http.Handler, logger *log.Logger) *AdminServer {
	return &AdminServer{
		server: &http.Server{Addr: addr, Handler: handler},
		logger: logger,
	}
}

func (s *AdminServer) StartAsync() {
	go func() {
		s.logger.Infof("Admin server listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("Admin server stopped: %v", err)
		}
	}()
}

func (s *AdminServer) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warnf("Fail to shut down admin server: %v", err)
	}
}
