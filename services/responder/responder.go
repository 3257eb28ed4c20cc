// Package responder serves the latest readings over HTTP. A probe that has
// not completed a cycle yet answers 204 No Content rather than zeroes.
package responder

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"cobitis-go/services/state"
	"cobitis-go/x/logx"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
)

const Component = "responder"

type measurementResponse struct {
	Timestamp   int64   `json:"timestamp"`
	Temperature float32 `json:"temperature"`
	TDS         int     `json:"tds"`
}

type statusResponse struct {
	SignalQuality string `json:"signal_quality"`
	Level         int    `json:"level"`
	RSSI          int    `json:"rssi"`
}

type Server struct {
	log     *slog.Logger
	address string
	state   state.Reader
	origins []string
}

func NewServer(log *slog.Logger, address string, r state.Reader, origins []string) *Server {
	return &Server{
		log:     log.With(slog.String("svc", Component)),
		address: address,
		state:   r,
		origins: origins,
	}
}

// Handler returns the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/", s.handleMeasurement)
	r.Get("/status", s.handleStatus)
	r.Get("/live", s.handleLive)

	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(r)
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.address,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("starting http server", slog.String("address", s.address))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		s.log.Error("http server error", logx.Err(err))
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

func (s *Server) handleMeasurement(w http.ResponseWriter, _ *http.Request) {
	m, ok := s.state.LatestMeasurement()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, measurementResponse{
		Timestamp:   m.Timestamp,
		Temperature: m.Temperature,
		TDS:         int(m.TDS),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	l, ok := s.state.LatestLinkStatus()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, statusResponse{
		SignalQuality: l.SignalQuality.String(),
		Level:         l.SignalQuality.Level(),
		RSSI:          l.RSSI,
	})
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("write response", logx.Err(err))
	}
}
