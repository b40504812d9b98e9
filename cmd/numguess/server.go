package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/numguess/metrics"
	"github.com/m-mizutani/numguess/trace"
	"github.com/prometheus/client_golang/prometheus"
)

type serverOption func(*server)

func withAddr(addr string) serverOption {
	return func(s *server) {
		s.addr = addr
	}
}

func withTraces(repo *trace.FileRepository) serverOption {
	return func(s *server) {
		s.traces = repo
	}
}

func withResultDir(dir string) serverOption {
	return func(s *server) {
		s.resultDir = dir
	}
}

func withGatherer(g prometheus.Gatherer) serverOption {
	return func(s *server) {
		s.gatherer = g
	}
}

// server exposes metrics of a running experiment, saved traces and saved results over HTTP. Routes of sources
// that are not configured are not registered.
type server struct {
	addr      string
	traces    *trace.FileRepository
	resultDir string
	gatherer  prometheus.Gatherer
	mux       *http.ServeMux
}

func newServer(opts ...serverOption) *server {
	s := &server{
		addr: ":18901",
		mux:  http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *server) setupRoutes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", metrics.Handler(s.gatherer))
	}
	if s.traces != nil {
		s.mux.HandleFunc("GET /api/traces", s.handleListTraces)
		s.mux.HandleFunc("GET /api/traces/{id}", s.handleGetTrace)
	}
	if s.resultDir != "" {
		s.mux.HandleFunc("GET /api/results", s.handleListResults)
	}
}

func (s *server) handler() http.Handler {
	return s.mux
}

// start serves until ctx is done.
func (s *server) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return goerr.Wrap(err, "failed to listen", goerr.V("addr", s.addr))
	}

	addr := listener.Addr().String()
	slog.Info("starting server", slog.String("addr", addr), slog.String("url", "http://"+addr))

	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return goerr.Wrap(err, "server error")
	}

	return nil
}
