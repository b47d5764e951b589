package http

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"leasio/internal/registry"
	"leasio/internal/service"
)

type Server struct {
	srv *http.Server
}

func NewServer(addr string, svc service.LeaseService, reg *registry.Registry) *Server {
	mux := http.NewServeMux()
	h := NewHandler(svc, reg)
	h.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	return s.srv.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
