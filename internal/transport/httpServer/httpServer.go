package httpServer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"eventsCatalog/internal/config"
	"eventsCatalog/internal/transport/httpServer/routers"
	"eventsCatalog/internal/utils/logger/sl"
)

type HttpServer struct {
	log    *slog.Logger
	server *http.Server
}

func NewHttpServer(log *slog.Logger, router *routers.Router, cfg config.HttpServerConfig) *HttpServer {
	return &HttpServer{
		log: log,
		server: &http.Server{
			Addr:              net.JoinHostPort(cfg.Address, cfg.Port),
			Handler:           router.Handler(),
			ReadHeaderTimeout: cfg.Timeout,
			IdleTimeout:       4 * cfg.Timeout,
		},
	}
}

// Listen serves until Shutdown.
func (s *HttpServer) Listen() {
	op := "httpServer.Listen()"
	log := s.log.With(slog.String("op", op))

	log.Info("http server started", slog.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("http server stopped", sl.Err(err))
	}
}

func (s *HttpServer) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("httpServer.Shutdown(): %w", err)
	}
	return nil
}
