package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/bootarou/xympay-sub000/internal/application/monitor"
	"github.com/bootarou/xympay-sub000/internal/infrastructure/nodes"
	"github.com/bootarou/xympay-sub000/internal/repositories/paymentrepo"
	"github.com/bootarou/xympay-sub000/internal/server/handlers"
	"github.com/bootarou/xympay-sub000/internal/server/websocket"
	"github.com/bootarou/xympay-sub000/pkg/config"
)

type Server struct {
	Repo       paymentrepo.IPaymentRepository
	MonitorSvc *monitor.Service
	Registry   *nodes.Registry
	Cfg        *config.Config
	Logger     zerolog.Logger
	Router     *gin.Engine
	httpServer *http.Server
	WsHub      *websocket.WsHub
}

func New(
	cfg *config.Config,
	repo paymentrepo.IPaymentRepository,
	monitorSvc *monitor.Service,
	registry *nodes.Registry,
	logger zerolog.Logger,
	wsHub *websocket.WsHub,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	return &Server{
		Cfg:        cfg,
		Repo:       repo,
		MonitorSvc: monitorSvc,
		Registry:   registry,
		Logger:     logger,
		Router:     router,
		WsHub:      wsHub,
	}
}

func (s *Server) SetupRouter() {
	handler := handlers.New(
		s.Repo,
		s.MonitorSvc,
		s.Registry,
		s.WsHub,
		s.Logger,
		s.Cfg,
	)
	handler.SetupHandlers(s.Router)
}

// Run serves HTTP until the context is cancelled, then drains in-flight
// requests before returning.
func (s *Server) Run(ctx context.Context) error {
	s.SetupRouter()

	s.httpServer = &http.Server{
		Addr:         s.Cfg.Server.Host + ":" + s.Cfg.Server.Port,
		Handler:      s.Router,
		ReadTimeout:  20 * time.Second,
		WriteTimeout: 20 * time.Second,
	}

	errChan := make(chan error, 1)
	s.Logger.Info().Msgf("Starting server on %s", s.httpServer.Addr)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	s.Logger.Info().Msg("Shutdown signal received, shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.Logger.Error().Err(err).Msg("Server forced to shutdown")
		return err
	}

	s.Logger.Info().Msg("Server exited gracefully")
	return nil
}
