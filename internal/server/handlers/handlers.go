package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/bootarou/xympay-sub000/internal/application/monitor"
	"github.com/bootarou/xympay-sub000/internal/infrastructure/nodes"
	"github.com/bootarou/xympay-sub000/internal/repositories/paymentrepo"
	"github.com/bootarou/xympay-sub000/internal/server/middleware"
	"github.com/bootarou/xympay-sub000/internal/server/websocket"
	"github.com/bootarou/xympay-sub000/pkg/config"
)

type Handlers struct {
	Repo       paymentrepo.IPaymentRepository
	MonitorSvc *monitor.Service
	Registry   *nodes.Registry
	WsHub      *websocket.WsHub
	Logger     zerolog.Logger
	Config     *config.Config
}

func New(
	repo paymentrepo.IPaymentRepository,
	monitorSvc *monitor.Service,
	registry *nodes.Registry,
	wsHub *websocket.WsHub,
	logger zerolog.Logger,
	config *config.Config,
) *Handlers {
	return &Handlers{
		Repo:       repo,
		MonitorSvc: monitorSvc,
		Registry:   registry,
		WsHub:      wsHub,
		Logger:     logger,
		Config:     config,
	}
}

func (h *Handlers) SetupHandlers(router *gin.Engine) {
	mw := middleware.NewMiddleware(h.Config.Security.APIKey, h.Logger)
	mw.SetupMiddleware(router)

	paymentHandler := NewPaymentHandler(h.Repo, h.MonitorSvc, h.Config, h.Logger)
	wsHandler := NewWebSocketHandler(h.Repo, h.WsHub, h.Config.WebSocket, h.Logger)
	nodesHandler := NewNodesHandler(h.Registry)
	healthHandler := NewHealthHandler()

	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	v1 := router.Group("/v1")
	{
		payments := v1.Group("/payments")
		{
			payments.POST("", mw.APIKeyMiddleware(), paymentHandler.CreatePayment)
			payments.GET("/:payment_id", paymentHandler.GetPaymentStatus)
			payments.POST("/:payment_id/cancel", mw.APIKeyMiddleware(), paymentHandler.CancelPayment)
			payments.GET("/:payment_id/stream", wsHandler.HandleConnection)
		}

		nodeRoutes := v1.Group("/nodes")
		{
			nodeRoutes.GET("/health", nodesHandler.NodesHealth)
			nodeRoutes.GET("/stats", nodesHandler.NodesStats)
		}
	}
}
