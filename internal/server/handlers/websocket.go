package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	gws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/bootarou/xympay-sub000/internal/domain"
	"github.com/bootarou/xympay-sub000/internal/repositories/paymentrepo"
	"github.com/bootarou/xympay-sub000/internal/server/websocket"
	"github.com/bootarou/xympay-sub000/pkg/config"
)

const (
	defaultPingPeriod = 54 * time.Second
	controlWriteWait  = 10 * time.Second
)

// WebSocketHandler upgrades status-stream requests and subscribes them to
// their payment's terminal event.
type WebSocketHandler struct {
	repo       paymentrepo.IPaymentRepository
	wsHub      *websocket.WsHub
	upgrader   gws.Upgrader
	pingPeriod time.Duration
	logger     zerolog.Logger
}

func NewWebSocketHandler(repo paymentrepo.IPaymentRepository, wsHub *websocket.WsHub, cfg config.WebSocketConfig, logger zerolog.Logger) *WebSocketHandler {
	readBuffer := cfg.ReadBufferSize
	if readBuffer <= 0 {
		readBuffer = 1024
	}
	writeBuffer := cfg.WriteBufferSize
	if writeBuffer <= 0 {
		writeBuffer = 1024
	}
	pingPeriod := cfg.PingPeriod
	if pingPeriod <= 0 {
		pingPeriod = defaultPingPeriod
	}

	upgrader := gws.Upgrader{
		ReadBufferSize:  readBuffer,
		WriteBufferSize: writeBuffer,
	}
	if !cfg.CheckOrigin {
		// Origin checking disabled: accept upgrades from anywhere. When
		// enabled, CheckOrigin stays nil and the upgrader falls back to
		// its same-origin default.
		upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}

	return &WebSocketHandler{
		repo:       repo,
		wsHub:      wsHub,
		upgrader:   upgrader,
		pingPeriod: pingPeriod,
		logger:     logger,
	}
}

func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	paymentID := c.Param("payment_id")

	payment, err := h.repo.GetByPaymentID(c.Request.Context(), paymentID)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
			return
		}
		h.logger.Error().Err(err).Str("payment_id", paymentID).Msg("Failed to load payment for stream")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load payment"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error().Err(err).Str("payment_id", paymentID).Msg("Failed to upgrade WebSocket connection")
		return
	}

	// A settled payment gets its event right away and the stream closes;
	// there is nothing further to wait for.
	if payment.Status.IsTerminal() {
		event := domain.EventFromPayment(payment)
		if err := conn.WriteJSON(websocket.WsMessage{Type: "payment", Event: &event}); err != nil {
			h.logger.Err(err).Str("payment_id", paymentID).Msg("Failed to deliver terminal event on connect")
		}
		conn.Close()
		return
	}

	client := &websocket.WsClient{
		PaymentID: paymentID,
		Conn:      conn,
		Ready:     make(chan struct{}),
	}
	h.wsHub.Register <- client
	select {
	case <-client.Ready:
	case <-time.After(5 * time.Second):
	}

	// The payment may have settled between the status read above and the
	// registration; its session publishes exactly once, so an event from
	// that window never reached this subscriber. Re-check and republish
	// through the hub, which serializes all writes on the connection. A
	// duplicate of the same terminal event in the narrow overlap is
	// harmless, the client stops at the first one.
	if current, err := h.repo.GetByPaymentID(c.Request.Context(), paymentID); err == nil && current.Status.IsTerminal() {
		h.wsHub.Publish(domain.EventFromPayment(current))
	}

	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(h.pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(gws.PingMessage, nil, time.Now().Add(controlWriteWait)); err != nil {
					return
				}
			}
		}
	}()

	// Hold the connection open; clients do not send anything meaningful, so
	// the read loop exists only to notice the disconnect, with the read
	// deadline reaping peers that stop answering pings.
	go func() {
		defer close(done)
		defer func() {
			h.wsHub.Unregister <- client
		}()

		pongWait := h.pingPeriod * 10 / 9
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if gws.IsUnexpectedCloseError(err, gws.CloseGoingAway, gws.CloseNormalClosure, gws.CloseAbnormalClosure) {
					h.logger.Debug().Err(err).Str("payment_id", paymentID).Msg("WebSocket closed unexpectedly")
				}
				return
			}
		}
	}()
}
