package websocket

import (
	"context"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/bootarou/xympay-sub000/internal/domain"
)

// WsHub fans terminal payment events out to the websocket connections
// subscribed to each payment. Connections are keyed by payment id, so a
// buyer can keep several tabs open on the same payment and each gets the
// event.
//
// The hub only affects delivery. A payment with zero subscribers still
// settles normally; a subscriber that drops simply misses the push and
// falls back to polling the status endpoint.
type WsHub struct {
	Clients    map[string]map[*websocket.Conn]bool
	Broadcast  chan WsMessage
	Register   chan *WsClient
	Unregister chan *WsClient
	Logger     zerolog.Logger
}

type WsClient struct {
	PaymentID string
	Conn      *websocket.Conn
	// Ready, when non-nil, is closed once the hub has recorded the
	// subscription, so the registering handler can order work after it.
	Ready chan struct{}
}

type WsMessage struct {
	Type  string               `json:"type"`
	Event *domain.PaymentEvent `json:"event,omitempty"`
}

func NewWsHub(logger zerolog.Logger) *WsHub {
	return &WsHub{
		Clients:    make(map[string]map[*websocket.Conn]bool),
		Broadcast:  make(chan WsMessage, 100),
		Register:   make(chan *WsClient, 100),
		Unregister: make(chan *WsClient, 100),
		Logger:     logger,
	}
}

// Publish queues a terminal payment event for delivery. Satisfies the
// monitoring service's notifier without the hub importing it.
func (h *WsHub) Publish(event domain.PaymentEvent) {
	h.Broadcast <- WsMessage{
		Type:  "payment",
		Event: &event,
	}
}

func (h *WsHub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()

		case client := <-h.Register:
			if h.Clients[client.PaymentID] == nil {
				h.Clients[client.PaymentID] = make(map[*websocket.Conn]bool)
			}
			h.Clients[client.PaymentID][client.Conn] = true
			if client.Ready != nil {
				close(client.Ready)
			}
			h.Logger.Info().
				Str("payment_id", client.PaymentID).
				Int("connection_count", len(h.Clients[client.PaymentID])).
				Msg("WebSocket client registered successfully")

		case client := <-h.Unregister:
			if clients, ok := h.Clients[client.PaymentID]; ok {
				delete(clients, client.Conn)
				h.Logger.Info().
					Str("payment_id", client.PaymentID).
					Int("connection_count", len(clients)).
					Msg("WebSocket client unregistered")
				if len(clients) == 0 {
					delete(h.Clients, client.PaymentID)
				}
				client.Conn.Close()
			}

		case message := <-h.Broadcast:
			h.deliver(message)
		}
	}
}

func (h *WsHub) deliver(message WsMessage) {
	if message.Event == nil {
		return
	}
	paymentID := message.Event.PaymentID

	clients, ok := h.Clients[paymentID]
	if !ok || len(clients) == 0 {
		h.Logger.Debug().
			Str("payment_id", paymentID).
			Str("event_type", string(message.Event.Type)).
			Msg("No clients subscribed to payment, event dropped")
		return
	}

	h.Logger.Info().
		Str("payment_id", paymentID).
		Str("event_type", string(message.Event.Type)).
		Int("client_count", len(clients)).
		Msg("Broadcasting payment event")

	for conn := range clients {
		if err := conn.WriteJSON(message); err != nil {
			h.Logger.Err(err).
				Str("payment_id", paymentID).
				Str("event_type", string(message.Event.Type)).
				Msg("Failed to send WebSocket message")
			conn.Close()
			delete(clients, conn)
		}
	}
	if len(clients) == 0 {
		delete(h.Clients, paymentID)
	}
}

func (h *WsHub) closeAll() {
	for paymentID, clients := range h.Clients {
		for conn := range clients {
			conn.Close()
		}
		delete(h.Clients, paymentID)
	}
}
