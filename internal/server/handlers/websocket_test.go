package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bootarou/xympay-sub000/internal/domain"
	"github.com/bootarou/xympay-sub000/internal/repositories/paymentrepo"
	"github.com/bootarou/xympay-sub000/internal/repositories/paymentrepo/memory"
	"github.com/bootarou/xympay-sub000/internal/server/handlers"
	"github.com/bootarou/xympay-sub000/internal/server/websocket"
	"github.com/bootarou/xympay-sub000/pkg/config"
)

func pendingPayment(id string) *domain.Payment {
	return &domain.Payment{
		PaymentID:        id,
		RecipientAddress: "NRECIPIENT",
		Message:          "A1B2C3D4",
		AmountMicroXYM:   1_500_000,
		Status:           domain.PaymentStatusPending,
		CreatedAt:        time.Now().Add(-time.Minute),
		ExpireAt:         time.Now().Add(time.Hour),
	}
}

func newStreamServer(t *testing.T, repo paymentrepo.IPaymentRepository, cfg config.WebSocketConfig) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := websocket.NewWsHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	handler := handlers.NewWebSocketHandler(repo, hub, cfg, zerolog.Nop())
	router := gin.New()
	router.GET("/v1/payments/:payment_id/stream", handler.HandleConnection)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv
}

func streamURL(srv *httptest.Server, paymentID string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/payments/" + paymentID + "/stream"
}

func Test_StreamOriginPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("SameOriginAllowedWhenCheckingEnabled", func(t *testing.T) {
		repo := memory.New()
		require.NoError(t, repo.Create(ctx, pendingPayment("pay-1")))
		srv := newStreamServer(t, repo, config.WebSocketConfig{CheckOrigin: true})

		header := http.Header{"Origin": {srv.URL}}
		conn, resp, err := gws.DefaultDialer.Dial(streamURL(srv, "pay-1"), header)
		require.NoError(t, err)
		resp.Body.Close()
		conn.Close()
	})

	t.Run("CrossOriginRejectedWhenCheckingEnabled", func(t *testing.T) {
		repo := memory.New()
		require.NoError(t, repo.Create(ctx, pendingPayment("pay-1")))
		srv := newStreamServer(t, repo, config.WebSocketConfig{CheckOrigin: true})

		header := http.Header{"Origin": {"http://attacker.example"}}
		_, resp, err := gws.DefaultDialer.Dial(streamURL(srv, "pay-1"), header)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("AnyOriginAllowedWhenCheckingDisabled", func(t *testing.T) {
		repo := memory.New()
		require.NoError(t, repo.Create(ctx, pendingPayment("pay-1")))
		srv := newStreamServer(t, repo, config.WebSocketConfig{CheckOrigin: false})

		header := http.Header{"Origin": {"http://attacker.example"}}
		conn, resp, err := gws.DefaultDialer.Dial(streamURL(srv, "pay-1"), header)
		require.NoError(t, err)
		resp.Body.Close()
		conn.Close()
	})
}

// settlingRepo confirms the payment right before the handler's
// post-registration re-read, reproducing a payment that settles while the
// connect is in flight.
type settlingRepo struct {
	*memory.Repository
	mu    sync.Mutex
	reads int
}

func (r *settlingRepo) GetByPaymentID(ctx context.Context, paymentID string) (*domain.Payment, error) {
	r.mu.Lock()
	r.reads++
	first := r.reads == 1
	r.mu.Unlock()

	if !first {
		match := domain.ConfirmedTransfer{
			Hash:            "HASH1",
			SenderPublicKey: "SENDERPUB",
			AmountMicroXYM:  1_500_000,
			Message:         "A1B2C3D4",
			Timestamp:       time.Now(),
		}
		if _, err := r.Repository.Confirm(ctx, paymentID, match, nil); err != nil && !errors.Is(err, domain.ErrAlreadyTerminal) {
			return nil, err
		}
	}
	return r.Repository.GetByPaymentID(ctx, paymentID)
}

func Test_StreamDeliversSettlementDuringConnect(t *testing.T) {
	ctx := context.Background()

	inner := memory.New()
	require.NoError(t, inner.Create(ctx, pendingPayment("pay-1")))
	repo := &settlingRepo{Repository: inner}
	srv := newStreamServer(t, repo, config.WebSocketConfig{})

	conn, resp, err := gws.DefaultDialer.Dial(streamURL(srv, "pay-1"), nil)
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var message struct {
		Type  string               `json:"type"`
		Event *domain.PaymentEvent `json:"event"`
	}
	require.NoError(t, conn.ReadJSON(&message))
	require.NotNil(t, message.Event)
	assert.Equal(t, "payment", message.Type)
	assert.Equal(t, "pay-1", message.Event.PaymentID)
	assert.Equal(t, domain.PaymentEventConfirmed, message.Event.Type)
	assert.Equal(t, "HASH1", message.Event.MatchedTxHash)
}

func Test_StreamPingsIdleConnections(t *testing.T) {
	ctx := context.Background()

	repo := memory.New()
	require.NoError(t, repo.Create(ctx, pendingPayment("pay-1")))
	srv := newStreamServer(t, repo, config.WebSocketConfig{PingPeriod: 50 * time.Millisecond})

	conn, resp, err := gws.DefaultDialer.Dial(streamURL(srv, "pay-1"), nil)
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()

	pings := make(chan struct{}, 4)
	conn.SetPingHandler(func(appData string) error {
		select {
		case pings <- struct{}{}:
		default:
		}
		return conn.WriteControl(gws.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-pings:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a ping from the server on an idle stream")
	}
}
