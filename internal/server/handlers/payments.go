package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bootarou/xympay-sub000/internal/application/monitor"
	"github.com/bootarou/xympay-sub000/internal/domain"
	"github.com/bootarou/xympay-sub000/internal/repositories/paymentrepo"
	"github.com/bootarou/xympay-sub000/pkg/config"
	"github.com/bootarou/xympay-sub000/pkg/shortid"
)

type PaymentHandler struct {
	repo       paymentrepo.IPaymentRepository
	monitorSvc *monitor.Service
	cfg        *config.Config
	logger     zerolog.Logger
}

func NewPaymentHandler(repo paymentrepo.IPaymentRepository, monitorSvc *monitor.Service, cfg *config.Config, logger zerolog.Logger) *PaymentHandler {
	return &PaymentHandler{
		repo:       repo,
		monitorSvc: monitorSvc,
		cfg:        cfg,
		logger:     logger,
	}
}

type CreatePaymentRequest struct {
	RecipientAddress string `json:"recipient_address" binding:"required"`
	AmountMicroXYM   uint64 `json:"amount_micro_xym" binding:"required,gt=0"`
	ProductID        string `json:"product_id"`
}

type CreatePaymentResponse struct {
	PaymentID        string    `json:"payment_id"`
	RecipientAddress string    `json:"recipient_address"`
	Message          string    `json:"message"`
	AmountMicroXYM   uint64    `json:"amount_micro_xym"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	ExpireAt         time.Time `json:"expire_at"`
	RemainingSeconds int64     `json:"remaining_seconds"`
}

// CreatePayment opens a payment window: a fresh reference message the buyer
// must attach to the transfer, a fixed expiry, and a monitoring session.
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := time.Now()
	payment := &domain.Payment{
		PaymentID:        uuid.New().String(),
		RecipientAddress: req.RecipientAddress,
		Message:          shortid.String(shortid.CharsetUpperAlphaNumeric, h.cfg.Payment.MessageLength),
		AmountMicroXYM:   req.AmountMicroXYM,
		ProductID:        req.ProductID,
		Status:           domain.PaymentStatusPending,
		CreatedAt:        now,
		ExpireAt:         now.Add(h.cfg.Payment.ExpireAfter),
	}

	if err := h.repo.Create(c.Request.Context(), payment); err != nil {
		h.logger.Error().Err(err).Msg("Failed to create payment")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create payment"})
		return
	}

	if err := h.monitorSvc.Watch(payment.PaymentID); err != nil {
		// The payment row exists; resume-on-boot will pick it up even if the
		// session could not start now.
		h.logger.Error().Err(err).Str("payment_id", payment.PaymentID).Msg("Failed to start monitoring session")
	}

	h.logger.Info().
		Str("payment_id", payment.PaymentID).
		Uint64("amount_micro_xym", payment.AmountMicroXYM).
		Time("expire_at", payment.ExpireAt).
		Msg("Payment created")

	c.JSON(http.StatusCreated, CreatePaymentResponse{
		PaymentID:        payment.PaymentID,
		RecipientAddress: payment.RecipientAddress,
		Message:          payment.Message,
		AmountMicroXYM:   payment.AmountMicroXYM,
		Status:           string(payment.Status),
		CreatedAt:        payment.CreatedAt,
		ExpireAt:         payment.ExpireAt,
		RemainingSeconds: payment.RemainingSeconds(now),
	})
}

// GetPaymentStatus is the polling side of status delivery. It reads the same
// row the push events are built from, so both views always agree.
func (h *PaymentHandler) GetPaymentStatus(c *gin.Context) {
	paymentID := c.Param("payment_id")

	payment, err := h.repo.GetByPaymentID(c.Request.Context(), paymentID)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
			return
		}
		h.logger.Error().Err(err).Str("payment_id", paymentID).Msg("Failed to load payment")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load payment"})
		return
	}

	c.JSON(http.StatusOK, payment.StatusView(time.Now()))
}

// CancelPayment closes a pending window on the buyer's behalf. Cancelling a
// settled payment is rejected, not overwritten.
func (h *PaymentHandler) CancelPayment(c *gin.Context) {
	paymentID := c.Param("payment_id")

	payment, err := h.repo.Cancel(c.Request.Context(), paymentID)
	switch {
	case err == nil:
		h.monitorSvc.NotifyTransition(payment)
		h.logger.Info().Str("payment_id", paymentID).Msg("Payment cancelled")
		c.JSON(http.StatusOK, payment.StatusView(time.Now()))
	case errors.Is(err, domain.ErrAlreadyTerminal):
		c.JSON(http.StatusConflict, gin.H{
			"error":  "Payment is already settled",
			"status": payment.Status,
		})
	case errors.Is(err, domain.ErrPaymentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
	default:
		h.logger.Error().Err(err).Str("payment_id", paymentID).Msg("Failed to cancel payment")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel payment"})
	}
}
