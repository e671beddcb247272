package domain

import (
	"encoding/json"
	"time"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusConfirmed PaymentStatus = "confirmed"
	PaymentStatusExpired   PaymentStatus = "expired"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// IsTerminal reports whether no further transition is permitted from s.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusConfirmed || s == PaymentStatusExpired || s == PaymentStatusCancelled
}

// Payment is the durable record of a single expected transfer. It is created
// once by the order-creation flow and owned by the payment repository
// afterwards. Once Status leaves pending the record is immutable except for
// the fields written atomically during that same transition.
type Payment struct {
	PaymentID        string          `json:"payment_id" db:"payment_id"`
	RecipientAddress string          `json:"recipient_address" db:"recipient_address"`
	Message          string          `json:"message" db:"message"`
	AmountMicroXYM   uint64          `json:"amount_micro_xym" db:"amount_micro_xym"`
	ProductID        string          `json:"product_id,omitempty" db:"product_id"`
	Status           PaymentStatus   `json:"status" db:"status"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	ExpireAt         time.Time       `json:"expire_at" db:"expire_at"`
	ConfirmedAt      *time.Time      `json:"confirmed_at,omitempty" db:"confirmed_at"`
	CancelledAt      *time.Time      `json:"cancelled_at,omitempty" db:"cancelled_at"`
	MatchedTxHash    string          `json:"matched_tx_hash,omitempty" db:"matched_tx_hash"`
	MatchedSender    string          `json:"matched_sender,omitempty" db:"matched_sender"`
	FiatRate         string          `json:"fiat_rate,omitempty" db:"fiat_rate"`
	FiatCurrency     string          `json:"fiat_currency,omitempty" db:"fiat_currency"`
	FiatAmount       string          `json:"fiat_amount,omitempty" db:"fiat_amount"`
	RateProvider     string          `json:"rate_provider,omitempty" db:"rate_provider"`
	RateCapturedAt   *time.Time      `json:"rate_captured_at,omitempty" db:"rate_captured_at"`
	Metadata         json.RawMessage `json:"metadata,omitempty" db:"metadata"`
}

// RemainingSeconds is the client-facing countdown until expiry. Zero once the
// window has closed or the payment is terminal.
func (p *Payment) RemainingSeconds(now time.Time) int64 {
	if p.Status != PaymentStatusPending {
		return 0
	}
	remaining := p.ExpireAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int64(remaining.Seconds())
}

// PaymentStatusView is the public projection returned by the status poll and
// embedded in push events. Both delivery modes are built from the same row.
type PaymentStatusView struct {
	PaymentID        string        `json:"payment_id"`
	Status           PaymentStatus `json:"status"`
	MatchedTxHash    string        `json:"matched_tx_hash,omitempty"`
	ConfirmedAt      *time.Time    `json:"confirmed_at,omitempty"`
	RemainingSeconds int64         `json:"remaining_seconds"`
}

func (p *Payment) StatusView(now time.Time) PaymentStatusView {
	return PaymentStatusView{
		PaymentID:        p.PaymentID,
		Status:           p.Status,
		MatchedTxHash:    p.MatchedTxHash,
		ConfirmedAt:      p.ConfirmedAt,
		RemainingSeconds: p.RemainingSeconds(now),
	}
}

// Product carries the stock counter decremented when a payment for it
// confirms. Catalog management lives elsewhere; only the counter matters here.
type Product struct {
	ID    string `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Stock int64  `json:"stock" db:"stock"`
}
