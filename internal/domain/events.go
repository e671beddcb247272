package domain

import "time"

type PaymentEventType string

const (
	PaymentEventConfirmed PaymentEventType = "confirmed"
	PaymentEventExpired   PaymentEventType = "expired"
	PaymentEventCancelled PaymentEventType = "cancelled"
)

// PaymentEvent is the single terminal event pushed to a watching client.
// The stream closes after delivering it.
type PaymentEvent struct {
	Type          PaymentEventType `json:"type"`
	PaymentID     string           `json:"payment_id"`
	Status        PaymentStatus    `json:"status"`
	MatchedTxHash string           `json:"matched_tx_hash,omitempty"`
	ConfirmedAt   *time.Time       `json:"confirmed_at,omitempty"`
	OccurredAt    time.Time        `json:"occurred_at"`
}

// EventFromPayment builds the terminal event for a settled payment.
func EventFromPayment(p *Payment) PaymentEvent {
	ev := PaymentEvent{
		PaymentID:     p.PaymentID,
		Status:        p.Status,
		MatchedTxHash: p.MatchedTxHash,
		ConfirmedAt:   p.ConfirmedAt,
		OccurredAt:    time.Now(),
	}
	switch p.Status {
	case PaymentStatusConfirmed:
		ev.Type = PaymentEventConfirmed
	case PaymentStatusCancelled:
		ev.Type = PaymentEventCancelled
	default:
		ev.Type = PaymentEventExpired
	}
	return ev
}
