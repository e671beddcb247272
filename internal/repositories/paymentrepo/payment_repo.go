package paymentrepo

import (
	"context"
	"time"

	"github.com/bootarou/xympay-sub000/internal/domain"
)

// IPaymentRepository is the single source of truth for payment lifecycle
// state. All transitions use a conditional update (only while the row is
// still pending), which serializes concurrent attempts on the same payment:
// exactly one caller wins, the rest observe domain.ErrAlreadyTerminal and
// must treat it as a successful no-op.
type IPaymentRepository interface {
	Create(ctx context.Context, payment *domain.Payment) error
	GetByPaymentID(ctx context.Context, paymentID string) (*domain.Payment, error)
	// ListPending pages through pending payments oldest first, resuming
	// strictly after the (afterCreatedAt, afterID) keyset cursor. A cursor
	// keeps the page window stable while rows settle between pages, which
	// an OFFSET scan cannot; zero values start from the beginning. Used to
	// re-attach monitoring sessions after a restart.
	ListPending(ctx context.Context, limit int, afterCreatedAt time.Time, afterID string) ([]domain.Payment, error)

	// Confirm transitions pending -> confirmed, writing the matched transfer
	// and the optional fiat snapshot atomically, and decrements the stock of
	// the associated product in the same step (guarded, never below zero).
	Confirm(ctx context.Context, paymentID string, match domain.ConfirmedTransfer, fiat *domain.FiatSnapshot) (*domain.Payment, error)
	// Expire transitions pending -> expired, only once wall-clock time has
	// passed the payment's expire_at.
	Expire(ctx context.Context, paymentID string) (*domain.Payment, error)
	// Cancel transitions pending -> cancelled on explicit client request.
	Cancel(ctx context.Context, paymentID string) (*domain.Payment, error)
}
