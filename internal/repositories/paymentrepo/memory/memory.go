// Package memory provides an in-memory payment repository with the same
// transition guarantees as the Postgres implementation. It backs tests and
// single-process development deployments.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/bootarou/xympay-sub000/internal/domain"
	"github.com/bootarou/xympay-sub000/internal/repositories/paymentrepo"
)

type Repository struct {
	mu       sync.Mutex
	payments map[string]*domain.Payment
	products map[string]*domain.Product
}

func New() *Repository {
	return &Repository{
		payments: make(map[string]*domain.Payment),
		products: make(map[string]*domain.Product),
	}
}

var _ paymentrepo.IPaymentRepository = (*Repository)(nil)

// SeedProduct registers a product so confirmations can decrement its stock.
func (r *Repository) SeedProduct(product domain.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := product
	r.products[product.ID] = &clone
}

// ProductStock reports the remaining stock of a seeded product.
func (r *Repository) ProductStock(id string) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	product, ok := r.products[id]
	if !ok {
		return 0, false
	}
	return product.Stock, true
}

func (r *Repository) Create(_ context.Context, payment *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *payment
	r.payments[payment.PaymentID] = &clone
	return nil
}

func (r *Repository) GetByPaymentID(_ context.Context, paymentID string) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	payment, ok := r.payments[paymentID]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	clone := *payment
	return &clone, nil
}

func (r *Repository) ListPending(_ context.Context, limit int, afterCreatedAt time.Time, afterID string) ([]domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pending []domain.Payment
	for _, payment := range r.payments {
		if payment.Status != domain.PaymentStatusPending {
			continue
		}
		if payment.CreatedAt.Before(afterCreatedAt) {
			continue
		}
		if payment.CreatedAt.Equal(afterCreatedAt) && payment.PaymentID <= afterID {
			continue
		}
		pending = append(pending, *payment)
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].PaymentID < pending[j].PaymentID
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	if limit < len(pending) {
		pending = pending[:limit]
	}
	return pending, nil
}

func (r *Repository) Confirm(_ context.Context, paymentID string, match domain.ConfirmedTransfer, fiat *domain.FiatSnapshot) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	payment, ok := r.payments[paymentID]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	if payment.Status != domain.PaymentStatusPending {
		clone := *payment
		return &clone, domain.ErrAlreadyTerminal
	}

	now := time.Now()
	payment.Status = domain.PaymentStatusConfirmed
	payment.ConfirmedAt = &now
	payment.MatchedTxHash = match.Hash
	payment.MatchedSender = match.SenderPublicKey
	if metadata, err := json.Marshal(match); err == nil {
		payment.Metadata = metadata
	}
	if fiat != nil {
		payment.FiatRate = fiat.Rate
		payment.FiatCurrency = fiat.Currency
		payment.FiatAmount = fiat.Amount
		payment.RateProvider = fiat.Provider
		capturedAt := fiat.CapturedAt
		payment.RateCapturedAt = &capturedAt
	}

	if payment.ProductID != "" {
		if product, ok := r.products[payment.ProductID]; ok && product.Stock > 0 {
			product.Stock--
		}
	}

	clone := *payment
	return &clone, nil
}

func (r *Repository) Expire(_ context.Context, paymentID string) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	payment, ok := r.payments[paymentID]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	if payment.Status != domain.PaymentStatusPending {
		clone := *payment
		return &clone, domain.ErrAlreadyTerminal
	}
	if time.Now().Before(payment.ExpireAt) {
		return nil, domain.ErrNotYetExpired
	}

	payment.Status = domain.PaymentStatusExpired
	clone := *payment
	return &clone, nil
}

func (r *Repository) Cancel(_ context.Context, paymentID string) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	payment, ok := r.payments[paymentID]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	if payment.Status != domain.PaymentStatusPending {
		clone := *payment
		return &clone, domain.ErrAlreadyTerminal
	}

	now := time.Now()
	payment.Status = domain.PaymentStatusCancelled
	payment.CancelledAt = &now
	clone := *payment
	return &clone, nil
}
