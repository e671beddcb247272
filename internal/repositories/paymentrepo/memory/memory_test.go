package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bootarou/xympay-sub000/internal/domain"
	"github.com/bootarou/xympay-sub000/internal/repositories/paymentrepo/memory"
)

func pendingPayment(id string, expireAt time.Time) *domain.Payment {
	return &domain.Payment{
		PaymentID:        id,
		RecipientAddress: "NRECIPIENT",
		Message:          "A1B2C3D4",
		AmountMicroXYM:   1_500_000,
		Status:           domain.PaymentStatusPending,
		CreatedAt:        time.Now().Add(-time.Minute),
		ExpireAt:         expireAt,
	}
}

func matchFor(hash string) domain.ConfirmedTransfer {
	return domain.ConfirmedTransfer{
		Hash:            hash,
		SenderPublicKey: "SENDERPUB",
		AmountMicroXYM:  1_500_000,
		Message:         "A1B2C3D4",
		Timestamp:       time.Now(),
	}
}

func Test_Confirm(t *testing.T) {
	ctx := context.Background()

	t.Run("WritesConfirmationFields", func(t *testing.T) {
		repo := memory.New()
		require.NoError(t, repo.Create(ctx, pendingPayment("pay-1", time.Now().Add(time.Hour))))

		fiat := &domain.FiatSnapshot{
			Rate:       "0.0333",
			Currency:   "USD",
			Amount:     "0.05",
			Provider:   "coincap",
			CapturedAt: time.Now(),
		}
		confirmed, err := repo.Confirm(ctx, "pay-1", matchFor("HASH1"), fiat)
		require.NoError(t, err)

		assert.Equal(t, domain.PaymentStatusConfirmed, confirmed.Status)
		assert.Equal(t, "HASH1", confirmed.MatchedTxHash)
		assert.Equal(t, "SENDERPUB", confirmed.MatchedSender)
		assert.NotNil(t, confirmed.ConfirmedAt)
		assert.Equal(t, "0.0333", confirmed.FiatRate)
		assert.Equal(t, "USD", confirmed.FiatCurrency)
		assert.NotEmpty(t, confirmed.Metadata)
	})

	t.Run("SecondConfirmIsNoOp", func(t *testing.T) {
		repo := memory.New()
		require.NoError(t, repo.Create(ctx, pendingPayment("pay-1", time.Now().Add(time.Hour))))

		first, err := repo.Confirm(ctx, "pay-1", matchFor("HASH1"), nil)
		require.NoError(t, err)

		// A duplicate observation of the same payment must not overwrite the
		// recorded transaction.
		second, err := repo.Confirm(ctx, "pay-1", matchFor("HASH2"), nil)
		assert.ErrorIs(t, err, domain.ErrAlreadyTerminal)
		assert.Equal(t, first.MatchedTxHash, second.MatchedTxHash)
		assert.Equal(t, first.ConfirmedAt, second.ConfirmedAt)
	})

	t.Run("ConcurrentConfirmsSingleWinner", func(t *testing.T) {
		repo := memory.New()
		require.NoError(t, repo.Create(ctx, pendingPayment("pay-1", time.Now().Add(time.Hour))))

		const attempts = 16
		var wg sync.WaitGroup
		errs := make([]error, attempts)

		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = repo.Confirm(ctx, "pay-1", matchFor("HASH1"), nil)
			}(i)
		}
		wg.Wait()

		winners := 0
		for _, err := range errs {
			switch {
			case err == nil:
				winners++
			case errors.Is(err, domain.ErrAlreadyTerminal):
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, winners)
	})

	t.Run("NotFound", func(t *testing.T) {
		repo := memory.New()
		_, err := repo.Confirm(ctx, "missing", matchFor("HASH1"), nil)
		assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
	})
}

func Test_Confirm_Inventory(t *testing.T) {
	ctx := context.Background()

	t.Run("DecrementsStockOnce", func(t *testing.T) {
		repo := memory.New()
		repo.SeedProduct(domain.Product{ID: "prod-1", Name: "Sticker", Stock: 3})

		payment := pendingPayment("pay-1", time.Now().Add(time.Hour))
		payment.ProductID = "prod-1"
		require.NoError(t, repo.Create(ctx, payment))

		_, err := repo.Confirm(ctx, "pay-1", matchFor("HASH1"), nil)
		require.NoError(t, err)

		stock, ok := repo.ProductStock("prod-1")
		require.True(t, ok)
		assert.Equal(t, int64(2), stock)

		// The losing duplicate must not decrement again.
		_, err = repo.Confirm(ctx, "pay-1", matchFor("HASH2"), nil)
		assert.ErrorIs(t, err, domain.ErrAlreadyTerminal)
		stock, _ = repo.ProductStock("prod-1")
		assert.Equal(t, int64(2), stock)
	})

	t.Run("OutOfStockStillConfirms", func(t *testing.T) {
		// The buyer paid; the payment confirms and the shortage is an
		// operational problem, not a payment failure.
		repo := memory.New()
		repo.SeedProduct(domain.Product{ID: "prod-1", Name: "Sticker", Stock: 0})

		payment := pendingPayment("pay-1", time.Now().Add(time.Hour))
		payment.ProductID = "prod-1"
		require.NoError(t, repo.Create(ctx, payment))

		confirmed, err := repo.Confirm(ctx, "pay-1", matchFor("HASH1"), nil)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusConfirmed, confirmed.Status)

		stock, _ := repo.ProductStock("prod-1")
		assert.Equal(t, int64(0), stock)
	})
}

func Test_Expire(t *testing.T) {
	ctx := context.Background()

	t.Run("ExpiresPastDeadline", func(t *testing.T) {
		repo := memory.New()
		require.NoError(t, repo.Create(ctx, pendingPayment("pay-1", time.Now().Add(-time.Second))))

		expired, err := repo.Expire(ctx, "pay-1")
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusExpired, expired.Status)
	})

	t.Run("RefusesBeforeDeadline", func(t *testing.T) {
		repo := memory.New()
		require.NoError(t, repo.Create(ctx, pendingPayment("pay-1", time.Now().Add(time.Hour))))

		_, err := repo.Expire(ctx, "pay-1")
		assert.ErrorIs(t, err, domain.ErrNotYetExpired)
	})

	t.Run("ConfirmBeatsExpire", func(t *testing.T) {
		repo := memory.New()
		require.NoError(t, repo.Create(ctx, pendingPayment("pay-1", time.Now().Add(-time.Second))))

		_, err := repo.Confirm(ctx, "pay-1", matchFor("HASH1"), nil)
		require.NoError(t, err)

		current, err := repo.Expire(ctx, "pay-1")
		assert.ErrorIs(t, err, domain.ErrAlreadyTerminal)
		assert.Equal(t, domain.PaymentStatusConfirmed, current.Status)
	})
}

func Test_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("CancelsPending", func(t *testing.T) {
		repo := memory.New()
		require.NoError(t, repo.Create(ctx, pendingPayment("pay-1", time.Now().Add(time.Hour))))

		cancelled, err := repo.Cancel(ctx, "pay-1")
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusCancelled, cancelled.Status)
		assert.NotNil(t, cancelled.CancelledAt)
	})

	t.Run("RefusesSettled", func(t *testing.T) {
		repo := memory.New()
		require.NoError(t, repo.Create(ctx, pendingPayment("pay-1", time.Now().Add(time.Hour))))

		_, err := repo.Confirm(ctx, "pay-1", matchFor("HASH1"), nil)
		require.NoError(t, err)

		current, err := repo.Cancel(ctx, "pay-1")
		assert.ErrorIs(t, err, domain.ErrAlreadyTerminal)
		assert.Equal(t, domain.PaymentStatusConfirmed, current.Status)
	})
}

func Test_ListPending(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"pay-1", "pay-2", "pay-3", "pay-4"} {
		payment := pendingPayment(id, time.Now().Add(time.Hour))
		payment.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Create(ctx, payment))
	}
	_, err := repo.Confirm(ctx, "pay-2", matchFor("HASH1"), nil)
	require.NoError(t, err)

	t.Run("OldestFirstExcludingSettled", func(t *testing.T) {
		pending, err := repo.ListPending(ctx, 10, time.Time{}, "")
		require.NoError(t, err)
		require.Len(t, pending, 3)
		assert.Equal(t, "pay-1", pending[0].PaymentID)
		assert.Equal(t, "pay-3", pending[1].PaymentID)
		assert.Equal(t, "pay-4", pending[2].PaymentID)
	})

	t.Run("CursorPagination", func(t *testing.T) {
		page, err := repo.ListPending(ctx, 2, time.Time{}, "")
		require.NoError(t, err)
		require.Len(t, page, 2)

		last := page[len(page)-1]
		page, err = repo.ListPending(ctx, 2, last.CreatedAt, last.PaymentID)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "pay-4", page[0].PaymentID)

		last = page[0]
		page, err = repo.ListPending(ctx, 2, last.CreatedAt, last.PaymentID)
		require.NoError(t, err)
		assert.Empty(t, page)
	})

	t.Run("CursorUnaffectedByMidScanSettlements", func(t *testing.T) {
		page, err := repo.ListPending(ctx, 1, time.Time{}, "")
		require.NoError(t, err)
		require.Len(t, page, 1)
		require.Equal(t, "pay-1", page[0].PaymentID)

		// pay-1 settles between pages; the next page must still start at
		// pay-3 instead of sliding past it.
		_, err = repo.Confirm(ctx, "pay-1", matchFor("HASH2"), nil)
		require.NoError(t, err)

		page, err = repo.ListPending(ctx, 1, page[0].CreatedAt, page[0].PaymentID)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "pay-3", page[0].PaymentID)
	})
}
