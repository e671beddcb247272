package matcher_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bootarou/xympay-sub000/internal/application/matcher"
	"github.com/bootarou/xympay-sub000/internal/domain"
)

type fakeSource struct {
	transfers []domain.ConfirmedTransfer
	err       error

	gotRecipient string
	gotPageSize  int
}

func (s *fakeSource) ConfirmedTransfers(_ context.Context, _ domain.NodeDescriptor, recipient string, pageSize int) ([]domain.ConfirmedTransfer, error) {
	s.gotRecipient = recipient
	s.gotPageSize = pageSize
	return s.transfers, s.err
}

var matchBase = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func params() matcher.Params {
	return matcher.Params{
		Node:             domain.NodeDescriptor{URL: "http://node", Name: "node", Timeout: time.Second},
		RecipientAddress: "NRECIPIENT",
		ExpectedMessage:  "A1B2C3D4",
		ExpectedAmount:   1_500_000,
		NotBefore:        matchBase,
	}
}

func transfer(hash, message string, amount uint64, at time.Time) domain.ConfirmedTransfer {
	return domain.ConfirmedTransfer{
		Hash:             hash,
		RecipientAddress: "NRECIPIENT",
		AmountMicroXYM:   amount,
		Message:          message,
		Timestamp:        at,
	}
}

func Test_FindMatch(t *testing.T) {
	t.Run("MatchesExactTransfer", func(t *testing.T) {
		source := &fakeSource{transfers: []domain.ConfirmedTransfer{
			transfer("HASH1", "A1B2C3D4", 1_500_000, matchBase.Add(time.Minute)),
		}}
		m := matcher.New(source, 25, zerolog.Nop())

		got, err := m.FindMatch(context.Background(), params())
		require.NoError(t, err)
		assert.Equal(t, "HASH1", got.Hash)
		assert.Equal(t, "NRECIPIENT", source.gotRecipient)
		assert.Equal(t, 25, source.gotPageSize)
	})

	t.Run("RejectsStaleTransfer", func(t *testing.T) {
		// Right message and amount, but confirmed before the payment existed:
		// a reused reference message must never claim an old transfer.
		source := &fakeSource{transfers: []domain.ConfirmedTransfer{
			transfer("OLD", "A1B2C3D4", 1_500_000, matchBase.Add(-time.Hour)),
		}}
		m := matcher.New(source, 25, zerolog.Nop())

		_, err := m.FindMatch(context.Background(), params())
		assert.ErrorIs(t, err, domain.ErrNoMatch)
	})

	t.Run("RejectsWrongAmount", func(t *testing.T) {
		// Amount matching is exact: over- and underpayment both miss.
		source := &fakeSource{transfers: []domain.ConfirmedTransfer{
			transfer("UNDER", "A1B2C3D4", 1_499_999, matchBase.Add(time.Minute)),
			transfer("OVER", "A1B2C3D4", 1_500_001, matchBase.Add(time.Minute)),
		}}
		m := matcher.New(source, 25, zerolog.Nop())

		_, err := m.FindMatch(context.Background(), params())
		assert.ErrorIs(t, err, domain.ErrNoMatch)
	})

	t.Run("RejectsWrongMessage", func(t *testing.T) {
		source := &fakeSource{transfers: []domain.ConfirmedTransfer{
			transfer("WRONG", "ZZZZZZZZ", 1_500_000, matchBase.Add(time.Minute)),
			// Undecodable payloads surface as empty messages.
			transfer("EMPTY", "", 1_500_000, matchBase.Add(time.Minute)),
		}}
		m := matcher.New(source, 25, zerolog.Nop())

		_, err := m.FindMatch(context.Background(), params())
		assert.ErrorIs(t, err, domain.ErrNoMatch)
	})

	t.Run("NewestQualifyingWins", func(t *testing.T) {
		// The page arrives newest first; a buyer who sent twice gets the
		// newest send recorded and the older duplicate ignored.
		source := &fakeSource{transfers: []domain.ConfirmedTransfer{
			transfer("NEWEST", "A1B2C3D4", 1_500_000, matchBase.Add(10*time.Minute)),
			transfer("OLDER", "A1B2C3D4", 1_500_000, matchBase.Add(5*time.Minute)),
		}}
		m := matcher.New(source, 25, zerolog.Nop())

		got, err := m.FindMatch(context.Background(), params())
		require.NoError(t, err)
		assert.Equal(t, "NEWEST", got.Hash)
	})

	t.Run("SkipsNonQualifyingAheadOfMatch", func(t *testing.T) {
		source := &fakeSource{transfers: []domain.ConfirmedTransfer{
			transfer("NOISE", "OTHER", 2_000_000, matchBase.Add(12*time.Minute)),
			transfer("HIT", "A1B2C3D4", 1_500_000, matchBase.Add(8*time.Minute)),
		}}
		m := matcher.New(source, 25, zerolog.Nop())

		got, err := m.FindMatch(context.Background(), params())
		require.NoError(t, err)
		assert.Equal(t, "HIT", got.Hash)
	})

	t.Run("EmptyPage", func(t *testing.T) {
		m := matcher.New(&fakeSource{}, 25, zerolog.Nop())

		_, err := m.FindMatch(context.Background(), params())
		assert.ErrorIs(t, err, domain.ErrNoMatch)
	})

	t.Run("SourceError", func(t *testing.T) {
		sourceErr := errors.New("node unreachable")
		m := matcher.New(&fakeSource{err: sourceErr}, 25, zerolog.Nop())

		_, err := m.FindMatch(context.Background(), params())
		assert.ErrorIs(t, err, sourceErr)
		assert.NotErrorIs(t, err, domain.ErrNoMatch)
	})
}
