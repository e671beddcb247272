package matcher

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bootarou/xympay-sub000/internal/domain"
)

// TransferSource fetches the most recent confirmed transfers addressed to a
// recipient from one node. Satisfied by the Symbol REST client.
type TransferSource interface {
	ConfirmedTransfers(ctx context.Context, node domain.NodeDescriptor, recipient string, pageSize int) ([]domain.ConfirmedTransfer, error)
}

// Params is one match request: which node to ask and what the payment
// expects.
type Params struct {
	Node             domain.NodeDescriptor
	RecipientAddress string
	ExpectedMessage  string
	ExpectedAmount   uint64
	// NotBefore rejects transfers confirmed before the payment existed, so a
	// reused reference message from an old payment can never be re-claimed.
	NotBefore time.Time
}

// Matcher decides whether any recently confirmed transfer satisfies a
// pending payment.
type Matcher struct {
	source   TransferSource
	pageSize int
	logger   zerolog.Logger
}

func New(source TransferSource, pageSize int, logger zerolog.Logger) *Matcher {
	return &Matcher{
		source:   source,
		pageSize: pageSize,
		logger:   logger.With().Str("component", "matcher").Logger(),
	}
}

// FindMatch scans one newest-first page of confirmed transfers to the
// recipient and returns the first candidate that clears every check. The
// page order is the node's descending confirmation order, so "first" means
// "newest"; when duplicate sends qualify, the newest wins and the rest are
// ignored. Returns domain.ErrNoMatch when nothing qualifies.
func (m *Matcher) FindMatch(ctx context.Context, params Params) (domain.ConfirmedTransfer, error) {
	transfers, err := m.source.ConfirmedTransfers(ctx, params.Node, params.RecipientAddress, m.pageSize)
	if err != nil {
		return domain.ConfirmedTransfer{}, err
	}

	for _, transfer := range transfers {
		if transfer.Timestamp.Before(params.NotBefore) {
			continue
		}
		if transfer.AmountMicroXYM != params.ExpectedAmount {
			continue
		}
		// Transfer messages are decoded upstream; an undecodable payload is
		// an empty string here and simply fails the comparison.
		if transfer.Message != params.ExpectedMessage {
			continue
		}

		m.logger.Info().
			Str("tx_hash", transfer.Hash).
			Str("recipient", params.RecipientAddress).
			Uint64("amount_micro_xym", transfer.AmountMicroXYM).
			Time("chain_timestamp", transfer.Timestamp).
			Msg("Matching transfer found")
		return transfer, nil
	}

	return domain.ConfirmedTransfer{}, domain.ErrNoMatch
}
