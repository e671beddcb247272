package monitor

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/bootarou/xympay-sub000/internal/application/matcher"
	"github.com/bootarou/xympay-sub000/internal/domain"
	"github.com/bootarou/xympay-sub000/pkg/currency"
)

// session is the per-payment polling loop: Starting -> Polling ->
// (Matched | Expired | Stopped). Ephemeral and in-memory; the payment row
// is the only durable state it touches, and only through guarded
// transitions.
type session struct {
	paymentID string
	svc       *Service
	ctx       context.Context
	cancel    context.CancelFunc
	silenced  atomic.Bool
}

// silence suppresses the session's own terminal emit; used when another
// path already published the event for this payment.
func (s *session) silence() {
	s.silenced.Store(true)
}

func (s *session) run() {
	logger := s.svc.logger.With().Str("payment_id", s.paymentID).Logger()

	payment, err := s.svc.repo.GetByPaymentID(s.ctx, s.paymentID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load payment, session not started")
		return
	}
	// An already-settled payment gets its terminal event immediately; no
	// polling for settled payments.
	if payment.Status.IsTerminal() {
		s.emit(payment)
		return
	}

	ticker := time.NewTicker(s.svc.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			// Shutdown or external settlement. No transition happens here: a
			// stopped session never implies the user gave up.
			return
		case <-ticker.C:
		}

		payment, err = s.svc.repo.GetByPaymentID(s.ctx, s.paymentID)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to refresh payment, retrying next tick")
			continue
		}
		if payment.Status.IsTerminal() {
			// Another path (fallback poll, explicit cancel) settled it first.
			s.emit(payment)
			return
		}

		if time.Now().After(payment.ExpireAt) {
			if s.finalizeExpiry(payment) {
				return
			}
			continue
		}

		if transfer, ok := s.tryMatch(payment); ok {
			if s.confirm(payment, transfer) {
				return
			}
		}
	}
}

// tryMatch performs one scan against the currently best node. A tick with no
// healthy node is skipped, never fatal: transient outages must not kill the
// session.
func (s *session) tryMatch(payment *domain.Payment) (domain.ConfirmedTransfer, bool) {
	logger := s.svc.logger.With().Str("payment_id", s.paymentID).Logger()

	node, err := s.svc.registry.GetActiveNode(s.ctx)
	if err != nil {
		logger.Debug().Msg("No node available, skipping tick")
		return domain.ConfirmedTransfer{}, false
	}

	start := time.Now()
	transfer, err := s.svc.matcher.FindMatch(s.ctx, matcher.Params{
		Node:             node,
		RecipientAddress: payment.RecipientAddress,
		ExpectedMessage:  payment.Message,
		ExpectedAmount:   payment.AmountMicroXYM,
		NotBefore:        payment.CreatedAt,
	})
	elapsed := time.Since(start)

	switch {
	case err == nil:
		s.svc.registry.ReportOutcome(node, true, elapsed, nil)
		return transfer, true
	case isNoMatch(err):
		// The node answered fine; there just was nothing for us yet.
		s.svc.registry.ReportOutcome(node, true, elapsed, nil)
		return domain.ConfirmedTransfer{}, false
	default:
		s.svc.registry.ReportOutcome(node, false, elapsed, err)
		logger.Warn().Err(err).Str("node", node.Name).Msg("Transfer scan failed, failing over next tick")
		return domain.ConfirmedTransfer{}, false
	}
}

// confirm settles the payment on the matched transfer. Reports true when the
// session is done, false when the attempt should be retried next tick.
func (s *session) confirm(payment *domain.Payment, transfer domain.ConfirmedTransfer) bool {
	logger := s.svc.logger.With().Str("payment_id", s.paymentID).Logger()

	fiat := s.fiatSnapshot(payment)

	confirmed, err := s.svc.repo.Confirm(s.ctx, s.paymentID, transfer, fiat)
	switch {
	case err == nil:
		logger.Info().
			Str("tx_hash", transfer.Hash).
			Uint64("amount_micro_xym", transfer.AmountMicroXYM).
			Msg("Payment confirmed")
		s.emit(confirmed)
		return true
	case errors.Is(err, domain.ErrAlreadyTerminal):
		// Lost the race; whoever won wrote the confirmation fields. A
		// different hash means a duplicate send qualified too: the recorded
		// one stays authoritative.
		if confirmed != nil && confirmed.MatchedTxHash != "" && confirmed.MatchedTxHash != transfer.Hash {
			logger.Warn().
				Str("recorded_tx_hash", confirmed.MatchedTxHash).
				Str("duplicate_tx_hash", transfer.Hash).
				Msg("Duplicate qualifying transfer ignored")
		}
		if confirmed != nil {
			s.emit(confirmed)
		}
		return true
	default:
		logger.Error().Err(err).Msg("Failed to confirm payment, retrying next tick")
		return false
	}
}

// finalizeExpiry runs the one last match attempt before committing expiry:
// a transfer broadcast before the deadline may only become visible after it,
// and that late confirmation is still honored. Returns true when the session
// is done.
func (s *session) finalizeExpiry(payment *domain.Payment) bool {
	logger := s.svc.logger.With().Str("payment_id", s.paymentID).Logger()

	if transfer, ok := s.tryMatch(payment); ok {
		logger.Info().Str("tx_hash", transfer.Hash).Msg("Late-arriving transfer matched at expiry boundary")
		return s.confirm(payment, transfer)
	}

	expired, err := s.svc.repo.Expire(s.ctx, s.paymentID)
	switch {
	case err == nil:
		logger.Info().Time("expire_at", payment.ExpireAt).Msg("Payment expired without a matching transfer")
		s.emit(expired)
		return true
	case errors.Is(err, domain.ErrAlreadyTerminal):
		if expired != nil {
			s.emit(expired)
		}
		return true
	case errors.Is(err, domain.ErrNotYetExpired):
		// Store clock disagrees with ours; poll again.
		return false
	default:
		logger.Error().Err(err).Msg("Failed to expire payment, retrying next tick")
		return false
	}
}

// fiatSnapshot captures the exchange rate for the confirmation, best effort.
// A rate-lookup failure never blocks confirmation; the fiat fields just stay
// empty.
func (s *session) fiatSnapshot(payment *domain.Payment) *domain.FiatSnapshot {
	if s.svc.rates == nil {
		return nil
	}

	logger := s.svc.logger.With().Str("payment_id", s.paymentID).Logger()

	rateCtx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()

	quote, err := s.svc.rates.GetRate(rateCtx, "XYM", s.svc.fiat)
	if err != nil {
		logger.Warn().Err(err).Msg("Rate lookup failed, confirming without fiat snapshot")
		return nil
	}

	fiatAmount, err := currency.FiatValue(payment.AmountMicroXYM, quote.Rate)
	if err != nil {
		logger.Warn().Err(err).Str("rate", quote.Rate).Msg("Unusable rate, confirming without fiat snapshot")
		return nil
	}

	return &domain.FiatSnapshot{
		Rate:       quote.Rate,
		Currency:   quote.FiatCurrency,
		Amount:     fiatAmount.String(),
		Provider:   quote.Provider,
		CapturedAt: quote.CapturedAt,
	}
}

func (s *session) emit(payment *domain.Payment) {
	if s.silenced.Load() {
		return
	}
	s.svc.publishTerminal(payment)
}
