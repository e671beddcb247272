package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bootarou/xympay-sub000/internal/application/matcher"
	"github.com/bootarou/xympay-sub000/internal/domain"
	"github.com/bootarou/xympay-sub000/internal/infrastructure/nodes"
	"github.com/bootarou/xympay-sub000/internal/infrastructure/rates"
	"github.com/bootarou/xympay-sub000/internal/repositories/paymentrepo"
	"github.com/bootarou/xympay-sub000/pkg/config"
)

// Notifier delivers terminal payment events to whoever is listening.
// Implemented by the websocket hub; tests plug in a channel.
type Notifier interface {
	Publish(event domain.PaymentEvent)
}

// Service owns one monitoring session per pending payment. Sessions talk to
// each other only through the payment repository and the node registry;
// every durable mutation goes through a guarded transition, so a session
// can be killed between ticks without leaving partial state.
type Service struct {
	repo     paymentrepo.IPaymentRepository
	registry *nodes.Registry
	matcher  *matcher.Matcher
	rates    rates.Provider
	fiat     string
	notifier Notifier
	cfg      config.MonitorConfig
	logger   zerolog.Logger

	mu       sync.Mutex
	started  bool
	baseCtx  context.Context
	sessions map[string]*session
	wg       sync.WaitGroup
}

func NewService(
	repo paymentrepo.IPaymentRepository,
	registry *nodes.Registry,
	txMatcher *matcher.Matcher,
	rateProvider rates.Provider,
	fiatCurrency string,
	notifier Notifier,
	cfg config.MonitorConfig,
	logger zerolog.Logger,
) *Service {
	return &Service{
		repo:     repo,
		registry: registry,
		matcher:  txMatcher,
		rates:    rateProvider,
		fiat:     fiatCurrency,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With().Str("component", "monitor").Logger(),
	}
}

// Run resumes sessions for every pending payment and then blocks until the
// context is cancelled, after which it waits for all sessions to wind down.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.sessions = make(map[string]*session)
	s.started = true
	s.mu.Unlock()

	if err := s.resumePending(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Failed to resume pending payments")
	}

	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info().Msg("Monitoring service stopped")
	return ctx.Err()
}

// Watch attaches a monitoring session to the payment. Idempotent: a payment
// already being watched keeps its existing session.
func (s *Service) Watch(paymentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return fmt.Errorf("monitoring service is not running")
	}
	if _, exists := s.sessions[paymentID]; exists {
		return nil
	}

	sessionCtx, cancel := context.WithCancel(s.baseCtx)
	sess := &session{
		paymentID: paymentID,
		svc:       s,
		ctx:       sessionCtx,
		cancel:    cancel,
	}
	s.sessions[paymentID] = sess

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.detach(paymentID)
		sess.run()
	}()

	s.logger.Info().Str("payment_id", paymentID).Msg("Monitoring session started")
	return nil
}

// NotifyTransition publishes the terminal event for a payment settled
// outside its session (an explicit cancel through the API) and stops the
// session immediately instead of waiting for its next tick.
func (s *Service) NotifyTransition(payment *domain.Payment) {
	s.notifier.Publish(domain.EventFromPayment(payment))

	s.mu.Lock()
	sess, ok := s.sessions[payment.PaymentID]
	s.mu.Unlock()
	if ok {
		sess.silence()
		sess.cancel()
	}
}

func (s *Service) detach(paymentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, paymentID)
}

// resumePending re-attaches sessions to every pending payment found in the
// store. The store, not the session, is authoritative: payments whose window
// already closed while the process was down go through the usual guarded
// expiry path (including the final match attempt) inside their new session.
//
// Pages advance on a keyset cursor rather than an offset: sessions started
// from earlier pages settle rows concurrently, and an offset over the
// shrinking pending set would skip payments still waiting for a session.
func (s *Service) resumePending(ctx context.Context) error {
	var afterCreatedAt time.Time
	var afterID string
	resumed := 0
	for {
		payments, err := s.repo.ListPending(ctx, s.cfg.ResumeBatchSize, afterCreatedAt, afterID)
		if err != nil {
			return fmt.Errorf("failed to load pending payments: %w", err)
		}
		if len(payments) == 0 {
			break
		}
		for _, payment := range payments {
			if err := s.Watch(payment.PaymentID); err != nil {
				return err
			}
			resumed++
		}
		last := payments[len(payments)-1]
		afterCreatedAt, afterID = last.CreatedAt, last.PaymentID
	}

	if resumed > 0 {
		s.logger.Info().Int("count", resumed).Msg("Resumed monitoring sessions for pending payments")
	}
	return nil
}

// publishTerminal emits the terminal event for a settled payment unless the
// session was silenced because another path already announced it.
func (s *Service) publishTerminal(payment *domain.Payment) {
	s.notifier.Publish(domain.EventFromPayment(payment))
}

func isNoMatch(err error) bool {
	return errors.Is(err, domain.ErrNoMatch)
}
