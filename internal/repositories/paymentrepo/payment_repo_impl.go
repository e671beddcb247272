package paymentrepo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sqlc-dev/pqtype"

	"github.com/bootarou/xympay-sub000/internal/domain"
	"github.com/bootarou/xympay-sub000/internal/infrastructure/database"
)

type paymentRepositoryImpl struct {
	db     *sql.DB
	logger zerolog.Logger
}

func New(db *database.DBManager, logger zerolog.Logger) IPaymentRepository {
	return &paymentRepositoryImpl{
		db:     db.Db,
		logger: logger,
	}
}

const paymentColumns = `
	payment_id, recipient_address, message, amount_micro_xym, product_id,
	status, created_at, expire_at, confirmed_at, cancelled_at,
	matched_tx_hash, matched_sender, fiat_rate, fiat_currency, fiat_amount,
	rate_provider, rate_captured_at, metadata`

func (r *paymentRepositoryImpl) Create(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL, NULL, '', '', '', '', '', '', NULL, NULL)`

	_, err := r.db.ExecContext(ctx, query,
		payment.PaymentID,
		payment.RecipientAddress,
		payment.Message,
		int64(payment.AmountMicroXYM),
		nullString(payment.ProductID),
		string(payment.Status),
		payment.CreatedAt,
		payment.ExpireAt,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("payment_id", payment.PaymentID).Msg("Failed to create payment")
		return fmt.Errorf("failed to create payment: %w", err)
	}

	return nil
}

func (r *paymentRepositoryImpl) GetByPaymentID(ctx context.Context, paymentID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE payment_id = $1`

	payment, err := scanPayment(r.db.QueryRowContext(ctx, query, paymentID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrPaymentNotFound
		}
		r.logger.Error().Err(err).Str("payment_id", paymentID).Msg("Failed to get payment")
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	return payment, nil
}

func (r *paymentRepositoryImpl) ListPending(ctx context.Context, limit int, afterCreatedAt time.Time, afterID string) ([]domain.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE status = 'pending' AND (created_at, payment_id) > ($1, $2)
		ORDER BY created_at ASC, payment_id ASC
		LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, afterCreatedAt, afterID, limit)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to list pending payments")
		return nil, fmt.Errorf("failed to list pending payments: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending payment: %w", err)
		}
		payments = append(payments, *payment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending payments: %w", err)
	}

	return payments, nil
}

func (r *paymentRepositoryImpl) Confirm(ctx context.Context, paymentID string, match domain.ConfirmedTransfer, fiat *domain.FiatSnapshot) (*domain.Payment, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	metadata, err := json.Marshal(match)
	if err != nil {
		metadata = json.RawMessage("{}")
	}

	var rate, currency, amount, provider string
	var capturedAt sql.NullTime
	if fiat != nil {
		rate = fiat.Rate
		currency = fiat.Currency
		amount = fiat.Amount
		provider = fiat.Provider
		capturedAt = sql.NullTime{Time: fiat.CapturedAt, Valid: true}
	}

	query := `
		UPDATE payments
		SET status = 'confirmed',
		    confirmed_at = $2,
		    matched_tx_hash = $3,
		    matched_sender = $4,
		    fiat_rate = $5,
		    fiat_currency = $6,
		    fiat_amount = $7,
		    rate_provider = $8,
		    rate_captured_at = $9,
		    metadata = $10
		WHERE payment_id = $1 AND status = 'pending'
		RETURNING ` + paymentColumns

	payment, err := scanPayment(tx.QueryRowContext(ctx, query,
		paymentID,
		time.Now(),
		match.Hash,
		match.SenderPublicKey,
		rate,
		currency,
		amount,
		provider,
		capturedAt,
		pqtype.NullRawMessage{RawMessage: metadata, Valid: true},
	))
	if err != nil {
		if err == sql.ErrNoRows {
			// Lost the race or unknown id; look at the row to tell which.
			current, resolveErr := r.resolveGuardMiss(ctx, paymentID)
			if resolveErr != nil {
				return current, resolveErr
			}
			return nil, fmt.Errorf("payment %s missed the confirm guard while still pending", paymentID)
		}
		r.logger.Error().Err(err).Str("payment_id", paymentID).Msg("Failed to confirm payment")
		return nil, fmt.Errorf("failed to confirm payment: %w", err)
	}

	if payment.ProductID != "" {
		result, err := tx.ExecContext(ctx,
			`UPDATE products SET stock = stock - 1 WHERE id = $1 AND stock > 0`,
			payment.ProductID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to decrement stock: %w", err)
		}
		affected, _ := result.RowsAffected()
		if affected == 0 {
			// The transfer already happened on chain; the payment confirms
			// regardless, the stock shortfall is an operational problem.
			r.logger.Warn().
				Str("payment_id", paymentID).
				Str("product_id", payment.ProductID).
				Msg("Stock exhausted at confirmation time, decrement skipped")
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit confirmation: %w", err)
	}

	return payment, nil
}

func (r *paymentRepositoryImpl) Expire(ctx context.Context, paymentID string) (*domain.Payment, error) {
	query := `
		UPDATE payments
		SET status = 'expired'
		WHERE payment_id = $1 AND status = 'pending' AND expire_at <= $2
		RETURNING ` + paymentColumns

	payment, err := scanPayment(r.db.QueryRowContext(ctx, query, paymentID, time.Now()))
	if err != nil {
		if err == sql.ErrNoRows {
			current, resolveErr := r.resolveGuardMiss(ctx, paymentID)
			if resolveErr != nil {
				return current, resolveErr
			}
			// Row exists and is still pending: the window has not closed.
			return nil, domain.ErrNotYetExpired
		}
		r.logger.Error().Err(err).Str("payment_id", paymentID).Msg("Failed to expire payment")
		return nil, fmt.Errorf("failed to expire payment: %w", err)
	}

	return payment, nil
}

func (r *paymentRepositoryImpl) Cancel(ctx context.Context, paymentID string) (*domain.Payment, error) {
	query := `
		UPDATE payments
		SET status = 'cancelled', cancelled_at = $2
		WHERE payment_id = $1 AND status = 'pending'
		RETURNING ` + paymentColumns

	payment, err := scanPayment(r.db.QueryRowContext(ctx, query, paymentID, time.Now()))
	if err != nil {
		if err == sql.ErrNoRows {
			current, resolveErr := r.resolveGuardMiss(ctx, paymentID)
			if resolveErr != nil {
				return current, resolveErr
			}
			return nil, fmt.Errorf("payment %s missed the cancel guard while still pending", paymentID)
		}
		r.logger.Error().Err(err).Str("payment_id", paymentID).Msg("Failed to cancel payment")
		return nil, fmt.Errorf("failed to cancel payment: %w", err)
	}

	return payment, nil
}

// resolveGuardMiss distinguishes "row missing" from "row already terminal"
// after a conditional update matched nothing. In the terminal case the
// current row is returned alongside ErrAlreadyTerminal so callers can read
// the winning transition's fields.
func (r *paymentRepositoryImpl) resolveGuardMiss(ctx context.Context, paymentID string) (*domain.Payment, error) {
	current, err := r.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if current.Status.IsTerminal() {
		return current, domain.ErrAlreadyTerminal
	}
	return current, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var payment domain.Payment
	var amount int64
	var productID, matchedTxHash, matchedSender sql.NullString
	var fiatRate, fiatCurrency, fiatAmount, rateProvider sql.NullString
	var confirmedAt, cancelledAt, rateCapturedAt sql.NullTime
	var status string
	var metadata pqtype.NullRawMessage

	err := row.Scan(
		&payment.PaymentID,
		&payment.RecipientAddress,
		&payment.Message,
		&amount,
		&productID,
		&status,
		&payment.CreatedAt,
		&payment.ExpireAt,
		&confirmedAt,
		&cancelledAt,
		&matchedTxHash,
		&matchedSender,
		&fiatRate,
		&fiatCurrency,
		&fiatAmount,
		&rateProvider,
		&rateCapturedAt,
		&metadata,
	)
	if err != nil {
		return nil, err
	}

	payment.AmountMicroXYM = uint64(amount)
	payment.ProductID = productID.String
	payment.Status = domain.PaymentStatus(status)
	payment.MatchedTxHash = matchedTxHash.String
	payment.MatchedSender = matchedSender.String
	payment.FiatRate = fiatRate.String
	payment.FiatCurrency = fiatCurrency.String
	payment.FiatAmount = fiatAmount.String
	payment.RateProvider = rateProvider.String
	if confirmedAt.Valid {
		payment.ConfirmedAt = &confirmedAt.Time
	}
	if cancelledAt.Valid {
		payment.CancelledAt = &cancelledAt.Time
	}
	if rateCapturedAt.Valid {
		payment.RateCapturedAt = &rateCapturedAt.Time
	}
	if metadata.Valid {
		payment.Metadata = metadata.RawMessage
	}

	return &payment, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
