package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/skyroute/booking-core/internal/models"
)

const pendingPaymentConstraint = "payments_one_pending_idx"

// PaymentRepository handles payment attempts
type PaymentRepository struct {
	db DB
}

// NewPaymentRepository creates a new PaymentRepository
func NewPaymentRepository(db DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `
	id, booking_id, amount, method, status, gateway_reference, failure_reason, created_at, updated_at`

// CreatePayment records a pending capture attempt and stretches the
// booking's hold to at least holdUntil so reconciliation leaves it alone
// while the capture runs. A booking that is no longer pending yields
// ErrBookingNotPending; a second pending attempt yields ErrPaymentInProgress.
func (r *PaymentRepository) CreatePayment(ctx context.Context, payment *models.Payment, holdUntil time.Time) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE bookings
			SET hold_expires_at = GREATEST(hold_expires_at, $2), updated_at = NOW()
			WHERE id = $1 AND status = 'pending'`, payment.BookingID, holdUntil)
		if err != nil {
			return fmt.Errorf("failed to extend booking hold: %w", err)
		}
		ok, err := affectedOne(result)
		if err != nil {
			return err
		}
		if !ok {
			return ErrBookingNotPending
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO payments (id, booking_id, amount, method, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			payment.ID, payment.BookingID, payment.Amount, payment.Method, payment.Status,
			payment.CreatedAt, payment.UpdatedAt,
		)
		if isUniqueViolation(err, pendingPaymentConstraint) {
			return ErrPaymentInProgress
		}
		if err != nil {
			return fmt.Errorf("failed to create payment: %w", err)
		}
		return nil
	})
}

// GetPayment retrieves a payment by ID. Returns nil, nil when it does not exist.
func (r *PaymentRepository) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.GetContext(ctx, &payment, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &payment, nil
}

// GetSuccessfulPayment returns the captured payment of a booking, or nil
func (r *PaymentRepository) GetSuccessfulPayment(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.GetContext(ctx, &payment, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE booking_id = $1 AND status = 'success'
		ORDER BY updated_at DESC
		LIMIT 1`, bookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get successful payment: %w", err)
	}
	return &payment, nil
}

// MarkPaymentSucceeded records a successful capture
func (r *PaymentRepository) MarkPaymentSucceeded(ctx context.Context, id uuid.UUID, gatewayRef string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET status = 'success', gateway_reference = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`, id, gatewayRef)
	if err != nil {
		return fmt.Errorf("failed to mark payment succeeded: %w", err)
	}
	return nil
}

// MarkPaymentFailed records a failed capture, freeing the booking for a retry
func (r *PaymentRepository) MarkPaymentFailed(ctx context.Context, id uuid.UUID, reason string, gatewayRef *string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET status = 'failed', failure_reason = $2, gateway_reference = COALESCE($3, gateway_reference),
		    updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`, id, reason, gatewayRef)
	if err != nil {
		return fmt.Errorf("failed to mark payment failed: %w", err)
	}
	return nil
}
