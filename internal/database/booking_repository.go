package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/skyroute/booking-core/internal/models"
)

const (
	bookingReferenceConstraint = "bookings_booking_reference_key"
	activeSeatConstraint       = "passengers_active_seat_idx"
	refundPerBookingConstraint = "refunds_booking_id_key"
)

// BookingRepository handles bookings and the passengers they own
type BookingRepository struct {
	db DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// ============================================================================
// BOOKINGS
// ============================================================================

// CreateBooking inserts a new pending booking
func (r *BookingRepository) CreateBooking(ctx context.Context, booking *models.Booking) error {
	query := `
		INSERT INTO bookings (
			id, user_id, flight_id, booking_reference, status, total_amount,
			hold_expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.ExecContext(ctx, query,
		booking.ID, booking.UserID, booking.FlightID, booking.BookingReference, booking.Status,
		booking.TotalAmount, booking.HoldExpiresAt, booking.CreatedAt, booking.UpdatedAt,
	)
	if isUniqueViolation(err, bookingReferenceConstraint) {
		return ErrDuplicateBookingReference
	}
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// GetBooking retrieves a booking by ID. Returns nil, nil when it does not exist.
func (r *BookingRepository) GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	query := `
		SELECT id, user_id, flight_id, booking_reference, status, total_amount,
		       hold_expires_at, cancelled_at, cancel_reason, created_at, updated_at
		FROM bookings
		WHERE id = $1`

	var booking models.Booking
	err := r.db.GetContext(ctx, &booking, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

// GetBookingByReference retrieves a booking by its public reference.
// Returns nil, nil when it does not exist.
func (r *BookingRepository) GetBookingByReference(ctx context.Context, reference string) (*models.Booking, error) {
	query := `
		SELECT id, user_id, flight_id, booking_reference, status, total_amount,
		       hold_expires_at, cancelled_at, cancel_reason, created_at, updated_at
		FROM bookings
		WHERE booking_reference = $1`

	var booking models.Booking
	err := r.db.GetContext(ctx, &booking, query, reference)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking by reference: %w", err)
	}
	return &booking, nil
}

// ListBookingsByUser returns a user's bookings, newest first. A nil status
// matches every status.
func (r *BookingRepository) ListBookingsByUser(ctx context.Context, userID uuid.UUID, status *models.BookingStatus, limit int) ([]models.Booking, error) {
	query := `
		SELECT id, user_id, flight_id, booking_reference, status, total_amount,
		       hold_expires_at, cancelled_at, cancel_reason, created_at, updated_at
		FROM bookings
		WHERE user_id = $1 AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3`

	bookings := []models.Booking{}
	if err := r.db.SelectContext(ctx, &bookings, query, userID, status, limit); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// UpdateBookingTotal stores the derived total of a pending booking
func (r *BookingRepository) UpdateBookingTotal(ctx context.Context, id uuid.UUID, total decimal.Decimal) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE bookings SET total_amount = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`, id, total)
	if err != nil {
		return fmt.Errorf("failed to update booking total: %w", err)
	}
	return nil
}

// ConfirmBooking moves a pending booking to confirmed
func (r *BookingRepository) ConfirmBooking(ctx context.Context, id uuid.UUID, total decimal.Decimal) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE bookings SET status = 'confirmed', total_amount = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`, id, total)
	if err != nil {
		return false, fmt.Errorf("failed to confirm booking: %w", err)
	}
	return affectedOne(result)
}

// CancelPendingBooking cancels a pending booking and its passengers. A booking
// with a capture in flight yields ErrPaymentInProgress. Expiry only applies
// while hold_expires_at is still in the past.
func (r *BookingRepository) CancelPendingBooking(ctx context.Context, id uuid.UUID, reason models.CancelReason, now time.Time) (bool, error) {
	cancelled := false
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		// CreatePayment takes the same row lock, so the count below sees any
		// payment committed before we got here
		if _, err := tx.ExecContext(ctx, `SELECT 1 FROM bookings WHERE id = $1 FOR UPDATE`, id); err != nil {
			return fmt.Errorf("failed to lock booking: %w", err)
		}
		var pending int
		if err := tx.GetContext(ctx, &pending, `
			SELECT COUNT(*) FROM payments
			WHERE booking_id = $1 AND status = 'pending'`, id); err != nil {
			return fmt.Errorf("failed to check pending payments: %w", err)
		}
		if pending > 0 {
			return ErrPaymentInProgress
		}

		ok, err := cancelBookingTx(ctx, tx, id, models.BookingStatusPending, reason, now)
		if err != nil || !ok {
			return err
		}
		cancelled = true
		return nil
	})
	return cancelled, err
}

// CancelConfirmedBooking cancels a confirmed booking, cancels its passengers
// and records the refund request, all in one transaction
func (r *BookingRepository) CancelConfirmedBooking(ctx context.Context, id uuid.UUID, refund *models.Refund, now time.Time) (bool, error) {
	cancelled := false
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		ok, err := cancelBookingTx(ctx, tx, id, models.BookingStatusConfirmed, models.CancelReasonUserRequested, now)
		if err != nil || !ok {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO refunds (
				id, booking_id, payment_id, refund_amount, refund_percentage, cancellation_fee,
				refund_reason, policy_applied, status, requested_by, requested_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			refund.ID, refund.BookingID, refund.PaymentID, refund.RefundAmount, refund.RefundPercentage,
			refund.CancellationFee, refund.RefundReason, refund.PolicyApplied, refund.Status,
			refund.RequestedBy, refund.RequestedAt,
		)
		if isUniqueViolation(err, refundPerBookingConstraint) {
			return ErrRefundExists
		}
		if err != nil {
			return fmt.Errorf("failed to create refund: %w", err)
		}

		cancelled = true
		return nil
	})
	return cancelled, err
}

func cancelBookingTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, from models.BookingStatus, reason models.CancelReason, now time.Time) (bool, error) {
	query := `
		UPDATE bookings
		SET status = 'cancelled', cancelled_at = $3, cancel_reason = $4, updated_at = $3
		WHERE id = $1 AND status = $2`
	if reason == models.CancelReasonHoldExpired {
		query += ` AND hold_expires_at < $3`
	}
	result, err := tx.ExecContext(ctx, query, id, from, now, reason)
	if err != nil {
		return false, fmt.Errorf("failed to cancel booking: %w", err)
	}
	ok, err := affectedOne(result)
	if err != nil || !ok {
		return false, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE passengers
		SET cancelled_at = $2, cancel_reason = $3
		WHERE booking_id = $1 AND cancelled_at IS NULL`, id, now, reason); err != nil {
		return false, fmt.Errorf("failed to cancel passengers: %w", err)
	}
	return true, nil
}

// ListAbandonedBookings returns pending bookings whose hold window ended
// before now and that have no capture in flight
func (r *BookingRepository) ListAbandonedBookings(ctx context.Context, now time.Time, limit int) ([]models.Booking, error) {
	query := `
		SELECT b.id, b.user_id, b.flight_id, b.booking_reference, b.status, b.total_amount,
		       b.hold_expires_at, b.cancelled_at, b.cancel_reason, b.created_at, b.updated_at
		FROM bookings b
		WHERE b.status = 'pending' AND b.hold_expires_at < $1
		  AND NOT EXISTS (
		      SELECT 1 FROM payments p WHERE p.booking_id = b.id AND p.status = 'pending'
		  )
		ORDER BY b.hold_expires_at
		LIMIT $2`

	bookings := []models.Booking{}
	if err := r.db.SelectContext(ctx, &bookings, query, now, limit); err != nil {
		return nil, fmt.Errorf("failed to list abandoned bookings: %w", err)
	}
	return bookings, nil
}

// ============================================================================
// PASSENGERS
// ============================================================================

// CreatePassenger inserts a traveler. A seat already taken by another active
// passenger yields ErrSeatAlreadyAssigned.
func (r *BookingRepository) CreatePassenger(ctx context.Context, passenger *models.Passenger) error {
	query := `
		INSERT INTO passengers (
			id, booking_id, passenger_type, first_name, last_name, date_of_birth,
			email, phone, flight_seat_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.ExecContext(ctx, query,
		passenger.ID, passenger.BookingID, passenger.PassengerType, passenger.FirstName,
		passenger.LastName, passenger.DateOfBirth, passenger.Email, passenger.Phone,
		passenger.FlightSeatID, passenger.CreatedAt,
	)
	if isUniqueViolation(err, activeSeatConstraint) {
		return ErrSeatAlreadyAssigned
	}
	if err != nil {
		return fmt.Errorf("failed to create passenger: %w", err)
	}
	return nil
}

// ListPassengers returns every passenger of a booking, cancelled ones included
func (r *BookingRepository) ListPassengers(ctx context.Context, bookingID uuid.UUID) ([]models.Passenger, error) {
	query := `
		SELECT id, booking_id, passenger_type, first_name, last_name, date_of_birth,
		       email, phone, flight_seat_id, cancelled_at, cancel_reason, created_at
		FROM passengers
		WHERE booking_id = $1
		ORDER BY created_at`

	passengers := []models.Passenger{}
	if err := r.db.SelectContext(ctx, &passengers, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to list passengers: %w", err)
	}
	return passengers, nil
}

func affectedOne(result sql.Result) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return rows == 1, nil
}
