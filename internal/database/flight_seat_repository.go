package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/skyroute/booking-core/internal/models"
)

// FlightSeatRepository holds the seat inventory state. Every state change is
// a single conditional statement or one transaction, so concurrent callers
// never both win the same seat.
type FlightSeatRepository struct {
	db DB
}

// NewFlightSeatRepository creates a new FlightSeatRepository
func NewFlightSeatRepository(db DB) *FlightSeatRepository {
	return &FlightSeatRepository{db: db}
}

const flightSeatColumns = `
	fs.id, fs.flight_id, fs.seat_id, s.seat_label, s.seat_class, fs.status,
	fs.price_multiplier, fs.held_by_booking_id, fs.held_until, fs.version, fs.updated_at`

// GetFlightSeat retrieves one flight seat. Returns nil, nil when it does not exist.
func (r *FlightSeatRepository) GetFlightSeat(ctx context.Context, id uuid.UUID) (*models.FlightSeat, error) {
	query := `SELECT ` + flightSeatColumns + `
		FROM flight_seats fs
		JOIN seats s ON s.id = fs.seat_id
		WHERE fs.id = $1`

	var seat models.FlightSeat
	err := r.db.GetContext(ctx, &seat, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get flight seat: %w", err)
	}
	return &seat, nil
}

// TryReserve holds an available seat for holder, or renews holder's own hold
func (r *FlightSeatRepository) TryReserve(ctx context.Context, id, holder uuid.UUID, heldUntil, now time.Time) (bool, error) {
	query := `
		UPDATE flight_seats
		SET status = 'reserved', held_by_booking_id = $2, held_until = $3,
		    version = version + 1, updated_at = $4
		WHERE id = $1
		  AND (status = 'available' OR (status = 'reserved' AND held_by_booking_id = $2))`

	result, err := r.db.ExecContext(ctx, query, id, holder, heldUntil, now)
	if err != nil {
		return false, fmt.Errorf("failed to reserve seat: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// ExpireHold frees a seat whose hold ended before now and cancels the
// passenger bound to that hold
func (r *FlightSeatRepository) ExpireHold(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	expired := false
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var holder uuid.UUID
		err := tx.GetContext(ctx, &holder, `
			SELECT held_by_booking_id
			FROM flight_seats
			WHERE id = $1 AND status = 'reserved' AND held_until < $2
			FOR UPDATE`, id, now)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to lock lapsed hold: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE passengers
			SET cancelled_at = $3, cancel_reason = 'hold_expired'
			WHERE flight_seat_id = $1 AND booking_id = $2 AND cancelled_at IS NULL`,
			id, holder, now); err != nil {
			return fmt.Errorf("failed to cancel passenger on lapsed hold: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE flight_seats
			SET status = 'available', held_by_booking_id = NULL, held_until = NULL,
			    version = version + 1, updated_at = $2
			WHERE id = $1`, id, now); err != nil {
			return fmt.Errorf("failed to free lapsed hold: %w", err)
		}

		expired = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return expired, nil
}

// ConfirmHolds books every listed seat held by holder, or none of them
func (r *FlightSeatRepository) ConfirmHolds(ctx context.Context, holder uuid.UUID, ids []uuid.UUID, now time.Time) (bool, error) {
	if len(ids) == 0 {
		return true, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE flight_seats
		SET status = 'booked', held_until = NULL, version = version + 1, updated_at = $3
		WHERE id = ANY($1)
		  AND held_by_booking_id = $2
		  AND ((status = 'reserved' AND held_until > $3) OR status = 'booked')`,
		pq.Array(uuidStrings(ids)), holder, now)
	if err != nil {
		return false, fmt.Errorf("failed to confirm seats: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows != int64(len(ids)) {
		return false, nil // rollback
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit seat confirmation: %w", err)
	}
	return true, nil
}

// ReleaseSeat returns a seat to inventory regardless of holder and cancels
// the active passenger bound to it, in one transaction
func (r *FlightSeatRepository) ReleaseSeat(ctx context.Context, id uuid.UUID) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE passengers
			SET cancelled_at = NOW(), cancel_reason = 'seat_released'
			WHERE flight_seat_id = $1 AND cancelled_at IS NULL`, id); err != nil {
			return fmt.Errorf("failed to cancel passenger on released seat: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE flight_seats
			SET status = 'available', held_by_booking_id = NULL, held_until = NULL,
			    version = version + 1, updated_at = NOW()
			WHERE id = $1 AND status <> 'available'`, id); err != nil {
			return fmt.Errorf("failed to release seat: %w", err)
		}
		return nil
	})
}

// ReleaseSeatHeldBy returns a seat to inventory only while holder owns it
func (r *FlightSeatRepository) ReleaseSeatHeldBy(ctx context.Context, id, holder uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE flight_seats
		SET status = 'available', held_by_booking_id = NULL, held_until = NULL,
		    version = version + 1, updated_at = NOW()
		WHERE id = $1 AND held_by_booking_id = $2`, id, holder)
	if err != nil {
		return fmt.Errorf("failed to release seat: %w", err)
	}
	return nil
}

// ReleaseExpiredHolds frees up to limit lapsed holds in one transaction,
// cancelling the passengers bound to them. Rows locked by a concurrent
// sweeper are skipped.
func (r *FlightSeatRepository) ReleaseExpiredHolds(ctx context.Context, now time.Time, limit int) (int, error) {
	released := 0
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var ids []string
		if err := tx.SelectContext(ctx, &ids, `
			SELECT id
			FROM flight_seats
			WHERE status = 'reserved' AND held_until < $1
			ORDER BY held_until
			LIMIT $2
			FOR UPDATE SKIP LOCKED`, now, limit); err != nil {
			return fmt.Errorf("failed to select expired holds: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE passengers p
			SET cancelled_at = $2, cancel_reason = 'hold_expired'
			FROM flight_seats fs
			WHERE fs.id = ANY($1)
			  AND p.flight_seat_id = fs.id
			  AND p.booking_id = fs.held_by_booking_id
			  AND p.cancelled_at IS NULL`, pq.Array(ids), now); err != nil {
			return fmt.Errorf("failed to cancel passengers on expired holds: %w", err)
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE flight_seats
			SET status = 'available', held_by_booking_id = NULL, held_until = NULL,
			    version = version + 1, updated_at = $2
			WHERE id = ANY($1)`, pq.Array(ids), now)
		if err != nil {
			return fmt.Errorf("failed to release expired holds: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		released = int(rows)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return released, nil
}

// ReleaseOrphanedSeats frees seats still held or booked by cancelled bookings
func (r *FlightSeatRepository) ReleaseOrphanedSeats(ctx context.Context) (int, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE flight_seats fs
		SET status = 'available', held_by_booking_id = NULL, held_until = NULL,
		    version = fs.version + 1, updated_at = NOW()
		FROM bookings b
		WHERE fs.held_by_booking_id = b.id AND b.status = 'cancelled'`)
	if err != nil {
		return 0, fmt.Errorf("failed to release orphaned seats: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}
