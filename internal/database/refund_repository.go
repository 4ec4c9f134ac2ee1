package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/skyroute/booking-core/internal/models"
)

// RefundRepository handles refund requests and the cancellation policy table
type RefundRepository struct {
	db DB
}

// NewRefundRepository creates a new RefundRepository
func NewRefundRepository(db DB) *RefundRepository {
	return &RefundRepository{db: db}
}

// ============================================================================
// REFUNDS
// ============================================================================

const refundColumns = `
	r.id, r.booking_id, r.payment_id, r.refund_amount, r.refund_percentage, r.cancellation_fee,
	r.refund_reason, r.policy_applied, r.status, r.requested_by, r.processed_by,
	r.requested_at, r.processed_at, r.notes`

// GetRefund retrieves a refund by ID. Returns nil, nil when it does not exist.
func (r *RefundRepository) GetRefund(ctx context.Context, id uuid.UUID) (*models.Refund, error) {
	return r.getRefund(ctx, `SELECT `+refundColumns+` FROM refunds r WHERE r.id = $1`, id)
}

// GetRefundByBooking retrieves the refund request of a booking, or nil
func (r *RefundRepository) GetRefundByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Refund, error) {
	return r.getRefund(ctx, `SELECT `+refundColumns+` FROM refunds r WHERE r.booking_id = $1`, bookingID)
}

func (r *RefundRepository) getRefund(ctx context.Context, query string, arg uuid.UUID) (*models.Refund, error) {
	var refund models.Refund
	err := r.db.GetContext(ctx, &refund, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refund: %w", err)
	}
	return &refund, nil
}

// ListRefunds returns refund requests for review, oldest first so the queue
// is worked in order. A nil status matches every status.
func (r *RefundRepository) ListRefunds(ctx context.Context, status *models.RefundStatus, limit int) ([]models.Refund, error) {
	query := `
		SELECT ` + refundColumns + `
		FROM refunds r
		WHERE ($1::text IS NULL OR r.status = $1)
		ORDER BY r.requested_at
		LIMIT $2`

	refunds := []models.Refund{}
	if err := r.db.SelectContext(ctx, &refunds, query, status, limit); err != nil {
		return nil, fmt.Errorf("failed to list refunds: %w", err)
	}
	return refunds, nil
}

// ListRefundsByUser returns the refunds on a user's bookings, newest first
func (r *RefundRepository) ListRefundsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Refund, error) {
	query := `
		SELECT ` + refundColumns + `
		FROM refunds r
		JOIN bookings b ON b.id = r.booking_id
		WHERE b.user_id = $1
		ORDER BY r.requested_at DESC
		LIMIT $2`

	refunds := []models.Refund{}
	if err := r.db.SelectContext(ctx, &refunds, query, userID, limit); err != nil {
		return nil, fmt.Errorf("failed to list user refunds: %w", err)
	}
	return refunds, nil
}

// TransitionRefund applies a reviewer decision while the refund is still in t.From
func (r *RefundRepository) TransitionRefund(ctx context.Context, t models.RefundTransition) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE refunds
		SET status = $3,
		    processed_by = $4,
		    processed_at = $5,
		    refund_amount = COALESCE($6, refund_amount),
		    notes = COALESCE($7, notes)
		WHERE id = $1 AND status = $2`,
		t.RefundID, t.From, t.To, t.ProcessedBy, t.At, t.Amount, t.Notes)
	if err != nil {
		return false, fmt.Errorf("failed to transition refund: %w", err)
	}
	return affectedOne(result)
}

// ============================================================================
// CANCELLATION POLICIES
// ============================================================================

// ListActivePolicies returns the active refund tiers, widest window first
func (r *RefundRepository) ListActivePolicies(ctx context.Context) ([]models.CancellationPolicy, error) {
	query := `
		SELECT id, name, description, hours_before_departure, refund_percentage,
		       cancellation_fee, is_active, created_at, updated_at
		FROM cancellation_policies
		WHERE is_active = TRUE
		ORDER BY hours_before_departure DESC`

	policies := []models.CancellationPolicy{}
	if err := r.db.SelectContext(ctx, &policies, query); err != nil {
		return nil, fmt.Errorf("failed to list cancellation policies: %w", err)
	}
	return policies, nil
}

// UpsertPolicy inserts a tier or updates the existing tier with the same name
func (r *RefundRepository) UpsertPolicy(ctx context.Context, policy *models.CancellationPolicy) error {
	if policy.ID == uuid.Nil {
		policy.ID = uuid.New()
	}

	query := `
		INSERT INTO cancellation_policies (
			id, name, description, hours_before_departure, refund_percentage,
			cancellation_fee, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (name) DO UPDATE SET
			description = EXCLUDED.description,
			hours_before_departure = EXCLUDED.hours_before_departure,
			refund_percentage = EXCLUDED.refund_percentage,
			cancellation_fee = EXCLUDED.cancellation_fee,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()`

	_, err := r.db.ExecContext(ctx, query,
		policy.ID, policy.Name, policy.Description, policy.HoursBeforeDeparture,
		policy.RefundPercentage, policy.CancellationFee, policy.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert policy %q: %w", policy.Name, err)
	}
	return nil
}

// DeactivatePoliciesExcept switches off every tier whose name is not listed
func (r *RefundRepository) DeactivatePoliciesExcept(ctx context.Context, names []string) (int, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE cancellation_policies
		SET is_active = FALSE, updated_at = NOW()
		WHERE is_active = TRUE AND NOT (name = ANY($1))`, pq.Array(names))
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate policies: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}
