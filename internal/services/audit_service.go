package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/skyroute/booking-core/internal/database"
	"github.com/skyroute/booking-core/internal/models"
	"github.com/skyroute/booking-core/internal/utils"
)

// AuditService records who changed a booking or refund, and from where
type AuditService struct {
	db     database.DB
	logger *logrus.Logger
}

// NewAuditService creates a new audit service
func NewAuditService(db database.DB, logger *logrus.Logger) *AuditService {
	return &AuditService{
		db:     db,
		logger: logger,
	}
}

// AuditEvent represents one row of the audit trail
type AuditEvent struct {
	ActorID    *uuid.UUID
	Action     string // e.g. "booking_cancelled", "refund_approved"
	EntityType string // booking, refund, payment
	EntityID   *uuid.UUID
	Client     utils.ClientInfo
	Details    map[string]interface{}
}

// AuditEntry is an audit row as read back for review
type AuditEntry struct {
	ActorID    *uuid.UUID      `json:"actor_id,omitempty" db:"actor_id"`
	Action     string          `json:"action" db:"action"`
	EntityType string          `json:"entity_type" db:"entity_type"`
	EntityID   *uuid.UUID      `json:"entity_id,omitempty" db:"entity_id"`
	Details    json.RawMessage `json:"details,omitempty" db:"details"`
	IPAddress  *string         `json:"ip_address,omitempty" db:"ip_address"`
	DeviceType *string         `json:"device_type,omitempty" db:"device_type"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// LogBookingCancelled records a traveler cancelling a booking
func (s *AuditService) LogBookingCancelled(ctx context.Context, actorID uuid.UUID, result *models.CancellationResult, client utils.ClientInfo) error {
	details := map[string]interface{}{
		"booking_reference": result.Booking.BookingReference,
	}
	if result.Refund != nil {
		details["refund_id"] = result.Refund.ID
		details["refund_amount"] = result.Refund.RefundAmount.StringFixed(2)
		details["policy_applied"] = result.Refund.PolicyApplied
	}

	bookingID := result.Booking.ID
	return s.LogEvent(ctx, AuditEvent{
		ActorID:    &actorID,
		Action:     "booking_cancelled",
		EntityType: "booking",
		EntityID:   &bookingID,
		Client:     client,
		Details:    details,
	})
}

// LogRefundDecision records a reviewer acting on a refund
func (s *AuditService) LogRefundDecision(ctx context.Context, reviewerID uuid.UUID, refund *models.Refund, override *decimal.Decimal, client utils.ClientInfo) error {
	details := map[string]interface{}{
		"booking_id":    refund.BookingID,
		"status":        refund.Status,
		"refund_amount": refund.RefundAmount.StringFixed(2),
	}
	if override != nil {
		details["amount_override"] = true
	}
	if refund.Notes != nil {
		details["notes"] = *refund.Notes
	}

	refundID := refund.ID
	return s.LogEvent(ctx, AuditEvent{
		ActorID:    &reviewerID,
		Action:     "refund_" + string(refund.Status),
		EntityType: "refund",
		EntityID:   &refundID,
		Client:     client,
		Details:    details,
	})
}

// LogPaymentAttempt records a capture attempt and its outcome
func (s *AuditService) LogPaymentAttempt(ctx context.Context, actorID, bookingID uuid.UUID, amount decimal.Decimal, method models.PaymentMethod, outcome error, client utils.ClientInfo) error {
	details := map[string]interface{}{
		"amount":  amount.StringFixed(2),
		"method":  method,
		"success": outcome == nil,
	}
	action := "payment_succeeded"
	if outcome != nil {
		action = "payment_failed"
		details["error_code"] = models.ErrorCodeOf(outcome)
	}

	return s.LogEvent(ctx, AuditEvent{
		ActorID:    &actorID,
		Action:     action,
		EntityType: "booking",
		EntityID:   &bookingID,
		Client:     client,
		Details:    details,
	})
}

// LogEvent writes one row to audit_logs
func (s *AuditService) LogEvent(ctx context.Context, event AuditEvent) error {
	var details []byte
	if event.Details != nil {
		event.Details["device_info"] = event.Client.Device
		encoded, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("failed to encode audit details: %w", err)
		}
		details = encoded
	}

	query := `
		INSERT INTO audit_logs (actor_id, action, entity_type, entity_id, details, ip_address, user_agent, device_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())`

	_, err := s.db.ExecContext(ctx, query,
		event.ActorID,
		event.Action,
		event.EntityType,
		event.EntityID,
		details,
		event.Client.IP,
		event.Client.UserAgent,
		event.Client.Device.DeviceType,
	)
	if err != nil {
		return fmt.Errorf("failed to log audit event: %w", err)
	}
	return nil
}

// GetEntityHistory returns the most recent audit rows for one entity
func (s *AuditService) GetEntityHistory(ctx context.Context, entityType string, entityID uuid.UUID, limit int) ([]AuditEntry, error) {
	query := `
		SELECT actor_id, action, entity_type, entity_id, details, ip_address, device_type, created_at
		FROM audit_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3`

	entries := []AuditEntry{}
	if err := s.db.SelectContext(ctx, &entries, query, entityType, entityID, limit); err != nil {
		return nil, fmt.Errorf("failed to get audit history: %w", err)
	}
	return entries, nil
}

// CleanupOldAuditLogs removes audit rows older than the retention window
func (s *AuditService) CleanupOldAuditLogs(ctx context.Context, olderThan time.Duration) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old audit logs: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}
