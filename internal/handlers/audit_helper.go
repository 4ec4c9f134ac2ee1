package handlers

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/skyroute/booking-core/internal/models"
	"github.com/skyroute/booking-core/internal/services"
	"github.com/skyroute/booking-core/internal/utils"
)

// AuditTrail is the slice of the audit service the handlers write to
type AuditTrail interface {
	LogBookingCancelled(ctx context.Context, actorID uuid.UUID, result *models.CancellationResult, client utils.ClientInfo) error
	LogRefundDecision(ctx context.Context, reviewerID uuid.UUID, refund *models.Refund, override *decimal.Decimal, client utils.ClientInfo) error
	LogPaymentAttempt(ctx context.Context, actorID, bookingID uuid.UUID, amount decimal.Decimal, method models.PaymentMethod, outcome error, client utils.ClientInfo) error
	GetEntityHistory(ctx context.Context, entityType string, entityID uuid.UUID, limit int) ([]services.AuditEntry, error)
}

// logAuditError logs audit failures without failing the request
func (h *BookingHandler) logAuditError(operation string, err error) {
	if err != nil {
		h.logger.WithError(err).WithField("operation", operation).Error("Audit write failed")
	}
}

func (h *BookingHandler) safeLogBookingCancelled(ctx context.Context, actorID uuid.UUID, result *models.CancellationResult, client utils.ClientInfo) {
	h.logAuditError("LogBookingCancelled", h.audit.LogBookingCancelled(ctx, actorID, result, client))
}

func (h *BookingHandler) safeLogRefundDecision(ctx context.Context, reviewerID uuid.UUID, refund *models.Refund, override *decimal.Decimal, client utils.ClientInfo) {
	h.logAuditError("LogRefundDecision", h.audit.LogRefundDecision(ctx, reviewerID, refund, override, client))
}

func (h *BookingHandler) safeLogPaymentAttempt(ctx context.Context, actorID, bookingID uuid.UUID, amount decimal.Decimal, method models.PaymentMethod, outcome error, client utils.ClientInfo) {
	h.logAuditError("LogPaymentAttempt", h.audit.LogPaymentAttempt(ctx, actorID, bookingID, amount, method, outcome, client))
}
