package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RefundStatus represents the review state of a refund request
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusApproved  RefundStatus = "approved"
	RefundStatusRejected  RefundStatus = "rejected"
	RefundStatusCompleted RefundStatus = "completed"
)

// IsValid checks the refund status against the known states
func (s RefundStatus) IsValid() bool {
	switch s {
	case RefundStatusPending, RefundStatusApproved, RefundStatusRejected, RefundStatusCompleted:
		return true
	}
	return false
}

// IsFinal reports whether no further reviewer transition is possible
func (s RefundStatus) IsFinal() bool {
	return s == RefundStatusRejected || s == RefundStatusCompleted
}

// CanTransitionTo reports whether a reviewer may move the refund from s to next
func (s RefundStatus) CanTransitionTo(next RefundStatus) bool {
	switch s {
	case RefundStatusPending:
		return next == RefundStatusApproved || next == RefundStatusRejected
	case RefundStatusApproved:
		return next == RefundStatusCompleted
	}
	return false
}

// CancellationPolicy is one admin-curated refund tier
type CancellationPolicy struct {
	ID                   uuid.UUID       `json:"id" db:"id"`
	Name                 string          `json:"name" db:"name"`
	Description          *string         `json:"description,omitempty" db:"description"`
	HoursBeforeDeparture int             `json:"hours_before_departure" db:"hours_before_departure"`
	RefundPercentage     decimal.Decimal `json:"refund_percentage" db:"refund_percentage"`
	CancellationFee      decimal.Decimal `json:"cancellation_fee" db:"cancellation_fee"`
	IsActive             bool            `json:"is_active" db:"is_active"`
	CreatedAt            time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at" db:"updated_at"`
}

// Refund is the refund request created when a paid booking is cancelled
type Refund struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	BookingID        uuid.UUID       `json:"booking_id" db:"booking_id"`
	PaymentID        *uuid.UUID      `json:"payment_id,omitempty" db:"payment_id"`
	RefundAmount     decimal.Decimal `json:"refund_amount" db:"refund_amount"`
	RefundPercentage decimal.Decimal `json:"refund_percentage" db:"refund_percentage"`
	CancellationFee  decimal.Decimal `json:"cancellation_fee" db:"cancellation_fee"`
	RefundReason     *string         `json:"refund_reason,omitempty" db:"refund_reason"`
	PolicyApplied    string          `json:"policy_applied" db:"policy_applied"`
	Status           RefundStatus    `json:"status" db:"status"`
	RequestedBy      uuid.UUID       `json:"requested_by" db:"requested_by"`
	ProcessedBy      *uuid.UUID      `json:"processed_by,omitempty" db:"processed_by"`
	RequestedAt      time.Time       `json:"requested_at" db:"requested_at"`
	ProcessedAt      *time.Time      `json:"processed_at,omitempty" db:"processed_at"`
	Notes            *string         `json:"notes,omitempty" db:"notes"`
}

// RefundTransition is one reviewer decision applied to a refund
type RefundTransition struct {
	RefundID    uuid.UUID
	From        RefundStatus
	To          RefundStatus
	ProcessedBy uuid.UUID
	Amount      *decimal.Decimal
	Notes       *string
	At          time.Time
}

// RefundQuote is the resolver's answer for a prospective cancellation
type RefundQuote struct {
	BookingID           uuid.UUID       `json:"booking_id"`
	OriginalAmount      decimal.Decimal `json:"original_amount"`
	RefundAmount        decimal.Decimal `json:"refund_amount"`
	RefundPercentage    decimal.Decimal `json:"refund_percentage"`
	CancellationFee     decimal.Decimal `json:"cancellation_fee"`
	HoursUntilDeparture float64         `json:"hours_until_departure"`
	PolicyApplied       string          `json:"policy_applied"`
	CanCancel           bool            `json:"can_cancel"`
	Message             string          `json:"message"`
}

// CancellationResult is returned when a booking is cancelled.
// Refund is nil when nothing had been paid.
type CancellationResult struct {
	Booking Booking      `json:"booking"`
	Quote   *RefundQuote `json:"quote,omitempty"`
	Refund  *Refund      `json:"refund,omitempty"`
}

// ProcessRefundRequest is a reviewer decision on a refund
type ProcessRefundRequest struct {
	Decision RefundStatus     `json:"decision" binding:"required,oneof=approved rejected completed"`
	Amount   *decimal.Decimal `json:"amount,omitempty"`
	Notes    *string          `json:"notes,omitempty"`
}
