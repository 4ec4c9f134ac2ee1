package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/skyroute/booking-core/internal/models"
)

// FallbackPolicyName labels quotes that fall below every configured tier
const FallbackPolicyName = "Full forfeiture"

// PolicySource supplies the admin-curated cancellation policy table
type PolicySource interface {
	ListActivePolicies(ctx context.Context) ([]models.CancellationPolicy, error)
}

// CancellationPolicyResolver picks the refund tier for a booking and prices the refund
type CancellationPolicyResolver struct {
	policies PolicySource
}

// NewCancellationPolicyResolver creates a resolver over the given policy table
func NewCancellationPolicyResolver(policies PolicySource) *CancellationPolicyResolver {
	return &CancellationPolicyResolver{policies: policies}
}

// QuoteRefund computes what cancelling booking at now would refund.
// originalAmount is what the traveler actually paid.
func (r *CancellationPolicyResolver) QuoteRefund(ctx context.Context, booking *models.Booking, originalAmount decimal.Decimal, departureTime, now time.Time) (*models.RefundQuote, error) {
	switch booking.Status {
	case models.BookingStatusCancelled:
		return nil, models.NewBookingError(models.ErrCodeBookingNotRefundable, "booking is already cancelled")
	case models.BookingStatusPending:
		return nil, models.NewBookingError(models.ErrCodeBookingNotRefundable, "booking has not been paid")
	}
	if originalAmount.IsNegative() {
		return nil, models.NewBookingError(models.ErrCodeNegativeQuantity, "paid amount must not be negative")
	}

	hours := departureTime.Sub(now).Hours()
	quote := &models.RefundQuote{
		BookingID:           booking.ID,
		OriginalAmount:      originalAmount,
		RefundAmount:        decimal.Zero,
		RefundPercentage:    decimal.Zero,
		CancellationFee:     decimal.Zero,
		HoursUntilDeparture: hours,
	}

	if hours <= 0 {
		quote.CanCancel = false
		quote.Message = "Flight already departed; this booking can no longer be cancelled"
		return quote, nil
	}

	policies, err := r.policies.ListActivePolicies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load cancellation policies: %w", err)
	}

	policy, err := selectPolicy(policies, hours)
	if err != nil {
		return nil, err
	}

	quote.CanCancel = true
	if policy == nil {
		quote.PolicyApplied = FallbackPolicyName
		quote.Message = "Cancellation is too close to departure for any refund tier; the full fare is forfeited"
		return quote, nil
	}

	quote.PolicyApplied = policy.Name
	quote.RefundPercentage = policy.RefundPercentage
	quote.CancellationFee = policy.CancellationFee
	quote.RefundAmount = refundAmount(originalAmount, policy.RefundPercentage, policy.CancellationFee)
	quote.Message = fmt.Sprintf("Refund available: %s%% of total amount minus $%s cancellation fee",
		policy.RefundPercentage.String(), policy.CancellationFee.StringFixed(moneyPlaces))

	return quote, nil
}

// selectPolicy returns the active tier with the largest threshold still met
// by hours, or nil when the booking qualifies for none of them.
func selectPolicy(policies []models.CancellationPolicy, hours float64) (*models.CancellationPolicy, error) {
	var best *models.CancellationPolicy
	active := 0
	for i := range policies {
		p := &policies[i]
		if !p.IsActive {
			continue
		}
		active++
		if hours < float64(p.HoursBeforeDeparture) {
			continue
		}
		if best == nil || p.HoursBeforeDeparture > best.HoursBeforeDeparture {
			best = p
		}
	}

	if active == 0 {
		return nil, models.ErrNoPolicyConfigured
	}
	return best, nil
}

// refundAmount is original × pct/100 − fee, clamped to [0, original]
func refundAmount(original, pct, fee decimal.Decimal) decimal.Decimal {
	amount := RoundMoney(original.Mul(pct).Div(hundred).Sub(fee))
	if amount.IsNegative() {
		return decimal.Zero
	}
	if amount.GreaterThan(original) {
		return original
	}
	return amount
}
