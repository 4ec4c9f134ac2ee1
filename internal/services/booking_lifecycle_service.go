package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/skyroute/booking-core/internal/database"
	"github.com/skyroute/booking-core/internal/events"
	"github.com/skyroute/booking-core/internal/metrics"
	"github.com/skyroute/booking-core/internal/models"
	"github.com/skyroute/booking-core/internal/utils"
	"github.com/skyroute/booking-core/pkg/validator"
)

const (
	maxReferenceAttempts = 5
	// paymentHoldGrace covers seat confirmation after a capture returns
	paymentHoldGrace = time.Minute
)

// FlightCatalog is the read-only flight and seat catalog
type FlightCatalog interface {
	GetFlight(ctx context.Context, id uuid.UUID) (*models.Flight, error)
	ListFlightSeats(ctx context.Context, flightID uuid.UUID) ([]models.FlightSeat, error)
}

// BookingStore persists bookings and the passengers they own.
// Getters return nil, nil when the row does not exist.
type BookingStore interface {
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	GetBookingByReference(ctx context.Context, reference string) (*models.Booking, error)
	ListBookingsByUser(ctx context.Context, userID uuid.UUID, status *models.BookingStatus, limit int) ([]models.Booking, error)
	UpdateBookingTotal(ctx context.Context, id uuid.UUID, total decimal.Decimal) error
	// ConfirmBooking moves a pending booking to confirmed; false if it was not pending
	ConfirmBooking(ctx context.Context, id uuid.UUID, total decimal.Decimal) (bool, error)
	// CancelPendingBooking cancels a pending booking and its passengers in one transaction
	CancelPendingBooking(ctx context.Context, id uuid.UUID, reason models.CancelReason, now time.Time) (bool, error)
	// CancelConfirmedBooking cancels a confirmed booking, cancels its passengers
	// and records refund in one transaction
	CancelConfirmedBooking(ctx context.Context, id uuid.UUID, refund *models.Refund, now time.Time) (bool, error)
	ListAbandonedBookings(ctx context.Context, now time.Time, limit int) ([]models.Booking, error)
	CreatePassenger(ctx context.Context, passenger *models.Passenger) error
	ListPassengers(ctx context.Context, bookingID uuid.UUID) ([]models.Passenger, error)
}

// PaymentStore persists payment attempts
type PaymentStore interface {
	// CreatePayment records a pending attempt and keeps the booking's hold
	// open until at least holdUntil
	CreatePayment(ctx context.Context, payment *models.Payment, holdUntil time.Time) error
	GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	GetSuccessfulPayment(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error)
	MarkPaymentSucceeded(ctx context.Context, id uuid.UUID, gatewayRef string) error
	MarkPaymentFailed(ctx context.Context, id uuid.UUID, reason string, gatewayRef *string) error
}

// RefundStore persists refund requests
type RefundStore interface {
	GetRefund(ctx context.Context, id uuid.UUID) (*models.Refund, error)
	GetRefundByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Refund, error)
	// ListRefunds returns the review queue; a nil status matches all
	ListRefunds(ctx context.Context, status *models.RefundStatus, limit int) ([]models.Refund, error)
	ListRefundsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Refund, error)
	// TransitionRefund applies t only while the refund is still in t.From
	TransitionRefund(ctx context.Context, t models.RefundTransition) (bool, error)
}

// BookingLifecycleConfig holds configuration for the orchestrator
type BookingLifecycleConfig struct {
	BookingHoldWindow  time.Duration // how long a pending booking stays open
	PaymentTimeout     time.Duration // upper bound on one capture call
	ReconcileBatchSize int
}

// DefaultBookingLifecycleConfig returns default configuration
func DefaultBookingLifecycleConfig() BookingLifecycleConfig {
	return BookingLifecycleConfig{
		BookingHoldWindow:  30 * time.Minute,
		PaymentTimeout:     30 * time.Second,
		ReconcileBatchSize: 200,
	}
}

// BookingLifecycleService drives a booking from creation through payment to
// cancellation and refund
type BookingLifecycleService struct {
	catalog   FlightCatalog
	bookings  BookingStore
	payments  PaymentStore
	refunds   RefundStore
	seats     *SeatInventoryService
	resolver  *CancellationPolicyResolver
	gateway   PaymentGateway
	events    events.Publisher
	validator *validator.PassengerValidator
	metrics   *metrics.Metrics
	config    BookingLifecycleConfig
	logger    *logrus.Logger
	now       func() time.Time
}

// NewBookingLifecycleService creates a new orchestrator service
func NewBookingLifecycleService(
	catalog FlightCatalog,
	bookings BookingStore,
	payments PaymentStore,
	refunds RefundStore,
	seats *SeatInventoryService,
	resolver *CancellationPolicyResolver,
	gateway PaymentGateway,
	publisher events.Publisher,
	m *metrics.Metrics,
	config BookingLifecycleConfig,
	logger *logrus.Logger,
) *BookingLifecycleService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if config.ReconcileBatchSize <= 0 {
		config.ReconcileBatchSize = DefaultBookingLifecycleConfig().ReconcileBatchSize
	}
	return &BookingLifecycleService{
		catalog:   catalog,
		bookings:  bookings,
		payments:  payments,
		refunds:   refunds,
		seats:     seats,
		resolver:  resolver,
		gateway:   gateway,
		events:    publisher,
		validator: validator.NewPassengerValidator(),
		metrics:   m,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// ============================================================================
// BOOKING ASSEMBLY
// ============================================================================

// CreateBooking opens a pending booking for userID on flightID
func (s *BookingLifecycleService) CreateBooking(ctx context.Context, userID, flightID uuid.UUID) (*models.Booking, error) {
	flight, err := s.getFlight(ctx, flightID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !flight.IsBookable(now) {
		return nil, models.NewBookingError(models.ErrCodeInvalidTransition, "flight is no longer open for booking")
	}

	booking := &models.Booking{
		ID:            uuid.New(),
		UserID:        userID,
		FlightID:      flightID,
		Status:        models.BookingStatusPending,
		TotalAmount:   decimal.Zero,
		HoldExpiresAt: now.Add(s.config.BookingHoldWindow),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	for attempt := 1; ; attempt++ {
		ref, err := utils.GenerateBookingReference()
		if err != nil {
			return nil, err
		}
		booking.BookingReference = ref

		err = s.bookings.CreateBooking(ctx, booking)
		if err == nil {
			break
		}
		if errors.Is(err, database.ErrDuplicateBookingReference) && attempt < maxReferenceAttempts {
			continue
		}
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	s.metrics.BookingsCreated.Inc()
	s.logger.WithFields(logrus.Fields{
		"booking_id":  booking.ID,
		"reference":   booking.BookingReference,
		"flight_id":   flightID,
		"user_id":     userID,
		"hold_expiry": booking.HoldExpiresAt,
	}).Info("Booking created")

	s.publish(ctx, booking, events.BookingCreated, nil, nil)
	return booking, nil
}

// ReserveSeat places a hold on a seat for the booking ahead of adding a passenger
func (s *BookingLifecycleService) ReserveSeat(ctx context.Context, userID, bookingID, flightSeatID uuid.UUID) (*models.ReservationToken, error) {
	booking, err := s.loadOwnedBooking(ctx, userID, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusPending {
		return nil, models.NewBookingError(models.ErrCodeInvalidTransition, "seats can only be reserved on a pending booking")
	}

	if _, err := s.seatOnFlight(ctx, flightSeatID, booking.FlightID); err != nil {
		return nil, err
	}

	return s.seats.Reserve(ctx, flightSeatID, booking.ID)
}

// AddPassenger adds a traveler to a pending booking. A seated traveler's seat
// is reserved first; if that fails the booking is left untouched.
func (s *BookingLifecycleService) AddPassenger(ctx context.Context, userID, bookingID uuid.UUID, input models.PassengerInput) (*models.Passenger, error) {
	booking, err := s.loadOwnedBooking(ctx, userID, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusPending {
		return nil, models.NewBookingError(models.ErrCodeInvalidTransition, "passengers can only be added to a pending booking")
	}

	flight, err := s.getFlight(ctx, booking.FlightID)
	if err != nil {
		return nil, err
	}

	details := &validator.PassengerDetails{
		PassengerType: string(input.PassengerType),
		FirstName:     input.FirstName,
		LastName:      input.LastName,
		DateOfBirth:   input.DateOfBirth,
		Email:         input.Email,
		Phone:         input.Phone,
	}
	if err := s.validator.Validate(details, flight.DepartureTime); err != nil {
		return nil, models.WrapBookingError(models.ErrCodeInvalidRequest, err.Error(), err)
	}

	if input.FlightSeatID == nil && input.PassengerType.RequiresSeat() {
		return nil, models.NewBookingError(models.ErrCodeInvalidRequest, "adult and child passengers need a seat")
	}

	if input.FlightSeatID != nil {
		seat, err := s.seatOnFlight(ctx, *input.FlightSeatID, booking.FlightID)
		if err != nil {
			return nil, err
		}
		// price before reserving so bad catalog data never pins a seat
		if _, err := SeatUpgradePrice(flight.BasePrice, seat.PriceMultiplier); err != nil {
			return nil, err
		}
		if _, err := s.seats.Reserve(ctx, seat.ID, booking.ID); err != nil {
			return nil, err
		}
	}

	passenger := &models.Passenger{
		ID:            uuid.New(),
		BookingID:     booking.ID,
		PassengerType: input.PassengerType,
		FirstName:     strings.TrimSpace(input.FirstName),
		LastName:      strings.TrimSpace(input.LastName),
		DateOfBirth:   input.DateOfBirth,
		Email:         input.Email,
		Phone:         details.Phone,
		FlightSeatID:  input.FlightSeatID,
		CreatedAt:     s.now(),
	}

	if err := s.bookings.CreatePassenger(ctx, passenger); err != nil {
		if errors.Is(err, database.ErrSeatAlreadyAssigned) {
			return nil, models.ErrSeatUnavailable
		}
		// the seat stays reserved and lapses through the hold sweep
		return nil, fmt.Errorf("failed to add passenger: %w", err)
	}

	if _, err := s.refreshTotal(ctx, booking, flight); err != nil {
		s.logger.WithError(err).WithField("booking_id", booking.ID).Warn("Failed to refresh booking total")
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":     booking.ID,
		"passenger_id":   passenger.ID,
		"passenger_type": passenger.PassengerType,
		"flight_seat_id": passenger.FlightSeatID,
	}).Info("Passenger added")

	return passenger, nil
}

// ============================================================================
// PAYMENT
// ============================================================================

// CompletePayment captures payment and confirms every seat on the booking.
// Seat confirmation is all-or-nothing; a lapsed hold fails the payment and
// leaves the booking pending for a retry.
func (s *BookingLifecycleService) CompletePayment(ctx context.Context, userID, bookingID uuid.UUID, amount decimal.Decimal, method models.PaymentMethod) (*models.Booking, error) {
	if !method.IsValid() {
		return nil, models.NewBookingError(models.ErrCodeInvalidRequest, "payment method must be credit_card or paypal")
	}

	booking, err := s.loadOwnedBooking(ctx, userID, bookingID)
	if err != nil {
		return nil, err
	}
	switch booking.Status {
	case models.BookingStatusConfirmed:
		return nil, models.NewBookingError(models.ErrCodeInvalidTransition, "booking is already confirmed")
	case models.BookingStatusCancelled:
		return nil, models.NewBookingError(models.ErrCodeInvalidTransition, "booking is cancelled")
	}

	flight, err := s.getFlight(ctx, booking.FlightID)
	if err != nil {
		return nil, err
	}
	if flight.HasDeparted(s.now()) {
		return nil, models.NewBookingError(models.ErrCodeInvalidTransition, "flight has already departed")
	}

	passengers, err := s.bookings.ListPassengers(ctx, booking.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load passengers: %w", err)
	}
	seatMap, err := s.flightSeatMap(ctx, booking.FlightID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !booking.HoldExpiresAt.After(now) {
		return nil, models.NewBookingError(models.ErrCodeStaleReservation,
			"booking hold window has passed, please start a new booking")
	}

	var seatIDs []uuid.UUID
	active, lapsed := 0, 0
	for _, p := range passengers {
		if !p.IsActive() {
			if p.CancelReason != nil && *p.CancelReason == models.CancelReasonHoldExpired {
				lapsed++
			}
			continue
		}
		active++
		if p.FlightSeatID == nil {
			continue
		}
		seat, ok := seatMap[p.FlightSeatID.String()]
		if !ok || !seat.IsHeldBy(booking.ID, now) {
			return nil, models.ErrStaleReservation
		}
		seatIDs = append(seatIDs, *p.FlightSeatID)
	}
	if active == 0 {
		if lapsed > 0 {
			return nil, models.ErrStaleReservation
		}
		return nil, models.NewBookingError(models.ErrCodeInvalidRequest, "booking has no passengers")
	}

	total, err := PriceBooking(flight, passengers, seatMap)
	if err != nil {
		return nil, err
	}
	if !amount.Equal(total) {
		if lapsed > 0 {
			return nil, models.WrapBookingError(models.ErrCodeStaleReservation,
				"a seat hold expired and the booking total changed, please review and retry payment", nil)
		}
		return nil, models.NewBookingError(models.ErrCodeInvalidRequest,
			fmt.Sprintf("amount %s does not match booking total %s", amount.StringFixed(moneyPlaces), total.StringFixed(moneyPlaces)))
	}

	payment := &models.Payment{
		ID:        uuid.New(),
		BookingID: booking.ID,
		Amount:    total,
		Method:    method,
		Status:    models.PaymentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	holdUntil := now.Add(s.config.PaymentTimeout + paymentHoldGrace)
	if err := s.payments.CreatePayment(ctx, payment, holdUntil); err != nil {
		if errors.Is(err, database.ErrPaymentInProgress) {
			return nil, models.NewBookingError(models.ErrCodeInvalidTransition, "a payment for this booking is already in progress")
		}
		if errors.Is(err, database.ErrBookingNotPending) {
			return nil, models.NewBookingError(models.ErrCodeInvalidTransition, "booking is no longer pending")
		}
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}

	result, err := s.capture(ctx, booking.ID, total, method)
	if err != nil || !result.Success {
		reason := "payment declined"
		var ref *string
		if err != nil {
			reason = err.Error()
		} else {
			if result.Message != "" {
				reason = result.Message
			}
			if result.GatewayReference != "" {
				ref = &result.GatewayReference
			}
		}
		s.failPayment(ctx, booking, payment, reason, ref)
		return nil, models.WrapBookingError(models.ErrCodePaymentFailed, models.ErrPaymentFailed.Message, err)
	}

	if err := s.seats.ConfirmAll(ctx, booking.ID, seatIDs); err != nil {
		s.logger.WithFields(logrus.Fields{
			"booking_id":        booking.ID,
			"payment_id":        payment.ID,
			"gateway_reference": result.GatewayReference,
		}).Error("Payment captured but seats could not be confirmed, captured funds must be reversed")
		s.failPayment(ctx, booking, payment, "seat confirmation failed", &result.GatewayReference)
		return nil, err
	}

	if err := s.payments.MarkPaymentSucceeded(ctx, payment.ID, result.GatewayReference); err != nil {
		return nil, fmt.Errorf("failed to mark payment succeeded: %w", err)
	}

	confirmed, err := s.bookings.ConfirmBooking(ctx, booking.ID, total)
	if err != nil {
		return nil, fmt.Errorf("failed to confirm booking: %w", err)
	}
	if !confirmed {
		return nil, models.NewBookingError(models.ErrCodeInvalidTransition, "booking is no longer pending")
	}

	booking.Status = models.BookingStatusConfirmed
	booking.TotalAmount = total
	booking.UpdatedAt = s.now()

	s.metrics.BookingsConfirmed.Inc()
	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"reference":  booking.BookingReference,
		"amount":     total.StringFixed(moneyPlaces),
		"seats":      len(seatIDs),
	}).Info("Booking confirmed")

	s.publish(ctx, booking, events.BookingConfirmed, &total, nil)
	return booking, nil
}

func (s *BookingLifecycleService) capture(ctx context.Context, bookingID uuid.UUID, amount decimal.Decimal, method models.PaymentMethod) (*models.PaymentResult, error) {
	captureCtx := ctx
	if s.config.PaymentTimeout > 0 {
		var cancel context.CancelFunc
		captureCtx, cancel = context.WithTimeout(ctx, s.config.PaymentTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := s.gateway.CapturePayment(captureCtx, bookingID, amount, method)
	s.metrics.PaymentCaptureDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		s.metrics.PaymentCaptures.WithLabelValues("error").Inc()
	case result.Success:
		s.metrics.PaymentCaptures.WithLabelValues("success").Inc()
	default:
		s.metrics.PaymentCaptures.WithLabelValues("declined").Inc()
	}
	return result, err
}

func (s *BookingLifecycleService) failPayment(ctx context.Context, booking *models.Booking, payment *models.Payment, reason string, gatewayRef *string) {
	if err := s.payments.MarkPaymentFailed(ctx, payment.ID, reason, gatewayRef); err != nil {
		s.logger.WithError(err).WithField("payment_id", payment.ID).Error("Failed to mark payment failed")
	}
	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"payment_id": payment.ID,
		"reason":     reason,
	}).Warn("Payment failed, booking left pending")

	amount := payment.Amount
	s.publish(ctx, booking, events.PaymentFailed, &amount, nil)
}

// ============================================================================
// CANCELLATION & REFUNDS
// ============================================================================

// RequestCancellation cancels a booking and returns its seats to inventory.
// A paid booking gets a pending refund priced by the cancellation policy.
func (s *BookingLifecycleService) RequestCancellation(ctx context.Context, userID, bookingID uuid.UUID, reason *string) (*models.CancellationResult, error) {
	booking, err := s.loadOwnedBooking(ctx, userID, bookingID)
	if err != nil {
		return nil, err
	}

	switch booking.Status {
	case models.BookingStatusCancelled:
		return nil, models.NewBookingError(models.ErrCodeBookingNotRefundable, "booking is already cancelled")
	case models.BookingStatusPending:
		return s.cancelPending(ctx, booking, models.CancelReasonUserRequested)
	}

	flight, err := s.getFlight(ctx, booking.FlightID)
	if err != nil {
		return nil, err
	}
	payment, err := s.payments.GetSuccessfulPayment(ctx, booking.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	if payment == nil {
		return nil, fmt.Errorf("confirmed booking %s has no successful payment", booking.ID)
	}

	now := s.now()
	quote, err := s.resolver.QuoteRefund(ctx, booking, payment.Amount, flight.DepartureTime, now)
	if err != nil {
		return nil, err
	}
	if !quote.CanCancel {
		return nil, models.NewBookingError(models.ErrCodeBookingNotRefundable, quote.Message)
	}

	refund := &models.Refund{
		ID:               uuid.New(),
		BookingID:        booking.ID,
		PaymentID:        &payment.ID,
		RefundAmount:     quote.RefundAmount,
		RefundPercentage: quote.RefundPercentage,
		CancellationFee:  quote.CancellationFee,
		RefundReason:     reason,
		PolicyApplied:    quote.PolicyApplied,
		Status:           models.RefundStatusPending,
		RequestedBy:      userID,
		RequestedAt:      now,
	}

	cancelled, err := s.bookings.CancelConfirmedBooking(ctx, booking.ID, refund, now)
	if err != nil {
		if errors.Is(err, database.ErrRefundExists) {
			return nil, models.NewBookingError(models.ErrCodeBookingNotRefundable, "a refund has already been requested for this booking")
		}
		return nil, fmt.Errorf("failed to cancel booking: %w", err)
	}
	if !cancelled {
		return nil, models.NewBookingError(models.ErrCodeInvalidTransition, "booking changed state while cancelling")
	}

	s.markCancelled(booking, models.CancelReasonUserRequested, now)
	s.releaseBookingSeats(ctx, booking.ID)

	s.logger.WithFields(logrus.Fields{
		"booking_id":    booking.ID,
		"refund_id":     refund.ID,
		"refund_amount": refund.RefundAmount.StringFixed(moneyPlaces),
		"policy":        refund.PolicyApplied,
	}).Info("Booking cancelled with refund request")

	s.publish(ctx, booking, events.BookingCancelled, nil, nil)
	s.publish(ctx, booking, events.RefundRequested, &refund.RefundAmount, &refund.ID)

	return &models.CancellationResult{Booking: *booking, Quote: quote, Refund: refund}, nil
}

func (s *BookingLifecycleService) cancelPending(ctx context.Context, booking *models.Booking, reason models.CancelReason) (*models.CancellationResult, error) {
	now := s.now()
	cancelled, err := s.bookings.CancelPendingBooking(ctx, booking.ID, reason, now)
	if errors.Is(err, database.ErrPaymentInProgress) {
		return nil, models.NewBookingError(models.ErrCodeInvalidTransition, "a payment for this booking is in progress")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to cancel booking: %w", err)
	}
	if !cancelled {
		return nil, models.NewBookingError(models.ErrCodeInvalidTransition, "booking changed state while cancelling")
	}

	s.markCancelled(booking, reason, now)
	s.releaseBookingSeats(ctx, booking.ID)

	eventType := events.BookingCancelled
	if reason == models.CancelReasonHoldExpired {
		eventType = events.BookingExpired
	}
	s.publish(ctx, booking, eventType, nil, nil)

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"reason":     reason,
	}).Info("Pending booking cancelled")

	return &models.CancellationResult{Booking: *booking}, nil
}

func (s *BookingLifecycleService) markCancelled(booking *models.Booking, reason models.CancelReason, now time.Time) {
	booking.Status = models.BookingStatusCancelled
	booking.CancelledAt = &now
	booking.CancelReason = &reason
	booking.UpdatedAt = now
	s.metrics.BookingsCancelled.WithLabelValues(string(reason)).Inc()
}

// releaseBookingSeats frees every seat the booking still holds. Failures are
// logged; the orphaned-seat job picks them up.
func (s *BookingLifecycleService) releaseBookingSeats(ctx context.Context, bookingID uuid.UUID) {
	passengers, err := s.bookings.ListPassengers(ctx, bookingID)
	if err != nil {
		s.logger.WithError(err).WithField("booking_id", bookingID).Error("Failed to load passengers for seat release")
		return
	}

	for _, p := range passengers {
		if p.FlightSeatID == nil {
			continue
		}
		if err := s.seats.ReleaseFor(ctx, *p.FlightSeatID, bookingID); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"booking_id":     bookingID,
				"flight_seat_id": *p.FlightSeatID,
			}).Error("Failed to release seat")
		}
	}
}

// ProcessRefund applies a reviewer decision: pending -> approved|rejected,
// then approved -> completed. amount may lower the refund on approval.
func (s *BookingLifecycleService) ProcessRefund(ctx context.Context, reviewerID, refundID uuid.UUID, decision models.RefundStatus, amount *decimal.Decimal, notes *string) (*models.Refund, error) {
	refund, err := s.refunds.GetRefund(ctx, refundID)
	if err != nil {
		return nil, fmt.Errorf("failed to load refund: %w", err)
	}
	if refund == nil {
		return nil, models.NewBookingError(models.ErrCodeNotFound, "refund not found")
	}

	if refund.Status.IsFinal() {
		return nil, models.NewBookingError(models.ErrCodeRefundAlreadyFinalized,
			fmt.Sprintf("refund is already %s", refund.Status))
	}
	if !refund.Status.CanTransitionTo(decision) {
		return nil, models.NewBookingError(models.ErrCodeInvalidTransition,
			fmt.Sprintf("cannot move refund from %s to %s", refund.Status, decision))
	}

	if amount != nil {
		adjusted, err := s.validateRefundOverride(ctx, refund, decision, *amount)
		if err != nil {
			return nil, err
		}
		amount = &adjusted
	}

	now := s.now()
	applied, err := s.refunds.TransitionRefund(ctx, models.RefundTransition{
		RefundID:    refund.ID,
		From:        refund.Status,
		To:          decision,
		ProcessedBy: reviewerID,
		Amount:      amount,
		Notes:       notes,
		At:          now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update refund: %w", err)
	}
	if !applied {
		return nil, s.refundRaceError(ctx, refundID)
	}

	refund.Status = decision
	refund.ProcessedBy = &reviewerID
	refund.ProcessedAt = &now
	if amount != nil {
		refund.RefundAmount = *amount
	}
	if notes != nil {
		refund.Notes = notes
	}

	s.metrics.RefundDecisions.WithLabelValues(string(decision)).Inc()
	s.logger.WithFields(logrus.Fields{
		"refund_id":   refund.ID,
		"booking_id":  refund.BookingID,
		"decision":    decision,
		"reviewer_id": reviewerID,
		"amount":      refund.RefundAmount.StringFixed(moneyPlaces),
	}).Info("Refund processed")

	s.publishRefund(ctx, refund)
	return refund, nil
}

func (s *BookingLifecycleService) validateRefundOverride(ctx context.Context, refund *models.Refund, decision models.RefundStatus, amount decimal.Decimal) (decimal.Decimal, error) {
	if decision != models.RefundStatusApproved {
		return decimal.Zero, models.NewBookingError(models.ErrCodeInvalidRequest, "a refund amount can only be set when approving")
	}
	if amount.IsNegative() {
		return decimal.Zero, models.NewBookingError(models.ErrCodeNegativeQuantity, "refund amount must not be negative")
	}

	if refund.PaymentID != nil {
		payment, err := s.payments.GetPayment(ctx, *refund.PaymentID)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to load payment: %w", err)
		}
		if payment != nil && amount.GreaterThan(payment.Amount) {
			return decimal.Zero, models.NewBookingError(models.ErrCodeInvalidRequest, "refund amount exceeds the amount paid")
		}
	}
	return RoundMoney(amount), nil
}

// refundRaceError explains a lost conditional update: someone else moved the refund first
func (s *BookingLifecycleService) refundRaceError(ctx context.Context, refundID uuid.UUID) error {
	current, err := s.refunds.GetRefund(ctx, refundID)
	if err == nil && current != nil && current.Status.IsFinal() {
		return models.NewBookingError(models.ErrCodeRefundAlreadyFinalized,
			fmt.Sprintf("refund is already %s", current.Status))
	}
	return models.NewBookingError(models.ErrCodeInvalidTransition, "refund changed state while processing")
}

// GetRefundQuote prices a cancellation of the booking right now without changing anything
func (s *BookingLifecycleService) GetRefundQuote(ctx context.Context, userID, bookingID uuid.UUID) (*models.RefundQuote, error) {
	booking, err := s.loadOwnedBooking(ctx, userID, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusConfirmed {
		// the resolver owns the not-refundable wording
		return s.resolver.QuoteRefund(ctx, booking, decimal.Zero, time.Time{}, s.now())
	}

	flight, err := s.getFlight(ctx, booking.FlightID)
	if err != nil {
		return nil, err
	}
	payment, err := s.payments.GetSuccessfulPayment(ctx, booking.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	paid := booking.TotalAmount
	if payment != nil {
		paid = payment.Amount
	}

	return s.resolver.QuoteRefund(ctx, booking, paid, flight.DepartureTime, s.now())
}

// ============================================================================
// QUERIES
// ============================================================================

// GetBooking returns a booking with its passengers
func (s *BookingLifecycleService) GetBooking(ctx context.Context, userID, bookingID uuid.UUID) (*models.BookingDetails, error) {
	booking, err := s.loadOwnedBooking(ctx, userID, bookingID)
	if err != nil {
		return nil, err
	}
	passengers, err := s.bookings.ListPassengers(ctx, booking.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load passengers: %w", err)
	}
	if passengers == nil {
		passengers = []models.Passenger{}
	}
	return &models.BookingDetails{Booking: *booking, Passengers: passengers}, nil
}

// GetBookingByReference looks a booking up by the reference printed on the itinerary
func (s *BookingLifecycleService) GetBookingByReference(ctx context.Context, userID uuid.UUID, reference string) (*models.BookingDetails, error) {
	reference = strings.ToUpper(strings.TrimSpace(reference))
	if !utils.IsBookingReference(reference) {
		return nil, models.NewBookingError(models.ErrCodeInvalidRequest, "booking reference must look like ABC123XYZ")
	}
	booking, err := s.bookings.GetBookingByReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	if booking == nil {
		return nil, models.NewBookingError(models.ErrCodeNotFound, "booking not found")
	}
	if booking.UserID != userID {
		return nil, models.ErrForbidden
	}
	return s.GetBooking(ctx, userID, booking.ID)
}

// ListBookings returns the caller's bookings, newest first
func (s *BookingLifecycleService) ListBookings(ctx context.Context, userID uuid.UUID, status *models.BookingStatus, limit int) ([]models.Booking, error) {
	if status != nil && !status.IsValid() {
		return nil, models.NewBookingError(models.ErrCodeInvalidRequest, "status must be pending, confirmed or cancelled")
	}
	bookings, err := s.bookings.ListBookingsByUser(ctx, userID, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// GetBookingRefund returns the refund request of one of the caller's bookings
func (s *BookingLifecycleService) GetBookingRefund(ctx context.Context, userID, bookingID uuid.UUID) (*models.Refund, error) {
	booking, err := s.loadOwnedBooking(ctx, userID, bookingID)
	if err != nil {
		return nil, err
	}
	refund, err := s.refunds.GetRefundByBooking(ctx, booking.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load refund: %w", err)
	}
	if refund == nil {
		return nil, models.NewBookingError(models.ErrCodeNotFound, "no refund has been requested for this booking")
	}
	return refund, nil
}

// ListUserRefunds returns the refunds on the caller's bookings
func (s *BookingLifecycleService) ListUserRefunds(ctx context.Context, userID uuid.UUID, limit int) ([]models.Refund, error) {
	refunds, err := s.refunds.ListRefundsByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list refunds: %w", err)
	}
	return refunds, nil
}

// ListRefunds returns refunds for reviewers to work through
func (s *BookingLifecycleService) ListRefunds(ctx context.Context, status *models.RefundStatus, limit int) ([]models.Refund, error) {
	if status != nil && !status.IsValid() {
		return nil, models.NewBookingError(models.ErrCodeInvalidRequest, "status must be pending, approved, rejected or completed")
	}
	refunds, err := s.refunds.ListRefunds(ctx, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list refunds: %w", err)
	}
	return refunds, nil
}

// ListFlightSeats returns the seat map of a flight
func (s *BookingLifecycleService) ListFlightSeats(ctx context.Context, flightID uuid.UUID) ([]models.FlightSeat, error) {
	if _, err := s.getFlight(ctx, flightID); err != nil {
		return nil, err
	}
	seats, err := s.catalog.ListFlightSeats(ctx, flightID)
	if err != nil {
		return nil, fmt.Errorf("failed to load seats: %w", err)
	}
	return seats, nil
}

// ============================================================================
// RECONCILIATION
// ============================================================================

// ExpireAbandonedBookings cancels pending bookings whose hold window has
// passed and returns their seats. Returns how many bookings were expired.
func (s *BookingLifecycleService) ExpireAbandonedBookings(ctx context.Context, now time.Time) (int, error) {
	expired := 0
	for {
		bookings, err := s.bookings.ListAbandonedBookings(ctx, now, s.config.ReconcileBatchSize)
		if err != nil {
			return expired, fmt.Errorf("failed to list abandoned bookings: %w", err)
		}
		if len(bookings) == 0 {
			break
		}

		progressed := 0
		for i := range bookings {
			if _, err := s.cancelPending(ctx, &bookings[i], models.CancelReasonHoldExpired); err != nil {
				if models.ErrorCodeOf(err) == models.ErrCodeInvalidTransition {
					continue // paid or cancelled in the meantime
				}
				s.logger.WithError(err).WithField("booking_id", bookings[i].ID).Error("Failed to expire booking")
				continue
			}
			progressed++
		}
		expired += progressed

		if len(bookings) < s.config.ReconcileBatchSize || progressed == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return expired, err
		}
	}

	if expired > 0 {
		s.logger.WithField("expired", expired).Info("Expired abandoned bookings")
	}
	return expired, nil
}

// ReleaseSeatsOfCancelledBookings frees seats whose release failed when their booking was cancelled
func (s *BookingLifecycleService) ReleaseSeatsOfCancelledBookings(ctx context.Context) (int, error) {
	return s.seats.ReleaseOrphanedSeats(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *BookingLifecycleService) loadOwnedBooking(ctx context.Context, userID, bookingID uuid.UUID) (*models.Booking, error) {
	booking, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	if booking == nil {
		return nil, models.NewBookingError(models.ErrCodeNotFound, "booking not found")
	}
	if booking.UserID != userID {
		return nil, models.ErrForbidden
	}
	return booking, nil
}

func (s *BookingLifecycleService) getFlight(ctx context.Context, flightID uuid.UUID) (*models.Flight, error) {
	flight, err := s.catalog.GetFlight(ctx, flightID)
	if err != nil {
		return nil, fmt.Errorf("failed to load flight: %w", err)
	}
	if flight == nil {
		return nil, models.NewBookingError(models.ErrCodeNotFound, "flight not found")
	}
	return flight, nil
}

func (s *BookingLifecycleService) seatOnFlight(ctx context.Context, flightSeatID, flightID uuid.UUID) (*models.FlightSeat, error) {
	seat, err := s.seats.GetSeat(ctx, flightSeatID)
	if err != nil {
		return nil, err
	}
	if seat.FlightID != flightID {
		return nil, models.NewBookingError(models.ErrCodeInvalidRequest, "seat belongs to a different flight")
	}
	return seat, nil
}

func (s *BookingLifecycleService) flightSeatMap(ctx context.Context, flightID uuid.UUID) (map[string]models.FlightSeat, error) {
	seats, err := s.catalog.ListFlightSeats(ctx, flightID)
	if err != nil {
		return nil, fmt.Errorf("failed to load seats: %w", err)
	}
	seatMap := make(map[string]models.FlightSeat, len(seats))
	for _, seat := range seats {
		seatMap[seat.ID.String()] = seat
	}
	return seatMap, nil
}

// refreshTotal re-derives the booking total from its passengers
func (s *BookingLifecycleService) refreshTotal(ctx context.Context, booking *models.Booking, flight *models.Flight) (decimal.Decimal, error) {
	passengers, err := s.bookings.ListPassengers(ctx, booking.ID)
	if err != nil {
		return decimal.Zero, err
	}
	seatMap, err := s.flightSeatMap(ctx, flight.ID)
	if err != nil {
		return decimal.Zero, err
	}
	total, err := PriceBooking(flight, passengers, seatMap)
	if err != nil {
		return decimal.Zero, err
	}
	if err := s.bookings.UpdateBookingTotal(ctx, booking.ID, total); err != nil {
		return decimal.Zero, err
	}
	booking.TotalAmount = total
	return total, nil
}

func (s *BookingLifecycleService) publish(ctx context.Context, booking *models.Booking, eventType events.EventType, amount *decimal.Decimal, refundID *uuid.UUID) {
	err := s.events.Publish(ctx, events.BookingEvent{
		Type:             eventType,
		BookingID:        booking.ID,
		BookingReference: booking.BookingReference,
		UserID:           booking.UserID,
		Status:           string(booking.Status),
		Amount:           amount,
		RefundID:         refundID,
		OccurredAt:       s.now().UTC(),
	})
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id": booking.ID,
			"event":      eventType,
		}).Warn("Failed to publish booking event")
	}
}

func (s *BookingLifecycleService) publishRefund(ctx context.Context, refund *models.Refund) {
	var eventType events.EventType
	switch refund.Status {
	case models.RefundStatusApproved:
		eventType = events.RefundApproved
	case models.RefundStatusRejected:
		eventType = events.RefundRejected
	case models.RefundStatusCompleted:
		eventType = events.RefundCompleted
	default:
		return
	}

	booking, err := s.bookings.GetBooking(ctx, refund.BookingID)
	if err != nil || booking == nil {
		booking = &models.Booking{ID: refund.BookingID, Status: models.BookingStatusCancelled}
	}
	amount := refund.RefundAmount
	s.publish(ctx, booking, eventType, &amount, &refund.ID)
}
