package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ============================================================================
// BOOKING STATUSES
// ============================================================================

// BookingStatus represents the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// IsValid checks the booking status against the known states
func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled:
		return true
	}
	return false
}

// CancelReason records why a booking or passenger was cancelled
type CancelReason string

const (
	CancelReasonUserRequested CancelReason = "user_requested"
	CancelReasonHoldExpired   CancelReason = "hold_expired"
	// CancelReasonSeatReleased marks a passenger whose seat an operator freed
	CancelReasonSeatReleased CancelReason = "seat_released"
)

// PassengerType is the fare category of a traveler
type PassengerType string

const (
	PassengerTypeAdult  PassengerType = "adult"
	PassengerTypeChild  PassengerType = "child"
	PassengerTypeInfant PassengerType = "infant"
)

// IsValid checks the passenger type against the known categories
func (t PassengerType) IsValid() bool {
	switch t {
	case PassengerTypeAdult, PassengerTypeChild, PassengerTypeInfant:
		return true
	}
	return false
}

// RequiresSeat reports whether the traveler must occupy a seat of their own.
// Infants may travel on an adult's lap.
func (t PassengerType) RequiresSeat() bool {
	return t != PassengerTypeInfant
}

// PaymentStatus represents the state of a payment attempt
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// PaymentMethod is the instrument used to pay for a booking
type PaymentMethod string

const (
	PaymentMethodCreditCard PaymentMethod = "credit_card"
	PaymentMethodPayPal     PaymentMethod = "paypal"
)

// IsValid checks the payment method against the supported instruments
func (m PaymentMethod) IsValid() bool {
	return m == PaymentMethodCreditCard || m == PaymentMethodPayPal
}

// ============================================================================
// ENTITIES
// ============================================================================

// Booking is a traveler's checkout on a single flight. Never deleted.
type Booking struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	UserID           uuid.UUID       `json:"user_id" db:"user_id"`
	FlightID         uuid.UUID       `json:"flight_id" db:"flight_id"`
	BookingReference string          `json:"booking_reference" db:"booking_reference"`
	Status           BookingStatus   `json:"status" db:"status"`
	TotalAmount      decimal.Decimal `json:"total_amount" db:"total_amount"`
	HoldExpiresAt    time.Time       `json:"hold_expires_at" db:"hold_expires_at"`
	CancelledAt      *time.Time      `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancelReason     *CancelReason   `json:"cancel_reason,omitempty" db:"cancel_reason"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// Passenger is one traveler on a booking
type Passenger struct {
	ID            uuid.UUID     `json:"id" db:"id"`
	BookingID     uuid.UUID     `json:"booking_id" db:"booking_id"`
	PassengerType PassengerType `json:"passenger_type" db:"passenger_type"`
	FirstName     string        `json:"first_name" db:"first_name"`
	LastName      string        `json:"last_name" db:"last_name"`
	DateOfBirth   time.Time     `json:"date_of_birth" db:"date_of_birth"`
	Email         *string       `json:"email,omitempty" db:"email"`
	Phone         *string       `json:"phone,omitempty" db:"phone"`
	FlightSeatID  *uuid.UUID    `json:"flight_seat_id,omitempty" db:"flight_seat_id"`
	CancelledAt   *time.Time    `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancelReason  *CancelReason `json:"cancel_reason,omitempty" db:"cancel_reason"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
}

// IsActive reports whether the passenger still counts toward the booking
func (p *Passenger) IsActive() bool {
	return p.CancelledAt == nil
}

// Payment is one capture attempt against a booking
type Payment struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	BookingID        uuid.UUID       `json:"booking_id" db:"booking_id"`
	Amount           decimal.Decimal `json:"amount" db:"amount"`
	Method           PaymentMethod   `json:"method" db:"method"`
	Status           PaymentStatus   `json:"status" db:"status"`
	GatewayReference *string         `json:"gateway_reference,omitempty" db:"gateway_reference"`
	FailureReason    *string         `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// PaymentResult is what the payment gateway reports for a capture
type PaymentResult struct {
	Success          bool   `json:"success"`
	GatewayReference string `json:"gateway_reference"`
	Message          string `json:"message,omitempty"`
}

// BookingDetails is a booking together with its passengers
type BookingDetails struct {
	Booking    Booking     `json:"booking"`
	Passengers []Passenger `json:"passengers"`
}

// ============================================================================
// REQUEST DTOs
// ============================================================================

// CreateBookingRequest opens a pending booking on a flight
type CreateBookingRequest struct {
	FlightID string `json:"flight_id" binding:"required,uuid"`
}

// AddPassengerRequest adds a traveler, optionally seated, to a pending booking
type AddPassengerRequest struct {
	PassengerType PassengerType `json:"passenger_type" binding:"required"`
	FirstName     string        `json:"first_name" binding:"required"`
	LastName      string        `json:"last_name" binding:"required"`
	DateOfBirth   string        `json:"date_of_birth" binding:"required"` // YYYY-MM-DD
	Email         *string       `json:"email,omitempty"`
	Phone         *string       `json:"phone,omitempty"`
	FlightSeatID  *string       `json:"flight_seat_id,omitempty"`
}

// CompletePaymentRequest captures payment for a pending booking
type CompletePaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method PaymentMethod   `json:"method" binding:"required"`
}

// CancelBookingRequest asks for a booking to be cancelled
type CancelBookingRequest struct {
	Reason *string `json:"reason,omitempty"`
}

// PassengerInput is a parsed AddPassengerRequest
type PassengerInput struct {
	PassengerType PassengerType
	FirstName     string
	LastName      string
	DateOfBirth   time.Time
	Email         *string
	Phone         *string
	FlightSeatID  *uuid.UUID
}
