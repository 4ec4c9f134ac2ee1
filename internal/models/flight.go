package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FlightStatus represents the operational status of a scheduled flight
type FlightStatus string

const (
	FlightStatusScheduled FlightStatus = "scheduled"
	FlightStatusDelayed   FlightStatus = "delayed"
	FlightStatusCancelled FlightStatus = "cancelled"
	FlightStatusCompleted FlightStatus = "completed"
)

// SeatClass is the cabin class of a physical seat
type SeatClass string

const (
	SeatClassEconomy  SeatClass = "economy"
	SeatClassBusiness SeatClass = "business"
	SeatClassFirst    SeatClass = "first"
)

// FlightSeatStatus represents the inventory status of a seat on one flight
type FlightSeatStatus string

const (
	FlightSeatStatusAvailable FlightSeatStatus = "available"
	FlightSeatStatusReserved  FlightSeatStatus = "reserved"
	FlightSeatStatusBooked    FlightSeatStatus = "booked"
)

// DefaultTaxRate is applied when a flight carries no explicit tax rate
var DefaultTaxRate = decimal.RequireFromString("0.15")

// Flight is a scheduled flight instance. Owned by the scheduling collaborator.
type Flight struct {
	ID                   uuid.UUID       `json:"id" db:"id"`
	FlightNumber         string          `json:"flight_number" db:"flight_number"`
	AirplaneID           uuid.UUID       `json:"airplane_id" db:"airplane_id"`
	OriginAirportID      uuid.UUID       `json:"origin_airport_id" db:"origin_airport_id"`
	DestinationAirportID uuid.UUID       `json:"destination_airport_id" db:"destination_airport_id"`
	DepartureTime        time.Time       `json:"departure_time" db:"departure_time"`
	ArrivalTime          time.Time       `json:"arrival_time" db:"arrival_time"`
	Status               FlightStatus    `json:"status" db:"status"`
	BasePrice            decimal.Decimal `json:"base_price" db:"base_price"`
	TaxRate              decimal.Decimal `json:"tax_rate" db:"tax_rate"`
	CreatedAt            time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at" db:"updated_at"`
}

// HasDeparted reports whether the flight left before now
func (f *Flight) HasDeparted(now time.Time) bool {
	return !f.DepartureTime.After(now)
}

// IsBookable reports whether new bookings may be opened on the flight
func (f *Flight) IsBookable(now time.Time) bool {
	if f.Status == FlightStatusCancelled || f.Status == FlightStatusCompleted {
		return false
	}
	return !f.HasDeparted(now)
}

// Seat is the physical seat definition on an airplane
type Seat struct {
	ID         uuid.UUID `json:"id" db:"id"`
	AirplaneID uuid.UUID `json:"airplane_id" db:"airplane_id"`
	SeatLabel  string    `json:"seat_label" db:"seat_label"` // row + column, e.g. 12C
	SeatClass  SeatClass `json:"seat_class" db:"seat_class"`
}

// FlightSeat is the bookable unit: one seat on one flight
type FlightSeat struct {
	ID              uuid.UUID        `json:"id" db:"id"`
	FlightID        uuid.UUID        `json:"flight_id" db:"flight_id"`
	SeatID          uuid.UUID        `json:"seat_id" db:"seat_id"`
	SeatLabel       string           `json:"seat_label" db:"seat_label"`
	SeatClass       SeatClass        `json:"seat_class" db:"seat_class"`
	Status          FlightSeatStatus `json:"status" db:"status"`
	PriceMultiplier decimal.Decimal  `json:"price_multiplier" db:"price_multiplier"`
	HeldByBookingID *uuid.UUID       `json:"-" db:"held_by_booking_id"`
	HeldUntil       *time.Time       `json:"held_until,omitempty" db:"held_until"`
	Version         int64            `json:"-" db:"version"`
	UpdatedAt       time.Time        `json:"updated_at" db:"updated_at"`
}

// IsHeldBy reports whether the seat carries a live hold for the given booking
func (s *FlightSeat) IsHeldBy(bookingID uuid.UUID, now time.Time) bool {
	if s.HeldByBookingID == nil || *s.HeldByBookingID != bookingID {
		return false
	}
	switch s.Status {
	case FlightSeatStatusBooked:
		return true
	case FlightSeatStatusReserved:
		return s.HeldUntil != nil && s.HeldUntil.After(now)
	default:
		return false
	}
}

// ReservationToken proves a time-boxed hold on a flight seat
type ReservationToken struct {
	FlightSeatID uuid.UUID `json:"flight_seat_id"`
	HolderID     uuid.UUID `json:"holder_id"`
	ExpiresAt    time.Time `json:"expires_at"`
}
