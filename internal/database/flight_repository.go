package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/skyroute/booking-core/internal/models"
)

// FlightRepository reads the flight catalog
type FlightRepository struct {
	db DB
}

// NewFlightRepository creates a new FlightRepository
func NewFlightRepository(db DB) *FlightRepository {
	return &FlightRepository{db: db}
}

// GetFlight retrieves a flight by ID. Returns nil, nil when it does not exist.
func (r *FlightRepository) GetFlight(ctx context.Context, id uuid.UUID) (*models.Flight, error) {
	query := `
		SELECT id, flight_number, airplane_id, origin_airport_id, destination_airport_id,
		       departure_time, arrival_time, status, base_price,
		       COALESCE(tax_rate, $2) AS tax_rate, created_at, updated_at
		FROM flights
		WHERE id = $1`

	var flight models.Flight
	err := r.db.GetContext(ctx, &flight, query, id, models.DefaultTaxRate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get flight: %w", err)
	}
	return &flight, nil
}

// ListFlightSeats returns the seat map of a flight ordered by seat label
func (r *FlightRepository) ListFlightSeats(ctx context.Context, flightID uuid.UUID) ([]models.FlightSeat, error) {
	query := `
		SELECT fs.id, fs.flight_id, fs.seat_id, s.seat_label, s.seat_class, fs.status,
		       fs.price_multiplier, fs.held_by_booking_id, fs.held_until, fs.version, fs.updated_at
		FROM flight_seats fs
		JOIN seats s ON s.id = fs.seat_id
		WHERE fs.flight_id = $1
		ORDER BY s.seat_label`

	seats := []models.FlightSeat{}
	if err := r.db.SelectContext(ctx, &seats, query, flightID); err != nil {
		return nil, fmt.Errorf("failed to list flight seats: %w", err)
	}
	return seats, nil
}
