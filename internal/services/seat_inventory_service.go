package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/skyroute/booking-core/internal/metrics"
	"github.com/skyroute/booking-core/internal/models"
)

// FlightSeatStore is the shared, transactional seat state. Every method must
// be a single atomic statement or transaction against the backing store.
// Getters return nil, nil when the row does not exist.
type FlightSeatStore interface {
	GetFlightSeat(ctx context.Context, id uuid.UUID) (*models.FlightSeat, error)
	// TryReserve moves the seat to reserved for holder if it is available or
	// already held by holder. Reports false when another holder owns it.
	TryReserve(ctx context.Context, id, holder uuid.UUID, heldUntil, now time.Time) (bool, error)
	// ExpireHold frees one seat whose hold lapsed before now, cancelling the
	// passenger bound to it. Reports false if the hold was still live.
	ExpireHold(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	// ConfirmHolds books every seat held by holder, or none of them.
	ConfirmHolds(ctx context.Context, holder uuid.UUID, ids []uuid.UUID, now time.Time) (bool, error)
	// ReleaseSeat frees the seat and cancels the passenger bound to it
	ReleaseSeat(ctx context.Context, id uuid.UUID) error
	ReleaseSeatHeldBy(ctx context.Context, id, holder uuid.UUID) error
	ReleaseExpiredHolds(ctx context.Context, now time.Time, limit int) (int, error)
	// ReleaseOrphanedSeats frees seats still held or booked by cancelled bookings
	ReleaseOrphanedSeats(ctx context.Context) (int, error)
}

// SeatInventoryConfig holds configuration for the seat inventory
type SeatInventoryConfig struct {
	HoldWindow     time.Duration
	SweepBatchSize int
}

// DefaultSeatInventoryConfig returns sensible defaults
func DefaultSeatInventoryConfig() SeatInventoryConfig {
	return SeatInventoryConfig{
		HoldWindow:     15 * time.Minute,
		SweepBatchSize: 500,
	}
}

// SeatInventoryService owns the available -> reserved -> booked lifecycle of flight seats
type SeatInventoryService struct {
	store   FlightSeatStore
	config  SeatInventoryConfig
	metrics *metrics.Metrics
	logger  *logrus.Logger
	now     func() time.Time
}

// NewSeatInventoryService creates a new seat inventory service
func NewSeatInventoryService(store FlightSeatStore, config SeatInventoryConfig, m *metrics.Metrics, logger *logrus.Logger) *SeatInventoryService {
	if config.SweepBatchSize <= 0 {
		config.SweepBatchSize = DefaultSeatInventoryConfig().SweepBatchSize
	}
	return &SeatInventoryService{
		store:   store,
		config:  config,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// HoldWindow is how long a reservation lasts without payment
func (s *SeatInventoryService) HoldWindow() time.Duration {
	return s.config.HoldWindow
}

// GetSeat loads a flight seat, returning NotFound when it does not exist
func (s *SeatInventoryService) GetSeat(ctx context.Context, flightSeatID uuid.UUID) (*models.FlightSeat, error) {
	seat, err := s.store.GetFlightSeat(ctx, flightSeatID)
	if err != nil {
		return nil, fmt.Errorf("failed to load seat: %w", err)
	}
	if seat == nil {
		return nil, models.NewBookingError(models.ErrCodeNotFound, "flight seat not found")
	}
	return seat, nil
}

// Reserve claims a seat for holder until the hold window elapses.
// Exactly one of many concurrent callers for the same seat succeeds.
func (s *SeatInventoryService) Reserve(ctx context.Context, flightSeatID, holder uuid.UUID) (*models.ReservationToken, error) {
	now := s.now()
	expiresAt := now.Add(s.config.HoldWindow)

	ok, err := s.store.TryReserve(ctx, flightSeatID, holder, expiresAt, now)
	if err != nil {
		s.metrics.SeatReservations.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to reserve seat: %w", err)
	}

	if !ok {
		// On-access sweep: a lapsed hold should not block the seat until the next sweep
		ok, err = s.reclaimLapsedHold(ctx, flightSeatID, holder, expiresAt, now)
		if err != nil {
			s.metrics.SeatReservations.WithLabelValues("error").Inc()
			return nil, err
		}
	}

	if !ok {
		s.metrics.SeatReservations.WithLabelValues("unavailable").Inc()
		return nil, models.ErrSeatUnavailable
	}

	s.metrics.SeatReservations.WithLabelValues("reserved").Inc()
	s.logger.WithFields(logrus.Fields{
		"flight_seat_id": flightSeatID,
		"holder_id":      holder,
		"expires_at":     expiresAt,
	}).Debug("Seat reserved")

	return &models.ReservationToken{
		FlightSeatID: flightSeatID,
		HolderID:     holder,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *SeatInventoryService) reclaimLapsedHold(ctx context.Context, flightSeatID, holder uuid.UUID, expiresAt, now time.Time) (bool, error) {
	seat, err := s.store.GetFlightSeat(ctx, flightSeatID)
	if err != nil {
		return false, fmt.Errorf("failed to load seat: %w", err)
	}
	if seat == nil {
		return false, models.NewBookingError(models.ErrCodeNotFound, "flight seat not found")
	}

	if seat.Status != models.FlightSeatStatusReserved || seat.HeldUntil == nil || !seat.HeldUntil.Before(now) {
		return false, nil
	}

	expired, err := s.store.ExpireHold(ctx, flightSeatID, now)
	if err != nil {
		return false, fmt.Errorf("failed to expire lapsed hold: %w", err)
	}
	if expired {
		s.metrics.HoldsExpired.Inc()
	}

	ok, err := s.store.TryReserve(ctx, flightSeatID, holder, expiresAt, now)
	if err != nil {
		return false, fmt.Errorf("failed to reserve seat: %w", err)
	}
	return ok, nil
}

// Confirm books a seat reserved by holder. The hold must still be live.
// Confirming a seat holder already booked is a no-op.
func (s *SeatInventoryService) Confirm(ctx context.Context, flightSeatID, holder uuid.UUID) error {
	ok, err := s.store.ConfirmHolds(ctx, holder, []uuid.UUID{flightSeatID}, s.now())
	if err != nil {
		return fmt.Errorf("failed to confirm seat: %w", err)
	}
	if !ok {
		return models.NewBookingError(models.ErrCodeInvalidTransition, "seat is not reserved by this booking")
	}
	s.metrics.SeatTransitions.WithLabelValues("confirm").Inc()
	return nil
}

// ConfirmAll books every seat for holder in one transaction.
// If any hold is gone nothing is booked and StaleReservation is returned.
func (s *SeatInventoryService) ConfirmAll(ctx context.Context, holder uuid.UUID, flightSeatIDs []uuid.UUID) error {
	if len(flightSeatIDs) == 0 {
		return nil
	}

	ok, err := s.store.ConfirmHolds(ctx, holder, dedupeIDs(flightSeatIDs), s.now())
	if err != nil {
		return fmt.Errorf("failed to confirm seats: %w", err)
	}
	if !ok {
		s.logger.WithFields(logrus.Fields{
			"holder_id": holder,
			"seats":     len(flightSeatIDs),
		}).Warn("Seat confirmation rejected, at least one hold has lapsed")
		return models.ErrStaleReservation
	}

	s.metrics.SeatTransitions.WithLabelValues("confirm").Add(float64(len(flightSeatIDs)))
	return nil
}

// Release returns a seat to inventory whoever holds it, cancelling the
// passenger seated there. It is an operator action; booking flows use
// ReleaseFor. Releasing an available seat is a no-op.
func (s *SeatInventoryService) Release(ctx context.Context, flightSeatID uuid.UUID) error {
	if err := s.store.ReleaseSeat(ctx, flightSeatID); err != nil {
		return fmt.Errorf("failed to release seat: %w", err)
	}
	s.metrics.SeatTransitions.WithLabelValues("release").Inc()
	return nil
}

// ReleaseFor returns a seat to inventory only while holder still owns it,
// so a late release never frees a seat someone else has since reserved.
func (s *SeatInventoryService) ReleaseFor(ctx context.Context, flightSeatID, holder uuid.UUID) error {
	if err := s.store.ReleaseSeatHeldBy(ctx, flightSeatID, holder); err != nil {
		return fmt.Errorf("failed to release seat: %w", err)
	}
	s.metrics.SeatTransitions.WithLabelValues("release").Inc()
	return nil
}

// ExpireStaleHolds releases every reserved seat whose hold ended before now.
// Returns how many seats went back to inventory.
func (s *SeatInventoryService) ExpireStaleHolds(ctx context.Context, now time.Time) (int, error) {
	total := 0
	for {
		n, err := s.store.ReleaseExpiredHolds(ctx, now, s.config.SweepBatchSize)
		if err != nil {
			return total, fmt.Errorf("failed to release expired holds: %w", err)
		}
		total += n
		if n < s.config.SweepBatchSize {
			break
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}

	if total > 0 {
		s.metrics.HoldsExpired.Add(float64(total))
		s.logger.WithField("released", total).Info("Released expired seat holds")
	}
	return total, nil
}

// ReleaseOrphanedSeats repairs seats left held by bookings that were cancelled
// while a release failed
func (s *SeatInventoryService) ReleaseOrphanedSeats(ctx context.Context) (int, error) {
	n, err := s.store.ReleaseOrphanedSeats(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to release orphaned seats: %w", err)
	}
	if n > 0 {
		s.metrics.SeatTransitions.WithLabelValues("release").Add(float64(n))
		s.logger.WithField("released", n).Warn("Released seats held by cancelled bookings")
	}
	return n, nil
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
