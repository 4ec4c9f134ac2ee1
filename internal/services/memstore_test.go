package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/skyroute/booking-core/internal/database"
	"github.com/skyroute/booking-core/internal/events"
	"github.com/skyroute/booking-core/internal/models"
)

// memStore is an in-memory stand-in for the postgres repositories. One mutex
// guards everything, which gives every method the atomicity the SQL
// statements have.
type memStore struct {
	mu         sync.Mutex
	flights    map[uuid.UUID]models.Flight
	seats      map[uuid.UUID]*models.FlightSeat
	bookings   map[uuid.UUID]*models.Booking
	passengers []*models.Passenger
	payments   map[uuid.UUID]*models.Payment
	refunds    map[uuid.UUID]*models.Refund

	duplicateRefs int // CreateBooking fails this many times with a reference collision
}

func newMemStore() *memStore {
	return &memStore{
		flights:  make(map[uuid.UUID]models.Flight),
		seats:    make(map[uuid.UUID]*models.FlightSeat),
		bookings: make(map[uuid.UUID]*models.Booking),
		payments: make(map[uuid.UUID]*models.Payment),
		refunds:  make(map[uuid.UUID]*models.Refund),
	}
}

func (m *memStore) addFlight(f models.Flight) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flights[f.ID] = f
}

func (m *memStore) addSeat(flightID uuid.UUID, label string, multiplier string) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	seat := &models.FlightSeat{
		ID:              uuid.New(),
		FlightID:        flightID,
		SeatID:          uuid.New(),
		SeatLabel:       label,
		SeatClass:       models.SeatClassEconomy,
		Status:          models.FlightSeatStatusAvailable,
		PriceMultiplier: decimal.RequireFromString(multiplier),
	}
	m.seats[seat.ID] = seat
	return seat.ID
}

func (m *memStore) seat(id uuid.UUID) models.FlightSeat {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.seats[id]
}

func (m *memStore) booking(id uuid.UUID) models.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.bookings[id]
}

func (m *memStore) paymentsFor(bookingID uuid.UUID) []models.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Payment
	for _, p := range m.payments {
		if p.BookingID == bookingID {
			out = append(out, *p)
		}
	}
	return out
}

func (m *memStore) refundFor(bookingID uuid.UUID) *models.Refund {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.refunds {
		if r.BookingID == bookingID {
			cp := *r
			return &cp
		}
	}
	return nil
}

// ---- FlightCatalog ----

func (m *memStore) GetFlight(ctx context.Context, id uuid.UUID) (*models.Flight, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.flights[id]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (m *memStore) ListFlightSeats(ctx context.Context, flightID uuid.UUID) ([]models.FlightSeat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.FlightSeat
	for _, s := range m.seats {
		if s.FlightID == flightID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeatLabel < out[j].SeatLabel })
	return out, nil
}

// ---- FlightSeatStore ----

func (m *memStore) GetFlightSeat(ctx context.Context, id uuid.UUID) (*models.FlightSeat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.seats[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) TryReserve(ctx context.Context, id, holder uuid.UUID, heldUntil, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.seats[id]
	if !ok {
		return false, nil
	}
	heldBySame := s.Status == models.FlightSeatStatusReserved && s.HeldByBookingID != nil && *s.HeldByBookingID == holder
	if s.Status != models.FlightSeatStatusAvailable && !heldBySame {
		return false, nil
	}
	h, u := holder, heldUntil
	s.Status = models.FlightSeatStatusReserved
	s.HeldByBookingID = &h
	s.HeldUntil = &u
	s.Version++
	return true, nil
}

func (m *memStore) ExpireHold(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.seats[id]
	if !ok || s.Status != models.FlightSeatStatusReserved || s.HeldUntil == nil || !s.HeldUntil.Before(now) {
		return false, nil
	}
	m.expireLocked(s, now)
	return true, nil
}

func (m *memStore) expireLocked(s *models.FlightSeat, now time.Time) {
	for _, p := range m.passengers {
		if p.IsActive() && p.FlightSeatID != nil && *p.FlightSeatID == s.ID {
			reason := models.CancelReasonHoldExpired
			at := now
			p.CancelledAt = &at
			p.CancelReason = &reason
		}
	}
	m.freeLocked(s)
}

func (m *memStore) freeLocked(s *models.FlightSeat) {
	s.Status = models.FlightSeatStatusAvailable
	s.HeldByBookingID = nil
	s.HeldUntil = nil
	s.Version++
}

func (m *memStore) ConfirmHolds(ctx context.Context, holder uuid.UUID, ids []uuid.UUID, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		s, ok := m.seats[id]
		if !ok || !s.IsHeldBy(holder, now) {
			return false, nil
		}
	}
	for _, id := range ids {
		s := m.seats[id]
		s.Status = models.FlightSeatStatusBooked
		s.HeldUntil = nil
		s.Version++
	}
	return true, nil
}

func (m *memStore) ReleaseSeat(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.passengers {
		if p.IsActive() && p.FlightSeatID != nil && *p.FlightSeatID == id {
			reason := models.CancelReasonSeatReleased
			at := time.Now()
			p.CancelledAt = &at
			p.CancelReason = &reason
		}
	}
	if s, ok := m.seats[id]; ok && s.Status != models.FlightSeatStatusAvailable {
		m.freeLocked(s)
	}
	return nil
}

func (m *memStore) ReleaseSeatHeldBy(ctx context.Context, id, holder uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.seats[id]; ok && s.HeldByBookingID != nil && *s.HeldByBookingID == holder {
		m.freeLocked(s)
	}
	return nil
}

func (m *memStore) ReleaseExpiredHolds(ctx context.Context, now time.Time, limit int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.seats {
		if n == limit {
			break
		}
		if s.Status == models.FlightSeatStatusReserved && s.HeldUntil != nil && s.HeldUntil.Before(now) {
			m.expireLocked(s, now)
			n++
		}
	}
	return n, nil
}

func (m *memStore) ReleaseOrphanedSeats(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.seats {
		if s.HeldByBookingID == nil {
			continue
		}
		if b, ok := m.bookings[*s.HeldByBookingID]; ok && b.Status == models.BookingStatusCancelled {
			m.freeLocked(s)
			n++
		}
	}
	return n, nil
}

// ---- BookingStore ----

func (m *memStore) CreateBooking(ctx context.Context, booking *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.duplicateRefs > 0 {
		m.duplicateRefs--
		return database.ErrDuplicateBookingReference
	}
	cp := *booking
	m.bookings[booking.ID] = &cp
	return nil
}

func (m *memStore) GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (m *memStore) GetBookingByReference(ctx context.Context, reference string) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.BookingReference == reference {
			cp := *b
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListBookingsByUser(ctx context.Context, userID uuid.UUID, status *models.BookingStatus, limit int) ([]models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Booking{}
	for _, b := range m.bookings {
		if b.UserID == userID && (status == nil || b.Status == *status) {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) UpdateBookingTotal(ctx context.Context, id uuid.UUID, total decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.bookings[id]; ok && b.Status == models.BookingStatusPending {
		b.TotalAmount = total
	}
	return nil
}

func (m *memStore) ConfirmBooking(ctx context.Context, id uuid.UUID, total decimal.Decimal) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.Status != models.BookingStatusPending {
		return false, nil
	}
	b.Status = models.BookingStatusConfirmed
	b.TotalAmount = total
	return true, nil
}

func (m *memStore) cancelLocked(b *models.Booking, reason models.CancelReason, now time.Time) {
	at := now
	b.Status = models.BookingStatusCancelled
	b.CancelledAt = &at
	b.CancelReason = &reason
	for _, p := range m.passengers {
		if p.BookingID == b.ID && p.IsActive() {
			r := reason
			p.CancelledAt = &at
			p.CancelReason = &r
		}
	}
}

func (m *memStore) CancelPendingBooking(ctx context.Context, id uuid.UUID, reason models.CancelReason, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pendingPaymentLocked(id) {
		return false, database.ErrPaymentInProgress
	}
	b, ok := m.bookings[id]
	if !ok || b.Status != models.BookingStatusPending {
		return false, nil
	}
	if reason == models.CancelReasonHoldExpired && !b.HoldExpiresAt.Before(now) {
		return false, nil
	}
	m.cancelLocked(b, reason, now)
	return true, nil
}

func (m *memStore) pendingPaymentLocked(bookingID uuid.UUID) bool {
	for _, p := range m.payments {
		if p.BookingID == bookingID && p.Status == models.PaymentStatusPending {
			return true
		}
	}
	return false
}

func (m *memStore) CancelConfirmedBooking(ctx context.Context, id uuid.UUID, refund *models.Refund, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.refunds {
		if r.BookingID == id {
			return false, database.ErrRefundExists
		}
	}
	b, ok := m.bookings[id]
	if !ok || b.Status != models.BookingStatusConfirmed {
		return false, nil
	}
	m.cancelLocked(b, models.CancelReasonUserRequested, now)
	cp := *refund
	m.refunds[refund.ID] = &cp
	return true, nil
}

func (m *memStore) ListAbandonedBookings(ctx context.Context, now time.Time, limit int) ([]models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Booking
	for _, b := range m.bookings {
		if len(out) == limit {
			break
		}
		if b.Status == models.BookingStatusPending && b.HoldExpiresAt.Before(now) && !m.pendingPaymentLocked(b.ID) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *memStore) CreatePassenger(ctx context.Context, passenger *models.Passenger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if passenger.FlightSeatID != nil {
		for _, p := range m.passengers {
			if p.IsActive() && p.FlightSeatID != nil && *p.FlightSeatID == *passenger.FlightSeatID {
				return database.ErrSeatAlreadyAssigned
			}
		}
	}
	cp := *passenger
	m.passengers = append(m.passengers, &cp)
	return nil
}

func (m *memStore) ListPassengers(ctx context.Context, bookingID uuid.UUID) ([]models.Passenger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Passenger
	for _, p := range m.passengers {
		if p.BookingID == bookingID {
			out = append(out, *p)
		}
	}
	return out, nil
}

// ---- PaymentStore ----

func (m *memStore) CreatePayment(ctx context.Context, payment *models.Payment, holdUntil time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[payment.BookingID]
	if !ok || b.Status != models.BookingStatusPending {
		return database.ErrBookingNotPending
	}
	if m.pendingPaymentLocked(payment.BookingID) {
		return database.ErrPaymentInProgress
	}
	if holdUntil.After(b.HoldExpiresAt) {
		b.HoldExpiresAt = holdUntil
	}
	cp := *payment
	m.payments[payment.ID] = &cp
	return nil
}

func (m *memStore) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) GetSuccessfulPayment(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.BookingID == bookingID && p.Status == models.PaymentStatusSuccess {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) MarkPaymentSucceeded(ctx context.Context, id uuid.UUID, gatewayRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.payments[id]; ok {
		ref := gatewayRef
		p.Status = models.PaymentStatusSuccess
		p.GatewayReference = &ref
	}
	return nil
}

func (m *memStore) MarkPaymentFailed(ctx context.Context, id uuid.UUID, reason string, gatewayRef *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.payments[id]; ok {
		r := reason
		p.Status = models.PaymentStatusFailed
		p.FailureReason = &r
		p.GatewayReference = gatewayRef
	}
	return nil
}

// ---- RefundStore ----

func (m *memStore) GetRefund(ctx context.Context, id uuid.UUID) (*models.Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.refunds[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) GetRefundByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Refund, error) {
	return m.refundFor(bookingID), nil
}

func (m *memStore) ListRefunds(ctx context.Context, status *models.RefundStatus, limit int) ([]models.Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refundsLocked(func(r *models.Refund) bool { return status == nil || r.Status == *status }, limit), nil
}

func (m *memStore) ListRefundsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refundsLocked(func(r *models.Refund) bool {
		b, ok := m.bookings[r.BookingID]
		return ok && b.UserID == userID
	}, limit), nil
}

func (m *memStore) refundsLocked(keep func(*models.Refund) bool, limit int) []models.Refund {
	out := []models.Refund{}
	for _, r := range m.refunds {
		if keep(r) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *memStore) TransitionRefund(ctx context.Context, t models.RefundTransition) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.refunds[t.RefundID]
	if !ok || r.Status != t.From {
		return false, nil
	}
	by, at := t.ProcessedBy, t.At
	r.Status = t.To
	r.ProcessedBy = &by
	r.ProcessedAt = &at
	if t.Amount != nil {
		r.RefundAmount = *t.Amount
	}
	if t.Notes != nil {
		r.Notes = t.Notes
	}
	return true, nil
}

// ---- collaborators ----

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type stubGateway struct {
	mu      sync.Mutex
	calls   int
	capture func(amount decimal.Decimal) (*models.PaymentResult, error)
}

func (g *stubGateway) CapturePayment(ctx context.Context, bookingID uuid.UUID, amount decimal.Decimal, method models.PaymentMethod) (*models.PaymentResult, error) {
	g.mu.Lock()
	g.calls++
	capture := g.capture
	g.mu.Unlock()
	if capture != nil {
		return capture(amount)
	}
	return &models.PaymentResult{Success: true, GatewayReference: "GW-" + bookingID.String()[:8]}, nil
}

func (g *stubGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.BookingEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}
