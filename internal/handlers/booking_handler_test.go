package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/skyroute/booking-core/internal/middleware"
	"github.com/skyroute/booking-core/internal/models"
	"github.com/skyroute/booking-core/internal/services"
	"github.com/skyroute/booking-core/internal/utils"
)

type mockBookingFlow struct {
	mock.Mock
}

func (m *mockBookingFlow) CreateBooking(ctx context.Context, userID, flightID uuid.UUID) (*models.Booking, error) {
	args := m.Called(ctx, userID, flightID)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *mockBookingFlow) GetBooking(ctx context.Context, userID, bookingID uuid.UUID) (*models.BookingDetails, error) {
	args := m.Called(ctx, userID, bookingID)
	d, _ := args.Get(0).(*models.BookingDetails)
	return d, args.Error(1)
}

func (m *mockBookingFlow) ReserveSeat(ctx context.Context, userID, bookingID, flightSeatID uuid.UUID) (*models.ReservationToken, error) {
	args := m.Called(ctx, userID, bookingID, flightSeatID)
	t, _ := args.Get(0).(*models.ReservationToken)
	return t, args.Error(1)
}

func (m *mockBookingFlow) AddPassenger(ctx context.Context, userID, bookingID uuid.UUID, input models.PassengerInput) (*models.Passenger, error) {
	args := m.Called(ctx, userID, bookingID, input)
	p, _ := args.Get(0).(*models.Passenger)
	return p, args.Error(1)
}

func (m *mockBookingFlow) CompletePayment(ctx context.Context, userID, bookingID uuid.UUID, amount decimal.Decimal, method models.PaymentMethod) (*models.Booking, error) {
	args := m.Called(ctx, userID, bookingID, amount, method)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *mockBookingFlow) GetRefundQuote(ctx context.Context, userID, bookingID uuid.UUID) (*models.RefundQuote, error) {
	args := m.Called(ctx, userID, bookingID)
	q, _ := args.Get(0).(*models.RefundQuote)
	return q, args.Error(1)
}

func (m *mockBookingFlow) RequestCancellation(ctx context.Context, userID, bookingID uuid.UUID, reason *string) (*models.CancellationResult, error) {
	args := m.Called(ctx, userID, bookingID, reason)
	r, _ := args.Get(0).(*models.CancellationResult)
	return r, args.Error(1)
}

func (m *mockBookingFlow) ProcessRefund(ctx context.Context, reviewerID, refundID uuid.UUID, decision models.RefundStatus, amount *decimal.Decimal, notes *string) (*models.Refund, error) {
	args := m.Called(ctx, reviewerID, refundID, decision, amount, notes)
	r, _ := args.Get(0).(*models.Refund)
	return r, args.Error(1)
}

func (m *mockBookingFlow) ListFlightSeats(ctx context.Context, flightID uuid.UUID) ([]models.FlightSeat, error) {
	args := m.Called(ctx, flightID)
	s, _ := args.Get(0).([]models.FlightSeat)
	return s, args.Error(1)
}

func (m *mockBookingFlow) ListBookings(ctx context.Context, userID uuid.UUID, status *models.BookingStatus, limit int) ([]models.Booking, error) {
	args := m.Called(ctx, userID, status, limit)
	b, _ := args.Get(0).([]models.Booking)
	return b, args.Error(1)
}

func (m *mockBookingFlow) GetBookingByReference(ctx context.Context, userID uuid.UUID, reference string) (*models.BookingDetails, error) {
	args := m.Called(ctx, userID, reference)
	d, _ := args.Get(0).(*models.BookingDetails)
	return d, args.Error(1)
}

func (m *mockBookingFlow) GetBookingRefund(ctx context.Context, userID, bookingID uuid.UUID) (*models.Refund, error) {
	args := m.Called(ctx, userID, bookingID)
	r, _ := args.Get(0).(*models.Refund)
	return r, args.Error(1)
}

func (m *mockBookingFlow) ListUserRefunds(ctx context.Context, userID uuid.UUID, limit int) ([]models.Refund, error) {
	args := m.Called(ctx, userID, limit)
	r, _ := args.Get(0).([]models.Refund)
	return r, args.Error(1)
}

func (m *mockBookingFlow) ListRefunds(ctx context.Context, status *models.RefundStatus, limit int) ([]models.Refund, error) {
	args := m.Called(ctx, status, limit)
	r, _ := args.Get(0).([]models.Refund)
	return r, args.Error(1)
}

type mockAuditTrail struct {
	mock.Mock
}

func (m *mockAuditTrail) LogBookingCancelled(ctx context.Context, actorID uuid.UUID, result *models.CancellationResult, client utils.ClientInfo) error {
	return m.Called(ctx, actorID, result, client).Error(0)
}

func (m *mockAuditTrail) LogRefundDecision(ctx context.Context, reviewerID uuid.UUID, refund *models.Refund, override *decimal.Decimal, client utils.ClientInfo) error {
	return m.Called(ctx, reviewerID, refund, override, client).Error(0)
}

func (m *mockAuditTrail) LogPaymentAttempt(ctx context.Context, actorID, bookingID uuid.UUID, amount decimal.Decimal, method models.PaymentMethod, outcome error, client utils.ClientInfo) error {
	return m.Called(ctx, actorID, bookingID, amount, method, outcome, client).Error(0)
}

func (m *mockAuditTrail) GetEntityHistory(ctx context.Context, entityType string, entityID uuid.UUID, limit int) ([]services.AuditEntry, error) {
	args := m.Called(ctx, entityType, entityID, limit)
	e, _ := args.Get(0).([]services.AuditEntry)
	return e, args.Error(1)
}

type testAPI struct {
	router *gin.Engine
	flow   *mockBookingFlow
	audit  *mockAuditTrail
	user   middleware.UserContext
}

func newTestAPI(t *testing.T, roles ...string) *testAPI {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	api := &testAPI{
		router: gin.New(),
		flow:   &mockBookingFlow{},
		audit:  &mockAuditTrail{},
		user:   middleware.UserContext{UserID: uuid.New(), Email: "amara@example.com", Roles: roles},
	}

	fakeAuth := func(c *gin.Context) {
		c.Set(middleware.UserContextKey, api.user)
		c.Next()
	}
	handler := NewBookingHandler(api.flow, api.audit, logger)
	handler.RegisterRoutes(api.router.Group("/api/v1"), fakeAuth, []string{"agent", "admin"})

	t.Cleanup(func() {
		api.flow.AssertExpectations(t)
		api.audit.AssertExpectations(t)
	})
	return api
}

func (a *testAPI) do(method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var out map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestCreateBookingHandler(t *testing.T) {
	t.Run("Created", func(t *testing.T) {
		api := newTestAPI(t, "customer")
		flightID := uuid.New()
		booking := &models.Booking{
			ID:               uuid.New(),
			UserID:           api.user.UserID,
			FlightID:         flightID,
			BookingReference: "K7QM2PXR4",
			Status:           models.BookingStatusPending,
			TotalAmount:      decimal.Zero,
		}
		api.flow.On("CreateBooking", mock.Anything, api.user.UserID, flightID).Return(booking, nil)

		w, body := api.do("POST", "/api/v1/bookings", gin.H{"flight_id": flightID.String()})

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "K7QM2PXR4", body["booking_reference"])
		assert.Equal(t, "pending", body["status"])
	})

	t.Run("Missing Flight", func(t *testing.T) {
		api := newTestAPI(t, "customer")

		w, body := api.do("POST", "/api/v1/bookings", gin.H{})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_REQUEST", body["code"])
	})

	t.Run("Departed Flight", func(t *testing.T) {
		api := newTestAPI(t, "customer")
		api.flow.On("CreateBooking", mock.Anything, api.user.UserID, mock.Anything).
			Return(nil, models.NewBookingError(models.ErrCodeInvalidTransition, "flight has already departed"))

		w, body := api.do("POST", "/api/v1/bookings", gin.H{"flight_id": uuid.NewString()})

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "INVALID_TRANSITION", body["code"])
		assert.Equal(t, "flight has already departed", body["message"])
	})
}

func TestReserveSeatHandler(t *testing.T) {
	t.Run("Held", func(t *testing.T) {
		api := newTestAPI(t, "customer")
		bookingID, seatID := uuid.New(), uuid.New()
		token := &models.ReservationToken{FlightSeatID: seatID, HolderID: bookingID, ExpiresAt: time.Now().Add(15 * time.Minute)}
		api.flow.On("ReserveSeat", mock.Anything, api.user.UserID, bookingID, seatID).Return(token, nil)

		w, body := api.do("POST", "/api/v1/bookings/"+bookingID.String()+"/seats/"+seatID.String()+"/reserve", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, seatID.String(), body["flight_seat_id"])
	})

	t.Run("Taken", func(t *testing.T) {
		api := newTestAPI(t, "customer")
		api.flow.On("ReserveSeat", mock.Anything, api.user.UserID, mock.Anything, mock.Anything).
			Return(nil, models.ErrSeatUnavailable)

		w, body := api.do("POST", "/api/v1/bookings/"+uuid.NewString()+"/seats/"+uuid.NewString()+"/reserve", nil)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "SEAT_UNAVAILABLE", body["code"])
		assert.Equal(t, "Seat no longer available, please choose another", body["message"])
	})

	t.Run("Bad Seat Id", func(t *testing.T) {
		api := newTestAPI(t, "customer")

		w, body := api.do("POST", "/api/v1/bookings/"+uuid.NewString()+"/seats/12A/reserve", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid seat id", body["message"])
	})
}

func TestAddPassengerHandler(t *testing.T) {
	t.Run("Parses Input", func(t *testing.T) {
		api := newTestAPI(t, "customer")
		bookingID, seatID := uuid.New(), uuid.New()

		matchesInput := mock.MatchedBy(func(in models.PassengerInput) bool {
			return in.PassengerType == models.PassengerTypeAdult &&
				in.FirstName == "Amara" &&
				in.DateOfBirth.Equal(time.Date(1990, 4, 12, 0, 0, 0, 0, time.UTC)) &&
				in.FlightSeatID != nil && *in.FlightSeatID == seatID
		})
		api.flow.On("AddPassenger", mock.Anything, api.user.UserID, bookingID, matchesInput).
			Return(&models.Passenger{ID: uuid.New(), BookingID: bookingID, FirstName: "Amara"}, nil)

		w, body := api.do("POST", "/api/v1/bookings/"+bookingID.String()+"/passengers", gin.H{
			"passenger_type": "ADULT",
			"first_name":     " Amara ",
			"last_name":      "Silva",
			"date_of_birth":  "1990-04-12",
			"flight_seat_id": seatID.String(),
		})

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "Amara", body["first_name"])
	})

	t.Run("Bad Date Of Birth", func(t *testing.T) {
		api := newTestAPI(t, "customer")

		w, body := api.do("POST", "/api/v1/bookings/"+uuid.NewString()+"/passengers", gin.H{
			"passenger_type": "infant",
			"first_name":     "Nila",
			"last_name":      "Silva",
			"date_of_birth":  "12/04/2025",
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "date_of_birth must be YYYY-MM-DD", body["message"])
	})

	t.Run("Pricing Failure", func(t *testing.T) {
		api := newTestAPI(t, "customer")
		api.flow.On("AddPassenger", mock.Anything, api.user.UserID, mock.Anything, mock.Anything).
			Return(nil, models.ErrInvalidPriceMultiplier)

		w, body := api.do("POST", "/api/v1/bookings/"+uuid.NewString()+"/passengers", gin.H{
			"passenger_type": "adult",
			"first_name":     "Amara",
			"last_name":      "Silva",
			"date_of_birth":  "1990-04-12",
			"flight_seat_id": uuid.NewString(),
		})

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "INVALID_PRICE_MULTIPLIER", body["code"])
	})
}

func TestCompletePaymentHandler(t *testing.T) {
	amount := decimal.RequireFromString("165.00")
	sameAmount := mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(amount) })

	t.Run("Confirmed", func(t *testing.T) {
		api := newTestAPI(t, "customer")
		bookingID := uuid.New()
		confirmed := &models.Booking{ID: bookingID, Status: models.BookingStatusConfirmed, TotalAmount: amount}
		api.flow.On("CompletePayment", mock.Anything, api.user.UserID, bookingID, sameAmount, models.PaymentMethodCreditCard).
			Return(confirmed, nil)
		api.audit.On("LogPaymentAttempt", mock.Anything, api.user.UserID, bookingID, sameAmount, models.PaymentMethodCreditCard, nil, mock.Anything).
			Return(nil)

		w, body := api.do("POST", "/api/v1/bookings/"+bookingID.String()+"/payment", gin.H{
			"amount": "165.00",
			"method": "credit_card",
		})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "confirmed", body["status"])
	})

	t.Run("Declined", func(t *testing.T) {
		api := newTestAPI(t, "customer")
		bookingID := uuid.New()
		api.flow.On("CompletePayment", mock.Anything, api.user.UserID, bookingID, sameAmount, models.PaymentMethodPayPal).
			Return(nil, models.ErrPaymentFailed)
		api.audit.On("LogPaymentAttempt", mock.Anything, api.user.UserID, bookingID, sameAmount, models.PaymentMethodPayPal, models.ErrPaymentFailed, mock.Anything).
			Return(errors.New("audit table unavailable"))

		w, body := api.do("POST", "/api/v1/bookings/"+bookingID.String()+"/payment", gin.H{
			"amount": 165,
			"method": "paypal",
		})

		assert.Equal(t, http.StatusPaymentRequired, w.Code)
		assert.Equal(t, "PAYMENT_FAILED", body["code"])
	})

	t.Run("Stale Reservation", func(t *testing.T) {
		api := newTestAPI(t, "customer")
		api.flow.On("CompletePayment", mock.Anything, api.user.UserID, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, models.ErrStaleReservation)
		api.audit.On("LogPaymentAttempt", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil)

		w, body := api.do("POST", "/api/v1/bookings/"+uuid.NewString()+"/payment", gin.H{
			"amount": "165.00",
			"method": "credit_card",
		})

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "Booking could not be confirmed, please retry payment", body["message"])
	})

	t.Run("Unexpected Failure Hides Detail", func(t *testing.T) {
		api := newTestAPI(t, "customer")
		api.flow.On("CompletePayment", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, errors.New("pq: connection refused"))
		api.audit.On("LogPaymentAttempt", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil)

		w, body := api.do("POST", "/api/v1/bookings/"+uuid.NewString()+"/payment", gin.H{
			"amount": "165.00",
			"method": "credit_card",
		})

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "INTERNAL_ERROR", body["code"])
		assert.NotContains(t, w.Body.String(), "connection refused")
	})
}

func TestCancelBookingHandler(t *testing.T) {
	t.Run("Refund Recorded", func(t *testing.T) {
		api := newTestAPI(t, "customer")
		bookingID := uuid.New()
		reason := "change of plans"
		result := &models.CancellationResult{
			Booking: models.Booking{ID: bookingID, Status: models.BookingStatusCancelled},
			Refund: &models.Refund{
				ID:           uuid.New(),
				BookingID:    bookingID,
				RefundAmount: decimal.RequireFromString("103.75"),
				Status:       models.RefundStatusPending,
			},
		}
		api.flow.On("RequestCancellation", mock.Anything, api.user.UserID, bookingID, &reason).Return(result, nil)
		api.audit.On("LogBookingCancelled", mock.Anything, api.user.UserID, result, mock.Anything).Return(nil)

		w, body := api.do("POST", "/api/v1/bookings/"+bookingID.String()+"/cancel", gin.H{"reason": reason})

		assert.Equal(t, http.StatusOK, w.Code)
		refund, ok := body["refund"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "pending", refund["status"])
	})

	t.Run("Empty Body", func(t *testing.T) {
		api := newTestAPI(t, "customer")
		bookingID := uuid.New()
		result := &models.CancellationResult{Booking: models.Booking{ID: bookingID, Status: models.BookingStatusCancelled}}
		api.flow.On("RequestCancellation", mock.Anything, api.user.UserID, bookingID, (*string)(nil)).Return(result, nil)
		api.audit.On("LogBookingCancelled", mock.Anything, api.user.UserID, result, mock.Anything).Return(nil)

		w, body := api.do("POST", "/api/v1/bookings/"+bookingID.String()+"/cancel", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Nil(t, body["refund"])
	})

	t.Run("No Policy", func(t *testing.T) {
		api := newTestAPI(t, "customer")
		api.flow.On("RequestCancellation", mock.Anything, api.user.UserID, mock.Anything, mock.Anything).
			Return(nil, models.ErrNoPolicyConfigured)

		w, body := api.do("POST", "/api/v1/bookings/"+uuid.NewString()+"/cancel", nil)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "NO_POLICY_CONFIGURED", body["code"])
	})

	t.Run("Someone Else's Booking", func(t *testing.T) {
		api := newTestAPI(t, "customer")
		api.flow.On("RequestCancellation", mock.Anything, api.user.UserID, mock.Anything, mock.Anything).
			Return(nil, models.ErrForbidden)

		w, _ := api.do("POST", "/api/v1/bookings/"+uuid.NewString()+"/cancel", nil)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestGetRefundQuoteHandler(t *testing.T) {
	api := newTestAPI(t, "customer")
	bookingID := uuid.New()
	api.flow.On("GetRefundQuote", mock.Anything, api.user.UserID, bookingID).
		Return(nil, models.ErrBookingNotRefundable)

	w, body := api.do("GET", "/api/v1/bookings/"+bookingID.String()+"/refund-quote", nil)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "BOOKING_NOT_REFUNDABLE", body["code"])
}

func TestProcessRefundHandler(t *testing.T) {
	t.Run("Customer Is Refused", func(t *testing.T) {
		api := newTestAPI(t, "customer")

		w, body := api.do("POST", "/api/v1/refunds/"+uuid.NewString()+"/process", gin.H{"decision": "approved"})

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "INSUFFICIENT_PERMISSIONS", body["code"])
	})

	t.Run("Agent Approves With Override", func(t *testing.T) {
		api := newTestAPI(t, "agent")
		refundID := uuid.New()
		override := decimal.RequireFromString("120.005")
		sameOverride := mock.MatchedBy(func(d *decimal.Decimal) bool { return d != nil && d.Equal(override) })
		refund := &models.Refund{ID: refundID, Status: models.RefundStatusApproved, RefundAmount: decimal.RequireFromString("120.01")}

		api.flow.On("ProcessRefund", mock.Anything, api.user.UserID, refundID, models.RefundStatusApproved, sameOverride, (*string)(nil)).
			Return(refund, nil)
		api.audit.On("LogRefundDecision", mock.Anything, api.user.UserID, refund, sameOverride, mock.Anything).Return(nil)

		w, body := api.do("POST", "/api/v1/refunds/"+refundID.String()+"/process", gin.H{
			"decision": "approved",
			"amount":   "120.005",
		})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "approved", body["status"])
	})

	t.Run("Unknown Decision", func(t *testing.T) {
		api := newTestAPI(t, "admin")

		w, _ := api.do("POST", "/api/v1/refunds/"+uuid.NewString()+"/process", gin.H{"decision": "pending"})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Already Finalized", func(t *testing.T) {
		api := newTestAPI(t, "admin")
		api.flow.On("ProcessRefund", mock.Anything, api.user.UserID, mock.Anything, models.RefundStatusRejected, (*decimal.Decimal)(nil), mock.Anything).
			Return(nil, models.ErrRefundAlreadyFinalized)

		w, body := api.do("POST", "/api/v1/refunds/"+uuid.NewString()+"/process", gin.H{
			"decision": "rejected",
			"notes":    "duplicate request",
		})

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "REFUND_ALREADY_FINALIZED", body["code"])
	})
}

func TestListFlightSeatsHandler(t *testing.T) {
	api := newTestAPI(t, "customer")
	flightID := uuid.New()
	seats := []models.FlightSeat{
		{ID: uuid.New(), FlightID: flightID, Status: models.FlightSeatStatusAvailable},
		{ID: uuid.New(), FlightID: flightID, Status: models.FlightSeatStatusBooked},
	}
	api.flow.On("ListFlightSeats", mock.Anything, flightID).Return(seats, nil)

	w, body := api.do("GET", "/api/v1/flights/"+flightID.String()+"/seats", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["total"])
}

func TestGetAuditHistoryHandler(t *testing.T) {
	t.Run("Caps Limit", func(t *testing.T) {
		api := newTestAPI(t, "admin")
		bookingID := uuid.New()
		api.audit.On("GetEntityHistory", mock.Anything, "booking", bookingID, maxListLimit).
			Return([]services.AuditEntry{{Action: "booking_cancelled", EntityType: "booking"}}, nil)

		w, body := api.do("GET", "/api/v1/audit/booking/"+bookingID.String()+"?limit=10000", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		entries, ok := body["entries"].([]interface{})
		require.True(t, ok)
		assert.Len(t, entries, 1)
	})

	t.Run("Unknown Entity", func(t *testing.T) {
		api := newTestAPI(t, "admin")

		w, _ := api.do("GET", "/api/v1/audit/flight/"+uuid.NewString(), nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestListBookingsHandler(t *testing.T) {
	t.Run("Filters By Status", func(t *testing.T) {
		api := newTestAPI(t, "customer")
		confirmed := mock.MatchedBy(func(s *models.BookingStatus) bool {
			return s != nil && *s == models.BookingStatusConfirmed
		})
		api.flow.On("ListBookings", mock.Anything, api.user.UserID, confirmed, 20).
			Return([]models.Booking{{ID: uuid.New(), Status: models.BookingStatusConfirmed}}, nil)

		w, body := api.do("GET", "/api/v1/bookings?status=confirmed&limit=20", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(1), body["total"])
	})

	t.Run("Defaults", func(t *testing.T) {
		api := newTestAPI(t, "customer")
		api.flow.On("ListBookings", mock.Anything, api.user.UserID, (*models.BookingStatus)(nil), defaultListLimit).
			Return([]models.Booking{}, nil)

		w, body := api.do("GET", "/api/v1/bookings", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(0), body["total"])
	})

	t.Run("Bad Limit", func(t *testing.T) {
		api := newTestAPI(t, "customer")

		w, _ := api.do("GET", "/api/v1/bookings?limit=-3", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetBookingByReferenceHandler(t *testing.T) {
	t.Run("Found", func(t *testing.T) {
		api := newTestAPI(t, "customer")
		bookingID := uuid.New()
		api.flow.On("GetBookingByReference", mock.Anything, api.user.UserID, "SKY742QMP").
			Return(&models.BookingDetails{Booking: models.Booking{ID: bookingID, BookingReference: "SKY742QMP"}}, nil)

		w, body := api.do("GET", "/api/v1/bookings/reference/SKY742QMP", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		booking, ok := body["booking"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, bookingID.String(), booking["id"])
	})

	t.Run("Not Found", func(t *testing.T) {
		api := newTestAPI(t, "customer")
		api.flow.On("GetBookingByReference", mock.Anything, api.user.UserID, "ZZZ999ZZZ").
			Return(nil, models.NewBookingError(models.ErrCodeNotFound, "booking not found"))

		w, body := api.do("GET", "/api/v1/bookings/reference/ZZZ999ZZZ", nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "NOT_FOUND", body["code"])
	})
}

func TestGetBookingRefundHandler(t *testing.T) {
	api := newTestAPI(t, "customer")
	bookingID := uuid.New()
	api.flow.On("GetBookingRefund", mock.Anything, api.user.UserID, bookingID).
		Return(&models.Refund{ID: uuid.New(), BookingID: bookingID, Status: models.RefundStatusPending}, nil)

	w, body := api.do("GET", "/api/v1/bookings/"+bookingID.String()+"/refund", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pending", body["status"])
}

func TestListRefundsHandler(t *testing.T) {
	pendingOnly := mock.MatchedBy(func(s *models.RefundStatus) bool {
		return s != nil && *s == models.RefundStatusPending
	})

	t.Run("Reviewer Sees Pending Queue By Default", func(t *testing.T) {
		api := newTestAPI(t, "agent")
		api.flow.On("ListRefunds", mock.Anything, pendingOnly, defaultListLimit).
			Return([]models.Refund{{ID: uuid.New(), Status: models.RefundStatusPending}}, nil)

		w, body := api.do("GET", "/api/v1/refunds", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(1), body["total"])
	})

	t.Run("All Statuses", func(t *testing.T) {
		api := newTestAPI(t, "admin")
		api.flow.On("ListRefunds", mock.Anything, (*models.RefundStatus)(nil), 5).
			Return([]models.Refund{}, nil)

		w, _ := api.do("GET", "/api/v1/refunds?status=all&limit=5", nil)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Customer Is Refused", func(t *testing.T) {
		api := newTestAPI(t, "customer")

		w, body := api.do("GET", "/api/v1/refunds", nil)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "INSUFFICIENT_PERMISSIONS", body["code"])
	})

	t.Run("Customer Lists Own Refunds", func(t *testing.T) {
		api := newTestAPI(t, "customer")
		api.flow.On("ListUserRefunds", mock.Anything, api.user.UserID, defaultListLimit).
			Return([]models.Refund{{ID: uuid.New()}, {ID: uuid.New()}}, nil)

		w, body := api.do("GET", "/api/v1/refunds/mine", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(2), body["total"])
	})
}
