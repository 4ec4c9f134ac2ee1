package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/skyroute/booking-core/internal/middleware"
	"github.com/skyroute/booking-core/internal/models"
	"github.com/skyroute/booking-core/internal/utils"
)

// BookingFlow is the orchestrator surface exposed over HTTP
type BookingFlow interface {
	CreateBooking(ctx context.Context, userID, flightID uuid.UUID) (*models.Booking, error)
	GetBooking(ctx context.Context, userID, bookingID uuid.UUID) (*models.BookingDetails, error)
	ReserveSeat(ctx context.Context, userID, bookingID, flightSeatID uuid.UUID) (*models.ReservationToken, error)
	AddPassenger(ctx context.Context, userID, bookingID uuid.UUID, input models.PassengerInput) (*models.Passenger, error)
	CompletePayment(ctx context.Context, userID, bookingID uuid.UUID, amount decimal.Decimal, method models.PaymentMethod) (*models.Booking, error)
	GetRefundQuote(ctx context.Context, userID, bookingID uuid.UUID) (*models.RefundQuote, error)
	RequestCancellation(ctx context.Context, userID, bookingID uuid.UUID, reason *string) (*models.CancellationResult, error)
	ProcessRefund(ctx context.Context, reviewerID, refundID uuid.UUID, decision models.RefundStatus, amount *decimal.Decimal, notes *string) (*models.Refund, error)
	ListFlightSeats(ctx context.Context, flightID uuid.UUID) ([]models.FlightSeat, error)
	ListBookings(ctx context.Context, userID uuid.UUID, status *models.BookingStatus, limit int) ([]models.Booking, error)
	GetBookingByReference(ctx context.Context, userID uuid.UUID, reference string) (*models.BookingDetails, error)
	GetBookingRefund(ctx context.Context, userID, bookingID uuid.UUID) (*models.Refund, error)
	ListUserRefunds(ctx context.Context, userID uuid.UUID, limit int) ([]models.Refund, error)
	ListRefunds(ctx context.Context, status *models.RefundStatus, limit int) ([]models.Refund, error)
}

const (
	dateLayout       = "2006-01-02"
	defaultListLimit = 50
	maxListLimit     = 500
)

// BookingHandler handles flight booking endpoints
type BookingHandler struct {
	bookings BookingFlow
	audit    AuditTrail
	logger   *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(bookings BookingFlow, audit AuditTrail, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{
		bookings: bookings,
		audit:    audit,
		logger:   logger,
	}
}

// RegisterRoutes mounts the booking API under rg. auth guards every route and
// reviewerRoles gates refund processing and audit history.
func (h *BookingHandler) RegisterRoutes(rg *gin.RouterGroup, auth gin.HandlerFunc, reviewerRoles []string) {
	flights := rg.Group("/flights", auth)
	{
		flights.GET("/:id/seats", h.ListFlightSeats)
	}

	bookings := rg.Group("/bookings", auth)
	{
		bookings.POST("", h.CreateBooking)
		bookings.GET("", h.ListBookings)
		bookings.GET("/reference/:ref", h.GetBookingByReference)
		bookings.GET("/:id", h.GetBooking)
		bookings.GET("/:id/refund", h.GetBookingRefund)
		bookings.POST("/:id/seats/:flight_seat_id/reserve", h.ReserveSeat)
		bookings.POST("/:id/passengers", h.AddPassenger)
		bookings.POST("/:id/payment", h.CompletePayment)
		bookings.GET("/:id/refund-quote", h.GetRefundQuote)
		bookings.POST("/:id/cancel", h.CancelBooking)
	}

	reviewer := middleware.RequireRole(reviewerRoles...)
	refunds := rg.Group("/refunds", auth)
	{
		refunds.GET("/mine", h.ListMyRefunds)
		refunds.GET("", reviewer, h.ListRefunds)
		refunds.POST("/:id/process", reviewer, h.ProcessRefund)
	}

	audit := rg.Group("/audit", auth, reviewer)
	{
		audit.GET("/:entity_type/:id", h.GetAuditHistory)
	}
}

// ============================================================================
// FLIGHT SEATS - GET /api/v1/flights/:id/seats
// ============================================================================

// ListFlightSeats returns the seat map of a flight with live statuses
func (h *BookingHandler) ListFlightSeats(c *gin.Context) {
	flightID, ok := pathUUID(c, "id", "flight")
	if !ok {
		return
	}

	seats, err := h.bookings.ListFlightSeats(c.Request.Context(), flightID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"flight_id": flightID,
		"seats":     seats,
		"total":     len(seats),
	})
}

// ============================================================================
// CREATE BOOKING - POST /api/v1/bookings
// ============================================================================

// CreateBooking opens a pending booking
// @Summary Create booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Param request body models.CreateBookingRequest true "Flight to book"
// @Success 201 {object} models.Booking
// @Failure 404 {object} map[string]interface{} "Flight not found"
// @Failure 409 {object} map[string]interface{} "Flight already departed"
// @Router /bookings [post]
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	userCtx, ok := h.requireUser(c)
	if !ok {
		return
	}

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "flight_id is required and must be a UUID")
		return
	}
	flightID, err := uuid.Parse(req.FlightID)
	if err != nil {
		badRequest(c, "flight_id must be a UUID")
		return
	}

	booking, err := h.bookings.CreateBooking(c.Request.Context(), userCtx.UserID, flightID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, booking)
}

// GetBooking returns a booking and its passengers
func (h *BookingHandler) GetBooking(c *gin.Context) {
	userCtx, ok := h.requireUser(c)
	if !ok {
		return
	}
	bookingID, ok := pathUUID(c, "id", "booking")
	if !ok {
		return
	}

	details, err := h.bookings.GetBooking(c.Request.Context(), userCtx.UserID, bookingID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, details)
}

// ListBookings returns the caller's bookings, optionally filtered by ?status=
func (h *BookingHandler) ListBookings(c *gin.Context) {
	userCtx, ok := h.requireUser(c)
	if !ok {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	var status *models.BookingStatus
	if raw := c.Query("status"); raw != "" {
		s := models.BookingStatus(raw)
		status = &s
	}

	bookings, err := h.bookings.ListBookings(c.Request.Context(), userCtx.UserID, status, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bookings": bookings,
		"total":    len(bookings),
	})
}

// GetBookingByReference returns a booking by the reference on the itinerary
func (h *BookingHandler) GetBookingByReference(c *gin.Context) {
	userCtx, ok := h.requireUser(c)
	if !ok {
		return
	}

	details, err := h.bookings.GetBookingByReference(c.Request.Context(), userCtx.UserID, c.Param("ref"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, details)
}

// GetBookingRefund returns the refund requested for a booking
func (h *BookingHandler) GetBookingRefund(c *gin.Context) {
	userCtx, ok := h.requireUser(c)
	if !ok {
		return
	}
	bookingID, ok := pathUUID(c, "id", "booking")
	if !ok {
		return
	}

	refund, err := h.bookings.GetBookingRefund(c.Request.Context(), userCtx.UserID, bookingID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, refund)
}

// ============================================================================
// SEATS AND PASSENGERS
// ============================================================================

// ReserveSeat places a hold on a seat for the booking
// @Summary Reserve seat
// @Tags Bookings
// @Produce json
// @Success 200 {object} models.ReservationToken
// @Failure 409 {object} map[string]interface{} "Seat no longer available"
// @Router /bookings/{id}/seats/{flight_seat_id}/reserve [post]
func (h *BookingHandler) ReserveSeat(c *gin.Context) {
	userCtx, ok := h.requireUser(c)
	if !ok {
		return
	}
	bookingID, ok := pathUUID(c, "id", "booking")
	if !ok {
		return
	}
	seatID, ok := pathUUID(c, "flight_seat_id", "seat")
	if !ok {
		return
	}

	token, err := h.bookings.ReserveSeat(c.Request.Context(), userCtx.UserID, bookingID, seatID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, token)
}

// AddPassenger adds a traveler to a pending booking
func (h *BookingHandler) AddPassenger(c *gin.Context) {
	userCtx, ok := h.requireUser(c)
	if !ok {
		return
	}
	bookingID, ok := pathUUID(c, "id", "booking")
	if !ok {
		return
	}

	var req models.AddPassengerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "passenger_type, first_name, last_name and date_of_birth are required")
		return
	}

	input, err := passengerInputFrom(req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	passenger, err := h.bookings.AddPassenger(c.Request.Context(), userCtx.UserID, bookingID, input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, passenger)
}

func passengerInputFrom(req models.AddPassengerRequest) (models.PassengerInput, error) {
	dob, err := time.Parse(dateLayout, req.DateOfBirth)
	if err != nil {
		return models.PassengerInput{}, models.NewBookingError(models.ErrCodeInvalidRequest, "date_of_birth must be YYYY-MM-DD")
	}

	input := models.PassengerInput{
		PassengerType: models.PassengerType(strings.ToLower(string(req.PassengerType))),
		FirstName:     strings.TrimSpace(req.FirstName),
		LastName:      strings.TrimSpace(req.LastName),
		DateOfBirth:   dob,
		Email:         req.Email,
		Phone:         req.Phone,
	}

	if req.FlightSeatID != nil && *req.FlightSeatID != "" {
		seatID, err := uuid.Parse(*req.FlightSeatID)
		if err != nil {
			return models.PassengerInput{}, models.NewBookingError(models.ErrCodeInvalidRequest, "flight_seat_id must be a UUID")
		}
		input.FlightSeatID = &seatID
	}

	return input, nil
}

// ============================================================================
// PAYMENT - POST /api/v1/bookings/:id/payment
// ============================================================================

// CompletePayment captures payment and confirms the booking
// @Summary Pay for booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Param request body models.CompletePaymentRequest true "Amount and method"
// @Success 200 {object} models.Booking
// @Failure 402 {object} map[string]interface{} "Payment declined"
// @Failure 409 {object} map[string]interface{} "Reservation went stale"
// @Router /bookings/{id}/payment [post]
func (h *BookingHandler) CompletePayment(c *gin.Context) {
	userCtx, ok := h.requireUser(c)
	if !ok {
		return
	}
	bookingID, ok := pathUUID(c, "id", "booking")
	if !ok {
		return
	}

	var req models.CompletePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "amount and method are required")
		return
	}

	booking, err := h.bookings.CompletePayment(c.Request.Context(), userCtx.UserID, bookingID, req.Amount, req.Method)
	h.safeLogPaymentAttempt(c.Request.Context(), userCtx.UserID, bookingID, req.Amount, req.Method, err, utils.ClientFromRequest(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// ============================================================================
// CANCELLATION AND REFUNDS
// ============================================================================

// GetRefundQuote previews what cancelling now would refund
func (h *BookingHandler) GetRefundQuote(c *gin.Context) {
	userCtx, ok := h.requireUser(c)
	if !ok {
		return
	}
	bookingID, ok := pathUUID(c, "id", "booking")
	if !ok {
		return
	}

	quote, err := h.bookings.GetRefundQuote(c.Request.Context(), userCtx.UserID, bookingID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, quote)
}

// CancelBooking cancels a booking and records a pending refund when one is due
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	userCtx, ok := h.requireUser(c)
	if !ok {
		return
	}
	bookingID, ok := pathUUID(c, "id", "booking")
	if !ok {
		return
	}

	var req models.CancelBookingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}

	result, err := h.bookings.RequestCancellation(c.Request.Context(), userCtx.UserID, bookingID, req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.safeLogBookingCancelled(c.Request.Context(), userCtx.UserID, result, utils.ClientFromRequest(c))
	c.JSON(http.StatusOK, result)
}

// ProcessRefund records a reviewer decision on a refund
// @Summary Process refund
// @Tags Refunds
// @Accept json
// @Produce json
// @Param request body models.ProcessRefundRequest true "Decision"
// @Success 200 {object} models.Refund
// @Failure 409 {object} map[string]interface{} "Refund already finalized"
// @Router /refunds/{id}/process [post]
func (h *BookingHandler) ProcessRefund(c *gin.Context) {
	userCtx, ok := h.requireUser(c)
	if !ok {
		return
	}
	refundID, ok := pathUUID(c, "id", "refund")
	if !ok {
		return
	}

	var req models.ProcessRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "decision must be one of approved, rejected, completed")
		return
	}

	refund, err := h.bookings.ProcessRefund(c.Request.Context(), userCtx.UserID, refundID, req.Decision, req.Amount, req.Notes)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.safeLogRefundDecision(c.Request.Context(), userCtx.UserID, refund, req.Amount, utils.ClientFromRequest(c))
	c.JSON(http.StatusOK, refund)
}

// ListMyRefunds returns the refunds on the caller's bookings
func (h *BookingHandler) ListMyRefunds(c *gin.Context) {
	userCtx, ok := h.requireUser(c)
	if !ok {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	refunds, err := h.bookings.ListUserRefunds(c.Request.Context(), userCtx.UserID, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"refunds": refunds,
		"total":   len(refunds),
	})
}

// ListRefunds is the reviewer queue, ?status=pending by default
func (h *BookingHandler) ListRefunds(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	var status *models.RefundStatus
	if raw := c.DefaultQuery("status", string(models.RefundStatusPending)); raw != "all" {
		s := models.RefundStatus(raw)
		status = &s
	}

	refunds, err := h.bookings.ListRefunds(c.Request.Context(), status, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"refunds": refunds,
		"total":   len(refunds),
	})
}

// GetAuditHistory lists audit rows for a booking, refund or payment
func (h *BookingHandler) GetAuditHistory(c *gin.Context) {
	entityType := c.Param("entity_type")
	switch entityType {
	case "booking", "refund", "payment":
	default:
		badRequest(c, "entity_type must be booking, refund or payment")
		return
	}
	entityID, ok := pathUUID(c, "id", entityType)
	if !ok {
		return
	}

	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	entries, err := h.audit.GetEntityHistory(c.Request.Context(), entityType, entityID, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entity_type": entityType,
		"entity_id":   entityID,
		"entries":     entries,
	})
}

func (h *BookingHandler) requireUser(c *gin.Context) (middleware.UserContext, bool) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "User not authenticated",
			"code":    "MISSING_USER_CONTEXT",
		})
		return middleware.UserContext{}, false
	}
	return userCtx, true
}

// queryLimit reads ?limit=, defaulting to defaultListLimit and capping at maxListLimit
func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		badRequest(c, "limit must be a positive integer")
		return 0, false
	}
	return min(n, maxListLimit), true
}

func pathUUID(c *gin.Context, param, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		badRequest(c, "invalid "+what+" id")
		return uuid.Nil, false
	}
	return id, true
}
