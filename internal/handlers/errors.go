package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/skyroute/booking-core/internal/models"
)

var statusByCode = map[models.ErrorCode]int{
	models.ErrCodeSeatUnavailable:        http.StatusConflict,
	models.ErrCodeInvalidTransition:      http.StatusConflict,
	models.ErrCodeStaleReservation:       http.StatusConflict,
	models.ErrCodeRefundAlreadyFinalized: http.StatusConflict,
	models.ErrCodeInvalidPriceMultiplier: http.StatusUnprocessableEntity,
	models.ErrCodeNegativeQuantity:       http.StatusUnprocessableEntity,
	models.ErrCodeBookingNotRefundable:   http.StatusUnprocessableEntity,
	models.ErrCodeNoPolicyConfigured:     http.StatusServiceUnavailable,
	models.ErrCodeNotFound:               http.StatusNotFound,
	models.ErrCodeForbidden:              http.StatusForbidden,
	models.ErrCodeInvalidRequest:         http.StatusBadRequest,
	models.ErrCodePaymentFailed:          http.StatusPaymentRequired,
}

// Messages shown to travelers regardless of the internal detail
var messageByCode = map[models.ErrorCode]string{
	models.ErrCodeSeatUnavailable:        "Seat no longer available, please choose another",
	models.ErrCodeStaleReservation:       "Booking could not be confirmed, please retry payment",
	models.ErrCodeInvalidPriceMultiplier: "This seat cannot be priced right now",
	models.ErrCodeNegativeQuantity:       "This booking cannot be priced right now",
	models.ErrCodeNoPolicyConfigured:     "Cancellations are temporarily unavailable",
	models.ErrCodeBookingNotRefundable:   "This booking is not eligible for a refund",
	models.ErrCodeRefundAlreadyFinalized: "This refund has already been finalized",
	models.ErrCodePaymentFailed:          "Payment was not successful, please retry payment",
}

// respondError writes the JSON error body for err. Unknown errors become a 500
// and are logged; their text never reaches the client.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	var be *models.BookingError
	if !errors.As(err, &be) {
		logger.WithError(err).WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("Unhandled error")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
			"code":    "INTERNAL_ERROR",
		})
		return
	}

	status, ok := statusByCode[be.Code]
	if !ok {
		status = http.StatusInternalServerError
	}
	message, ok := messageByCode[be.Code]
	if !ok {
		message = be.Message
	}

	if be.Err != nil {
		logger.WithError(be.Err).WithField("code", be.Code).Warn(be.Message)
	}

	c.JSON(status, gin.H{
		"error":   strings.ToLower(string(be.Code)),
		"message": message,
		"code":    be.Code,
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_request",
		"message": message,
		"code":    models.ErrCodeInvalidRequest,
	})
}
