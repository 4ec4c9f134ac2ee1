package models

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a caller-visible booking failure
type ErrorCode string

const (
	ErrCodeSeatUnavailable        ErrorCode = "SEAT_UNAVAILABLE"
	ErrCodeInvalidTransition      ErrorCode = "INVALID_TRANSITION"
	ErrCodeStaleReservation       ErrorCode = "STALE_RESERVATION"
	ErrCodeInvalidPriceMultiplier ErrorCode = "INVALID_PRICE_MULTIPLIER"
	ErrCodeNegativeQuantity       ErrorCode = "NEGATIVE_QUANTITY"
	ErrCodeNoPolicyConfigured     ErrorCode = "NO_POLICY_CONFIGURED"
	ErrCodeBookingNotRefundable   ErrorCode = "BOOKING_NOT_REFUNDABLE"
	ErrCodeRefundAlreadyFinalized ErrorCode = "REFUND_ALREADY_FINALIZED"
	ErrCodeNotFound               ErrorCode = "NOT_FOUND"
	ErrCodeForbidden              ErrorCode = "FORBIDDEN"
	ErrCodeInvalidRequest         ErrorCode = "INVALID_REQUEST"
	ErrCodePaymentFailed          ErrorCode = "PAYMENT_FAILED"
)

// BookingError is a typed domain failure. errors.Is matches on Code alone,
// so wrapped errors with extra detail still compare equal to the sentinels.
type BookingError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *BookingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BookingError) Unwrap() error {
	return e.Err
}

// Is matches any BookingError carrying the same code
func (e *BookingError) Is(target error) bool {
	var other *BookingError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

var (
	ErrSeatUnavailable        = &BookingError{Code: ErrCodeSeatUnavailable, Message: "seat no longer available, please choose another"}
	ErrInvalidTransition      = &BookingError{Code: ErrCodeInvalidTransition, Message: "operation not allowed in the current state"}
	ErrStaleReservation       = &BookingError{Code: ErrCodeStaleReservation, Message: "booking could not be confirmed, please retry payment"}
	ErrInvalidPriceMultiplier = &BookingError{Code: ErrCodeInvalidPriceMultiplier, Message: "price multiplier must be at least 1.0"}
	ErrNegativeQuantity       = &BookingError{Code: ErrCodeNegativeQuantity, Message: "pricing input must not be negative"}
	ErrNoPolicyConfigured     = &BookingError{Code: ErrCodeNoPolicyConfigured, Message: "no cancellation policy is configured"}
	ErrBookingNotRefundable   = &BookingError{Code: ErrCodeBookingNotRefundable, Message: "booking is not eligible for a refund"}
	ErrRefundAlreadyFinalized = &BookingError{Code: ErrCodeRefundAlreadyFinalized, Message: "refund has already been finalized"}
	ErrNotFound               = &BookingError{Code: ErrCodeNotFound, Message: "resource not found"}
	ErrForbidden              = &BookingError{Code: ErrCodeForbidden, Message: "you do not have access to this booking"}
	ErrInvalidRequest         = &BookingError{Code: ErrCodeInvalidRequest, Message: "invalid request"}
	ErrPaymentFailed          = &BookingError{Code: ErrCodePaymentFailed, Message: "payment was not successful, please retry payment"}
)

// NewBookingError builds a coded error with a specific message
func NewBookingError(code ErrorCode, message string) *BookingError {
	return &BookingError{Code: code, Message: message}
}

// WrapBookingError attaches a code and message to an underlying cause
func WrapBookingError(code ErrorCode, message string, err error) *BookingError {
	return &BookingError{Code: code, Message: message, Err: err}
}

// ErrorCodeOf extracts the code from err, or "" when err is not a BookingError
func ErrorCodeOf(err error) ErrorCode {
	var be *BookingError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}
