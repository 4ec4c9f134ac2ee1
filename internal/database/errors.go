package database

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrDuplicateBookingReference means a generated reference collided
	ErrDuplicateBookingReference = errors.New("booking reference already exists")
	// ErrSeatAlreadyAssigned means another active passenger already occupies the seat
	ErrSeatAlreadyAssigned = errors.New("flight seat already assigned to an active passenger")
	// ErrPaymentInProgress means the booking already has a pending payment
	ErrPaymentInProgress = errors.New("a payment is already pending for this booking")
	// ErrBookingNotPending means the booking was confirmed or cancelled meanwhile
	ErrBookingNotPending = errors.New("booking is no longer pending")
	// ErrRefundExists means the booking already has a refund request
	ErrRefundExists = errors.New("refund already exists for this booking")
)

const pqUniqueViolation = "23505"

// isUniqueViolation reports whether err is a unique-constraint failure on
// constraint, or on any constraint when constraint is empty
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code != pqUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
