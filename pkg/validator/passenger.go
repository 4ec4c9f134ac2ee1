package validator

import (
	"errors"
	"net/mail"
	"strings"
	"time"
	"unicode"
)

var (
	ErrEmptyName        = errors.New("first and last name are required")
	ErrNameTooLong      = errors.New("names must be at most 100 characters")
	ErrInvalidName      = errors.New("names may contain letters, spaces, hyphens and apostrophes only")
	ErrBirthInFuture    = errors.New("date of birth cannot be in the future")
	ErrAgeMismatch      = errors.New("date of birth does not match passenger type")
	ErrUnknownPassenger = errors.New("passenger type must be adult, child or infant")
	ErrInvalidEmail     = errors.New("email address is not valid")
)

// Age bands on the day of travel
const (
	InfantMaxAge = 2  // under 2
	ChildMaxAge  = 12 // 2 through 11
)

// PassengerDetails is the traveler data checked before a passenger is added
type PassengerDetails struct {
	PassengerType string
	FirstName     string
	LastName      string
	DateOfBirth   time.Time
	Email         *string
	Phone         *string
}

// PassengerValidator validates traveler details against the travel date
type PassengerValidator struct {
	phone *PhoneValidator
}

// NewPassengerValidator creates a new passenger validator instance
func NewPassengerValidator() *PassengerValidator {
	return &PassengerValidator{phone: NewPhoneValidator()}
}

// Validate checks names, age band and contact fields. A valid phone is
// rewritten to E.164 in place.
func (v *PassengerValidator) Validate(p *PassengerDetails, travelDate time.Time) error {
	if err := v.ValidateName(p.FirstName); err != nil {
		return err
	}
	if err := v.ValidateName(p.LastName); err != nil {
		return err
	}

	if p.DateOfBirth.After(travelDate) {
		return ErrBirthInFuture
	}
	if err := v.ValidateAge(p.PassengerType, p.DateOfBirth, travelDate); err != nil {
		return err
	}

	if p.Email != nil && *p.Email != "" {
		if _, err := mail.ParseAddress(*p.Email); err != nil {
			return ErrInvalidEmail
		}
	}

	if p.Phone != nil && *p.Phone != "" {
		normalized, err := v.phone.Validate(*p.Phone)
		if err != nil {
			return err
		}
		p.Phone = &normalized
	}

	return nil
}

// ValidateName checks one name part
func (v *PassengerValidator) ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if len([]rune(name)) > 100 {
		return ErrNameTooLong
	}
	for _, r := range name {
		if unicode.IsLetter(r) || r == ' ' || r == '-' || r == '\'' {
			continue
		}
		return ErrInvalidName
	}
	return nil
}

// ValidateAge checks that the traveler's age on travelDate fits passengerType
func (v *PassengerValidator) ValidateAge(passengerType string, dob, travelDate time.Time) error {
	age := AgeOn(dob, travelDate)
	switch passengerType {
	case "infant":
		if age >= InfantMaxAge {
			return ErrAgeMismatch
		}
	case "child":
		if age < InfantMaxAge || age >= ChildMaxAge {
			return ErrAgeMismatch
		}
	case "adult":
		if age < ChildMaxAge {
			return ErrAgeMismatch
		}
	default:
		return ErrUnknownPassenger
	}
	return nil
}

// AgeOn returns completed years between dob and day
func AgeOn(dob, day time.Time) int {
	years := day.Year() - dob.Year()
	if day.Month() < dob.Month() || (day.Month() == dob.Month() && day.Day() < dob.Day()) {
		years--
	}
	return years
}
