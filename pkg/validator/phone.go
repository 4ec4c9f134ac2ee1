package validator

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrInvalidLength indicates the number has too few or too many digits for E.164
	ErrInvalidLength = errors.New("phone number must have between 8 and 15 digits")

	// ErrInvalidFormat indicates phone number contains invalid characters
	ErrInvalidFormat = errors.New("phone number can only contain digits and an optional leading +")

	// ErrMissingCountryCode indicates a national number without a country code
	ErrMissingCountryCode = errors.New("phone number must include a country code")

	// ErrEmptyPhone indicates phone number is empty
	ErrEmptyPhone = errors.New("phone number cannot be empty")
)

// phoneRegex matches digits only
var phoneRegex = regexp.MustCompile(`^\d+$`)

// PhoneValidator handles international phone number validation
type PhoneValidator struct{}

// NewPhoneValidator creates a new phone validator instance
func NewPhoneValidator() *PhoneValidator {
	return &PhoneValidator{}
}

// Validate checks an international number and returns it in E.164 form.
// Accepts +44 20 7946 0958, 0044-20-7946-0958, (+1) 415.555.0100
func (v *PhoneValidator) Validate(phone string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", ErrEmptyPhone
	}

	sanitized := v.Sanitize(phone)

	digits := strings.TrimPrefix(sanitized, "+")
	if !phoneRegex.MatchString(digits) {
		return "", ErrInvalidFormat
	}

	if !strings.HasPrefix(sanitized, "+") {
		return "", ErrMissingCountryCode
	}

	if len(digits) < 8 || len(digits) > 15 {
		return "", ErrInvalidLength
	}

	return sanitized, nil
}

// Sanitize removes separators and rewrites a 00 international prefix to +
func (v *PhoneValidator) Sanitize(phone string) string {
	replacer := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
	phone = replacer.Replace(strings.TrimSpace(phone))

	if strings.HasPrefix(phone, "00") {
		phone = "+" + phone[2:]
	}

	return phone
}

// IsValid is a convenience method that returns true if phone is valid
func (v *PhoneValidator) IsValid(phone string) bool {
	_, err := v.Validate(phone)
	return err == nil
}
