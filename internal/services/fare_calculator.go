package services

import (
	"github.com/shopspring/decimal"

	"github.com/skyroute/booking-core/internal/models"
)

// moneyPlaces is the number of decimal places every amount is rounded to
const moneyPlaces = 2

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// RoundMoney rounds half away from zero to two places (2.675 -> 2.68)
func RoundMoney(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(moneyPlaces)
}

// SeatUpgradePrice returns basePrice × (multiplier − 1), never below zero.
// An economy seat (multiplier 1.0) costs nothing extra.
func SeatUpgradePrice(basePrice, multiplier decimal.Decimal) (decimal.Decimal, error) {
	if multiplier.LessThan(one) {
		return decimal.Zero, models.NewBookingError(models.ErrCodeInvalidPriceMultiplier,
			"price multiplier must be at least 1.0, got "+multiplier.String())
	}
	if basePrice.IsNegative() {
		return decimal.Zero, models.NewBookingError(models.ErrCodeNegativeQuantity, "base price must not be negative")
	}

	upgrade := basePrice.Mul(multiplier.Sub(one))
	if upgrade.IsNegative() {
		upgrade = decimal.Zero
	}
	return RoundMoney(upgrade), nil
}

// BookingTotal returns (basePrice × passengerCount + Σ seatUpgrades) × (1 + taxRate).
// Rounding happens once, on the grand total.
func BookingTotal(basePrice decimal.Decimal, passengerCount int, seatUpgrades []decimal.Decimal, taxRate decimal.Decimal) (decimal.Decimal, error) {
	if passengerCount < 1 {
		return decimal.Zero, models.NewBookingError(models.ErrCodeNegativeQuantity, "a booking needs at least one passenger")
	}
	if taxRate.IsNegative() {
		return decimal.Zero, models.NewBookingError(models.ErrCodeNegativeQuantity, "tax rate must not be negative")
	}
	if basePrice.IsNegative() {
		return decimal.Zero, models.NewBookingError(models.ErrCodeNegativeQuantity, "base price must not be negative")
	}

	subtotal := basePrice.Mul(decimal.NewFromInt(int64(passengerCount)))
	for _, upgrade := range seatUpgrades {
		if upgrade.IsNegative() {
			return decimal.Zero, models.NewBookingError(models.ErrCodeNegativeQuantity, "seat upgrade must not be negative")
		}
		subtotal = subtotal.Add(upgrade)
	}

	return RoundMoney(subtotal.Mul(one.Add(taxRate))), nil
}

// PriceBooking totals a booking on flight for its active passengers and the
// seats they occupy. Every active passenger pays the base fare, including an
// unseated infant. seats is keyed by flight seat ID.
func PriceBooking(flight *models.Flight, passengers []models.Passenger, seats map[string]models.FlightSeat) (decimal.Decimal, error) {
	count := 0
	upgrades := make([]decimal.Decimal, 0, len(passengers))
	for _, p := range passengers {
		if !p.IsActive() {
			continue
		}
		count++
		if p.FlightSeatID == nil {
			continue
		}
		seat, ok := seats[p.FlightSeatID.String()]
		if !ok {
			return decimal.Zero, models.NewBookingError(models.ErrCodeNotFound, "seat "+p.FlightSeatID.String()+" is not on this flight")
		}
		upgrade, err := SeatUpgradePrice(flight.BasePrice, seat.PriceMultiplier)
		if err != nil {
			return decimal.Zero, err
		}
		upgrades = append(upgrades, upgrade)
	}

	return BookingTotal(flight.BasePrice, count, upgrades, flight.TaxRate)
}
