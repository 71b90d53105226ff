package engine

import (
	"math"
	"time"

	"mcube-trader/internal/types"

	"github.com/shopspring/decimal"
)

var sqrt252 = math.Sqrt(252)

// roundUpToStep and roundDownToStep snap a price onto the strike grid.
func roundUpToStep(price float64, step int) float64 {
	if step <= 0 {
		return price
	}
	s := float64(step)
	return math.Ceil(price/s) * s
}

func roundDownToStep(price float64, step int) float64 {
	if step <= 0 {
		return price
	}
	s := float64(step)
	return math.Floor(price/s) * s
}

// dailyDelta converts an annualised VIX into the expected one-day move in
// percent, rounded to two decimals.
func dailyDelta(vix float64) float64 {
	return decimal.NewFromFloat(vix / sqrt252).Round(2).InexactFloat64()
}

func istDate(t time.Time) string {
	return t.In(types.IST).Format(types.DateLayout)
}

func midnightIST(t time.Time) time.Time {
	z := t.In(types.IST)
	return time.Date(z.Year(), z.Month(), z.Day(), 0, 0, 0, 0, types.IST)
}

// daysToExpiry counts calendar days from now's IST date to expiry.
func daysToExpiry(now time.Time, expiry string) (int, error) {
	exp, err := time.ParseInLocation(types.DateLayout, expiry, types.IST)
	if err != nil {
		return 0, err
	}
	return int(exp.Sub(midnightIST(now)).Hours() / 24), nil
}
