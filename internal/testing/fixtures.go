package testing

import (
	"math"
	"time"

	"github.com/aristath/skinsentinel/internal/modules/features"
)

// FixedNow is the reference clock used by fixtures: Friday 2024-03-15 15:00 UTC.
var FixedNow = time.Date(2024, 3, 15, 15, 0, 0, 0, time.UTC)

// Clock returns a function reporting *now, so tests can advance time.
func Clock(now *time.Time) func() time.Time {
	return func() time.Time { return *now }
}

// RisingHistory returns n hourly points ending at end, rising linearly from
// start by step per point.
func RisingHistory(end time.Time, n int, start, step float64) []features.PricePoint {
	history := make([]features.PricePoint, n)
	for i := range history {
		history[i] = features.PricePoint{
			Timestamp: end.Add(-time.Duration(n-1-i) * time.Hour),
			Price:     start + float64(i)*step,
		}
	}
	return history
}

// WavyHistory returns n hourly points oscillating around base with the
// given relative amplitude.
func WavyHistory(end time.Time, n int, base, amplitude float64) []features.PricePoint {
	history := make([]features.PricePoint, n)
	for i := range history {
		history[i] = features.PricePoint{
			Timestamp: end.Add(-time.Duration(n-1-i) * time.Hour),
			Price:     base * (1 + amplitude*math.Sin(float64(i)/3)),
		}
	}
	return history
}

// RecentSales returns n sales at price spread over the hour before now,
// using RFC3339 string timestamps.
func RecentSales(now time.Time, n int, price float64) []features.Sale {
	sales := make([]features.Sale, n)
	for i := range sales {
		sales[i] = features.Sale{
			Timestamp: now.Add(-time.Duration(i+1) * time.Minute).Format(time.RFC3339),
			Price:     price,
		}
	}
	return sales
}

// Offers returns market offers at the given USD prices.
func Offers(prices ...float64) []features.Offer {
	offers := make([]features.Offer, len(prices))
	for i, p := range prices {
		offers[i] = features.Offer{PriceUSD: p}
	}
	return offers
}
