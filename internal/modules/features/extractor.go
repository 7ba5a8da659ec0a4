package features

import (
	"sort"
	"time"

	"github.com/aristath/skinsentinel/internal/cache"
	"github.com/aristath/skinsentinel/internal/domain"
	"github.com/aristath/skinsentinel/pkg/formulas"
	"github.com/aristath/skinsentinel/pkg/logger"
	"github.com/rs/zerolog"
)

const (
	// VolatileThreshold marks a 7d window as VOLATILE regardless of direction.
	VolatileThreshold = 0.15
	// TrendThresholdPercent is the 7d change needed to call a trend UP or DOWN.
	TrendThresholdPercent = 5.0
	// MomentumLookback is the number of points momentum looks back over.
	MomentumLookback = 10
	// CompetitionBand is the relative band around the current price that counts as competing.
	CompetitionBand = 0.05

	peakHourStart = 14
	peakHourEnd   = 21

	// data quality penalties
	qualityNoHistory = 0.5
	qualityNoSales   = 0.7
	qualityNoOffers  = 0.8
)

// Extractor builds PriceFeatures from raw market data.
//
// It keeps the last seen price history per item so a later call without
// history can still compute window statistics. Not safe for concurrent use;
// give each worker its own instance via Fork.
type Extractor struct {
	log     zerolog.Logger
	now     func() time.Time
	history *cache.Store[[]PricePoint]
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithClock sets the wall clock used for windows and calendar features.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		if now != nil {
			e.now = now
		}
	}
}

// WithHistoryTTL sets how long remembered price histories stay usable.
func WithHistoryTTL(ttl time.Duration) Option {
	return func(e *Extractor) {
		e.history = cache.New[[]PricePoint](ttl, cache.WithClock(e.clock))
	}
}

// NewExtractor creates a feature extractor.
func NewExtractor(log zerolog.Logger, opts ...Option) *Extractor {
	e := &Extractor{
		log: logger.Component(log, "feature_extractor"),
		now: time.Now,
	}
	e.history = cache.New[[]PricePoint](cache.TTLPriceHistory, cache.WithClock(e.clock))
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// clock indirects through e.now so WithClock applies regardless of option order.
func (e *Extractor) clock() time.Time {
	return e.now()
}

// Fork returns an extractor with the same clock and TTL but its own history cache.
func (e *Extractor) Fork() *Extractor {
	f := &Extractor{log: e.log, now: e.now}
	f.history = cache.New[[]PricePoint](e.history.TTL(), cache.WithClock(f.clock))
	return f
}

// Now returns the extractor's current time.
func (e *Extractor) Now() time.Time {
	return e.now()
}

// Extract computes the feature set for an item. All inputs besides the item
// name and price are optional; missing data lowers DataQualityScore instead
// of failing.
func (e *Extractor) Extract(itemName string, currentPrice float64, history []PricePoint, sales []Sale, offers []Offer) PriceFeatures {
	now := e.now().UTC()

	if len(history) > 0 {
		e.history.Set(itemName, history)
	} else if cached, ok := e.history.Get(itemName); ok {
		e.log.Debug().Str("item", itemName).Int("points", len(cached)).Msg("Using cached price history")
		history = cached
	}

	offers, dropped := usableOffers(offers)
	if dropped > 0 {
		e.log.Warn().Str("item", itemName).Int("dropped", dropped).Msg("Dropping offers with malformed prices")
	}

	f := PriceFeatures{
		ItemName:         itemName,
		CurrentPrice:     currentPrice,
		DataQualityScore: 1.0,
	}

	e.applyPriceWindows(&f, now, history)
	applySales(&f, now, sales)
	applyCalendar(&f, now)
	applyOffers(&f, offers)

	if len(history) == 0 {
		f.DataQualityScore *= qualityNoHistory
	}
	if len(sales) == 0 {
		f.DataQualityScore *= qualityNoSales
	}
	if len(offers) == 0 {
		f.DataQualityScore *= qualityNoOffers
	}
	f.DataQualityScore = formulas.Clamp(f.DataQualityScore, 0, 1)

	e.log.Debug().
		Str("item", itemName).
		Float64("price", currentPrice).
		Str("trend", string(f.Trend)).
		Float64("quality", f.DataQualityScore).
		Msg("Extracted features")

	return f
}

func (e *Extractor) applyPriceWindows(f *PriceFeatures, now time.Time, history []PricePoint) {
	sorted := make([]PricePoint, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	week := pricesSince(sorted, now.Add(-7*24*time.Hour))
	day := pricesSince(sorted, now.Add(-24*time.Hour))
	hour := pricesSince(sorted, now.Add(-time.Hour))

	if len(week) > 0 {
		f.Mean7d = formulas.Mean(week)
		f.Std7d = formulas.PopStdDev(week)
		f.Min7d = formulas.Min(week)
		f.Max7d = formulas.Max(week)
	} else {
		f.Mean7d = f.CurrentPrice
		f.Min7d = f.CurrentPrice
		f.Max7d = f.CurrentPrice
	}

	f.PriceChange1h = formulas.PercentChange(hour)
	f.PriceChange24h = formulas.PercentChange(day)
	f.PriceChange7d = formulas.PercentChange(week)

	f.RSI = formulas.CalculateRSI(week, formulas.DefaultRSIPeriod)
	f.Momentum = formulas.CalculateMomentum(day, MomentumLookback)
	f.Volatility = formulas.CoefficientOfVariation(week)
	f.Trend = ClassifyTrend(f.Volatility, f.PriceChange7d)
}

// ClassifyTrend applies the trend rules: VOLATILE overrides direction.
func ClassifyTrend(volatility, change7d float64) domain.Trend {
	switch {
	case volatility > VolatileThreshold:
		return domain.TrendVolatile
	case change7d > TrendThresholdPercent:
		return domain.TrendUp
	case change7d < -TrendThresholdPercent:
		return domain.TrendDown
	default:
		return domain.TrendStable
	}
}

func pricesSince(sorted []PricePoint, cutoff time.Time) []float64 {
	out := make([]float64, 0, len(sorted))
	for _, p := range sorted {
		if !p.Timestamp.Before(cutoff) {
			out = append(out, p.Price)
		}
	}
	return out
}

func applySales(f *PriceFeatures, now time.Time, sales []Sale) {
	dayCutoff := now.Add(-24 * time.Hour)
	weekCutoff := now.Add(-7 * 24 * time.Hour)

	for _, s := range sales {
		ts, ok := s.Time()
		if !ok {
			continue
		}
		if !ts.Before(weekCutoff) {
			f.Sales7d++
		}
		if !ts.Before(dayCutoff) {
			f.Sales24h++
		}
	}
	f.AvgSalesPerDay = f.Sales7d / 7
}

func applyCalendar(f *PriceFeatures, now time.Time) {
	f.Hour = now.Hour()
	// Monday = 0 ... Sunday = 6
	f.DayOfWeek = (int(now.Weekday()) + 6) % 7
	f.IsWeekend = f.DayOfWeek >= 5
	f.IsPeakHours = f.Hour >= peakHourStart && f.Hour <= peakHourEnd
}

// usableOffers returns the offers whose price decoded, without modifying the input.
func usableOffers(offers []Offer) ([]Offer, int) {
	dropped := 0
	for _, o := range offers {
		if o.Malformed() {
			dropped++
		}
	}
	if dropped == 0 {
		return offers, 0
	}
	kept := make([]Offer, 0, len(offers)-dropped)
	for _, o := range offers {
		if !o.Malformed() {
			kept = append(kept, o)
		}
	}
	return kept, dropped
}

func applyOffers(f *PriceFeatures, offers []Offer) {
	f.MarketDepth = float64(len(offers))
	if len(offers) == 0 || f.CurrentPrice <= 0 {
		return
	}
	lo := f.CurrentPrice * (1 - CompetitionBand)
	hi := f.CurrentPrice * (1 + CompetitionBand)
	competing := 0
	for _, o := range offers {
		if o.PriceUSD >= lo && o.PriceUSD <= hi {
			competing++
		}
	}
	f.CompetitionLevel = float64(competing) / float64(len(offers))
}
