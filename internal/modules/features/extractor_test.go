package features

import (
	"encoding/json"
	"math/rand"
	"testing"
	"time"

	"github.com/aristath/skinsentinel/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Friday 2024-03-15 15:00 UTC
var fixedNow = time.Date(2024, 3, 15, 15, 0, 0, 0, time.UTC)

func newTestExtractor(now time.Time) *Extractor {
	return NewExtractor(zerolog.Nop(), WithClock(func() time.Time { return now }))
}

// hourlySeries builds points from now-hours to now, inclusive, using fn(i).
func hourlySeries(now time.Time, hours int, fn func(i int) float64) []PricePoint {
	points := make([]PricePoint, 0, hours+1)
	for i := 0; i <= hours; i++ {
		points = append(points, PricePoint{
			Timestamp: now.Add(time.Duration(i-hours) * time.Hour),
			Price:     fn(i),
		})
	}
	return points
}

func TestExtract_NoData(t *testing.T) {
	e := newTestExtractor(fixedNow)

	f := e.Extract("AK-47 | Redline (Field-Tested)", 12.5, nil, nil, nil)

	assert.Equal(t, 12.5, f.CurrentPrice)
	assert.Equal(t, 12.5, f.Mean7d)
	assert.Equal(t, 12.5, f.Min7d)
	assert.Equal(t, 12.5, f.Max7d)
	assert.Equal(t, 0.0, f.Std7d)
	assert.Equal(t, 50.0, f.RSI)
	assert.Equal(t, 0.0, f.Momentum)
	assert.Equal(t, 0.0, f.Volatility)
	assert.Equal(t, 0.0, f.PriceChange24h)
	assert.Equal(t, domain.TrendStable, f.Trend)
	assert.InDelta(t, 0.5*0.7*0.8, f.DataQualityScore, 1e-9)
}

func TestExtract_UpTrend(t *testing.T) {
	e := newTestExtractor(fixedNow)
	history := hourlySeries(fixedNow, 168, func(i int) float64 {
		return 100 + 10*float64(i)/168
	})

	f := e.Extract("item", 110, history, nil, nil)

	assert.InDelta(t, 10.0, f.PriceChange7d, 1e-9)
	assert.InDelta(t, 105.0, f.Mean7d, 1e-9)
	assert.Equal(t, 100.0, f.Min7d)
	assert.Equal(t, 110.0, f.Max7d)
	assert.Less(t, f.Volatility, VolatileThreshold)
	assert.Equal(t, domain.TrendUp, f.Trend)
	assert.Equal(t, 100.0, f.RSI, "monotonic gains")
	assert.Greater(t, f.Momentum, 0.0)
	assert.Greater(t, f.PriceChange1h, 0.0)
	assert.Greater(t, f.PriceChange24h, 0.0)
	assert.InDelta(t, 0.7*0.8, f.DataQualityScore, 1e-9)
}

func TestExtract_DownTrend(t *testing.T) {
	e := newTestExtractor(fixedNow)
	history := hourlySeries(fixedNow, 168, func(i int) float64 {
		return 100 - 10*float64(i)/168
	})

	f := e.Extract("item", 90, history, nil, nil)

	assert.Equal(t, domain.TrendDown, f.Trend)
	assert.InDelta(t, 0.0, f.RSI, 1e-9)
	assert.Less(t, f.Momentum, 0.0)
}

func TestExtract_VolatileOverridesDirection(t *testing.T) {
	e := newTestExtractor(fixedNow)
	history := hourlySeries(fixedNow, 48, func(i int) float64 {
		if i%2 == 0 {
			return 50
		}
		return 150
	})

	f := e.Extract("item", 100, history, nil, nil)

	assert.Greater(t, f.Volatility, VolatileThreshold)
	assert.Equal(t, domain.TrendVolatile, f.Trend)
}

func TestExtract_IgnoresPointsOutsideWindow(t *testing.T) {
	e := newTestExtractor(fixedNow)
	history := []PricePoint{
		{Timestamp: fixedNow.Add(-30 * 24 * time.Hour), Price: 1},
		{Timestamp: fixedNow.Add(-2 * time.Hour), Price: 10},
		{Timestamp: fixedNow.Add(-30 * time.Minute), Price: 11},
	}

	f := e.Extract("item", 11, history, nil, nil)

	assert.InDelta(t, 10.5, f.Mean7d, 1e-9)
	assert.InDelta(t, 10.0, f.PriceChange7d, 1e-9)
	assert.Equal(t, 0.0, f.PriceChange1h, "one point inside the hour window")
	assert.Equal(t, 50.0, f.RSI, "too few points for RSI")
}

func TestExtract_UnorderedHistory(t *testing.T) {
	e := newTestExtractor(fixedNow)
	history := []PricePoint{
		{Timestamp: fixedNow.Add(-1 * time.Hour), Price: 12},
		{Timestamp: fixedNow.Add(-5 * time.Hour), Price: 10},
	}

	f := e.Extract("item", 12, history, nil, nil)
	assert.InDelta(t, 20.0, f.PriceChange24h, 1e-9)
}

func TestExtract_Sales(t *testing.T) {
	e := newTestExtractor(fixedNow)
	sales := []Sale{
		{Timestamp: fixedNow.Add(-time.Hour).Format(time.RFC3339), Price: 10},
		{Timestamp: float64(fixedNow.Add(-2 * time.Hour).Unix()), Price: 10},
		{Date: fixedNow.Add(-3 * 24 * time.Hour).Format("2006-01-02T15:04:05"), Price: 10},
		{Timestamp: float64(fixedNow.Add(-10 * 24 * time.Hour).UnixMilli()), Price: 10},
		{Timestamp: "not a time", Price: 10},
		{Price: 10},
	}

	f := e.Extract("item", 10, nil, sales, nil)

	assert.Equal(t, 2.0, f.Sales24h)
	assert.Equal(t, 3.0, f.Sales7d)
	assert.InDelta(t, 3.0/7, f.AvgSalesPerDay, 1e-9)
	assert.InDelta(t, 0.5*0.8, f.DataQualityScore, 1e-9, "sales present even if some are unparsable")
}

func TestExtract_Offers(t *testing.T) {
	e := newTestExtractor(fixedNow)
	offers := []Offer{{PriceUSD: 96}, {PriceUSD: 104}, {PriceUSD: 120}, {PriceUSD: 80}}

	f := e.Extract("item", 100, nil, nil, offers)

	assert.Equal(t, 4.0, f.MarketDepth)
	assert.InDelta(t, 0.5, f.CompetitionLevel, 1e-9)
	assert.InDelta(t, 0.5*0.7, f.DataQualityScore, 1e-9)
}

func TestExtract_Calendar(t *testing.T) {
	tests := []struct {
		name    string
		now     time.Time
		hour    int
		dow     int
		weekend bool
		peak    bool
	}{
		{"friday afternoon", fixedNow, 15, 4, false, true},
		{"monday morning", time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC), 9, 0, false, false},
		{"saturday late", time.Date(2024, 3, 16, 22, 0, 0, 0, time.UTC), 22, 5, true, false},
		{"sunday at nine pm", time.Date(2024, 3, 17, 21, 30, 0, 0, time.UTC), 21, 6, true, true},
		{"non utc clock", time.Date(2024, 3, 15, 17, 0, 0, 0, time.FixedZone("EET", 2*3600)), 15, 4, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestExtractor(tt.now).Extract("item", 1, nil, nil, nil)
			assert.Equal(t, tt.hour, f.Hour)
			assert.Equal(t, tt.dow, f.DayOfWeek)
			assert.Equal(t, tt.weekend, f.IsWeekend)
			assert.Equal(t, tt.peak, f.IsPeakHours)
		})
	}
}

func TestExtract_HistoryCache(t *testing.T) {
	now := fixedNow
	e := NewExtractor(zerolog.Nop(), WithClock(func() time.Time { return now }), WithHistoryTTL(time.Hour))
	history := hourlySeries(now, 24, func(i int) float64 { return 10 + float64(i)/24 })

	first := e.Extract("item", 11, history, nil, nil)
	second := e.Extract("item", 11, nil, nil, nil)

	assert.Equal(t, first.Mean7d, second.Mean7d)
	assert.Equal(t, first.DataQualityScore, second.DataQualityScore, "cached history is real history")

	forked := e.Fork().Extract("item", 11, nil, nil, nil)
	assert.Equal(t, 11.0, forked.Mean7d, "forks do not share the cache")

	now = now.Add(2 * time.Hour)
	expired := e.Extract("item", 11, nil, nil, nil)
	assert.InDelta(t, second.DataQualityScore*qualityNoHistory, expired.DataQualityScore, 1e-9)
}

func TestExtract_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	e := newTestExtractor(fixedNow)
	validTrends := []domain.Trend{domain.TrendUp, domain.TrendDown, domain.TrendStable, domain.TrendVolatile}

	for n := 0; n < 200; n++ {
		points := rng.Intn(60)
		history := make([]PricePoint, points)
		for i := range history {
			history[i] = PricePoint{
				Timestamp: fixedNow.Add(-time.Duration(rng.Intn(9*24)) * time.Hour),
				Price:     rng.Float64() * 1000 * float64(rng.Intn(3)),
			}
		}
		var offers []Offer
		if rng.Intn(2) == 0 {
			offers = []Offer{{PriceUSD: rng.Float64() * 100}}
		}

		f := e.Fork().Extract("item", rng.Float64()*500, history, nil, offers)

		require.GreaterOrEqual(t, f.RSI, 0.0)
		require.LessOrEqual(t, f.RSI, 100.0)
		require.GreaterOrEqual(t, f.DataQualityScore, 0.0)
		require.LessOrEqual(t, f.DataQualityScore, 1.0)
		require.Contains(t, validTrends, f.Trend)
		if f.Volatility > VolatileThreshold {
			require.Equal(t, domain.TrendVolatile, f.Trend)
		}
		require.GreaterOrEqual(t, f.CompetitionLevel, 0.0)
		require.LessOrEqual(t, f.CompetitionLevel, 1.0)
	}
}

func TestVectorRoundTrip(t *testing.T) {
	e := newTestExtractor(fixedNow)
	history := hourlySeries(fixedNow, 48, func(i int) float64 { return 20 + float64(i%5) })
	f := e.Extract("item", 21, history, []Sale{{Timestamp: "2024-03-15T10:00:00Z"}}, []Offer{{PriceUSD: 21}})

	v := f.Vector()
	require.Len(t, v, VectorSize)
	assert.Equal(t, f.Trend.Code(), v[18])

	back, err := FromVector("item", v)
	require.NoError(t, err)
	assert.Equal(t, f, back)

	_, err = FromVector("item", v[:3])
	assert.Error(t, err)
}

func TestOffer_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
	}{
		{"cents as string", `{"price":{"USD":"1234"}}`, 12.34},
		{"cents as number", `{"price":{"USD":1234}}`, 12.34},
		{"plain dollars", `{"price":12.5}`, 12.5},
		{"other currency only", `{"price":{"EUR":"100"}}`, 0},
		{"missing price", `{}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var o Offer
			require.NoError(t, json.Unmarshal([]byte(tt.input), &o))
			assert.InDelta(t, tt.expected, o.PriceUSD, 1e-9)
		})
	}

	for _, input := range []string{
		`{"price":{"USD":"twelve"}}`,
		`{"price":{"USD":true}}`,
		`{"price":"abc"}`,
		`"not an object"`,
	} {
		var bad Offer
		require.NoError(t, json.Unmarshal([]byte(input), &bad), input)
		assert.True(t, bad.Malformed(), input)
		assert.Zero(t, bad.PriceUSD, input)
	}

	var good Offer
	require.NoError(t, json.Unmarshal([]byte(`{"price":{"USD":"1500"}}`), &good))
	assert.False(t, good.Malformed())
}

func TestExtract_DropsMalformedOffers(t *testing.T) {
	var offers []Offer
	require.NoError(t, json.Unmarshal([]byte(`[
		{"price":{"USD":"9600"}},
		{"price":{"USD":"abc"}},
		{"price":{"USD":10400}}
	]`), &offers))
	require.Len(t, offers, 3)

	e := NewExtractor(zerolog.Nop())
	f := e.Extract("item", 100, nil, nil, offers)

	assert.Equal(t, 2.0, f.MarketDepth)
	assert.InDelta(t, 1.0, f.CompetitionLevel, 1e-9)

	onlyBad := e.Extract("item", 100, nil, nil, offers[1:2])
	assert.Zero(t, onlyBad.MarketDepth)
	assert.InDelta(t, qualityNoHistory*qualityNoSales*qualityNoOffers, onlyBad.DataQualityScore, 1e-9)
}
