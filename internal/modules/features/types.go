// Package features turns raw marketplace data into fixed-order numeric feature vectors.
package features

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/aristath/skinsentinel/internal/domain"
	"github.com/aristath/skinsentinel/internal/utils"
)

// PricePoint is one observation of an item's price history.
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
}

// Sale is one completed trade. Marketplaces report the time under either
// "timestamp" or "date", as an ISO string or an epoch number.
type Sale struct {
	Timestamp any     `json:"timestamp,omitempty"`
	Date      any     `json:"date,omitempty"`
	Price     float64 `json:"price"`
}

// Time returns the parsed sale time, preferring Timestamp over Date.
func (s Sale) Time() (time.Time, bool) {
	if t, ok := utils.ParseTimestamp(s.Timestamp); ok {
		return t, true
	}
	return utils.ParseTimestamp(s.Date)
}

// Offer is a live listing. PriceUSD is always in dollars.
type Offer struct {
	PriceUSD float64 `json:"price"`

	malformed bool
}

// Malformed reports whether the offer's price could not be decoded.
func (o Offer) Malformed() bool {
	return o.malformed
}

// UnmarshalJSON accepts {"price": {"USD": cents}} as quoted by DMarket, where
// cents may be a string or a number, as well as a plain numeric dollar price.
// An undecodable price marks the offer malformed instead of failing, so one
// bad listing does not reject the whole item.
func (o *Offer) UnmarshalJSON(data []byte) error {
	*o = Offer{}

	var raw struct {
		Price json.RawMessage `json:"price"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		o.malformed = true
		return nil
	}
	if len(raw.Price) == 0 || string(raw.Price) == "null" {
		return nil
	}

	var dollars float64
	if err := json.Unmarshal(raw.Price, &dollars); err == nil {
		o.PriceUSD = dollars
		return nil
	}

	var quoted map[string]json.RawMessage
	if err := json.Unmarshal(raw.Price, &quoted); err != nil {
		o.malformed = true
		return nil
	}
	cents, ok := quoted["USD"]
	if !ok {
		return nil
	}

	var asString string
	if err := json.Unmarshal(cents, &asString); err == nil {
		n, err := strconv.ParseInt(asString, 10, 64)
		if err != nil {
			o.malformed = true
			return nil
		}
		o.PriceUSD = utils.CentsToUSD(n)
		return nil
	}
	var asNumber int64
	if err := json.Unmarshal(cents, &asNumber); err != nil {
		o.malformed = true
		return nil
	}
	o.PriceUSD = utils.CentsToUSD(asNumber)
	return nil
}

// PriceFeatures is the extracted feature set for one item at one instant.
type PriceFeatures struct {
	ItemName         string       `json:"item_name"`
	CurrentPrice     float64      `json:"current_price"`
	Mean7d           float64      `json:"mean_7d"`
	Std7d            float64      `json:"std_7d"`
	Min7d            float64      `json:"min_7d"`
	Max7d            float64      `json:"max_7d"`
	PriceChange1h    float64      `json:"price_change_1h"`
	PriceChange24h   float64      `json:"price_change_24h"`
	PriceChange7d    float64      `json:"price_change_7d"`
	RSI              float64      `json:"rsi"`
	Volatility       float64      `json:"volatility"`
	Momentum         float64      `json:"momentum"`
	Sales24h         float64      `json:"sales_24h"`
	Sales7d          float64      `json:"sales_7d"`
	AvgSalesPerDay   float64      `json:"avg_sales_per_day"`
	Hour             int          `json:"hour"`
	DayOfWeek        int          `json:"day_of_week"`
	IsWeekend        bool         `json:"is_weekend"`
	IsPeakHours      bool         `json:"is_peak_hours"`
	Trend            domain.Trend `json:"trend"`
	MarketDepth      float64      `json:"market_depth"`
	CompetitionLevel float64      `json:"competition_level"`
	DataQualityScore float64      `json:"data_quality_score"`
}

// VectorNames lists the feature vector columns in order.
var VectorNames = []string{
	"current_price",
	"mean_7d",
	"std_7d",
	"min_7d",
	"max_7d",
	"price_change_1h",
	"price_change_24h",
	"price_change_7d",
	"rsi",
	"volatility",
	"momentum",
	"sales_24h",
	"sales_7d",
	"avg_sales_per_day",
	"hour",
	"day_of_week",
	"is_weekend",
	"is_peak_hours",
	"trend",
	"market_depth",
	"competition_level",
	"data_quality_score",
}

// VectorSize is the length of PriceFeatures.Vector.
var VectorSize = len(VectorNames)

// Vector serializes the features in VectorNames order.
func (f PriceFeatures) Vector() []float64 {
	return []float64{
		f.CurrentPrice,
		f.Mean7d,
		f.Std7d,
		f.Min7d,
		f.Max7d,
		f.PriceChange1h,
		f.PriceChange24h,
		f.PriceChange7d,
		f.RSI,
		f.Volatility,
		f.Momentum,
		f.Sales24h,
		f.Sales7d,
		f.AvgSalesPerDay,
		float64(f.Hour),
		float64(f.DayOfWeek),
		boolToFloat(f.IsWeekend),
		boolToFloat(f.IsPeakHours),
		f.Trend.Code(),
		f.MarketDepth,
		f.CompetitionLevel,
		f.DataQualityScore,
	}
}

// FromVector rebuilds features from a stored vector.
func FromVector(itemName string, v []float64) (PriceFeatures, error) {
	if len(v) != VectorSize {
		return PriceFeatures{}, fmt.Errorf("feature vector has %d values, want %d", len(v), VectorSize)
	}
	return PriceFeatures{
		ItemName:         itemName,
		CurrentPrice:     v[0],
		Mean7d:           v[1],
		Std7d:            v[2],
		Min7d:            v[3],
		Max7d:            v[4],
		PriceChange1h:    v[5],
		PriceChange24h:   v[6],
		PriceChange7d:    v[7],
		RSI:              v[8],
		Volatility:       v[9],
		Momentum:         v[10],
		Sales24h:         v[11],
		Sales7d:          v[12],
		AvgSalesPerDay:   v[13],
		Hour:             int(v[14]),
		DayOfWeek:        int(v[15]),
		IsWeekend:        v[16] != 0,
		IsPeakHours:      v[17] != 0,
		Trend:            domain.TrendFromCode(v[18]),
		MarketDepth:      v[19],
		CompetitionLevel: v[20],
		DataQualityScore: v[21],
	}, nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
