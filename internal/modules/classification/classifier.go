package classification

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/skinsentinel/internal/domain"
	"github.com/aristath/skinsentinel/internal/metrics"
	"github.com/aristath/skinsentinel/internal/modules/features"
	"github.com/aristath/skinsentinel/pkg/formulas"
	"github.com/aristath/skinsentinel/pkg/logger"
)

// Position multipliers of the max position, per signal.
var positionMultipliers = map[domain.Signal]float64{
	domain.SignalStrongBuy:  0.8,
	domain.SignalBuy:        0.5,
	domain.SignalHold:       0,
	domain.SignalSkip:       0,
	domain.SignalSell:       0.3,
	domain.SignalStrongSell: 0.3,
}

// TradeClassification is the scored view of one opportunity. Immutable once built.
type TradeClassification struct {
	ItemName              string           `json:"item_name"`
	CurrentPrice          float64          `json:"current_price"`
	ExpectedPrice         float64          `json:"expected_price"`
	Signal                domain.Signal    `json:"signal"`
	RiskLevel             domain.RiskLevel `json:"risk_level"`
	RiskScore             float64          `json:"risk_score"`
	LiquidityScore        float64          `json:"liquidity_score"`
	Probabilities         Probabilities    `json:"probabilities"`
	PositionSizePercent   float64          `json:"position_size_percent"`
	MaxLossPercent        float64          `json:"max_loss_percent"`
	ExpectedProfitPercent float64          `json:"expected_profit_percent"`
	ProfitProbability     float64          `json:"profit_probability"`
	Reasoning             []string         `json:"reasoning"`
	Timestamp             time.Time        `json:"timestamp"`
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithClock sets the time source for timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) {
		if now != nil {
			c.now = now
		}
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m *metrics.Engine) Option {
	return func(c *Classifier) {
		c.metrics = m
	}
}

// Classifier turns features and an expected price into a TradeClassification.
// Not safe for concurrent use; give each worker its own Fork.
type Classifier struct {
	log        zerolog.Logger
	extractor  *features.Extractor
	metrics    *metrics.Engine
	now        func() time.Time
	balance    float64
	tolerance  domain.RiskTolerance
	thresholds Thresholds
	maxPosPct  float64
}

// NewClassifier creates a classifier. An unknown tolerance falls back to moderate.
func NewClassifier(extractor *features.Extractor, balance float64, tolerance domain.RiskTolerance, log zerolog.Logger, opts ...Option) *Classifier {
	if _, ok := domain.ParseRiskTolerance(string(tolerance)); !ok {
		tolerance = domain.ToleranceModerate
	}

	c := &Classifier{
		log:        logger.Component(log, "trade_classifier"),
		extractor:  extractor,
		now:        time.Now,
		balance:    balance,
		tolerance:  tolerance,
		thresholds: ThresholdsFor(tolerance),
		maxPosPct:  MaxPositionPercent(balance),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fork returns an independent classifier with the same settings.
func (c *Classifier) Fork() *Classifier {
	f := *c
	f.extractor = c.extractor.Fork()
	return &f
}

// SyncFrom copies src's balance and risk tolerance, keeping this classifier's
// own extractor.
func (c *Classifier) SyncFrom(src *Classifier) {
	c.balance = src.balance
	c.maxPosPct = src.maxPosPct
	c.tolerance = src.tolerance
	c.thresholds = src.thresholds
}

// SetBalance updates the balance and the derived position cap.
func (c *Classifier) SetBalance(balance float64) {
	c.balance = balance
	c.maxPosPct = MaxPositionPercent(balance)
}

// SetRiskTolerance switches the threshold table. Unknown names are ignored
// and leave the current configuration untouched; the result reports whether
// the change was applied.
func (c *Classifier) SetRiskTolerance(name string) bool {
	tol, ok := domain.ParseRiskTolerance(name)
	if !ok {
		c.log.Debug().Str("tolerance", name).Msg("Ignoring unknown risk tolerance")
		return false
	}
	c.tolerance = tol
	c.thresholds = ThresholdsFor(tol)
	return true
}

// RiskTolerance returns the active tolerance.
func (c *Classifier) RiskTolerance() domain.RiskTolerance {
	return c.tolerance
}

// Thresholds returns the active threshold table.
func (c *Classifier) Thresholds() Thresholds {
	return c.thresholds
}

// MaxPositionPercent returns the position cap for the current balance.
func (c *Classifier) MaxPositionPercent() float64 {
	return c.maxPosPct
}

// Classify extracts features and classifies the opportunity.
func (c *Classifier) Classify(itemName string, currentPrice, expectedPrice float64, history []features.PricePoint, sales []features.Sale, offers []features.Offer) TradeClassification {
	f := c.extractor.Extract(itemName, currentPrice, history, sales, offers)
	return c.ClassifyFeatures(itemName, f, expectedPrice)
}

// ClassifyFeatures classifies an opportunity from extracted features.
func (c *Classifier) ClassifyFeatures(itemName string, f features.PriceFeatures, expectedPrice float64) TradeClassification {
	price := f.CurrentPrice
	profit := 0.0
	if price > 0 {
		profit = (expectedPrice - price) / price * 100
	}
	if math.IsNaN(profit) || math.IsInf(profit, 0) {
		profit = 0
	}

	risk := RiskScore(RiskInput{Features: f, ExpectedProfit: profit, Balance: c.balance})
	liquidity := LiquidityScore(f)

	var reasons []string
	signal := SelectSignal(profit, c.thresholds)
	if risk > c.thresholds.MaxRiskScore {
		signal = domain.SignalSkip
		reasons = append(reasons, fmt.Sprintf("Risk %.2f above limit %.2f", risk, c.thresholds.MaxRiskScore))
	}
	if liquidity < c.thresholds.MinLiquidity {
		signal = domain.SignalSkip
		reasons = append(reasons, fmt.Sprintf("Liquidity %.2f below minimum %.2f", liquidity, c.thresholds.MinLiquidity))
	}

	tc := TradeClassification{
		ItemName:              itemName,
		CurrentPrice:          price,
		ExpectedPrice:         expectedPrice,
		Signal:                signal,
		RiskLevel:             domain.RiskLevelFor(risk),
		RiskScore:             risk,
		LiquidityScore:        liquidity,
		Probabilities:         BuildProbabilities(signal, profit, c.thresholds, risk),
		PositionSizePercent:   c.positionSize(signal, risk, price),
		MaxLossPercent:        MaxLossPercent(f),
		ExpectedProfitPercent: profit,
		ProfitProbability:     ProfitProbability(f, profit),
		Timestamp:             c.now().UTC(),
	}
	tc.Reasoning = append(reasons, c.reasoning(f, tc)...)

	c.metrics.RecordClassification(signal)
	c.log.Debug().
		Str("item", itemName).
		Str("signal", string(signal)).
		Float64("risk", risk).
		Float64("profit_pct", profit).
		Msg("Classified opportunity")

	return tc
}

func (c *Classifier) positionSize(signal domain.Signal, risk, price float64) float64 {
	size := positionMultipliers[signal] * c.maxPosPct * (1 - risk)
	if c.balance > 0 {
		size = math.Min(size, price/c.balance*100)
	} else {
		size = 0
	}
	return formulas.Clamp(math.Min(size, c.maxPosPct), 0, 100)
}

func (c *Classifier) reasoning(f features.PriceFeatures, tc TradeClassification) []string {
	reasons := []string{
		fmt.Sprintf("Expected profit %+.2f%% (%s tolerance)", tc.ExpectedProfitPercent, c.tolerance),
		fmt.Sprintf("Risk %s (%.2f), liquidity %.2f", tc.RiskLevel, tc.RiskScore, tc.LiquidityScore),
	}
	switch f.Trend {
	case domain.TrendUp:
		reasons = append(reasons, "Price trending up over 7 days")
	case domain.TrendDown:
		reasons = append(reasons, "Price trending down over 7 days")
	case domain.TrendVolatile:
		reasons = append(reasons, "Price is volatile")
	}
	if f.Sales24h < 3 {
		reasons = append(reasons, "Few sales in the last 24h")
	}
	if tc.PositionSizePercent > 0 {
		reasons = append(reasons, fmt.Sprintf("Suggested position %.1f%% of balance", tc.PositionSizePercent))
	}
	return reasons
}
