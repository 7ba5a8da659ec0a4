package pipeline

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/skinsentinel/internal/domain"
	"github.com/aristath/skinsentinel/internal/metrics"
	"github.com/aristath/skinsentinel/internal/modules/allocation"
	"github.com/aristath/skinsentinel/internal/modules/classification"
	"github.com/aristath/skinsentinel/internal/modules/features"
	"github.com/aristath/skinsentinel/internal/modules/journal"
	"github.com/aristath/skinsentinel/internal/modules/prediction"
	"github.com/aristath/skinsentinel/internal/modules/strategy"
	testhelpers "github.com/aristath/skinsentinel/internal/testing"
)

type fixture struct {
	now       time.Time
	predictor *prediction.Predictor
	engine    *Engine
	journal   *journal.Repository
	registry  *prometheus.Registry
}

func newFixture(t *testing.T, balance float64, withJournal bool, workers int) *fixture {
	t.Helper()

	fx := &fixture{now: testhelpers.FixedNow, registry: prometheus.NewRegistry()}
	clock := testhelpers.Clock(&fx.now)
	m := metrics.New(fx.registry)
	log := zerolog.Nop()

	extractor := features.NewExtractor(log, features.WithClock(clock))
	cfg := prediction.DefaultConfig()
	cfg.Balance = balance
	cfg.MinTrainingSamples = 3
	fx.predictor = prediction.NewPredictor(extractor, cfg, log, prediction.WithClock(clock), prediction.WithMetrics(m))
	classifier := classification.NewClassifier(extractor, balance, domain.ToleranceModerate, log,
		classification.WithClock(clock), classification.WithMetrics(m))
	strat := strategy.New(balance, log)

	opts := []Option{WithWorkers(workers), WithMetrics(m), WithClock(clock)}
	if withJournal {
		db := testhelpers.NewTestDB(t, "journal")
		fx.journal = journal.NewRepository(db.Conn(), log, journal.WithClock(clock))
		opts = append(opts, WithJournal(fx.journal))
	}
	fx.engine = New(fx.predictor, classifier, strat, log, opts...)
	return fx
}

func sampleItems(now time.Time) []ItemInput {
	return []ItemInput{
		{
			ItemName:     "AK-47 | Redline (Field-Tested)",
			CurrentPrice: 15,
			PriceHistory: testhelpers.RisingHistory(now, 96, 13, 0.02),
			Sales:        testhelpers.RecentSales(now, 20, 15),
			Offers:       testhelpers.Offers(14.8, 15, 15.2, 15.5, 16),
		},
		{
			ItemName:     "AWP | Asiimov (Field-Tested)",
			CurrentPrice: 60,
			PriceHistory: testhelpers.WavyHistory(now, 168, 60, 0.05),
			Sales:        testhelpers.RecentSales(now, 8, 60),
			Offers:       testhelpers.Offers(59, 61, 62),
		},
		{
			ItemName:     "Glock-18 | Water Elemental (Minimal Wear)",
			CurrentPrice: 4.2,
			PriceHistory: testhelpers.RisingHistory(now, 48, 4.5, -0.005),
		},
		{
			ItemName:     "Sticker | Crown (Foil)",
			CurrentPrice: 0,
		},
	}
}

// buyableItem rises 11% over the last day with steady sales, which the
// statistical fallback and the moderate table turn into a BUY.
func buyableItem(now time.Time) ItemInput {
	return ItemInput{
		ItemName:     "M4A4 | Desolate Space (Field-Tested)",
		CurrentPrice: 15,
		PriceHistory: testhelpers.RisingHistory(now, 25, 13.5, 0.0625),
		Sales:        testhelpers.RecentSales(now, 20, 15),
		Offers:       testhelpers.Offers(14.5, 15, 15.2, 15.8, 16.4),
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestEvaluate_ScoresAndAllocates(t *testing.T) {
	fx := newFixture(t, 100, false, 2)
	items := sampleItems(fx.now)

	report, err := fx.engine.Evaluate(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, fx.now, report.GeneratedAt)
	assert.InDelta(t, 100.0, report.Balance, 1e-9)
	assert.Equal(t, strategy.CategoryMedium, report.Strategy.Category)
	assert.Equal(t, []string{"Sticker | Crown (Foil)"}, report.Skipped)
	require.Len(t, report.Items, 3)
	assert.Nil(t, report.Journal)
	assert.False(t, report.ModelTrained)

	for i, r := range report.Items {
		assert.Equal(t, items[i].ItemName, r.ItemName, "results keep input order")
		assert.Equal(t, prediction.FallbackVersion, r.Prediction.ModelVersion)
		assert.InDelta(t, 1.0, r.Classification.Probabilities.Sum(), 1e-6)
		assert.InDelta(t, r.Prediction.Predicted24h, r.Classification.ExpectedPrice, 1e-9)
		assert.Empty(t, r.JournalID)
	}

	maxPosition := report.Strategy.MaxPositionUSD
	for _, o := range report.Opportunities {
		assert.NotEqual(t, domain.SignalSkip, o.Signal)
		assert.False(t, o.Signal.IsSell())
		assert.LessOrEqual(t, o.Allocation, o.Price+1e-9)
		assert.LessOrEqual(t, o.Allocation, maxPosition+1e-9)
		assert.NotEmpty(t, o.AllocationReason)
	}
	assert.LessOrEqual(t, report.TotalAllocated, 100.0)

	count, err := testutil.GatherAndCount(fx.registry, "skinsentinel_evaluation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEvaluate_AllocatesBuySignal(t *testing.T) {
	fx := newFixture(t, 100, false, 2)
	items := append(sampleItems(fx.now)[:3], buyableItem(fx.now))

	report, err := fx.engine.Evaluate(context.Background(), items)
	require.NoError(t, err)
	require.Len(t, report.Items, 4)

	buy := report.Items[3]
	assert.Equal(t, domain.SignalBuy, buy.Classification.Signal)
	assert.Equal(t, domain.TrendUp, buy.Features.Trend)
	assert.GreaterOrEqual(t, buy.Classification.ExpectedProfitPercent, 5.0)

	var allocated *allocation.Opportunity
	for _, o := range report.Opportunities {
		if o.ItemName == buy.ItemName {
			allocated = o
		}
	}
	require.NotNil(t, allocated)
	assert.Greater(t, allocated.Allocation, 0.0)
	assert.LessOrEqual(t, allocated.Allocation, math.Min(15, report.Strategy.MaxPositionUSD))
	assert.Contains(t, allocated.AllocationReason, "Allocated")
	assert.InDelta(t, allocated.Allocation, report.TotalAllocated, 1e-9)
	assert.Equal(t, 1.0, counterValue(t, fx.registry, "skinsentinel_allocations_total", "outcome", metrics.OutcomeAllocated))
}

func TestEvaluate_ReusesWorkerCaches(t *testing.T) {
	fx := newFixture(t, 100, false, 2)
	ctx := context.Background()

	first, err := fx.engine.Evaluate(ctx, sampleItems(fx.now))
	require.NoError(t, err)
	assert.Equal(t, 3.0, counterValue(t, fx.registry, "skinsentinel_prediction_cache_lookups_total", "result", "miss"))
	assert.Zero(t, counterValue(t, fx.registry, "skinsentinel_prediction_cache_lookups_total", "result", "hit"))

	second, err := fx.engine.Evaluate(ctx, sampleItems(fx.now))
	require.NoError(t, err)
	assert.Equal(t, 3.0, counterValue(t, fx.registry, "skinsentinel_prediction_cache_lookups_total", "result", "hit"))
	assert.Equal(t, 3.0, counterValue(t, fx.registry, "skinsentinel_predictions_total", "mode", metrics.ModeFallback))
	for i := range first.Items {
		assert.Equal(t, first.Items[i].Prediction.ID, second.Items[i].Prediction.ID)
		assert.Equal(t, first.Items[i].Features, second.Items[i].Features)
	}

	// A new price misses the prediction cache but still finds the remembered history.
	item := sampleItems(fx.now)[0]
	item.CurrentPrice = 15.5
	item.PriceHistory = nil
	third, err := fx.engine.Evaluate(ctx, []ItemInput{item})
	require.NoError(t, err)
	require.Len(t, third.Items, 1)
	assert.InDelta(t, first.Items[0].Features.Mean7d, third.Items[0].Features.Mean7d, 1e-12)
	assert.InDelta(t, 1.0, third.Items[0].Features.DataQualityScore, 1e-12)

	// A balance change invalidates cached recommendations.
	fx.engine.SetBalance(500)
	fourth, err := fx.engine.Evaluate(ctx, sampleItems(fx.now))
	require.NoError(t, err)
	assert.NotEqual(t, first.Items[0].Prediction.ID, fourth.Items[0].Prediction.ID)
}

func TestEvaluate_WorkerCountDoesNotChangeResults(t *testing.T) {
	single := newFixture(t, 500, false, 1)
	many := newFixture(t, 500, false, 8)

	a, err := single.engine.Evaluate(context.Background(), sampleItems(single.now))
	require.NoError(t, err)
	b, err := many.engine.Evaluate(context.Background(), sampleItems(many.now))
	require.NoError(t, err)

	require.Len(t, b.Items, len(a.Items))
	for i := range a.Items {
		assert.Equal(t, a.Items[i].Features, b.Items[i].Features)
		assert.InDelta(t, a.Items[i].Prediction.Predicted24h, b.Items[i].Prediction.Predicted24h, 1e-12)
		assert.Equal(t, a.Items[i].Classification.Signal, b.Items[i].Classification.Signal)
	}
	assert.InDelta(t, a.TotalAllocated, b.TotalAllocated, 1e-9)
}

func TestEvaluate_JournalFeedsTraining(t *testing.T) {
	fx := newFixture(t, 100, true, 3)
	ctx := context.Background()

	first, err := fx.engine.Evaluate(ctx, sampleItems(fx.now))
	require.NoError(t, err)
	assert.Zero(t, first.Resolved)
	require.NotNil(t, first.Journal)
	assert.Equal(t, 3, first.Journal.Pending)
	for _, r := range first.Items {
		assert.NotEmpty(t, r.JournalID)
	}

	// Not yet due
	fx.now = fx.now.Add(time.Hour)
	second, err := fx.engine.Evaluate(ctx, sampleItems(fx.now))
	require.NoError(t, err)
	assert.Zero(t, second.Resolved)
	assert.Equal(t, 6, second.Journal.Pending)
	assert.Zero(t, fx.predictor.TrainingSize())

	// The first batch falls due
	fx.now = testhelpers.FixedNow.Add(journal.DefaultHorizon)
	third, err := fx.engine.Evaluate(ctx, sampleItems(fx.now))
	require.NoError(t, err)
	assert.Equal(t, 3, third.Resolved)
	assert.Equal(t, 3, third.Journal.Resolved)
	assert.Equal(t, 3, fx.predictor.TrainingSize())

	require.NoError(t, fx.predictor.Train(false))
	fourth, err := fx.engine.Evaluate(ctx, sampleItems(fx.now))
	require.NoError(t, err)
	assert.True(t, fourth.ModelTrained)
	for _, r := range fourth.Items {
		assert.Equal(t, prediction.ModelVersion, r.Prediction.ModelVersion)
	}
}

func TestEvaluate_ContextCancelled(t *testing.T) {
	fx := newFixture(t, 100, true, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fx.engine.Evaluate(ctx, sampleItems(fx.now))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvaluate_Empty(t *testing.T) {
	fx := newFixture(t, 100, false, 4)

	report, err := fx.engine.Evaluate(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, report.Items)
	assert.Empty(t, report.Opportunities)
	assert.Zero(t, report.TotalAllocated)
}

func TestSetBalance(t *testing.T) {
	fx := newFixture(t, 100, false, 1)
	fx.engine.SetBalance(5000)

	report, err := fx.engine.Evaluate(context.Background(), nil)
	require.NoError(t, err)
	assert.InDelta(t, 5000.0, report.Balance, 1e-9)
	assert.Equal(t, strategy.CategoryWhale, report.Strategy.Category)
	assert.InDelta(t, 5000.0, fx.predictor.Balance(), 1e-9)
}

func TestOpportunities_FiltersSkipAndSell(t *testing.T) {
	results := []ItemResult{
		{ItemName: "a", Classification: classification.TradeClassification{Signal: domain.SignalBuy, CurrentPrice: 10}},
		{ItemName: "b", Classification: classification.TradeClassification{Signal: domain.SignalSkip}},
		{ItemName: "c", Classification: classification.TradeClassification{Signal: domain.SignalSell}},
		{ItemName: "d", Classification: classification.TradeClassification{Signal: domain.SignalStrongSell}},
		{ItemName: "e", Classification: classification.TradeClassification{Signal: domain.SignalHold}},
	}

	opps := opportunities(results)
	require.Len(t, opps, 2)
	assert.Equal(t, "a", opps[0].ItemName)
	assert.InDelta(t, 10.0, opps[0].Price, 1e-9)
	assert.Equal(t, "e", opps[1].ItemName)
}
