// Package pipeline runs a batch of marketplace items through feature
// extraction, prediction, classification and portfolio allocation.
package pipeline

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/skinsentinel/internal/domain"
	"github.com/aristath/skinsentinel/internal/metrics"
	"github.com/aristath/skinsentinel/internal/modules/allocation"
	"github.com/aristath/skinsentinel/internal/modules/classification"
	"github.com/aristath/skinsentinel/internal/modules/features"
	"github.com/aristath/skinsentinel/internal/modules/journal"
	"github.com/aristath/skinsentinel/internal/modules/prediction"
	"github.com/aristath/skinsentinel/internal/modules/strategy"
	"github.com/aristath/skinsentinel/internal/utils"
)

// DefaultWorkers is used when no worker count is configured.
const DefaultWorkers = 4

// ItemInput is the market data for one item, as supplied by the data collaborator.
type ItemInput struct {
	ItemName     string                `json:"item_name"`
	CurrentPrice float64               `json:"current_price"`
	PriceHistory []features.PricePoint `json:"price_history"`
	Sales        []features.Sale       `json:"sales_history"`
	Offers       []features.Offer      `json:"market_offers"`
}

// ItemResult is the outcome of scoring one item.
type ItemResult struct {
	ItemName       string                             `json:"item_name"`
	Features       features.PriceFeatures             `json:"features"`
	Prediction     prediction.PricePrediction         `json:"prediction"`
	Classification classification.TradeClassification `json:"classification"`
	JournalID      string                             `json:"journal_id,omitempty"`
}

// Report is the result of one Evaluate call.
type Report struct {
	GeneratedAt    time.Time                 `json:"generated_at"`
	Balance        float64                   `json:"balance"`
	Strategy       strategy.Recommendation   `json:"strategy"`
	Items          []ItemResult              `json:"items"`
	Skipped        []string                  `json:"skipped,omitempty"`
	Opportunities  []*allocation.Opportunity `json:"opportunities"`
	TotalAllocated float64                   `json:"total_allocated"`
	Resolved       int                       `json:"resolved_predictions"`
	ModelTrained   bool                      `json:"model_trained"`
	Journal        *journal.Stats            `json:"journal,omitempty"`
	Duration       time.Duration             `json:"duration_ns"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithJournal records predictions and resolves due ones into training examples.
func WithJournal(j *journal.Repository) Option {
	return func(e *Engine) {
		e.journal = j
	}
}

// WithMetrics records evaluation metrics.
func WithMetrics(m *metrics.Engine) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithWorkers sets the number of concurrent scoring workers.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.nworkers = n
		}
	}
}

// WithClock overrides the clock used for journal resolution and report stamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// worker holds the forked components one scoring goroutine uses. Forks live
// as long as the Engine so their prediction and history caches carry over
// between Evaluate calls.
type worker struct {
	predictor  *prediction.Predictor
	classifier *classification.Classifier
}

// Engine wires the scoring components together. Evaluate must not be called
// concurrently on the same Engine.
type Engine struct {
	predictor  *prediction.Predictor
	classifier *classification.Classifier
	strategy   *strategy.BalanceAdaptiveStrategy
	allocator  *allocation.Allocator
	journal    *journal.Repository
	metrics    *metrics.Engine
	workers    []worker
	nworkers   int
	now        func() time.Time
	log        zerolog.Logger
}

// New creates an engine. The predictor, classifier and strategy are owned by
// the engine from here on; workers use forks of the first two.
func New(
	predictor *prediction.Predictor,
	classifier *classification.Classifier,
	strat *strategy.BalanceAdaptiveStrategy,
	log zerolog.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		predictor:  predictor,
		classifier: classifier,
		strategy:   strat,
		nworkers:   DefaultWorkers,
		now:        time.Now,
		log:        log.With().Str("component", "pipeline").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.allocator = allocation.New(strat, e.metrics, log)

	e.workers = make([]worker, e.nworkers)
	for i := range e.workers {
		e.workers[i] = worker{predictor: predictor.Fork(), classifier: classifier.Fork()}
	}
	return e
}

// SetBalance pushes a new wallet balance to every component.
func (e *Engine) SetBalance(balance float64) {
	e.predictor.SetUserBalance(balance)
	e.classifier.SetBalance(balance)
	e.strategy.SetBalance(balance)
}

// Evaluate scores the items and allocates capital across the eligible ones.
// Items without a name or a positive price are listed in Report.Skipped.
// Storage errors and context cancellation abort the run.
func (e *Engine) Evaluate(ctx context.Context, items []ItemInput) (Report, error) {
	start := time.Now()
	defer utils.OperationTimer("pipeline.evaluate", e.log)()
	defer func() { e.metrics.ObserveEvaluation(time.Since(start)) }()

	report := Report{
		GeneratedAt: e.now().UTC(),
		Balance:     e.strategy.Balance(),
		Strategy:    e.strategy.Recommendation(),
	}

	valid := make([]ItemInput, 0, len(items))
	for _, item := range items {
		if item.ItemName == "" || !(item.CurrentPrice > 0) {
			report.Skipped = append(report.Skipped, item.ItemName)
			e.log.Warn().Str("item", item.ItemName).Float64("price", item.CurrentPrice).Msg("Skipping item without name or price")
			continue
		}
		valid = append(valid, item)
	}

	resolved, err := e.resolveDue(ctx, valid)
	if err != nil {
		return Report{}, err
	}
	report.Resolved = resolved

	results, err := e.score(ctx, valid)
	if err != nil {
		return Report{}, err
	}

	if e.journal != nil {
		for i := range results {
			if err := ctx.Err(); err != nil {
				return Report{}, err
			}
			id, err := e.journal.Record(ctx, results[i].Prediction, results[i].Features)
			if err != nil {
				return Report{}, fmt.Errorf("failed to journal prediction: %w", err)
			}
			results[i].JournalID = id
		}

		stats, err := e.journal.Stats(ctx)
		if err != nil {
			return Report{}, err
		}
		report.Journal = &stats
	}

	report.Items = results
	report.Opportunities = e.allocator.Allocate(opportunities(results))
	report.TotalAllocated = utils.RoundUSD(allocation.TotalAllocated(report.Opportunities))
	report.ModelTrained = e.predictor.Trained()
	report.Duration = time.Since(start)

	e.log.Info().
		Int("items", len(results)).
		Int("skipped", len(report.Skipped)).
		Int("resolved", resolved).
		Int("opportunities", len(report.Opportunities)).
		Float64("allocated", report.TotalAllocated).
		Msg("Evaluation completed")

	return report, nil
}

// resolveDue turns due journal entries into training examples for the
// shared predictor before any worker forks it.
func (e *Engine) resolveDue(ctx context.Context, items []ItemInput) (int, error) {
	if e.journal == nil {
		return 0, nil
	}

	now := e.now()
	total := 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		outcomes, err := e.journal.ResolveDue(ctx, item.ItemName, item.CurrentPrice, now)
		if err != nil {
			return total, err
		}
		for _, o := range outcomes {
			e.predictor.AddTrainingExample(o.Features, o.Realized)
		}
		total += len(outcomes)
	}

	e.metrics.RecordJournalResolved(total)
	return total, nil
}

// score runs items through the workers' forked predictors and classifiers.
// An item always lands on the same worker, so its cached prediction and price
// history are found again on the next call. Results keep the input order.
func (e *Engine) score(ctx context.Context, items []ItemInput) ([]ItemResult, error) {
	results := make([]ItemResult, len(items))
	if len(items) == 0 {
		return results, nil
	}

	shards := make([][]int, len(e.workers))
	for i, item := range items {
		w := shard(item.ItemName, len(e.workers))
		shards[w] = append(shards[w], i)
	}

	g, gctx := errgroup.WithContext(ctx)
	for w, indexes := range shards {
		if len(indexes) == 0 {
			continue
		}
		wk := e.workers[w]
		wk.predictor.Sync(e.predictor)
		wk.classifier.SyncFrom(e.classifier)

		g.Go(func() error {
			for _, i := range indexes {
				if err := gctx.Err(); err != nil {
					return err
				}
				results[i] = scoreItem(wk.predictor, wk.classifier, items[i])
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func shard(itemName string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(itemName))
	return int(h.Sum32() % uint32(n))
}

func scoreItem(p *prediction.Predictor, c *classification.Classifier, item ItemInput) ItemResult {
	pred, f := p.PredictWithFeatures(item.ItemName, item.CurrentPrice, item.PriceHistory, item.Sales, item.Offers)
	tc := c.ClassifyFeatures(item.ItemName, f, pred.Predicted24h)
	return ItemResult{
		ItemName:       item.ItemName,
		Features:       f,
		Prediction:     pred,
		Classification: tc,
	}
}

// opportunities builds allocation candidates from results whose signal is
// neither SKIP nor sell-side.
func opportunities(results []ItemResult) []*allocation.Opportunity {
	out := make([]*allocation.Opportunity, 0, len(results))
	for _, r := range results {
		signal := r.Classification.Signal
		if signal == domain.SignalSkip || signal.IsSell() {
			continue
		}
		out = append(out, &allocation.Opportunity{
			ItemName:       r.ItemName,
			Price:          r.Classification.CurrentPrice,
			ExpectedProfit: r.Classification.ExpectedProfitPercent,
			RiskScore:      r.Classification.RiskScore,
			Confidence:     r.Prediction.ConfidenceScore,
			Signal:         signal,
		})
	}
	return out
}
