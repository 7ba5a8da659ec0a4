package prediction

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/skinsentinel/internal/cache"
	"github.com/aristath/skinsentinel/internal/metrics"
	"github.com/aristath/skinsentinel/internal/modules/features"
	"github.com/aristath/skinsentinel/internal/utils"
)

var (
	// ErrInsufficientSamples is returned by Train when the buffer is too small.
	ErrInsufficientSamples = errors.New("insufficient training samples")
	// ErrNoModelPath is returned when persisting without a configured path.
	ErrNoModelPath = errors.New("no model path configured")
)

const (
	// DefaultRetrainThreshold is the number of new examples that triggers a retrain.
	DefaultRetrainThreshold = 100
	// DefaultMinTrainingSamples is the smallest buffer Train accepts without force.
	DefaultMinTrainingSamples = 10
)

// Config holds predictor settings.
type Config struct {
	ModelPath          string
	Balance            float64
	CacheTTL           time.Duration
	RetrainThreshold   int
	MinTrainingSamples int
	GBRT               GBRTParams
	RidgeLambda        float64
}

// DefaultConfig returns the standard predictor settings without a model path.
func DefaultConfig() Config {
	return Config{
		CacheTTL:           cache.TTLPrediction,
		RetrainThreshold:   DefaultRetrainThreshold,
		MinTrainingSamples: DefaultMinTrainingSamples,
		GBRT:               DefaultGBRTParams(),
		RidgeLambda:        DefaultRidgeLambda,
	}
}

// Option configures a Predictor.
type Option func(*Predictor)

// WithClock sets the time source for timestamps and cache expiry.
func WithClock(now func() time.Time) Option {
	return func(p *Predictor) {
		if now != nil {
			p.now = now
		}
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m *metrics.Engine) Option {
	return func(p *Predictor) {
		p.metrics = m
	}
}

// Predictor forecasts prices using a trained ensemble when one is available
// and a statistical fallback otherwise.
//
// Model state and the training buffer are guarded so a checkpoint can run
// alongside scoring. The result cache and the extractor are not; concurrent
// workers should each use their own Fork.
type Predictor struct {
	log       zerolog.Logger
	extractor *features.Extractor
	cache     *cache.Store[cachedPrediction]
	fallback  StatisticalFallback
	metrics   *metrics.Engine
	now       func() time.Time
	cfg       Config

	mu         sync.Mutex
	model      *Ensemble
	trainX     [][]float64
	trainY     []float64
	newSamples int
	balance    float64
}

// cachedPrediction keeps the features a cached prediction was made from.
type cachedPrediction struct {
	prediction PricePrediction
	features   features.PriceFeatures
}

// NewPredictor creates a predictor. When cfg.ModelPath points at a bundle it
// is loaded; a missing or unreadable bundle leaves the predictor untrained.
func NewPredictor(extractor *features.Extractor, cfg Config, log zerolog.Logger, opts ...Option) *Predictor {
	defaults := DefaultConfig()
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaults.CacheTTL
	}
	if cfg.RetrainThreshold <= 0 {
		cfg.RetrainThreshold = defaults.RetrainThreshold
	}
	if cfg.MinTrainingSamples <= 0 {
		cfg.MinTrainingSamples = defaults.MinTrainingSamples
	}
	if cfg.GBRT.Stages <= 0 {
		cfg.GBRT = defaults.GBRT
	}
	if cfg.RidgeLambda <= 0 {
		cfg.RidgeLambda = defaults.RidgeLambda
	}

	p := &Predictor{
		log:       log.With().Str("component", "price_predictor").Logger(),
		extractor: extractor,
		now:       time.Now,
		cfg:       cfg,
		balance:   cfg.Balance,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.cache = cache.New[cachedPrediction](cfg.CacheTTL, cache.WithClock(p.clock))

	if cfg.ModelPath != "" {
		if err := p.LoadModel(); err != nil {
			p.log.Warn().Err(err).Str("path", cfg.ModelPath).Msg("Failed to load model, using statistical fallback")
		}
	}
	return p
}

func (p *Predictor) clock() time.Time {
	return p.now()
}

// Fork returns a predictor for another worker. It shares the current trained
// model and balance but owns its cache, extractor and (empty) training buffer,
// and never persists.
func (p *Predictor) Fork() *Predictor {
	p.mu.Lock()
	model := p.model
	balance := p.balance
	p.mu.Unlock()

	cfg := p.cfg
	cfg.ModelPath = ""
	f := &Predictor{
		log:       p.log,
		extractor: p.extractor.Fork(),
		metrics:   p.metrics,
		now:       p.now,
		cfg:       cfg,
		model:     model,
		balance:   balance,
	}
	f.cache = cache.New[cachedPrediction](cfg.CacheTTL, cache.WithClock(f.clock))
	return f
}

// Sync adopts src's current model and balance, typically on a Fork of src.
// Cached predictions are dropped when either changed.
func (p *Predictor) Sync(src *Predictor) {
	src.mu.Lock()
	model := src.model
	balance := src.balance
	src.mu.Unlock()

	p.mu.Lock()
	changed := p.model != model || p.balance != balance
	p.model = model
	p.balance = balance
	p.mu.Unlock()

	if changed {
		p.cache.Clear()
	}
}

// SetUserBalance updates the balance used for recommendations. Cached
// predictions are dropped when the balance changes.
func (p *Predictor) SetUserBalance(balance float64) {
	p.mu.Lock()
	changed := p.balance != balance
	p.balance = balance
	p.mu.Unlock()

	if changed {
		p.cache.Clear()
	}
}

// Balance returns the balance used for recommendations.
func (p *Predictor) Balance() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance
}

// Trained reports whether a fitted ensemble is in use.
func (p *Predictor) Trained() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.model != nil
}

// TrainingSize returns the number of buffered training examples.
func (p *Predictor) TrainingSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.trainY)
}

// ModelPath returns the configured bundle path.
func (p *Predictor) ModelPath() string {
	return p.cfg.ModelPath
}

// Extractor returns the feature extractor the predictor uses.
func (p *Predictor) Extractor() *features.Extractor {
	return p.extractor
}

// Predict extracts features and forecasts the item's price. Results are
// cached per item and price (in cents) for the cache TTL.
func (p *Predictor) Predict(itemName string, currentPrice float64, history []features.PricePoint, sales []features.Sale, offers []features.Offer) PricePrediction {
	pred, _ := p.PredictWithFeatures(itemName, currentPrice, history, sales, offers)
	return pred
}

// PredictWithFeatures is Predict that also returns the features the
// prediction was made from. A cache hit returns the cached features.
func (p *Predictor) PredictWithFeatures(itemName string, currentPrice float64, history []features.PricePoint, sales []features.Sale, offers []features.Offer) (PricePrediction, features.PriceFeatures) {
	key := itemName + "|" + utils.PriceKey(currentPrice)
	if cached, ok := p.cache.Get(key); ok {
		p.metrics.RecordCacheHit()
		return cached.prediction, cached.features
	}
	p.metrics.RecordCacheMiss()

	f := p.extractor.Extract(itemName, currentPrice, history, sales, offers)
	pred := p.PredictFromFeatures(itemName, f)
	p.cache.Set(key, cachedPrediction{prediction: pred, features: f})
	return pred, f
}

// PredictFromFeatures forecasts from an already extracted feature set. It
// bypasses the cache.
func (p *Predictor) PredictFromFeatures(itemName string, f features.PriceFeatures) PricePrediction {
	p.mu.Lock()
	model := p.model
	balance := p.balance
	p.mu.Unlock()

	var regressor Regressor = p.fallback
	version := FallbackVersion
	mode := metrics.ModeFallback
	if model != nil {
		regressor = model
		version = ModelVersion
		mode = metrics.ModeModel
	}

	ranges := make([]PriceRange, len(Horizons))
	points := make([]float64, len(Horizons))
	for i, h := range Horizons {
		value, sigma := regressor.Predict(f, h)
		if math.IsNaN(value) || math.IsInf(value, 0) {
			value = f.CurrentPrice
		}
		if math.IsNaN(sigma) || math.IsInf(sigma, 0) {
			sigma = 0
		}
		value = math.Max(value, 0)
		points[i] = value
		ranges[i] = PriceRange{
			Low:   math.Max(value-sigma, 0),
			High:  value + sigma,
			Sigma: sigma,
		}
	}

	relativeSigma := 1.0
	if f.CurrentPrice > 0 {
		relativeSigma = ranges[1].Sigma / f.CurrentPrice
	}
	score, level := Confidence(ConfidenceInput{
		Volatility:    f.Volatility,
		DataQuality:   f.DataQualityScore,
		RelativeSigma: relativeSigma,
		Sales24h:      f.Sales24h,
	})

	pred := PricePrediction{
		ID:              uuid.NewString(),
		ItemName:        itemName,
		CurrentPrice:    f.CurrentPrice,
		Predicted1h:     points[0],
		Predicted24h:    points[1],
		Predicted7d:     points[2],
		Range1h:         ranges[0],
		Range24h:        ranges[1],
		Range7d:         ranges[2],
		Confidence:      level,
		ConfidenceScore: score,
		ModelVersion:    version,
		Timestamp:       p.now().UTC(),
	}
	pred.Recommendation = Recommend(pred.ChangePercent24h(), score, f.CurrentPrice, balance)
	pred.Reasoning = reasoning(f, pred, model != nil)

	p.metrics.RecordPrediction(mode)
	p.log.Debug().
		Str("item", itemName).
		Str("mode", mode).
		Float64("predicted_24h", pred.Predicted24h).
		Float64("confidence", score).
		Str("recommendation", string(pred.Recommendation)).
		Msg("Predicted price")

	return pred
}

func reasoning(f features.PriceFeatures, pred PricePrediction, trained bool) string {
	var parts []string
	if trained {
		parts = append(parts, "Ensemble model forecast")
	} else {
		parts = append(parts, "Statistical trend extrapolation (no trained model)")
	}
	parts = append(parts, fmt.Sprintf("24h change %+.2f%%", pred.ChangePercent24h()))
	parts = append(parts, fmt.Sprintf("trend %s", f.Trend))

	switch {
	case f.RSI > 70:
		parts = append(parts, fmt.Sprintf("RSI %.0f overbought", f.RSI))
	case f.RSI < 30:
		parts = append(parts, fmt.Sprintf("RSI %.0f oversold", f.RSI))
	}
	if f.Volatility > 0.2 {
		parts = append(parts, "high volatility")
	}
	if f.DataQualityScore < 0.5 {
		parts = append(parts, "limited market data")
	}
	parts = append(parts, fmt.Sprintf("confidence %s", pred.Confidence))
	return strings.Join(parts, "; ")
}

// AddTrainingExample buffers a realized outcome. Once enough new examples
// accumulate the models are retrained. Non-finite or non-positive prices are ignored.
func (p *Predictor) AddTrainingExample(f features.PriceFeatures, realizedPrice float64) {
	if realizedPrice <= 0 || math.IsNaN(realizedPrice) || math.IsInf(realizedPrice, 0) {
		p.log.Debug().Str("item", f.ItemName).Float64("price", realizedPrice).Msg("Ignoring invalid training example")
		return
	}

	p.mu.Lock()
	p.trainX = append(p.trainX, f.Vector())
	p.trainY = append(p.trainY, realizedPrice)
	p.newSamples++
	size := len(p.trainY)
	due := p.newSamples >= p.cfg.RetrainThreshold
	p.mu.Unlock()

	p.metrics.SetTrainingBufferSize(size)

	if due {
		p.log.Info().Int("samples", size).Msg("Retrain threshold reached")
		if err := p.Train(false); err != nil {
			p.log.Warn().Err(err).Msg("Automatic retrain failed")
		}
	}
}

// Train fits both regressors on the whole buffer. Without force it needs at
// least MinTrainingSamples examples. A successful fit is persisted when a
// model path is configured; persistence failures are logged only.
func (p *Predictor) Train(force bool) error {
	p.mu.Lock()
	n := len(p.trainY)
	if n == 0 || (!force && n < p.cfg.MinTrainingSamples) {
		p.mu.Unlock()
		p.metrics.RecordTraining(metrics.TrainingSkipped)
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientSamples, n, p.cfg.MinTrainingSamples)
	}
	X := make([][]float64, n)
	copy(X, p.trainX)
	y := make([]float64, n)
	copy(y, p.trainY)
	p.mu.Unlock()

	start := time.Now()
	gbrt := NewGradientBoosting(p.cfg.GBRT)
	if err := gbrt.Fit(X, y); err != nil {
		p.metrics.RecordTraining(metrics.TrainingFailed)
		return fmt.Errorf("failed to fit gradient boosting: %w", err)
	}
	ridge := NewRidge(p.cfg.RidgeLambda)
	if err := ridge.Fit(X, y); err != nil {
		p.metrics.RecordTraining(metrics.TrainingFailed)
		return fmt.Errorf("failed to fit ridge: %w", err)
	}

	p.mu.Lock()
	p.model = &Ensemble{GBRT: gbrt, Ridge: ridge}
	p.newSamples = 0
	p.mu.Unlock()

	p.cache.Clear()
	p.metrics.RecordTraining(metrics.TrainingSucceeded)
	p.log.Info().
		Int("samples", n).
		Bool("forced", force).
		Dur("duration", time.Since(start)).
		Msg("Trained price models")

	if p.cfg.ModelPath != "" {
		if err := p.SaveModel(); err != nil {
			p.log.Error().Err(err).Str("path", p.cfg.ModelPath).Msg("Failed to persist trained model")
		}
	}
	return nil
}

// SaveModel writes the bundle to the configured model path.
func (p *Predictor) SaveModel() error {
	if p.cfg.ModelPath == "" {
		return ErrNoModelPath
	}
	return p.Save(p.cfg.ModelPath)
}

// Save writes the regressors and training buffer to path atomically.
func (p *Predictor) Save(path string) error {
	p.mu.Lock()
	b := bundle{
		Version:   ModelVersion,
		TrainingX: append([][]float64(nil), p.trainX...),
		TrainingY: append([]float64(nil), p.trainY...),
		SavedAt:   p.now().UTC(),
	}
	if p.model != nil {
		b.GBRT = p.model.GBRT
		b.Ridge = p.model.Ridge
	}
	p.mu.Unlock()

	if err := writeBundle(path, b); err != nil {
		return err
	}
	p.log.Info().Str("path", path).Int("samples", len(b.TrainingY)).Bool("trained", b.GBRT != nil).Msg("Saved model bundle")
	return nil
}

// LoadModel reads the bundle at the configured model path. A missing file
// is not an error.
func (p *Predictor) LoadModel() error {
	if p.cfg.ModelPath == "" {
		return ErrNoModelPath
	}
	err := p.Load(p.cfg.ModelPath)
	if errors.Is(err, os.ErrNotExist) {
		p.log.Info().Str("path", p.cfg.ModelPath).Msg("No model bundle found, starting untrained")
		return nil
	}
	return err
}

// Load replaces the model and training buffer with the bundle at path. On
// error the predictor keeps its current state.
func (p *Predictor) Load(path string) error {
	b, err := readBundle(path)
	if err != nil {
		return err
	}

	var model *Ensemble
	if b.GBRT != nil && b.Ridge != nil && len(b.GBRT.Trees) > 0 {
		model = &Ensemble{GBRT: b.GBRT, Ridge: b.Ridge}
	}

	p.mu.Lock()
	p.model = model
	p.trainX = b.TrainingX
	p.trainY = b.TrainingY
	p.newSamples = 0
	size := len(p.trainY)
	p.mu.Unlock()

	p.cache.Clear()
	p.metrics.SetTrainingBufferSize(size)
	p.log.Info().Str("path", path).Int("samples", size).Bool("trained", model != nil).Msg("Loaded model bundle")
	return nil
}
