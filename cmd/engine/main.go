// Package main is the one-shot batch entry point of the skin-trading decision engine.
//
// It reads a JSON array of items (price history, sales and live offers),
// scores them, allocates the wallet balance across the best opportunities and
// prints the report as JSON. Predictions are journaled so later runs can turn
// realized prices into training examples, and the model bundle is
// checkpointed before exit.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/aristath/skinsentinel/internal/config"
	"github.com/aristath/skinsentinel/internal/database"
	"github.com/aristath/skinsentinel/internal/domain"
	"github.com/aristath/skinsentinel/internal/metrics"
	"github.com/aristath/skinsentinel/internal/modules/checkpoint"
	"github.com/aristath/skinsentinel/internal/modules/classification"
	"github.com/aristath/skinsentinel/internal/modules/features"
	"github.com/aristath/skinsentinel/internal/modules/journal"
	"github.com/aristath/skinsentinel/internal/modules/pipeline"
	"github.com/aristath/skinsentinel/internal/modules/prediction"
	"github.com/aristath/skinsentinel/internal/modules/strategy"
	"github.com/aristath/skinsentinel/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath  string
	input       string
	output      string
	balance     float64
	metricsFile string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("engine", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "YAML config file (defaults to $ENGINE_CONFIG)")
	fs.StringVar(&opts.input, "input", "-", "JSON array of items to evaluate, - for stdin")
	fs.StringVar(&opts.output, "output", "-", "report destination, - for stdout")
	fs.Float64Var(&opts.balance, "balance", -1, "wallet balance in USD, overrides config when >= 0")
	fs.StringVar(&opts.metricsFile, "metrics", "", "write Prometheus metrics to this textfile after the run")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.balance >= 0 {
		cfg.UserBalance = opts.balance
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
		Output: stderr,
	})
	logger.SetGlobalLogger(log)

	items, err := readItems(opts.input, stdin)
	if err != nil {
		return err
	}
	log.Info().Int("items", len(items)).Float64("balance", cfg.UserBalance).Msg("Starting evaluation")

	db, err := database.New(database.Config{
		Path:    cfg.JournalPath(),
		Profile: database.DatabaseProfile(cfg.JournalProfile),
		Name:    "journal",
	})
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate journal: %w", err)
	}
	if err := db.HealthCheck(ctx); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	extractor := features.NewExtractor(log, features.WithHistoryTTL(cfg.HistoryCacheTTL))
	predictor := prediction.NewPredictor(extractor, prediction.Config{
		ModelPath:          cfg.ModelPath(),
		Balance:            cfg.UserBalance,
		CacheTTL:           cfg.PredictionCacheTTL,
		RetrainThreshold:   cfg.RetrainThreshold,
		MinTrainingSamples: cfg.MinTrainingSamples,
	}, log, prediction.WithMetrics(m))

	checkpointer, err := newCheckpointer(ctx, cfg, predictor, db, log)
	if err != nil {
		return err
	}
	if _, err := checkpointer.Restore(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to restore remote checkpoint, continuing with local state")
	}

	tolerance, _ := domain.ParseRiskTolerance(cfg.RiskTolerance)
	classifier := classification.NewClassifier(extractor, cfg.UserBalance, tolerance, log, classification.WithMetrics(m))
	strat := strategy.New(cfg.UserBalance, log)
	repo := journal.NewRepository(db.Conn(), log)

	engine := pipeline.New(predictor, classifier, strat, log,
		pipeline.WithJournal(repo),
		pipeline.WithMetrics(m),
		pipeline.WithWorkers(cfg.Workers),
	)

	scheduler := checkpoint.NewScheduler(log)
	if err := scheduler.AddJob(cfg.CheckpointSchedule, checkpointer); err != nil {
		return err
	}
	scheduler.Start()
	report, err := engine.Evaluate(ctx, items)
	scheduler.Stop()
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	if cfg.JournalRetention > 0 {
		if _, err := repo.Prune(ctx, time.Now().Add(-cfg.JournalRetention)); err != nil {
			log.Warn().Err(err).Msg("Failed to prune journal")
		}
	}

	if err := writeReport(opts.output, stdout, report); err != nil {
		return err
	}

	if err := checkpointer.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Final checkpoint failed")
	}

	if opts.metricsFile != "" {
		if err := prometheus.WriteToTextfile(opts.metricsFile, registry); err != nil {
			log.Warn().Err(err).Str("path", opts.metricsFile).Msg("Failed to write metrics textfile")
		}
	}

	log.Info().
		Float64("allocated", report.TotalAllocated).
		Int("resolved", report.Resolved).
		Msg("Engine run finished")
	return nil
}

func newCheckpointer(ctx context.Context, cfg *config.Config, model checkpoint.Model, db *database.DB, log zerolog.Logger) (*checkpoint.Checkpointer, error) {
	opts := []checkpoint.Option{checkpoint.WithDatabase(db)}

	if cfg.Backup.Enabled {
		store, err := checkpoint.NewS3Store(ctx, checkpoint.S3Config{
			Endpoint:        cfg.Backup.Endpoint,
			Region:          cfg.Backup.Region,
			Bucket:          cfg.Backup.Bucket,
			AccessKeyID:     cfg.Backup.AccessKeyID,
			SecretAccessKey: cfg.Backup.SecretAccessKey,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create checkpoint store: %w", err)
		}
		opts = append(opts, checkpoint.WithStore(store, cfg.Backup.Prefix))
	}

	return checkpoint.New(model, log, opts...), nil
}

func readItems(path string, stdin io.Reader) ([]pipeline.ItemInput, error) {
	r := stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	var items []pipeline.ItemInput
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decode input: %w", err)
	}
	return items, nil
}

func writeReport(path string, stdout io.Writer, report pipeline.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	data = append(data, '\n')

	if path == "" || path == "-" {
		_, err = stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
