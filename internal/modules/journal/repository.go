// Package journal records issued price predictions and resolves them against
// realized prices once they fall due, producing training examples for the predictor.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/aristath/skinsentinel/internal/database"
	"github.com/aristath/skinsentinel/internal/modules/features"
	"github.com/aristath/skinsentinel/internal/modules/prediction"
	"github.com/aristath/skinsentinel/internal/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultHorizon is how long after issue a prediction becomes due.
const DefaultHorizon = 24 * time.Hour

// ErrNotFound is returned when a journal entry does not exist.
var ErrNotFound = errors.New("journal entry not found")

// Status of a journal entry.
type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
)

// Entry is one recorded prediction.
type Entry struct {
	ID              string
	ItemName        string
	CurrentPrice    float64
	PredictedPrice  float64
	ConfidenceScore float64
	ModelVersion    string
	Features        features.PriceFeatures
	CreatedAt       time.Time
	DueAt           time.Time
	Status          Status
	RealizedPrice   float64
	AbsError        float64
	ResolvedAt      time.Time
}

// Outcome pairs the features a prediction was made from with the price later observed.
type Outcome struct {
	Features features.PriceFeatures
	Realized float64
}

// Stats summarizes the journal.
type Stats struct {
	Pending  int     `json:"pending"`
	Resolved int     `json:"resolved"`
	MAPE     float64 `json:"mape"` // mean absolute percentage error of resolved entries
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock overrides the clock used to stamp new entries.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		r.now = now
	}
}

// WithHorizon overrides DefaultHorizon.
func WithHorizon(d time.Duration) Option {
	return func(r *Repository) {
		if d > 0 {
			r.horizon = d
		}
	}
}

// Repository persists journal entries in the predictions table.
type Repository struct {
	db      *sql.DB
	log     zerolog.Logger
	now     func() time.Time
	horizon time.Duration
}

// NewRepository creates a journal repository over a migrated journal database.
func NewRepository(db *sql.DB, log zerolog.Logger, opts ...Option) *Repository {
	r := &Repository{
		db:      db,
		log:     log.With().Str("repo", "journal").Logger(),
		now:     time.Now,
		horizon: DefaultHorizon,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record stores a prediction and the features it was made from. Every call
// creates a new entry, even for a cached prediction. The 24h predicted price
// is the value later compared against the realized price.
func (r *Repository) Record(ctx context.Context, pred prediction.PricePrediction, f features.PriceFeatures) (string, error) {
	blob, err := msgpack.Marshal(f.Vector())
	if err != nil {
		return "", fmt.Errorf("failed to encode features for %s: %w", pred.ItemName, err)
	}

	id := uuid.New().String()
	createdAt := r.now().UTC()
	dueAt := createdAt.Add(r.horizon)

	query := `
		INSERT INTO predictions (
			id, item_name, current_price, predicted_price, confidence_score,
			model_version, features, created_at, due_at, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		id,
		pred.ItemName,
		pred.CurrentPrice,
		pred.Predicted24h,
		pred.ConfidenceScore,
		pred.ModelVersion,
		blob,
		createdAt.Unix(),
		dueAt.Unix(),
		string(StatusPending),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert journal entry for %s: %w", pred.ItemName, err)
	}

	return id, nil
}

// Get returns one entry by ID.
func (r *Repository) Get(ctx context.Context, id string) (*Entry, error) {
	query := `
		SELECT id, item_name, current_price, predicted_price, confidence_score,
		       model_version, features, created_at, due_at, status,
		       realized_price, abs_error, resolved_at
		FROM predictions
		WHERE id = ?
	`

	entry, err := scanEntry(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get journal entry %s: %w", id, err)
	}
	return entry, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		e                  Entry
		status             string
		blob               []byte
		createdAt, dueAt   int64
		realized, absError sql.NullFloat64
		resolvedAt         sql.NullInt64
	)

	err := row.Scan(
		&e.ID, &e.ItemName, &e.CurrentPrice, &e.PredictedPrice, &e.ConfidenceScore,
		&e.ModelVersion, &blob, &createdAt, &dueAt, &status,
		&realized, &absError, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	f, err := decodeFeatures(e.ItemName, blob)
	if err != nil {
		return nil, err
	}

	e.Features = f
	e.Status = Status(status)
	e.CreatedAt = time.Unix(createdAt, 0).UTC()
	e.DueAt = time.Unix(dueAt, 0).UTC()
	e.RealizedPrice = realized.Float64
	e.AbsError = absError.Float64
	if resolvedAt.Valid {
		e.ResolvedAt = time.Unix(resolvedAt.Int64, 0).UTC()
	}
	return &e, nil
}

func decodeFeatures(itemName string, blob []byte) (features.PriceFeatures, error) {
	var vector []float64
	if err := msgpack.Unmarshal(blob, &vector); err != nil {
		return features.PriceFeatures{}, fmt.Errorf("failed to decode features for %s: %w", itemName, err)
	}
	return features.FromVector(itemName, vector)
}

// ResolveDue marks every pending entry for the item whose due time is at or
// before now as resolved against realizedPrice and returns the resulting
// training outcomes. Entries whose stored features cannot be decoded are
// resolved but not returned.
func (r *Repository) ResolveDue(ctx context.Context, itemName string, realizedPrice float64, now time.Time) ([]Outcome, error) {
	if realizedPrice <= 0 || math.IsNaN(realizedPrice) {
		return nil, nil
	}

	done := utils.MeasureDBQuery("journal.resolve_due", r.log)
	var outcomes []Outcome

	err := database.WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id, predicted_price, features
			FROM predictions
			WHERE item_name = ? AND status = ? AND due_at <= ?
			ORDER BY due_at ASC
		`, itemName, string(StatusPending), now.Unix())
		if err != nil {
			return fmt.Errorf("failed to query due entries: %w", err)
		}

		type dueEntry struct {
			id        string
			predicted float64
			blob      []byte
		}
		var due []dueEntry
		for rows.Next() {
			var d dueEntry
			if err := rows.Scan(&d.id, &d.predicted, &d.blob); err != nil {
				_ = rows.Close()
				return fmt.Errorf("failed to scan due entry: %w", err)
			}
			due = append(due, d)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return fmt.Errorf("failed to iterate due entries: %w", err)
		}
		_ = rows.Close()

		for _, d := range due {
			_, err := tx.ExecContext(ctx, `
				UPDATE predictions
				SET status = ?, realized_price = ?, abs_error = ?, resolved_at = ?
				WHERE id = ?
			`, string(StatusResolved), realizedPrice, math.Abs(d.predicted-realizedPrice), now.Unix(), d.id)
			if err != nil {
				return fmt.Errorf("failed to resolve entry %s: %w", d.id, err)
			}

			f, err := decodeFeatures(itemName, d.blob)
			if err != nil {
				r.log.Warn().Err(err).Str("id", d.id).Msg("Skipping undecodable journal entry")
				continue
			}
			outcomes = append(outcomes, Outcome{Features: f, Realized: realizedPrice})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve journal entries for %s: %w", itemName, err)
	}

	done(int64(len(outcomes)))
	if len(outcomes) > 0 {
		r.log.Debug().
			Str("item", itemName).
			Int("resolved", len(outcomes)).
			Float64("realized_price", realizedPrice).
			Msg("Resolved due predictions")
	}
	return outcomes, nil
}

// Stats returns entry counts and the mean absolute percentage error of resolved entries.
func (r *Repository) Stats(ctx context.Context) (Stats, error) {
	var (
		stats Stats
		mape  sql.NullFloat64
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			AVG(CASE WHEN status = ? AND realized_price > 0 THEN abs_error * 100.0 / realized_price END)
		FROM predictions
	`, string(StatusPending), string(StatusResolved), string(StatusResolved)).Scan(&stats.Pending, &stats.Resolved, &mape)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to compute journal stats: %w", err)
	}

	stats.MAPE = mape.Float64
	return stats, nil
}

// Prune deletes resolved entries resolved before olderThan and returns how many were removed.
// Pending entries are never pruned.
func (r *Repository) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM predictions WHERE status = ? AND resolved_at < ?",
		string(StatusResolved), olderThan.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune journal: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned entries: %w", err)
	}

	if n > 0 {
		r.log.Info().Int64("deleted", n).Time("older_than", olderThan).Msg("Pruned resolved predictions")
	}
	return n, nil
}
