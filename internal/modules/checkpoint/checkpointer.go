// Package checkpoint periodically persists the predictor bundle and mirrors it
// to S3-compatible object storage.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/aristath/skinsentinel/internal/database"
	"github.com/rs/zerolog"
)

// Model is the persistence surface of the predictor.
type Model interface {
	SaveModel() error
	LoadModel() error
	ModelPath() string
}

// Option configures a Checkpointer.
type Option func(*Checkpointer)

// WithStore mirrors every checkpoint to store under prefix.
func WithStore(store Store, prefix string) Option {
	return func(c *Checkpointer) {
		c.store = store
		c.prefix = prefix
	}
}

// WithDatabase folds the database's WAL during every checkpoint.
func WithDatabase(db *database.DB) Option {
	return func(c *Checkpointer) {
		c.db = db
	}
}

// WithClock overrides the clock used to stamp checkpoints.
func WithClock(now func() time.Time) Option {
	return func(c *Checkpointer) {
		c.now = now
	}
}

// Checkpointer saves the model bundle and uploads it.
type Checkpointer struct {
	model  Model
	store  Store
	prefix string
	db     *database.DB
	log    zerolog.Logger
	now    func() time.Time

	mu   sync.Mutex // serializes runs
	last time.Time
}

// New creates a checkpointer for model.
func New(model Model, log zerolog.Logger, opts ...Option) *Checkpointer {
	c := &Checkpointer{
		model: model,
		log:   log.With().Str("job", "checkpoint").Logger(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name identifies the job in scheduler logs.
func (c *Checkpointer) Name() string {
	return "checkpoint"
}

// Key is the object key the bundle is stored under.
func (c *Checkpointer) Key() string {
	return path.Join(c.prefix, filepath.Base(c.model.ModelPath()))
}

// LastCheckpoint reports when the last successful run finished. Zero if none.
func (c *Checkpointer) LastCheckpoint() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Run saves the bundle locally, then uploads it when a store is configured.
func (c *Checkpointer) Run(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.model.SaveModel(); err != nil {
		return fmt.Errorf("failed to save model: %w", err)
	}

	if c.db != nil {
		if err := c.db.WALCheckpoint(ctx, "PASSIVE"); err != nil {
			c.log.Warn().Err(err).Msg("WAL checkpoint failed")
		}
	}

	if c.store != nil {
		if err := c.upload(ctx); err != nil {
			return err
		}
	}

	c.last = c.now()
	c.log.Info().Str("path", c.model.ModelPath()).Bool("uploaded", c.store != nil).Msg("Checkpoint completed")
	return nil
}

func (c *Checkpointer) upload(ctx context.Context) error {
	f, err := os.Open(c.model.ModelPath())
	if err != nil {
		return fmt.Errorf("failed to open model bundle: %w", err)
	}
	defer f.Close()

	if err := c.store.Put(ctx, c.Key(), f); err != nil {
		return fmt.Errorf("failed to upload model bundle: %w", err)
	}
	return nil
}

// Restore downloads the bundle when no local copy exists and loads it.
// It reports whether a bundle was restored. A missing remote object is not an error.
func (c *Checkpointer) Restore(ctx context.Context) (bool, error) {
	if c.store == nil {
		return false, nil
	}

	modelPath := c.model.ModelPath()
	if _, err := os.Stat(modelPath); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("failed to stat model bundle: %w", err)
	}

	body, err := c.store.Get(ctx, c.Key())
	if errors.Is(err, ErrObjectNotFound) {
		c.log.Info().Str("key", c.Key()).Msg("No remote checkpoint to restore")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer body.Close()

	if err := writeFileAtomic(modelPath, body); err != nil {
		return false, err
	}

	if err := c.model.LoadModel(); err != nil {
		return false, fmt.Errorf("failed to load restored bundle: %w", err)
	}

	c.log.Info().Str("key", c.Key()).Str("path", modelPath).Msg("Restored model bundle from remote checkpoint")
	return true, nil
}

func writeFileAtomic(dst string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".restore-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write restored bundle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close restored bundle: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to move restored bundle into place: %w", err)
	}
	return nil
}
