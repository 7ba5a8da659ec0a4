package prediction

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/skinsentinel/internal/modules/features"
)

// bundle is the on-disk form of a predictor: both regressors, the training
// buffer and a version tag.
type bundle struct {
	Version   string            `msgpack:"version"`
	GBRT      *GradientBoosting `msgpack:"regressor_a"`
	Ridge     *Ridge            `msgpack:"regressor_b"`
	TrainingX [][]float64       `msgpack:"training_x"`
	TrainingY []float64         `msgpack:"training_y"`
	SavedAt   time.Time         `msgpack:"saved_at"`
}

func writeBundle(path string, b bundle) error {
	data, err := msgpack.Marshal(&b)
	if err != nil {
		return fmt.Errorf("failed to encode model bundle: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp model file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write model bundle: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync model bundle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close model bundle: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move model bundle into place: %w", err)
	}
	return nil
}

// readBundle returns os.ErrNotExist (wrapped) when there is no file.
func readBundle(path string) (bundle, error) {
	var b bundle
	data, err := os.ReadFile(path)
	if err != nil {
		return b, fmt.Errorf("failed to read model bundle: %w", err)
	}
	if err := msgpack.Unmarshal(data, &b); err != nil {
		return b, fmt.Errorf("failed to decode model bundle: %w", err)
	}
	if b.Version != ModelVersion {
		return b, fmt.Errorf("unsupported model bundle version %q", b.Version)
	}
	if err := b.validate(); err != nil {
		return bundle{}, fmt.Errorf("invalid model bundle: %w", err)
	}
	return b, nil
}

// validate rejects bundles that decode but could not be evaluated safely.
func (b bundle) validate() error {
	if len(b.TrainingX) != len(b.TrainingY) {
		return errors.New("training buffer is inconsistent")
	}
	for i, row := range b.TrainingX {
		if len(row) != features.VectorSize {
			return fmt.Errorf("training row %d has %d features, want %d", i, len(row), features.VectorSize)
		}
	}
	if b.GBRT != nil {
		if err := b.GBRT.validate(features.VectorSize); err != nil {
			return err
		}
	}
	if b.Ridge != nil {
		if err := b.Ridge.validate(features.VectorSize); err != nil {
			return err
		}
	}
	return nil
}
