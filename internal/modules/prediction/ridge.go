package prediction

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// DefaultRidgeLambda is the L2 penalty applied to standardized weights.
const DefaultRidgeLambda = 1.0

// Ridge is an L2-regularized linear regression on standardized features.
// The intercept is not penalized.
type Ridge struct {
	Lambda    float64   `msgpack:"lambda"`
	Means     []float64 `msgpack:"means"`
	Scales    []float64 `msgpack:"scales"`
	Weights   []float64 `msgpack:"weights"`
	Intercept float64   `msgpack:"intercept"`
}

// NewRidge creates an unfitted ridge regressor.
func NewRidge(lambda float64) *Ridge {
	return &Ridge{Lambda: lambda}
}

// Fit solves (XᵀX + λI)w = Xᵀ(y - ȳ) on standardized X via Cholesky.
func (r *Ridge) Fit(X [][]float64, y []float64) error {
	d, err := checkTrainingSet(X, y)
	if err != nil {
		return err
	}
	n := len(y)

	r.Means = make([]float64, d)
	r.Scales = make([]float64, d)
	column := make([]float64, n)
	for j := 0; j < d; j++ {
		for i := 0; i < n; i++ {
			column[i] = X[i][j]
		}
		mean, std := stat.PopMeanStdDev(column, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		r.Means[j] = mean
		r.Scales[j] = std
	}
	r.Intercept = stat.Mean(y, nil)

	xs := mat.NewDense(n, d, nil)
	yc := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			xs.Set(i, j, (X[i][j]-r.Means[j])/r.Scales[j])
		}
		yc.SetVec(i, y[i]-r.Intercept)
	}

	xtx := mat.NewSymDense(d, nil)
	xtx.SymOuterK(1, xs.T())
	for j := 0; j < d; j++ {
		xtx.SetSym(j, j, xtx.At(j, j)+r.Lambda)
	}

	xty := mat.NewVecDense(d, nil)
	xty.MulVec(xs.T(), yc)

	var chol mat.Cholesky
	if ok := chol.Factorize(xtx); !ok {
		return fmt.Errorf("ridge normal matrix is not positive definite")
	}
	w := mat.NewVecDense(d, nil)
	if err := chol.SolveVecTo(w, xty); err != nil {
		return fmt.Errorf("failed to solve ridge system: %w", err)
	}

	r.Weights = make([]float64, d)
	for j := 0; j < d; j++ {
		r.Weights[j] = w.AtVec(j)
	}
	return nil
}

// PredictVector evaluates the fitted model. Short vectors yield the intercept.
func (r *Ridge) PredictVector(x []float64) float64 {
	if len(x) < len(r.Weights) {
		return r.Intercept
	}
	out := r.Intercept
	for j, w := range r.Weights {
		out += w * (x[j] - r.Means[j]) / r.Scales[j]
	}
	return out
}

// validate checks that the fitted parameters all have numFeatures entries.
func (r *Ridge) validate(numFeatures int) error {
	if len(r.Weights) != numFeatures || len(r.Means) != numFeatures || len(r.Scales) != numFeatures {
		return fmt.Errorf("ridge has %d weights, %d means and %d scales, want %d",
			len(r.Weights), len(r.Means), len(r.Scales), numFeatures)
	}
	for j, s := range r.Scales {
		if s == 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return fmt.Errorf("ridge scale %d is %v", j, s)
		}
	}
	return nil
}
