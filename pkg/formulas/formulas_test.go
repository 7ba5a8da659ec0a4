package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeanAndPopStdDev(t *testing.T) {
	data := []float64{2, 4, 4, 4, 5, 5, 7, 9}

	assert.InDelta(t, 5.0, Mean(data), 1e-9)
	assert.InDelta(t, 2.0, PopStdDev(data), 1e-9, "population std of the textbook series is 2")
	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 0.0, PopStdDev(nil))
}

func TestMinMax(t *testing.T) {
	assert.Equal(t, 1.5, Min([]float64{3, 1.5, 9}))
	assert.Equal(t, 9.0, Max([]float64{3, 1.5, 9}))
	assert.Equal(t, 0.0, Min(nil))
	assert.Equal(t, 0.0, Max(nil))
}

func TestPercentChange(t *testing.T) {
	assert.InDelta(t, 10.0, PercentChange([]float64{10, 12, 11}), 1e-9)
	assert.Equal(t, 0.0, PercentChange([]float64{10}), "single point has no change")
	assert.Equal(t, 0.0, PercentChange([]float64{0, 5}), "zero base is guarded")
}

func TestCoefficientOfVariation(t *testing.T) {
	assert.InDelta(t, 0.4, CoefficientOfVariation([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-9)
	assert.Equal(t, 0.0, CoefficientOfVariation([]float64{0, 0}))
	assert.Equal(t, 0.0, CoefficientOfVariation(nil))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 1.0, Clamp(3, 0, 1))
	assert.Equal(t, 0.0, Clamp(-3, 0, 1))
	assert.Equal(t, 0.5, Clamp(0.5, 0, 1))
	assert.Equal(t, 0.0, Clamp(math.NaN(), 0, 1))
}

func TestCalculateRSI(t *testing.T) {
	t.Run("insufficient data is neutral", func(t *testing.T) {
		assert.Equal(t, NeutralRSI, CalculateRSI([]float64{1, 2, 3}, DefaultRSIPeriod))
	})

	t.Run("only gains is 100", func(t *testing.T) {
		prices := make([]float64, 20)
		for i := range prices {
			prices[i] = float64(10 + i)
		}
		assert.Equal(t, 100.0, CalculateRSI(prices, DefaultRSIPeriod))
	})

	t.Run("flat series is neutral", func(t *testing.T) {
		prices := make([]float64, 20)
		for i := range prices {
			prices[i] = 10
		}
		assert.Equal(t, NeutralRSI, CalculateRSI(prices, DefaultRSIPeriod))
	})

	t.Run("only losses is 0", func(t *testing.T) {
		prices := make([]float64, 20)
		for i := range prices {
			prices[i] = float64(40 - i)
		}
		assert.InDelta(t, 0.0, CalculateRSI(prices, DefaultRSIPeriod), 1e-9)
	})

	t.Run("balanced oscillation", func(t *testing.T) {
		prices := make([]float64, 0, 21)
		for i := 0; i < 21; i++ {
			if i%2 == 0 {
				prices = append(prices, 10)
			} else {
				prices = append(prices, 11)
			}
		}
		assert.InDelta(t, 50.0, CalculateRSI(prices, DefaultRSIPeriod), 1e-9)
	})
}

func TestCalculateMomentum(t *testing.T) {
	t.Run("uses lookback of ten", func(t *testing.T) {
		prices := []float64{100, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 10, 11}
		// k = 10: compares 11 against prices[len-11] = 1
		assert.InDelta(t, 1000.0, CalculateMomentum(prices, 10), 1e-9)
	})

	t.Run("short series caps lookback", func(t *testing.T) {
		assert.InDelta(t, 20.0, CalculateMomentum([]float64{10, 11, 12}, 10), 1e-9)
	})

	t.Run("single point is zero", func(t *testing.T) {
		assert.Equal(t, 0.0, CalculateMomentum([]float64{10}, 10))
	})

	t.Run("zero base is zero", func(t *testing.T) {
		assert.Equal(t, 0.0, CalculateMomentum([]float64{0, 10}, 10))
	})
}
