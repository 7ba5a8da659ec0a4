// Package allocation sizes capital across a batch of scored opportunities.
package allocation

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/skinsentinel/internal/domain"
	"github.com/aristath/skinsentinel/internal/metrics"
	"github.com/aristath/skinsentinel/internal/modules/strategy"
	"github.com/aristath/skinsentinel/internal/utils"
)

const (
	// minRiskDivisor keeps near-zero risk from dominating the ranking.
	minRiskDivisor = 0.1

	ReasonMaxPositions      = "Max positions reached"
	ReasonInsufficientFunds = "Insufficient available balance"
)

// Opportunity is one candidate trade. Allocate fills Allocation and
// AllocationReason in place.
type Opportunity struct {
	ItemName         string        `json:"item_name"`
	Price            float64       `json:"price"`
	ExpectedProfit   float64       `json:"expected_profit"`
	RiskScore        float64       `json:"risk_score"`
	Confidence       float64       `json:"confidence"`
	Signal           domain.Signal `json:"signal,omitempty"`
	Allocation       float64       `json:"allocation"`
	AllocationReason string        `json:"allocation_reason"`
}

// Score ranks opportunities: expected profit per unit of risk.
func (o *Opportunity) Score() float64 {
	return o.ExpectedProfit / math.Max(o.RiskScore, minRiskDivisor)
}

// Allocator distributes the strategy's balance over opportunities.
type Allocator struct {
	strategy *strategy.BalanceAdaptiveStrategy
	metrics  *metrics.Engine
	log      zerolog.Logger
}

// New creates an allocator driven by the given strategy.
func New(s *strategy.BalanceAdaptiveStrategy, m *metrics.Engine, log zerolog.Logger) *Allocator {
	return &Allocator{
		strategy: s,
		metrics:  m,
		log:      log.With().Str("component", "portfolio_allocator").Logger(),
	}
}

// Allocate ranks opportunities by Score and greedily assigns capital under
// the strategy's position-count and balance limits. Entries that already
// carry an allocation count as taken positions and keep it, so running
// Allocate on its own output never exceeds the limits. The returned slice
// is sorted by rank; the input slice order is left alone.
func (a *Allocator) Allocate(opportunities []*Opportunity) []*Opportunity {
	ranked := make([]*Opportunity, 0, len(opportunities))
	for _, o := range opportunities {
		if o != nil {
			ranked = append(ranked, o)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score() > ranked[j].Score()
	})

	params := a.strategy.Parameters()
	available := a.strategy.Balance()
	taken := 0
	for _, o := range ranked {
		if o.Allocation > 0 {
			taken++
			available -= o.Allocation
		}
	}
	available = math.Max(available, 0)

	for _, o := range ranked {
		if o.Allocation > 0 {
			continue
		}

		if taken >= params.MaxConcurrentPositions {
			a.reject(o, ReasonMaxPositions)
			continue
		}

		ok, reason := a.strategy.ShouldBuy(o.Price, o.ExpectedProfit, o.RiskScore, taken)
		if !ok {
			a.reject(o, reason)
			continue
		}
		if o.Price > available {
			a.reject(o, ReasonInsufficientFunds)
			continue
		}

		size := a.strategy.CalculatePositionSize(o.Price, o.Confidence, o.RiskScore)
		size = utils.FloorUSD(math.Min(size, available))
		if size <= 0 {
			a.reject(o, ReasonInsufficientFunds)
			continue
		}

		o.Allocation = size
		o.AllocationReason = fmt.Sprintf("Allocated $%.2f (score %.2f)", size, o.Score())
		available -= size
		taken++
		a.metrics.RecordAllocation(metrics.OutcomeAllocated)
	}

	a.log.Debug().
		Int("opportunities", len(ranked)).
		Int("positions", taken).
		Float64("remaining", available).
		Msg("Allocated portfolio")

	return ranked
}

func (a *Allocator) reject(o *Opportunity, reason string) {
	o.Allocation = 0
	o.AllocationReason = reason
	a.metrics.RecordAllocation(metrics.OutcomeRejected)
}

// TotalAllocated sums allocations.
func TotalAllocated(opportunities []*Opportunity) float64 {
	total := 0.0
	for _, o := range opportunities {
		if o != nil {
			total += o.Allocation
		}
	}
	return utils.RoundUSD(total)
}
