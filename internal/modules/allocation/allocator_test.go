package allocation

import (
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/skinsentinel/internal/modules/strategy"
)

func newAllocator(balance float64) *Allocator {
	return New(strategy.New(balance, zerolog.Nop()), nil, zerolog.Nop())
}

func countAllocated(opps []*Opportunity) int {
	n := 0
	for _, o := range opps {
		if o.Allocation > 0 {
			n++
		}
	}
	return n
}

func TestAllocate_RanksAndSizes(t *testing.T) {
	a := newAllocator(100)
	opps := []*Opportunity{
		{ItemName: "A", Price: 15, ExpectedProfit: 12, RiskScore: 0.2, Confidence: 0.8},
		{ItemName: "B", Price: 18, ExpectedProfit: 8, RiskScore: 0.1, Confidence: 0.6},
		{ItemName: "C", Price: 50, ExpectedProfit: 40, RiskScore: 0.1, Confidence: 0.9},
		{ItemName: "D", Price: 5, ExpectedProfit: 3, RiskScore: 0.1, Confidence: 0.9},
	}

	ranked := a.Allocate(opps)

	require.Len(t, ranked, 4)
	assert.Equal(t, []string{"C", "B", "A", "D"}, []string{ranked[0].ItemName, ranked[1].ItemName, ranked[2].ItemName, ranked[3].ItemName})
	assert.Equal(t, "A", opps[0].ItemName, "input order untouched")

	byName := map[string]*Opportunity{}
	for _, o := range ranked {
		byName[o.ItemName] = o
	}

	assert.Equal(t, 0.0, byName["C"].Allocation)
	assert.Contains(t, byName["C"].AllocationReason, "exceeds max position")

	assert.InDelta(t, 15.2, byName["B"].Allocation, 1e-9)
	assert.Contains(t, byName["B"].AllocationReason, "Allocated")

	assert.InDelta(t, 15.0, byName["A"].Allocation, 1e-9, "capped at the item price")

	assert.Equal(t, 0.0, byName["D"].Allocation)
	assert.Contains(t, byName["D"].AllocationReason, "below minimum")

	assert.InDelta(t, 30.2, TotalAllocated(ranked), 1e-9)
}

func TestAllocate_MaxPositions(t *testing.T) {
	a := newAllocator(19)
	opps := []*Opportunity{
		{ItemName: "one", Price: 2, ExpectedProfit: 20, RiskScore: 0.1, Confidence: 1},
		{ItemName: "two", Price: 2, ExpectedProfit: 20, RiskScore: 0.1, Confidence: 1},
		{ItemName: "three", Price: 2, ExpectedProfit: 20, RiskScore: 0.1, Confidence: 1},
	}

	ranked := a.Allocate(opps)

	assert.Equal(t, 2, countAllocated(ranked))
	assert.Equal(t, ReasonMaxPositions, ranked[2].AllocationReason)
	assert.Equal(t, "three", ranked[2].ItemName, "stable ranking keeps input order on ties")
}

func TestAllocate_InsufficientFunds(t *testing.T) {
	a := newAllocator(100)
	held := &Opportunity{ItemName: "held", Price: 90, ExpectedProfit: 10, RiskScore: 0.2, Allocation: 90, AllocationReason: "earlier"}
	fresh := &Opportunity{ItemName: "fresh", Price: 15, ExpectedProfit: 10, RiskScore: 0.2, Confidence: 1}

	a.Allocate([]*Opportunity{held, fresh})

	assert.Equal(t, 90.0, held.Allocation)
	assert.Equal(t, "earlier", held.AllocationReason)
	assert.Equal(t, 0.0, fresh.Allocation)
	assert.Equal(t, ReasonInsufficientFunds, fresh.AllocationReason)
}

func TestAllocate_Idempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	balances := []float64{15, 60, 250, 900, 5000}

	for _, balance := range balances {
		a := newAllocator(balance)
		params := a.strategy.Parameters()

		for round := 0; round < 50; round++ {
			opps := make([]*Opportunity, 20)
			for i := range opps {
				opps[i] = &Opportunity{
					ItemName:       "item",
					Price:          rng.Float64() * balance * 0.3,
					ExpectedProfit: rng.Float64() * 30,
					RiskScore:      rng.Float64(),
					Confidence:     rng.Float64(),
				}
			}

			first := a.Allocate(opps)
			firstAllocations := make([]float64, len(first))
			for i, o := range first {
				firstAllocations[i] = o.Allocation
			}
			second := a.Allocate(first)

			require.LessOrEqual(t, countAllocated(second), params.MaxConcurrentPositions)
			require.LessOrEqual(t, TotalAllocated(second), balance+1e-9)
			for i, o := range second {
				require.GreaterOrEqual(t, o.Allocation, 0.0)
				require.LessOrEqual(t, o.Allocation, o.Price+1e-9)
				if firstAllocations[i] > 0 {
					require.Equal(t, firstAllocations[i], o.Allocation)
				}
			}
		}
	}
}

func TestAllocate_BuyScenario(t *testing.T) {
	a := newAllocator(100)
	opp := &Opportunity{ItemName: "item", Price: 15, ExpectedProfit: 12, RiskScore: 0.2, Confidence: 0.7}

	a.Allocate([]*Opportunity{opp})

	assert.Greater(t, opp.Allocation, 0.0)
	assert.LessOrEqual(t, opp.Allocation, 20.0)
	assert.LessOrEqual(t, opp.Allocation, 15.0)
}

func TestAllocate_SkipsNil(t *testing.T) {
	a := newAllocator(100)
	ranked := a.Allocate([]*Opportunity{nil, {ItemName: "x", Price: 10, ExpectedProfit: 10, RiskScore: 0.1, Confidence: 1}})
	require.Len(t, ranked, 1)
	assert.Greater(t, ranked[0].Allocation, 0.0)
}

func TestOpportunity_Score(t *testing.T) {
	assert.InDelta(t, 100.0, (&Opportunity{ExpectedProfit: 10, RiskScore: 0}).Score(), 1e-9)
	assert.InDelta(t, 20.0, (&Opportunity{ExpectedProfit: 10, RiskScore: 0.5}).Score(), 1e-9)
}
