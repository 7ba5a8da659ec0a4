package classification

import (
	"math"

	"github.com/aristath/skinsentinel/internal/domain"
	"github.com/aristath/skinsentinel/pkg/formulas"
)

const (
	adjacentShare = 0.6
	skipMass      = 0.8
	riskShrink    = 0.3
)

// Probabilities maps each signal to its probability. Always sums to 1.
type Probabilities map[domain.Signal]float64

// Sum adds every component.
func (p Probabilities) Sum() float64 {
	total := 0.0
	for _, v := range p {
		total += v
	}
	return total
}

// SelectSignal picks the signal for an expected profit against the thresholds.
func SelectSignal(expectedProfit float64, t Thresholds) domain.Signal {
	switch {
	case expectedProfit >= t.StrongBuyProfit:
		return domain.SignalStrongBuy
	case expectedProfit >= t.BuyProfit:
		return domain.SignalBuy
	case expectedProfit <= t.StrongSellProfit:
		return domain.SignalStrongSell
	case expectedProfit <= t.SellProfit:
		return domain.SignalSell
	default:
		return domain.SignalHold
	}
}

// SignalConfidence is the probability assigned to the chosen signal before
// the remainder is spread over its neighbours.
func SignalConfidence(signal domain.Signal, p float64, t Thresholds) float64 {
	var c float64
	switch signal {
	case domain.SignalStrongBuy:
		c = 0.6 + math.Min((p-t.StrongBuyProfit)/math.Abs(t.StrongBuyProfit), 1)*0.3
	case domain.SignalBuy:
		c = 0.5 + (p-t.BuyProfit)/(t.StrongBuyProfit-t.BuyProfit)*0.3
	case domain.SignalSell:
		c = 0.5 + (t.SellProfit-p)/(t.SellProfit-t.StrongSellProfit)*0.3
	case domain.SignalStrongSell:
		c = 0.6 + math.Min((t.StrongSellProfit-p)/math.Abs(t.StrongSellProfit), 1)*0.3
	case domain.SignalHold:
		c = 0.6 - 0.2*math.Abs(p)/math.Max(t.BuyProfit, math.Abs(t.SellProfit))
	default:
		c = skipMass
	}
	return formulas.Clamp(c, 0, 1)
}

// BuildProbabilities spreads probability mass around the chosen signal, then
// moves risk×0.3 of every non-hold component to hold and renormalizes.
func BuildProbabilities(signal domain.Signal, p float64, t Thresholds, risk float64) Probabilities {
	probs := Probabilities{}
	for _, s := range domain.AllSignals {
		probs[s] = 0
	}

	c := SignalConfidence(signal, p, t)
	rest := 1 - c

	switch signal {
	case domain.SignalStrongBuy:
		probs[domain.SignalStrongBuy] = c
		probs[domain.SignalBuy] = rest * adjacentShare
		probs[domain.SignalHold] = rest * (1 - adjacentShare)
	case domain.SignalBuy:
		probs[domain.SignalBuy] = c
		probs[domain.SignalStrongBuy] = rest * adjacentShare
		probs[domain.SignalHold] = rest * (1 - adjacentShare)
	case domain.SignalSell:
		probs[domain.SignalSell] = c
		probs[domain.SignalStrongSell] = rest * adjacentShare
		probs[domain.SignalHold] = rest * (1 - adjacentShare)
	case domain.SignalStrongSell:
		probs[domain.SignalStrongSell] = c
		probs[domain.SignalSell] = rest * adjacentShare
		probs[domain.SignalHold] = rest * (1 - adjacentShare)
	case domain.SignalHold:
		threshold := t.BuyProfit
		if p < 0 {
			threshold = math.Abs(t.SellProfit)
		}
		buyShare := 0.5
		if threshold > 0 {
			buyShare = formulas.Clamp(0.5+0.5*p/threshold, 0, 1)
		}
		probs[domain.SignalHold] = c
		probs[domain.SignalBuy] = rest * buyShare
		probs[domain.SignalSell] = rest * (1 - buyShare)
	default:
		probs[domain.SignalSkip] = skipMass
		probs[domain.SignalHold] = 1 - skipMass
	}

	shrink := formulas.Clamp(risk, 0, 1) * riskShrink
	for _, s := range domain.AllSignals {
		if s == domain.SignalHold {
			continue
		}
		moved := probs[s] * shrink
		probs[s] -= moved
		probs[domain.SignalHold] += moved
	}

	total := probs.Sum()
	for s := range probs {
		probs[s] = formulas.Clamp(probs[s]/total, 0, 1)
	}
	return probs
}
