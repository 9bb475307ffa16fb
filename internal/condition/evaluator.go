// Package condition implements the pure condition evaluator (C5): given a
// condition tree and a price snapshot, decide whether a pipeline step may
// fire. Evaluate has no side effects and performs no I/O.
package condition

import (
	"github.com/orbitengine/pipeline/internal/model"
)

// Evaluate evaluates a list of top-level conditions conjunctively (every
// condition in the list must hold) against the given price snapshot.
//
// A missing price for an asset referenced by PriceAbove/PriceBelow is a
// hard evaluation error, not false — this prevents a step from firing
// before the relevant feed is warm.
func Evaluate(conditions []model.Condition, prices model.PriceSnapshot) (bool, error) {
	for _, c := range conditions {
		ok, err := evaluateOne(c, prices)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evaluateOne(c model.Condition, prices model.PriceSnapshot) (bool, error) {
	switch c.Kind {
	case model.ConditionPriceAbove:
		price, ok := prices.Get(c.Asset)
		if !ok {
			return false, model.NewEvaluationError(c.Asset)
		}
		return price >= c.Threshold, nil

	case model.ConditionPriceBelow:
		price, ok := prices.Get(c.Asset)
		if !ok {
			return false, model.NewEvaluationError(c.Asset)
		}
		return price <= c.Threshold, nil

	case model.ConditionNow:
		return true, nil

	case model.ConditionAnd:
		for _, sub := range c.Sub {
			ok, err := evaluateOne(sub, prices)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil

	case model.ConditionOr:
		for _, sub := range c.Sub {
			ok, err := evaluateOne(sub, prices)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	default:
		return false, model.NewEvaluationError(c.Asset)
	}
}
