package services

import (
	"fmt"
	"sort"

	"github.com/adpilot-inc/adpilot-engine/pkg/apperrors"
	"github.com/adpilot-inc/adpilot-engine/pkg/models"
)

// EvaluateRules matches a metric snapshot against a rule set and returns
// the rules that fire, highest priority first. The order among equal
// priorities preserves the input order.
//
// A rule fires only when every one of its conditions holds. A condition
// whose metric is absent from the snapshot does not hold: missing data is
// never treated as zero, so an ad set with no delivery can't trip a
// "CTR below threshold" rule. Inactive rules are skipped.
func EvaluateRules(metrics models.MetricSnapshot, rules []*models.Rule) ([]models.TriggeredRule, error) {
	triggered := make([]models.TriggeredRule, 0)

	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}

		match := true
		for _, cond := range rule.Conditions {
			value, ok := metrics[cond.Metric]
			if !ok {
				match = false
				break
			}
			holds, err := compare(value, cond.Operator, cond.Value)
			if err != nil {
				return nil, fmt.Errorf("rule %q condition on %q: %w", rule.Name, cond.Metric, err)
			}
			if !holds {
				match = false
				break
			}
		}
		if !match {
			continue
		}

		actions := make([]models.RuleAction, len(rule.Actions))
		copy(actions, rule.Actions)
		sort.SliceStable(actions, func(i, j int) bool {
			return actions[i].Priority > actions[j].Priority
		})

		triggered = append(triggered, models.TriggeredRule{
			RuleID:   rule.ID,
			RuleName: rule.Name,
			Priority: rule.Priority,
			Actions:  actions,
		})
	}

	sort.SliceStable(triggered, func(i, j int) bool {
		return triggered[i].Priority > triggered[j].Priority
	})
	return triggered, nil
}

// compare applies one comparison operator. Equality is strict float
// equality; thresholds are operator-authored constants, not computed
// values, so epsilon comparison would be a surprise here.
func compare(value float64, operator string, threshold float64) (bool, error) {
	switch operator {
	case models.OperatorGreaterThan:
		return value > threshold, nil
	case models.OperatorGreaterOrEqual:
		return value >= threshold, nil
	case models.OperatorLessThan:
		return value < threshold, nil
	case models.OperatorLessOrEqual:
		return value <= threshold, nil
	case models.OperatorEqual:
		return value == threshold, nil
	default:
		return false, fmt.Errorf("%w: %q", apperrors.ErrUnknownOperator, operator)
	}
}
