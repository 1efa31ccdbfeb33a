package domain

import (
	"strconv"
	"strings"
)

// Visible computes the ordered subset of questions currently eligible to be
// shown, given the answers recorded so far. It is pure and runs in one pass
// over the question list.
//
// Non-follow-up questions are always visible. A follow-up is visible only
// when its parent is itself visible, the parent has a recorded answer, and
// that answer satisfies the question's conditional logic. Hiding is
// transitive down a dependency chain: a hidden parent's stale answer never
// leaks visibility to its children.
func Visible(questions []Question, responses ResponseMap) []Question {
	visible := make([]Question, 0, len(questions))
	visibleByID := make(map[string]bool, len(questions))

	for _, q := range questions {
		if !q.FollowUp {
			visible = append(visible, q)
			visibleByID[q.ID] = true
			continue
		}
		if q.Logic == nil {
			continue
		}
		// Parents carry a smaller order index, so a single ordered pass
		// has already classified them.
		if !visibleByID[q.Logic.ParentQuestionID] {
			continue
		}
		parent := responses[q.Logic.ParentQuestionID]
		if parent.IsEmpty() {
			// An unanswered parent hides the follow-up regardless of
			// operator.
			continue
		}
		if conditionSatisfied(*q.Logic, parent) {
			visible = append(visible, q)
			visibleByID[q.ID] = true
		}
	}
	return visible
}

func conditionSatisfied(logic ConditionalLogic, parent ResponseValue) bool {
	switch logic.Operator {
	case OperatorEquals:
		return parent.Kind() == ValueScalar && parent.Text() == logic.ComparisonValue
	case OperatorNotEquals:
		return parent.Kind() == ValueScalar && parent.Text() != logic.ComparisonValue
	case OperatorContains:
		return parent.Contains(logic.ComparisonValue)
	case OperatorNotContains:
		return !parent.Contains(logic.ComparisonValue)
	case OperatorIn:
		return inCandidateSet(parent, logic.ComparisonValue)
	case OperatorNotIn:
		return parent.Kind() == ValueScalar && !inCandidateSet(parent, logic.ComparisonValue)
	case OperatorGreaterThan:
		return compareNumeric(parent, logic.ComparisonValue, func(a, b float64) bool { return a > b })
	case OperatorLessThan:
		return compareNumeric(parent, logic.ComparisonValue, func(a, b float64) bool { return a < b })
	case OperatorGreaterOrEqual:
		return compareNumeric(parent, logic.ComparisonValue, func(a, b float64) bool { return a >= b })
	case OperatorLessOrEqual:
		return compareNumeric(parent, logic.ComparisonValue, func(a, b float64) bool { return a <= b })
	case OperatorIsEmpty:
		return parent.IsEmpty()
	case OperatorIsNotEmpty:
		return !parent.IsEmpty()
	case OperatorBetween:
		return betweenBounds(parent, logic.ComparisonValue)
	default:
		return false
	}
}

// inCandidateSet treats the comparison value as a comma-separated candidate
// set and reports scalar membership.
func inCandidateSet(parent ResponseValue, comparison string) bool {
	if parent.Kind() != ValueScalar {
		return false
	}
	for _, candidate := range strings.Split(comparison, ",") {
		if strings.TrimSpace(candidate) == parent.Text() {
			return true
		}
	}
	return false
}

func compareNumeric(parent ResponseValue, comparison string, cmp func(a, b float64) bool) bool {
	if parent.Kind() != ValueScalar {
		return false
	}
	answer, err := strconv.ParseFloat(strings.TrimSpace(parent.Text()), 64)
	if err != nil {
		return false
	}
	bound, err := strconv.ParseFloat(strings.TrimSpace(comparison), 64)
	if err != nil {
		return false
	}
	return cmp(answer, bound)
}

// betweenBounds parses the comparison value as inclusive "low,high" bounds.
func betweenBounds(parent ResponseValue, comparison string) bool {
	if parent.Kind() != ValueScalar {
		return false
	}
	parts := strings.Split(comparison, ",")
	if len(parts) != 2 {
		return false
	}
	answer, err := strconv.ParseFloat(strings.TrimSpace(parent.Text()), 64)
	if err != nil {
		return false
	}
	low, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return false
	}
	high, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return false
	}
	return answer >= low && answer <= high
}
