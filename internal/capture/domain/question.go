// Package domain holds the survey capture domain model: questions,
// conditional visibility logic, and response values.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Operator compares a parent question's answer against a comparison value.
type Operator string

const (
	// OperatorEquals matches a scalar answer exactly. Multi-select answers
	// are not valid operands and never match.
	OperatorEquals Operator = "equals"
	// OperatorNotEquals matches when a scalar answer differs.
	OperatorNotEquals Operator = "not_equals"
	// OperatorContains matches when the answer contains the comparison
	// string: substring for scalars, membership for multi-select.
	OperatorContains Operator = "contains"
	// OperatorNotContains is the negation of OperatorContains.
	OperatorNotContains Operator = "not_contains"
	// OperatorIn matches when the scalar answer is a member of the
	// comma-separated candidate set in the comparison value.
	OperatorIn Operator = "in"
	// OperatorNotIn is the negation of OperatorIn.
	OperatorNotIn Operator = "not_in"
	// OperatorGreaterThan compares numerically. A non-numeric answer never
	// matches.
	OperatorGreaterThan Operator = "greater_than"
	// OperatorLessThan compares numerically.
	OperatorLessThan Operator = "less_than"
	// OperatorGreaterOrEqual compares numerically.
	OperatorGreaterOrEqual Operator = "greater_or_equal"
	// OperatorLessOrEqual compares numerically.
	OperatorLessOrEqual Operator = "less_or_equal"
	// OperatorIsEmpty matches when the parent has no recorded answer.
	OperatorIsEmpty Operator = "is_empty"
	// OperatorIsNotEmpty matches when the parent has a recorded answer.
	OperatorIsNotEmpty Operator = "is_not_empty"
	// OperatorBetween matches when the numeric answer falls inside the
	// inclusive "low,high" bounds in the comparison value.
	OperatorBetween Operator = "between"
)

var validOperators = map[Operator]bool{
	OperatorEquals:         true,
	OperatorNotEquals:      true,
	OperatorContains:       true,
	OperatorNotContains:    true,
	OperatorIn:             true,
	OperatorNotIn:          true,
	OperatorGreaterThan:    true,
	OperatorLessThan:       true,
	OperatorGreaterOrEqual: true,
	OperatorLessOrEqual:    true,
	OperatorIsEmpty:        true,
	OperatorIsNotEmpty:     true,
	OperatorBetween:        true,
}

// Valid reports whether the operator is a known conditional operator.
func (o Operator) Valid() bool {
	return validOperators[o]
}

// ConditionalLogic makes a follow-up question visible only when the parent
// question's answer satisfies the condition.
type ConditionalLogic struct {
	ParentQuestionID string   `json:"parent_question_id"`
	Operator         Operator `json:"operator"`
	ComparisonValue  string   `json:"comparison_value"`
}

// Question is one entry in a project's ordered question list.
type Question struct {
	ID         string            `json:"id"`
	Text       string            `json:"text"`
	Type       string            `json:"type"`
	OrderIndex int               `json:"order_index"`
	Required   bool              `json:"is_required"`
	FollowUp   bool              `json:"is_follow_up"`
	Logic      *ConditionalLogic `json:"conditional_logic,omitempty"`
}

var (
	// ErrQuestionIDEmpty indicates a question without an id.
	ErrQuestionIDEmpty = errors.New("question id is required")
	// ErrDuplicateQuestionID indicates two questions sharing an id.
	ErrDuplicateQuestionID = errors.New("duplicate question id")
	// ErrFollowUpWithoutLogic indicates a follow-up question missing its
	// conditional logic.
	ErrFollowUpWithoutLogic = errors.New("follow-up question requires conditional logic")
	// ErrUnknownParent indicates conditional logic referencing a question
	// that does not exist.
	ErrUnknownParent = errors.New("conditional logic references unknown parent question")
	// ErrParentOrder indicates a parent question that does not precede its
	// dependent in the canonical order.
	ErrParentOrder = errors.New("parent question must precede its follow-up")
	// ErrInvalidOperator indicates an unrecognized conditional operator.
	ErrInvalidOperator = errors.New("invalid conditional operator")
	// ErrLogicCycle indicates a cycle in the follow-up dependency graph.
	ErrLogicCycle = errors.New("conditional logic dependency cycle")
)

// ValidateQuestions checks the invariants the visibility evaluator relies on:
// unique non-empty ids, follow-ups carrying valid logic, parents that exist
// and strictly precede their dependents, and an acyclic dependency graph.
// It is the authoring-side guard; the evaluator assumes validated input.
func ValidateQuestions(questions []Question) error {
	byID := make(map[string]Question, len(questions))
	for _, q := range questions {
		if strings.TrimSpace(q.ID) == "" {
			return ErrQuestionIDEmpty
		}
		if _, exists := byID[q.ID]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateQuestionID, q.ID)
		}
		byID[q.ID] = q
	}

	if err := validateAcyclic(questions, byID); err != nil {
		return err
	}

	for _, q := range questions {
		if !q.FollowUp {
			continue
		}
		if q.Logic == nil {
			return fmt.Errorf("%w: %s", ErrFollowUpWithoutLogic, q.ID)
		}
		if !q.Logic.Operator.Valid() {
			return fmt.Errorf("%w: %s has operator %q", ErrInvalidOperator, q.ID, q.Logic.Operator)
		}
		parent, ok := byID[q.Logic.ParentQuestionID]
		if !ok {
			return fmt.Errorf("%w: %s references %s", ErrUnknownParent, q.ID, q.Logic.ParentQuestionID)
		}
		if parent.OrderIndex >= q.OrderIndex {
			return fmt.Errorf("%w: %s has parent %s", ErrParentOrder, q.ID, parent.ID)
		}
	}
	return nil
}

// validateAcyclic rejects any cycle in the follow-up dependency graph. The
// parent-order invariant already rules cycles out for well-ordered input,
// but authoring bugs can produce equal or inverted order indexes, so the
// graph is checked directly.
func validateAcyclic(questions []Question, byID map[string]Question) error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(questions))

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case visiting:
			return fmt.Errorf("%w: %s", ErrLogicCycle, id)
		case done:
			return nil
		}
		state[id] = visiting
		if q, ok := byID[id]; ok && q.FollowUp && q.Logic != nil {
			if err := visit(q.Logic.ParentQuestionID); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}

	for _, q := range questions {
		if err := visit(q.ID); err != nil {
			return err
		}
	}
	return nil
}
