package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ValueKind discriminates the closed set of response value shapes.
type ValueKind int

const (
	// ValueNone is the zero value: no recorded answer.
	ValueNone ValueKind = iota
	// ValueScalar is a single string answer.
	ValueScalar
	// ValueList is an ordered multi-select answer.
	ValueList
)

// ResponseValue is a closed tagged union: either a scalar string or an
// ordered list of strings. The zero value represents no recorded answer.
type ResponseValue struct {
	kind  ValueKind
	text  string
	items []string
}

// Scalar returns a scalar response value.
func Scalar(text string) ResponseValue {
	return ResponseValue{kind: ValueScalar, text: text}
}

// List returns a multi-select response value preserving item order.
func List(items ...string) ResponseValue {
	copied := make([]string, len(items))
	copy(copied, items)
	return ResponseValue{kind: ValueList, items: copied}
}

// Kind returns the value's shape discriminator.
func (v ResponseValue) Kind() ValueKind {
	return v.kind
}

// Text returns the scalar text, or "" for non-scalar values.
func (v ResponseValue) Text() string {
	if v.kind != ValueScalar {
		return ""
	}
	return v.text
}

// Items returns a copy of the multi-select items, or nil for non-list values.
func (v ResponseValue) Items() []string {
	if v.kind != ValueList {
		return nil
	}
	copied := make([]string, len(v.items))
	copy(copied, v.items)
	return copied
}

// IsEmpty reports whether the value counts as no answer: the zero value, an
// empty scalar, or an empty list.
func (v ResponseValue) IsEmpty() bool {
	switch v.kind {
	case ValueScalar:
		return strings.TrimSpace(v.text) == ""
	case ValueList:
		return len(v.items) == 0
	default:
		return true
	}
}

// Contains reports whether the value contains target: substring match for
// scalars, exact membership for lists.
func (v ResponseValue) Contains(target string) bool {
	switch v.kind {
	case ValueScalar:
		return strings.Contains(v.text, target)
	case ValueList:
		for _, item := range v.items {
			if item == target {
				return true
			}
		}
	}
	return false
}

// Equal reports structural equality between two response values.
func (v ResponseValue) Equal(other ResponseValue) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case ValueScalar:
		return v.text == other.text
	case ValueList:
		if len(v.items) != len(other.items) {
			return false
		}
		for i := range v.items {
			if v.items[i] != other.items[i] {
				return false
			}
		}
	}
	return true
}

// MarshalJSON encodes a scalar as a JSON string and a list as a JSON array.
func (v ResponseValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case ValueList:
		return json.Marshal(v.items)
	default:
		return json.Marshal(v.text)
	}
}

// UnmarshalJSON accepts a JSON string or array of strings.
func (v *ResponseValue) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*v = Scalar(text)
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err == nil {
		*v = List(items...)
		return nil
	}
	return fmt.Errorf("response value must be a string or array of strings: %s", data)
}

// ResponseMap maps question ids to recorded answers.
type ResponseMap map[string]ResponseValue

// Answered reports whether the question has a non-empty recorded answer.
func (m ResponseMap) Answered(questionID string) bool {
	value, ok := m[questionID]
	return ok && !value.IsEmpty()
}

// AnsweredCount returns the number of non-empty entries.
func (m ResponseMap) AnsweredCount() int {
	count := 0
	for _, value := range m {
		if !value.IsEmpty() {
			count++
		}
	}
	return count
}

// Clone returns a deep copy of the map.
func (m ResponseMap) Clone() ResponseMap {
	if m == nil {
		return nil
	}
	copied := make(ResponseMap, len(m))
	for id, value := range m {
		copied[id] = value
	}
	return copied
}
