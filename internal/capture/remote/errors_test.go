package remote

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		network    bool
		conflict   bool
		validation bool
		retryable  bool
	}{
		{
			name:      "network",
			err:       NetworkError(errors.New("connection refused")),
			network:   true,
			retryable: true,
		},
		{
			name:      "wrapped network",
			err:       fmt.Errorf("create respondent: %w", NetworkError(errors.New("dial tcp"))),
			network:   true,
			retryable: true,
		},
		{
			name:      "conflict",
			err:       ConflictError("respondent_id already exists"),
			conflict:  true,
			retryable: true,
		},
		{
			name:       "validation",
			err:        ValidationError("respondent_type is required"),
			validation: true,
		},
		{
			name: "server",
			err:  ServerError("internal error"),
		},
		{
			name:      "deadline exceeded counts as network",
			err:       fmt.Errorf("submit response: %w", context.DeadlineExceeded),
			network:   true,
			retryable: true,
		},
		{
			name: "plain error is none of the kinds",
			err:  errors.New("boom"),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsNetwork(tc.err); got != tc.network {
				t.Fatalf("IsNetwork = %v, want %v", got, tc.network)
			}
			if got := IsConflict(tc.err); got != tc.conflict {
				t.Fatalf("IsConflict = %v, want %v", got, tc.conflict)
			}
			if got := IsValidation(tc.err); got != tc.validation {
				t.Fatalf("IsValidation = %v, want %v", got, tc.validation)
			}
			if got := Retryable(tc.err); got != tc.retryable {
				t.Fatalf("Retryable = %v, want %v", got, tc.retryable)
			}
		})
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := NetworkError(errors.New("dial tcp: timeout"))
	if got := err.Error(); got != "network failure: dial tcp: timeout" {
		t.Fatalf("error message = %q", got)
	}
	if !errors.Is(err, err.Cause) {
		t.Fatal("expected Unwrap to expose the cause")
	}
}
