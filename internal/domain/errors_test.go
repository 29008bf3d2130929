package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainErrors_AreDistinctAndUsableWithErrorsIs(t *testing.T) {
	all := []error{ErrInvalidAPIKey, ErrTokenStoreNotReady, ErrSessionNotFound, ErrTooManyDocuments}
	for i, a := range all {
		if a == nil || a.Error() == "" {
			t.Fatalf("error %d must be non-nil with a message", i)
		}
		for j, b := range all {
			if i != j && a == b {
				t.Fatalf("errors %d and %d must be distinct", i, j)
			}
		}
		wrapped := fmt.Errorf("session abc: %w", a)
		if !errors.Is(wrapped, a) {
			t.Fatalf("expected errors.Is to match %v", a)
		}
	}
}
