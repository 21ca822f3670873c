package utils

import (
	"context"
	"testing"
	"time"
)

func TestConcurrencyScriptsCompile(t *testing.T) {
	// Compile-time smoke test: scripts should be initialized.
	if concurrencyAcquireScript == nil || concurrencyReleaseScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}

func TestAcquireConcurrencyCapValidatesInput(t *testing.T) {
	if _, err := AcquireConcurrencyCap(context.Background(), nil, "k", 1, time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
