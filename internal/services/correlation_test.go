package services

import (
	"context"
	"testing"
)

func TestCorrelationIDRoundTrip(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "corr-42")
	if got := CorrelationIDFromContext(ctx); got != "corr-42" {
		t.Errorf("CorrelationIDFromContext = %q, want corr-42", got)
	}
}

func TestCorrelationIDAbsent(t *testing.T) {
	if got := CorrelationIDFromContext(context.Background()); got != "" {
		t.Errorf("expected empty id on a bare context, got %q", got)
	}
}
