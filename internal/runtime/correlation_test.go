package runtime

import (
	"context"
	"testing"
)

func TestCorrelationRoundTrip(t *testing.T) {
	ctx := WithCorrelation(context.Background(), "corr-7")
	id, ok := CorrelationFromContext(ctx)
	if !ok || id != "corr-7" {
		t.Fatalf("expected corr-7, got (%q, %v)", id, ok)
	}
}

func TestCorrelationAbsent(t *testing.T) {
	if id, ok := CorrelationFromContext(context.Background()); ok {
		t.Fatalf("expected no correlation on bare context, got %q", id)
	}
}

func TestCorrelationEmptyIsNotStored(t *testing.T) {
	ctx := WithCorrelation(context.Background(), "")
	if id, ok := CorrelationFromContext(ctx); ok {
		t.Fatalf("expected empty id not to register, got %q", id)
	}
}
