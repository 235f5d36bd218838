package config

import (
	"os"
	"testing"
	"time"
)

func TestNewDefaults(t *testing.T) {
	settings, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.Pipeline.MaxReasoningLoops != 5 {
		t.Errorf("expected 5 reasoning loops, got %d", settings.Pipeline.MaxReasoningLoops)
	}
	if settings.Pipeline.ChunkThreshold != 4000 {
		t.Errorf("expected chunk threshold 4000, got %d", settings.Pipeline.ChunkThreshold)
	}
	if settings.LLM.Timeout != 60*time.Second {
		t.Errorf("expected 60s timeout, got %v", settings.LLM.Timeout)
	}
	if settings.Store.Backend != "sqlite" {
		t.Errorf("expected sqlite backend, got %q", settings.Store.Backend)
	}
}

func TestNewOverrides(t *testing.T) {
	original := os.Getenv("CARLOS_MAX_REASONING_LOOPS")
	os.Setenv("CARLOS_MAX_REASONING_LOOPS", "3")
	defer os.Setenv("CARLOS_MAX_REASONING_LOOPS", original)

	settings, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.Pipeline.MaxReasoningLoops != 3 {
		t.Errorf("expected 3 reasoning loops, got %d", settings.Pipeline.MaxReasoningLoops)
	}
}

func TestNewInvalidInt(t *testing.T) {
	original := os.Getenv("CARLOS_MAX_REASONING_LOOPS")
	os.Setenv("CARLOS_MAX_REASONING_LOOPS", "plenty")
	defer os.Setenv("CARLOS_MAX_REASONING_LOOPS", original)

	if _, err := New(); err == nil {
		t.Error("expected error for non-numeric value")
	}
}

func TestNewInvalidBackend(t *testing.T) {
	original := os.Getenv("CARLOS_STORE")
	os.Setenv("CARLOS_STORE", "cassandra")
	defer os.Setenv("CARLOS_STORE", original)

	if _, err := New(); err == nil {
		t.Error("expected error for unknown store backend")
	}
}
