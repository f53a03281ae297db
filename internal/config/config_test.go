package config

import "testing"

func TestNewDefaults(t *testing.T) {
	cfg := New()
	if len(cfg.Chain) != 3 {
		t.Fatalf("expected 3-stage default chain, got %d", len(cfg.Chain))
	}
	if cfg.Chain[0].Name != "dev" || cfg.Chain[2].Name != "prod" {
		t.Fatalf("unexpected chain order: %+v", cfg.Chain)
	}
	if cfg.Gates.FanOut != 4 {
		t.Errorf("expected default fan-out 4, got %d", cfg.Gates.FanOut)
	}
}

func TestSuccessor(t *testing.T) {
	cfg := New()
	next, ok := cfg.Successor("dev")
	if !ok || next.Name != "staging" {
		t.Fatalf("expected staging to follow dev, got %+v ok=%v", next, ok)
	}
	if _, ok := cfg.Successor("prod"); ok {
		t.Fatalf("prod should have no successor")
	}
	if _, ok := cfg.Successor("nonexistent"); ok {
		t.Fatalf("unknown environment should have no successor")
	}
}

func TestIsFirst(t *testing.T) {
	cfg := New()
	if !cfg.IsFirst("dev") {
		t.Errorf("expected dev to be first")
	}
	if cfg.IsFirst("staging") {
		t.Errorf("staging should not be first")
	}
}

func TestLoadFileMissingIsNotError(t *testing.T) {
	cfg, err := LoadFile("/nonexistent/path/floe.yaml")
	if err != nil {
		t.Fatalf("missing config file should not error: %v", err)
	}
	if len(cfg.Chain) != 3 {
		t.Fatalf("expected defaults to survive a missing file")
	}
}
