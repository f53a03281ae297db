package policy

import "testing"

func TestEngineStrictFailsOnErrorViolation(t *testing.T) {
	e, err := NewEngine(EngineConfig{
		Naming:           NamingConfig{Pattern: "medallion"},
		EnforcementLevel: "strict",
	})
	if err != nil {
		t.Fatal(err)
	}
	result := e.Evaluate(manifestWithModels("not_conforming"))
	if result.Passed {
		t.Fatal("expected strict enforcement with an error violation to fail")
	}
}

func TestEngineWarnDoesNotFailGate(t *testing.T) {
	e, err := NewEngine(EngineConfig{
		Naming:           NamingConfig{Pattern: "medallion"},
		EnforcementLevel: "warn",
	})
	if err != nil {
		t.Fatal(err)
	}
	result := e.Evaluate(manifestWithModels("not_conforming"))
	if !result.Passed {
		t.Fatal("expected warn enforcement to not fail the gate on a warning-severity violation")
	}
}

func TestEngineBlockAlwaysFailsRegardlessOfEnforcementLevel(t *testing.T) {
	e, err := NewEngine(EngineConfig{
		Naming:           NamingConfig{Pattern: "off"},
		EnforcementLevel: "warn",
		Custom: []CustomPolicy{{
			Name: "cap", Kind: "max_transforms", Action: ActionBlock, Threshold: 0,
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	result := e.Evaluate(manifestWithModels("a"))
	if result.Passed {
		t.Fatal("expected block-action violation to fail the gate regardless of enforcement level")
	}
}

func TestEngineCleanManifestPasses(t *testing.T) {
	e, err := NewEngine(EngineConfig{
		Naming:           NamingConfig{Pattern: "medallion"},
		EnforcementLevel: "strict",
	})
	if err != nil {
		t.Fatal(err)
	}
	result := e.Evaluate(manifestWithModels("bronze_raw", "silver_clean", "gold_mart"))
	if !result.Passed {
		t.Fatalf("expected clean manifest to pass, got violations: %v", result.Violations)
	}
	if result.DurationMS < 0 {
		t.Errorf("expected non-negative duration")
	}
}
