package policy

import (
	"testing"
)

func TestValidateRefsMissingModel(t *testing.T) {
	m := Manifest{
		Nodes: map[string]Node{
			"model.proj.orders": {ResourceType: "model", Name: "orders", DependsOn: []string{"model.proj.missing"}},
		},
		Sources: map[string]SourceNode{},
	}
	v := NewSemanticValidator()
	violations := v.Validate(m)
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %d: %v", len(violations), violations)
	}
	if violations[0].ErrorCode != "FLOE-E301" {
		t.Errorf("expected FLOE-E301, got %q", violations[0].ErrorCode)
	}
}

func TestValidateSourcesMissingSourceExtractsNameAndTable(t *testing.T) {
	m := Manifest{
		Nodes: map[string]Node{
			"model.proj.orders": {ResourceType: "model", Name: "orders", DependsOn: []string{"source.proj.raw.orders"}},
		},
		Sources: map[string]SourceNode{},
	}
	v := NewSemanticValidator()
	violations := v.Validate(m)
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %d: %v", len(violations), violations)
	}
	got := violations[0]
	if got.ErrorCode != "FLOE-E303" {
		t.Fatalf("expected FLOE-E303, got %q", got.ErrorCode)
	}
	if got.Suggestion != "declare source 'raw.orders' in the sources configuration" {
		t.Errorf("unexpected suggestion: %q", got.Suggestion)
	}
}

func TestValidateSourcesPresentProducesNoViolation(t *testing.T) {
	m := Manifest{
		Nodes: map[string]Node{
			"model.proj.orders": {ResourceType: "model", Name: "orders", DependsOn: []string{"source.proj.raw.orders"}},
		},
		Sources: map[string]SourceNode{
			"source.proj.raw.orders": {SourceName: "raw", TableName: "orders"},
		},
	}
	v := NewSemanticValidator()
	if got := v.Validate(m); len(got) != 0 {
		t.Fatalf("expected no violations, got %v", got)
	}
}

func TestDetectCircularDepsSimpleCycle(t *testing.T) {
	m := Manifest{
		Nodes: map[string]Node{
			"model.proj.a": {ResourceType: "model", Name: "a", DependsOn: []string{"model.proj.b"}},
			"model.proj.b": {ResourceType: "model", Name: "b", DependsOn: []string{"model.proj.a"}},
		},
		Sources: map[string]SourceNode{},
	}
	v := NewSemanticValidator()
	violations := v.Validate(m)
	var cycle []string
	for _, vi := range violations {
		if vi.ErrorCode == "FLOE-E302" {
			cycle = append(cycle, vi.Message)
		}
	}
	if len(cycle) != 1 {
		t.Fatalf("expected exactly one cycle violation, got %d: %v", len(cycle), violations)
	}
}

func TestDetectCircularDepsDeterministic(t *testing.T) {
	m := Manifest{
		Nodes: map[string]Node{
			"model.proj.a": {ResourceType: "model", Name: "a", DependsOn: []string{"model.proj.b"}},
			"model.proj.b": {ResourceType: "model", Name: "b", DependsOn: []string{"model.proj.a"}},
		},
		Sources: map[string]SourceNode{},
	}
	v := NewSemanticValidator()
	first := v.Validate(m)
	second := v.Validate(m)
	if len(first) != len(second) {
		t.Fatalf("non-deterministic violation count: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Message != second[i].Message {
			t.Fatalf("non-deterministic message: %q vs %q", first[i].Message, second[i].Message)
		}
	}
}

func TestDetectCircularDepsAcyclicGraphProducesNoViolation(t *testing.T) {
	m := Manifest{
		Nodes: map[string]Node{
			"model.proj.a": {ResourceType: "model", Name: "a", DependsOn: nil},
			"model.proj.b": {ResourceType: "model", Name: "b", DependsOn: []string{"model.proj.a"}},
			"model.proj.c": {ResourceType: "model", Name: "c", DependsOn: []string{"model.proj.b"}},
		},
		Sources: map[string]SourceNode{},
	}
	v := NewSemanticValidator()
	for _, vi := range v.Validate(m) {
		if vi.ErrorCode == "FLOE-E302" {
			t.Fatalf("unexpected cycle violation on acyclic graph: %v", vi)
		}
	}
}
