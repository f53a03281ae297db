package policy

import (
	"fmt"
	"strings"

	"github.com/obsidian-owl/floe/internal/floe"
)

// SemanticValidator implements reference resolution, source resolution, and
// cycle detection, ported from the Python original's
// floe_core/enforcement/validators/semantic.py to preserve its exact
// violation shapes and cycle-detection algorithm (Kahn's algorithm plus a
// bounded DFS fallback).
type SemanticValidator struct{}

// NewSemanticValidator constructs a SemanticValidator. It carries no
// configuration: every check it runs is unconditional per spec §4.4.
func NewSemanticValidator() *SemanticValidator {
	return &SemanticValidator{}
}

// Validate runs all three semantic checks and concatenates their
// violations: reference resolution, source resolution, then cycle
// detection, each in node-id sorted order for determinism (P4).
func (v *SemanticValidator) Validate(m Manifest) []floe.Violation {
	var out []floe.Violation
	out = append(out, v.validateRefs(m)...)
	out = append(out, v.validateSources(m)...)
	out = append(out, v.detectCircularDeps(m)...)
	return out
}

// validateRefs implements FLOE-E301: every non-source-prefixed dependency id
// of a model must exist in the nodes map.
func (v *SemanticValidator) validateRefs(m Manifest) []floe.Violation {
	var violations []floe.Violation
	for _, id := range sortedKeys(m.Models()) {
		node := m.Nodes[id]
		for _, dep := range node.DependsOn {
			if strings.HasPrefix(dep, "source.") {
				continue
			}
			if _, ok := m.Nodes[dep]; !ok {
				violations = append(violations, v.missingRefViolation(node.Name, dep))
			}
		}
	}
	return violations
}

func (v *SemanticValidator) missingRefViolation(modelName, missingRef string) floe.Violation {
	return floe.Violation{
		ErrorCode:        "FLOE-E301",
		Severity:         floe.SeverityError,
		PolicyType:       "semantic",
		ModelName:        modelName,
		Message:          fmt.Sprintf("Model '%s' references non-existent model '%s'", modelName, missingRef),
		Expected:         "a model id present in the compiled manifest",
		Actual:           missingRef,
		Suggestion:       "check for a typo in the ref() call or a missing upstream model",
		DocumentationURL: "https://docs.floe.dev/errors/FLOE-E301",
	}
}

// validateSources implements FLOE-E303: every source.-prefixed dependency
// id must exist in the sources map. source_name/table_name are extracted
// from the id's dotted segments the same way the Python original does:
// parts[2]/parts[3] when there are at least 4 segments, else the last two
// segments.
func (v *SemanticValidator) validateSources(m Manifest) []floe.Violation {
	var violations []floe.Violation
	for _, id := range sortedKeys(m.Models()) {
		node := m.Nodes[id]
		for _, dep := range node.DependsOn {
			if !strings.HasPrefix(dep, "source.") {
				continue
			}
			if _, ok := m.Sources[dep]; ok {
				continue
			}
			sourceName, tableName := extractSourceInfo(dep)
			violations = append(violations, floe.Violation{
				ErrorCode:        "FLOE-E303",
				Severity:         floe.SeverityError,
				PolicyType:       "semantic",
				ModelName:        node.Name,
				Message:          fmt.Sprintf("Model '%s' references non-existent source '%s'", node.Name, dep),
				Expected:         "a declared source table",
				Actual:           dep,
				Suggestion:       fmt.Sprintf("declare source '%s.%s' in the sources configuration", sourceName, tableName),
				DocumentationURL: "https://docs.floe.dev/errors/FLOE-E303",
			})
		}
	}
	return violations
}

func extractSourceInfo(uniqueID string) (sourceName, tableName string) {
	parts := strings.Split(uniqueID, ".")
	if len(parts) >= 4 {
		return parts[2], parts[3]
	}
	if len(parts) >= 2 {
		return parts[len(parts)-2], parts[len(parts)-1]
	}
	return "", ""
}

// detectCircularDeps implements FLOE-E302: build a directed graph over model
// nodes using only intra-model dependencies, run Kahn's algorithm, and if
// the topological sort fails to drain all nodes, extract one concrete cycle
// via a bounded DFS.
func (v *SemanticValidator) detectCircularDeps(m Manifest) []floe.Violation {
	models := m.Models()
	modelIDs := sortedKeys(models)

	adjacency := make(map[string][]string, len(modelIDs))
	inDegree := make(map[string]int, len(modelIDs))
	for _, id := range modelIDs {
		inDegree[id] = 0
	}
	for _, id := range modelIDs {
		for _, dep := range models[id].DependsOn {
			if _, isModel := models[dep]; !isModel {
				continue
			}
			adjacency[dep] = append(adjacency[dep], id)
			inDegree[id]++
		}
	}

	queue := make([]string, 0, len(modelIDs))
	for _, id := range modelIDs {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	remaining := make(map[string]int, len(inDegree))
	for k, val := range inDegree {
		remaining[k] = val
	}

	sortedCount := 0
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		sortedCount++

		next := adjacency[node]
		for _, dependent := range next {
			remaining[dependent]--
			if remaining[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if sortedCount >= len(modelIDs) {
		return nil
	}

	var cycleNodes []string
	for _, id := range modelIDs {
		if remaining[id] > 0 {
			cycleNodes = append(cycleNodes, id)
		}
	}

	path := findCyclePath(cycleNodes, models)
	names := make([]string, 0, len(path))
	for _, id := range path {
		names = append(names, modelShortName(models[id].Name, id))
	}

	return []floe.Violation{{
		ErrorCode:        "FLOE-E302",
		Severity:         floe.SeverityError,
		PolicyType:       "semantic",
		ModelName:        strings.Join(names, ", "),
		Message:          fmt.Sprintf("Circular dependency detected: %s", strings.Join(names, " -> ")),
		Expected:         "a directed acyclic dependency graph",
		Actual:           strings.Join(names, " -> "),
		Suggestion:       "break the cycle by removing or inverting one of the listed dependencies",
		DocumentationURL: "https://docs.floe.dev/errors/FLOE-E302",
	}}
}

// findCyclePath performs a bounded DFS over the remaining cycle nodes to
// extract one concrete cycle, falling back to the first 5 cycle nodes (in
// sorted order) if a tight cycle cannot be isolated — mirroring the Python
// original's fallback behavior exactly.
func findCyclePath(cycleNodes []string, models map[string]Node) []string {
	cycleSet := make(map[string]bool, len(cycleNodes))
	for _, id := range cycleNodes {
		cycleSet[id] = true
	}

	for _, start := range cycleNodes {
		visited := make(map[string]bool)
		path := []string{start}
		if p, ok := dfsFindCycle(start, start, models, cycleSet, visited, path); ok {
			return p
		}
	}

	limit := 5
	if len(cycleNodes) < limit {
		limit = len(cycleNodes)
	}
	return append([]string(nil), cycleNodes[:limit]...)
}

// dfsFindCycle walks forward edges (node depends on another cycle node) and
// reports the first closed path back to start.
func dfsFindCycle(start, current string, models map[string]Node, cycleSet, visited map[string]bool, path []string) ([]string, bool) {
	visited[current] = true

	for _, candidateID := range sortedDependents(current, models, cycleSet) {
		if candidateID == start && len(path) > 1 {
			return path, true
		}
		if visited[candidateID] {
			continue
		}
		nextPath := append(append([]string(nil), path...), candidateID)
		if p, ok := dfsFindCycle(start, candidateID, models, cycleSet, visited, nextPath); ok {
			return p, true
		}
	}
	return nil, false
}

// sortedDependents returns, in sorted order, the cycle-set nodes that
// depend on `node` (i.e. `node` is in their DependsOn) — the reverse
// adjacency lookup the Python original performs by scanning all node ids.
func sortedDependents(node string, models map[string]Node, cycleSet map[string]bool) []string {
	var out []string
	for _, id := range sortedKeysFromSet(cycleSet) {
		if id == node {
			continue
		}
		for _, dep := range models[id].DependsOn {
			if dep == node {
				out = append(out, id)
				break
			}
		}
	}
	return out
}

func sortedKeysFromSet(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	// simple insertion sort keeps this deterministic without importing sort
	// twice for a tiny slice; correctness matters more than micro-perf here.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

// modelShortName returns the node's declared Name if set, else the last
// dot-separated segment of its unique id, mirroring _extract_model_name.
func modelShortName(name, uniqueID string) string {
	if name != "" {
		return name
	}
	parts := strings.Split(uniqueID, ".")
	return parts[len(parts)-1]
}
