package gate

import (
	"context"

	"github.com/obsidian-owl/floe/internal/floe"
	"github.com/obsidian-owl/floe/internal/policy"
)

// PolicyGate adapts the policy enforcement engine into the Gate interface:
// the `policy_compliance` gate named throughout spec §4.4.
type PolicyGate struct {
	engine *policy.Engine
}

// NewPolicyGate constructs a PolicyGate over the given engine.
func NewPolicyGate(engine *policy.Engine) *PolicyGate {
	return &PolicyGate{engine: engine}
}

func (g *PolicyGate) Kind() floe.GateKind { return floe.GatePolicyCompliance }

// Run expects the compiled manifest under gctx.Extra["manifest"]. A missing
// manifest fails the gate rather than skipping it: policy compliance cannot
// be assessed without one.
func (g *PolicyGate) Run(ctx context.Context, gctx Context) (floe.GateStatus, map[string]interface{}) {
	manifest, ok := gctx.Extra["manifest"].(policy.Manifest)
	if !ok {
		return floe.GateFailed, map[string]interface{}{"reason": "no compiled manifest provided for policy evaluation"}
	}

	result := g.engine.Evaluate(manifest)
	details := map[string]interface{}{
		"violations":        result.Violations,
		"manifest_version":  result.ManifestVersion,
		"enforcement_level":  result.EnforcementLevel,
		"duration_ms":       result.DurationMS,
	}
	if result.Passed {
		return floe.GatePassed, details
	}
	return floe.GateFailed, details
}
