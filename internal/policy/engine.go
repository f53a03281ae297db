package policy

import (
	"time"

	"github.com/obsidian-owl/floe/internal/floe"
)

// EngineConfig configures the policy_compliance gate's three validators.
type EngineConfig struct {
	Naming           NamingConfig
	Custom           []CustomPolicy
	EnforcementLevel string // "off" | "warn" | "strict", applies to naming + semantic
}

// Engine runs the naming, semantic, and custom validators over a manifest
// and reduces their violations to a single PolicyResult.
type Engine struct {
	naming   *NamingValidator
	semantic *SemanticValidator
	custom   *CustomValidator
	level    string
}

// NewEngine constructs an Engine, compiling naming and custom policy
// configuration up front so a bad configuration fails at startup rather
// than mid-evaluation.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	namingCfg := cfg.Naming
	namingCfg.Enforcement = NamingEnforcement(cfg.EnforcementLevel)
	naming, err := NewNamingValidator(namingCfg)
	if err != nil {
		return nil, err
	}
	custom, err := NewCustomValidator(cfg.Custom)
	if err != nil {
		return nil, err
	}
	return &Engine{
		naming:   naming,
		semantic: NewSemanticValidator(),
		custom:   custom,
		level:    cfg.EnforcementLevel,
	}, nil
}

// Evaluate runs all three validators and computes the PolicyResult. Passed
// is false iff any error-severity violation is present while enforcement is
// strict, or any block-action violation is present regardless of
// enforcement level (per spec's action-to-severity mapping).
func (e *Engine) Evaluate(m Manifest) floe.PolicyResult {
	start := time.Now()

	var violations []floe.Violation
	violations = append(violations, e.naming.Validate(m)...)
	violations = append(violations, e.semantic.Validate(m)...)
	violations = append(violations, e.custom.Validate(m)...)

	passed := true
	for _, v := range violations {
		if v.Blocking {
			passed = false
			break
		}
		if v.Severity == floe.SeverityError && e.level == string(EnforcementStrict) {
			passed = false
			break
		}
	}

	return floe.PolicyResult{
		Passed:           passed,
		Violations:       violations,
		ManifestVersion:  m.Version,
		EnforcementLevel: e.level,
		DurationMS:       time.Since(start).Milliseconds(),
	}
}
