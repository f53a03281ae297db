package policy

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/obsidian-owl/floe/internal/floe"
)

// NamingEnforcement controls how naming violations are reported.
type NamingEnforcement string

const (
	EnforcementOff    NamingEnforcement = "off"
	EnforcementWarn   NamingEnforcement = "warn"
	EnforcementStrict NamingEnforcement = "strict"
)

// NamingConfig configures the naming validator (spec §4.4).
type NamingConfig struct {
	Pattern        string // "medallion" | "kimball" | "custom"
	CustomPatterns []string
	Enforcement    NamingEnforcement
}

var (
	medallionPrefixes = []string{"bronze_", "silver_", "gold_"}
	kimballPrefixes   = []string{"stg_", "int_", "fct_", "dim_"}
)

// NamingValidator enforces that every model name matches one of the
// configured naming conventions.
type NamingValidator struct {
	cfg     NamingConfig
	custom  []*regexp.Regexp
	invalid error
}

// NewNamingValidator compiles the validator's custom patterns, if any.
func NewNamingValidator(cfg NamingConfig) (*NamingValidator, error) {
	v := &NamingValidator{cfg: cfg}
	if cfg.Pattern == "custom" {
		if len(cfg.CustomPatterns) == 0 {
			return nil, fmt.Errorf("naming pattern %q requires custom_patterns to be set", cfg.Pattern)
		}
		for _, p := range cfg.CustomPatterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("compile custom naming pattern %q: %w", p, err)
			}
			v.custom = append(v.custom, re)
		}
	}
	return v, nil
}

// Validate checks every model node's name against the configured
// convention, returning violations in a deterministic (sorted by node id)
// order.
func (v *NamingValidator) Validate(m Manifest) []floe.Violation {
	if v.cfg.Enforcement == EnforcementOff || v.cfg.Enforcement == "" {
		return nil
	}

	severity := floe.SeverityWarning
	if v.cfg.Enforcement == EnforcementStrict {
		severity = floe.SeverityError
	}

	ids := sortedKeys(m.Models())
	var violations []floe.Violation
	for _, id := range ids {
		node := m.Nodes[id]
		if v.matches(node.Name) {
			continue
		}
		violations = append(violations, floe.Violation{
			ErrorCode:  "naming-convention",
			Severity:   severity,
			PolicyType: "naming",
			ModelName:  node.Name,
			Message:    fmt.Sprintf("model %q does not match the %s naming convention", node.Name, v.cfg.Pattern),
			Expected:   v.expectedDescription(),
			Actual:     node.Name,
			Suggestion: v.suggestion(node.Name),
		})
	}
	return violations
}

func (v *NamingValidator) matches(name string) bool {
	switch v.cfg.Pattern {
	case "medallion":
		return hasAnyPrefix(name, medallionPrefixes)
	case "kimball":
		return hasAnyPrefix(name, kimballPrefixes)
	case "custom":
		for _, re := range v.custom {
			if re.MatchString(name) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

func (v *NamingValidator) expectedDescription() string {
	switch v.cfg.Pattern {
	case "medallion":
		return "prefix in {bronze_, silver_, gold_}"
	case "kimball":
		return "prefix in {stg_, int_, fct_, dim_}"
	case "custom":
		return "match one of: " + strings.Join(v.cfg.CustomPatterns, ", ")
	default:
		return ""
	}
}

func (v *NamingValidator) suggestion(name string) string {
	switch v.cfg.Pattern {
	case "medallion":
		return "rename with a bronze_/silver_/gold_ prefix"
	case "kimball":
		return "rename with a stg_/int_/fct_/dim_ prefix"
	default:
		return "rename to match a configured custom pattern"
	}
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]Node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
