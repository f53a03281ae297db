package policy

import (
	"fmt"
	"regexp"

	"github.com/obsidian-owl/floe/internal/expr"
	"github.com/obsidian-owl/floe/internal/floe"
)

// PolicyAction is the configured response to a custom policy violation.
type PolicyAction string

const (
	ActionWarn  PolicyAction = "warn"
	ActionError PolicyAction = "error"
	ActionBlock PolicyAction = "block"
)

// severity maps a configured action to the violation severity it produces.
// block and error both surface as error severity; the distinction between
// them is carried by the violation's Blocking flag, which the engine reads
// when computing PolicyResult.Passed.
func (a PolicyAction) severity() floe.Severity {
	if a == ActionWarn {
		return floe.SeverityWarning
	}
	return floe.SeverityError
}

// CustomPolicy is one user-configured policy of kind required_tags,
// naming_convention, max_transforms, or custom.
type CustomPolicy struct {
	Name      string
	Kind      string // "required_tags" | "naming_convention" | "max_transforms" | "custom"
	Action    PolicyAction
	Message   string
	Required  []string // required_tags
	Pattern   string   // naming_convention
	Threshold int      // max_transforms
	Condition string   // custom
}

// CustomValidator evaluates a list of configured CustomPolicy definitions
// against a manifest.
type CustomValidator struct {
	policies []CustomPolicy
}

// NewCustomValidator constructs a validator for the given policy
// definitions, compiling any naming_convention regexes up front.
func NewCustomValidator(policies []CustomPolicy) (*CustomValidator, error) {
	for _, p := range policies {
		if p.Kind == "naming_convention" && p.Pattern == "" {
			return nil, fmt.Errorf("policy %q: naming_convention requires a pattern", p.Name)
		}
		if p.Kind == "naming_convention" {
			if _, err := regexp.Compile(p.Pattern); err != nil {
				return nil, fmt.Errorf("policy %q: compile naming_convention pattern: %w", p.Name, err)
			}
		}
	}
	return &CustomValidator{policies: policies}, nil
}

func (v *CustomValidator) Validate(m Manifest) []floe.Violation {
	var out []floe.Violation
	for _, p := range v.policies {
		switch p.Kind {
		case "required_tags":
			out = append(out, v.checkRequiredTags(p, m)...)
		case "naming_convention":
			out = append(out, v.checkNamingConvention(p, m)...)
		case "max_transforms":
			out = append(out, v.checkMaxTransforms(p, m)...)
		case "custom":
			out = append(out, v.checkCustomCondition(p, m)...)
		}
	}
	return out
}

func (v *CustomValidator) checkRequiredTags(p CustomPolicy, m Manifest) []floe.Violation {
	var out []floe.Violation
	for _, id := range sortedKeys(m.Models()) {
		node := m.Nodes[id]
		present := make(map[string]bool, len(node.Tags))
		for _, t := range node.Tags {
			present[t] = true
		}
		var missing []string
		for _, req := range p.Required {
			if !present[req] {
				missing = append(missing, req)
			}
		}
		if len(missing) == 0 {
			continue
		}
		out = append(out, floe.Violation{
			ErrorCode:  "required-tags",
			Severity:   p.Action.severity(),
			PolicyType: "custom",
			ModelName:  node.Name,
			Message:    fmt.Sprintf("policy %q: model %q is missing required tags %v", p.Name, node.Name, missing),
			Expected:   fmt.Sprintf("tags including %v", p.Required),
			Actual:     fmt.Sprintf("%v", node.Tags),
			Blocking:   p.Action == ActionBlock,
		})
	}
	return out
}

func (v *CustomValidator) checkNamingConvention(p CustomPolicy, m Manifest) []floe.Violation {
	nv, err := NewNamingValidator(NamingConfig{
		Pattern:        "custom",
		CustomPatterns: []string{p.Pattern},
		Enforcement:    namingEnforcementFor(p.Action),
	})
	if err != nil {
		return []floe.Violation{{
			ErrorCode:  "policy-config-error",
			Severity:   floe.SeverityWarning,
			PolicyType: "custom",
			Message:    fmt.Sprintf("policy %q failed to configure: %v", p.Name, err),
		}}
	}
	violations := nv.Validate(m)
	for i := range violations {
		violations[i].Message = fmt.Sprintf("policy %q: %s", p.Name, violations[i].Message)
		violations[i].Blocking = p.Action == ActionBlock
	}
	return violations
}

func namingEnforcementFor(a PolicyAction) NamingEnforcement {
	if a == ActionWarn {
		return EnforcementWarn
	}
	return EnforcementStrict
}

func (v *CustomValidator) checkMaxTransforms(p CustomPolicy, m Manifest) []floe.Violation {
	count := len(m.Models())
	if count <= p.Threshold {
		return nil
	}
	return []floe.Violation{{
		ErrorCode:  "max-transforms",
		Severity:   p.Action.severity(),
		PolicyType: "custom",
		Message:    fmt.Sprintf("policy %q: model count %d exceeds threshold %d", p.Name, count, p.Threshold),
		Expected:   fmt.Sprintf("at most %d models", p.Threshold),
		Actual:     fmt.Sprintf("%d models", count),
		Blocking:   p.Action == ActionBlock,
	}}
}

// checkCustomCondition evaluates p.Condition against each model through the
// sandboxed expr interpreter. A false result is a policy violation at the
// configured action's severity; an evaluation error always becomes a
// warning, regardless of the configured action, per spec.
func (v *CustomValidator) checkCustomCondition(p CustomPolicy, m Manifest) []floe.Violation {
	var out []floe.Violation
	for _, id := range sortedKeys(m.Models()) {
		node := m.Nodes[id]
		binding := expr.Binding{"model": map[string]interface{}{
			"name":    node.Name,
			"tags":    toInterfaceSlice(node.Tags),
			"meta":    node.Meta,
			"columns": toInterfaceSlice(node.Columns),
		}}
		ok, err := expr.EvalBool(p.Condition, binding)
		if err != nil {
			out = append(out, floe.Violation{
				ErrorCode:  "custom-condition-error",
				Severity:   floe.SeverityWarning,
				PolicyType: "custom",
				ModelName:  node.Name,
				Message:    fmt.Sprintf("policy %q failed to evaluate for model %q: %v", p.Name, node.Name, err),
			})
			continue
		}
		if ok {
			continue
		}
		msg := p.Message
		if msg == "" {
			msg = fmt.Sprintf("condition %q did not hold", p.Condition)
		}
		out = append(out, floe.Violation{
			ErrorCode:  "custom-condition",
			Severity:   p.Action.severity(),
			PolicyType: "custom",
			ModelName:  node.Name,
			Message:    fmt.Sprintf("policy %q: %s", p.Name, msg),
			Blocking:   p.Action == ActionBlock,
		})
	}
	return out
}

func toInterfaceSlice(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
