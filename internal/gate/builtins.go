package gate

import (
	"context"

	"github.com/obsidian-owl/floe/internal/floe"
)

// FuncGate adapts a plain function to the Gate interface, for simple
// built-in gates that don't need their own type.
type FuncGate struct {
	kind floe.GateKind
	fn   func(ctx context.Context, gctx Context) (floe.GateStatus, map[string]interface{})
}

// NewFuncGate builds a Gate from a kind and a run function.
func NewFuncGate(kind floe.GateKind, fn func(ctx context.Context, gctx Context) (floe.GateStatus, map[string]interface{})) *FuncGate {
	return &FuncGate{kind: kind, fn: fn}
}

func (g *FuncGate) Kind() floe.GateKind { return g.kind }

func (g *FuncGate) Run(ctx context.Context, gctx Context) (floe.GateStatus, map[string]interface{}) {
	return g.fn(ctx, gctx)
}

var _ Gate = (*FuncGate)(nil)

// TestSuiteResult is the scripted outcome a `tests` gate implementation
// reports, typically sourced from an external CI run's exit status.
type TestSuiteResult struct {
	Passed    bool
	FailCount int
}

// NewTestsGate wraps a function returning the outcome of the artifact's
// associated test suite.
func NewTestsGate(run func(ctx context.Context, gctx Context) TestSuiteResult) *FuncGate {
	return NewFuncGate(floe.GateTests, func(ctx context.Context, gctx Context) (floe.GateStatus, map[string]interface{}) {
		result := run(ctx, gctx)
		if result.Passed {
			return floe.GatePassed, nil
		}
		return floe.GateFailed, map[string]interface{}{"fail_count": result.FailCount}
	})
}

// SecurityScanResult is the scripted outcome of a vulnerability scan.
type SecurityScanResult struct {
	CriticalCount int
	HighCount     int
}

// NewSecurityScanGate wraps a vulnerability scanner; any critical finding
// fails the gate, high findings warn.
func NewSecurityScanGate(scan func(ctx context.Context, gctx Context) SecurityScanResult) *FuncGate {
	return NewFuncGate(floe.GateSecurityScan, func(ctx context.Context, gctx Context) (floe.GateStatus, map[string]interface{}) {
		result := scan(ctx, gctx)
		details := map[string]interface{}{"critical": result.CriticalCount, "high": result.HighCount}
		if result.CriticalCount > 0 {
			return floe.GateFailed, details
		}
		if result.HighCount > 0 {
			return floe.GateWarning, details
		}
		return floe.GatePassed, details
	})
}

// CostAnalysisResult is the scripted outcome of a cost/budget check.
type CostAnalysisResult struct {
	ProjectedMonthlyUSD float64
	BudgetUSD           float64
}

// NewCostAnalysisGate fails when projected cost exceeds budget, warns when it
// is above 90% of budget.
func NewCostAnalysisGate(analyze func(ctx context.Context, gctx Context) CostAnalysisResult) *FuncGate {
	return NewFuncGate(floe.GateCostAnalysis, func(ctx context.Context, gctx Context) (floe.GateStatus, map[string]interface{}) {
		result := analyze(ctx, gctx)
		details := map[string]interface{}{"projected_monthly_usd": result.ProjectedMonthlyUSD, "budget_usd": result.BudgetUSD}
		switch {
		case result.BudgetUSD > 0 && result.ProjectedMonthlyUSD > result.BudgetUSD:
			return floe.GateFailed, details
		case result.BudgetUSD > 0 && result.ProjectedMonthlyUSD > 0.9*result.BudgetUSD:
			return floe.GateWarning, details
		default:
			return floe.GatePassed, details
		}
	})
}

// PerformanceBaselineResult is the scripted outcome of a perf regression check.
type PerformanceBaselineResult struct {
	RegressionPercent float64
}

// NewPerformanceBaselineGate fails above a 20% regression, warns above 5%.
func NewPerformanceBaselineGate(measure func(ctx context.Context, gctx Context) PerformanceBaselineResult) *FuncGate {
	return NewFuncGate(floe.GatePerformanceBaseline, func(ctx context.Context, gctx Context) (floe.GateStatus, map[string]interface{}) {
		result := measure(ctx, gctx)
		details := map[string]interface{}{"regression_percent": result.RegressionPercent}
		switch {
		case result.RegressionPercent > 20:
			return floe.GateFailed, details
		case result.RegressionPercent > 5:
			return floe.GateWarning, details
		default:
			return floe.GatePassed, details
		}
	})
}
