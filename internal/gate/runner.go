// Package gate implements the Gate Runner component (spec §4.3): concurrent
// evaluation of a declared set of gates against an artifact digest, with a
// bounded fan-out and a per-gate timeout, modeled on the teacher's
// DeepHealthChecker concurrent fan-out pattern.
package gate

import (
	"context"
	"sync"
	"time"

	"github.com/obsidian-owl/floe/internal/floe"
)

// Context is the input bound to every gate invocation.
type Context struct {
	ArtifactDigest floe.Digest
	ArtifactTag    string
	Environment    string
	Extra          map[string]interface{}
}

// Gate is a single pluggable gate implementation (spec §9 Polymorphism: the
// plugin registry is a simple map from kind to implementation).
type Gate interface {
	Kind() floe.GateKind
	Run(ctx context.Context, gctx Context) (floe.GateStatus, map[string]interface{})
}

// Runner executes a declared, ordered set of gates concurrently, bounded to
// a configurable fan-out, each under its own timeout.
type Runner struct {
	registry       map[floe.GateKind]Gate
	fanOut         int
	perGateTimeout time.Duration
}

// NewRunner constructs a Runner. fanOut and perGateTimeout default to 4 and
// 5 minutes respectively, matching spec §4.3's stated defaults.
func NewRunner(fanOut int, perGateTimeout time.Duration) *Runner {
	if fanOut <= 0 {
		fanOut = 4
	}
	if perGateTimeout <= 0 {
		perGateTimeout = 5 * time.Minute
	}
	return &Runner{
		registry:       make(map[floe.GateKind]Gate),
		fanOut:         fanOut,
		perGateTimeout: perGateTimeout,
	}
}

// Register adds a gate implementation to the plugin registry.
func (r *Runner) Register(g Gate) {
	r.registry[g.Kind()] = g
}

// RunAll executes the declared gate kinds (in the given order) concurrently,
// bounded to the runner's fan-out, and returns results in the same
// declaration order regardless of completion order (P5).
func (r *Runner) RunAll(ctx context.Context, declared []floe.GateKind, gctx Context) []floe.GateResult {
	results := make([]floe.GateResult, len(declared))
	sem := make(chan struct{}, r.fanOut)
	var wg sync.WaitGroup

	for i, kind := range declared {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, k floe.GateKind) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = r.runOne(ctx, k, gctx)
		}(i, kind)
	}
	wg.Wait()

	return results
}

func (r *Runner) runOne(ctx context.Context, kind floe.GateKind, gctx Context) floe.GateResult {
	impl, ok := r.registry[kind]
	if !ok {
		return floe.GateResult{
			Gate:    kind,
			Status:  floe.GateSkipped,
			Details: map[string]interface{}{"reason": "no implementation registered for gate"},
		}
	}

	gateCtx, cancel := context.WithTimeout(ctx, r.perGateTimeout)
	defer cancel()

	type outcome struct {
		status  floe.GateStatus
		details map[string]interface{}
	}
	done := make(chan outcome, 1)
	start := time.Now()

	go func() {
		status, details := impl.Run(gateCtx, gctx)
		done <- outcome{status: status, details: details}
	}()

	select {
	case o := <-done:
		return floe.GateResult{
			Gate:       kind,
			Status:     o.status,
			DurationMS: time.Since(start).Milliseconds(),
			Details:    o.details,
		}
	case <-gateCtx.Done():
		// Timeout: record failed with a timeout detail. The goroutine
		// running impl.Run is not canceled further than gateCtx allows it
		// to observe; sibling gates are unaffected (spec §4.3/§5).
		return floe.GateResult{
			Gate:       kind,
			Status:     floe.GateFailed,
			DurationMS: time.Since(start).Milliseconds(),
			Details:    map[string]interface{}{"reason": "gate timed out"},
		}
	}
}
