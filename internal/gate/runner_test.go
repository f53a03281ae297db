package gate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/obsidian-owl/floe/internal/floe"
)

func TestRunAllPreservesDeclarationOrder(t *testing.T) {
	r := NewRunner(4, time.Second)
	r.Register(NewFuncGate(floe.GateTests, func(ctx context.Context, gctx Context) (floe.GateStatus, map[string]interface{}) {
		time.Sleep(30 * time.Millisecond)
		return floe.GatePassed, nil
	}))
	r.Register(NewFuncGate(floe.GateSecurityScan, func(ctx context.Context, gctx Context) (floe.GateStatus, map[string]interface{}) {
		return floe.GatePassed, nil
	}))
	r.Register(NewFuncGate(floe.GateCostAnalysis, func(ctx context.Context, gctx Context) (floe.GateStatus, map[string]interface{}) {
		return floe.GatePassed, nil
	}))

	declared := []floe.GateKind{floe.GateTests, floe.GateSecurityScan, floe.GateCostAnalysis}
	results := r.RunAll(context.Background(), declared, Context{})

	for i, want := range declared {
		if results[i].Gate != want {
			t.Fatalf("result[%d].Gate = %q, want %q (order not preserved)", i, results[i].Gate, want)
		}
	}
}

func TestGateTimeoutRecordsFailedWithoutCancelingSiblings(t *testing.T) {
	r := NewRunner(2, 20*time.Millisecond)
	siblingRan := make(chan struct{}, 1)

	r.Register(NewFuncGate(floe.GateTests, func(ctx context.Context, gctx Context) (floe.GateStatus, map[string]interface{}) {
		<-ctx.Done()
		return floe.GateFailed, nil
	}))
	r.Register(NewFuncGate(floe.GateSecurityScan, func(ctx context.Context, gctx Context) (floe.GateStatus, map[string]interface{}) {
		siblingRan <- struct{}{}
		return floe.GatePassed, nil
	}))

	declared := []floe.GateKind{floe.GateTests, floe.GateSecurityScan}
	results := r.RunAll(context.Background(), declared, Context{})

	if results[0].Status != floe.GateFailed {
		t.Errorf("expected timed-out gate to be failed, got %q", results[0].Status)
	}
	if results[1].Status != floe.GatePassed {
		t.Errorf("sibling gate should complete unaffected, got %q", results[1].Status)
	}
	select {
	case <-siblingRan:
	default:
		t.Errorf("sibling gate never ran")
	}
}

func TestUnregisteredGateIsSkipped(t *testing.T) {
	r := NewRunner(4, time.Second)
	results := r.RunAll(context.Background(), []floe.GateKind{floe.GatePolicyCompliance}, Context{})
	if results[0].Status != floe.GateSkipped {
		t.Fatalf("expected skipped for unregistered gate, got %q", results[0].Status)
	}
}

func TestFanOutBound(t *testing.T) {
	r := NewRunner(2, time.Second)
	var mu sync.Mutex
	active, maxActive := 0, 0

	declared := make([]floe.GateKind, 0, 6)
	for i := 0; i < 6; i++ {
		kind := floe.GateKind("gate" + string(rune('a'+i)))
		declared = append(declared, kind)
		r.Register(NewFuncGate(kind, func(ctx context.Context, gctx Context) (floe.GateStatus, map[string]interface{}) {
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(15 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			return floe.GatePassed, nil
		}))
	}

	r.RunAll(context.Background(), declared, Context{})

	if maxActive > 2 {
		t.Fatalf("fan-out exceeded bound: max concurrent = %d, want <= 2", maxActive)
	}
}
