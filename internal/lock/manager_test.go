package lock

import (
	"context"
	"testing"
	"time"

	"github.com/obsidian-owl/floe/internal/floeerr"
	"github.com/obsidian-owl/floe/internal/registry"
)

func TestIsLockedWhenNeverLocked(t *testing.T) {
	m := NewManager(registry.NewFakeAdapter())
	l, err := m.IsLocked(context.Background(), "prod")
	if err != nil {
		t.Fatal(err)
	}
	if l != nil {
		t.Fatalf("expected nil lock, got %v", l)
	}
}

func TestLockThenIsLocked(t *testing.T) {
	m := NewManager(registry.NewFakeAdapter())
	ctx := context.Background()
	_, err := m.Lock(ctx, "prod", "release freeze", "alice", time.Hour, false)
	if err != nil {
		t.Fatal(err)
	}
	l, err := m.IsLocked(ctx, "prod")
	if err != nil {
		t.Fatal(err)
	}
	if l == nil || !l.Locked || l.LockedBy != "alice" {
		t.Fatalf("unexpected lock state: %v", l)
	}
}

func TestLockByDifferentOperatorFailsWithoutForce(t *testing.T) {
	m := NewManager(registry.NewFakeAdapter())
	ctx := context.Background()
	if _, err := m.Lock(ctx, "prod", "freeze", "alice", time.Hour, false); err != nil {
		t.Fatal(err)
	}
	_, err := m.Lock(ctx, "prod", "override", "bob", time.Hour, false)
	if !floeerr.Is(err, floeerr.CodeEnvironmentLocked) {
		t.Fatalf("expected EnvironmentLocked, got %v", err)
	}
}

func TestLockByDifferentOperatorSucceedsWithForce(t *testing.T) {
	m := NewManager(registry.NewFakeAdapter())
	ctx := context.Background()
	if _, err := m.Lock(ctx, "prod", "freeze", "alice", time.Hour, false); err != nil {
		t.Fatal(err)
	}
	l, err := m.Lock(ctx, "prod", "override", "bob", time.Hour, true)
	if err != nil {
		t.Fatal(err)
	}
	if l.LockedBy != "bob" {
		t.Fatalf("expected lock to transfer to bob, got %v", l)
	}
}

func TestExpiredLockReadsAsUnlocked(t *testing.T) {
	m := NewManager(registry.NewFakeAdapter())
	ctx := context.Background()
	if _, err := m.Lock(ctx, "staging", "short freeze", "alice", time.Millisecond, false); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	l, err := m.IsLocked(ctx, "staging")
	if err != nil {
		t.Fatal(err)
	}
	if l == nil || l.Locked {
		t.Fatalf("expected expired lock to read as unlocked, got %v", l)
	}
}

func TestUnlockByOwner(t *testing.T) {
	m := NewManager(registry.NewFakeAdapter())
	ctx := context.Background()
	if _, err := m.Lock(ctx, "prod", "freeze", "alice", 0, false); err != nil {
		t.Fatal(err)
	}
	if err := m.Unlock(ctx, "prod", "alice", false); err != nil {
		t.Fatal(err)
	}
	l, err := m.IsLocked(ctx, "prod")
	if err != nil {
		t.Fatal(err)
	}
	if l == nil || l.Locked {
		t.Fatalf("expected unlocked, got %v", l)
	}
}

func TestUnlockByOtherOperatorFailsWithoutForce(t *testing.T) {
	m := NewManager(registry.NewFakeAdapter())
	ctx := context.Background()
	if _, err := m.Lock(ctx, "prod", "freeze", "alice", 0, false); err != nil {
		t.Fatal(err)
	}
	err := m.Unlock(ctx, "prod", "bob", false)
	if !floeerr.Is(err, floeerr.CodeEnvironmentLocked) {
		t.Fatalf("expected EnvironmentLocked, got %v", err)
	}
}
