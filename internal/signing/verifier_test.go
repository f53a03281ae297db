package signing

import (
	"context"
	"testing"
	"time"

	"github.com/obsidian-owl/floe/internal/floeerr"
)

func TestTrustedPatternsGlobMatch(t *testing.T) {
	tp, err := NewTrustedPatterns([]string{"*@trusted-ci.example.com"})
	if err != nil {
		t.Fatalf("compile patterns: %v", err)
	}
	if !tp.Matches("builder@trusted-ci.example.com") {
		t.Errorf("expected glob match")
	}
	if tp.Matches("builder@untrusted.example.com") {
		t.Errorf("expected no match for untrusted identity")
	}
}

func TestRefLockSerializesAccess(t *testing.T) {
	lock := NewRefLock()
	ctx := context.Background()

	release, err := lock.Acquire(ctx, "oci://registry/repo@sha256:aaa", time.Second)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	_, err = lock.Acquire(ctx, "oci://registry/repo@sha256:aaa", 20*time.Millisecond)
	if !floeerr.Is(err, floeerr.CodeConcurrentSigning) {
		t.Fatalf("expected ConcurrentSigning while lock held, got %v", err)
	}

	release()

	release2, err := lock.Acquire(ctx, "oci://registry/repo@sha256:aaa", time.Second)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	release2()
}

func TestRefLockDifferentRefsIndependent(t *testing.T) {
	lock := NewRefLock()
	ctx := context.Background()

	releaseA, err := lock.Acquire(ctx, "ref-a", time.Second)
	if err != nil {
		t.Fatalf("acquire ref-a: %v", err)
	}
	defer releaseA()

	releaseB, err := lock.Acquire(ctx, "ref-b", time.Second)
	if err != nil {
		t.Fatalf("acquire ref-b should not block on ref-a: %v", err)
	}
	releaseB()
}
