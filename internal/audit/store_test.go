package audit

import (
	"context"
	"testing"
	"time"

	"github.com/obsidian-owl/floe/internal/floe"
	"github.com/obsidian-owl/floe/internal/registry"
)

func TestWriteAndReadPromotionRoundTrip(t *testing.T) {
	adapter := registry.NewFakeAdapter()
	adapter.Seed("v1.0.0-staging", floe.Digest("sha256:"+fixedHex('a')))
	s := NewStore(adapter)

	rec := floe.PromotionRecord{
		PromotionID:    "promo-1",
		ArtifactDigest: floe.Digest("sha256:" + fixedHex('a')),
		ArtifactTag:    "v1.0.0",
		SourceEnv:      "dev",
		TargetEnv:      "staging",
		Operator:       "alice",
		PromotedAt:     time.Now(),
		TraceID:        "trace-1",
	}
	if err := s.WritePromotion(context.Background(), "v1.0.0-staging", rec); err != nil {
		t.Fatal(err)
	}

	got, err := s.ReadPromotion(context.Background(), "v1.0.0-staging")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.PromotionID != "promo-1" || got.Operator != "alice" {
		t.Fatalf("unexpected record: %v", got)
	}
}

func TestReadPromotionMissingReturnsNil(t *testing.T) {
	adapter := registry.NewFakeAdapter()
	adapter.Seed("v1.0.0-staging", floe.Digest("sha256:"+fixedHex('a')))
	s := NewStore(adapter)

	got, err := s.ReadPromotion(context.Background(), "v1.0.0-staging")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestWriteAndReadRollbackRoundTrip(t *testing.T) {
	adapter := registry.NewFakeAdapter()
	adapter.Seed("v1.0.0-staging-rollback-1", floe.Digest("sha256:"+fixedHex('b')))
	s := NewStore(adapter)

	rec := floe.RollbackRecord{
		RollbackID:     "rb-1",
		ArtifactDigest: floe.Digest("sha256:" + fixedHex('b')),
		PreviousDigest: floe.Digest("sha256:" + fixedHex('a')),
		Environment:    "staging",
		Reason:         "bad data",
		Operator:       "bob",
		RolledBackAt:   time.Now(),
		TraceID:        "trace-2",
	}
	if err := s.WriteRollback(context.Background(), "v1.0.0-staging-rollback-1", rec); err != nil {
		t.Fatal(err)
	}

	got, err := s.ReadRollback(context.Background(), "v1.0.0-staging-rollback-1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.RollbackID != "rb-1" || got.Reason != "bad data" {
		t.Fatalf("unexpected record: %v", got)
	}
}

func fixedHex(b byte) string {
	out := make([]byte, 64)
	for i := range out {
		out[i] = b
	}
	return string(out)
}
