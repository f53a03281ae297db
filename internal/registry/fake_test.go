package registry

import (
	"context"
	"testing"

	"github.com/obsidian-owl/floe/internal/floe"
	"github.com/obsidian-owl/floe/internal/floeerr"
)

func TestPutTagIdempotentSameDigest(t *testing.T) {
	ctx := context.Background()
	adapter := NewFakeAdapter()
	digest := floe.Digest("sha256:" + fixedHex())

	if _, err := adapter.PutTag(ctx, "v1.0.0-staging", digest, PutTagOptions{IfNotExists: true}); err != nil {
		t.Fatalf("first put_tag: %v", err)
	}
	result, err := adapter.PutTag(ctx, "v1.0.0-staging", digest, PutTagOptions{IfNotExists: true})
	if err != nil {
		t.Fatalf("repeated put_tag with same digest should be idempotent: %v", err)
	}
	if !result.Existed {
		t.Errorf("expected Existed=true on repeated identical put_tag")
	}
}

func TestPutTagDifferentDigestFails(t *testing.T) {
	ctx := context.Background()
	adapter := NewFakeAdapter()
	a := floe.Digest("sha256:" + fixedHex())
	b := floe.Digest("sha256:" + fixedHexAlt())

	if _, err := adapter.PutTag(ctx, "v1.0.0-staging", a, PutTagOptions{IfNotExists: true}); err != nil {
		t.Fatalf("first put_tag: %v", err)
	}
	_, err := adapter.PutTag(ctx, "v1.0.0-staging", b, PutTagOptions{IfNotExists: true})
	if !floeerr.Is(err, floeerr.CodeTagExists) {
		t.Fatalf("expected TagExists, got %v", err)
	}
}

func TestInspectNotFoundReturnsNilNil(t *testing.T) {
	ctx := context.Background()
	adapter := NewFakeAdapter()
	result, err := adapter.Inspect(ctx, "v9.9.9-dev")
	if err != nil {
		t.Fatalf("not-found should not be an error at the adapter layer: %v", err)
	}
	if result != nil {
		t.Fatalf("expected nil result for unresolved ref")
	}
}

func TestSetAndGetAnnotationsRoundTrip(t *testing.T) {
	ctx := context.Background()
	adapter := NewFakeAdapter()
	digest := floe.Digest("sha256:" + fixedHex())
	if _, err := adapter.PutTag(ctx, "v1.0.0-dev", digest, PutTagOptions{}); err != nil {
		t.Fatalf("put_tag: %v", err)
	}
	if err := adapter.SetAnnotations(ctx, "v1.0.0-dev", map[string]string{"dev.floe.promotion.operator": "alice@x"}); err != nil {
		t.Fatalf("set_annotations: %v", err)
	}
	got, err := adapter.GetAnnotations(ctx, "v1.0.0-dev")
	if err != nil {
		t.Fatalf("get_annotations: %v", err)
	}
	if got["dev.floe.promotion.operator"] != "alice@x" {
		t.Errorf("annotation round-trip mismatch: %+v", got)
	}
}

func fixedHex() string {
	b := make([]byte, 64)
	for i := range b {
		b[i] = 'a'
	}
	return string(b)
}

func fixedHexAlt() string {
	b := make([]byte, 64)
	for i := range b {
		b[i] = 'b'
	}
	return string(b)
}
