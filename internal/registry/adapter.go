// Package registry abstracts OCI distribution-spec operations behind a small
// adapter interface, with a production implementation backed by
// go-containerregistry and an in-memory fake for tests.
package registry

import (
	"context"

	"github.com/obsidian-owl/floe/internal/floe"
)

// InspectResult is the outcome of resolving a tag to its digest and
// manifest annotations.
type InspectResult struct {
	Digest      floe.Digest
	Annotations map[string]string
}

// Tag is a single tag entry returned by ListTags.
type Tag struct {
	Name   string
	Digest floe.Digest
}

// PutTagOptions controls put_tag's conditional-write behavior.
type PutTagOptions struct {
	// IfNotExists makes the write conditional: if the tag already exists
	// with the same digest, the call succeeds idempotently; with a
	// different digest, it fails with floeerr.TagExists.
	IfNotExists bool
}

// PutTagResult reports whether the tag already existed before this call.
type PutTagResult struct {
	Existed         bool
	ExistingDigest  floe.Digest
}

// Adapter is the Registry Adapter component (spec §4.1). Inspect returns a
// nil result and nil error when ref does not resolve — not-found is a
// meaningful outcome, not a transport error, mirroring the
// remote.Get/404-as-nil pattern used for OCI lookups in this ecosystem.
type Adapter interface {
	Inspect(ctx context.Context, ref string) (*InspectResult, error)
	ListTags(ctx context.Context, prefix string) ([]Tag, error)
	PutTag(ctx context.Context, tag string, digest floe.Digest, opts PutTagOptions) (*PutTagResult, error)
	GetAnnotations(ctx context.Context, ref string) (map[string]string, error)
	SetAnnotations(ctx context.Context, ref string, annotations map[string]string) error
}
