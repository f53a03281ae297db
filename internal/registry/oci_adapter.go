package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"

	"github.com/obsidian-owl/floe/internal/floe"
	"github.com/obsidian-owl/floe/internal/floeerr"
	"github.com/obsidian-owl/floe/internal/resilience"
)

// OCIAdapter implements Adapter against a real OCI distribution-spec
// registry via go-containerregistry, wrapped with the teacher's circuit
// breaker for the registry's per-host failure state (spec §5).
type OCIAdapter struct {
	repository string
	insecure   bool
	nameOpts   []name.Option
	remoteOpts []remote.Option
	breaker    *resilience.CircuitBreaker
}

// NewOCIAdapter constructs an adapter for the given `host/repository`,
// authenticating via the default keychain the way
// other_examples' rancher-charts cosign synchronizer does.
func NewOCIAdapter(repository string, insecure bool, breakerCfg resilience.Config) *OCIAdapter {
	var nameOpts []name.Option
	if insecure {
		nameOpts = append(nameOpts, name.Insecure)
	}
	return &OCIAdapter{
		repository: repository,
		insecure:   insecure,
		nameOpts:   nameOpts,
		remoteOpts: []remote.Option{remote.WithAuthFromKeychain(authn.DefaultKeychain)},
		breaker:    resilience.New(breakerCfg),
	}
}

func (a *OCIAdapter) ref(tagOrDigest string) (name.Reference, error) {
	full := fmt.Sprintf("%s:%s", a.repository, tagOrDigest)
	if strings.Contains(tagOrDigest, "@sha256:") || strings.HasPrefix(tagOrDigest, "sha256:") {
		full = fmt.Sprintf("%s@%s", a.repository, strings.TrimPrefix(tagOrDigest, a.repository+"@"))
	}
	return name.ParseReference(full, a.nameOpts...)
}

// Inspect resolves ref to a digest and its manifest annotations. A 404 from
// the registry surfaces as (nil, nil): not-found is a meaningful outcome at
// this layer, not a transport error.
func (a *OCIAdapter) Inspect(ctx context.Context, ref string) (*InspectResult, error) {
	reference, err := a.ref(ref)
	if err != nil {
		return nil, floeerr.New(floeerr.CodeArtifactNotFound, fmt.Sprintf("malformed ref %q", ref)).WithRemediation(err.Error())
	}

	var desc *remote.Descriptor
	cbErr := a.breaker.Execute(ctx, func() error {
		d, getErr := remote.Get(reference, append(a.remoteOpts, remote.WithContext(ctx))...)
		if getErr != nil {
			return getErr
		}
		desc = d
		return nil
	})
	if cbErr != nil {
		if isNotFound(cbErr) {
			return nil, nil
		}
		return nil, classifyErr(cbErr, "inspect")
	}

	img, err := desc.Image()
	if err != nil {
		return nil, floeerr.Wrap(floeerr.CodeRegistryUnavailable, "decode manifest", err)
	}
	manifest, err := img.Manifest()
	if err != nil {
		return nil, floeerr.Wrap(floeerr.CodeRegistryUnavailable, "read manifest", err)
	}

	return &InspectResult{
		Digest:      floe.Digest(desc.Digest.String()),
		Annotations: manifest.Annotations,
	}, nil
}

// ListTags lists all tags in the repository, optionally filtered by prefix.
func (a *OCIAdapter) ListTags(ctx context.Context, prefix string) ([]Tag, error) {
	repo, err := name.NewRepository(a.repository, a.nameOpts...)
	if err != nil {
		return nil, floeerr.Wrap(floeerr.CodeArtifactNotFound, "malformed repository", err)
	}

	var tagNames []string
	cbErr := a.breaker.Execute(ctx, func() error {
		names, listErr := remote.List(repo, append(a.remoteOpts, remote.WithContext(ctx))...)
		if listErr != nil {
			return listErr
		}
		tagNames = names
		return nil
	})
	if cbErr != nil {
		return nil, classifyErr(cbErr, "list_tags")
	}

	var out []Tag
	for _, t := range tagNames {
		if prefix != "" && !strings.HasPrefix(t, prefix) {
			continue
		}
		inspected, inspectErr := a.Inspect(ctx, t)
		if inspectErr != nil || inspected == nil {
			continue
		}
		out = append(out, Tag{Name: t, Digest: inspected.Digest})
	}
	return out, nil
}

// PutTag creates or updates a tag to point at digest. When IfNotExists is
// set, an existing tag with the same digest is treated as idempotent
// success; a different digest fails with floeerr.TagExists.
func (a *OCIAdapter) PutTag(ctx context.Context, tag string, digest floe.Digest, opts PutTagOptions) (*PutTagResult, error) {
	if opts.IfNotExists {
		existing, err := a.Inspect(ctx, tag)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if existing.Digest == digest {
				return &PutTagResult{Existed: true, ExistingDigest: existing.Digest}, nil
			}
			return nil, floeerr.TagExists(tag, string(existing.Digest))
		}
	}

	srcRef, err := a.ref(string(digest))
	if err != nil {
		return nil, floeerr.Wrap(floeerr.CodeArtifactNotFound, "malformed digest ref", err)
	}
	dstRef, err := a.ref(tag)
	if err != nil {
		return nil, floeerr.Wrap(floeerr.CodeArtifactNotFound, "malformed tag ref", err)
	}

	cbErr := a.breaker.Execute(ctx, func() error {
		desc, getErr := remote.Get(srcRef, append(a.remoteOpts, remote.WithContext(ctx))...)
		if getErr != nil {
			return getErr
		}
		img, imgErr := desc.Image()
		if imgErr != nil {
			return imgErr
		}
		return remote.Write(dstRef, img, append(a.remoteOpts, remote.WithContext(ctx))...)
	})
	if cbErr != nil {
		return nil, classifyErr(cbErr, "put_tag")
	}

	return &PutTagResult{Existed: false}, nil
}

// GetAnnotations returns the manifest annotations for ref.
func (a *OCIAdapter) GetAnnotations(ctx context.Context, ref string) (map[string]string, error) {
	inspected, err := a.Inspect(ctx, ref)
	if err != nil {
		return nil, err
	}
	if inspected == nil {
		return nil, floeerr.ArtifactNotFound(ref, nil)
	}
	return inspected.Annotations, nil
}

// SetAnnotations rewrites manifest annotations for ref as a single atomic
// manifest-update operation (mutate.Annotations + re-push, same digest
// identity for the underlying layers).
func (a *OCIAdapter) SetAnnotations(ctx context.Context, ref string, annotations map[string]string) error {
	reference, err := a.ref(ref)
	if err != nil {
		return floeerr.Wrap(floeerr.CodeArtifactNotFound, "malformed ref", err)
	}

	return a.breaker.Execute(ctx, func() error {
		desc, getErr := remote.Get(reference, append(a.remoteOpts, remote.WithContext(ctx))...)
		if getErr != nil {
			return getErr
		}
		img, imgErr := desc.Image()
		if imgErr != nil {
			return imgErr
		}
		updated := mutate.Annotations(img, annotations).(v1.Image)
		return remote.Write(reference, updated, append(a.remoteOpts, remote.WithContext(ctx))...)
	})
}

// MarshalAnnotationJSON is a small helper that encodes a value as a JSON
// string suitable for an annotation value passed to SetAnnotations.
func MarshalAnnotationJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func isNotFound(err error) bool {
	var te *transport.Error
	if errors.As(err, &te) {
		return te.StatusCode == http.StatusNotFound
	}
	return false
}

func classifyErr(err error, operation string) error {
	var te *transport.Error
	if errors.As(err, &te) {
		switch te.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return floeerr.Authentication(err)
		case http.StatusNotFound:
			return floeerr.ArtifactNotFound(operation, nil)
		}
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return floeerr.CircuitBreakerOpen(0, "")
	}
	return floeerr.RegistryUnavailable(operation, err)
}
