package registry

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/obsidian-owl/floe/internal/floe"
	"github.com/obsidian-owl/floe/internal/floeerr"
)

// FakeAdapter is an in-memory Adapter used by the Controller, lock manager
// and audit store tests, avoiding any dependency on a real registry.
type FakeAdapter struct {
	mu          sync.RWMutex
	digests     map[string]floe.Digest
	annotations map[string]map[string]string
}

// NewFakeAdapter returns an empty in-memory registry.
func NewFakeAdapter() *FakeAdapter {
	return &FakeAdapter{
		digests:     make(map[string]floe.Digest),
		annotations: make(map[string]map[string]string),
	}
}

// Seed directly sets a tag's digest, bypassing PutTag's conditional
// semantics, for test fixture setup.
func (f *FakeAdapter) Seed(tag string, digest floe.Digest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.digests[tag] = digest
}

func (f *FakeAdapter) Inspect(_ context.Context, ref string) (*InspectResult, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	digest, ok := f.digests[ref]
	if !ok {
		return nil, nil
	}
	return &InspectResult{Digest: digest, Annotations: copyAnnotations(f.annotations[ref])}, nil
}

func (f *FakeAdapter) ListTags(_ context.Context, prefix string) ([]Tag, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var out []Tag
	for tag, digest := range f.digests {
		if prefix != "" && !strings.HasPrefix(tag, prefix) {
			continue
		}
		out = append(out, Tag{Name: tag, Digest: digest})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *FakeAdapter) PutTag(_ context.Context, tag string, digest floe.Digest, opts PutTagOptions) (*PutTagResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	existing, ok := f.digests[tag]
	if ok {
		if existing == digest {
			return &PutTagResult{Existed: true, ExistingDigest: existing}, nil
		}
		if opts.IfNotExists {
			return nil, floeerr.TagExists(tag, string(existing))
		}
	}
	f.digests[tag] = digest
	return &PutTagResult{Existed: false}, nil
}

func (f *FakeAdapter) GetAnnotations(_ context.Context, ref string) (map[string]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if _, ok := f.digests[ref]; !ok {
		return nil, floeerr.ArtifactNotFound(ref, f.tagNamesLocked())
	}
	return copyAnnotations(f.annotations[ref]), nil
}

func (f *FakeAdapter) SetAnnotations(_ context.Context, ref string, annotations map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.digests[ref]; !ok {
		return floeerr.ArtifactNotFound(ref, f.tagNamesLocked())
	}
	f.annotations[ref] = copyAnnotations(annotations)
	return nil
}

func (f *FakeAdapter) tagNamesLocked() []string {
	names := make([]string, 0, len(f.digests))
	for t := range f.digests {
		names = append(names, t)
	}
	sort.Strings(names)
	return names
}

func copyAnnotations(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var _ Adapter = (*FakeAdapter)(nil)
var _ Adapter = (*OCIAdapter)(nil)
