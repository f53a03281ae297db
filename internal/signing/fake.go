package signing

import (
	"context"

	"github.com/obsidian-owl/floe/internal/floe"
)

// FakeVerifier is a scripted Verifier for the Controller's tests.
type FakeVerifier struct {
	Results map[string]*Result
}

// NewFakeVerifier returns a verifier with no scripted results; Verify
// returns Unsigned for any ref not explicitly added via Set.
func NewFakeVerifier() *FakeVerifier {
	return &FakeVerifier{Results: make(map[string]*Result)}
}

// Set scripts the result returned for a given ref.
func (f *FakeVerifier) Set(ref string, result *Result) {
	f.Results[ref] = result
}

func (f *FakeVerifier) Verify(_ context.Context, ref string) (*Result, error) {
	if r, ok := f.Results[ref]; ok {
		return r, nil
	}
	return &Result{Status: floe.SignatureUnsigned}, nil
}

var _ Verifier = (*FakeVerifier)(nil)
