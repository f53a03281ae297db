// Package signing implements the Signature Verifier component (spec §4.2):
// cosign/sigstore-backed classification of an artifact's signature into
// valid/unsigned/invalid/expired/error, plus a per-artifact-ref advisory
// lock that serializes signing and verification.
package signing

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/obsidian-owl/floe/internal/floe"
	"github.com/obsidian-owl/floe/internal/floeerr"
)

// Result is the outcome of verifying an artifact's signature.
type Result struct {
	Status       floe.SignatureStatus
	SignerIdentity string
	Reason       string
}

// Verifier is the Signature Verifier component.
type Verifier interface {
	Verify(ctx context.Context, ref string) (*Result, error)
}

// TrustedPatterns holds the ordered list of trusted signer-identity glob
// patterns configured for this deployment.
type TrustedPatterns struct {
	patterns []*regexp.Regexp
}

// NewTrustedPatterns compiles each pattern. Patterns use a simple glob
// grammar (`*` matches any run of characters) translated to an anchored
// regex, matching the way identity matching is expressed in sigstore policy
// configs.
func NewTrustedPatterns(patterns []string) (*TrustedPatterns, error) {
	tp := &TrustedPatterns{}
	for _, p := range patterns {
		re, err := globToRegexp(p)
		if err != nil {
			return nil, fmt.Errorf("compile trusted signer pattern %q: %w", p, err)
		}
		tp.patterns = append(tp.patterns, re)
	}
	return tp, nil
}

// Matches reports whether identity matches at least one trusted pattern.
func (tp *TrustedPatterns) Matches(identity string) bool {
	for _, re := range tp.patterns {
		if re.MatchString(identity) {
			return true
		}
	}
	return false
}

func globToRegexp(glob string) (*regexp.Regexp, error) {
	var b []byte
	b = append(b, '^')
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '*':
			b = append(b, '.', '*')
		case '.', '+', '(', ')', '[', ']', '{', '}', '^', '$', '|', '\\':
			b = append(b, '\\', c)
		default:
			b = append(b, c)
		}
	}
	b = append(b, '$')
	return regexp.Compile(string(b))
}

// RefLock is the per-artifact-ref advisory lock required to serialize
// signing and verification against racing OCI annotation rewrites
// (spec §4.2). Lock acquisition has a configurable timeout. Each ref's lock
// is a 1-buffered channel used as a non-blocking-acquire semaphore, so a
// timed-out waiter never leaves the lock permanently held.
type RefLock struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewRefLock returns an empty RefLock registry.
func NewRefLock() *RefLock {
	return &RefLock{locks: make(map[string]chan struct{})}
}

func (r *RefLock) chanFor(ref string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.locks[ref]
	if !ok {
		ch = make(chan struct{}, 1)
		ch <- struct{}{}
		r.locks[ref] = ch
	}
	return ch
}

// Acquire blocks until the ref's lock token is taken or timeout elapses,
// returning floeerr.ConcurrentSigning on expiry. The returned release func
// must be called exactly once to return the token.
func (r *RefLock) Acquire(ctx context.Context, ref string, timeout time.Duration) (release func(), err error) {
	ch := r.chanFor(ref)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return func() { ch <- struct{}{} }, nil
	case <-timer.C:
		return nil, floeerr.ConcurrentSigning(ref)
	case <-ctx.Done():
		return nil, floeerr.ConcurrentSigning(ref)
	}
}
