// Package lock implements the per-environment advisory lock manager
// (spec §4.5): locks are stored as JSON-encoded annotations on a
// per-repository sentinel tag, not enforced by the registry itself — only
// by the Promotion Controller's lock checks in Promote and Rollback.
package lock

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/obsidian-owl/floe/internal/floe"
	"github.com/obsidian-owl/floe/internal/floeerr"
	"github.com/obsidian-owl/floe/internal/registry"
)

// SentinelTag names the per-repository tag that carries lock annotations.
// It need not point at any meaningful digest; it exists purely as an
// annotation-bearing object.
const SentinelTag = "floe-lock-sentinel"

// sentinelDigest is a fixed placeholder digest for the sentinel tag: its
// content is never read, only its annotations, so any validly-shaped
// digest will do.
const sentinelDigest = floe.Digest("sha256:0000000000000000000000000000000000000000000000000000000000000000")

func annotationKey(env string) string {
	return "dev.floe.lock." + env
}

func forcedAuditKey(env string) string {
	return "dev.floe.lock." + env + ".forced"
}

// Manager reads and writes environment locks through a registry Adapter.
type Manager struct {
	adapter registry.Adapter
}

// NewManager constructs a Manager bound to the given registry adapter.
func NewManager(adapter registry.Adapter) *Manager {
	return &Manager{adapter: adapter}
}

// ensureSentinel creates the sentinel tag if it does not yet exist. The
// registry requires a tag to back any annotation-bearing object; the lock
// manager lazily materializes one on first use rather than requiring a
// separate provisioning step.
func (m *Manager) ensureSentinel(ctx context.Context) error {
	existing, err := m.adapter.Inspect(ctx, SentinelTag)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	_, err = m.adapter.PutTag(ctx, SentinelTag, sentinelDigest, registry.PutTagOptions{IfNotExists: true})
	if err != nil && !floeerr.Is(err, floeerr.CodeTagExists) {
		return err
	}
	return nil
}

// IsLocked reads the current lock state for env. A stale lock (expires_at
// in the past) reads as unlocked, per spec's self-expiry rule, even though
// the annotation itself is left in place until the next unlock/lock call.
func (m *Manager) IsLocked(ctx context.Context, env string) (*floe.EnvironmentLock, error) {
	if err := m.ensureSentinel(ctx); err != nil {
		return nil, err
	}
	annotations, err := m.adapter.GetAnnotations(ctx, SentinelTag)
	if err != nil {
		return nil, err
	}
	raw, ok := annotations[annotationKey(env)]
	if !ok {
		return nil, nil
	}
	var l floe.EnvironmentLock
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		return nil, fmt.Errorf("decode lock annotation for %q: %w", env, err)
	}
	if !l.Locked {
		return &l, nil
	}
	if l.Expired(time.Now()) {
		return &floe.EnvironmentLock{Locked: false}, nil
	}
	return &l, nil
}

// Lock writes a new lock for env. If the environment is currently locked
// by a different operator within TTL, Lock fails with EnvironmentLocked
// unless force is true; a forced lock that replaces an existing held lock
// always writes a secondary audit annotation recording who forced it and why.
func (m *Manager) Lock(ctx context.Context, env, reason, operator string, ttl time.Duration, force bool) (*floe.EnvironmentLock, error) {
	current, err := m.IsLocked(ctx, env)
	if err != nil {
		return nil, err
	}
	if current != nil && current.Locked && current.LockedBy != operator && !force {
		return nil, floeerr.EnvironmentLocked(env, current.Reason, current.LockedBy)
	}

	now := time.Now()
	newLock := floe.EnvironmentLock{
		Locked:   true,
		Reason:   reason,
		LockedBy: operator,
		LockedAt: now,
	}
	if ttl > 0 {
		expiry := now.Add(ttl)
		newLock.ExpiresAt = &expiry
	}

	encoded, err := json.Marshal(newLock)
	if err != nil {
		return nil, fmt.Errorf("encode lock for %q: %w", env, err)
	}
	annotations := map[string]string{annotationKey(env): string(encoded)}
	if force && current != nil && current.Locked {
		annotations[forcedAuditKey(env)] = forcedAuditEntry(operator, reason, now)
	}
	if err := m.adapter.SetAnnotations(ctx, SentinelTag, annotations); err != nil {
		return nil, err
	}
	return &newLock, nil
}

// Unlock deletes the lock annotation for env. Force-unlock by any operator
// is allowed; it is always audited via the forced-unlock annotation.
func (m *Manager) Unlock(ctx context.Context, env, operator string, force bool) error {
	current, err := m.IsLocked(ctx, env)
	if err != nil {
		return err
	}
	if current == nil || !current.Locked {
		return nil
	}
	if current.LockedBy != operator && !force {
		return floeerr.EnvironmentLocked(env, current.Reason, current.LockedBy)
	}

	cleared := floe.EnvironmentLock{Locked: false}
	encoded, err := json.Marshal(cleared)
	if err != nil {
		return fmt.Errorf("encode unlock for %q: %w", env, err)
	}
	annotations := map[string]string{annotationKey(env): string(encoded)}
	if current.LockedBy != operator {
		annotations[forcedAuditKey(env)] = forcedAuditEntry(operator, "force-unlock", time.Now())
	}
	return m.adapter.SetAnnotations(ctx, SentinelTag, annotations)
}

func forcedAuditEntry(operator, reason string, at time.Time) string {
	encoded, _ := json.Marshal(map[string]string{
		"operator": operator,
		"reason":   reason,
		"at":       at.UTC().Format(time.RFC3339),
	})
	return string(encoded)
}
