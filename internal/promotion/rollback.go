package promotion

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/obsidian-owl/floe/internal/floe"
	"github.com/obsidian-owl/floe/internal/floeerr"
	"github.com/obsidian-owl/floe/internal/registry"
)

// RollbackRequest carries the input to Rollback.
type RollbackRequest struct {
	Tag         string
	Environment string
	Reason      string
	Operator    string
	TraceID     string
}

// Rollback points `latest-<env>` back at the digest that preceded the
// environment tag's current one, recording a new `-rollback-N` tag rather
// than mutating the environment tag itself, preserving every prior digest
// as an addressable ref.
func (c *Controller) Rollback(ctx context.Context, req RollbackRequest) (*floe.RollbackRecord, error) {
	if current, err := c.locks.IsLocked(ctx, req.Environment); err != nil {
		return nil, err
	} else if current != nil && current.Locked {
		return nil, floeerr.EnvironmentLocked(req.Environment, current.Reason, current.LockedBy)
	}

	envTag := floe.EnvTag(req.Tag, req.Environment)
	inspected, err := c.registry.Inspect(ctx, envTag)
	if err != nil {
		return nil, err
	}
	if inspected == nil {
		return nil, floeerr.VersionNotPromoted(req.Tag, req.Environment)
	}
	currentDigest := inspected.Digest

	previousDigest, err := c.findPreviousDigest(ctx, envTag, currentDigest)
	if err != nil {
		return nil, err
	}
	if previousDigest == "" {
		return nil, floeerr.New(floeerr.CodeVersionNotPromoted, fmt.Sprintf("no prior promotion recorded for %q in %q to roll back to", req.Tag, req.Environment))
	}

	n, err := c.nextRollbackSuffix(ctx, req.Tag, req.Environment)
	if err != nil {
		return nil, err
	}
	rollbackTag := floe.RollbackTag(req.Tag, req.Environment, n)

	if _, err := c.registry.PutTag(ctx, rollbackTag, previousDigest, registry.PutTagOptions{IfNotExists: true}); err != nil {
		return nil, err
	}
	if err := c.updateLatestWithRetry(ctx, req.Environment, previousDigest); err != nil {
		return nil, floeerr.Wrap(floeerr.CodeRegistryUnavailable, "updating latest pointer during rollback", err)
	}

	traceID := req.TraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}
	rec := floe.RollbackRecord{
		RollbackID:     uuid.NewString(),
		ArtifactDigest: previousDigest,
		PreviousDigest: currentDigest,
		Environment:    req.Environment,
		Reason:         req.Reason,
		Operator:       req.Operator,
		RolledBackAt:   time.Now(),
		TraceID:        traceID,
	}
	if err := c.audit.WriteRollback(ctx, rollbackTag, rec); err != nil {
		c.logger.LogErrorWithStack(ctx, err, "failed to write rollback audit record", map[string]interface{}{"rollback_tag": rollbackTag})
	}
	if c.metrics != nil {
		c.metrics.RecordRollback(metricsService, req.Environment, "success")
	}
	if c.webhooks != nil {
		go c.webhooks.NotifyAll(context.WithoutCancel(ctx), "rollback", map[string]interface{}{
			"rollback_id": rec.RollbackID,
			"environment": rec.Environment,
			"reason":      rec.Reason,
			"operator":    rec.Operator,
		})
	}
	return &rec, nil
}

// findPreviousDigest looks at the promotion audit trail recorded on envTag
// to recover the digest the environment pointed at immediately before the
// one it points at now. Absent an audit trail, there is nothing to roll
// back to.
func (c *Controller) findPreviousDigest(ctx context.Context, envTag string, currentDigest floe.Digest) (floe.Digest, error) {
	rec, err := c.audit.ReadPromotion(ctx, envTag)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", nil
	}
	// The audit record on envTag describes the promotion that produced
	// currentDigest; its source environment tag holds the digest promoted
	// from, which is the rollback target only when the chain's previous
	// link is still pointing at an older artifact than currentDigest.
	sourceTag := floe.EnvTag(rec.ArtifactTag, rec.SourceEnv)
	sourceInspected, err := c.registry.Inspect(ctx, sourceTag)
	if err != nil {
		return "", err
	}
	if sourceInspected == nil || sourceInspected.Digest == currentDigest {
		return "", nil
	}
	return sourceInspected.Digest, nil
}

// nextRollbackSuffix scans existing `<tag>-<env>-rollback-N` tags and
// returns the next unused N, starting at 1.
func (c *Controller) nextRollbackSuffix(ctx context.Context, tag, env string) (int, error) {
	prefix := fmt.Sprintf("%s-rollback-", floe.EnvTag(tag, env))
	tags, err := c.registry.ListTags(ctx, prefix)
	if err != nil {
		return 0, err
	}
	max := 0
	for _, t := range tags {
		suffix := strings.TrimPrefix(t.Name, prefix)
		n, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max + 1, nil
}
