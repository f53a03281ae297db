package promotion

import (
	"context"
	"sort"
	"time"

	"github.com/obsidian-owl/floe/internal/config"
	"github.com/obsidian-owl/floe/internal/floe"
	"github.com/obsidian-owl/floe/internal/floeerr"
)

// Status assembles the cross-environment promotion view for tag, per
// spec §6: for each configured environment, whether tag has been promoted
// there, its digest, and whether that digest still matches `latest-<env>`.
func (c *Controller) Status(ctx context.Context, tag string) (*floe.StatusResponse, error) {
	resp := &floe.StatusResponse{
		Tag:              tag,
		Environments:     make(map[string]floe.StatusEnvironment, len(c.cfg.Chain)),
		EnvironmentLocks: make(map[string]floe.EnvironmentLock, len(c.cfg.Chain)),
		QueriedAt:        time.Now(),
	}

	for _, env := range c.cfg.Chain {
		envTag := floe.EnvTag(tag, env.Name)
		inspected, err := c.registry.Inspect(ctx, envTag)
		if err != nil {
			return nil, err
		}
		if inspected == nil {
			resp.Environments[env.Name] = floe.StatusEnvironment{Promoted: false}
			continue
		}
		if resp.Digest == "" {
			resp.Digest = inspected.Digest
		}

		latest, err := c.registry.Inspect(ctx, floe.LatestTag(env.Name))
		if err != nil {
			return nil, err
		}
		isLatest := latest != nil && latest.Digest == inspected.Digest

		statusEnv := floe.StatusEnvironment{
			Promoted: true,
			Digest:   inspected.Digest,
			IsLatest: isLatest,
		}
		if rec, err := c.audit.ReadPromotion(ctx, envTag); err == nil && rec != nil {
			statusEnv.PromotedAt = rec.PromotedAt
			statusEnv.Operator = rec.Operator
			resp.History = append(resp.History, floe.StatusHistoryEntry{
				PromotionID:       rec.PromotionID,
				ArtifactDigest:    rec.ArtifactDigest,
				SourceEnvironment: rec.SourceEnv,
				TargetEnvironment: rec.TargetEnv,
				Operator:          rec.Operator,
				PromotedAt:        rec.PromotedAt,
			})
		}
		resp.Environments[env.Name] = statusEnv

		if lockState, err := c.locks.IsLocked(ctx, env.Name); err == nil && lockState != nil && lockState.Locked {
			resp.EnvironmentLocks[env.Name] = *lockState
		}
	}

	sort.Slice(resp.History, func(i, j int) bool {
		return resp.History[i].PromotedAt.Before(resp.History[j].PromotedAt)
	})

	return resp, nil
}

// AnalyzeRollbackImpact produces a side-effect-free report of what a
// rollback of env would change: the digest currently live there, the digest
// a rollback would restore, the downstream environments later in the chain,
// and advisory recommendations. It does not compare the two artifacts'
// contents, so BreakingChanges is left empty.
func (c *Controller) AnalyzeRollbackImpact(ctx context.Context, tag, env string) (*floe.RollbackImpact, error) {
	envTag := floe.EnvTag(tag, env)
	inspected, err := c.registry.Inspect(ctx, envTag)
	if err != nil {
		return nil, err
	}
	if inspected == nil {
		return nil, floeerr.VersionNotPromoted(tag, env)
	}

	previousDigest, err := c.findPreviousDigest(ctx, envTag, inspected.Digest)
	if err != nil {
		return nil, err
	}

	impact := &floe.RollbackImpact{
		FromDigest: inspected.Digest,
		ToDigest:   previousDigest,
	}
	if previousDigest == "" {
		impact.Recommendations = append(impact.Recommendations, "no prior promotion recorded: a rollback would have nothing to restore to")
		return impact, nil
	}

	rec, err := c.audit.ReadPromotion(ctx, envTag)
	if err == nil && rec != nil {
		impact.AffectedDownstream = successorEnvironments(c.cfg.Chain, env)
		if len(impact.AffectedDownstream) > 0 {
			impact.Recommendations = append(impact.Recommendations,
				"downstream environments have not been re-validated against the restored digest")
		}
	}
	impact.Recommendations = append(impact.Recommendations,
		"confirm the restored digest was previously signed and gate-validated before relying on it")

	return impact, nil
}

// successorEnvironments lists every environment later in the chain than env.
func successorEnvironments(chain []config.EnvironmentConfig, env string) []string {
	var out []string
	found := false
	for _, e := range chain {
		if found {
			out = append(out, e.Name)
			continue
		}
		if e.Name == env {
			found = true
		}
	}
	return out
}
