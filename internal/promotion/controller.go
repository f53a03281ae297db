// Package promotion implements the Promotion Controller (spec §4.6): the
// central state machine orchestrating promote, rollback, status, and
// dry-run over the Registry Adapter, Signature Verifier, Gate Runner,
// Lock Manager, Audit Store, and Webhook Notifier.
package promotion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/obsidian-owl/floe/internal/audit"
	"github.com/obsidian-owl/floe/internal/config"
	"github.com/obsidian-owl/floe/internal/floe"
	"github.com/obsidian-owl/floe/internal/floeerr"
	"github.com/obsidian-owl/floe/internal/floelog"
	"github.com/obsidian-owl/floe/internal/gate"
	"github.com/obsidian-owl/floe/internal/lock"
	"github.com/obsidian-owl/floe/internal/metrics"
	"github.com/obsidian-owl/floe/internal/registry"
	"github.com/obsidian-owl/floe/internal/resilience"
	"github.com/obsidian-owl/floe/internal/signing"
	"github.com/obsidian-owl/floe/internal/webhook"
)

// latestRetryAttempts is the minimum number of attempts step 9 (latest
// pointer update) makes before degrading to a warning, per spec's "≥3
// attempts" requirement.
const latestRetryAttempts = 3

// metricsService identifies this component in emitted metrics.
const metricsService = "promotion-controller"

// Controller is the Promotion Controller.
type Controller struct {
	cfg      *config.Config
	registry registry.Adapter
	verifier signing.Verifier
	gates    *gate.Runner
	locks    *lock.Manager
	audit    *audit.Store
	webhooks *webhook.Notifier
	refLock  *signing.RefLock
	logger   *floelog.Logger
	metrics  *metrics.Metrics
}

// New constructs a Controller wiring together every collaborator.
func New(
	cfg *config.Config,
	reg registry.Adapter,
	verifier signing.Verifier,
	gates *gate.Runner,
	locks *lock.Manager,
	auditStore *audit.Store,
	webhooks *webhook.Notifier,
	logger *floelog.Logger,
	m *metrics.Metrics,
) *Controller {
	return &Controller{
		cfg:      cfg,
		registry: reg,
		verifier: verifier,
		gates:    gates,
		locks:    locks,
		audit:    auditStore,
		webhooks: webhooks,
		refLock:  signing.NewRefLock(),
		logger:   logger,
		metrics:  m,
	}
}

// PromoteRequest carries the input to Promote.
type PromoteRequest struct {
	Tag      string
	From     string
	To       string
	Operator string
	DryRun   bool
	TraceID  string
}

// Promote runs the 12-step promotion flow described in spec §4.6.
func (c *Controller) Promote(ctx context.Context, req PromoteRequest) (result *floe.PromotionRecord, err error) {
	start := time.Now()
	defer func() {
		if err != nil && c.metrics != nil {
			c.metrics.RecordPromotion(metricsService, req.From, req.To, "failure", time.Since(start))
		}
	}()

	traceID := req.TraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}

	// Step 1: transition validation.
	fromEnv, ok := c.cfg.EnvironmentByName(req.From)
	if !ok {
		return nil, floeerr.InvalidTransition(req.From, req.To, "unknown source environment")
	}
	toEnv, ok := c.cfg.Successor(req.From)
	if !ok || toEnv.Name != req.To {
		return nil, floeerr.InvalidTransition(req.From, req.To, "target is not the source's immediate successor")
	}

	// Step 2: lock check.
	if current, err := c.locks.IsLocked(ctx, req.To); err != nil {
		return nil, err
	} else if current != nil && current.Locked {
		return nil, floeerr.EnvironmentLocked(req.To, current.Reason, current.LockedBy)
	}

	// Step 3: digest resolution.
	sourceRef := floe.EnvTag(req.Tag, req.From)
	if c.cfg.IsFirst(req.From) {
		sourceRef = req.Tag
	}
	inspected, err := c.registry.Inspect(ctx, sourceRef)
	if err != nil {
		return nil, err
	}
	if inspected == nil {
		return nil, floeerr.VersionNotPromoted(req.Tag, req.From)
	}
	sourceDigest := inspected.Digest

	// Step 4: separation of duties.
	if toEnv.SeparationOfDutiesFrom == req.From {
		priorRecord, err := c.audit.ReadPromotion(ctx, sourceRef)
		if err != nil {
			return nil, err
		}
		if priorRecord != nil && priorRecord.Operator == req.Operator {
			return nil, floeerr.SeparationOfDuties(req.To, req.Operator)
		}
	}

	// Step 5: signature verification.
	sigResult, err := c.verifier.Verify(ctx, sourceRef)
	if err != nil {
		return nil, err
	}
	if sigResult.Status != floe.SignatureValid {
		return nil, floeerr.SignatureVerification(string(sigResult.Status))
	}

	// Step 6: gate evaluation.
	declared := declaredGates(fromEnv, toEnv)
	gateResults := c.gates.RunAll(ctx, declared, gate.Context{
		ArtifactDigest: sourceDigest,
		ArtifactTag:    req.Tag,
		Environment:    req.To,
	})
	if failed := failingGates(gateResults, toEnv.OptionalGates); len(failed) > 0 {
		return nil, floeerr.GateValidation(failed)
	}

	record := &floe.PromotionRecord{
		PromotionID:         uuid.NewString(),
		ArtifactDigest:      sourceDigest,
		ArtifactTag:         req.Tag,
		SourceEnv:           req.From,
		TargetEnv:           req.To,
		GateResults:         gateResults,
		SignatureVerified:   true,
		SignatureStatus:     sigResult.Status,
		Operator:            req.Operator,
		DryRun:              req.DryRun,
		TraceID:             traceID,
		AuthorizationPassed: true,
	}

	// Step 7: dry run short-circuit.
	if req.DryRun {
		record.PromotedAt = time.Now()
		return record, nil
	}

	release, err := c.refLock.Acquire(ctx, sourceRef, c.cfg.Signing.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	envTag := floe.EnvTag(req.Tag, req.To)

	// Step 8: env tag creation.
	putResult, err := c.registry.PutTag(ctx, envTag, sourceDigest, registry.PutTagOptions{IfNotExists: true})
	if err != nil {
		return nil, err
	}
	_ = putResult // idempotent retry: same-digest existing tag is not an error, handled by the adapter

	record.PromotedAt = time.Now()

	// Step 9: latest pointer update, with bounded retries degrading to a warning.
	if err := c.updateLatestWithRetry(ctx, req.To, sourceDigest); err != nil {
		record.Warnings = append(record.Warnings, fmt.Sprintf("latest-%s pointer update failed after retries: %v", req.To, err))
	}

	// Step 10: annotation write.
	if err := c.audit.WritePromotion(ctx, envTag, *record); err != nil {
		record.Warnings = append(record.Warnings, fmt.Sprintf("promotion record annotation write failed: %v", err))
	}

	if c.logger != nil {
		c.logger.LogPromotion(ctx, req.Tag, req.From, req.To, req.DryRun, nil)
	}
	if c.metrics != nil {
		c.metrics.RecordPromotion(metricsService, req.From, req.To, "success", time.Since(start))
	}

	// Step 11: webhook fan-out, non-blocking.
	if c.webhooks != nil {
		go c.webhooks.NotifyAll(context.WithoutCancel(ctx), "promote", map[string]interface{}{
			"promotion_id":    record.PromotionID,
			"artifact_tag":    record.ArtifactTag,
			"artifact_digest": string(record.ArtifactDigest),
			"source_env":      record.SourceEnv,
			"target_env":      record.TargetEnv,
			"operator":        record.Operator,
		})
	}

	return record, nil
}

func (c *Controller) updateLatestWithRetry(ctx context.Context, env string, digest floe.Digest) error {
	latestTag := floe.LatestTag(env)
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = latestRetryAttempts
	return resilience.Retry(ctx, cfg, func() error {
		_, err := c.registry.PutTag(ctx, latestTag, digest, registry.PutTagOptions{IfNotExists: false})
		return err
	})
}

// declaredGates returns the gates declared for the target environment,
// falling back to the source environment's list if the target declares
// none (e.g. a minimally configured chain). The two lists are not merged.
func declaredGates(from, to config.EnvironmentConfig) []floe.GateKind {
	names := to.Gates
	if len(names) == 0 {
		names = from.Gates
	}
	out := make([]floe.GateKind, 0, len(names))
	for _, n := range names {
		out = append(out, floe.GateKind(n))
	}
	return out
}

func failingGates(results []floe.GateResult, optional []string) []string {
	optionalSet := make(map[string]bool, len(optional))
	for _, o := range optional {
		optionalSet[o] = true
	}
	var failed []string
	for _, r := range results {
		if r.Status == floe.GateFailed && !optionalSet[string(r.Gate)] {
			failed = append(failed, string(r.Gate))
		}
	}
	return failed
}
