package promotion

import (
	"context"
	"testing"
	"time"

	"github.com/obsidian-owl/floe/internal/audit"
	"github.com/obsidian-owl/floe/internal/config"
	"github.com/obsidian-owl/floe/internal/floe"
	"github.com/obsidian-owl/floe/internal/floeerr"
	"github.com/obsidian-owl/floe/internal/floelog"
	"github.com/obsidian-owl/floe/internal/gate"
	"github.com/obsidian-owl/floe/internal/lock"
	"github.com/obsidian-owl/floe/internal/registry"
	"github.com/obsidian-owl/floe/internal/signing"
)

func testChain() *config.Config {
	return &config.Config{
		Chain: []config.EnvironmentConfig{
			{Name: "dev", Gates: []string{}},
			{Name: "staging", Gates: []string{}},
			{Name: "prod", Gates: []string{}, SeparationOfDutiesFrom: "staging"},
		},
		Signing: config.SigningConfig{LockTimeout: time.Second},
	}
}

func newTestController(t *testing.T, reg *registry.FakeAdapter, verifier *signing.FakeVerifier) *Controller {
	t.Helper()
	runner := gate.NewRunner(4, time.Second)
	locks := lock.NewManager(reg)
	auditStore := audit.NewStore(reg)
	logger := floelog.New("test", "error", "json")
	return New(testChain(), reg, verifier, runner, locks, auditStore, nil, logger, nil)
}

func signedResult() *signing.Result {
	return &signing.Result{Status: floe.SignatureValid, SignerIdentity: "ci@example.com"}
}

func TestPromoteHappyPath(t *testing.T) {
	reg := registry.NewFakeAdapter()
	reg.Seed("v1.0.0", floe.Digest("sha256:"+repeatHex('a')))
	verifier := signing.NewFakeVerifier()
	verifier.Set("v1.0.0", signedResult())

	ctrl := newTestController(t, reg, verifier)
	rec, err := ctrl.Promote(context.Background(), PromoteRequest{
		Tag: "v1.0.0", From: "dev", To: "staging", Operator: "alice",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.TargetEnv != "staging" || rec.SourceEnv != "dev" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	inspected, err := reg.Inspect(context.Background(), "v1.0.0-staging")
	if err != nil || inspected == nil {
		t.Fatalf("expected env tag to be created: %v %v", inspected, err)
	}
	latest, err := reg.Inspect(context.Background(), "latest-staging")
	if err != nil || latest == nil || latest.Digest != inspected.Digest {
		t.Fatalf("expected latest-staging to point at promoted digest: %v %v", latest, err)
	}
}

func TestPromoteRejectsBackwardTransition(t *testing.T) {
	reg := registry.NewFakeAdapter()
	verifier := signing.NewFakeVerifier()
	ctrl := newTestController(t, reg, verifier)

	_, err := ctrl.Promote(context.Background(), PromoteRequest{
		Tag: "v1.0.0", From: "prod", To: "dev", Operator: "alice",
	})
	if !floeerr.Is(err, floeerr.CodeInvalidTransition) {
		t.Fatalf("expected InvalidTransition, got %v", err)
	}
}

func TestPromoteRejectsSkippedEnvironment(t *testing.T) {
	reg := registry.NewFakeAdapter()
	verifier := signing.NewFakeVerifier()
	ctrl := newTestController(t, reg, verifier)

	_, err := ctrl.Promote(context.Background(), PromoteRequest{
		Tag: "v1.0.0", From: "dev", To: "prod", Operator: "alice",
	})
	if !floeerr.Is(err, floeerr.CodeInvalidTransition) {
		t.Fatalf("expected InvalidTransition, got %v", err)
	}
}

func TestPromoteFailsWhenTargetLocked(t *testing.T) {
	reg := registry.NewFakeAdapter()
	reg.Seed("v1.0.0-dev", floe.Digest("sha256:"+repeatHex('a')))
	verifier := signing.NewFakeVerifier()
	verifier.Set("v1.0.0-dev", signedResult())

	ctrl := newTestController(t, reg, verifier)
	if _, err := ctrl.locks.Lock(context.Background(), "staging", "maintenance", "ops", 0, false); err != nil {
		t.Fatalf("seed lock: %v", err)
	}

	_, err := ctrl.Promote(context.Background(), PromoteRequest{
		Tag: "v1.0.0", From: "dev", To: "staging", Operator: "alice",
	})
	if !floeerr.Is(err, floeerr.CodeEnvironmentLocked) {
		t.Fatalf("expected EnvironmentLocked, got %v", err)
	}
}

func TestPromoteFailsOnUnsignedArtifact(t *testing.T) {
	reg := registry.NewFakeAdapter()
	reg.Seed("v1.0.0", floe.Digest("sha256:"+repeatHex('a')))
	verifier := signing.NewFakeVerifier()

	ctrl := newTestController(t, reg, verifier)
	_, err := ctrl.Promote(context.Background(), PromoteRequest{
		Tag: "v1.0.0", From: "dev", To: "staging", Operator: "alice",
	})
	if !floeerr.Is(err, floeerr.CodeSignatureVerify) {
		t.Fatalf("expected SignatureVerification, got %v", err)
	}
}

func TestPromoteDryRunMakesNoRegistryWrites(t *testing.T) {
	reg := registry.NewFakeAdapter()
	reg.Seed("v1.0.0", floe.Digest("sha256:"+repeatHex('a')))
	verifier := signing.NewFakeVerifier()
	verifier.Set("v1.0.0", signedResult())

	ctrl := newTestController(t, reg, verifier)
	rec, err := ctrl.Promote(context.Background(), PromoteRequest{
		Tag: "v1.0.0", From: "dev", To: "staging", Operator: "alice", DryRun: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rec.DryRun {
		t.Fatal("expected DryRun record")
	}
	if inspected, _ := reg.Inspect(context.Background(), "v1.0.0-staging"); inspected != nil {
		t.Fatal("dry run must not create the env tag")
	}
}

func TestPromoteEnforcesSeparationOfDuties(t *testing.T) {
	reg := registry.NewFakeAdapter()
	stagingDigest := floe.Digest("sha256:" + repeatHex('a'))
	reg.Seed("v1.0.0-staging", stagingDigest)
	verifier := signing.NewFakeVerifier()
	verifier.Set("v1.0.0-staging", signedResult())

	ctrl := newTestController(t, reg, verifier)
	if err := ctrl.audit.WritePromotion(context.Background(), "v1.0.0-staging", floe.PromotionRecord{
		PromotionID: "p1", Operator: "alice", SourceEnv: "dev", TargetEnv: "staging",
	}); err != nil {
		t.Fatalf("seed audit record: %v", err)
	}

	_, err := ctrl.Promote(context.Background(), PromoteRequest{
		Tag: "v1.0.0", From: "staging", To: "prod", Operator: "alice",
	})
	if !floeerr.Is(err, floeerr.CodeSeparationOfDuties) {
		t.Fatalf("expected SeparationOfDuties, got %v", err)
	}
}

func TestRollbackRestoresPreviousDigest(t *testing.T) {
	reg := registry.NewFakeAdapter()
	digestA := floe.Digest("sha256:" + repeatHex('a'))
	digestB := floe.Digest("sha256:" + repeatHex('b'))
	reg.Seed("v1.0.0-dev", digestA)
	reg.Seed("v1.0.0-staging", digestB)

	verifier := signing.NewFakeVerifier()
	ctrl := newTestController(t, reg, verifier)
	if err := ctrl.audit.WritePromotion(context.Background(), "v1.0.0-staging", floe.PromotionRecord{
		PromotionID: "p1", ArtifactTag: "v1.0.0", SourceEnv: "dev", TargetEnv: "staging", Operator: "alice",
	}); err != nil {
		t.Fatalf("seed audit record: %v", err)
	}

	rec, err := ctrl.Rollback(context.Background(), RollbackRequest{
		Tag: "v1.0.0", Environment: "staging", Reason: "regression", Operator: "sre",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ArtifactDigest != digestA || rec.PreviousDigest != digestB {
		t.Fatalf("unexpected rollback record: %+v", rec)
	}

	latest, err := reg.Inspect(context.Background(), "latest-staging")
	if err != nil || latest == nil || latest.Digest != digestA {
		t.Fatalf("expected latest-staging restored to %v, got %v (%v)", digestA, latest, err)
	}

	rollbackTag, err := reg.Inspect(context.Background(), "v1.0.0-staging-rollback-1")
	if err != nil || rollbackTag == nil || rollbackTag.Digest != digestA {
		t.Fatalf("expected rollback tag recorded, got %v (%v)", rollbackTag, err)
	}
}

func TestRollbackFailsWhenNeverPromoted(t *testing.T) {
	reg := registry.NewFakeAdapter()
	verifier := signing.NewFakeVerifier()
	ctrl := newTestController(t, reg, verifier)

	_, err := ctrl.Rollback(context.Background(), RollbackRequest{
		Tag: "v1.0.0", Environment: "staging", Reason: "regression", Operator: "sre",
	})
	if !floeerr.Is(err, floeerr.CodeVersionNotPromoted) {
		t.Fatalf("expected VersionNotPromoted, got %v", err)
	}
}

func TestStatusReflectsPromotionHistory(t *testing.T) {
	reg := registry.NewFakeAdapter()
	digest := floe.Digest("sha256:" + repeatHex('a'))
	reg.Seed("v1.0.0-dev", digest)
	reg.Seed("v1.0.0-staging", digest)
	reg.Seed("latest-staging", digest)

	verifier := signing.NewFakeVerifier()
	ctrl := newTestController(t, reg, verifier)
	if err := ctrl.audit.WritePromotion(context.Background(), "v1.0.0-staging", floe.PromotionRecord{
		PromotionID: "p1", ArtifactDigest: digest, SourceEnv: "dev", TargetEnv: "staging", Operator: "alice",
	}); err != nil {
		t.Fatalf("seed audit record: %v", err)
	}

	resp, err := ctrl.Status(context.Background(), "v1.0.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Environments["staging"].Promoted || !resp.Environments["staging"].IsLatest {
		t.Fatalf("expected staging promoted and latest, got %+v", resp.Environments["staging"])
	}
	if resp.Environments["prod"].Promoted {
		t.Fatalf("expected prod not promoted, got %+v", resp.Environments["prod"])
	}
	if len(resp.History) != 1 || resp.History[0].Operator != "alice" {
		t.Fatalf("unexpected history: %+v", resp.History)
	}
}

func repeatHex(b byte) string {
	out := make([]byte, 64)
	for i := range out {
		out[i] = b
	}
	return string(out)
}
