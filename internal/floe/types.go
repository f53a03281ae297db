// Package floe defines the shared data model of the promotion lifecycle
// core: digests, tags, gate results, promotion/rollback records, locks, and
// policy violations.
package floe

import (
	"fmt"
	"regexp"
	"time"
)

var digestPattern = regexp.MustCompile(`^sha256:[0-9a-f]{64}$`)

// Digest is a content-addressed sha256 hash, the immutable identity of a
// compiled data product.
type Digest string

// Valid reports whether d is a well-formed sha256 digest.
func (d Digest) Valid() bool {
	return digestPattern.MatchString(string(d))
}

func (d Digest) String() string { return string(d) }

var (
	versionPattern    = regexp.MustCompile(`^v\d+\.\d+\.\d+(-[A-Za-z0-9.+-]+)?$`)
	envNamePattern    = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)
	rollbackSuffixRx  = regexp.MustCompile(`^(.+)-([a-z0-9-]+)-rollback-(\d+)$`)
)

// ValidVersion reports whether v matches the version-tag grammar v<semver>.
func ValidVersion(v string) bool {
	return versionPattern.MatchString(v)
}

// ValidEnvName reports whether name is a lowercase DNS-compatible label.
func ValidEnvName(name string) bool {
	return envNamePattern.MatchString(name)
}

// EnvTag returns the immutable env tag for a version promoted to env.
func EnvTag(version, env string) string {
	return fmt.Sprintf("%s-%s", version, env)
}

// LatestTag returns the mutable latest pointer tag name for env.
func LatestTag(env string) string {
	return fmt.Sprintf("latest-%s", env)
}

// RollbackTag returns the immutable rollback tag name for the Nth rollback
// of version within env.
func RollbackTag(version, env string, n int) string {
	return fmt.Sprintf("%s-%s-rollback-%d", version, env, n)
}

// ParseRollbackTag extracts the (version, env, n) components of a rollback
// tag, or ok=false if tag does not match the rollback grammar.
func ParseRollbackTag(tag string) (version, env string, n int, ok bool) {
	m := rollbackSuffixRx.FindStringSubmatch(tag)
	if m == nil {
		return "", "", 0, false
	}
	var parsed int
	if _, err := fmt.Sscanf(m[3], "%d", &parsed); err != nil {
		return "", "", 0, false
	}
	return m[1], m[2], parsed, true
}

// GateStatus is the outcome of a single gate evaluation.
type GateStatus string

const (
	GatePassed  GateStatus = "passed"
	GateFailed  GateStatus = "failed"
	GateSkipped GateStatus = "skipped"
	GateWarning GateStatus = "warning"
)

// GateKind identifies a built-in or pluggable gate implementation.
type GateKind string

const (
	GatePolicyCompliance   GateKind = "policy_compliance"
	GateTests              GateKind = "tests"
	GateSecurityScan       GateKind = "security_scan"
	GateCostAnalysis       GateKind = "cost_analysis"
	GatePerformanceBaseline GateKind = "performance_baseline"
)

// GateResult is the outcome of a single gate run.
type GateResult struct {
	Gate       GateKind               `json:"gate"`
	Status     GateStatus             `json:"status"`
	DurationMS int64                  `json:"duration_ms"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// SignatureStatus classifies the outcome of signature verification.
type SignatureStatus string

const (
	SignatureValid    SignatureStatus = "valid"
	SignatureUnsigned SignatureStatus = "unsigned"
	SignatureInvalid  SignatureStatus = "invalid"
	SignatureExpired  SignatureStatus = "expired"
	SignatureError    SignatureStatus = "error"
)

// PromotionRecord is the audit record written exactly once per successful
// promotion, stored as JSON under the `dev.floe.promotion` annotation.
type PromotionRecord struct {
	PromotionID        string                 `json:"promotion_id"`
	ArtifactDigest     Digest                 `json:"artifact_digest"`
	ArtifactTag        string                 `json:"artifact_tag"`
	SourceEnv          string                 `json:"source_env"`
	TargetEnv          string                 `json:"target_env"`
	GateResults        []GateResult           `json:"gate_results"`
	SignatureVerified  bool                   `json:"signature_verified"`
	SignatureStatus    SignatureStatus        `json:"signature_status"`
	Operator           string                 `json:"operator"`
	PromotedAt         time.Time              `json:"promoted_at"`
	DryRun             bool                   `json:"dry_run"`
	TraceID            string                 `json:"trace_id"`
	AuthorizationPassed bool                  `json:"authorization_passed"`
	AuthorizedVia      string                 `json:"authorized_via,omitempty"`
	Warnings           []string               `json:"warnings,omitempty"`
}

// RollbackRecord is the audit record written on every rollback, stored under
// the `dev.floe.rollback` annotation on the new rollback tag.
type RollbackRecord struct {
	RollbackID      string    `json:"rollback_id"`
	ArtifactDigest  Digest    `json:"artifact_digest"`
	PreviousDigest  Digest    `json:"previous_digest"`
	Environment     string    `json:"environment"`
	Reason          string    `json:"reason"`
	Operator        string    `json:"operator"`
	RolledBackAt    time.Time `json:"rolled_back_at"`
	TraceID         string    `json:"trace_id"`
}

// EnvironmentLock is an advisory per-environment lock stored under
// `dev.floe.lock.<env>` on a per-repository sentinel ref.
type EnvironmentLock struct {
	Locked    bool       `json:"locked"`
	Reason    string     `json:"reason"`
	LockedBy  string     `json:"locked_by"`
	LockedAt  time.Time  `json:"locked_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the lock's TTL has passed as of now.
func (l *EnvironmentLock) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && now.After(*l.ExpiresAt)
}

// Severity is the severity of a policy Violation.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Violation is a single finding from the policy enforcement engine.
type Violation struct {
	ErrorCode        string   `json:"error_code"`
	Severity         Severity `json:"severity"`
	PolicyType       string   `json:"policy_type"`
	ModelName        string   `json:"model_name"`
	Message          string   `json:"message"`
	Expected         string   `json:"expected,omitempty"`
	Actual           string   `json:"actual,omitempty"`
	Suggestion       string   `json:"suggestion,omitempty"`
	DocumentationURL string   `json:"documentation_url,omitempty"`
	// Blocking marks a violation produced by a custom policy configured with
	// action "block": it fails the gate regardless of enforcement_level.
	Blocking bool `json:"blocking,omitempty"`
}

// PolicyResult is the outcome of a full policy_compliance gate evaluation.
type PolicyResult struct {
	Passed           bool        `json:"passed"`
	Violations       []Violation `json:"violations"`
	ManifestVersion  string      `json:"manifest_version"`
	EnforcementLevel string      `json:"enforcement_level"`
	DurationMS       int64       `json:"duration_ms"`
}

// RollbackImpact is the advisory, side-effect-free output of
// analyze_rollback_impact.
type RollbackImpact struct {
	FromDigest         Digest   `json:"from_digest"`
	ToDigest           Digest   `json:"to_digest"`
	BreakingChanges    []string `json:"breaking_changes"`
	AffectedDownstream []string `json:"affected_downstream"`
	Recommendations    []string `json:"recommendations"`
}

// StatusEnvironment is one environment's entry in a cross-environment
// status response.
type StatusEnvironment struct {
	Promoted    bool      `json:"promoted"`
	Digest      Digest    `json:"digest,omitempty"`
	PromotedAt  time.Time `json:"promoted_at,omitempty"`
	IsLatest    bool      `json:"is_latest"`
	Operator    string    `json:"operator,omitempty"`
}

// StatusHistoryEntry is a single past promotion surfaced in a status response.
type StatusHistoryEntry struct {
	PromotionID       string    `json:"promotion_id"`
	ArtifactDigest    Digest    `json:"artifact_digest"`
	SourceEnvironment string    `json:"source_environment"`
	TargetEnvironment string    `json:"target_environment"`
	Operator          string    `json:"operator"`
	PromotedAt        time.Time `json:"promoted_at"`
}

// StatusResponse is the machine-consumable cross-environment view of a tag's
// promotion state, per spec §6.
type StatusResponse struct {
	Tag                string                         `json:"tag"`
	Digest             Digest                         `json:"digest"`
	Environments       map[string]StatusEnvironment   `json:"environments"`
	EnvironmentLocks   map[string]EnvironmentLock      `json:"environment_locks,omitempty"`
	History            []StatusHistoryEntry           `json:"history"`
	QueriedAt          time.Time                      `json:"queried_at"`
}
