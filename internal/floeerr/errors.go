// Package floeerr provides the promotion lifecycle's structured error taxonomy.
package floeerr

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies one of the distinct promotion failure kinds.
type Code string

const (
	CodeGeneric             Code = "GENERIC"
	CodeAuthentication      Code = "AUTHENTICATION"
	CodeArtifactNotFound    Code = "ARTIFACT_NOT_FOUND"
	CodeImmutabilityViol    Code = "IMMUTABILITY_VIOLATION"
	CodeRegistryUnavailable Code = "REGISTRY_UNAVAILABLE"
	CodeSignatureVerify     Code = "SIGNATURE_VERIFICATION"
	CodeConcurrentSigning   Code = "CONCURRENT_SIGNING"
	CodeGateValidation      Code = "GATE_VALIDATION"
	CodeInvalidTransition   Code = "INVALID_TRANSITION"
	CodeTagExists           Code = "TAG_EXISTS"
	CodeVersionNotPromoted  Code = "VERSION_NOT_PROMOTED"
	CodeAuthorization       Code = "AUTHORIZATION"
	CodeEnvironmentLocked   Code = "ENVIRONMENT_LOCKED"
	CodeSeparationOfDuties  Code = "SEPARATION_OF_DUTIES"
)

// exitCodes maps each Code to the CLI exit code enumerated in spec §4.6/§6.
var exitCodes = map[Code]int{
	CodeGeneric:             1,
	CodeAuthentication:      2,
	CodeArtifactNotFound:    3,
	CodeImmutabilityViol:    4,
	CodeRegistryUnavailable: 5,
	CodeSignatureVerify:     6,
	CodeConcurrentSigning:   7,
	CodeGateValidation:      8,
	CodeInvalidTransition:   9,
	CodeTagExists:           10,
	CodeVersionNotPromoted:  11,
	CodeAuthorization:       12,
	CodeEnvironmentLocked:   13,
	CodeSeparationOfDuties:  14,
}

// PromotionError is the structured error type surfaced by every component in
// this module. It carries a stable Code, a human message, optional structured
// Details, an optional remediation hint, and an optionally wrapped cause.
type PromotionError struct {
	Code        Code                   `json:"code"`
	Message     string                 `json:"message"`
	Details     map[string]interface{} `json:"details,omitempty"`
	Remediation string                 `json:"remediation,omitempty"`
	Err         error                  `json:"-"`
}

func (e *PromotionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *PromotionError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a key/value pair of structured context.
func (e *PromotionError) WithDetails(key string, value interface{}) *PromotionError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithRemediation attaches a human remediation hint.
func (e *PromotionError) WithRemediation(hint string) *PromotionError {
	e.Remediation = hint
	return e
}

// ExitCode returns the CLI exit code for this error's Code.
func (e *PromotionError) ExitCode() int {
	if code, ok := exitCodes[e.Code]; ok {
		return code
	}
	return 1
}

// New creates a PromotionError with no wrapped cause.
func New(code Code, message string) *PromotionError {
	return &PromotionError{Code: code, Message: message}
}

// Wrap creates a PromotionError wrapping an underlying cause.
func Wrap(code Code, message string, err error) *PromotionError {
	return &PromotionError{Code: code, Message: message, Err: err}
}

// Authentication — fatal registry auth failure (ring 1).
func Authentication(err error) *PromotionError {
	return Wrap(CodeAuthentication, "registry authentication failed", err)
}

// ArtifactNotFound — the adapter resolved a 404 on a ref the caller expected
// to exist. availableTags is truncated to a short preview, mirroring the
// original implementation's bounded error message.
func ArtifactNotFound(ref string, availableTags []string) *PromotionError {
	preview := availableTags
	if len(preview) > 10 {
		preview = preview[:10]
	}
	return New(CodeArtifactNotFound, fmt.Sprintf("artifact %q not found", ref)).
		WithDetails("ref", ref).
		WithDetails("available_tags", preview).
		WithRemediation("verify the tag exists with `floe artifact list`")
}

// ImmutabilityViolation — an attempt to overwrite an immutable tag with a
// different digest than the one it already records.
func ImmutabilityViolation(tag, existingDigest, attemptedDigest string) *PromotionError {
	return New(CodeImmutabilityViol, fmt.Sprintf("tag %q is immutable", tag)).
		WithDetails("existing_digest", previewDigest(existingDigest)).
		WithDetails("attempted_digest", previewDigest(attemptedDigest)).
		WithRemediation("promote a new version instead of overwriting an existing tag")
}

// RegistryUnavailable — ring-1 transient failure, exhausted all retries.
func RegistryUnavailable(operation string, err error) *PromotionError {
	return Wrap(CodeRegistryUnavailable, fmt.Sprintf("registry unavailable during %s", operation), err).
		WithRemediation("retry once the registry is reachable")
}

// CircuitBreakerOpen — the registry adapter's breaker rejected the call fast.
func CircuitBreakerOpen(failureCount int, recoverAt string) *PromotionError {
	return New(CodeRegistryUnavailable, "registry circuit breaker is open").
		WithDetails("failure_count", failureCount).
		WithDetails("recover_at", recoverAt).
		WithRemediation("wait for the cooldown to elapse before retrying")
}

// SignatureVerification tailors its remediation text to the verification
// failure reason, mirroring the Python original's keyword-based remediation.
func SignatureVerification(reason string) *PromotionError {
	e := New(CodeSignatureVerify, fmt.Sprintf("signature verification failed: %s", reason)).
		WithDetails("reason", reason)
	switch {
	case containsAny(reason, "unsigned"):
		e.WithRemediation("sign the artifact with `floe artifact sign <ref>`")
	case containsAny(reason, "signer", "issuer"):
		e.WithRemediation("re-sign with a trusted signer identity or update the trusted-signer configuration")
	case containsAny(reason, "expired"):
		e.WithRemediation("re-sign the artifact; the existing signature or certificate has expired")
	}
	return e
}

// ConcurrentSigning — the per-artifact-ref advisory lock was held past its
// configured timeout.
func ConcurrentSigning(ref string) *PromotionError {
	return New(CodeConcurrentSigning, fmt.Sprintf("timed out waiting for signing lock on %q", ref)).
		WithDetails("ref", ref).
		WithRemediation("retry; or raise FLOE_SIGNING_LOCK_TIMEOUT if contention is expected")
}

// GateValidation — at least one non-optional gate failed, or a block-action
// policy violation was present.
func GateValidation(failedGates []string) *PromotionError {
	return New(CodeGateValidation, "one or more promotion gates failed").
		WithDetails("failed_gates", failedGates)
}

// InvalidTransition — from/to are not adjacent in the chain, or direction is
// backward.
func InvalidTransition(from, to, reason string) *PromotionError {
	return New(CodeInvalidTransition, fmt.Sprintf("invalid transition from %q to %q: %s", from, to, reason)).
		WithDetails("from", from).
		WithDetails("to", to)
}

// TagExists — a conditional put found a different digest already present.
func TagExists(tag, existingDigest string) *PromotionError {
	return New(CodeTagExists, fmt.Sprintf("tag %q already exists with a different digest", tag)).
		WithDetails("tag", tag).
		WithDetails("existing_digest", previewDigest(existingDigest))
}

// VersionNotPromoted — the source env tag this promotion depends on does not
// exist.
func VersionNotPromoted(tag, env string) *PromotionError {
	return New(CodeVersionNotPromoted, fmt.Sprintf("%q was never promoted to %q", tag, env)).
		WithDetails("tag", tag).
		WithDetails("env", env)
}

// Authorization — reserved for caller-identity audit failures.
func Authorization(message string) *PromotionError {
	return New(CodeAuthorization, message)
}

// EnvironmentLocked — the target env is locked and the lock has not expired.
func EnvironmentLocked(env, reason, lockedBy string) *PromotionError {
	return New(CodeEnvironmentLocked, fmt.Sprintf("environment %q is locked: %s", env, reason)).
		WithDetails("env", env).
		WithDetails("locked_by", lockedBy).
		WithRemediation("unlock the environment or use force_unlock if appropriate")
}

// SeparationOfDuties — the current operator also performed the prior
// promotion this policy forbids repeating.
func SeparationOfDuties(env, operator string) *PromotionError {
	return New(CodeSeparationOfDuties, fmt.Sprintf("operator %q may not promote into %q: separation of duties", operator, env)).
		WithDetails("env", env).
		WithDetails("operator", operator)
}

// Helpers

// Is reports whether err is a PromotionError with the given Code.
func Is(err error, code Code) bool {
	var pe *PromotionError
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}

// As extracts the *PromotionError from err's chain, if present.
func As(err error) *PromotionError {
	var pe *PromotionError
	if errors.As(err, &pe) {
		return pe
	}
	return nil
}

// ExitCode returns 0 for nil, else the PromotionError exit code, else 1 for
// an unrecognized error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if pe := As(err); pe != nil {
		return pe.ExitCode()
	}
	return 1
}

func previewDigest(d string) string {
	if len(d) <= 19 {
		return d
	}
	return d[:19] + "…"
}

func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}
