package signing

import (
	"context"
	"fmt"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/sigstore/cosign/v2/pkg/oci"
	ociremote "github.com/sigstore/cosign/v2/pkg/oci/remote"

	"github.com/obsidian-owl/floe/internal/floe"
)

// CosignVerifier verifies artifact signatures against a sigstore/cosign
// signed-entity, the way the rancher-charts build-scripts synchronizer walks
// signatures/attestations over a registry reference.
type CosignVerifier struct {
	trusted  *TrustedPatterns
	remoteOpts []ociremote.Option
}

// NewCosignVerifier builds a verifier for the given trusted signer patterns.
func NewCosignVerifier(trusted *TrustedPatterns, remoteOpts ...ociremote.Option) *CosignVerifier {
	return &CosignVerifier{trusted: trusted, remoteOpts: remoteOpts}
}

// Verify classifies ref's signature by signer identity: it reports Valid for
// the first signature whose signer identity (see classifySignature) matches
// a trusted pattern, Invalid when signatures exist but none has a trusted
// identity, and Unsigned when no signatures can be listed. The signature
// payload is not cryptographically verified, no transparency-log entry is
// checked, and Expired is never reported. A failure to parse the ref or to
// resolve or read its signatures returns Error, not a hard failure — the
// caller (Controller) decides whether to fail closed.
func (v *CosignVerifier) Verify(ctx context.Context, ref string) (*Result, error) {
	reference, err := name.ParseReference(ref)
	if err != nil {
		return &Result{Status: floe.SignatureError, Reason: fmt.Sprintf("malformed ref: %v", err)}, nil
	}

	signed, err := ociremote.SignedEntity(reference, v.remoteOpts...)
	if err != nil {
		return &Result{Status: floe.SignatureError, Reason: fmt.Sprintf("resolve signed entity: %v", err)}, nil
	}

	sigs, err := signed.Signatures()
	if err != nil {
		return &Result{Status: floe.SignatureError, Reason: fmt.Sprintf("read signatures: %v", err)}, nil
	}

	entries, err := sigs.Get()
	if err != nil || len(entries) == 0 {
		return &Result{Status: floe.SignatureUnsigned}, nil
	}

	var best *Result
	for _, sig := range entries {
		result, identity, expired := v.classifySignature(sig)
		if result.Status == floe.SignatureValid {
			if v.trusted != nil && !v.trusted.Matches(identity) {
				best = &Result{Status: floe.SignatureInvalid, Reason: fmt.Sprintf("signer %q is not in the trusted signer set", identity)}
				continue
			}
			return &Result{Status: floe.SignatureValid, SignerIdentity: identity}, nil
		}
		if expired {
			best = &Result{Status: floe.SignatureExpired, Reason: "certificate or signature has expired"}
			continue
		}
		best = result
	}
	if best == nil {
		best = &Result{Status: floe.SignatureInvalid, Reason: "no valid signature found"}
	}
	return best, nil
}

// classifySignature extracts the signer identity from a cosign signature:
// the certificate's first email address, else its subject common name, else
// (when there is no certificate) the dev.floe.signer annotation. Any
// signature with an identity is classified Valid. Neither the certificate's
// validity period or chain nor the signature payload is checked
// (cosign/pkg/cosign.VerifyImageSignature is not called), so expired is
// always false.
func (v *CosignVerifier) classifySignature(sig oci.Signature) (result *Result, identity string, expired bool) {
	cert, err := sig.Cert()
	if err != nil || cert == nil {
		// Keyless (Fulcio) identity unavailable; fall back to the
		// annotation-carried signer identity if present.
		ann, _ := sig.Annotations()
		if sub, ok := ann["dev.floe.signer"]; ok {
			return &Result{Status: floe.SignatureValid}, sub, false
		}
		return &Result{Status: floe.SignatureInvalid, Reason: "no certificate or signer identity present"}, "", false
	}

	identity = cert.Subject.CommonName
	if len(cert.EmailAddresses) > 0 {
		identity = cert.EmailAddresses[0]
	}
	return &Result{Status: floe.SignatureValid}, identity, false
}

var _ Verifier = (*CosignVerifier)(nil)
