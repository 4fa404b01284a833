/*
 * Copyright (C) 2024 The Relying Party Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package webauthn

import (
	"crypto/rand"
	"time"

	"github.com/gravitational/trace"

	"github.com/relyingparty/webauthn/cose"
)

// Policy holds the behavior flags that tune ceremony strictness.
type Policy struct {
	// AllowUntrustedAttestation permits a registration to succeed even when
	// the attestation type resolves to None or no metadata was found.
	// Default true.
	AllowUntrustedAttestation bool

	// ValidateSignatureCounter turns a counter-rollback observation into a
	// hard assertion failure instead of a warning-only signal. Default true.
	ValidateSignatureCounter bool

	// AllowOriginSubdomain permits an origin whose host is a subdomain of
	// RPIdentity.ID instead of requiring an exact match. Default false.
	AllowOriginSubdomain bool

	// AllowUnrequestedExtensions permits extension keys in authenticator
	// data that the ceremony did not request. Default false.
	AllowUnrequestedExtensions bool

	// RequireUserVerification promotes the "policy requires UV" rule into an
	// explicit flag shared by both ceremonies. Default false.
	RequireUserVerification bool

	// CheckOCSP opts into an advisory OCSP revocation check during
	// certificate chain validation. Default false.
	CheckOCSP bool
}

// DefaultPolicy returns the conservative, backward-compatible default: trust
// untrusted attestation but enforce signature counter monotonicity.
func DefaultPolicy() Policy {
	return Policy{
		AllowUntrustedAttestation: true,
		ValidateSignatureCounter:  true,
	}
}

// ChallengeGenerator produces fresh, cryptographically random ceremony
// challenges. The core owns thread-safety; callers needing deterministic
// challenges for tests supply their own via WithChallengeGenerator.
type ChallengeGenerator func() ([]byte, error)

func defaultChallengeGenerator() ([]byte, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, trace.Wrap(err, "webauthn: generate challenge")
	}
	return buf, nil
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// RelyingParty is the immutable C6 façade: configuration plus the four
// ceremony entry points. Construct once with New; safe for concurrent use
// by multiple goroutines, since every ceremony call is a pure function of
// its arguments and the injected CredentialRepository/MetadataService.
type RelyingParty struct {
	identity           RelyingPartyIdentity
	allowedOrigins     map[string]bool
	pubKeyCredParams   []CredentialParameter
	credentialRepo     CredentialRepository
	metadataService    MetadataService
	clock              Clock
	challengeGenerator ChallengeGenerator
	policy             Policy
	timeout            time.Duration
}

// Option configures a RelyingParty at construction time.
type Option func(*RelyingParty)

// WithAllowedOrigins sets the set of origins finishRegistration/finishAssertion
// will accept. At least one origin is required.
func WithAllowedOrigins(origins ...string) Option {
	return func(rp *RelyingParty) {
		for _, o := range origins {
			rp.allowedOrigins[o] = true
		}
	}
}

// WithCredentialParameters overrides the default pubKeyCredParams list
// offered during registration (default: ES256, RS256, EdDSA).
func WithCredentialParameters(params ...CredentialParameter) Option {
	return func(rp *RelyingParty) { rp.pubKeyCredParams = params }
}

// WithCredentialRepository injects the CredentialRepository capability.
func WithCredentialRepository(repo CredentialRepository) Option {
	return func(rp *RelyingParty) { rp.credentialRepo = repo }
}

// WithMetadataService injects the MetadataService capability.
func WithMetadataService(svc MetadataService) Option {
	return func(rp *RelyingParty) { rp.metadataService = svc }
}

// WithClock overrides the time source, for deterministic tests.
func WithClock(clock Clock) Option {
	return func(rp *RelyingParty) { rp.clock = clock }
}

// WithChallengeGenerator overrides challenge generation, for deterministic
// tests (production callers should leave this as the crypto/rand default).
func WithChallengeGenerator(gen ChallengeGenerator) Option {
	return func(rp *RelyingParty) { rp.challengeGenerator = gen }
}

// WithPolicy overrides the default policy flags.
func WithPolicy(policy Policy) Option {
	return func(rp *RelyingParty) { rp.policy = policy }
}

// WithTimeout sets the timeout hint surfaced in CreationOptions/RequestOptions.
func WithTimeout(d time.Duration) Option {
	return func(rp *RelyingParty) { rp.timeout = d }
}

// New constructs a RelyingParty for rpID/rpName, applying opts in order.
// At least one allowed origin and a CredentialRepository must be supplied
// via options; otherwise New returns an error.
func New(rpID, rpName string, opts ...Option) (*RelyingParty, error) {
	if rpID == "" {
		return nil, trace.BadParameter("webauthn: rpID must not be empty")
	}
	rp := &RelyingParty{
		identity: RelyingPartyIdentity{ID: rpID, Name: rpName},
		allowedOrigins: map[string]bool{},
		pubKeyCredParams: []CredentialParameter{
			{Type: "public-key", Alg: cose.AlgES256},
			{Type: "public-key", Alg: cose.AlgRS256},
			{Type: "public-key", Alg: cose.AlgEdDSA},
		},
		clock:              systemClock{},
		challengeGenerator: defaultChallengeGenerator,
		policy:             DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(rp)
	}
	if rp.credentialRepo == nil {
		return nil, trace.BadParameter("webauthn: a CredentialRepository must be supplied via WithCredentialRepository")
	}
	if len(rp.allowedOrigins) == 0 {
		return nil, trace.BadParameter("webauthn: at least one allowed origin must be supplied via WithAllowedOrigins")
	}
	return rp, nil
}

func (rp *RelyingParty) originAllowed(origin string) bool {
	if rp.allowedOrigins[origin] {
		return true
	}
	if !rp.policy.AllowOriginSubdomain {
		return false
	}
	return hasSubdomainOf(origin, rp.identity.ID)
}
