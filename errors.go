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

import "github.com/gravitational/trace"

// The error constructors below realize each abstract error kind as a
// github.com/gravitational/trace constructor, so callers can query the kind
// with trace.IsBadParameter/trace.IsAccessDenied/trace.IsNotFound instead of
// string-matching or type-asserting a bespoke error hierarchy.

func errMalformedData(format string, args ...interface{}) error {
	return trace.BadParameter(format, args...)
}

func errChallengeMismatch() error {
	return trace.BadParameter("webauthn: challenge does not match the one issued for this ceremony")
}

func errOriginMismatch(origin string) error {
	return trace.BadParameter("webauthn: origin %q is not an allowed origin", origin)
}

func errRPIDHashMismatch() error {
	return trace.BadParameter("webauthn: authenticator data rpIdHash does not match SHA256(rp.id)")
}

func errUserPresenceMissing() error {
	return trace.BadParameter("webauthn: authenticator data UP flag is not set")
}

func errUserVerificationRequired() error {
	return trace.AccessDenied("webauthn: policy requires user verification but authenticator data UV flag is not set")
}

func errUnsupportedAlgorithm(alg int64) error {
	return trace.BadParameter("webauthn: unsupported COSE algorithm %d", alg)
}

func errUnknownAttestationFormat(format string) error {
	return trace.BadParameter("webauthn: unknown attestation statement format %q", format)
}

func errInvalidAttestation(reason error) error {
	return trace.Wrap(reason, "webauthn: attestation statement is invalid")
}

func errUntrustedAttestation() error {
	return trace.AccessDenied("webauthn: attestation did not resolve to a trusted root and policy requires trust")
}

func errSignatureInvalid() error {
	return trace.AccessDenied("webauthn: assertion signature verification failed")
}

func errCredentialNotRegistered() error {
	return trace.NotFound("webauthn: credential is not registered")
}

func errUserHandleMismatch() error {
	return trace.AccessDenied("webauthn: response userHandle does not match the credential's stored user handle")
}

func errDisallowedCredential() error {
	return trace.BadParameter("webauthn: credential is not in the allowed/exclude list for this ceremony")
}

func errCounterRollback(stored, got uint32) error {
	return trace.AccessDenied("webauthn: signature counter did not advance (stored %d, got %d)", stored, got)
}

func errInternalCryptoError(err error) error {
	return trace.Wrap(err, "webauthn: internal cryptographic error")
}

func errInternalStoreError(err error) error {
	return trace.Wrap(err, "webauthn: credential repository or metadata service error")
}
