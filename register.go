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
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"

	cbor "github.com/fxamacker/cbor/v2"
	"github.com/gravitational/trace"

	"github.com/relyingparty/webauthn/attestation"
	"github.com/relyingparty/webauthn/cose"
	"github.com/relyingparty/webauthn/protocol"
)

// StartRegistration builds PublicKeyCredentialCreationOptions for user,
// excluding any credentials already on file for them.
func (rp *RelyingParty) StartRegistration(ctx context.Context, user UserIdentity, attestationPreference string) (*CreationOptions, error) {
	if len(user.ID) == 0 || len(user.ID) > 64 {
		return nil, trace.BadParameter("webauthn: user handle must be 1-64 bytes, got %d", len(user.ID))
	}
	if attestationPreference == "" {
		attestationPreference = "none"
	}

	challenge, err := rp.challengeGenerator()
	if err != nil {
		return nil, err
	}
	if len(challenge) < 16 {
		return nil, trace.BadParameter("webauthn: challenge generator returned %d bytes, need at least 16", len(challenge))
	}

	var exclude []CredentialDescriptor
	if descs, err := rp.credentialRepo.GetCredentialIDsForUsername(ctx, user.Name); err != nil {
		return nil, errInternalStoreError(err)
	} else {
		exclude = descs
	}

	return &CreationOptions{
		RP:                 rp.identity,
		User:               user,
		Challenge:          challenge,
		PubKeyCredParams:   rp.pubKeyCredParams,
		Timeout:            rp.timeout,
		ExcludeCredentials: exclude,
		Attestation:        attestationPreference,
	}, nil
}

// FinishRegistration validates cred against options and returns the result
// the caller should persist.
func (rp *RelyingParty) FinishRegistration(ctx context.Context, options *CreationOptions, cred *CredentialAssertionResponse) (*RegistrationResult, error) {
	// 1. credential.type == "public-key".
	if cred.Type != "public-key" {
		return nil, trace.BadParameter("webauthn: credential type must be %q, got %q", "public-key", cred.Type)
	}

	// 2-3. clientData checks, clientDataHash.
	_, clientDataHash, err := rp.verifyClientData(cred.Response.ClientDataJSON, "webauthn.create", options.Challenge)
	if err != nil {
		return nil, err
	}

	// 4. Decode attestationObject; parse authData.
	attObj, err := protocol.ParseAttestationObject(cred.Response.AttestationObject)
	if err != nil {
		return nil, trace.Wrap(err, "webauthn: parse attestation object")
	}
	authData := attObj.AuthData

	// 5. rpIdHash check.
	if authData.RPIDHash != rpIDHash(options.RP.ID) {
		return nil, errRPIDHashMismatch()
	}

	// 6. UP/UV checks.
	if !authData.UserPresent() {
		return nil, errUserPresenceMissing()
	}
	if rp.policy.RequireUserVerification && !authData.UserVerified() {
		return nil, errUserVerificationRequired()
	}

	// 7. AT flag and attested credential data present.
	if !authData.HasAttestedCredentials() || authData.AttestedCredentialData == nil {
		return nil, trace.BadParameter("webauthn: authenticator data does not carry attested credential data")
	}

	var extensionWarnings []Warning
	if extra := unrequestedExtensions(options.Extensions, authData.Extensions); len(extra) > 0 {
		if !rp.policy.AllowUnrequestedExtensions {
			return nil, trace.BadParameter("webauthn: authenticator data carries unrequested extensions: %v", extra)
		}
		extensionWarnings = append(extensionWarnings, Warning{
			Code:   WarningUnrequestedExtension,
			Detail: fmt.Sprintf("unrequested extensions: %v", extra),
		})
	}

	// 8. credentialPublicKey.alg must be one of the requested pubKeyCredParams.
	keyAlg, err := coseKeyAlg(authData.AttestedCredentialData.CredentialKey)
	if err != nil {
		return nil, trace.Wrap(err, "webauthn: decode credential public key")
	}
	if !credentialParamAllowed(options.PubKeyCredParams, keyAlg) {
		return nil, errUnsupportedAlgorithm(keyAlg)
	}

	// 9. Dispatch to the attestation verifier keyed by fmt, with the
	// attestation=="none" downgrade rule for unknown formats.
	format := attObj.Format
	if _, ok := attestation.Verifiers[format]; !ok {
		if options.Attestation == "none" && format == "none" {
			format = "none"
		} else {
			return nil, errUnknownAttestationFormat(format)
		}
	}
	attResult, err := attestation.Verify(format, attestation.Input{
		AttStmt:        attObj.AttStmt,
		AuthData:       authData,
		ClientDataHash: clientDataHash,
	})
	if err != nil {
		return nil, errInvalidAttestation(err)
	}

	// 10. Determine trust via metadata lookup.
	trusted, metadata, warnings := rp.resolveTrust(ctx, authData.AttestedCredentialData.AAGUID, attResult)
	if !trusted && !rp.policy.AllowUntrustedAttestation {
		return nil, errUntrustedAttestation()
	}

	// 11. Reject a credential ID collision with excludeCredentials.
	if descriptorsContain(options.ExcludeCredentials, authData.AttestedCredentialData.CredentialID) {
		return nil, errDisallowedCredential()
	}

	for _, w := range attResult.Warnings {
		warnings = append(warnings, Warning{Code: w.Code, Detail: w.Detail})
	}
	warnings = append(warnings, extensionWarnings...)

	return &RegistrationResult{
		CredentialID:       authData.AttestedCredentialData.CredentialID,
		PublicKeyCOSE:      authData.AttestedCredentialData.CredentialKey,
		AttestationTrusted: trusted,
		AttestationType:    attResult.Type,
		AttestationMetadata: metadata,
		Warnings:           warnings,
		SignatureCounter:   authData.SignCount,
	}, nil
}

// resolveTrust combines the verifier's trust path with an external metadata
// lookup keyed by AAGUID.
func (rp *RelyingParty) resolveTrust(ctx context.Context, aaguid [16]byte, attResult *attestation.Result) (bool, *AuthenticatorMetadata, []Warning) {
	if rp.metadataService == nil {
		return false, nil, []Warning{{Code: WarningNoMetadataFound, Detail: "no MetadataService configured"}}
	}
	var leafCert []byte
	if len(attResult.TrustPath) > 0 {
		leafCert = attResult.TrustPath[0]
	}
	meta, err := rp.metadataService.Lookup(ctx, aaguid, leafCert)
	if err != nil {
		return false, nil, []Warning{{Code: WarningNoMetadataFound, Detail: err.Error()}}
	}
	if meta == nil {
		return false, nil, []Warning{{Code: WarningNoMetadataFound, Detail: "metadata service has no record for this AAGUID"}}
	}

	trusted := meta.AuthenticatorStatus == "" || isAcceptableStatus(meta.AuthenticatorStatus)
	var warnings []Warning
	if trusted && len(attResult.TrustPath) > 0 && len(meta.TrustedRootCerts) > 0 {
		chainTrusted, chainWarnings := rp.verifyAttestationChain(attResult.TrustPath, meta.TrustedRootCerts)
		trusted = trusted && chainTrusted
		warnings = append(warnings, chainWarnings...)
	}
	return trusted, &AuthenticatorMetadata{
		AuthenticatorStatus: meta.AuthenticatorStatus,
		DeviceIdentifiers:   meta.DeviceIdentifiers,
	}, warnings
}

// verifyAttestationChain validates the verifier's trust path against the
// roots a MetadataService vouches for.
func (rp *RelyingParty) verifyAttestationChain(trustPath [][]byte, rootsDER [][]byte) (bool, []Warning) {
	leaf, err := x509.ParseCertificate(trustPath[0])
	if err != nil {
		return false, nil
	}
	var intermediates []*x509.Certificate
	for _, der := range trustPath[1:] {
		if c, err := x509.ParseCertificate(der); err == nil {
			intermediates = append(intermediates, c)
		}
	}
	var roots []*x509.Certificate
	for _, der := range rootsDER {
		if c, err := x509.ParseCertificate(der); err == nil {
			roots = append(roots, c)
		}
	}

	result, err := cose.VerifyCertChain(leaf, intermediates, roots, rp.clock.Now(), rp.policy.CheckOCSP)
	if err != nil {
		return false, nil
	}
	var warnings []Warning
	for _, w := range result.Warnings {
		warnings = append(warnings, Warning{Code: w.Code, Detail: w.Detail})
	}
	return true, warnings
}

func isAcceptableStatus(status string) bool {
	switch status {
	case "REVOKED", "USER_VERIFICATION_BYPASS", "ATTESTATION_KEY_COMPROMISE", "USER_KEY_REMOTE_COMPROMISE", "USER_KEY_PHYSICAL_COMPROMISE":
		return false
	default:
		return true
	}
}

// verifyClientData decodes clientDataJSON, checks type/challenge/origin, and
// returns the SHA256 of the raw bytes.
func (rp *RelyingParty) verifyClientData(clientDataJSON []byte, wantType string, wantChallenge []byte) (*protocol.ClientData, [32]byte, error) {
	cd, err := protocol.ParseClientData(clientDataJSON)
	if err != nil {
		return nil, [32]byte{}, trace.Wrap(err, "webauthn: parse client data")
	}
	if cd.Type != wantType {
		return nil, [32]byte{}, trace.BadParameter("webauthn: clientData.type must be %q, got %q", wantType, cd.Type)
	}
	gotChallenge, err := base64.RawURLEncoding.DecodeString(cd.Challenge)
	if err != nil {
		return nil, [32]byte{}, errMalformedData("webauthn: clientData.challenge is not valid base64url: %v", err)
	}
	if !bytes.Equal(gotChallenge, wantChallenge) {
		return nil, [32]byte{}, errChallengeMismatch()
	}
	if !rp.originAllowed(cd.Origin) {
		return nil, [32]byte{}, errOriginMismatch(cd.Origin)
	}
	// Token-binding hook: default accepts any binding status, since the
	// deprecated Token Binding protocol has no surviving client support.
	return cd, sha256.Sum256(clientDataJSON), nil
}

func coseKeyAlg(raw []byte) (int64, error) {
	var hdr struct {
		Alg int64 `cbor:"3,keyasint"`
	}
	if err := cbor.Unmarshal(raw, &hdr); err != nil {
		return 0, errMalformedData("webauthn: decode COSE key algorithm: %v", err)
	}
	return hdr.Alg, nil
}
