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
	"fmt"

	"github.com/gravitational/trace"

	"github.com/relyingparty/webauthn/cose"
	"github.com/relyingparty/webauthn/protocol"
)

// StartAssertion builds PublicKeyCredentialRequestOptions for username. An
// empty username requests a usernameless (resident-key) ceremony, in which
// case AllowCredentials is left empty and the credential's user handle is
// resolved during FinishAssertion instead.
func (rp *RelyingParty) StartAssertion(ctx context.Context, username string) (*RequestOptions, error) {
	challenge, err := rp.challengeGenerator()
	if err != nil {
		return nil, err
	}
	if len(challenge) < 16 {
		return nil, trace.BadParameter("webauthn: challenge generator returned %d bytes, need at least 16", len(challenge))
	}

	var allow []CredentialDescriptor
	if username != "" {
		descs, err := rp.credentialRepo.GetCredentialIDsForUsername(ctx, username)
		if err != nil {
			return nil, errInternalStoreError(err)
		}
		allow = descs
	}

	uv := "preferred"
	if rp.policy.RequireUserVerification {
		uv = "required"
	}
	return &RequestOptions{
		Challenge:        challenge,
		Timeout:          rp.timeout,
		RPID:             rp.identity.ID,
		AllowCredentials: allow,
		UserVerification: uv,
	}, nil
}

// FinishAssertion validates cred against options and reports the outcome,
// reporting the outcome.
func (rp *RelyingParty) FinishAssertion(ctx context.Context, options *RequestOptions, cred *CredentialAssertion) (*AssertionResult, error) {
	// 1. allowCredentials membership, if non-empty.
	if len(options.AllowCredentials) > 0 && !descriptorsContain(options.AllowCredentials, cred.ID) {
		return nil, errDisallowedCredential()
	}

	// 2. Resolve the user handle.
	userHandle, err := rp.resolveUserHandle(ctx, cred.ID, cred.Response.UserHandle)
	if err != nil {
		return nil, err
	}

	// 3. Retrieve the stored credential.
	stored, err := rp.credentialRepo.Lookup(ctx, cred.ID, userHandle)
	if err != nil {
		return nil, errInternalStoreError(err)
	}
	if stored == nil {
		return nil, errCredentialNotRegistered()
	}

	// 4. Decode authenticatorData.
	authData, err := protocol.ParseAuthenticatorData(cred.Response.AuthenticatorData)
	if err != nil {
		return nil, trace.Wrap(err, "webauthn: parse authenticator data")
	}

	// 5. rpIdHash check.
	if authData.RPIDHash != rpIDHash(options.RPID) {
		return nil, errRPIDHashMismatch()
	}

	// 6. UP/UV checks.
	if !authData.UserPresent() {
		return nil, errUserPresenceMissing()
	}
	if rp.policy.RequireUserVerification && !authData.UserVerified() {
		return nil, errUserVerificationRequired()
	}

	// 7-8. clientData checks, clientDataHash.
	_, clientDataHash, err := rp.verifyClientData(cred.Response.ClientDataJSON, "webauthn.get", options.Challenge)
	if err != nil {
		return nil, err
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

	// 9. Verify the signature over authenticatorData || clientDataHash.
	key, err := cose.DecodeKey(stored.PublicKeyCOSE)
	if err != nil {
		return nil, errInternalCryptoError(err)
	}
	signedBytes := append(append([]byte{}, cred.Response.AuthenticatorData...), clientDataHash[:]...)
	warnings, err := cose.Verify(key, signedBytes, cred.Response.Signature)
	if err != nil {
		return nil, errSignatureInvalid()
	}

	// 10. Counter monotonicity.
	counterValid := authData.SignCount > stored.SignatureCount || (authData.SignCount == 0 && stored.SignatureCount == 0)
	success := true
	if !counterValid && rp.policy.ValidateSignatureCounter {
		success = false
	}

	username, err := rp.credentialRepo.GetUsernameForUserHandle(ctx, userHandle)
	if err != nil {
		return nil, errInternalStoreError(err)
	}

	var resultWarnings []Warning
	for _, w := range warnings {
		resultWarnings = append(resultWarnings, Warning{Code: w.Code, Detail: w.Detail})
	}
	if authData.SignCount == 0 {
		resultWarnings = append(resultWarnings, Warning{Code: WarningCounterAtZero, Detail: "authenticator reports a zero signature counter"})
	}
	resultWarnings = append(resultWarnings, extensionWarnings...)

	result := &AssertionResult{
		CredentialID:          cred.ID,
		UserHandle:            userHandle,
		Username:              username,
		SignatureCount:        authData.SignCount,
		SignatureCounterValid: counterValid,
		Success:               success,
		Warnings:              resultWarnings,
	}
	if !success {
		return result, errCounterRollback(stored.SignatureCount, authData.SignCount)
	}
	return result, nil
}

// resolveUserHandle: prefer the response's own
// userHandle when present, else fall back to the credential's stored handle.
func (rp *RelyingParty) resolveUserHandle(ctx context.Context, credentialID, responseUserHandle []byte) ([]byte, error) {
	if len(responseUserHandle) == 0 {
		all, err := rp.credentialRepo.LookupAll(ctx, credentialID)
		if err != nil {
			return nil, errInternalStoreError(err)
		}
		if len(all) == 0 {
			return nil, errCredentialNotRegistered()
		}
		return all[0].UserHandle, nil
	}

	all, err := rp.credentialRepo.LookupAll(ctx, credentialID)
	if err != nil {
		return nil, errInternalStoreError(err)
	}
	for _, rc := range all {
		if bytes.Equal(rc.UserHandle, responseUserHandle) {
			return responseUserHandle, nil
		}
	}
	return nil, errUserHandleMismatch()
}
