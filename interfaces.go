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
	"context"
	"time"
)

// CredentialRepository is the capability set the RP façade uses to resolve
// usernames, user handles, and stored credentials. It is the only
// non-pure input to the assertion engine; implementations may block and
// may fail, but the core never writes through it.
type CredentialRepository interface {
	GetCredentialIDsForUsername(ctx context.Context, username string) ([]CredentialDescriptor, error)
	GetUserHandleForUsername(ctx context.Context, username string) ([]byte, error)
	GetUsernameForUserHandle(ctx context.Context, userHandle []byte) (string, error)
	Lookup(ctx context.Context, credentialID, userHandle []byte) (*RegisteredCredential, error)
	LookupAll(ctx context.Context, credentialID []byte) ([]RegisteredCredential, error)
}

// MetadataResult is what a MetadataService lookup returns when it has an
// opinion about an authenticator model.
type MetadataResult struct {
	TrustedRootCerts    [][]byte // DER-encoded
	AuthenticatorStatus string
	DeviceIdentifiers   []string
}

// MetadataService resolves attestation trust anchors and status for a given
// AAGUID or leaf attestation certificate. A nil result with a nil error
// means "no opinion" (the registration still succeeds, untrusted).
type MetadataService interface {
	Lookup(ctx context.Context, aaguid [16]byte, attestationCert []byte) (*MetadataResult, error)
}

// Clock is the source of "now" the façade uses as the validation time when
// checking attestation certificate chains against metadata roots, injected
// so tests can control time instead of reaching for a global. The
// android-safetynet timestamp check does not consult it.
type Clock interface {
	Now() time.Time
}
