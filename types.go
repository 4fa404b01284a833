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

// Package webauthn implements the core of a WebAuthn Relying Party: the
// registration and authentication ceremonies, binary authenticator message
// parsing, attestation verification, and assertion signature verification.
// HTTP transport, session storage, and user-record persistence are external
// collaborators reached through the CredentialRepository and MetadataService
// capabilities.
package webauthn

import (
	"time"

	"github.com/relyingparty/webauthn/attestation"
	"github.com/relyingparty/webauthn/cose"
)

// RelyingPartyIdentity identifies the RP to the authenticator and browser.
// ID must be a registrable suffix of every allowed origin's host.
type RelyingPartyIdentity struct {
	ID   string
	Name string
	Icon string
}

// UserIdentity identifies the account a credential is bound to. ID is the
// user handle: opaque to the authenticator, chosen by the RP, 1-64 bytes.
type UserIdentity struct {
	ID          []byte
	Name        string
	DisplayName string
	Icon        string
}

// Transport is an authenticator transport hint.
type Transport string

const (
	TransportUSB      Transport = "usb"
	TransportNFC      Transport = "nfc"
	TransportBLE      Transport = "ble"
	TransportInternal Transport = "internal"
)

// CredentialDescriptor references a credential by ID for exclude/allow lists.
type CredentialDescriptor struct {
	Type       string
	ID         []byte
	Transports []Transport
}

// CredentialParameter names an acceptable (type, alg) pair for new credentials.
type CredentialParameter struct {
	Type string
	Alg  cose.Algorithm
}

// RegisteredCredential is the external store's view of a bound credential.
// The core never holds a long-lived copy; it is handed one per lookup.
type RegisteredCredential struct {
	CredentialID   []byte
	UserHandle     []byte
	PublicKeyCOSE  []byte
	SignatureCount uint32
}

// Warning is a non-fatal advisory attached to an otherwise successful result.
type Warning struct {
	Code   string
	Detail string
}

const (
	WarningNoMetadataFound   = "no_metadata_found"
	WarningCounterAtZero     = "counter_at_zero"
	WarningUnrequestedExtension = "unrequested_extension"
)

// RegistrationResult carries everything the external store needs to persist
// a newly bound credential.
type RegistrationResult struct {
	CredentialID        []byte
	PublicKeyCOSE        []byte
	AttestationTrusted   bool
	AttestationType      attestation.Type
	AttestationMetadata  *AuthenticatorMetadata
	Warnings             []Warning
	SignatureCounter     uint32
}

// AuthenticatorMetadata is the subset of a MetadataService lookup worth
// surfacing to the caller alongside a RegistrationResult.
type AuthenticatorMetadata struct {
	AuthenticatorStatus string
	DeviceIdentifiers   []string
}

// AssertionResult reports the outcome of finishing an authentication
// ceremony, including the fresh signature counter state.
type AssertionResult struct {
	CredentialID          []byte
	UserHandle            []byte
	Username              string
	SignatureCount        uint32
	SignatureCounterValid bool
	Success               bool
	Warnings              []Warning
}

// CreationOptions is PublicKeyCredentialCreationOptions, handed to the
// client verbatim (the caller marshals it to JSON).
type CreationOptions struct {
	RP                     RelyingPartyIdentity
	User                   UserIdentity
	Challenge              []byte
	PubKeyCredParams       []CredentialParameter
	Timeout                time.Duration
	ExcludeCredentials     []CredentialDescriptor
	AuthenticatorSelection *AuthenticatorSelection
	Attestation            string // "none" | "indirect" | "direct"

	// Extensions lists the client extension input keys sent to the
	// authenticator. FinishRegistration compares authenticator data's
	// extension output against this set.
	Extensions map[string]interface{}
}

// AuthenticatorSelection narrows which authenticators may fulfil a
// registration ceremony.
type AuthenticatorSelection struct {
	ResidentKey             string // "discouraged" | "preferred" | "required"
	UserVerification        string // "required" | "preferred" | "discouraged"
	AuthenticatorAttachment string // "platform" | "cross-platform"
}

// RequestOptions is PublicKeyCredentialRequestOptions.
type RequestOptions struct {
	Challenge         []byte
	Timeout           time.Duration
	RPID              string
	AllowCredentials  []CredentialDescriptor
	UserVerification  string

	// Extensions lists the client extension input keys sent to the
	// authenticator. FinishAssertion compares authenticator data's
	// extension output against this set.
	Extensions map[string]interface{}
}

// CredentialAssertionResponse is the wire shape of a PublicKeyCredential
// produced by navigator.credentials.create() (registration).
type CredentialAssertionResponse struct {
	ID       []byte
	Type     string
	Response struct {
		ClientDataJSON    []byte
		AttestationObject []byte
	}
}

// CredentialAssertion is the wire shape of a PublicKeyCredential produced by
// navigator.credentials.get() (authentication).
type CredentialAssertion struct {
	ID       []byte
	Type     string
	Response struct {
		ClientDataJSON    []byte
		AuthenticatorData []byte
		Signature         []byte
		UserHandle        []byte
	}
}
