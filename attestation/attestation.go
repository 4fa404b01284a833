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

// Package attestation implements one verifier per WebAuthn attestation
// statement format. Dispatch is a closed map keyed by the format string a
// CBOR attestation object declares: there is no dynamic/reflective lookup,
// only a match over the formats this package knows about.
package attestation

import (
	"github.com/gravitational/trace"

	"github.com/relyingparty/webauthn/cose"
	"github.com/relyingparty/webauthn/protocol"
)

// Type is the attestation type a verifier concludes, a closed sum type.
type Type int

const (
	TypeNone Type = iota
	TypeSelf
	TypeBasic
	TypeAttCA
	TypeBasicOrAttCA
)

func (t Type) String() string {
	switch t {
	case TypeNone:
		return "None"
	case TypeSelf:
		return "Self"
	case TypeBasic:
		return "Basic"
	case TypeAttCA:
		return "AttCA"
	case TypeBasicOrAttCA:
		return "BasicOrAttCA"
	default:
		return "Unknown"
	}
}

// Result is what a Verifier returns on success: the attestation type and
// the trust path (x5c-style DER certificates) backing it, if any.
type Result struct {
	Type      Type
	TrustPath [][]byte // DER-encoded certificates, leaf first
	Warnings  []cose.Warning
}

// Input bundles the values every verifier needs, so individual verifiers
// don't each reparse the attestation object.
type Input struct {
	AttStmt        []byte // raw CBOR map
	AuthData       *protocol.AuthenticatorData
	ClientDataHash [32]byte
}

// Verifier implements verify(attStmt, authData, clientDataHash) ->
// AttestationTypeAndTrustPath.
type Verifier func(in Input) (*Result, error)

// Verifiers is the closed registry of supported statement formats.
var Verifiers = map[string]Verifier{
	"none":              verifyNone,
	"packed":            verifyPacked,
	"fido-u2f":          verifyFIDOU2F,
	"android-key":       verifyAndroidKey,
	"android-safetynet": verifyAndroidSafetyNet,
	"tpm":               verifyTPM,
}

// Verify dispatches to the verifier registered for format. If format is
// unrecognized, it fails with an unknown-format error; the decision to
// downgrade an unrecognized format to "none" belongs to the registration
// engine, not this package, so Verify simply reports the error and lets the
// caller decide whether to retry with the "none" verifier.
func Verify(format string, in Input) (*Result, error) {
	v, ok := Verifiers[format]
	if !ok {
		return nil, trace.BadParameter("attestation: unknown statement format %q", format)
	}
	return v(in)
}
