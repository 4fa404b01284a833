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

// Package protocol parses the binary and JSON wire artifacts WebAuthn
// authenticators and clients produce: authenticator data, attestation
// objects, and client data JSON.
package protocol

import (
	"bytes"
	"encoding/binary"

	cbor "github.com/fxamacker/cbor/v2"
	"github.com/gravitational/trace"
)

// Flag bits within AuthenticatorData.Flags, https://w3c.github.io/webauthn/#sctn-authenticator-data
const (
	FlagUserPresent         = 1 << 0
	FlagUserVerified        = 1 << 2
	FlagBackupEligible      = 1 << 3
	FlagBackupState         = 1 << 4
	FlagAttestedCredentials = 1 << 6
	FlagExtensionData       = 1 << 7
)

// AttestedCredentialData is the attacher-chosen credential binding present
// when AuthenticatorData.Flags has FlagAttestedCredentials set.
type AttestedCredentialData struct {
	AAGUID          [16]byte
	CredentialID    []byte
	CredentialKey   []byte // raw COSE_Key CBOR
}

// AuthenticatorData is the parsed fixed-layout authenticator data
// structure: rpIdHash(32) || flags(1) || signCount(u32 BE) ||
// attestedCredentialData? || extensions?.
type AuthenticatorData struct {
	RPIDHash   [32]byte
	Flags      byte
	SignCount  uint32

	AttestedCredentialData *AttestedCredentialData
	Extensions             map[string]interface{}

	// Raw is the exact byte slice this structure was parsed from. Callers
	// need the original bytes (not a re-encoding) to verify signatures.
	Raw []byte
}

func (ad *AuthenticatorData) UserPresent() bool  { return ad.Flags&FlagUserPresent != 0 }
func (ad *AuthenticatorData) UserVerified() bool { return ad.Flags&FlagUserVerified != 0 }
func (ad *AuthenticatorData) BackupEligible() bool { return ad.Flags&FlagBackupEligible != 0 }
func (ad *AuthenticatorData) BackupState() bool  { return ad.Flags&FlagBackupState != 0 }
func (ad *AuthenticatorData) HasAttestedCredentials() bool { return ad.Flags&FlagAttestedCredentials != 0 }
func (ad *AuthenticatorData) HasExtensions() bool { return ad.Flags&FlagExtensionData != 0 }

const maxCredentialIDLength = 1023

// ParseAuthenticatorData parses raw into an AuthenticatorData, enforcing
// that every length-prefixed field is fully present and that, when the
// extension-data flag is set, decoding the trailing CBOR map consumes the
// entire remaining buffer. Any structural violation is a MalformedData
// (trace.BadParameter) error.
func ParseAuthenticatorData(raw []byte) (*AuthenticatorData, error) {
	if len(raw) < 37 {
		return nil, trace.BadParameter("protocol: authenticator data shorter than the 37-byte fixed header")
	}
	ad := &AuthenticatorData{Raw: raw}
	copy(ad.RPIDHash[:], raw[:32])
	ad.Flags = raw[32]
	ad.SignCount = binary.BigEndian.Uint32(raw[33:37])
	rest := raw[37:]

	if ad.HasAttestedCredentials() {
		acd, remaining, err := parseAttestedCredentialData(rest)
		if err != nil {
			return nil, err
		}
		ad.AttestedCredentialData = acd
		rest = remaining
	}

	if ad.HasExtensions() {
		var ext map[string]interface{}
		dec := cbor.NewDecoder(bytes.NewReader(rest))
		if err := dec.Decode(&ext); err != nil {
			return nil, trace.BadParameter("protocol: decode extension data: %v", err)
		}
		consumed := dec.NumBytesRead()
		if consumed != len(rest) {
			return nil, trace.BadParameter("protocol: %d trailing bytes after extension data", len(rest)-consumed)
		}
		ad.Extensions = ext
	} else if len(rest) != 0 {
		return nil, trace.BadParameter("protocol: %d trailing bytes after authenticator data", len(rest))
	}

	return ad, nil
}

func parseAttestedCredentialData(raw []byte) (*AttestedCredentialData, []byte, error) {
	if len(raw) < 16+2 {
		return nil, nil, trace.BadParameter("protocol: attested credential data shorter than AAGUID+length header")
	}
	acd := &AttestedCredentialData{}
	copy(acd.AAGUID[:], raw[:16])
	raw = raw[16:]

	idLen := binary.BigEndian.Uint16(raw[:2])
	raw = raw[2:]
	if idLen > maxCredentialIDLength {
		return nil, nil, trace.BadParameter("protocol: credential ID length %d exceeds the %d-byte maximum", idLen, maxCredentialIDLength)
	}
	if len(raw) < int(idLen) {
		return nil, nil, trace.BadParameter("protocol: authenticator data too short for declared credential ID length")
	}
	acd.CredentialID = append([]byte(nil), raw[:idLen]...)
	raw = raw[idLen:]

	var coseKey cbor.RawMessage
	dec := cbor.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&coseKey); err != nil {
		return nil, nil, trace.BadParameter("protocol: decode credentialPublicKey: %v", err)
	}
	acd.CredentialKey = append([]byte(nil), coseKey...)
	return acd, raw[dec.NumBytesRead():], nil
}
