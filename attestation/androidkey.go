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

package attestation

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"

	"github.com/gravitational/trace"

	"github.com/relyingparty/webauthn/cose"
	"github.com/relyingparty/webauthn/protocol"
)

// androidKeyAttestationExtensionOID is the Android Key Attestation
// extension, 1.3.6.1.1.11.2.
var androidKeyAttestationExtensionOID = asn1.ObjectIdentifier{1, 3, 6, 1, 1, 11, 2}

// androidKeyAttestation is a minimal ASN.1 rendering of the KeyDescription
// sequence, far enough in to extract attestationChallenge and the two
// authorization lists this verifier checks. Inside those lists only the
// allApplications tag (both lists) and the origin and purpose tags
// (TEE-enforced list) are inspected; all other fields are ignored.
type androidKeyAttestation struct {
	AttestationVersion       int
	AttestationSecurityLevel asn1.RawValue
	KeymasterVersion         int
	KeymasterSecurityLevel   asn1.RawValue
	AttestationChallenge     []byte
	UniqueID                 []byte
	SoftwareEnforced         asn1.RawValue
	TeeEnforced              asn1.RawValue
}

type androidKeyStmt struct {
	Alg int64    `cbor:"alg"`
	Sig []byte   `cbor:"sig"`
	X5C [][]byte `cbor:"x5c"`
}

func verifyAndroidKey(in Input) (*Result, error) {
	var stmt androidKeyStmt
	if err := protocol.DecodeAttStmt(in.AttStmt, &stmt); err != nil {
		return nil, trace.Wrap(err, "attestation: android-key")
	}
	if len(stmt.X5C) == 0 {
		return nil, trace.BadParameter("attestation: android-key: missing x5c")
	}
	if in.AuthData.AttestedCredentialData == nil {
		return nil, trace.BadParameter("attestation: android-key: missing attested credential data")
	}

	leaf, err := x509.ParseCertificate(stmt.X5C[0])
	if err != nil {
		return nil, trace.BadParameter("attestation: android-key: parse leaf certificate: %v", err)
	}

	credKey, err := cose.DecodeKey(in.AuthData.AttestedCredentialData.CredentialKey)
	if err != nil {
		return nil, trace.Wrap(err, "attestation: android-key: decode credential key")
	}
	signedBytes := append(append([]byte{}, in.AuthData.Raw...), in.ClientDataHash[:]...)
	warnings, err := cose.Verify(credKey, signedBytes, stmt.Sig)
	if err != nil {
		return nil, trace.Wrap(err, "attestation: android-key: signature verification failed")
	}
	if !leafPublicKeyMatchesCredential(leaf, credKey) {
		return nil, trace.BadParameter("attestation: android-key: leaf certificate public key does not match credential public key")
	}

	att, err := parseAndroidKeyAttestationExtension(leaf)
	if err != nil {
		return nil, trace.Wrap(err, "attestation: android-key: key attestation extension")
	}
	if !bytes.Equal(att.AttestationChallenge, in.ClientDataHash[:]) {
		return nil, trace.BadParameter("attestation: android-key: attestationChallenge does not match clientDataHash")
	}
	if hasAllApplicationsTag(att.SoftwareEnforced.Bytes) || hasAllApplicationsTag(att.TeeEnforced.Bytes) {
		return nil, trace.BadParameter("attestation: android-key: authorization list must not contain allApplications")
	}
	if err := verifyTeeEnforcedOriginAndPurpose(att.TeeEnforced.Bytes); err != nil {
		return nil, trace.Wrap(err, "attestation: android-key")
	}

	return &Result{Type: TypeBasic, TrustPath: stmt.X5C, Warnings: warnings}, nil
}

// keymasterOriginGenerated and keymasterPurposeSign are KM_ORIGIN and
// KM_PURPOSE enum values from the Keymaster hardware abstraction layer.
const (
	keymasterOriginGenerated = 0
	keymasterPurposeSign     = 2
)

// authorizationListTagPurpose and authorizationListTagOrigin are the
// AuthorizationList SEQUENCE tags carrying the key's allowed purposes and
// its origin (generated in hardware vs. imported).
const (
	authorizationListTagPurpose = 1
	authorizationListTagOrigin  = 702
)

// verifyTeeEnforcedOriginAndPurpose requires the hardware-backed
// authorization list to record the key as generated in hardware (not
// imported) and restricted to signing.
func verifyTeeEnforcedOriginAndPurpose(teeEnforced []byte) error {
	origin, ok := explicitContextTag(teeEnforced, authorizationListTagOrigin)
	if !ok {
		return trace.BadParameter("TEE-enforced authorization list is missing the origin tag")
	}
	var originValue int
	if _, err := asn1.Unmarshal(origin.Bytes, &originValue); err != nil {
		return trace.BadParameter("malformed origin tag: %v", err)
	}
	if originValue != keymasterOriginGenerated {
		return trace.BadParameter("key origin %d is not KM_ORIGIN_GENERATED", originValue)
	}

	purpose, ok := explicitContextTag(teeEnforced, authorizationListTagPurpose)
	if !ok {
		return trace.BadParameter("TEE-enforced authorization list is missing the purpose tag")
	}
	var purposes []int
	if _, err := asn1.UnmarshalWithParams(purpose.Bytes, &purposes, "set"); err != nil {
		return trace.BadParameter("malformed purpose tag: %v", err)
	}
	for _, p := range purposes {
		if p == keymasterPurposeSign {
			return nil
		}
	}
	return trace.BadParameter("purpose list %v does not contain KM_PURPOSE_SIGN", purposes)
}

// explicitContextTag finds the EXPLICIT context-tagged element numbered tag
// among the top-level children of a DER-encoded SEQUENCE's content octets,
// returning the inner value it wraps. AuthorizationList carries dozens of
// optional fields in tag order; rather than modelling every one, this scans
// only for the tags the caller asks for.
func explicitContextTag(sequenceContent []byte, tag int) (asn1.RawValue, bool) {
	wrapped := append(append([]byte{0x30}, derLength(len(sequenceContent))...), sequenceContent...)
	var children []asn1.RawValue
	if _, err := asn1.Unmarshal(wrapped, &children); err != nil {
		return asn1.RawValue{}, false
	}
	for _, c := range children {
		if c.Class == asn1.ClassContextSpecific && c.Tag == tag {
			return c, true
		}
	}
	return asn1.RawValue{}, false
}

// derLength renders n as a DER definite-length header (short form under
// 128, long form otherwise).
func derLength(n int) []byte {
	if n < 128 {
		return []byte{byte(n)}
	}
	var content []byte
	for v := n; v > 0; v >>= 8 {
		content = append([]byte{byte(v & 0xFF)}, content...)
	}
	return append([]byte{0x80 | byte(len(content))}, content...)
}

func leafPublicKeyMatchesCredential(leaf *x509.Certificate, credKey *cose.Key) bool {
	switch pub := leaf.PublicKey.(type) {
	case *ecdsa.PublicKey:
		return credKey.EC2 != nil && pub.Equal(credKey.EC2)
	case *rsa.PublicKey:
		return credKey.RSA != nil && pub.Equal(credKey.RSA)
	default:
		return false
	}
}

// parseAndroidKeyAttestationExtension decodes the KeyDescription sequence
// carried in the Android Key Attestation certificate extension.
func parseAndroidKeyAttestationExtension(cert *x509.Certificate) (*androidKeyAttestation, error) {
	for _, ext := range cert.Extensions {
		if !ext.Id.Equal(androidKeyAttestationExtensionOID) {
			continue
		}
		var att androidKeyAttestation
		if _, err := asn1.Unmarshal(ext.Value, &att); err != nil {
			return nil, trace.BadParameter("malformed KeyDescription: %v", err)
		}
		return &att, nil
	}
	return nil, trace.BadParameter("leaf certificate is missing the Android Key Attestation extension")
}

// authorizationListTagAllApplications is tag [600] in the AuthorizationList
// SEQUENCE, indicating the key is usable by any application (forbidden).
const authorizationListTagAllApplications = 600

// hasAllApplicationsTag does a byte-level scan for the allApplications
// context tag within a DER-encoded AuthorizationList, without fully
// modelling every field of the Keymaster AuthorizationList schema.
func hasAllApplicationsTag(der []byte) bool {
	needle := append([]byte{0xBF}, encodeHighTagNumber(authorizationListTagAllApplications)...)
	return bytes.Contains(der, needle)
}

func encodeHighTagNumber(tag int) []byte {
	if tag == 0 {
		return []byte{0x00}
	}
	var out []byte
	for tag > 0 {
		b := byte(tag & 0x7F)
		tag >>= 7
		if len(out) > 0 {
			b |= 0x80
		}
		out = append([]byte{b}, out...)
	}
	return out
}
