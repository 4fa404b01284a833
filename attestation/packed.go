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
	"crypto/x509"
	"encoding/asn1"

	"github.com/gravitational/trace"

	"github.com/relyingparty/webauthn/cose"
	"github.com/relyingparty/webauthn/protocol"
)

// extensionIDFIDOGenCAAAGUID is id-fido-gen-ce-aaguid, 1.3.6.1.4.1.45724.1.1.4.
var extensionIDFIDOGenCAAAGUID = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 45724, 1, 1, 4}

type packedStmt struct {
	Alg int64    `cbor:"alg"`
	Sig []byte   `cbor:"sig"`
	X5C [][]byte `cbor:"x5c,omitempty"`
}

func verifyPacked(in Input) (*Result, error) {
	var stmt packedStmt
	if err := protocol.DecodeAttStmt(in.AttStmt, &stmt); err != nil {
		return nil, trace.Wrap(err, "attestation: packed")
	}
	if len(stmt.Sig) == 0 {
		return nil, trace.BadParameter("attestation: packed: missing sig")
	}
	signedBytes := append(append([]byte{}, in.AuthData.Raw...), in.ClientDataHash[:]...)

	if len(stmt.X5C) > 0 {
		return verifyPackedBasic(in, stmt, signedBytes)
	}
	return verifyPackedSelf(in, stmt, signedBytes)
}

func verifyPackedSelf(in Input, stmt packedStmt, signedBytes []byte) (*Result, error) {
	if in.AuthData.AttestedCredentialData == nil {
		return nil, trace.BadParameter("attestation: packed: self-attestation requires attested credential data")
	}
	key, err := cose.DecodeKey(in.AuthData.AttestedCredentialData.CredentialKey)
	if err != nil {
		return nil, trace.Wrap(err, "attestation: packed: decode credential key")
	}
	// A mismatch between the declared alg and the credential's own alg is a
	// hard failure, not bug-compatible leniency.
	if cose.Algorithm(stmt.Alg) != key.Alg {
		return nil, trace.BadParameter("attestation: packed: self-attestation alg %d does not match credential alg %d", stmt.Alg, key.Alg)
	}
	warnings, err := cose.Verify(key, signedBytes, stmt.Sig)
	if err != nil {
		return nil, trace.Wrap(err, "attestation: packed: self-attestation signature")
	}
	return &Result{Type: TypeSelf, Warnings: warnings}, nil
}

func verifyPackedBasic(in Input, stmt packedStmt, signedBytes []byte) (*Result, error) {
	leaf, err := x509.ParseCertificate(stmt.X5C[0])
	if err != nil {
		return nil, trace.BadParameter("attestation: packed: parse leaf certificate: %v", err)
	}
	if err := leaf.CheckSignature(leaf.SignatureAlgorithm, signedBytes, stmt.Sig); err != nil {
		return nil, trace.AccessDenied("attestation: packed: leaf signature verification failed: %v", err)
	}

	// Packed attestation statement certificate requirements.
	if leaf.Version != 3 {
		return nil, trace.BadParameter("attestation: packed: leaf certificate version must be 3, got %d", leaf.Version)
	}
	if leaf.IsCA {
		return nil, trace.BadParameter("attestation: packed: leaf certificate must not be a CA")
	}
	if !hasOrgUnit(leaf, "Authenticator Attestation") {
		return nil, trace.BadParameter("attestation: packed: leaf certificate subject OU must be %q", "Authenticator Attestation")
	}
	if in.AuthData.AttestedCredentialData == nil {
		return nil, trace.BadParameter("attestation: packed: missing attested credential data")
	}
	if aaguid, ok := aaguidExtension(leaf); ok && !bytes.Equal(aaguid, in.AuthData.AttestedCredentialData.AAGUID[:]) {
		return nil, trace.BadParameter("attestation: packed: certificate AAGUID extension does not match authData AAGUID")
	}

	return &Result{Type: TypeBasic, TrustPath: stmt.X5C}, nil
}

func hasOrgUnit(cert *x509.Certificate, ou string) bool {
	for _, u := range cert.Subject.OrganizationalUnit {
		if u == ou {
			return true
		}
	}
	return false
}

// aaguidExtension returns the decoded 16-byte AAGUID carried in the
// id-fido-gen-ce-aaguid extension, if present. The value is DER-encoded as
// an OCTET STRING wrapping the raw 16 bytes, so it must be unwrapped once.
func aaguidExtension(cert *x509.Certificate) ([]byte, bool) {
	for _, ext := range cert.Extensions {
		if !ext.Id.Equal(extensionIDFIDOGenCAAAGUID) {
			continue
		}
		var aaguid []byte
		if _, err := asn1.Unmarshal(ext.Value, &aaguid); err != nil {
			return nil, false
		}
		return aaguid, true
	}
	return nil, false
}
