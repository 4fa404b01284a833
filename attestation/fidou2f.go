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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"

	"github.com/gravitational/trace"

	"github.com/relyingparty/webauthn/cose"
	"github.com/relyingparty/webauthn/protocol"
)

type fidoU2FStmt struct {
	Sig []byte   `cbor:"sig"`
	X5C [][]byte `cbor:"x5c"`
}

// verifyFIDOU2F implements the fido-u2f attestation statement format:
// reconstruct the U2F raw registration response signed bytes and verify
// with the single x5c leaf certificate.
func verifyFIDOU2F(in Input) (*Result, error) {
	var stmt fidoU2FStmt
	if err := protocol.DecodeAttStmt(in.AttStmt, &stmt); err != nil {
		return nil, trace.Wrap(err, "attestation: fido-u2f")
	}
	if len(stmt.X5C) != 1 {
		return nil, trace.BadParameter("attestation: fido-u2f: expected exactly one x5c certificate, got %d", len(stmt.X5C))
	}
	if in.AuthData.AttestedCredentialData == nil {
		return nil, trace.BadParameter("attestation: fido-u2f: missing attested credential data")
	}

	key, err := cose.DecodeKey(in.AuthData.AttestedCredentialData.CredentialKey)
	if err != nil {
		return nil, trace.Wrap(err, "attestation: fido-u2f: decode credential key")
	}
	if key.EC2 == nil || key.EC2.Curve != elliptic.P256() {
		return nil, trace.BadParameter("attestation: fido-u2f: credential key must be an EC P-256 key")
	}
	publicKeyU2F := u2fUncompressedPoint(key.EC2)

	signedBytes := make([]byte, 0, 1+32+32+len(in.AuthData.AttestedCredentialData.CredentialID)+len(publicKeyU2F))
	signedBytes = append(signedBytes, 0x00)
	signedBytes = append(signedBytes, in.AuthData.RPIDHash[:]...)
	signedBytes = append(signedBytes, in.ClientDataHash[:]...)
	signedBytes = append(signedBytes, in.AuthData.AttestedCredentialData.CredentialID...)
	signedBytes = append(signedBytes, publicKeyU2F...)

	leaf, err := x509.ParseCertificate(stmt.X5C[0])
	if err != nil {
		return nil, trace.BadParameter("attestation: fido-u2f: parse leaf certificate: %v", err)
	}
	if err := leaf.CheckSignature(leaf.SignatureAlgorithm, signedBytes, stmt.Sig); err != nil {
		return nil, trace.AccessDenied("attestation: fido-u2f: leaf signature verification failed: %v", err)
	}

	return &Result{Type: TypeBasic, TrustPath: stmt.X5C}, nil
}

// u2fUncompressedPoint renders an EC public key as the legacy U2F
// 0x04 || x || y uncompressed point format, padding x/y to 32 bytes each.
func u2fUncompressedPoint(pub *ecdsa.PublicKey) []byte {
	out := make([]byte, 1+32+32)
	out[0] = 0x04
	pub.X.FillBytes(out[1:33])
	pub.Y.FillBytes(out[33:65])
	return out
}
