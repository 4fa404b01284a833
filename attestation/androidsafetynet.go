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
	"crypto/sha256"
	"crypto/x509"
	"encoding/json"
	"time"

	josejwt "github.com/go-jose/go-jose/v3"
	"github.com/gravitational/trace"

	"github.com/relyingparty/webauthn/protocol"
)

// now is overridable in tests, mirroring the pack's own pattern of
// swapping a package-level time source for a fixed instant.
var now = time.Now

// DefaultTimestampSkew is the default tolerance between the RP clock and
// the SafetyNet response's timestampMs.
const DefaultTimestampSkew = 60 * time.Second

// TimestampSkew may be overridden by callers with unusual clock drift.
var TimestampSkew = DefaultTimestampSkew

type safetyNetStmt struct {
	Ver      string `cbor:"ver"`
	Response []byte `cbor:"response"`
}

type safetyNetPayload struct {
	Nonce           []byte `json:"nonce"`
	TimestampMs     int64  `json:"timestampMs"`
	CtsProfileMatch bool   `json:"ctsProfileMatch"`
	BasicIntegrity  bool   `json:"basicIntegrity"`
}

func verifyAndroidSafetyNet(in Input) (*Result, error) {
	var stmt safetyNetStmt
	if err := protocol.DecodeAttStmt(in.AttStmt, &stmt); err != nil {
		return nil, trace.Wrap(err, "attestation: android-safetynet")
	}
	if stmt.Ver == "" {
		return nil, trace.BadParameter("attestation: android-safetynet: missing ver")
	}

	jws, err := josejwt.ParseSigned(string(stmt.Response))
	if err != nil {
		return nil, trace.BadParameter("attestation: android-safetynet: parse JWS response: %v", err)
	}
	if len(jws.Signatures) != 1 {
		return nil, trace.BadParameter("attestation: android-safetynet: expected exactly one JWS signature, got %d", len(jws.Signatures))
	}

	chains, err := jws.Signatures[0].Protected.Certificates(x509.VerifyOptions{
		DNSName:     "attest.android.com",
		CurrentTime: now(),
	})
	if err != nil {
		return nil, trace.AccessDenied("attestation: android-safetynet: leaf certificate chain did not validate for attest.android.com: %v", err)
	}
	leaf := chains[0][0]
	if leaf.Subject.CommonName != "attest.android.com" {
		return nil, trace.AccessDenied("attestation: android-safetynet: leaf certificate CN is %q, not attest.android.com", leaf.Subject.CommonName)
	}

	payloadBytes, err := jws.Verify(leaf.PublicKey)
	if err != nil {
		return nil, trace.AccessDenied("attestation: android-safetynet: JWS signature verification failed: %v", err)
	}
	var payload safetyNetPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, trace.BadParameter("attestation: android-safetynet: decode JWS payload: %v", err)
	}

	nonceInput := append(append([]byte{}, in.AuthData.Raw...), in.ClientDataHash[:]...)
	expectedNonce := sha256.Sum256(nonceInput)
	if !bytes.Equal(expectedNonce[:], payload.Nonce) {
		return nil, trace.BadParameter("attestation: android-safetynet: nonce does not match SHA256(authData || clientDataHash)")
	}
	if !payload.CtsProfileMatch {
		return nil, trace.BadParameter("attestation: android-safetynet: ctsProfileMatch is false")
	}
	if skew := timestampSkew(payload.TimestampMs); skew > TimestampSkew {
		return nil, trace.BadParameter("attestation: android-safetynet: timestampMs is %s outside the RP clock, exceeding the %s skew tolerance", skew, TimestampSkew)
	}

	trustPath := make([][]byte, len(chains[0]))
	for i, c := range chains[0] {
		trustPath[i] = c.Raw
	}
	return &Result{Type: TypeBasic, TrustPath: trustPath}, nil
}

func timestampSkew(timestampMs int64) time.Duration {
	reported := time.UnixMilli(timestampMs)
	delta := now().Sub(reported)
	if delta < 0 {
		delta = -delta
	}
	return delta
}
