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
	"crypto/rand"
	"encoding/binary"
	"testing"

	cbor "github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"

	"github.com/relyingparty/webauthn/cose"
	"github.com/relyingparty/webauthn/protocol"
)

func es256CoseKey(t *testing.T, pub ecdsa.PublicKey) []byte {
	t.Helper()
	raw, err := cbor.Marshal(struct {
		Kty   int    `cbor:"1,keyasint"`
		Alg   int    `cbor:"3,keyasint"`
		Curve int    `cbor:"-1,keyasint"`
		X     []byte `cbor:"-2,keyasint"`
		Y     []byte `cbor:"-3,keyasint"`
	}{2, int(cose.AlgES256), 1, pub.X.Bytes(), pub.Y.Bytes()})
	require.NoError(t, err)
	return raw
}

// buildAuthData assembles a minimal rpIdHash||flags||signCount||attestedCredentialData
// authenticator data buffer carrying the given credential ID and COSE key,
// mirroring the fixed layout protocol.ParseAuthenticatorData expects.
func buildAuthData(t *testing.T, credID []byte, coseKey []byte) *protocol.AuthenticatorData {
	t.Helper()
	var buf []byte
	rpIDHash := make([]byte, 32)
	buf = append(buf, rpIDHash...)
	buf = append(buf, byte(protocol.FlagUserPresent|protocol.FlagAttestedCredentials))
	signCount := make([]byte, 4)
	binary.BigEndian.PutUint32(signCount, 1)
	buf = append(buf, signCount...)

	aaguid := make([]byte, 16)
	buf = append(buf, aaguid...)
	idLen := make([]byte, 2)
	binary.BigEndian.PutUint16(idLen, uint16(len(credID)))
	buf = append(buf, idLen...)
	buf = append(buf, credID...)
	buf = append(buf, coseKey...)

	ad, err := protocol.ParseAuthenticatorData(buf)
	require.NoError(t, err)
	return ad
}

func newES256Credential(t *testing.T) (*ecdsa.PrivateKey, *protocol.AuthenticatorData) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	key := es256CoseKey(t, priv.PublicKey)
	authData := buildAuthData(t, []byte("credential-id"), key)
	return priv, authData
}
