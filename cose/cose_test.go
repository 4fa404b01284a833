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

package cose

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"testing"

	cbor "github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"
)

func es256Key(t *testing.T, pub ecdsa.PublicKey) []byte {
	t.Helper()
	raw, err := cbor.Marshal(struct {
		Kty   int    `cbor:"1,keyasint"`
		Alg   int    `cbor:"3,keyasint"`
		Curve int    `cbor:"-1,keyasint"`
		X     []byte `cbor:"-2,keyasint"`
		Y     []byte `cbor:"-3,keyasint"`
	}{2, int(AlgES256), 1, pub.X.Bytes(), pub.Y.Bytes()})
	require.NoError(t, err)
	return raw
}

func rs256Key(t *testing.T, pub rsa.PublicKey) []byte {
	t.Helper()
	raw, err := cbor.Marshal(struct {
		Kty int    `cbor:"1,keyasint"`
		Alg int    `cbor:"3,keyasint"`
		N   []byte `cbor:"-1,keyasint"`
		E   []byte `cbor:"-2,keyasint"`
	}{3, int(AlgRS256), pub.N.Bytes(), []byte{0x01, 0x00, 0x01}})
	require.NoError(t, err)
	return raw
}

func TestDecodeKeyES256RoundTrip(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	raw := es256Key(t, priv.PublicKey)
	key, err := DecodeKey(raw)
	require.NoError(t, err)
	require.Equal(t, AlgES256, key.Alg)
	require.True(t, priv.PublicKey.Equal(key.EC2))

	// Round trip: decoding the raw bytes the key retains must yield an
	// equal key.
	key2, err := DecodeKey(key.Raw())
	require.NoError(t, err)
	require.True(t, key.EC2.Equal(key2.EC2))
}

func TestVerifyES256(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	key, err := DecodeKey(es256Key(t, priv.PublicKey))
	require.NoError(t, err)

	message := []byte("authenticator data || client data hash")
	digest := sha256.Sum256(message)
	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
	require.NoError(t, err)

	if _, err := Verify(key, message, sig); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	sig[len(sig)-1] ^= 0x01
	if _, err := Verify(key, message, sig); err == nil {
		t.Fatal("Verify should have failed on a flipped signature byte")
	}
}

func TestVerifyRS256(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	key, err := DecodeKey(rs256Key(t, priv.PublicKey))
	require.NoError(t, err)

	message := []byte("authenticator data || client data hash")
	digest := sha256.Sum256(message)
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
	require.NoError(t, err)

	if _, err := Verify(key, message, sig); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyUnsupportedAlgorithm(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	raw := es256Key(t, priv.PublicKey)
	key, err := DecodeKey(raw)
	require.NoError(t, err)
	key.Alg = 12345
	key.EC2 = nil

	if _, err := Verify(key, []byte("x"), []byte("y")); err == nil {
		t.Fatal("Verify should reject an unsupported algorithm")
	}
}
