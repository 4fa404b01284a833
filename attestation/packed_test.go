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
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	cbor "github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"

	"github.com/relyingparty/webauthn/cose"
)

func TestVerifyPackedSelfAttestation(t *testing.T) {
	priv, authData := newES256Credential(t)
	clientDataHash := sha256.Sum256([]byte("client data"))
	signedBytes := append(append([]byte{}, authData.Raw...), clientDataHash[:]...)
	digest := sha256.Sum256(signedBytes)
	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
	require.NoError(t, err)

	attStmt, err := cbor.Marshal(map[string]interface{}{
		"alg": int64(cose.AlgES256),
		"sig": sig,
	})
	require.NoError(t, err)

	result, err := Verify("packed", Input{AttStmt: attStmt, AuthData: authData, ClientDataHash: clientDataHash})
	require.NoError(t, err)
	require.Equal(t, TypeSelf, result.Type)
}

func TestVerifyPackedSelfAttestationRejectsAlgMismatch(t *testing.T) {
	_, authData := newES256Credential(t)
	clientDataHash := sha256.Sum256([]byte("client data"))
	attStmt, err := cbor.Marshal(map[string]interface{}{
		"alg": int64(cose.AlgRS256),
		"sig": []byte("bogus"),
	})
	require.NoError(t, err)

	_, err = Verify("packed", Input{AttStmt: attStmt, AuthData: authData, ClientDataHash: clientDataHash})
	require.Error(t, err)
}

func TestVerifyPackedBasicAttestation(t *testing.T) {
	priv, authData := newES256Credential(t)
	clientDataHash := sha256.Sum256([]byte("client data"))
	signedBytes := append(append([]byte{}, authData.Raw...), clientDataHash[:]...)

	attestKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			OrganizationalUnit: []string{"Authenticator Attestation"},
			Organization:       []string{"Test Authenticators"},
			CommonName:         "Test Authenticator",
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		SignatureAlgorithm:    x509.ECDSAWithSHA256,
		BasicConstraintsValid: true,
		IsCA:                  false,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &attestKey.PublicKey, attestKey)
	require.NoError(t, err)

	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	sig, err := ecdsa.SignASN1(rand.Reader, attestKey, hashSHA256(signedBytes))
	require.NoError(t, err)
	_ = leaf

	attStmt, err := cbor.Marshal(map[string]interface{}{
		"alg": int64(cose.AlgES256),
		"sig": sig,
		"x5c": [][]byte{der},
	})
	require.NoError(t, err)

	result, err := Verify("packed", Input{AttStmt: attStmt, AuthData: authData, ClientDataHash: clientDataHash})
	require.NoError(t, err)
	require.Equal(t, TypeBasic, result.Type)
	require.Len(t, result.TrustPath, 1)
}

func hashSHA256(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}
