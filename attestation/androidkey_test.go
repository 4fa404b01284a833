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
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"testing"
	"time"

	cbor "github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"

	"github.com/relyingparty/webauthn/cose"
)

// buildTeeEnforced renders a TEE-enforced AuthorizationList SEQUENCE
// carrying only the purpose ([1]) and origin ([702]) EXPLICIT tags this
// package's verifyTeeEnforcedOriginAndPurpose inspects.
func buildTeeEnforced(origin int, purposes []int) []byte {
	var purposeContent []byte
	for _, p := range purposes {
		purposeContent = append(purposeContent, 0x02, 0x01, byte(p))
	}
	setTLV := append([]byte{0x31, byte(len(purposeContent))}, purposeContent...)
	purposeWrapper := append([]byte{0xA1, byte(len(setTLV))}, setTLV...)

	originContent := []byte{0x02, 0x01, byte(origin)}
	originTag := append([]byte{0xBF}, encodeHighTagNumber(authorizationListTagOrigin)...)
	originWrapper := append(append(append([]byte{}, originTag...), byte(len(originContent))), originContent...)

	seqContent := append(append([]byte{}, purposeWrapper...), originWrapper...)
	return append([]byte{0x30, byte(len(seqContent))}, seqContent...)
}

func buildAndroidKeyCert(t *testing.T, attestKey *ecdsa.PrivateKey, challenge []byte, allApplications bool) []byte {
	t.Helper()
	return buildAndroidKeyCertWithTee(t, attestKey, challenge, allApplications, buildTeeEnforced(keymasterOriginGenerated, []int{keymasterPurposeSign}))
}

func buildAndroidKeyCertWithTee(t *testing.T, attestKey *ecdsa.PrivateKey, challenge []byte, allApplications bool, teeEnforcedDER []byte) []byte {
	t.Helper()

	softwareEnforced := asn1.RawValue{Class: asn1.ClassUniversal, Tag: asn1.TagSequence, IsCompound: true}
	if allApplications {
		// [600] NULL, matching the high-tag-number DER encoding hasAllApplicationsTag scans for.
		tagBytes := append([]byte{0xBF}, encodeHighTagNumber(authorizationListTagAllApplications)...)
		tagBytes = append(tagBytes, 0x00) // zero-length content
		softwareEnforced.FullBytes = append([]byte{0x30, byte(len(tagBytes))}, tagBytes...)
	} else {
		softwareEnforced.FullBytes = []byte{0x30, 0x00}
	}
	teeEnforced := asn1.RawValue{FullBytes: teeEnforcedDER}

	att := androidKeyAttestation{
		AttestationVersion:       3,
		AttestationSecurityLevel: asn1.RawValue{FullBytes: []byte{0x0a, 0x01, 0x00}},
		KeymasterVersion:         4,
		KeymasterSecurityLevel:   asn1.RawValue{FullBytes: []byte{0x0a, 0x01, 0x00}},
		AttestationChallenge:     challenge,
		UniqueID:                 nil,
		SoftwareEnforced:         softwareEnforced,
		TeeEnforced:              teeEnforced,
	}
	attDER, err := asn1.Marshal(att)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "Android Keystore Key"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		ExtraExtensions: []pkix.Extension{
			{Id: androidKeyAttestationExtensionOID, Value: attDER},
		},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &attestKey.PublicKey, attestKey)
	require.NoError(t, err)
	return der
}

func TestVerifyAndroidKey(t *testing.T) {
	priv, authData := newES256Credential(t)
	clientDataHash := sha256.Sum256([]byte("client data"))
	signedBytes := append(append([]byte{}, authData.Raw...), clientDataHash[:]...)
	digest := sha256.Sum256(signedBytes)
	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
	require.NoError(t, err)

	der := buildAndroidKeyCert(t, priv, clientDataHash[:], false)

	attStmt, err := cbor.Marshal(map[string]interface{}{
		"alg": int64(cose.AlgES256),
		"sig": sig,
		"x5c": [][]byte{der},
	})
	require.NoError(t, err)

	result, err := Verify("android-key", Input{AttStmt: attStmt, AuthData: authData, ClientDataHash: clientDataHash})
	require.NoError(t, err)
	require.Equal(t, TypeBasic, result.Type)
}

func TestVerifyAndroidKeyRejectsAllApplicationsTag(t *testing.T) {
	priv, authData := newES256Credential(t)
	clientDataHash := sha256.Sum256([]byte("client data"))
	signedBytes := append(append([]byte{}, authData.Raw...), clientDataHash[:]...)
	digest := sha256.Sum256(signedBytes)
	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
	require.NoError(t, err)

	der := buildAndroidKeyCert(t, priv, clientDataHash[:], true)

	attStmt, err := cbor.Marshal(map[string]interface{}{
		"alg": int64(cose.AlgES256),
		"sig": sig,
		"x5c": [][]byte{der},
	})
	require.NoError(t, err)

	_, err = Verify("android-key", Input{AttStmt: attStmt, AuthData: authData, ClientDataHash: clientDataHash})
	require.Error(t, err)
}

func TestVerifyAndroidKeyRejectsChallengeMismatch(t *testing.T) {
	priv, authData := newES256Credential(t)
	clientDataHash := sha256.Sum256([]byte("client data"))
	signedBytes := append(append([]byte{}, authData.Raw...), clientDataHash[:]...)
	digest := sha256.Sum256(signedBytes)
	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
	require.NoError(t, err)

	der := buildAndroidKeyCert(t, priv, []byte("wrong challenge"), false)

	attStmt, err := cbor.Marshal(map[string]interface{}{
		"alg": int64(cose.AlgES256),
		"sig": sig,
		"x5c": [][]byte{der},
	})
	require.NoError(t, err)

	_, err = Verify("android-key", Input{AttStmt: attStmt, AuthData: authData, ClientDataHash: clientDataHash})
	require.Error(t, err)
}

func TestVerifyAndroidKeyRejectsImportedOrigin(t *testing.T) {
	priv, authData := newES256Credential(t)
	clientDataHash := sha256.Sum256([]byte("client data"))
	signedBytes := append(append([]byte{}, authData.Raw...), clientDataHash[:]...)
	digest := sha256.Sum256(signedBytes)
	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
	require.NoError(t, err)

	const keymasterOriginImported = 2
	der := buildAndroidKeyCertWithTee(t, priv, clientDataHash[:], false, buildTeeEnforced(keymasterOriginImported, []int{keymasterPurposeSign}))

	attStmt, err := cbor.Marshal(map[string]interface{}{
		"alg": int64(cose.AlgES256),
		"sig": sig,
		"x5c": [][]byte{der},
	})
	require.NoError(t, err)

	_, err = Verify("android-key", Input{AttStmt: attStmt, AuthData: authData, ClientDataHash: clientDataHash})
	require.Error(t, err)
}

func TestVerifyAndroidKeyRejectsMissingSignPurpose(t *testing.T) {
	priv, authData := newES256Credential(t)
	clientDataHash := sha256.Sum256([]byte("client data"))
	signedBytes := append(append([]byte{}, authData.Raw...), clientDataHash[:]...)
	digest := sha256.Sum256(signedBytes)
	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
	require.NoError(t, err)

	const keymasterPurposeVerify = 3
	der := buildAndroidKeyCertWithTee(t, priv, clientDataHash[:], false, buildTeeEnforced(keymasterOriginGenerated, []int{keymasterPurposeVerify}))

	attStmt, err := cbor.Marshal(map[string]interface{}{
		"alg": int64(cose.AlgES256),
		"sig": sig,
		"x5c": [][]byte{der},
	})
	require.NoError(t, err)

	_, err = Verify("android-key", Input{AttStmt: attStmt, AuthData: authData, ClientDataHash: clientDataHash})
	require.Error(t, err)
}
