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

// Package testauthenticator provides an in-process fake WebAuthn
// authenticator for exercising registration and assertion ceremonies
// without a real security key or platform authenticator.
package testauthenticator

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math/big"

	cbor "github.com/fxamacker/cbor/v2"
)

// Authenticator mimics a resident-key-capable WebAuthn authenticator: it
// holds a set of key pairs keyed by credential ID, and signs registration
// and assertion responses the way a real device would.
type Authenticator struct {
	keys map[string]*key
}

type key struct {
	id         []byte
	userHandle []byte
	residentKey bool
	privateKey crypto.Signer
	alg        int64
	signCount  uint32
}

// New returns an empty Authenticator.
func New() *Authenticator {
	return &Authenticator{keys: make(map[string]*key)}
}

// CreateResult is everything Create produces for a registration response.
type CreateResult struct {
	CredentialID      []byte
	ClientDataJSON    []byte
	AttestationObject []byte
}

// Create mimics navigator.credentials.create(): it generates a fresh key
// pair for alg, builds a "none"-format attestation object, and signs
// nothing (self-attestation of format "none" carries no signature).
func (a *Authenticator) Create(rpID string, challenge []byte, userHandle []byte, alg int64, residentKey bool, origin string) (*CreateResult, error) {
	k := &key{userHandle: userHandle, residentKey: residentKey, alg: alg}
	var coseKey []byte
	switch alg {
	case -7: // ES256
		priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, err
		}
		k.privateKey = priv
		coseKey, err = es256CoseKey(priv.PublicKey)
		if err != nil {
			return nil, err
		}
	case -257: // RS256
		priv, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, err
		}
		k.privateKey = priv
		coseKey, err = rs256CoseKey(priv.PublicKey)
		if err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("testauthenticator: unsupported alg")
	}

	k.id = make([]byte, 32)
	if _, err := rand.Read(k.id); err != nil {
		return nil, err
	}

	clientData := clientData{Type: "webauthn.create", Challenge: encodeB64URL(challenge), Origin: origin}
	clientDataJSON, err := json.Marshal(clientData)
	if err != nil {
		return nil, err
	}

	rpIDHash := sha256.Sum256([]byte(rpID))
	authData, err := k.makeAuthData(rpIDHash[:], coseKey)
	if err != nil {
		return nil, err
	}
	attObj, err := cbor.Marshal(struct {
		Fmt      string `cbor:"fmt"`
		AuthData []byte `cbor:"authData"`
		AttStmt  struct{} `cbor:"attStmt"`
	}{Fmt: "none", AuthData: authData})
	if err != nil {
		return nil, err
	}

	a.keys[string(k.id)] = k
	return &CreateResult{CredentialID: k.id, ClientDataJSON: clientDataJSON, AttestationObject: attObj}, nil
}

// GetResult is everything Get produces for an assertion response.
type GetResult struct {
	CredentialID      []byte
	ClientDataJSON    []byte
	AuthenticatorData []byte
	Signature         []byte
	UserHandle        []byte
}

// Get mimics navigator.credentials.get(). If allowCredentialIDs is empty, it
// performs a usernameless (resident-key) assertion, picking the first
// resident key it holds and returning its user handle.
func (a *Authenticator) Get(rpID string, challenge []byte, allowCredentialIDs [][]byte, origin string) (*GetResult, error) {
	var k *key
	if len(allowCredentialIDs) > 0 {
		for _, id := range allowCredentialIDs {
			if candidate, ok := a.keys[string(id)]; ok {
				k = candidate
				break
			}
		}
	} else {
		for _, candidate := range a.keys {
			if candidate.residentKey {
				k = candidate
				break
			}
		}
	}
	if k == nil {
		return nil, errors.New("testauthenticator: no matching credential")
	}

	clientData := clientData{Type: "webauthn.get", Challenge: encodeB64URL(challenge), Origin: origin}
	clientDataJSON, err := json.Marshal(clientData)
	if err != nil {
		return nil, err
	}

	k.signCount++
	rpIDHash := sha256.Sum256([]byte(rpID))
	authData, err := k.makeAuthData(rpIDHash[:], nil)
	if err != nil {
		return nil, err
	}

	signedBytes := append(append([]byte{}, authData...), sha256Sum(clientDataJSON)...)
	digest := sha256.Sum256(signedBytes)
	sig, err := k.privateKey.Sign(rand.Reader, digest[:], crypto.SHA256)
	if err != nil {
		return nil, err
	}

	result := &GetResult{CredentialID: k.id, ClientDataJSON: clientDataJSON, AuthenticatorData: authData, Signature: sig}
	if len(allowCredentialIDs) == 0 {
		result.UserHandle = k.userHandle
	}
	return result, nil
}

// SetSignCount forces a key's counter, for exercising rollback/replay tests.
func (a *Authenticator) SetSignCount(credentialID []byte, count uint32) {
	if k, ok := a.keys[string(credentialID)]; ok {
		k.signCount = count
	}
}

func (k *key) makeAuthData(rpIDHash []byte, coseKey []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(rpIDHash)

	var flags byte
	flags |= 1      // UP
	flags |= 1 << 2 // UV
	if coseKey != nil {
		flags |= 1 << 6 // AT
	}
	buf.WriteByte(flags)
	if err := binary.Write(&buf, binary.BigEndian, k.signCount); err != nil {
		return nil, err
	}

	if coseKey != nil {
		var aaguid [16]byte
		buf.Write(aaguid[:])
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(k.id))); err != nil {
			return nil, err
		}
		buf.Write(k.id)
		buf.Write(coseKey)
	}
	return buf.Bytes(), nil
}

type clientData struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Origin    string `json:"origin"`
}

func es256CoseKey(pub ecdsa.PublicKey) ([]byte, error) {
	return cbor.Marshal(struct {
		Kty   int    `cbor:"1,keyasint"`
		Alg   int    `cbor:"3,keyasint"`
		Curve int    `cbor:"-1,keyasint"`
		X     []byte `cbor:"-2,keyasint"`
		Y     []byte `cbor:"-3,keyasint"`
	}{2, -7, 1, pub.X.Bytes(), pub.Y.Bytes()})
}

func rs256CoseKey(pub rsa.PublicKey) ([]byte, error) {
	return cbor.Marshal(struct {
		Kty int    `cbor:"1,keyasint"`
		Alg int    `cbor:"3,keyasint"`
		N   []byte `cbor:"-1,keyasint"`
		E   []byte `cbor:"-2,keyasint"`
	}{3, -257, pub.N.Bytes(), big.NewInt(int64(pub.E)).Bytes()})
}

func sha256Sum(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}

func encodeB64URL(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}
