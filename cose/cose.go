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

// Package cose decodes COSE_Key structures and verifies signatures produced
// by the COSE algorithms WebAuthn authenticators use.
package cose

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/asn1"
	"fmt"
	"math/big"

	cbor "github.com/fxamacker/cbor/v2"
	"github.com/gravitational/trace"
)

// Algorithm identifiers, https://www.iana.org/assignments/cose/cose.xhtml#algorithms
type Algorithm int

const (
	AlgES256 Algorithm = -7
	AlgEdDSA Algorithm = -8
	AlgES384 Algorithm = -35
	AlgES512 Algorithm = -36
	AlgPS256 Algorithm = -37
	AlgRS256 Algorithm = -257
)

// KeyType identifiers, https://www.iana.org/assignments/cose/cose.xhtml#key-type
const (
	ktyOKP = 1
	ktyEC2 = 2
	ktyRSA = 3
)

// Curve identifiers, https://www.iana.org/assignments/cose/cose.xhtml#elliptic-curves
const (
	crvP256   = 1
	crvP384   = 2
	crvP521   = 3
	crvEd25519 = 6
)

// Key is a decoded COSE_Key. Exactly one of the typed fields is non-nil,
// matching which KTY/ALG the map declared.
type Key struct {
	Alg Algorithm

	EC2      *ecdsa.PublicKey
	RSA      *rsa.PublicKey
	Ed25519  ed25519.PublicKey

	raw []byte
}

// Raw returns the CBOR bytes the key was decoded from, so callers can embed
// it verbatim in a RegistrationResult without re-encoding it (and risking a
// non-canonical round trip).
func (k *Key) Raw() []byte { return k.raw }

type coseKeyHeader struct {
	Kty int `cbor:"1,keyasint"`
	Alg int `cbor:"3,keyasint"`
}

type ec2Key struct {
	Kty   int    `cbor:"1,keyasint"`
	Alg   int    `cbor:"3,keyasint"`
	Curve int    `cbor:"-1,keyasint"`
	X     []byte `cbor:"-2,keyasint"`
	Y     []byte `cbor:"-3,keyasint"`
}

type okpKey struct {
	Kty   int    `cbor:"1,keyasint"`
	Alg   int    `cbor:"3,keyasint"`
	Curve int    `cbor:"-1,keyasint"`
	X     []byte `cbor:"-2,keyasint"`
}

type rsaKey struct {
	Kty int    `cbor:"1,keyasint"`
	Alg int    `cbor:"3,keyasint"`
	N   []byte `cbor:"-1,keyasint"`
	E   []byte `cbor:"-2,keyasint"`
}

// DecodeKey decodes a CBOR-encoded COSE_Key.
func DecodeKey(raw []byte) (*Key, error) {
	var hdr coseKeyHeader
	if err := cbor.Unmarshal(raw, &hdr); err != nil {
		return nil, trace.BadParameter("cose: decode key header: %v", err)
	}
	key := &Key{Alg: Algorithm(hdr.Alg), raw: append([]byte(nil), raw...)}

	switch hdr.Kty {
	case ktyEC2:
		var ec ec2Key
		if err := cbor.Unmarshal(raw, &ec); err != nil {
			return nil, trace.BadParameter("cose: decode EC2 key: %v", err)
		}
		curve, err := curveForAlg(Algorithm(ec.Alg), ec.Curve)
		if err != nil {
			return nil, err
		}
		pub := &ecdsa.PublicKey{
			Curve: curve,
			X:     new(big.Int).SetBytes(ec.X),
			Y:     new(big.Int).SetBytes(ec.Y),
		}
		if !curve.IsOnCurve(pub.X, pub.Y) {
			return nil, trace.BadParameter("cose: EC2 point is not on curve")
		}
		key.EC2 = pub
	case ktyOKP:
		var okp okpKey
		if err := cbor.Unmarshal(raw, &okp); err != nil {
			return nil, trace.BadParameter("cose: decode OKP key: %v", err)
		}
		if okp.Curve != crvEd25519 {
			return nil, trace.BadParameter("cose: unsupported OKP curve %d", okp.Curve)
		}
		if len(okp.X) != ed25519.PublicKeySize {
			return nil, trace.BadParameter("cose: invalid Ed25519 public key length %d", len(okp.X))
		}
		key.Ed25519 = ed25519.PublicKey(okp.X)
	case ktyRSA:
		var rk rsaKey
		if err := cbor.Unmarshal(raw, &rk); err != nil {
			return nil, trace.BadParameter("cose: decode RSA key: %v", err)
		}
		e := new(big.Int).SetBytes(rk.E)
		if !e.IsInt64() {
			return nil, trace.BadParameter("cose: RSA exponent too large")
		}
		key.RSA = &rsa.PublicKey{
			N: new(big.Int).SetBytes(rk.N),
			E: int(e.Int64()),
		}
	default:
		return nil, trace.BadParameter("cose: unsupported key type %d", hdr.Kty)
	}
	return key, nil
}

func curveForAlg(alg Algorithm, crv int) (elliptic.Curve, error) {
	switch alg {
	case AlgES256:
		if crv != crvP256 {
			return nil, trace.BadParameter("cose: ES256 key must use curve P-256")
		}
		return elliptic.P256(), nil
	case AlgES384:
		if crv != crvP384 {
			return nil, trace.BadParameter("cose: ES384 key must use curve P-384")
		}
		return elliptic.P384(), nil
	case AlgES512:
		if crv != crvP521 {
			return nil, trace.BadParameter("cose: ES512 key must use curve P-521")
		}
		return elliptic.P521(), nil
	default:
		return nil, trace.BadParameter("cose: alg %d is not an ECDSA algorithm", alg)
	}
}

// Warning is a non-fatal advisory surfaced alongside a successful
// verification.
type Warning struct {
	Code   string
	Detail string
}

const (
	WarningNonNormalizedECDSASignature = "non_normalized_ecdsa_signature"
)

// Verify checks signature over message using key, dispatching on key.Alg.
// It returns non-fatal warnings (e.g. a non-low-S ECDSA signature) alongside
// a nil error on success.
func Verify(key *Key, message, signature []byte) ([]Warning, error) {
	switch key.Alg {
	case AlgES256, AlgES384, AlgES512:
		return verifyECDSA(key, message, signature)
	case AlgEdDSA:
		return nil, verifyEd25519(key, message, signature)
	case AlgRS256:
		return nil, verifyRSA(key, message, signature, false)
	case AlgPS256:
		return nil, verifyRSA(key, message, signature, true)
	default:
		return nil, trace.BadParameter("cose: unsupported algorithm %d", key.Alg)
	}
}

func verifyECDSA(key *Key, message, signature []byte) ([]Warning, error) {
	if key.EC2 == nil {
		return nil, trace.BadParameter("cose: alg %d requires an EC2 key", key.Alg)
	}
	hash := hashFor(key.Alg)
	digest := hash(message)
	if !ecdsa.VerifyASN1(key.EC2, digest, signature) {
		return nil, trace.AccessDenied("cose: ECDSA signature verification failed")
	}
	var warnings []Warning
	if normalized, err := isLowS(key.EC2.Curve, signature); err == nil && !normalized {
		warnings = append(warnings, Warning{Code: WarningNonNormalizedECDSASignature, Detail: "signature S value is not normalized to low-S"})
	}
	return warnings, nil
}

func verifyEd25519(key *Key, message, signature []byte) error {
	if key.Ed25519 == nil {
		return trace.BadParameter("cose: EdDSA requires an OKP/Ed25519 key")
	}
	if len(signature) != ed25519.SignatureSize {
		return trace.BadParameter("cose: invalid Ed25519 signature length %d", len(signature))
	}
	if !ed25519.Verify(key.Ed25519, message, signature) {
		return trace.AccessDenied("cose: Ed25519 signature verification failed")
	}
	return nil
}

func verifyRSA(key *Key, message, signature []byte, pss bool) error {
	if key.RSA == nil {
		return trace.BadParameter("cose: alg requires an RSA key")
	}
	digest := sha256.Sum256(message)
	var err error
	if pss {
		err = rsa.VerifyPSS(key.RSA, crypto.SHA256, digest[:], signature, nil)
	} else {
		err = rsa.VerifyPKCS1v15(key.RSA, crypto.SHA256, digest[:], signature)
	}
	if err != nil {
		return trace.AccessDenied("cose: RSA signature verification failed: %v", err)
	}
	return nil
}

func hashFor(alg Algorithm) func([]byte) []byte {
	switch alg {
	case AlgES384:
		return func(b []byte) []byte { h := sha512.Sum384(b); return h[:] }
	case AlgES512:
		return func(b []byte) []byte { h := sha512.Sum512(b); return h[:] }
	default:
		return func(b []byte) []byte { h := sha256.Sum256(b); return h[:] }
	}
}

// isLowS reports whether the ASN.1 DER-encoded ECDSA signature's S value is
// already in the lower half of the curve order (the canonical form most
// authenticators produce). A non-normalized signature is still accepted,
// only flagged.
func isLowS(curve elliptic.Curve, der []byte) (bool, error) {
	var sig struct{ R, S *big.Int }
	rest, err := asn1.Unmarshal(der, &sig)
	if err != nil || len(rest) != 0 {
		return false, fmt.Errorf("cose: malformed ECDSA signature")
	}
	halfOrder := new(big.Int).Rsh(curve.Params().N, 1)
	return sig.S.Cmp(halfOrder) <= 0, nil
}
