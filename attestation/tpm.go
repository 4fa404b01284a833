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
	"crypto/x509/pkix"
	"encoding/asn1"
	"strings"

	"github.com/google/go-tpm/tpm2"
	"github.com/gravitational/trace"

	"github.com/relyingparty/webauthn/cose"
	"github.com/relyingparty/webauthn/protocol"
)

type tpmStmt struct {
	Ver      string   `cbor:"ver"`
	Alg      int64    `cbor:"alg"`
	Sig      []byte   `cbor:"sig"`
	CertInfo []byte   `cbor:"certInfo"`
	PubArea  []byte   `cbor:"pubArea"`
	X5C      [][]byte `cbor:"x5c,omitempty"`
}

var tcgKpAIKCertificate = asn1.ObjectIdentifier{2, 23, 133, 8, 3}

// verifyTPM implements the tpm attestation statement format.
func verifyTPM(in Input) (*Result, error) {
	var stmt tpmStmt
	if err := protocol.DecodeAttStmt(in.AttStmt, &stmt); err != nil {
		return nil, trace.Wrap(err, "attestation: tpm")
	}
	if stmt.Ver != "2.0" {
		return nil, trace.BadParameter("attestation: tpm: unsupported TPM version %q, only 2.0 is supported", stmt.Ver)
	}
	if len(stmt.X5C) == 0 {
		return nil, trace.BadParameter("attestation: tpm: ECDAA is not supported, x5c is required")
	}
	if in.AuthData.AttestedCredentialData == nil {
		return nil, trace.BadParameter("attestation: tpm: missing attested credential data")
	}

	pubArea, err := tpm2.DecodePublic(stmt.PubArea)
	if err != nil {
		return nil, trace.BadParameter("attestation: tpm: decode pubArea: %v", err)
	}
	credKey, err := cose.DecodeKey(in.AuthData.AttestedCredentialData.CredentialKey)
	if err != nil {
		return nil, trace.Wrap(err, "attestation: tpm: decode credential key")
	}
	if err := pubAreaMatchesCredential(pubArea, credKey); err != nil {
		return nil, trace.Wrap(err, "attestation: tpm")
	}

	attToBeSigned := append(append([]byte{}, in.AuthData.Raw...), in.ClientDataHash[:]...)

	certInfo, err := tpm2.DecodeAttestationData(stmt.CertInfo)
	if err != nil {
		return nil, trace.BadParameter("attestation: tpm: decode certInfo: %v", err)
	}
	if certInfo.Type != tpm2.TagAttestCertify {
		return nil, trace.BadParameter("attestation: tpm: certInfo.Type is not TPM_ST_ATTEST_CERTIFY")
	}
	expectedExtraData := sha256.Sum256(attToBeSigned)
	if !bytes.Equal(certInfo.ExtraData, expectedExtraData[:]) {
		return nil, trace.BadParameter("attestation: tpm: certInfo.ExtraData does not match hash of authData || clientDataHash")
	}
	matches, err := certInfo.AttestedCertifyInfo.Name.MatchesPublic(pubArea)
	if err != nil {
		return nil, trace.BadParameter("attestation: tpm: compute pubArea name: %v", err)
	}
	if !matches {
		return nil, trace.BadParameter("attestation: tpm: attested name does not match pubArea")
	}

	aikCert, err := x509.ParseCertificate(stmt.X5C[0])
	if err != nil {
		return nil, trace.BadParameter("attestation: tpm: parse AIK certificate: %v", err)
	}
	if err := aikCert.CheckSignature(aikCert.SignatureAlgorithm, stmt.CertInfo, stmt.Sig); err != nil {
		return nil, trace.AccessDenied("attestation: tpm: AIK signature over certInfo failed: %v", err)
	}
	if err := verifyAIKCertProfile(aikCert); err != nil {
		return nil, trace.Wrap(err, "attestation: tpm")
	}

	return &Result{Type: TypeAttCA, TrustPath: stmt.X5C}, nil
}

func pubAreaMatchesCredential(pubArea tpm2.Public, credKey *cose.Key) error {
	switch {
	case pubArea.ECCParameters != nil:
		if credKey.EC2 == nil {
			return trace.BadParameter("pubArea describes an EC key but the credential key is not EC")
		}
		if !bytes.Equal(pubArea.ECCParameters.Point.XRaw, credKey.EC2.X.Bytes()) ||
			!bytes.Equal(pubArea.ECCParameters.Point.YRaw, credKey.EC2.Y.Bytes()) {
			return trace.BadParameter("pubArea EC point does not match credentialPublicKey")
		}
		return nil
	case pubArea.RSAParameters != nil:
		if credKey.RSA == nil {
			return trace.BadParameter("pubArea describes an RSA key but the credential key is not RSA")
		}
		rsaPub := credKey.RSA
		if !bytes.Equal(pubArea.RSAParameters.ModulusRaw, rsaPub.N.Bytes()) {
			return trace.BadParameter("pubArea modulus does not match credentialPublicKey")
		}
		if int(pubArea.RSAParameters.Exponent()) != rsaPub.E {
			return trace.BadParameter("pubArea exponent does not match credentialPublicKey")
		}
		return nil
	default:
		return trace.BadParameter("pubArea describes an unsupported key type")
	}
}

func verifyAIKCertProfile(cert *x509.Certificate) error {
	if cert.Version != 3 {
		return trace.BadParameter("AIK certificate version must be 3, got %d", cert.Version)
	}
	if cert.Subject.String() != "" {
		return trace.BadParameter("AIK certificate subject must be empty")
	}
	if cert.IsCA {
		return trace.BadParameter("AIK certificate must not be a CA")
	}

	var ekuOK bool
	for _, ext := range cert.Extensions {
		if !ext.Id.Equal([]int{2, 5, 29, 37}) {
			continue
		}
		var eku []asn1.ObjectIdentifier
		if rest, err := asn1.Unmarshal(ext.Value, &eku); err != nil || len(rest) != 0 {
			return trace.BadParameter("AIK certificate EKU extension is malformed")
		}
		for _, oid := range eku {
			if oid.Equal(tcgKpAIKCertificate) {
				ekuOK = true
			}
		}
	}
	if !ekuOK {
		return trace.BadParameter("AIK certificate is missing the TCG AIK EKU (2.23.133.8.3)")
	}

	if manufacturer, _, _, err := tpmDeviceAttributesFromSAN(cert); err != nil || manufacturer == "" {
		return trace.BadParameter("AIK certificate SAN is missing TPM device attributes")
	}
	return nil
}

var (
	tcgAtTPMManufacturer = asn1.ObjectIdentifier{2, 23, 133, 2, 1}
	tcgAtTPMModel        = asn1.ObjectIdentifier{2, 23, 133, 2, 2}
	tcgAtTPMVersion      = asn1.ObjectIdentifier{2, 23, 133, 2, 3}
)

// tpmDeviceAttributesFromSAN extracts the manufacturer/model/version
// directory-name attributes the TPM EK/AIK profile requires in the
// Subject Alternative Name extension.
func tpmDeviceAttributesFromSAN(cert *x509.Certificate) (manufacturer, model, version string, err error) {
	for _, ext := range cert.Extensions {
		if !ext.Id.Equal([]int{2, 5, 29, 17}) {
			continue
		}
		var seq asn1.RawValue
		rest, err := asn1.Unmarshal(ext.Value, &seq)
		if err != nil || len(rest) != 0 || !seq.IsCompound {
			return "", "", "", trace.BadParameter("malformed SubjectAltName")
		}
		names := seq.Bytes
		for len(names) > 0 {
			var v asn1.RawValue
			names, err = asn1.Unmarshal(names, &v)
			if err != nil {
				return "", "", "", trace.BadParameter("malformed GeneralName")
			}
			const directoryNameTag = 4
			if v.Tag != directoryNameTag {
				continue
			}
			var rdns pkix.RDNSequence
			if _, err := asn1.Unmarshal(v.Bytes, &rdns); err != nil {
				continue
			}
			for _, rdn := range rdns {
				for _, atv := range rdn {
					s, ok := atv.Value.(string)
					if !ok {
						continue
					}
					switch {
					case atv.Type.Equal(tcgAtTPMManufacturer):
						manufacturer = strings.TrimPrefix(s, "id:")
					case atv.Type.Equal(tcgAtTPMModel):
						model = s
					case atv.Type.Equal(tcgAtTPMVersion):
						version = strings.TrimPrefix(s, "id:")
					}
				}
			}
		}
	}
	return manufacturer, model, version, nil
}
