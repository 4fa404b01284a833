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

package protocol

import (
	cbor "github.com/fxamacker/cbor/v2"
	"github.com/gravitational/trace"
)

// AttestationObject is the decoded CBOR map {fmt, authData, attStmt},
// https://w3c.github.io/webauthn/#sctn-attestation.
type AttestationObject struct {
	Format      string          `cbor:"fmt"`
	RawAuthData []byte          `cbor:"authData"`
	AttStmt     cbor.RawMessage `cbor:"attStmt"`

	AuthData *AuthenticatorData `cbor:"-"`
}

// ParseAttestationObject CBOR-decodes raw and parses its embedded
// authenticator data. It performs no attestation-statement verification;
// that is the job of the attestation package, which is handed
// AttStmt/AuthData/the client data hash.
func ParseAttestationObject(raw []byte) (*AttestationObject, error) {
	dec, err := cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}.DecMode()
	if err != nil {
		return nil, trace.Wrap(err)
	}
	var obj AttestationObject
	if err := dec.Unmarshal(raw, &obj); err != nil {
		return nil, trace.BadParameter("protocol: decode attestation object: %v", err)
	}
	authData, err := ParseAuthenticatorData(obj.RawAuthData)
	if err != nil {
		return nil, trace.Wrap(err, "protocol: parse authData")
	}
	obj.AuthData = authData
	return &obj, nil
}

// DecodeAttStmt decodes the attestation statement's CBOR map into v, which
// should be a map[string]interface{} or a format-specific struct.
func DecodeAttStmt(attStmt cbor.RawMessage, v interface{}) error {
	dec, err := cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}.DecMode()
	if err != nil {
		return trace.Wrap(err)
	}
	if err := dec.Unmarshal(attStmt, v); err != nil {
		return trace.BadParameter("protocol: decode attestation statement: %v", err)
	}
	return nil
}
