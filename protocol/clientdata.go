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
	"crypto/sha256"
	"encoding/json"

	"github.com/gravitational/trace"
)

// ClientData is the decoded CollectedClientData JSON object,
// https://w3c.github.io/webauthn/#dictionary-client-data.
type ClientData struct {
	Type         string `json:"type"`
	Challenge    string `json:"challenge"`
	Origin       string `json:"origin"`
	CrossOrigin  bool   `json:"crossOrigin,omitempty"`
	TokenBinding *TokenBinding `json:"tokenBinding,omitempty"`
}

// TokenBinding is the deprecated Token Binding status a client may report.
// Verification is a no-op hook: the default behavior accepts any binding
// status.
type TokenBinding struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
}

// ParseClientData decodes clientDataJSON.
func ParseClientData(clientDataJSON []byte) (*ClientData, error) {
	var cd ClientData
	if err := json.Unmarshal(clientDataJSON, &cd); err != nil {
		return nil, trace.BadParameter("protocol: decode clientDataJSON: %v", err)
	}
	return &cd, nil
}

// Hash returns SHA-256(clientDataJSON), the value signed alongside
// authenticator data in every WebAuthn ceremony.
func Hash(clientDataJSON []byte) [32]byte {
	return sha256.Sum256(clientDataJSON)
}
