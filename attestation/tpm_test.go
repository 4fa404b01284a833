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
	"testing"

	cbor "github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"
)

func TestVerifyTPMRejectsUnsupportedVersion(t *testing.T) {
	_, authData := newES256Credential(t)
	attStmt, err := cbor.Marshal(map[string]interface{}{
		"ver": "1.2",
		"x5c": [][]byte{[]byte("cert")},
	})
	require.NoError(t, err)

	_, err = Verify("tpm", Input{AttStmt: attStmt, AuthData: authData})
	require.Error(t, err)
}

func TestVerifyTPMRejectsMissingX5C(t *testing.T) {
	_, authData := newES256Credential(t)
	attStmt, err := cbor.Marshal(map[string]interface{}{
		"ver": "2.0",
	})
	require.NoError(t, err)

	_, err = Verify("tpm", Input{AttStmt: attStmt, AuthData: authData})
	require.Error(t, err)
}

func TestVerifyTPMRejectsMalformedPubArea(t *testing.T) {
	_, authData := newES256Credential(t)
	attStmt, err := cbor.Marshal(map[string]interface{}{
		"ver":     "2.0",
		"x5c":     [][]byte{[]byte("cert")},
		"pubArea": []byte("not a TPMT_PUBLIC structure"),
	})
	require.NoError(t, err)

	_, err = Verify("tpm", Input{AttStmt: attStmt, AuthData: authData})
	require.Error(t, err)
}
