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

func TestVerifyNoneAcceptsEmptyMap(t *testing.T) {
	_, authData := newES256Credential(t)
	attStmt, err := cbor.Marshal(map[string]interface{}{})
	require.NoError(t, err)

	result, err := Verify("none", Input{AttStmt: attStmt, AuthData: authData})
	require.NoError(t, err)
	require.Equal(t, TypeNone, result.Type)
}

func TestVerifyNoneRejectsNonEmptyMap(t *testing.T) {
	_, authData := newES256Credential(t)
	attStmt, err := cbor.Marshal(map[string]interface{}{"sig": []byte("x")})
	require.NoError(t, err)

	_, err = Verify("none", Input{AttStmt: attStmt, AuthData: authData})
	require.Error(t, err)
}

func TestVerifyUnknownFormat(t *testing.T) {
	_, authData := newES256Credential(t)
	_, err := Verify("bogus", Input{AttStmt: []byte{0xa0}, AuthData: authData})
	require.Error(t, err)
}
