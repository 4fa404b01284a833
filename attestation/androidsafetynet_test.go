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
	"time"

	cbor "github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"
)

func TestVerifyAndroidSafetyNetRejectsMissingVer(t *testing.T) {
	_, authData := newES256Credential(t)
	attStmt, err := cbor.Marshal(map[string]interface{}{
		"response": []byte("not a jws"),
	})
	require.NoError(t, err)

	_, err = Verify("android-safetynet", Input{AttStmt: attStmt, AuthData: authData})
	require.Error(t, err)
}

func TestVerifyAndroidSafetyNetRejectsMalformedJWS(t *testing.T) {
	_, authData := newES256Credential(t)
	attStmt, err := cbor.Marshal(map[string]interface{}{
		"ver":      "14317972",
		"response": []byte("not.a.jws"),
	})
	require.NoError(t, err)

	_, err = Verify("android-safetynet", Input{AttStmt: attStmt, AuthData: authData})
	require.Error(t, err)
}

func TestTimestampSkew(t *testing.T) {
	original := now
	defer func() { now = original }()

	fixed := now()
	now = func() time.Time { return fixed }

	pastMs := fixed.Add(-10 * time.Second).UnixMilli()
	skew := timestampSkew(pastMs)
	require.Equal(t, 10*time.Second, skew)

	futureMs := fixed.Add(10 * time.Second).UnixMilli()
	skew = timestampSkew(futureMs)
	require.Equal(t, 10*time.Second, skew)
}
