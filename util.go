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

package webauthn

import (
	"crypto/sha256"
	"net/url"
	"strings"
)

// hasSubdomainOf reports whether origin's host is rpID or a subdomain of it.
func hasSubdomainOf(origin, rpID string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == rpID {
		return true
	}
	return strings.HasSuffix(host, "."+rpID)
}

func rpIDHash(rpID string) [32]byte {
	return sha256.Sum256([]byte(rpID))
}

func credentialParamAllowed(params []CredentialParameter, alg int64) bool {
	for _, p := range params {
		if int64(p.Alg) == alg {
			return true
		}
	}
	return false
}

func descriptorsContain(descs []CredentialDescriptor, id []byte) bool {
	for _, d := range descs {
		if string(d.ID) == string(id) {
			return true
		}
	}
	return false
}

// unrequestedExtensions returns the keys present in got that are absent
// from requested.
func unrequestedExtensions(requested, got map[string]interface{}) []string {
	var extra []string
	for k := range got {
		if _, ok := requested[k]; !ok {
			extra = append(extra, k)
		}
	}
	return extra
}
