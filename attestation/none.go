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
	"github.com/gravitational/trace"

	"github.com/relyingparty/webauthn/protocol"
)

func verifyNone(in Input) (*Result, error) {
	var stmt map[string]interface{}
	if err := protocol.DecodeAttStmt(in.AttStmt, &stmt); err != nil {
		return nil, trace.Wrap(err, "attestation: none")
	}
	if len(stmt) != 0 {
		return nil, trace.BadParameter("attestation: none: attStmt must be an empty map, got %d entries", len(stmt))
	}
	return &Result{Type: TypeNone}, nil
}
