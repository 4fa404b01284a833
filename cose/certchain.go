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

package cose

import (
	"bytes"
	"crypto/x509"
	"net/http"
	"time"

	"github.com/gravitational/trace"
	"golang.org/x/crypto/ocsp"
)

// ChainResult is the outcome of verifying an attestation certificate chain
// against a set of trust anchors.
type ChainResult struct {
	Chains   [][]*x509.Certificate
	Warnings []Warning
}

const WarningOCSPRevoked = "ocsp_revoked"

// VerifyCertChain performs standard X.509 path validation of leaf against
// roots (and any intermediates supplied in intermediates) at the given time.
// No revocation checking is performed unless checkOCSP is true, in which
// case a revoked OCSP response is surfaced as a warning rather than a
// verification failure.
func VerifyCertChain(leaf *x509.Certificate, intermediates, roots []*x509.Certificate, at time.Time, checkOCSP bool) (*ChainResult, error) {
	interPool := x509.NewCertPool()
	for _, c := range intermediates {
		interPool.AddCert(c)
	}
	rootPool := x509.NewCertPool()
	for _, c := range roots {
		rootPool.AddCert(c)
	}
	chains, err := leaf.Verify(x509.VerifyOptions{
		Intermediates: interPool,
		Roots:         rootPool,
		CurrentTime:   at,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return nil, trace.AccessDenied("cose: certificate chain did not validate: %v", err)
	}

	result := &ChainResult{Chains: chains}
	if checkOCSP && len(chains) > 0 && len(chains[0]) > 1 {
		if w := checkRevocation(chains[0][0], chains[0][1]); w != nil {
			result.Warnings = append(result.Warnings, *w)
		}
	}
	return result, nil
}

// checkRevocation consults the leaf's OCSP responder, if any. Failures to
// reach the responder are ignored: OCSP is advisory only.
func checkRevocation(leaf, issuer *x509.Certificate) *Warning {
	if len(leaf.OCSPServer) == 0 {
		return nil
	}
	req, err := ocsp.CreateRequest(leaf, issuer, nil)
	if err != nil {
		return nil
	}
	httpReq, err := http.NewRequest(http.MethodPost, leaf.OCSPServer[0], bytes.NewReader(req))
	if err != nil {
		return nil
	}
	httpReq.Header.Set("Content-Type", "application/ocsp-request")
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	body := make([]byte, 64*1024)
	n, _ := resp.Body.Read(body)
	parsed, err := ocsp.ParseResponse(body[:n], issuer)
	if err != nil {
		return nil
	}
	if parsed.Status == ocsp.Revoked {
		return &Warning{Code: WarningOCSPRevoked, Detail: "OCSP responder reports the attestation certificate as revoked"}
	}
	return nil
}
