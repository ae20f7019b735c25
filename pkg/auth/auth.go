// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package auth verifies bearer tokens presented to tools/call before
// dispatch reaches pkg/mcpomop. It implements pkg/mcp/server's AuthHook
// interface; the no-op verifier lets every request through unauthenticated,
// and the OIDC verifier checks tokens against an authorization server's
// RFC 7662 introspection endpoint.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/teradata-labs/omop-mcp-server/pkg/omoperr"
)

// Principal is the caller identity attached to ctx after a successful
// Verify. Tool handlers that care about who's calling read it back out
// with PrincipalFromContext; none of the current tools need to.
type Principal struct {
	Subject string
	Scopes  []string
}

type principalKey struct{}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the Principal attached by a Verify call,
// or the zero value and false if none is present.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// NoopVerifier lets every call through unauthenticated. It is the
// default when no issuer is configured.
type NoopVerifier struct{}

// Verify always succeeds, attaching an empty Principal.
func (NoopVerifier) Verify(ctx context.Context, token string) (context.Context, error) {
	return WithPrincipal(ctx, Principal{}), nil
}

// introspectionResponse is the RFC 7662 response shape; unrecognized
// fields (issuer-specific claims) are dropped by encoding/json.
type introspectionResponse struct {
	Active   bool   `json:"active"`
	Subject  string `json:"sub"`
	Audience string `json:"aud"`
	Scope    string `json:"scope"`
}

// OIDCVerifier checks bearer tokens against an authorization server's
// token introspection endpoint, authenticating itself as a confidential
// client via the standard OAuth2 client-credentials grant.
type OIDCVerifier struct {
	audience         string
	introspectionURL string
	httpClient       *http.Client
}

// Option configures an OIDCVerifier.
type Option func(*OIDCVerifier)

// WithHTTPClient overrides the client used for the introspection call
// (tests use this to point at an httptest.Server).
func WithHTTPClient(h *http.Client) Option {
	return func(v *OIDCVerifier) { v.httpClient = h }
}

// NewOIDCVerifier builds a verifier that introspects tokens at
// issuer+"/introspect", authenticating itself with clientID/clientSecret
// via the client-credentials grant against tokenURL.
func NewOIDCVerifier(issuer, audience, tokenURL, clientID, clientSecret string, opts ...Option) *OIDCVerifier {
	cc := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}
	v := &OIDCVerifier{
		audience:         audience,
		introspectionURL: strings.TrimRight(issuer, "/") + "/introspect",
		httpClient:       cc.Client(context.Background()),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify introspects token and, if active and scoped to the configured
// audience, attaches its Principal to ctx.
func (v *OIDCVerifier) Verify(ctx context.Context, token string) (context.Context, error) {
	if token == "" {
		return ctx, omoperr.New(omoperr.Unauthenticated, "missing bearer token")
	}

	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.introspectionURL, strings.NewReader(form.Encode()))
	if err != nil {
		return ctx, omoperr.Wrap(omoperr.Unauthenticated, err, "building introspection request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return ctx, omoperr.Wrap(omoperr.Unauthenticated, err, "calling introspection endpoint")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ctx, omoperr.Newf(omoperr.Unauthenticated, "introspection endpoint returned %s", resp.Status)
	}

	var ir introspectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return ctx, omoperr.Wrap(omoperr.Unauthenticated, err, "decoding introspection response")
	}

	if !ir.Active {
		return ctx, omoperr.New(omoperr.Unauthenticated, "token is not active")
	}
	if v.audience != "" && ir.Audience != v.audience {
		return ctx, omoperr.Newf(omoperr.Unauthorized, "token audience %q does not match required audience %q", ir.Audience, v.audience)
	}

	var scopes []string
	if ir.Scope != "" {
		scopes = strings.Fields(ir.Scope)
	}
	return WithPrincipal(ctx, Principal{Subject: ir.Subject, Scopes: scopes}), nil
}
