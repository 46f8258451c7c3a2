/*
 * Copyright 2025 Carver Automation Corporation.
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

// Package tenant provides multi-tenant identity extraction and propagation.
//
// Tenant identity travels through contexts explicitly; storage calls take
// the tenant ID as a required parameter so isolation stays testable per
// call rather than hiding behind ambient state. When mTLS fronts the API,
// identity is parsed from certificate Common Names of the form
// <component_id>.<site_slug>.<tenant_slug>.edgefleet.
package tenant

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"strings"
)

type ctxKey string

const tenantCtxKey ctxKey = "tenant"

const (
	// CNSuffix is the expected suffix for edgefleet certificate CNs.
	CNSuffix = "edgefleet"

	cnParts = 4
)

var (
	// ErrInvalidCNFormat indicates the certificate CN doesn't match the expected format.
	ErrInvalidCNFormat = errors.New("invalid certificate CN format")

	// ErrNoPeerCert indicates no peer certificate was presented.
	ErrNoPeerCert = errors.New("no peer certificate")

	// ErrNoTenantInContext indicates no tenant info was found in the context.
	ErrNoTenantInContext = errors.New("no tenant info in context")
)

// Info identifies the tenant on whose behalf a request executes.
type Info struct {
	TenantID    string `json:"tenant_id"`
	SiteSlug    string `json:"site_slug,omitempty"`
	ComponentID string `json:"component_id,omitempty"`
}

func (i Info) String() string {
	return fmt.Sprintf("%s/%s/%s", i.TenantID, i.SiteSlug, i.ComponentID)
}

// CN returns the full certificate CN for this tenant info.
func (i Info) CN() string {
	return fmt.Sprintf("%s.%s.%s.%s", i.ComponentID, i.SiteSlug, i.TenantID, CNSuffix)
}

// WithContext returns a new context with the tenant info attached.
func WithContext(ctx context.Context, info *Info) context.Context {
	return context.WithValue(ctx, tenantCtxKey, info)
}

// FromContext extracts tenant info from a context.
func FromContext(ctx context.Context) (*Info, error) {
	info, ok := ctx.Value(tenantCtxKey).(*Info)
	if !ok || info == nil {
		return nil, ErrNoTenantInContext
	}
	return info, nil
}

// MustFromContext extracts tenant info or panics. Use only after
// middleware has validated tenant presence.
func MustFromContext(ctx context.Context) *Info {
	info, err := FromContext(ctx)
	if err != nil {
		panic(err)
	}
	return info
}

// IDFromContext returns just the tenant ID, or empty when absent.
func IDFromContext(ctx context.Context) string {
	info, err := FromContext(ctx)
	if err != nil {
		return ""
	}
	return info.TenantID
}

// ParseCN extracts tenant information from a certificate Common Name.
//
// Expected format: <component_id>.<site_slug>.<tenant_id>.edgefleet
func ParseCN(cn string) (*Info, error) {
	parts := strings.Split(cn, ".")
	if len(parts) != cnParts {
		return nil, fmt.Errorf("%w: expected %d parts, got %d in %q",
			ErrInvalidCNFormat, cnParts, len(parts), cn)
	}

	if parts[3] != CNSuffix {
		return nil, fmt.Errorf("%w: expected suffix %q, got %q in %q",
			ErrInvalidCNFormat, CNSuffix, parts[3], cn)
	}

	return &Info{
		ComponentID: parts[0],
		SiteSlug:    parts[1],
		TenantID:    parts[2],
	}, nil
}

// FromCertificate extracts tenant information from an X.509 certificate.
func FromCertificate(cert *x509.Certificate) (*Info, error) {
	if cert == nil {
		return nil, ErrNoPeerCert
	}
	return ParseCN(cert.Subject.CommonName)
}

// FromTLSState extracts tenant information from a TLS connection state,
// e.g. http.Request.TLS on an mTLS listener.
func FromTLSState(state *tls.ConnectionState) (*Info, error) {
	if state == nil || len(state.PeerCertificates) == 0 {
		return nil, ErrNoPeerCert
	}
	return FromCertificate(state.PeerCertificates[0])
}
