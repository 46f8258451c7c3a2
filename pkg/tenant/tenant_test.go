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

package tenant

import (
	"context"
	"crypto/x509"
	"crypto/x509/pkix"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCN(t *testing.T) {
	tests := []struct {
		name    string
		cn      string
		want    *Info
		wantErr bool
	}{
		{
			name: "valid leaf CN",
			cn:   "leaf-01.nyc-office.tenant-acme.edgefleet",
			want: &Info{ComponentID: "leaf-01", SiteSlug: "nyc-office", TenantID: "tenant-acme"},
		},
		{
			name:    "wrong suffix",
			cn:      "leaf-01.nyc-office.tenant-acme.example",
			wantErr: true,
		},
		{
			name:    "too few parts",
			cn:      "tenant-acme.edgefleet",
			wantErr: true,
		},
		{
			name:    "empty",
			cn:      "",
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			info, err := ParseCN(tc.cn)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCNFormat)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, info)
		})
	}
}

func TestCNRoundTrip(t *testing.T) {
	info := &Info{ComponentID: "agent-7", SiteSlug: "lab-east", TenantID: "tenant-acme"}

	parsed, err := ParseCN(info.CN())
	require.NoError(t, err)
	assert.Equal(t, info, parsed)
}

func TestFromCertificate(t *testing.T) {
	cert := &x509.Certificate{
		Subject: pkix.Name{CommonName: "poller-3.nyc-office.tenant-acme.edgefleet"},
	}

	info, err := FromCertificate(cert)
	require.NoError(t, err)
	assert.Equal(t, "tenant-acme", info.TenantID)
	assert.Equal(t, "nyc-office", info.SiteSlug)

	_, err = FromCertificate(nil)
	assert.ErrorIs(t, err, ErrNoPeerCert)
}

func TestContextRoundTrip(t *testing.T) {
	info := &Info{TenantID: "tenant-acme"}
	ctx := WithContext(context.Background(), info)

	got, err := FromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, info, got)

	assert.Equal(t, "tenant-acme", IDFromContext(ctx))
}

func TestFromContextMissing(t *testing.T) {
	_, err := FromContext(context.Background())
	assert.ErrorIs(t, err, ErrNoTenantInContext)

	assert.Empty(t, IDFromContext(context.Background()))

	assert.Panics(t, func() {
		MustFromContext(context.Background())
	})
}
