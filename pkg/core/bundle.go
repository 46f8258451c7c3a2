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

package core

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/carverauto/edgefleet/pkg/crypto/secrets"
	"github.com/carverauto/edgefleet/pkg/db"
	"github.com/carverauto/edgefleet/pkg/logger"
	"github.com/carverauto/edgefleet/pkg/models"
)

// Archive member paths are fixed so a receiving installer can locate
// them deterministically.
const (
	bundleReadmePath      = "README.txt"
	bundleSiteInfoPath    = "site.json"
	bundleLeafCredsPath   = "nats/leaf.creds"
	bundleServerCredsPath = "nats/server.creds"
)

// BundleService assembles the installable site archive. Decrypted key
// material exists only transiently inside Generate; no partial archive
// is ever returned.
type BundleService struct {
	cfg    *models.LeafCredsConfig
	store  db.Service
	vault  secrets.Vault
	logger logger.Logger
	now    func() time.Time
}

// NewBundleService wires the bundle generator.
func NewBundleService(cfg *models.LeafCredsConfig, store db.Service, vault secrets.Vault, log logger.Logger) *BundleService {
	return &BundleService{
		cfg:    cfg,
		store:  store,
		vault:  vault,
		logger: log.WithComponent("bundle"),
		now:    time.Now,
	}
}

// bundleSiteInfo is the site.json connection descriptor.
type bundleSiteInfo struct {
	TenantID    string    `json:"tenant_id"`
	SiteName    string    `json:"site_name"`
	SiteSlug    string    `json:"site_slug"`
	UpstreamURL string    `json:"nats_upstream_url,omitempty"`
	LeafURL     string    `json:"nats_leaf_url,omitempty"`
	LeafCreds   string    `json:"leaf_creds_path"`
	ServerCreds string    `json:"server_creds_path"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Generate produces the tar.gz install artifact for a site: connection
// descriptor plus both decrypted credential files. All decrypts complete
// before any archive byte is written; a failure at any step yields zero
// output bytes.
func (s *BundleService) Generate(ctx context.Context, tenantID, siteID string) ([]byte, string, error) {
	site, err := s.store.GetSite(ctx, tenantID, siteID)
	if err != nil {
		return nil, "", err
	}

	leaf, err := s.store.GetLeafServer(ctx, tenantID, siteID)
	if err != nil {
		return nil, "", err
	}

	if leaf.LeafKeyCiphertext == "" || leaf.ServerKeyCiphertext == "" {
		return nil, "", fmt.Errorf("%w: site %s", models.ErrLeafKeyUnavailable, siteID)
	}

	leafCreds, err := s.vault.Decrypt(leaf.LeafKeyCiphertext)
	if err != nil {
		return nil, "", fmt.Errorf("%w: leaf credentials: %w", models.ErrDecryptFailed, err)
	}

	serverCreds, err := s.vault.Decrypt(leaf.ServerKeyCiphertext)
	if err != nil {
		return nil, "", fmt.Errorf("%w: server credentials: %w", models.ErrDecryptFailed, err)
	}

	upstreamURL := leaf.UpstreamURL
	if upstreamURL == "" {
		upstreamURL = s.cfg.UpstreamURL
	}

	info := bundleSiteInfo{
		TenantID:    tenantID,
		SiteName:    site.Name,
		SiteSlug:    site.Slug,
		UpstreamURL: upstreamURL,
		LeafURL:     site.NatsLeafURL,
		LeafCreds:   bundleLeafCredsPath,
		ServerCreds: bundleServerCredsPath,
		GeneratedAt: s.now().UTC(),
	}

	siteJSON, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("marshal site descriptor: %w", err)
	}

	archive, err := buildArchive([]archiveMember{
		{path: bundleReadmePath, mode: 0o644, body: []byte(bundleReadme(site.Slug))},
		{path: bundleSiteInfoPath, mode: 0o600, body: siteJSON},
		{path: bundleLeafCredsPath, mode: 0o600, body: leafCreds},
		{path: bundleServerCredsPath, mode: 0o600, body: serverCreds},
	}, info.GeneratedAt)
	if err != nil {
		return nil, "", err
	}

	s.logger.Info().
		Str("site_id", siteID).
		Str("slug", site.Slug).
		Str("tenant_id", tenantID).
		Int("bytes", len(archive)).
		Msg("Generated site bundle")

	return archive, fmt.Sprintf("%s-bundle.tar.gz", site.Slug), nil
}

type archiveMember struct {
	path string
	mode int64
	body []byte
}

func buildArchive(members []archiveMember, modTime time.Time) ([]byte, error) {
	var buf bytes.Buffer

	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for _, member := range members {
		header := &tar.Header{
			Name:    member.path,
			Mode:    member.mode,
			Size:    int64(len(member.body)),
			ModTime: modTime,
		}

		if err := tw.WriteHeader(header); err != nil {
			return nil, fmt.Errorf("write archive header %s: %w", member.path, err)
		}

		if _, err := tw.Write(member.body); err != nil {
			return nil, fmt.Errorf("write archive member %s: %w", member.path, err)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}

	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("finalize compression: %w", err)
	}

	return buf.Bytes(), nil
}

func bundleReadme(slug string) string {
	return fmt.Sprintf(`Edge site install bundle: %s

Contents:
  site.json          connection descriptor for this site
  nats/leaf.creds    credentials the leaf server dials upstream with
  nats/server.creds  credentials local components authenticate against

Both .creds files contain private key material. Install them with mode
0600 and delete this bundle after installation.
`, slug)
}
