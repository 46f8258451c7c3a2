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
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carverauto/edgefleet/pkg/crypto/secrets"
	"github.com/carverauto/edgefleet/pkg/db"
	"github.com/carverauto/edgefleet/pkg/logger"
	"github.com/carverauto/edgefleet/pkg/models"
	"github.com/carverauto/edgefleet/pkg/natsleaf"
)

const maxSlugLength = 63

var slugInvalidChars = regexp.MustCompile(`[^a-z0-9]+`)

// SiteService owns edge-site records and the leaf-server provisioning
// state machine. Leaf liveness is never inferred here; connect and
// disconnect arrive as external signals and are only recorded.
type SiteService struct {
	cfg    *models.LeafCredsConfig
	store  db.Service
	vault  secrets.Vault
	minter *natsleaf.Minter
	logger logger.Logger
	now    func() time.Time
}

// NewSiteService wires the provisioner. The minter signs leaf and server
// credentials with the tenant account key from config.
func NewSiteService(cfg *models.LeafCredsConfig, store db.Service, vault secrets.Vault, minter *natsleaf.Minter, log logger.Logger) *SiteService {
	return &SiteService{
		cfg:    cfg,
		store:  store,
		vault:  vault,
		minter: minter,
		logger: log.WithComponent("sites"),
		now:    time.Now,
	}
}

// DeriveSlug normalizes a site name into its slug: lowercase,
// non-alphanumeric runs collapse to a single dash, edges trimmed,
// bounded at 63 characters.
func DeriveSlug(name string) string {
	slug := slugInvalidChars.ReplaceAllString(strings.ToLower(name), "-")
	slug = strings.Trim(slug, "-")

	if len(slug) > maxSlugLength {
		slug = strings.Trim(slug[:maxSlugLength], "-")
	}

	return slug
}

// CreateSite registers an edge site together with its leaf-server record,
// both in pending state. Slug uniqueness is per tenant.
func (s *SiteService) CreateSite(ctx context.Context, tenantID string, req *models.SiteCreateRequest) (*models.EdgeSite, error) {
	if req == nil || strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", models.ErrSiteInvalidRequest)
	}

	slug := req.Slug
	if slug == "" {
		slug = DeriveSlug(req.Name)
	} else if slug != DeriveSlug(slug) {
		return nil, fmt.Errorf("%w: slug %q must be lowercase alphanumeric with dashes", models.ErrSiteInvalidRequest, req.Slug)
	}

	if slug == "" {
		return nil, fmt.Errorf("%w: name %q yields an empty slug", models.ErrSiteInvalidRequest, req.Name)
	}

	now := s.now().UTC()

	site := &models.EdgeSite{
		SiteID:      uuid.NewString(),
		TenantID:    tenantID,
		Name:        strings.TrimSpace(req.Name),
		Slug:        slug,
		NatsLeafURL: req.NatsLeafURL,
		Status:      models.SiteStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	leaf := &models.NatsLeafServer{
		SiteID:      site.SiteID,
		TenantID:    tenantID,
		Status:      models.LeafServerStatusPending,
		UpstreamURL: s.cfg.UpstreamURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreateSite(ctx, tenantID, site, leaf); err != nil {
		if errors.Is(err, db.ErrSiteSlugExists) {
			return nil, fmt.Errorf("%w: %s", models.ErrSiteSlugConflict, slug)
		}
		return nil, err
	}

	s.logger.Info().
		Str("site_id", site.SiteID).
		Str("slug", slug).
		Str("tenant_id", tenantID).
		Msg("Created edge site")

	return site, nil
}

// GetSite is a tenant-scoped lookup.
func (s *SiteService) GetSite(ctx context.Context, tenantID, siteID string) (*models.EdgeSite, error) {
	return s.store.GetSite(ctx, tenantID, siteID)
}

// GetSiteBySlug resolves a site by its tenant-unique slug.
func (s *SiteService) GetSiteBySlug(ctx context.Context, tenantID, slug string) (*models.EdgeSite, error) {
	return s.store.GetSiteBySlug(ctx, tenantID, slug)
}

// ListSites returns the tenant's sites.
func (s *SiteService) ListSites(ctx context.Context, tenantID string, limit int) ([]*models.EdgeSite, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.store.ListSites(ctx, tenantID, limit)
}

// GetLeafServer returns a site's leaf-server record. Key ciphertexts stay
// opaque; only bundle generation decrypts them.
func (s *SiteService) GetLeafServer(ctx context.Context, tenantID, siteID string) (*models.NatsLeafServer, error) {
	return s.store.GetLeafServer(ctx, tenantID, siteID)
}

// UpdateNatsURL records the operator-supplied leaf URL. Pure mutation;
// the leaf connects out-of-band and reports its own status.
func (s *SiteService) UpdateNatsURL(ctx context.Context, tenantID, siteID, url string) (*models.EdgeSite, error) {
	site, err := s.store.GetSite(ctx, tenantID, siteID)
	if err != nil {
		return nil, err
	}

	site.NatsLeafURL = url
	site.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateSite(ctx, tenantID, site); err != nil {
		return nil, err
	}

	return site, nil
}

// Reprovision mints fresh leaf and server credentials, encrypts them at
// rest and resets the leaf server to provisioned. Any previously
// generated bundle is stale from this point on.
func (s *SiteService) Reprovision(ctx context.Context, tenantID, siteID string) (*models.NatsLeafServer, error) {
	site, err := s.store.GetSite(ctx, tenantID, siteID)
	if err != nil {
		return nil, err
	}

	leaf, err := s.store.GetLeafServer(ctx, tenantID, siteID)
	if err != nil {
		return nil, err
	}

	ttl := time.Duration(s.cfg.CertTTL)

	leafCreds, err := s.minter.Mint(tenantID, site.Slug, natsleaf.RoleLeaf, ttl)
	if err != nil {
		return nil, fmt.Errorf("mint leaf credentials: %w", err)
	}

	serverCreds, err := s.minter.Mint(tenantID, site.Slug, natsleaf.RoleServer, ttl)
	if err != nil {
		return nil, fmt.Errorf("mint server credentials: %w", err)
	}

	leafCiphertext, err := s.vault.Encrypt([]byte(leafCreds.CredsFile))
	if err != nil {
		return nil, fmt.Errorf("encrypt leaf credentials: %w", err)
	}

	serverCiphertext, err := s.vault.Encrypt([]byte(serverCreds.CredsFile))
	if err != nil {
		return nil, fmt.Errorf("encrypt server credentials: %w", err)
	}

	now := s.now().UTC()
	certExpiresAt := leafCreds.ExpiresAt

	leaf.Status = models.LeafServerStatusProvisioned
	leaf.LeafKeyCiphertext = leafCiphertext
	leaf.ServerKeyCiphertext = serverCiphertext
	leaf.CertExpiresAt = &certExpiresAt
	leaf.ProvisionedAt = &now
	leaf.ConnectedAt = nil
	leaf.UpdatedAt = now

	if err := s.store.UpdateLeafServer(ctx, tenantID, leaf); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("site_id", siteID).
		Str("tenant_id", tenantID).
		Time("cert_expires_at", certExpiresAt).
		Msg("Reprovisioned leaf server")

	return leaf, nil
}

// DeleteSite removes a site and cascades to its leaf-server record. No
// soft delete: this cuts the site's route to the network and voids any
// previously generated bundle.
func (s *SiteService) DeleteSite(ctx context.Context, tenantID, siteID string) error {
	if err := s.store.DeleteSite(ctx, tenantID, siteID); err != nil {
		return err
	}

	s.logger.Info().
		Str("site_id", siteID).
		Str("tenant_id", tenantID).
		Msg("Deleted edge site")

	return nil
}

// RecordLeafStatus stores a connect or disconnect signal reported by the
// deployed leaf process and mirrors it onto the site's status. Both rows
// move in one storage transaction; a signal either lands fully or not at
// all.
func (s *SiteService) RecordLeafStatus(ctx context.Context, tenantID, siteID string, connected bool) error {
	site, err := s.store.GetSite(ctx, tenantID, siteID)
	if err != nil {
		return err
	}

	leaf, err := s.store.GetLeafServer(ctx, tenantID, siteID)
	if err != nil {
		return err
	}

	now := s.now().UTC()

	if connected {
		leaf.Status = models.LeafServerStatusConnected
		leaf.ConnectedAt = &now
		site.Status = models.SiteStatusActive
	} else {
		leaf.Status = models.LeafServerStatusDisconnected
		site.Status = models.SiteStatusOffline
	}

	leaf.UpdatedAt = now
	site.LastSeenAt = &now
	site.UpdatedAt = now

	return s.store.UpdateLeafStatus(ctx, tenantID, site, leaf)
}

// ClassifyCertExpiry buckets a leaf certificate by days remaining until
// expiry. Boundary days fall into the lower-severity bucket: exactly 7
// days reads as expiring, exactly 30 as ok.
func ClassifyCertExpiry(certExpiresAt, now time.Time) models.CertExpirySeverity {
	days := int(math.Floor(certExpiresAt.Sub(now).Hours() / 24))

	switch {
	case days < 0:
		return models.CertExpiryExpired
	case days < 7:
		return models.CertExpiryExpiringSoon
	case days < 30:
		return models.CertExpiryExpiring
	default:
		return models.CertExpiryOK
	}
}
