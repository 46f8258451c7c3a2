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

// Package core implements the edge-fleet onboarding services: package
// lifecycle, site provisioning and bundle assembly.
package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carverauto/edgefleet/pkg/crypto/secrets"
	"github.com/carverauto/edgefleet/pkg/db"
	"github.com/carverauto/edgefleet/pkg/logger"
	"github.com/carverauto/edgefleet/pkg/models"
	"github.com/carverauto/edgefleet/pkg/tokens"
)

const (
	defaultDownloadTokenTTL = 24 * time.Hour
	defaultSecurityMode     = "mtls"
	defaultListLimit        = 50
)

// ErrOnboardingDisabled is returned when package issuance is switched off
// in configuration.
var ErrOnboardingDisabled = errors.New("onboarding: disabled by configuration")

// OnboardingService owns the onboarding-package state machine and its
// audit trail. Every state transition is applied atomically with its
// event; tenant scope is an explicit parameter on every call.
type OnboardingService struct {
	cfg    *models.OnboardingConfig
	store  db.Service
	vault  secrets.Vault
	issuer *tokens.Issuer
	logger logger.Logger
	now    func() time.Time
}

// NewOnboardingService wires the package manager. The vault encrypts
// installer payloads at rest; cleartext download tokens leave this
// service exactly once, from CreatePackage.
func NewOnboardingService(cfg *models.OnboardingConfig, store db.Service, vault secrets.Vault, log logger.Logger) *OnboardingService {
	return &OnboardingService{
		cfg:    cfg,
		store:  store,
		vault:  vault,
		issuer: tokens.NewIssuer(),
		logger: log.WithComponent("onboarding"),
		now:    time.Now,
	}
}

// installerPayload is the material encrypted into a package at creation
// and recovered on redemption.
type installerPayload struct {
	PackageID     string               `json:"package_id"`
	TenantID      string               `json:"tenant_id"`
	Label         string               `json:"label"`
	ComponentType models.ComponentType `json:"component_type"`
	ParentType    models.ComponentType `json:"parent_type,omitempty"`
	ParentID      string               `json:"parent_id,omitempty"`
	PollerID      string               `json:"poller_id,omitempty"`
	SecurityMode  string               `json:"security_mode"`
	CheckerKind   string               `json:"checker_kind,omitempty"`
	CheckerConfig json.RawMessage      `json:"checker_config,omitempty"`
	IssuedAt      time.Time            `json:"issued_at"`
}

// CreatePackage validates the request, mints a download token and
// persists the package in issued state with its created event. The
// returned cleartext token is never retrievable again.
func (s *OnboardingService) CreatePackage(ctx context.Context, tenantID string, req *models.PackageCreateRequest) (*models.PackageCreateResult, error) {
	if s.cfg == nil || !s.cfg.Enabled {
		return nil, ErrOnboardingDisabled
	}

	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}

	now := s.now().UTC()

	ttl := req.DownloadTokenTTL
	if ttl <= 0 {
		ttl = time.Duration(s.cfg.DownloadTokenTTL)
	}
	if ttl <= 0 {
		ttl = defaultDownloadTokenTTL
	}

	issued, err := s.issuer.Issue(tokens.KindDownload, ttl)
	if err != nil {
		return nil, fmt.Errorf("issue download token: %w", err)
	}

	securityMode := s.cfg.SecurityMode
	if securityMode == "" {
		securityMode = defaultSecurityMode
	}

	pkg := &models.Package{
		PackageID:              uuid.NewString(),
		TenantID:               tenantID,
		Label:                  req.Label,
		ComponentType:          req.ComponentType,
		ParentType:             models.ParentTypeFor(req.ComponentType),
		ParentID:               req.ParentID,
		PollerID:               req.PollerID,
		SecurityMode:           securityMode,
		Status:                 models.PackageStatusIssued,
		CheckerKind:            req.CheckerKind,
		CheckerConfigJSON:      req.CheckerConfigJSON,
		DownloadTokenHash:      issued.Digest,
		DownloadTokenExpiresAt: issued.ExpiresAt,
		CreatedBy:              req.CreatedBy,
		CreatedAt:              now,
		UpdatedAt:              now,
		Notes:                  req.Notes,
	}

	payload := installerPayload{
		PackageID:     pkg.PackageID,
		TenantID:      tenantID,
		Label:         pkg.Label,
		ComponentType: pkg.ComponentType,
		ParentType:    pkg.ParentType,
		ParentID:      pkg.ParentID,
		PollerID:      pkg.PollerID,
		SecurityMode:  pkg.SecurityMode,
		CheckerKind:   pkg.CheckerKind,
		IssuedAt:      now,
	}
	if pkg.CheckerConfigJSON != "" {
		payload.CheckerConfig = json.RawMessage(pkg.CheckerConfigJSON)
	}

	cleartext, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal installer payload: %w", err)
	}

	pkg.PayloadCiphertext, err = s.vault.Encrypt(cleartext)
	if err != nil {
		return nil, fmt.Errorf("encrypt installer payload: %w", err)
	}

	event := &models.PackageEvent{
		PackageID: pkg.PackageID,
		TenantID:  tenantID,
		EventTime: now,
		EventType: models.PackageEventCreated,
		Actor:     req.CreatedBy,
	}

	if err := s.store.CreatePackage(ctx, tenantID, pkg, event); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("package_id", pkg.PackageID).
		Str("component_type", string(pkg.ComponentType)).
		Str("tenant_id", tenantID).
		Msg("Issued onboarding package")

	return &models.PackageCreateResult{
		Package:       pkg,
		DownloadToken: issued.Secret,
	}, nil
}

func validateCreateRequest(req *models.PackageCreateRequest) error {
	if req == nil {
		return fmt.Errorf("%w: request is nil", models.ErrOnboardingInvalidRequest)
	}

	if req.Label == "" {
		return fmt.Errorf("%w: label is required", models.ErrOnboardingInvalidRequest)
	}

	switch req.ComponentType {
	case models.ComponentTypePoller, models.ComponentTypeAgent, models.ComponentTypeChecker:
	default:
		return fmt.Errorf("%w: unknown component type %q", models.ErrOnboardingInvalidRequest, req.ComponentType)
	}

	if req.ComponentType == models.ComponentTypeChecker {
		if req.CheckerKind == "" {
			return fmt.Errorf("%w: checker_kind is required for checker packages", models.ErrOnboardingInvalidRequest)
		}
	} else if req.CheckerKind != "" {
		return fmt.Errorf("%w: checker_kind is only valid for checker packages", models.ErrOnboardingInvalidRequest)
	}

	if req.CheckerConfigJSON != "" && !json.Valid([]byte(req.CheckerConfigJSON)) {
		return fmt.Errorf("%w: checker_config must be valid JSON", models.ErrOnboardingInvalidRequest)
	}

	return nil
}

// GetPackage is a tenant-scoped lookup. Deleted packages and packages
// belonging to other tenants both surface as not-found.
func (s *OnboardingService) GetPackage(ctx context.Context, tenantID, packageID string) (*models.Package, error) {
	pkg, err := s.store.GetPackage(ctx, tenantID, packageID)
	if err != nil {
		return nil, err
	}

	if pkg.Status == models.PackageStatusDeleted {
		return nil, fmt.Errorf("%w: %s", db.ErrPackageNotFound, packageID)
	}

	return s.present(pkg), nil
}

// ListPackages returns the tenant's packages newest first. Deleted
// packages are excluded unless explicitly requested. Status filtering is
// pushed into storage ahead of the limit, carrying the evaluation instant
// so a stale issued package matches "expired", not "issued"; presentation
// only reshapes the rows that come back.
func (s *OnboardingService) ListPackages(ctx context.Context, tenantID string, filter *models.PackageListFilter) ([]*models.Package, error) {
	storeFilter := models.PackageListFilter{
		Limit: defaultListLimit,
		AsOf:  s.now().UTC(),
	}

	if filter != nil {
		if filter.Limit > 0 {
			storeFilter.Limit = filter.Limit
		}
		storeFilter.Statuses = filter.Statuses
		storeFilter.Types = filter.Types
	}

	fetched, err := s.store.ListPackages(ctx, tenantID, &storeFilter)
	if err != nil {
		return nil, err
	}

	packages := make([]*models.Package, 0, len(fetched))
	for _, pkg := range fetched {
		packages = append(packages, s.present(pkg))
	}

	return packages, nil
}

// present applies lazy expiry: an issued package whose download token
// TTL has elapsed reads as expired on every path. Expiry has no actor,
// so no audit event is written.
func (s *OnboardingService) present(pkg *models.Package) *models.Package {
	if pkg.Status == models.PackageStatusIssued && s.now().After(pkg.DownloadTokenExpiresAt) {
		presented := *pkg
		presented.Status = models.PackageStatusExpired
		return &presented
	}
	return pkg
}

// RevokePackage moves a package to revoked from any active state and
// invalidates its download token. Exactly one of any set of concurrent
// revokes wins; the rest observe AlreadyRevoked.
func (s *OnboardingService) RevokePackage(ctx context.Context, tenantID string, req *models.PackageRevokeRequest) (*models.Package, error) {
	if req == nil || req.PackageID == "" {
		return nil, fmt.Errorf("%w: package id is required", models.ErrOnboardingInvalidRequest)
	}

	pkg, err := s.GetPackage(ctx, tenantID, req.PackageID)
	if err != nil {
		return nil, err
	}

	switch pkg.Status {
	case models.PackageStatusRevoked:
		return nil, fmt.Errorf("%w: %s", models.ErrPackageRevoked, req.PackageID)
	case models.PackageStatusExpired:
		return nil, fmt.Errorf("%w: %s", models.ErrPackageExpired, req.PackageID)
	}

	now := s.now().UTC()

	updated := *pkg
	updated.Status = models.PackageStatusRevoked
	updated.RevokedAt = &now
	updated.UpdatedAt = now
	// A revoked package's token never validates again, even if the
	// revocation is read before the row update propagates elsewhere.
	updated.DownloadTokenHash = ""

	event := &models.PackageEvent{
		PackageID:   pkg.PackageID,
		TenantID:    tenantID,
		EventTime:   now,
		EventType:   models.PackageEventRevoked,
		Actor:       req.Actor,
		SourceIP:    req.SourceIP,
		DetailsJSON: detailsJSON(map[string]string{"reason": req.Reason}),
	}

	applied, err := s.store.TransitionPackage(ctx, tenantID, &updated,
		[]models.PackageStatus{
			models.PackageStatusIssued,
			models.PackageStatusDelivered,
			models.PackageStatusActivated,
		}, event)
	if err != nil {
		return nil, err
	}

	if !applied {
		return nil, s.classifyTransitionConflict(ctx, tenantID, req.PackageID)
	}

	s.logger.Info().
		Str("package_id", pkg.PackageID).
		Str("actor", req.Actor).
		Str("tenant_id", tenantID).
		Msg("Revoked onboarding package")

	return &updated, nil
}

// classifyTransitionConflict re-reads a package after a guard miss so a
// losing writer can report what actually happened.
func (s *OnboardingService) classifyTransitionConflict(ctx context.Context, tenantID, packageID string) error {
	current, err := s.store.GetPackage(ctx, tenantID, packageID)
	if err != nil {
		return err
	}

	switch s.present(current).Status {
	case models.PackageStatusRevoked:
		return fmt.Errorf("%w: %s", models.ErrPackageRevoked, packageID)
	case models.PackageStatusDeleted:
		return fmt.Errorf("%w: %s", db.ErrPackageNotFound, packageID)
	case models.PackageStatusExpired:
		return fmt.Errorf("%w: %s", models.ErrPackageExpired, packageID)
	default:
		return fmt.Errorf("%w: %s", db.ErrPackageNotFound, packageID)
	}
}

// DeletePackage tombstones a package. Valid from any state except
// deleted itself; a second delete reports not-found because the record
// has left the visible lifecycle.
func (s *OnboardingService) DeletePackage(ctx context.Context, tenantID, packageID, actor, reason, sourceIP string) error {
	if packageID == "" {
		return fmt.Errorf("%w: package id is required", models.ErrOnboardingInvalidRequest)
	}

	pkg, err := s.store.GetPackage(ctx, tenantID, packageID)
	if err != nil {
		return err
	}

	if pkg.Status == models.PackageStatusDeleted {
		return fmt.Errorf("%w: %s", db.ErrPackageNotFound, packageID)
	}

	now := s.now().UTC()

	updated := *pkg
	updated.Status = models.PackageStatusDeleted
	updated.DeletedAt = &now
	updated.DeletedBy = actor
	updated.DeletedReason = reason
	updated.UpdatedAt = now
	updated.DownloadTokenHash = ""

	event := &models.PackageEvent{
		PackageID:   pkg.PackageID,
		TenantID:    tenantID,
		EventTime:   now,
		EventType:   models.PackageEventDeleted,
		Actor:       actor,
		SourceIP:    sourceIP,
		DetailsJSON: detailsJSON(map[string]string{"reason": reason}),
	}

	applied, err := s.store.TransitionPackage(ctx, tenantID, &updated,
		[]models.PackageStatus{
			models.PackageStatusIssued,
			models.PackageStatusDelivered,
			models.PackageStatusActivated,
			models.PackageStatusRevoked,
			models.PackageStatusExpired,
		}, event)
	if err != nil {
		return err
	}

	if !applied {
		return fmt.Errorf("%w: %s", db.ErrPackageNotFound, packageID)
	}

	s.logger.Info().
		Str("package_id", packageID).
		Str("actor", actor).
		Str("tenant_id", tenantID).
		Msg("Deleted onboarding package")

	return nil
}

// DeliverPackage redeems a (package_id, download_token) pair. The same
// still-valid token may re-deliver the payload until it expires or the
// package is revoked; the first redemption transitions issued to
// delivered with its audit event.
func (s *OnboardingService) DeliverPackage(ctx context.Context, tenantID string, req *models.PackageDeliverRequest) (*models.PackageDeliverResult, error) {
	if req == nil || req.PackageID == "" {
		return nil, fmt.Errorf("%w: package id is required", models.ErrOnboardingInvalidRequest)
	}
	if req.DownloadToken == "" {
		return nil, models.ErrDownloadTokenRequired
	}

	pkg, err := s.store.GetPackage(ctx, tenantID, req.PackageID)
	if err != nil {
		return nil, err
	}

	switch pkg.Status {
	case models.PackageStatusDeleted:
		return nil, fmt.Errorf("%w: %s", db.ErrPackageNotFound, req.PackageID)
	case models.PackageStatusRevoked:
		return nil, fmt.Errorf("%w: %s", models.ErrPackageRevoked, req.PackageID)
	}

	switch tokens.Validate(pkg.DownloadTokenHash, req.DownloadToken, pkg.DownloadTokenExpiresAt, s.now()) {
	case tokens.StatusExpired:
		return nil, models.ErrDownloadTokenExpired
	case tokens.StatusInvalid:
		return nil, models.ErrDownloadTokenInvalid
	}

	payload, err := s.vault.Decrypt(pkg.PayloadCiphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrDecryptFailed, err)
	}

	if pkg.Status == models.PackageStatusIssued {
		now := s.now().UTC()

		updated := *pkg
		updated.Status = models.PackageStatusDelivered
		updated.DeliveredAt = &now
		updated.UpdatedAt = now

		event := &models.PackageEvent{
			PackageID: pkg.PackageID,
			TenantID:  tenantID,
			EventTime: now,
			EventType: models.PackageEventDelivered,
			Actor:     req.Actor,
			SourceIP:  req.SourceIP,
		}

		applied, transitionErr := s.store.TransitionPackage(ctx, tenantID, &updated,
			[]models.PackageStatus{models.PackageStatusIssued}, event)
		if transitionErr != nil {
			return nil, transitionErr
		}

		if applied {
			pkg = &updated
		} else {
			// Lost to a concurrent writer. A concurrent revoke or delete
			// must win over delivery, so re-read and reclassify.
			current, readErr := s.store.GetPackage(ctx, tenantID, req.PackageID)
			if readErr != nil {
				return nil, readErr
			}

			switch current.Status {
			case models.PackageStatusRevoked:
				return nil, fmt.Errorf("%w: %s", models.ErrPackageRevoked, req.PackageID)
			case models.PackageStatusDeleted:
				return nil, fmt.Errorf("%w: %s", db.ErrPackageNotFound, req.PackageID)
			}

			pkg = current
		}
	}

	s.logger.Info().
		Str("package_id", pkg.PackageID).
		Str("tenant_id", tenantID).
		Str("source_ip", req.SourceIP).
		Msg("Delivered onboarding package")

	return &models.PackageDeliverResult{Package: pkg, Payload: payload}, nil
}

// ActivatePackage records the external activation signal emitted once a
// delivered component joins the network.
func (s *OnboardingService) ActivatePackage(ctx context.Context, tenantID, packageID, actor, sourceIP string) (*models.Package, error) {
	if packageID == "" {
		return nil, fmt.Errorf("%w: package id is required", models.ErrOnboardingInvalidRequest)
	}

	pkg, err := s.GetPackage(ctx, tenantID, packageID)
	if err != nil {
		return nil, err
	}

	switch pkg.Status {
	case models.PackageStatusActivated:
		return pkg, nil
	case models.PackageStatusRevoked:
		return nil, fmt.Errorf("%w: %s", models.ErrPackageRevoked, packageID)
	case models.PackageStatusExpired:
		return nil, fmt.Errorf("%w: %s", models.ErrPackageExpired, packageID)
	case models.PackageStatusIssued:
		return nil, fmt.Errorf("%w: package %s has not been delivered", models.ErrOnboardingInvalidRequest, packageID)
	}

	now := s.now().UTC()

	updated := *pkg
	updated.Status = models.PackageStatusActivated
	updated.ActivatedAt = &now
	updated.UpdatedAt = now

	event := &models.PackageEvent{
		PackageID: pkg.PackageID,
		TenantID:  tenantID,
		EventTime: now,
		EventType: models.PackageEventActivated,
		Actor:     actor,
		SourceIP:  sourceIP,
	}

	applied, err := s.store.TransitionPackage(ctx, tenantID, &updated,
		[]models.PackageStatus{models.PackageStatusDelivered}, event)
	if err != nil {
		return nil, err
	}

	if !applied {
		return nil, s.classifyTransitionConflict(ctx, tenantID, packageID)
	}

	s.logger.Info().
		Str("package_id", packageID).
		Str("tenant_id", tenantID).
		Msg("Activated onboarding package")

	return &updated, nil
}

// ListPackageEvents returns the audit trail for a package, newest first.
func (s *OnboardingService) ListPackageEvents(ctx context.Context, tenantID, packageID string, limit int) ([]*models.PackageEvent, error) {
	if _, err := s.GetPackage(ctx, tenantID, packageID); err != nil {
		return nil, err
	}

	return s.store.ListPackageEvents(ctx, tenantID, packageID, limit)
}

func detailsJSON(details map[string]string) string {
	encoded, err := json.Marshal(details)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}
