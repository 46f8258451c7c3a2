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

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/carverauto/edgefleet/pkg/models"
	"github.com/carverauto/edgefleet/pkg/tenant"
)

type createPackageRequest struct {
	Label            string          `json:"label"`
	ComponentType    string          `json:"component_type"`
	ParentID         string          `json:"parent_id,omitempty"`
	PollerID         string          `json:"poller_id,omitempty"`
	CheckerKind      string          `json:"checker_kind,omitempty"`
	CheckerConfig    string          `json:"checker_config,omitempty"`
	Notes            string          `json:"notes,omitempty"`
	CreatedBy        string          `json:"created_by,omitempty"`
	DownloadTokenTTL models.Duration `json:"download_token_ttl,omitempty"`
}

type createPackageResponse struct {
	Package *models.Package `json:"package"`
	// DownloadToken is returned exactly once; no read path exposes it again.
	DownloadToken string `json:"download_token"`
}

func (s *Server) createPackage(w http.ResponseWriter, r *http.Request) {
	var req createPackageRequest
	if !decodeBody(w, r, &req) {
		return
	}

	info := tenant.MustFromContext(r.Context())

	createdBy := req.CreatedBy
	if createdBy == "" {
		createdBy = info.String()
	}

	result, err := s.onboarding.CreatePackage(r.Context(), info.TenantID, &models.PackageCreateRequest{
		Label:             req.Label,
		ComponentType:     models.ComponentType(req.ComponentType),
		ParentID:          req.ParentID,
		PollerID:          req.PollerID,
		CheckerKind:       req.CheckerKind,
		CheckerConfigJSON: req.CheckerConfig,
		Notes:             req.Notes,
		CreatedBy:         createdBy,
		DownloadTokenTTL:  time.Duration(req.DownloadTokenTTL),
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, &createPackageResponse{
		Package:       result.Package,
		DownloadToken: result.DownloadToken,
	})
}

// listPackages degrades to an empty result on a storage read failure so
// list screens stay usable during partial outages. Writes never degrade.
func (s *Server) listPackages(w http.ResponseWriter, r *http.Request) {
	tenantID := tenant.IDFromContext(r.Context())
	query := r.URL.Query()

	filter := models.PackageListFilter{}

	for _, status := range query["status"] {
		filter.Statuses = append(filter.Statuses, models.PackageStatus(status))
	}

	for _, componentType := range query["type"] {
		filter.Types = append(filter.Types, models.ComponentType(componentType))
	}

	if raw := query.Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil {
			filter.Limit = limit
		}
	}

	packages, err := s.onboarding.ListPackages(r.Context(), tenantID, &filter)
	if err != nil {
		s.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("Listing onboarding packages failed")
		packages = []*models.Package{}
	}

	if packages == nil {
		packages = []*models.Package{}
	}

	writeJSON(w, http.StatusOK, packages)
}

func (s *Server) getPackage(w http.ResponseWriter, r *http.Request) {
	pkg, err := s.onboarding.GetPackage(r.Context(), tenant.IDFromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pkg)
}

type revokePackageRequest struct {
	Reason string `json:"reason,omitempty"`
	Actor  string `json:"actor,omitempty"`
}

func (s *Server) revokePackage(w http.ResponseWriter, r *http.Request) {
	var req revokePackageRequest
	if !decodeBody(w, r, &req) {
		return
	}

	info := tenant.MustFromContext(r.Context())

	actor := req.Actor
	if actor == "" {
		actor = info.String()
	}

	pkg, err := s.onboarding.RevokePackage(r.Context(), info.TenantID, &models.PackageRevokeRequest{
		PackageID: mux.Vars(r)["id"],
		Actor:     actor,
		Reason:    req.Reason,
		SourceIP:  clientIP(r),
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pkg)
}

func (s *Server) deletePackage(w http.ResponseWriter, r *http.Request) {
	info := tenant.MustFromContext(r.Context())

	reason := r.URL.Query().Get("reason")

	if err := s.onboarding.DeletePackage(r.Context(), info.TenantID, mux.Vars(r)["id"], info.String(), reason, clientIP(r)); err != nil {
		s.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type deliverPackageRequest struct {
	DownloadToken string `json:"download_token"`
}

type deliverPackageResponse struct {
	Package *models.Package `json:"package"`
	Payload string          `json:"payload"`
}

func (s *Server) deliverPackage(w http.ResponseWriter, r *http.Request) {
	var req deliverPackageRequest
	if !decodeBody(w, r, &req) {
		return
	}

	info := tenant.MustFromContext(r.Context())

	result, err := s.onboarding.DeliverPackage(r.Context(), info.TenantID, &models.PackageDeliverRequest{
		PackageID:     mux.Vars(r)["id"],
		DownloadToken: req.DownloadToken,
		Actor:         info.String(),
		SourceIP:      clientIP(r),
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, &deliverPackageResponse{
		Package: result.Package,
		Payload: string(result.Payload),
	})
}

func (s *Server) activatePackage(w http.ResponseWriter, r *http.Request) {
	info := tenant.MustFromContext(r.Context())

	pkg, err := s.onboarding.ActivatePackage(r.Context(), info.TenantID, mux.Vars(r)["id"], info.String(), clientIP(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pkg)
}

func (s *Server) listPackageEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	events, err := s.onboarding.ListPackageEvents(r.Context(), tenant.IDFromContext(r.Context()), mux.Vars(r)["id"], limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	if events == nil {
		events = []*models.PackageEvent{}
	}

	writeJSON(w, http.StatusOK, events)
}
