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
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/carverauto/edgefleet/pkg/core"
	"github.com/carverauto/edgefleet/pkg/models"
	"github.com/carverauto/edgefleet/pkg/tenant"
)

type createSiteRequest struct {
	Name        string `json:"name"`
	Slug        string `json:"slug,omitempty"`
	NatsLeafURL string `json:"nats_leaf_url,omitempty"`
}

func (s *Server) createSite(w http.ResponseWriter, r *http.Request) {
	var req createSiteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	info := tenant.MustFromContext(r.Context())

	site, err := s.sites.CreateSite(r.Context(), info.TenantID, &models.SiteCreateRequest{
		Name:        req.Name,
		Slug:        req.Slug,
		NatsLeafURL: req.NatsLeafURL,
		CreatedBy:   info.String(),
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, site)
}

// listSites degrades to an empty result on a storage read failure, same
// as package listing.
func (s *Server) listSites(w http.ResponseWriter, r *http.Request) {
	tenantID := tenant.IDFromContext(r.Context())

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	sites, err := s.sites.ListSites(r.Context(), tenantID, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("Listing edge sites failed")
		sites = []*models.EdgeSite{}
	}

	if sites == nil {
		sites = []*models.EdgeSite{}
	}

	writeJSON(w, http.StatusOK, sites)
}

func (s *Server) getSite(w http.ResponseWriter, r *http.Request) {
	site, err := s.sites.GetSite(r.Context(), tenant.IDFromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, site)
}

func (s *Server) getSiteBySlug(w http.ResponseWriter, r *http.Request) {
	site, err := s.sites.GetSiteBySlug(r.Context(), tenant.IDFromContext(r.Context()), mux.Vars(r)["slug"])
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, site)
}

func (s *Server) deleteSite(w http.ResponseWriter, r *http.Request) {
	if err := s.sites.DeleteSite(r.Context(), tenant.IDFromContext(r.Context()), mux.Vars(r)["id"]); err != nil {
		s.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type updateNatsURLRequest struct {
	NatsLeafURL string `json:"nats_leaf_url"`
}

func (s *Server) updateNatsURL(w http.ResponseWriter, r *http.Request) {
	var req updateNatsURLRequest
	if !decodeBody(w, r, &req) {
		return
	}

	site, err := s.sites.UpdateNatsURL(r.Context(), tenant.IDFromContext(r.Context()), mux.Vars(r)["id"], req.NatsLeafURL)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, site)
}

type leafServerResponse struct {
	Leaf       *models.NatsLeafServer    `json:"leaf"`
	CertExpiry models.CertExpirySeverity `json:"cert_expiry,omitempty"`
}

func (s *Server) getLeafServer(w http.ResponseWriter, r *http.Request) {
	leaf, err := s.sites.GetLeafServer(r.Context(), tenant.IDFromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	resp := leafServerResponse{Leaf: leaf}
	if leaf.CertExpiresAt != nil {
		resp.CertExpiry = core.ClassifyCertExpiry(*leaf.CertExpiresAt, time.Now())
	}

	writeJSON(w, http.StatusOK, &resp)
}

func (s *Server) reprovisionLeaf(w http.ResponseWriter, r *http.Request) {
	leaf, err := s.sites.Reprovision(r.Context(), tenant.IDFromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, leaf)
}

type leafStatusRequest struct {
	Connected bool `json:"connected"`
}

func (s *Server) recordLeafStatus(w http.ResponseWriter, r *http.Request) {
	var req leafStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.sites.RecordLeafStatus(r.Context(), tenant.IDFromContext(r.Context()), mux.Vars(r)["id"], req.Connected); err != nil {
		s.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) downloadBundle(w http.ResponseWriter, r *http.Request) {
	archive, filename, err := s.bundles.Generate(r.Context(), tenant.IDFromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(archive)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}
