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

// Package api exposes the onboarding and site-provisioning operations
// over HTTP for UI and CLI collaborators.
package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/carverauto/edgefleet/pkg/core"
	"github.com/carverauto/edgefleet/pkg/db"
	"github.com/carverauto/edgefleet/pkg/logger"
	"github.com/carverauto/edgefleet/pkg/models"
	"github.com/carverauto/edgefleet/pkg/tenant"
)

// TenantHeader carries the tenant ID when the listener is not mTLS
// fronted. On mTLS listeners identity comes from the peer certificate
// and the header is ignored.
const TenantHeader = "X-Tenant-ID"

// Server routes the operation surface.
type Server struct {
	onboarding *core.OnboardingService
	sites      *core.SiteService
	bundles    *core.BundleService
	logger     logger.Logger
}

// NewServer wires the HTTP surface over the core services.
func NewServer(onboarding *core.OnboardingService, sites *core.SiteService, bundles *core.BundleService, log logger.Logger) *Server {
	return &Server{
		onboarding: onboarding,
		sites:      sites,
		bundles:    bundles,
		logger:     log.WithComponent("api"),
	}
}

// Router builds the route table. Every route runs behind the tenant
// middleware; there is no unscoped path.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.tenantMiddleware)

	r.HandleFunc("/api/onboarding/packages", s.createPackage).Methods(http.MethodPost)
	r.HandleFunc("/api/onboarding/packages", s.listPackages).Methods(http.MethodGet)
	r.HandleFunc("/api/onboarding/packages/{id}", s.getPackage).Methods(http.MethodGet)
	r.HandleFunc("/api/onboarding/packages/{id}", s.deletePackage).Methods(http.MethodDelete)
	r.HandleFunc("/api/onboarding/packages/{id}/revoke", s.revokePackage).Methods(http.MethodPost)
	r.HandleFunc("/api/onboarding/packages/{id}/download", s.deliverPackage).Methods(http.MethodPost)
	r.HandleFunc("/api/onboarding/packages/{id}/activate", s.activatePackage).Methods(http.MethodPost)
	r.HandleFunc("/api/onboarding/packages/{id}/events", s.listPackageEvents).Methods(http.MethodGet)

	r.HandleFunc("/api/sites", s.createSite).Methods(http.MethodPost)
	r.HandleFunc("/api/sites", s.listSites).Methods(http.MethodGet)
	r.HandleFunc("/api/sites/by-slug/{slug}", s.getSiteBySlug).Methods(http.MethodGet)
	r.HandleFunc("/api/sites/{id}", s.getSite).Methods(http.MethodGet)
	r.HandleFunc("/api/sites/{id}", s.deleteSite).Methods(http.MethodDelete)
	r.HandleFunc("/api/sites/{id}/nats-url", s.updateNatsURL).Methods(http.MethodPut)
	r.HandleFunc("/api/sites/{id}/leaf", s.getLeafServer).Methods(http.MethodGet)
	r.HandleFunc("/api/sites/{id}/leaf/reprovision", s.reprovisionLeaf).Methods(http.MethodPost)
	r.HandleFunc("/api/sites/{id}/leaf/status", s.recordLeafStatus).Methods(http.MethodPost)
	r.HandleFunc("/api/sites/{id}/bundle", s.downloadBundle).Methods(http.MethodGet)

	return r
}

// tenantMiddleware resolves the caller's tenant and attaches it to the
// request context. Requests with no resolvable tenant never reach a
// handler.
func (s *Server) tenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, err := tenant.FromTLSState(r.TLS)
		if err != nil {
			if id := strings.TrimSpace(r.Header.Get(TenantHeader)); id != "" {
				info = &tenant.Info{TenantID: id}
			} else {
				writeError(w, "tenant identity required", http.StatusUnauthorized)
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(tenant.WithContext(r.Context(), info)))
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, &models.ErrorResponse{Message: message, Status: status})
}

// writeServiceError maps the service error taxonomy onto HTTP status
// codes. Unrecognized errors are reported without their internals.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrOnboardingInvalidRequest),
		errors.Is(err, models.ErrSiteInvalidRequest),
		errors.Is(err, models.ErrDownloadTokenRequired):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, db.ErrPackageNotFound),
		errors.Is(err, db.ErrSiteNotFound),
		errors.Is(err, db.ErrLeafServerNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, models.ErrSiteSlugConflict),
		errors.Is(err, models.ErrPackageRevoked),
		errors.Is(err, models.ErrPackageExpired),
		errors.Is(err, models.ErrLeafKeyUnavailable):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, models.ErrDownloadTokenInvalid):
		writeError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, models.ErrDownloadTokenExpired):
		writeError(w, err.Error(), http.StatusGone)
	case errors.Is(err, core.ErrOnboardingDisabled):
		writeError(w, err.Error(), http.StatusServiceUnavailable)
	default:
		s.logger.Error().Err(err).Msg("Request failed")
		writeError(w, "internal server error", http.StatusInternalServerError)
	}
}

// clientIP prefers the first X-Forwarded-For hop so audit records stay
// meaningful behind a proxy.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

func decodeBody(w http.ResponseWriter, r *http.Request, into interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}
