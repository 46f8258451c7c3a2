package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/edgefleet/pkg/core"
	"github.com/carverauto/edgefleet/pkg/crypto/secrets"
	"github.com/carverauto/edgefleet/pkg/db"
	"github.com/carverauto/edgefleet/pkg/logger"
	"github.com/carverauto/edgefleet/pkg/models"
	"github.com/carverauto/edgefleet/pkg/natsleaf"
)

const (
	testTenant      = "tenant-acme"
	testAccountSeed = "SAAHPPNBNGJS55UFJ25VHHOKBBXFTZRFMOKVOIMD6E23SUDADM2YUDRNRE"
)

func newTestServer(t *testing.T) (*Server, *db.MockService) {
	t.Helper()

	ctrl := gomock.NewController(t)
	store := db.NewMockService(ctrl)
	log := logger.NewTestLogger()

	vault, err := secrets.NewCipher(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)

	minter, err := natsleaf.NewMinter(testAccountSeed)
	require.NoError(t, err)

	onboardingCfg := &models.OnboardingConfig{Enabled: true, DownloadTokenTTL: models.Duration(time.Hour)}
	leafCfg := &models.LeafCredsConfig{UpstreamURL: "nats://core.example.com:7422"}

	server := NewServer(
		core.NewOnboardingService(onboardingCfg, store, vault, log),
		core.NewSiteService(leafCfg, store, vault, minter, log),
		core.NewBundleService(leafCfg, store, vault, log),
		log,
	)

	return server, store
}

func doRequest(t *testing.T, server *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(TenantHeader, testTenant)
	req.RemoteAddr = "10.0.0.9:51234"

	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, req)

	return recorder
}

func TestTenantMiddlewareRejectsAnonymousRequests(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/sites", nil)
	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusUnauthorized, resp.Status)
}

func TestCreatePackageReturnsTokenOnce(t *testing.T) {
	server, store := newTestServer(t)

	store.EXPECT().
		CreatePackage(gomock.Any(), testTenant, gomock.Any(), gomock.Any()).
		Return(nil)

	recorder := doRequest(t, server, http.MethodPost, "/api/onboarding/packages",
		`{"label":"rack-3 checker","component_type":"checker","checker_kind":"snmp"}`)

	require.Equal(t, http.StatusCreated, recorder.Code)

	var resp createPackageResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))

	assert.Len(t, resp.DownloadToken, 32)
	assert.Equal(t, models.PackageStatusIssued, resp.Package.Status)
	assert.Equal(t, models.ComponentTypeAgent, resp.Package.ParentType)

	// The hash and payload ciphertext never serialize.
	assert.NotContains(t, recorder.Body.String(), "download_token_hash")
	assert.NotContains(t, recorder.Body.String(), "payload_ciphertext")
}

func TestCreatePackageValidationError(t *testing.T) {
	server, _ := newTestServer(t)

	recorder := doRequest(t, server, http.MethodPost, "/api/onboarding/packages",
		`{"component_type":"poller"}`)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestGetPackageNotFound(t *testing.T) {
	server, store := newTestServer(t)

	store.EXPECT().
		GetPackage(gomock.Any(), testTenant, "pkg-1").
		Return(nil, db.ErrPackageNotFound)

	recorder := doRequest(t, server, http.MethodGet, "/api/onboarding/packages/pkg-1", "")
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestRevokePackageAlreadyRevokedConflict(t *testing.T) {
	server, store := newTestServer(t)

	revoked := &models.Package{
		PackageID: "pkg-1",
		TenantID:  testTenant,
		Status:    models.PackageStatusRevoked,
	}

	store.EXPECT().GetPackage(gomock.Any(), testTenant, "pkg-1").Return(revoked, nil)

	recorder := doRequest(t, server, http.MethodPost, "/api/onboarding/packages/pkg-1/revoke",
		`{"reason":"compromised"}`)

	assert.Equal(t, http.StatusConflict, recorder.Code)
}

func TestListPackagesDegradesToEmptyOnReadFailure(t *testing.T) {
	server, store := newTestServer(t)

	store.EXPECT().
		ListPackages(gomock.Any(), testTenant, gomock.Any()).
		Return(nil, errors.New("connection refused"))

	recorder := doRequest(t, server, http.MethodGet, "/api/onboarding/packages", "")

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, "[]", recorder.Body.String())
}

func TestDeliverPackageInvalidTokenForbidden(t *testing.T) {
	server, store := newTestServer(t)

	pkg := &models.Package{
		PackageID:              "pkg-1",
		TenantID:               testTenant,
		Status:                 models.PackageStatusIssued,
		DownloadTokenHash:      "0000000000000000000000000000000000000000000000000000000000000000",
		DownloadTokenExpiresAt: time.Now().Add(time.Hour),
	}

	store.EXPECT().GetPackage(gomock.Any(), testTenant, "pkg-1").Return(pkg, nil)

	recorder := doRequest(t, server, http.MethodPost, "/api/onboarding/packages/pkg-1/download",
		`{"download_token":"wrong"}`)

	assert.Equal(t, http.StatusForbidden, recorder.Code)
}

func TestCreateSiteSlugConflict(t *testing.T) {
	server, store := newTestServer(t)

	store.EXPECT().
		CreateSite(gomock.Any(), testTenant, gomock.Any(), gomock.Any()).
		Return(db.ErrSiteSlugExists)

	recorder := doRequest(t, server, http.MethodPost, "/api/sites", `{"name":"NYC Office"}`)
	assert.Equal(t, http.StatusConflict, recorder.Code)
}

func TestCreateSite(t *testing.T) {
	server, store := newTestServer(t)

	store.EXPECT().
		CreateSite(gomock.Any(), testTenant, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, site *models.EdgeSite, leaf *models.NatsLeafServer) error {
			assert.Equal(t, "nyc-office", site.Slug)
			assert.Equal(t, models.LeafServerStatusPending, leaf.Status)
			return nil
		})

	recorder := doRequest(t, server, http.MethodPost, "/api/sites", `{"name":"NYC Office"}`)
	require.Equal(t, http.StatusCreated, recorder.Code)

	var site models.EdgeSite
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &site))
	assert.Equal(t, "nyc-office", site.Slug)
}

func TestDownloadBundleKeyUnavailable(t *testing.T) {
	server, store := newTestServer(t)

	site := &models.EdgeSite{SiteID: "site-1", TenantID: testTenant, Slug: "nyc-office"}
	leaf := &models.NatsLeafServer{SiteID: "site-1", TenantID: testTenant, Status: models.LeafServerStatusPending}

	store.EXPECT().GetSite(gomock.Any(), testTenant, "site-1").Return(site, nil)
	store.EXPECT().GetLeafServer(gomock.Any(), testTenant, "site-1").Return(leaf, nil)

	recorder := doRequest(t, server, http.MethodGet, "/api/sites/site-1/bundle", "")

	assert.Equal(t, http.StatusConflict, recorder.Code)
	assert.NotContains(t, recorder.Header().Get("Content-Type"), "gzip")
}

func TestDownloadBundle(t *testing.T) {
	server, store := newTestServer(t)

	cipher, err := secrets.NewCipher(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)

	leafCiphertext, err := cipher.Encrypt([]byte("leaf creds"))
	require.NoError(t, err)
	serverCiphertext, err := cipher.Encrypt([]byte("server creds"))
	require.NoError(t, err)

	site := &models.EdgeSite{SiteID: "site-1", TenantID: testTenant, Name: "NYC Office", Slug: "nyc-office"}
	leaf := &models.NatsLeafServer{
		SiteID:              "site-1",
		TenantID:            testTenant,
		Status:              models.LeafServerStatusProvisioned,
		LeafKeyCiphertext:   leafCiphertext,
		ServerKeyCiphertext: serverCiphertext,
	}

	store.EXPECT().GetSite(gomock.Any(), testTenant, "site-1").Return(site, nil)
	store.EXPECT().GetLeafServer(gomock.Any(), testTenant, "site-1").Return(leaf, nil)

	recorder := doRequest(t, server, http.MethodGet, "/api/sites/site-1/bundle", "")

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "application/gzip", recorder.Header().Get("Content-Type"))
	assert.Contains(t, recorder.Header().Get("Content-Disposition"), "nyc-office-bundle.tar.gz")
	assert.NotEmpty(t, recorder.Body.Bytes())
}

func TestRecordLeafStatus(t *testing.T) {
	server, store := newTestServer(t)

	site := &models.EdgeSite{SiteID: "site-1", TenantID: testTenant, Slug: "nyc-office", Status: models.SiteStatusPending}
	leaf := &models.NatsLeafServer{SiteID: "site-1", TenantID: testTenant, Status: models.LeafServerStatusProvisioned}

	store.EXPECT().GetSite(gomock.Any(), testTenant, "site-1").Return(site, nil)
	store.EXPECT().GetLeafServer(gomock.Any(), testTenant, "site-1").Return(leaf, nil)
	store.EXPECT().
		UpdateLeafStatus(gomock.Any(), testTenant, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, updatedSite *models.EdgeSite, updatedLeaf *models.NatsLeafServer) error {
			assert.Equal(t, models.LeafServerStatusConnected, updatedLeaf.Status)
			assert.Equal(t, models.SiteStatusActive, updatedSite.Status)
			return nil
		})

	recorder := doRequest(t, server, http.MethodPost, "/api/sites/site-1/leaf/status", `{"connected":true}`)
	assert.Equal(t, http.StatusNoContent, recorder.Code)
}
