package core

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/edgefleet/pkg/db"
	"github.com/carverauto/edgefleet/pkg/logger"
	"github.com/carverauto/edgefleet/pkg/models"
)

func newTestBundle(t *testing.T) (*BundleService, *db.MockService) {
	t.Helper()

	ctrl := gomock.NewController(t)
	store := db.NewMockService(ctrl)

	cfg := &models.LeafCredsConfig{UpstreamURL: "nats://core.example.com:7422"}

	svc := NewBundleService(cfg, store, newTestVault(t), logger.NewTestLogger())
	svc.now = func() time.Time { return testNow }

	return svc, store
}

func provisionedLeaf(t *testing.T, svc *BundleService) *models.NatsLeafServer {
	t.Helper()

	leafCiphertext, err := svc.vault.Encrypt([]byte("leaf creds material"))
	require.NoError(t, err)

	serverCiphertext, err := svc.vault.Encrypt([]byte("server creds material"))
	require.NoError(t, err)

	return &models.NatsLeafServer{
		SiteID:              "site-1",
		TenantID:            testTenant,
		Status:              models.LeafServerStatusProvisioned,
		UpstreamURL:         "nats://core.example.com:7422",
		LeafKeyCiphertext:   leafCiphertext,
		ServerKeyCiphertext: serverCiphertext,
	}
}

func readArchive(t *testing.T, archive []byte) map[string][]byte {
	t.Helper()

	gz, err := gzip.NewReader(bytes.NewReader(archive))
	require.NoError(t, err)

	members := make(map[string][]byte)
	tr := tar.NewReader(gz)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		body, err := io.ReadAll(tr)
		require.NoError(t, err)
		members[header.Name] = body
	}

	return members
}

func TestGenerateBundle(t *testing.T) {
	svc, store := newTestBundle(t)

	site := pendingSite("site-1")
	site.NatsLeafURL = "nats://10.1.2.3:4222"

	store.EXPECT().GetSite(gomock.Any(), testTenant, "site-1").Return(site, nil)
	store.EXPECT().GetLeafServer(gomock.Any(), testTenant, "site-1").Return(provisionedLeaf(t, svc), nil)

	archive, filename, err := svc.Generate(context.Background(), testTenant, "site-1")
	require.NoError(t, err)

	assert.Equal(t, "nyc-office-bundle.tar.gz", filename)

	members := readArchive(t, archive)
	require.Len(t, members, 4)

	assert.Equal(t, "leaf creds material", string(members["nats/leaf.creds"]))
	assert.Equal(t, "server creds material", string(members["nats/server.creds"]))
	assert.Contains(t, string(members["README.txt"]), "nyc-office")

	siteJSON := string(members["site.json"])
	assert.Contains(t, siteJSON, `"site_slug": "nyc-office"`)
	assert.Contains(t, siteJSON, `"nats_upstream_url": "nats://core.example.com:7422"`)
	assert.Contains(t, siteJSON, `"nats_leaf_url": "nats://10.1.2.3:4222"`)
}

func TestGenerateBundleKeyUnavailable(t *testing.T) {
	svc, store := newTestBundle(t)

	unprovisioned := &models.NatsLeafServer{
		SiteID:   "site-1",
		TenantID: testTenant,
		Status:   models.LeafServerStatusPending,
	}

	store.EXPECT().GetSite(gomock.Any(), testTenant, "site-1").Return(pendingSite("site-1"), nil)
	store.EXPECT().GetLeafServer(gomock.Any(), testTenant, "site-1").Return(unprovisioned, nil)

	archive, _, err := svc.Generate(context.Background(), testTenant, "site-1")
	assert.ErrorIs(t, err, models.ErrLeafKeyUnavailable)
	assert.Empty(t, archive)
}

func TestGenerateBundleDecryptionFailure(t *testing.T) {
	svc, store := newTestBundle(t)

	leaf := provisionedLeaf(t, svc)
	leaf.ServerKeyCiphertext = "bm90LWEtcmVhbC1jaXBoZXJ0ZXh0LXBheWxvYWQ="

	store.EXPECT().GetSite(gomock.Any(), testTenant, "site-1").Return(pendingSite("site-1"), nil)
	store.EXPECT().GetLeafServer(gomock.Any(), testTenant, "site-1").Return(leaf, nil)

	archive, _, err := svc.Generate(context.Background(), testTenant, "site-1")
	assert.ErrorIs(t, err, models.ErrDecryptFailed)
	assert.Empty(t, archive)
}

func TestGenerateBundleSiteNotFound(t *testing.T) {
	svc, store := newTestBundle(t)

	store.EXPECT().GetSite(gomock.Any(), testTenant, "missing").Return(nil, db.ErrSiteNotFound)

	archive, _, err := svc.Generate(context.Background(), testTenant, "missing")
	assert.ErrorIs(t, err, db.ErrSiteNotFound)
	assert.Empty(t, archive)
}
