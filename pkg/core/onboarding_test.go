package core

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/edgefleet/pkg/crypto/secrets"
	"github.com/carverauto/edgefleet/pkg/db"
	"github.com/carverauto/edgefleet/pkg/logger"
	"github.com/carverauto/edgefleet/pkg/models"
	"github.com/carverauto/edgefleet/pkg/tokens"
)

const testTenant = "tenant-acme"

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestVault(t *testing.T) *secrets.Cipher {
	t.Helper()

	cipher, err := secrets.NewCipher(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)

	return cipher
}

func newTestOnboarding(t *testing.T) (*OnboardingService, *db.MockService) {
	t.Helper()

	ctrl := gomock.NewController(t)
	store := db.NewMockService(ctrl)

	cfg := &models.OnboardingConfig{
		Enabled:          true,
		SecurityMode:     "mtls",
		DownloadTokenTTL: models.Duration(24 * time.Hour),
	}

	svc := NewOnboardingService(cfg, store, newTestVault(t), logger.NewTestLogger())
	svc.now = func() time.Time { return testNow }
	svc.issuer = tokens.NewIssuer(tokens.WithClock(func() time.Time { return testNow }))

	return svc, store
}

func TestCreatePackageDerivesParentAndMintsToken(t *testing.T) {
	svc, store := newTestOnboarding(t)

	var stored *models.Package

	store.EXPECT().
		CreatePackage(gomock.Any(), testTenant, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, pkg *models.Package, event *models.PackageEvent) error {
			stored = pkg
			assert.Equal(t, models.PackageEventCreated, event.EventType)
			assert.Equal(t, "ops@acme", event.Actor)
			return nil
		})

	result, err := svc.CreatePackage(context.Background(), testTenant, &models.PackageCreateRequest{
		Label:         "rack-3 snmp checker",
		ComponentType: models.ComponentTypeChecker,
		CheckerKind:   "snmp",
		CreatedBy:     "ops@acme",
	})
	require.NoError(t, err)
	require.NotNil(t, stored)

	assert.Equal(t, models.PackageStatusIssued, stored.Status)
	assert.Equal(t, models.ComponentTypeAgent, stored.ParentType)
	assert.Equal(t, testNow.Add(24*time.Hour), stored.DownloadTokenExpiresAt)

	// The cleartext token leaves exactly once; storage only sees the digest.
	assert.Len(t, result.DownloadToken, 32)
	assert.Equal(t, tokens.Digest(result.DownloadToken), stored.DownloadTokenHash)
	assert.NotContains(t, stored.PayloadCiphertext, result.DownloadToken)
}

func TestCreatePackagePayloadRoundTrips(t *testing.T) {
	svc, store := newTestOnboarding(t)

	var stored *models.Package

	store.EXPECT().
		CreatePackage(gomock.Any(), testTenant, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, pkg *models.Package, _ *models.PackageEvent) error {
			stored = pkg
			return nil
		})

	_, err := svc.CreatePackage(context.Background(), testTenant, &models.PackageCreateRequest{
		Label:             "edge checker",
		ComponentType:     models.ComponentTypeChecker,
		CheckerKind:       "snmp",
		CheckerConfigJSON: `{"community":"public"}`,
		CreatedBy:         "ops@acme",
	})
	require.NoError(t, err)

	cleartext, err := svc.vault.Decrypt(stored.PayloadCiphertext)
	require.NoError(t, err)

	var payload installerPayload
	require.NoError(t, json.Unmarshal(cleartext, &payload))

	assert.Equal(t, stored.PackageID, payload.PackageID)
	assert.Equal(t, models.ComponentTypeChecker, payload.ComponentType)
	assert.Equal(t, models.ComponentTypeAgent, payload.ParentType)
	assert.JSONEq(t, `{"community":"public"}`, string(payload.CheckerConfig))
}

func TestCreatePackageValidation(t *testing.T) {
	svc, _ := newTestOnboarding(t)

	tests := []struct {
		name string
		req  *models.PackageCreateRequest
	}{
		{name: "nil request", req: nil},
		{name: "missing label", req: &models.PackageCreateRequest{ComponentType: models.ComponentTypePoller}},
		{name: "unknown component type", req: &models.PackageCreateRequest{Label: "x", ComponentType: "router"}},
		{name: "checker without kind", req: &models.PackageCreateRequest{Label: "x", ComponentType: models.ComponentTypeChecker}},
		{name: "poller with checker kind", req: &models.PackageCreateRequest{Label: "x", ComponentType: models.ComponentTypePoller, CheckerKind: "snmp"}},
		{name: "invalid checker config", req: &models.PackageCreateRequest{Label: "x", ComponentType: models.ComponentTypeChecker, CheckerKind: "snmp", CheckerConfigJSON: "{broken"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreatePackage(context.Background(), testTenant, tc.req)
			assert.ErrorIs(t, err, models.ErrOnboardingInvalidRequest)
		})
	}
}

func TestCreatePackageDisabled(t *testing.T) {
	svc, _ := newTestOnboarding(t)
	svc.cfg.Enabled = false

	_, err := svc.CreatePackage(context.Background(), testTenant, &models.PackageCreateRequest{
		Label:         "poller",
		ComponentType: models.ComponentTypePoller,
	})
	assert.ErrorIs(t, err, ErrOnboardingDisabled)
}

func issuedPackage(id string) *models.Package {
	return &models.Package{
		PackageID:              id,
		TenantID:               testTenant,
		Label:                  "edge poller",
		ComponentType:          models.ComponentTypePoller,
		SecurityMode:           "mtls",
		Status:                 models.PackageStatusIssued,
		DownloadTokenExpiresAt: testNow.Add(time.Hour),
		CreatedAt:              testNow.Add(-time.Hour),
		UpdatedAt:              testNow.Add(-time.Hour),
	}
}

func TestGetPackageLazyExpiry(t *testing.T) {
	svc, store := newTestOnboarding(t)

	stale := issuedPackage("pkg-1")
	stale.DownloadTokenExpiresAt = testNow.Add(-time.Minute)

	store.EXPECT().GetPackage(gomock.Any(), testTenant, "pkg-1").Return(stale, nil)

	pkg, err := svc.GetPackage(context.Background(), testTenant, "pkg-1")
	require.NoError(t, err)
	assert.Equal(t, models.PackageStatusExpired, pkg.Status)

	// Presentation only; the stored row is untouched.
	assert.Equal(t, models.PackageStatusIssued, stale.Status)
}

func TestGetPackageDeletedIsNotFound(t *testing.T) {
	svc, store := newTestOnboarding(t)

	gone := issuedPackage("pkg-1")
	gone.Status = models.PackageStatusDeleted

	store.EXPECT().GetPackage(gomock.Any(), testTenant, "pkg-1").Return(gone, nil)

	_, err := svc.GetPackage(context.Background(), testTenant, "pkg-1")
	assert.ErrorIs(t, err, db.ErrPackageNotFound)
}

func TestListPackagesPresentsExpiry(t *testing.T) {
	svc, store := newTestOnboarding(t)

	fresh := issuedPackage("pkg-1")
	stale := issuedPackage("pkg-2")
	stale.DownloadTokenExpiresAt = testNow.Add(-time.Minute)

	store.EXPECT().
		ListPackages(gomock.Any(), testTenant, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, filter *models.PackageListFilter) ([]*models.Package, error) {
			assert.Equal(t, defaultListLimit, filter.Limit)
			assert.Empty(t, filter.Statuses)
			assert.Equal(t, testNow, filter.AsOf)
			return []*models.Package{fresh, stale}, nil
		})

	packages, err := svc.ListPackages(context.Background(), testTenant, nil)
	require.NoError(t, err)
	require.Len(t, packages, 2)

	assert.Equal(t, models.PackageStatusIssued, packages[0].Status)
	assert.Equal(t, models.PackageStatusExpired, packages[1].Status)
}

// A status filter must reach storage, where it applies before the row
// limit. Filtering after the fetch would hide an older issued package
// whenever the newest page is all revoked rows.
func TestListPackagesStatusFilterReachesStorage(t *testing.T) {
	svc, store := newTestOnboarding(t)

	older := issuedPackage("pkg-51")

	store.EXPECT().
		ListPackages(gomock.Any(), testTenant, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, filter *models.PackageListFilter) ([]*models.Package, error) {
			require.Equal(t, []models.PackageStatus{models.PackageStatusIssued}, filter.Statuses)
			assert.Equal(t, defaultListLimit, filter.Limit)
			assert.Equal(t, testNow, filter.AsOf)
			return []*models.Package{older}, nil
		})

	packages, err := svc.ListPackages(context.Background(), testTenant, &models.PackageListFilter{
		Statuses: []models.PackageStatus{models.PackageStatusIssued},
	})
	require.NoError(t, err)
	require.Len(t, packages, 1)
	assert.Equal(t, "pkg-51", packages[0].PackageID)
	assert.Equal(t, models.PackageStatusIssued, packages[0].Status)
}

func TestRevokePackageFromActivated(t *testing.T) {
	svc, store := newTestOnboarding(t)

	active := issuedPackage("pkg-1")
	active.Status = models.PackageStatusActivated

	store.EXPECT().GetPackage(gomock.Any(), testTenant, "pkg-1").Return(active, nil)
	store.EXPECT().
		TransitionPackage(gomock.Any(), testTenant, gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, pkg *models.Package, allowedFrom []models.PackageStatus, event *models.PackageEvent) (bool, error) {
			assert.Equal(t, models.PackageStatusRevoked, pkg.Status)
			assert.Empty(t, pkg.DownloadTokenHash)
			assert.ElementsMatch(t, []models.PackageStatus{
				models.PackageStatusIssued,
				models.PackageStatusDelivered,
				models.PackageStatusActivated,
			}, allowedFrom)
			assert.Equal(t, models.PackageEventRevoked, event.EventType)
			assert.Equal(t, "ops@acme", event.Actor)
			assert.JSONEq(t, `{"reason":"host decommissioned"}`, event.DetailsJSON)
			return true, nil
		})

	pkg, err := svc.RevokePackage(context.Background(), testTenant, &models.PackageRevokeRequest{
		PackageID: "pkg-1",
		Actor:     "ops@acme",
		Reason:    "host decommissioned",
	})
	require.NoError(t, err)

	assert.Equal(t, models.PackageStatusRevoked, pkg.Status)
	require.NotNil(t, pkg.RevokedAt)
	assert.Equal(t, testNow, *pkg.RevokedAt)
}

func TestRevokePackageAlreadyRevoked(t *testing.T) {
	svc, store := newTestOnboarding(t)

	revoked := issuedPackage("pkg-1")
	revoked.Status = models.PackageStatusRevoked

	store.EXPECT().GetPackage(gomock.Any(), testTenant, "pkg-1").Return(revoked, nil)

	_, err := svc.RevokePackage(context.Background(), testTenant, &models.PackageRevokeRequest{
		PackageID: "pkg-1",
		Actor:     "ops@acme",
	})
	assert.ErrorIs(t, err, models.ErrPackageRevoked)
}

func TestRevokePackageExpired(t *testing.T) {
	svc, store := newTestOnboarding(t)

	stale := issuedPackage("pkg-1")
	stale.DownloadTokenExpiresAt = testNow.Add(-time.Minute)

	store.EXPECT().GetPackage(gomock.Any(), testTenant, "pkg-1").Return(stale, nil)

	_, err := svc.RevokePackage(context.Background(), testTenant, &models.PackageRevokeRequest{
		PackageID: "pkg-1",
		Actor:     "ops@acme",
	})
	assert.ErrorIs(t, err, models.ErrPackageExpired)
}

func TestRevokePackageLosesRaceToConcurrentRevoke(t *testing.T) {
	svc, store := newTestOnboarding(t)

	// First read still sees the package active; the guarded update then
	// misses because another revoke won in between.
	store.EXPECT().GetPackage(gomock.Any(), testTenant, "pkg-1").Return(issuedPackage("pkg-1"), nil)
	store.EXPECT().
		TransitionPackage(gomock.Any(), testTenant, gomock.Any(), gomock.Any(), gomock.Any()).
		Return(false, nil)

	won := issuedPackage("pkg-1")
	won.Status = models.PackageStatusRevoked
	store.EXPECT().GetPackage(gomock.Any(), testTenant, "pkg-1").Return(won, nil)

	_, err := svc.RevokePackage(context.Background(), testTenant, &models.PackageRevokeRequest{
		PackageID: "pkg-1",
		Actor:     "ops@acme",
	})
	assert.ErrorIs(t, err, models.ErrPackageRevoked)
}

func TestDeletePackageFromRevoked(t *testing.T) {
	svc, store := newTestOnboarding(t)

	revoked := issuedPackage("pkg-1")
	revoked.Status = models.PackageStatusRevoked

	store.EXPECT().GetPackage(gomock.Any(), testTenant, "pkg-1").Return(revoked, nil)
	store.EXPECT().
		TransitionPackage(gomock.Any(), testTenant, gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, pkg *models.Package, _ []models.PackageStatus, event *models.PackageEvent) (bool, error) {
			assert.Equal(t, models.PackageStatusDeleted, pkg.Status)
			assert.Equal(t, "ops@acme", pkg.DeletedBy)
			assert.Equal(t, models.PackageEventDeleted, event.EventType)
			return true, nil
		})

	err := svc.DeletePackage(context.Background(), testTenant, "pkg-1", "ops@acme", "cleanup", "")
	require.NoError(t, err)
}

func TestDeletePackageSecondDeleteNotFound(t *testing.T) {
	svc, store := newTestOnboarding(t)

	gone := issuedPackage("pkg-1")
	gone.Status = models.PackageStatusDeleted

	store.EXPECT().GetPackage(gomock.Any(), testTenant, "pkg-1").Return(gone, nil)

	err := svc.DeletePackage(context.Background(), testTenant, "pkg-1", "ops@acme", "cleanup", "")
	assert.ErrorIs(t, err, db.ErrPackageNotFound)
}

func deliverablePackage(t *testing.T, svc *OnboardingService, secret string) *models.Package {
	t.Helper()

	pkg := issuedPackage("pkg-1")
	pkg.DownloadTokenHash = tokens.Digest(secret)

	ciphertext, err := svc.vault.Encrypt([]byte(`{"package_id":"pkg-1"}`))
	require.NoError(t, err)
	pkg.PayloadCiphertext = ciphertext

	return pkg
}

func TestDeliverPackageFirstRedemption(t *testing.T) {
	svc, store := newTestOnboarding(t)

	const secret = "download-secret"
	pkg := deliverablePackage(t, svc, secret)

	store.EXPECT().GetPackage(gomock.Any(), testTenant, "pkg-1").Return(pkg, nil)
	store.EXPECT().
		TransitionPackage(gomock.Any(), testTenant, gomock.Any(), []models.PackageStatus{models.PackageStatusIssued}, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, updated *models.Package, _ []models.PackageStatus, event *models.PackageEvent) (bool, error) {
			assert.Equal(t, models.PackageStatusDelivered, updated.Status)
			assert.Equal(t, models.PackageEventDelivered, event.EventType)
			assert.Equal(t, "10.0.0.9", event.SourceIP)
			return true, nil
		})

	result, err := svc.DeliverPackage(context.Background(), testTenant, &models.PackageDeliverRequest{
		PackageID:     "pkg-1",
		DownloadToken: secret,
		Actor:         "installer",
		SourceIP:      "10.0.0.9",
	})
	require.NoError(t, err)

	assert.Equal(t, models.PackageStatusDelivered, result.Package.Status)
	assert.JSONEq(t, `{"package_id":"pkg-1"}`, string(result.Payload))
}

func TestDeliverPackageRedeliversWhileTokenValid(t *testing.T) {
	svc, store := newTestOnboarding(t)

	const secret = "download-secret"
	pkg := deliverablePackage(t, svc, secret)
	pkg.Status = models.PackageStatusDelivered

	// Already delivered: no further transition, payload served again.
	store.EXPECT().GetPackage(gomock.Any(), testTenant, "pkg-1").Return(pkg, nil)

	result, err := svc.DeliverPackage(context.Background(), testTenant, &models.PackageDeliverRequest{
		PackageID:     "pkg-1",
		DownloadToken: secret,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"package_id":"pkg-1"}`, string(result.Payload))
}

func TestDeliverPackageTokenErrors(t *testing.T) {
	svc, store := newTestOnboarding(t)

	const secret = "download-secret"

	t.Run("missing token", func(t *testing.T) {
		_, err := svc.DeliverPackage(context.Background(), testTenant, &models.PackageDeliverRequest{PackageID: "pkg-1"})
		assert.ErrorIs(t, err, models.ErrDownloadTokenRequired)
	})

	t.Run("wrong token", func(t *testing.T) {
		store.EXPECT().GetPackage(gomock.Any(), testTenant, "pkg-1").Return(deliverablePackage(t, svc, secret), nil)

		_, err := svc.DeliverPackage(context.Background(), testTenant, &models.PackageDeliverRequest{
			PackageID:     "pkg-1",
			DownloadToken: "guess",
		})
		assert.ErrorIs(t, err, models.ErrDownloadTokenInvalid)
	})

	t.Run("expired token", func(t *testing.T) {
		stale := deliverablePackage(t, svc, secret)
		stale.DownloadTokenExpiresAt = testNow.Add(-time.Minute)
		store.EXPECT().GetPackage(gomock.Any(), testTenant, "pkg-1").Return(stale, nil)

		_, err := svc.DeliverPackage(context.Background(), testTenant, &models.PackageDeliverRequest{
			PackageID:     "pkg-1",
			DownloadToken: secret,
		})
		assert.ErrorIs(t, err, models.ErrDownloadTokenExpired)
	})

	t.Run("revoked package", func(t *testing.T) {
		revoked := deliverablePackage(t, svc, secret)
		revoked.Status = models.PackageStatusRevoked
		store.EXPECT().GetPackage(gomock.Any(), testTenant, "pkg-1").Return(revoked, nil)

		_, err := svc.DeliverPackage(context.Background(), testTenant, &models.PackageDeliverRequest{
			PackageID:     "pkg-1",
			DownloadToken: secret,
		})
		assert.ErrorIs(t, err, models.ErrPackageRevoked)
	})
}

func TestDeliverPackageLosesRaceToRevoke(t *testing.T) {
	svc, store := newTestOnboarding(t)

	const secret = "download-secret"

	store.EXPECT().GetPackage(gomock.Any(), testTenant, "pkg-1").Return(deliverablePackage(t, svc, secret), nil)
	store.EXPECT().
		TransitionPackage(gomock.Any(), testTenant, gomock.Any(), gomock.Any(), gomock.Any()).
		Return(false, nil)

	won := issuedPackage("pkg-1")
	won.Status = models.PackageStatusRevoked
	store.EXPECT().GetPackage(gomock.Any(), testTenant, "pkg-1").Return(won, nil)

	_, err := svc.DeliverPackage(context.Background(), testTenant, &models.PackageDeliverRequest{
		PackageID:     "pkg-1",
		DownloadToken: secret,
	})
	assert.ErrorIs(t, err, models.ErrPackageRevoked)
}

func TestActivatePackage(t *testing.T) {
	svc, store := newTestOnboarding(t)

	delivered := issuedPackage("pkg-1")
	delivered.Status = models.PackageStatusDelivered

	store.EXPECT().GetPackage(gomock.Any(), testTenant, "pkg-1").Return(delivered, nil)
	store.EXPECT().
		TransitionPackage(gomock.Any(), testTenant, gomock.Any(), []models.PackageStatus{models.PackageStatusDelivered}, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, pkg *models.Package, _ []models.PackageStatus, event *models.PackageEvent) (bool, error) {
			assert.Equal(t, models.PackageStatusActivated, pkg.Status)
			assert.Equal(t, models.PackageEventActivated, event.EventType)
			return true, nil
		})

	pkg, err := svc.ActivatePackage(context.Background(), testTenant, "pkg-1", "system", "")
	require.NoError(t, err)
	assert.Equal(t, models.PackageStatusActivated, pkg.Status)
}

func TestActivatePackageBeforeDelivery(t *testing.T) {
	svc, store := newTestOnboarding(t)

	store.EXPECT().GetPackage(gomock.Any(), testTenant, "pkg-1").Return(issuedPackage("pkg-1"), nil)

	_, err := svc.ActivatePackage(context.Background(), testTenant, "pkg-1", "system", "")
	assert.ErrorIs(t, err, models.ErrOnboardingInvalidRequest)
}
