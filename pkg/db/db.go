// Package db implements tenant-scoped Postgres storage for onboarding
// packages, edge sites and leaf servers. Every operation takes the tenant
// ID as an explicit parameter; there is no unscoped read or write path.
package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carverauto/edgefleet/pkg/logger"
	"github.com/carverauto/edgefleet/pkg/models"
)

//go:generate mockgen -destination=mock_service.go -package=db github.com/carverauto/edgefleet/pkg/db Service

// Service represents all storage operations consumed by pkg/core.
type Service interface {
	Close()

	// Onboarding packages. Writes that represent a state transition carry
	// their audit event and apply both atomically.

	CreatePackage(ctx context.Context, tenantID string, pkg *models.Package, event *models.PackageEvent) error
	GetPackage(ctx context.Context, tenantID, packageID string) (*models.Package, error)
	ListPackages(ctx context.Context, tenantID string, filter *models.PackageListFilter) ([]*models.Package, error)
	// TransitionPackage applies pkg's new state only if the stored status is
	// one of allowedFrom, appending the event in the same transaction.
	// Returns false without error when the guard did not match, so callers
	// can re-read and classify the conflict.
	TransitionPackage(ctx context.Context, tenantID string, pkg *models.Package, allowedFrom []models.PackageStatus, event *models.PackageEvent) (bool, error)
	ListPackageEvents(ctx context.Context, tenantID, packageID string, limit int) ([]*models.PackageEvent, error)

	// Edge sites and leaf servers.

	CreateSite(ctx context.Context, tenantID string, site *models.EdgeSite, leaf *models.NatsLeafServer) error
	GetSite(ctx context.Context, tenantID, siteID string) (*models.EdgeSite, error)
	GetSiteBySlug(ctx context.Context, tenantID, slug string) (*models.EdgeSite, error)
	ListSites(ctx context.Context, tenantID string, limit int) ([]*models.EdgeSite, error)
	UpdateSite(ctx context.Context, tenantID string, site *models.EdgeSite) error
	DeleteSite(ctx context.Context, tenantID, siteID string) error
	GetLeafServer(ctx context.Context, tenantID, siteID string) (*models.NatsLeafServer, error)
	UpdateLeafServer(ctx context.Context, tenantID string, leaf *models.NatsLeafServer) error
	UpdateLeafStatus(ctx context.Context, tenantID string, site *models.EdgeSite, leaf *models.NatsLeafServer) error
}

// DB is the pgx-backed implementation of Service.
type DB struct {
	pool   *pgxpool.Pool
	logger logger.Logger
}

// New wraps an established pool.
func New(pool *pgxpool.Pool, log logger.Logger) *DB {
	return &DB{pool: pool, logger: log}
}

// Close releases the underlying pool.
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}
