package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/carverauto/edgefleet/pkg/models"
)

const pgUniqueViolation = "23505"

// pgExecer abstracts Exec over the pool and an open transaction.
type pgExecer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

const siteColumns = `
	site_id,
	tenant_id,
	name,
	slug,
	nats_leaf_url,
	status,
	last_seen_at,
	created_at,
	updated_at`

const leafColumns = `
	site_id,
	tenant_id,
	status,
	upstream_url,
	leaf_key_ciphertext,
	server_key_ciphertext,
	cert_expires_at,
	provisioned_at,
	connected_at,
	created_at,
	updated_at`

// CreateSite persists a site and its linked leaf-server record in one
// transaction. A duplicate slug within the tenant surfaces as
// ErrSiteSlugExists.
func (db *DB) CreateSite(ctx context.Context, tenantID string, site *models.EdgeSite, leaf *models.NatsLeafServer) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if site == nil {
		return ErrSiteNil
	}
	if leaf == nil {
		return ErrLeafServerNil
	}

	siteID, err := parseSiteID(site.SiteID)
	if err != nil {
		return err
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToBegin, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO edge_sites (
			site_id, tenant_id, name, slug, nats_leaf_url, status, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		siteID,
		tenantID,
		site.Name,
		site.Slug,
		site.NatsLeafURL,
		string(site.Status),
		site.CreatedAt.UTC(),
		site.UpdatedAt.UTC(),
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: %s", ErrSiteSlugExists, site.Slug)
		}
		return fmt.Errorf("%w edge site: %w", ErrFailedToExec, err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO nats_leaf_servers (
			site_id, tenant_id, status, upstream_url, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6)`,
		siteID,
		tenantID,
		string(leaf.Status),
		leaf.UpstreamURL,
		leaf.CreatedAt.UTC(),
		leaf.UpdatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("%w leaf server: %w", ErrFailedToExec, err)
	}

	return tx.Commit(ctx)
}

// GetSite fetches one site within the tenant scope.
func (db *DB) GetSite(ctx context.Context, tenantID, siteID string) (*models.EdgeSite, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	parsedID, err := parseSiteID(siteID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSiteNotFound, siteID)
	}

	return db.querySite(ctx, `SELECT `+siteColumns+`
		FROM edge_sites
		WHERE tenant_id = $1 AND site_id = $2
		LIMIT 1`,
		tenantID, parsedID)
}

// GetSiteBySlug fetches one site by its tenant-unique slug.
func (db *DB) GetSiteBySlug(ctx context.Context, tenantID, slug string) (*models.EdgeSite, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	return db.querySite(ctx, `SELECT `+siteColumns+`
		FROM edge_sites
		WHERE tenant_id = $1 AND slug = $2
		LIMIT 1`,
		tenantID, slug)
}

func (db *DB) querySite(ctx context.Context, query string, args ...interface{}) (*models.EdgeSite, error) {
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w edge site: %w", ErrFailedToQuery, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ErrSiteNotFound
	}

	return scanSite(rows)
}

// ListSites returns the tenant's sites ordered by creation time, newest first.
func (db *DB) ListSites(ctx context.Context, tenantID string, limit int) ([]*models.EdgeSite, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 100
	}

	rows, err := db.pool.Query(ctx, `SELECT `+siteColumns+`
		FROM edge_sites
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w edge sites: %w", ErrFailedToQuery, err)
	}
	defer rows.Close()

	var sites []*models.EdgeSite

	for rows.Next() {
		site, scanErr := scanSite(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		sites = append(sites, site)
	}

	return sites, rows.Err()
}

// UpdateSite persists mutable site fields.
func (db *DB) UpdateSite(ctx context.Context, tenantID string, site *models.EdgeSite) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if site == nil {
		return ErrSiteNil
	}

	siteID, err := parseSiteID(site.SiteID)
	if err != nil {
		return err
	}

	return execUpdateSite(ctx, db.pool, tenantID, siteID, site)
}

func execUpdateSite(ctx context.Context, q pgExecer, tenantID string, siteID uuid.UUID, site *models.EdgeSite) error {
	tag, err := q.Exec(ctx, `
		UPDATE edge_sites SET
			name = $1,
			nats_leaf_url = $2,
			status = $3,
			last_seen_at = $4,
			updated_at = $5
		WHERE tenant_id = $6 AND site_id = $7`,
		site.Name,
		site.NatsLeafURL,
		string(site.Status),
		nullableTime(site.LastSeenAt),
		site.UpdatedAt.UTC(),
		tenantID,
		siteID,
	)
	if err != nil {
		return fmt.Errorf("%w edge site: %w", ErrFailedToExec, err)
	}

	if tag.RowsAffected() == 0 {
		return ErrSiteNotFound
	}

	return nil
}

// DeleteSite removes a site; the leaf-server row cascades with it.
func (db *DB) DeleteSite(ctx context.Context, tenantID, siteID string) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}

	parsedID, err := parseSiteID(siteID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrSiteNotFound, siteID)
	}

	tag, err := db.pool.Exec(ctx, `
		DELETE FROM edge_sites
		WHERE tenant_id = $1 AND site_id = $2`,
		tenantID, parsedID)
	if err != nil {
		return fmt.Errorf("%w edge site: %w", ErrFailedToExec, err)
	}

	if tag.RowsAffected() == 0 {
		return ErrSiteNotFound
	}

	return nil
}

// GetLeafServer fetches the site's leaf-server record.
func (db *DB) GetLeafServer(ctx context.Context, tenantID, siteID string) (*models.NatsLeafServer, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	parsedID, err := parseSiteID(siteID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrLeafServerNotFound, siteID)
	}

	rows, err := db.pool.Query(ctx, `SELECT `+leafColumns+`
		FROM nats_leaf_servers
		WHERE tenant_id = $1 AND site_id = $2
		LIMIT 1`,
		tenantID, parsedID)
	if err != nil {
		return nil, fmt.Errorf("%w leaf server: %w", ErrFailedToQuery, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ErrLeafServerNotFound
	}

	return scanLeafServer(rows)
}

// UpdateLeafServer persists leaf-server state and key material.
func (db *DB) UpdateLeafServer(ctx context.Context, tenantID string, leaf *models.NatsLeafServer) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if leaf == nil {
		return ErrLeafServerNil
	}

	siteID, err := parseSiteID(leaf.SiteID)
	if err != nil {
		return err
	}

	return execUpdateLeafServer(ctx, db.pool, tenantID, siteID, leaf)
}

func execUpdateLeafServer(ctx context.Context, q pgExecer, tenantID string, siteID uuid.UUID, leaf *models.NatsLeafServer) error {
	tag, err := q.Exec(ctx, `
		UPDATE nats_leaf_servers SET
			status = $1,
			upstream_url = $2,
			leaf_key_ciphertext = $3,
			server_key_ciphertext = $4,
			cert_expires_at = $5,
			provisioned_at = $6,
			connected_at = $7,
			updated_at = $8
		WHERE tenant_id = $9 AND site_id = $10`,
		string(leaf.Status),
		leaf.UpstreamURL,
		leaf.LeafKeyCiphertext,
		leaf.ServerKeyCiphertext,
		nullableTime(leaf.CertExpiresAt),
		nullableTime(leaf.ProvisionedAt),
		nullableTime(leaf.ConnectedAt),
		leaf.UpdatedAt.UTC(),
		tenantID,
		siteID,
	)
	if err != nil {
		return fmt.Errorf("%w leaf server: %w", ErrFailedToExec, err)
	}

	if tag.RowsAffected() == 0 {
		return ErrLeafServerNotFound
	}

	return nil
}

// UpdateLeafStatus persists a leaf-server state change together with its
// site mirror in one transaction, so a failure on either side leaves both
// rows untouched.
func (db *DB) UpdateLeafStatus(ctx context.Context, tenantID string, site *models.EdgeSite, leaf *models.NatsLeafServer) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if site == nil {
		return ErrSiteNil
	}
	if leaf == nil {
		return ErrLeafServerNil
	}

	siteID, err := parseSiteID(site.SiteID)
	if err != nil {
		return err
	}
	if _, err := parseSiteID(leaf.SiteID); err != nil {
		return err
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToBegin, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := execUpdateLeafServer(ctx, tx, tenantID, siteID, leaf); err != nil {
		return err
	}

	if err := execUpdateSite(ctx, tx, tenantID, siteID, site); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func scanSite(rows pgx.Rows) (*models.EdgeSite, error) {
	var site models.EdgeSite
	var status string

	err := rows.Scan(
		&site.SiteID,
		&site.TenantID,
		&site.Name,
		&site.Slug,
		&site.NatsLeafURL,
		&status,
		&site.LastSeenAt,
		&site.CreatedAt,
		&site.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("%w edge site row: %w", ErrFailedToScan, err)
	}

	site.Status = models.SiteStatus(status)

	return &site, nil
}

func scanLeafServer(rows pgx.Rows) (*models.NatsLeafServer, error) {
	var leaf models.NatsLeafServer
	var status string

	err := rows.Scan(
		&leaf.SiteID,
		&leaf.TenantID,
		&status,
		&leaf.UpstreamURL,
		&leaf.LeafKeyCiphertext,
		&leaf.ServerKeyCiphertext,
		&leaf.CertExpiresAt,
		&leaf.ProvisionedAt,
		&leaf.ConnectedAt,
		&leaf.CreatedAt,
		&leaf.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("%w leaf server row: %w", ErrFailedToScan, err)
	}

	leaf.Status = models.LeafServerStatus(status)

	return &leaf, nil
}

func parseSiteID(raw string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("edge site id invalid: %w", err)
	}
	return parsed, nil
}
