package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/carverauto/edgefleet/pkg/models"
)

const packageColumns = `
	package_id,
	tenant_id,
	label,
	component_type,
	parent_type,
	parent_id,
	poller_id,
	security_mode,
	status,
	checker_kind,
	checker_config_json,
	payload_ciphertext,
	download_token_hash,
	download_token_expires_at,
	created_by,
	created_at,
	updated_at,
	delivered_at,
	activated_at,
	revoked_at,
	deleted_at,
	deleted_by,
	deleted_reason,
	notes`

const insertPackageSQL = `
INSERT INTO edge_packages (
	package_id,
	tenant_id,
	label,
	component_type,
	parent_type,
	parent_id,
	poller_id,
	security_mode,
	status,
	checker_kind,
	checker_config_json,
	payload_ciphertext,
	download_token_hash,
	download_token_expires_at,
	created_by,
	created_at,
	updated_at,
	notes
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18
)`

const transitionPackageSQL = `
UPDATE edge_packages SET
	status = $1,
	download_token_hash = $2,
	download_token_expires_at = $3,
	delivered_at = $4,
	activated_at = $5,
	revoked_at = $6,
	deleted_at = $7,
	deleted_by = $8,
	deleted_reason = $9,
	updated_at = $10
WHERE tenant_id = $11
  AND package_id = $12
  AND status = ANY($13)`

const getPackageSQL = `SELECT ` + packageColumns + `
	FROM edge_packages
	WHERE tenant_id = $1 AND package_id = $2
	LIMIT 1`

const insertEventSQL = `
INSERT INTO edge_package_events (
	event_time,
	package_id,
	tenant_id,
	event_type,
	actor,
	source_ip,
	details_json
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
)`

// CreatePackage persists a freshly issued package together with its
// created event in one transaction.
func (db *DB) CreatePackage(ctx context.Context, tenantID string, pkg *models.Package, event *models.PackageEvent) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if pkg == nil {
		return ErrPackageNil
	}
	if event == nil {
		return ErrEventNil
	}

	packageID, err := parsePackageID(pkg.PackageID)
	if err != nil {
		return err
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToBegin, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, insertPackageSQL,
		packageID,
		tenantID,
		pkg.Label,
		string(pkg.ComponentType),
		string(pkg.ParentType),
		pkg.ParentID,
		pkg.PollerID,
		pkg.SecurityMode,
		string(pkg.Status),
		pkg.CheckerKind,
		defaultJSON(pkg.CheckerConfigJSON),
		pkg.PayloadCiphertext,
		pkg.DownloadTokenHash,
		pkg.DownloadTokenExpiresAt.UTC(),
		pkg.CreatedBy,
		pkg.CreatedAt.UTC(),
		pkg.UpdatedAt.UTC(),
		pkg.Notes,
	); err != nil {
		return fmt.Errorf("%w onboarding package: %w", ErrFailedToExec, err)
	}

	if err := insertEventTx(ctx, tx, tenantID, packageID, event); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// GetPackage fetches one package within the tenant scope. Tenant mismatch
// and genuine absence are indistinguishable.
func (db *DB) GetPackage(ctx context.Context, tenantID, packageID string) (*models.Package, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	parsedID, err := parsePackageID(packageID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, packageID)
	}

	rows, err := db.pool.Query(ctx, getPackageSQL, tenantID, parsedID)
	if err != nil {
		return nil, fmt.Errorf("%w onboarding package: %w", ErrFailedToQuery, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, packageID)
	}

	return scanPackage(rows)
}

// ListPackages returns the tenant's packages filtered by optional criteria,
// newest first.
func (db *DB) ListPackages(ctx context.Context, tenantID string, filter *models.PackageListFilter) ([]*models.Package, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + packageColumns + `
		FROM edge_packages`

	args := []interface{}{tenantID}

	param := func(value interface{}) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := append([]string{"tenant_id = $1"}, packageFilterConditions(filter, param)...)

	query += "\nWHERE " + strings.Join(conditions, " AND ")
	query += "\nORDER BY created_at DESC"

	limit := 100
	if filter != nil && filter.Limit > 0 {
		limit = filter.Limit
	}

	query += fmt.Sprintf("\nLIMIT %s", param(limit))

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w onboarding packages: %w", ErrFailedToQuery, err)
	}
	defer rows.Close()

	var packages []*models.Package

	for rows.Next() {
		pkg, scanErr := scanPackage(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		packages = append(packages, pkg)
	}

	return packages, rows.Err()
}

// packageFilterConditions translates a listing filter into SQL predicates
// over the stored rows. Requested statuses follow the presented lifecycle,
// so "expired" also matches issued rows whose download token elapsed before
// the filter's AsOf instant and "issued" excludes them. Filtering happens
// here, before the LIMIT, so matching rows beyond the newest page still
// surface. Without a status filter, deleted rows are excluded.
func packageFilterConditions(filter *models.PackageListFilter, param func(interface{}) string) []string {
	var conditions []string

	var statuses []models.PackageStatus
	if filter != nil {
		statuses = filter.Statuses
	}

	if len(statuses) == 0 {
		conditions = append(conditions, fmt.Sprintf("status <> %s", param(string(models.PackageStatusDeleted))))
	} else {
		asOf := time.Now()
		if filter != nil && !filter.AsOf.IsZero() {
			asOf = filter.AsOf
		}

		clauses := make([]string, 0, len(statuses))
		for _, st := range statuses {
			clauses = append(clauses, packageStatusCondition(st, asOf.UTC(), param))
		}
		conditions = append(conditions, "("+strings.Join(clauses, " OR ")+")")
	}

	if filter != nil && len(filter.Types) > 0 {
		types := make([]string, 0, len(filter.Types))
		for _, ct := range filter.Types {
			types = append(types, string(ct))
		}
		conditions = append(conditions, fmt.Sprintf("component_type = ANY(%s)", param(types)))
	}

	return conditions
}

func packageStatusCondition(status models.PackageStatus, asOf time.Time, param func(interface{}) string) string {
	switch status {
	case models.PackageStatusExpired:
		return fmt.Sprintf("(status = %s OR (status = %s AND download_token_expires_at <= %s))",
			param(string(models.PackageStatusExpired)),
			param(string(models.PackageStatusIssued)),
			param(asOf))
	case models.PackageStatusIssued:
		return fmt.Sprintf("(status = %s AND download_token_expires_at > %s)",
			param(string(models.PackageStatusIssued)),
			param(asOf))
	default:
		return fmt.Sprintf("status = %s", param(string(status)))
	}
}

// TransitionPackage applies the package's new lifecycle state guarded on
// the stored status, appending the audit event in the same transaction.
// When the guard does not match it reports false and leaves storage
// untouched, which is what serializes concurrent revokes.
func (db *DB) TransitionPackage(
	ctx context.Context,
	tenantID string,
	pkg *models.Package,
	allowedFrom []models.PackageStatus,
	event *models.PackageEvent,
) (bool, error) {
	if err := requireTenant(tenantID); err != nil {
		return false, err
	}
	if pkg == nil {
		return false, ErrPackageNil
	}

	packageID, err := parsePackageID(pkg.PackageID)
	if err != nil {
		return false, err
	}

	guard := make([]string, 0, len(allowedFrom))
	for _, st := range allowedFrom {
		guard = append(guard, string(st))
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrFailedToBegin, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, transitionPackageSQL,
		string(pkg.Status),
		pkg.DownloadTokenHash,
		pkg.DownloadTokenExpiresAt.UTC(),
		nullableTime(pkg.DeliveredAt),
		nullableTime(pkg.ActivatedAt),
		nullableTime(pkg.RevokedAt),
		nullableTime(pkg.DeletedAt),
		pkg.DeletedBy,
		pkg.DeletedReason,
		pkg.UpdatedAt.UTC(),
		tenantID,
		packageID,
		guard,
	)
	if err != nil {
		return false, fmt.Errorf("%w onboarding package transition: %w", ErrFailedToExec, err)
	}

	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if event != nil {
		if err := insertEventTx(ctx, tx, tenantID, packageID, event); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("%w onboarding package transition: %w", ErrFailedToExec, err)
	}

	return true, nil
}

// ListPackageEvents fetches audit events for a package, newest first.
func (db *DB) ListPackageEvents(ctx context.Context, tenantID, packageID string, limit int) ([]*models.PackageEvent, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 100
	}

	parsedID, err := parsePackageID(packageID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, packageID)
	}

	rows, err := db.pool.Query(ctx, `
		SELECT event_time, event_type, actor, source_ip, details_json
		FROM edge_package_events
		WHERE tenant_id = $1 AND package_id = $2
		ORDER BY event_time DESC
		LIMIT $3`,
		tenantID, parsedID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w onboarding events: %w", ErrFailedToQuery, err)
	}
	defer rows.Close()

	var events []*models.PackageEvent

	for rows.Next() {
		ev := models.PackageEvent{PackageID: packageID, TenantID: tenantID}

		var eventType string
		var details []byte

		if err := rows.Scan(&ev.EventTime, &eventType, &ev.Actor, &ev.SourceIP, &details); err != nil {
			return nil, fmt.Errorf("%w onboarding event: %w", ErrFailedToScan, err)
		}

		ev.EventType = models.PackageEventType(eventType)
		ev.DetailsJSON = string(details)
		events = append(events, &ev)
	}

	return events, rows.Err()
}

func insertEventTx(ctx context.Context, tx pgx.Tx, tenantID string, packageID uuid.UUID, event *models.PackageEvent) error {
	if event == nil {
		return ErrEventNil
	}

	if _, err := tx.Exec(ctx, insertEventSQL,
		event.EventTime.UTC(),
		packageID,
		tenantID,
		string(event.EventType),
		strings.TrimSpace(event.Actor),
		strings.TrimSpace(event.SourceIP),
		defaultJSON(event.DetailsJSON),
	); err != nil {
		return fmt.Errorf("%w onboarding event: %w", ErrFailedToExec, err)
	}

	return nil
}

func scanPackage(rows pgx.Rows) (*models.Package, error) {
	var pkg models.Package

	var (
		componentType string
		parentType    string
		status        string
		checkerConfig []byte
	)

	err := rows.Scan(
		&pkg.PackageID,
		&pkg.TenantID,
		&pkg.Label,
		&componentType,
		&parentType,
		&pkg.ParentID,
		&pkg.PollerID,
		&pkg.SecurityMode,
		&status,
		&pkg.CheckerKind,
		&checkerConfig,
		&pkg.PayloadCiphertext,
		&pkg.DownloadTokenHash,
		&pkg.DownloadTokenExpiresAt,
		&pkg.CreatedBy,
		&pkg.CreatedAt,
		&pkg.UpdatedAt,
		&pkg.DeliveredAt,
		&pkg.ActivatedAt,
		&pkg.RevokedAt,
		&pkg.DeletedAt,
		&pkg.DeletedBy,
		&pkg.DeletedReason,
		&pkg.Notes,
	)
	if err != nil {
		return nil, fmt.Errorf("%w onboarding package row: %w", ErrFailedToScan, err)
	}

	pkg.ComponentType = models.ComponentType(componentType)
	pkg.ParentType = models.ComponentType(parentType)
	pkg.Status = models.PackageStatus(status)
	if len(checkerConfig) > 0 && string(checkerConfig) != "{}" {
		pkg.CheckerConfigJSON = string(checkerConfig)
	}

	return &pkg, nil
}

func parsePackageID(raw string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("onboarding package id invalid: %w", err)
	}
	return parsed, nil
}

func requireTenant(tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return ErrTenantRequired
	}
	return nil
}

func nullableTime(ts *time.Time) interface{} {
	if ts == nil || ts.IsZero() {
		return nil
	}
	return ts.UTC()
}

func defaultJSON(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "{}"
	}
	return raw
}
