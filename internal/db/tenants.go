package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/atiendo/backend/internal/models"
)

const tenantColumns = `id, slug, name, settings, created_at, updated_at`

func scanTenant(row pgx.Row) (models.Tenant, error) {
	var t models.Tenant
	err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.Settings, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (s *Store) GetTenant(ctx context.Context, id string) (models.Tenant, error) {
	t, err := scanTenant(s.Pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
	return t, notFound("tenant", err)
}

func (s *Store) EarliestTenant(ctx context.Context) (models.Tenant, error) {
	t, err := scanTenant(s.Pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY created_at ASC, id ASC LIMIT 1`))
	return t, notFound("tenant", err)
}

// CreateTenant inserts t unless its slug is taken, returning the stored row either way.
func (s *Store) CreateTenant(ctx context.Context, t models.Tenant) (models.Tenant, error) {
	created, err := scanTenant(s.Pool.QueryRow(ctx, `
		INSERT INTO tenants (id, slug, name, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (slug) DO NOTHING
		RETURNING `+tenantColumns, t.ID, t.Slug, t.Name, t.Settings))
	if errors.Is(err, pgx.ErrNoRows) {
		existing, err := scanTenant(s.Pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE slug = $1`, t.Slug))
		return existing, notFound("tenant", err)
	}
	return created, err
}

func (s *Store) UpdateTenantSettings(ctx context.Context, id string, settings models.TenantSettings) (models.Tenant, error) {
	t, err := scanTenant(s.Pool.QueryRow(ctx, `
		UPDATE tenants SET settings = $1, updated_at = NOW() WHERE id = $2
		RETURNING `+tenantColumns, settings, id))
	return t, notFound("tenant", err)
}

const channelAccountColumns = `id, tenant_id, channel, account_key, active, created_at`

func scanChannelAccount(row pgx.Row) (models.ChannelAccount, error) {
	var a models.ChannelAccount
	err := row.Scan(&a.ID, &a.TenantID, &a.Channel, &a.AccountKey, &a.Active, &a.CreatedAt)
	return a, err
}

func (s *Store) FindActiveChannelAccount(ctx context.Context, accountKey string) (models.ChannelAccount, error) {
	a, err := scanChannelAccount(s.Pool.QueryRow(ctx, `
		SELECT `+channelAccountColumns+` FROM channel_accounts
		WHERE account_key = $1 AND active
		ORDER BY created_at ASC LIMIT 1`, accountKey))
	return a, notFound("channel account", err)
}

func (s *Store) CreateChannelAccount(ctx context.Context, a models.ChannelAccount) (models.ChannelAccount, error) {
	created, err := scanChannelAccount(s.Pool.QueryRow(ctx, `
		INSERT INTO channel_accounts (id, tenant_id, channel, account_key, active, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (tenant_id, account_key) DO NOTHING
		RETURNING `+channelAccountColumns, a.ID, a.TenantID, a.Channel, a.AccountKey, a.Active))
	if errors.Is(err, pgx.ErrNoRows) {
		existing, err := scanChannelAccount(s.Pool.QueryRow(ctx, `
			SELECT `+channelAccountColumns+` FROM channel_accounts
			WHERE tenant_id = $1 AND account_key = $2`, a.TenantID, a.AccountKey))
		return existing, notFound("channel account", err)
	}
	return created, err
}
