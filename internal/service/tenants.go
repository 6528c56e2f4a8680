package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/atiendo/backend/internal/apperr"
	"github.com/atiendo/backend/internal/models"
)

const defaultTenantSlug = "default"

type TenantQuery struct {
	AccountKey string
	TenantID   string
}

type Resolution struct {
	TenantID string
	// Via is how the tenant was found: "explicit", "account", "earliest" or "provisioned".
	Via string
	// AccountMissing is set when AccountKey matched no active channel account.
	AccountMissing bool
}

type TenantResolver struct {
	Repo   Repository
	Logger zerolog.Logger
}

// Resolve looks the tenant up without writing anything.
func (r *TenantResolver) Resolve(ctx context.Context, q TenantQuery) (Resolution, bool, error) {
	if q.TenantID != "" {
		t, err := r.Repo.GetTenant(ctx, q.TenantID)
		if err == nil {
			return Resolution{TenantID: t.ID, Via: "explicit"}, true, nil
		}
		if !apperr.IsNotFound(err) {
			return Resolution{}, false, err
		}
	}

	var res Resolution
	if q.AccountKey != "" {
		acc, err := r.Repo.FindActiveChannelAccount(ctx, q.AccountKey)
		if err == nil {
			return Resolution{TenantID: acc.TenantID, Via: "account"}, true, nil
		}
		if !apperr.IsNotFound(err) {
			return Resolution{}, false, err
		}
		res.AccountMissing = true
	}

	t, err := r.Repo.EarliestTenant(ctx)
	if apperr.IsNotFound(err) {
		return res, false, nil
	}
	if err != nil {
		return Resolution{}, false, err
	}
	res.TenantID = t.ID
	res.Via = "earliest"
	return res, true, nil
}

// Provision creates whatever res lacks: the default tenant when there is no
// tenant at all, and a channel account for an unseen account key. A failed
// channel account insert is logged and does not fail provisioning.
func (r *TenantResolver) Provision(ctx context.Context, q TenantQuery, res Resolution) (Resolution, error) {
	if res.TenantID == "" {
		t, err := r.Repo.CreateTenant(ctx, models.Tenant{
			ID:       uuid.NewString(),
			Slug:     defaultTenantSlug,
			Name:     "Default",
			Settings: models.DefaultTenantSettings(),
		})
		if err != nil {
			return Resolution{}, fmt.Errorf("create default tenant: %w", err)
		}
		r.Logger.Info().Str("tenant_id", t.ID).Msg("provisioned default tenant")
		res.TenantID = t.ID
		res.Via = "provisioned"
	}

	if res.AccountMissing && q.AccountKey != "" {
		acc, err := r.Repo.CreateChannelAccount(ctx, models.ChannelAccount{
			ID:         uuid.NewString(),
			TenantID:   res.TenantID,
			Channel:    models.ChannelForAccountKey(q.AccountKey),
			AccountKey: q.AccountKey,
			Active:     true,
		})
		if err != nil {
			r.Logger.Warn().Err(err).Str("account_key", q.AccountKey).Str("tenant_id", res.TenantID).Msg("channel account provisioning failed")
		} else {
			r.Logger.Info().Str("account_key", acc.AccountKey).Str("channel", string(acc.Channel)).Str("tenant_id", acc.TenantID).Msg("provisioned channel account")
			res.AccountMissing = false
		}
	}
	return res, nil
}

// ResolveOrProvision always yields a tenant id unless the store is failing.
func (r *TenantResolver) ResolveOrProvision(ctx context.Context, q TenantQuery) (string, error) {
	res, found, err := r.Resolve(ctx, q)
	if err != nil {
		return "", err
	}
	if found && !res.AccountMissing {
		return res.TenantID, nil
	}
	res, err = r.Provision(ctx, q, res)
	if err != nil {
		return "", err
	}
	return res.TenantID, nil
}
