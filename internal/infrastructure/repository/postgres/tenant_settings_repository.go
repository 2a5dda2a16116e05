package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/company-rag/internal/core/domain"
)

type TenantSettingsRepository struct {
	db *sql.DB
}

func NewTenantSettingsRepository(db *sql.DB) *TenantSettingsRepository {
	return &TenantSettingsRepository{db: db}
}

func (r *TenantSettingsRepository) GetTenantSettings(ctx context.Context, tenantID string) (domain.TenantSettings, error) {
	settings := domain.TenantSettings{TenantID: tenantID}
	err := r.db.QueryRowContext(ctx, `
SELECT custom_prompt, updated_at
FROM tenant_settings
WHERE tenant_id = $1
`, tenantID).Scan(&settings.CustomPrompt, &settings.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return settings, nil
	}
	if err != nil {
		return domain.TenantSettings{}, fmt.Errorf("get tenant settings: %w", err)
	}
	return settings, nil
}

func (r *TenantSettingsRepository) SaveTenantSettings(ctx context.Context, settings domain.TenantSettings) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO tenant_settings (tenant_id, custom_prompt, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (tenant_id) DO UPDATE SET custom_prompt = EXCLUDED.custom_prompt, updated_at = EXCLUDED.updated_at
`, settings.TenantID, settings.CustomPrompt, settings.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save tenant settings: %w", err)
	}
	return nil
}
