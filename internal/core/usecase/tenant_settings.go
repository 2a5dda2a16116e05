package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/company-rag/internal/core/domain"
	"github.com/kirillkom/company-rag/internal/core/ports"
)

const maxCustomPrompt = 4000

type TenantSettingsUseCase struct {
	store ports.TenantSettingsStore
	now   func() time.Time
}

func NewTenantSettingsUseCase(store ports.TenantSettingsStore) *TenantSettingsUseCase {
	return &TenantSettingsUseCase{store: store, now: time.Now}
}

func (uc *TenantSettingsUseCase) Get(ctx context.Context, tenantID string) (domain.TenantSettings, error) {
	settings, err := uc.store.GetTenantSettings(ctx, tenantID)
	if err != nil {
		return domain.TenantSettings{}, fmt.Errorf("get tenant settings: %w", err)
	}
	settings.TenantID = tenantID
	return settings, nil
}

// Update replaces the tenant's settings. An empty prompt restores the built-in
// answering instructions.
func (uc *TenantSettingsUseCase) Update(ctx context.Context, settings domain.TenantSettings) (domain.TenantSettings, error) {
	settings.CustomPrompt = strings.TrimSpace(settings.CustomPrompt)
	if utf8.RuneCountInString(settings.CustomPrompt) > maxCustomPrompt {
		return domain.TenantSettings{}, domain.WrapError(domain.ErrInvalidInput, "update tenant settings",
			fmt.Errorf("custom_prompt exceeds %d characters", maxCustomPrompt))
	}
	settings.UpdatedAt = uc.now().UTC()
	if err := uc.store.SaveTenantSettings(ctx, settings); err != nil {
		return domain.TenantSettings{}, fmt.Errorf("save tenant settings: %w", err)
	}
	return settings, nil
}
