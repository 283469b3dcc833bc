package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"gift_sniper/internal/model"
)

// TenantSettings returns the tenant's engine settings, falling back to the
// defaults when the tenant has never saved any.
func (s *Store) TenantSettings(ctx context.Context, tenantID string) (model.Settings, error) {
	var valueJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT value_json FROM tenant_settings WHERE tenant_id = ?
	`, tenantID).Scan(&valueJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultSettings(), nil
	}
	if err != nil {
		return model.Settings{}, err
	}

	settings := model.DefaultSettings()
	if err := json.Unmarshal([]byte(valueJSON), &settings); err != nil {
		return model.Settings{}, err
	}
	return settings, nil
}

func (s *Store) SaveTenantSettings(ctx context.Context, tenantID string, settings model.Settings) error {
	b, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tenant_settings (tenant_id, value_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET
			value_json = excluded.value_json,
			updated_at = excluded.updated_at
	`, tenantID, string(b), time.Now().UnixMilli())
	return err
}

// TenantChatID and TenantEmail serve the notifiers' settings lookups.

func (s *Store) TenantChatID(ctx context.Context, tenantID string) (int64, error) {
	settings, err := s.TenantSettings(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	return settings.TelegramChatID, nil
}

func (s *Store) TenantEmail(ctx context.Context, tenantID string) (string, error) {
	settings, err := s.TenantSettings(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return settings.NotifyEmail, nil
}
