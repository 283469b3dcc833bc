package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"gift_sniper/internal/model"
)

var ErrTenantNotFound = errors.New("tenant not found")

func (s *Store) UpsertTenant(ctx context.Context, t model.Tenant) (model.Tenant, error) {
	if t.Username == "" {
		return model.Tenant{}, errors.New("username is required")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	isAdmin := 0
	if t.IsAdmin {
		isAdmin = 1
	}
	active := 0
	if t.Active {
		active = 1
	}
	expireAt := int64(0)
	if !t.ExpireAt.IsZero() {
		expireAt = t.ExpireAt.UnixMilli()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenants (id, username, password_hash, expire_at, is_admin, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			password_hash = excluded.password_hash,
			expire_at = excluded.expire_at,
			is_admin = excluded.is_admin,
			active = excluded.active,
			updated_at = excluded.updated_at
	`, t.ID, t.Username, t.PasswordHash, expireAt, isAdmin, active, t.CreatedAt.UnixMilli(), t.UpdatedAt.UnixMilli())
	if err != nil {
		return model.Tenant{}, err
	}
	return s.GetTenant(ctx, t.ID)
}

func (s *Store) GetTenant(ctx context.Context, id string) (model.Tenant, error) {
	return s.getTenantBy(ctx, "id = ?", id)
}

func (s *Store) GetTenantByUsername(ctx context.Context, username string) (model.Tenant, error) {
	return s.getTenantBy(ctx, "username = ?", username)
}

func (s *Store) getTenantBy(ctx context.Context, where string, arg any) (model.Tenant, error) {
	var row struct {
		id           string
		username     string
		passwordHash string
		expireAt     int64
		isAdmin      int
		active       int
		createdAt    int64
		updatedAt    int64
	}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, expire_at, is_admin, active, created_at, updated_at
		FROM tenants WHERE `+where, arg,
	).Scan(&row.id, &row.username, &row.passwordHash, &row.expireAt, &row.isAdmin, &row.active, &row.createdAt, &row.updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Tenant{}, ErrTenantNotFound
	}
	if err != nil {
		return model.Tenant{}, err
	}
	t := model.Tenant{
		ID:           row.id,
		Username:     row.username,
		PasswordHash: row.passwordHash,
		IsAdmin:      row.isAdmin == 1,
		Active:       row.active == 1,
		CreatedAt:    time.UnixMilli(row.createdAt),
		UpdatedAt:    time.UnixMilli(row.updatedAt),
	}
	if row.expireAt > 0 {
		t.ExpireAt = time.UnixMilli(row.expireAt)
	}
	return t, nil
}

func (s *Store) ListTenants(ctx context.Context) ([]model.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, password_hash, expire_at, is_admin, active, created_at, updated_at
		FROM tenants ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Tenant
	for rows.Next() {
		var row struct {
			id           string
			username     string
			passwordHash string
			expireAt     int64
			isAdmin      int
			active       int
			createdAt    int64
			updatedAt    int64
		}
		if err := rows.Scan(&row.id, &row.username, &row.passwordHash, &row.expireAt, &row.isAdmin, &row.active, &row.createdAt, &row.updatedAt); err != nil {
			return nil, err
		}
		t := model.Tenant{
			ID:           row.id,
			Username:     row.username,
			PasswordHash: row.passwordHash,
			IsAdmin:      row.isAdmin == 1,
			Active:       row.active == 1,
			CreatedAt:    time.UnixMilli(row.createdAt),
			UpdatedAt:    time.UnixMilli(row.updatedAt),
		}
		if row.expireAt > 0 {
			t.ExpireAt = time.UnixMilli(row.expireAt)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) DeleteTenant(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tenants WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tenant_settings WHERE tenant_id = ?`, id); err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTenantNotFound
	}
	return nil
}
