// Package settings stores tenant-scoped key-value configuration.
package settings

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Keys consumed by the auto-reply pipeline. The settings themselves are
// written by the dashboard CRUD.
const (
	KeyAIEnabled     = "ai_enabled"
	KeyAIAPIKey      = "ai_api_key"
	KeyAIInstruction = "ai_system_instruction"
	KeyClinicName    = "clinic_name"
	KeyClinicAddress = "clinic_address"
	KeyClinicPhone   = "clinic_phone"
	KeyWorkingHours  = "working_hours"
	KeyKnowledgeBase = "knowledge_base"
	KeyServices      = "services"
)

const schema = `
CREATE TABLE IF NOT EXISTS tenant_settings (
	tenant_id TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (tenant_id, key)
);
`

type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

func (s *Service) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure settings schema: %w", err)
	}
	return nil
}

// Get returns the value and whether the key is set at all. Callers that need
// legacy default behavior must distinguish absent from empty.
func (s *Service) Get(ctx context.Context, tenantID, key string) (string, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM tenant_settings WHERE tenant_id = $1 AND key = $2`,
		tenantID, key,
	).Scan(&value)
	if err == pgx.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *Service) GetAll(ctx context.Context, tenantID string) (map[string]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, value FROM tenant_settings WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		values[key] = value
	}
	return values, rows.Err()
}

func (s *Service) Set(ctx context.Context, tenantID, key, value string) error {
	if strings.TrimSpace(tenantID) == "" || strings.TrimSpace(key) == "" {
		return fmt.Errorf("tenant id and key are required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tenant_settings (tenant_id, key, value) VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, key) DO UPDATE SET value = EXCLUDED.value`,
		tenantID, key, value,
	)
	return err
}
