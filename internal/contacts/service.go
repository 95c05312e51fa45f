// Package contacts is the patient directory.
package contacts

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Patient struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	Phone       string `json:"phone"`
	DisplayName string `json:"display_name"`
}

const schema = `
CREATE TABLE IF NOT EXISTS patients (
	id UUID PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	phone TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	UNIQUE (tenant_id, phone)
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
		return fmt.Errorf("ensure patients schema: %w", err)
	}
	return nil
}

// FindOrCreate returns the patient for (tenant, phone), creating the record
// on first contact. A non-empty display name fills in a blank one but never
// overwrites an existing name.
func (s *Service) FindOrCreate(ctx context.Context, tenantID, phone, displayName string) (Patient, error) {
	phone = strings.TrimSpace(phone)
	if strings.TrimSpace(tenantID) == "" || phone == "" {
		return Patient{}, fmt.Errorf("tenant id and phone are required")
	}
	var patient Patient
	err := s.pool.QueryRow(ctx, `
		INSERT INTO patients (id, tenant_id, phone, display_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, phone) DO UPDATE
			SET display_name = CASE
				WHEN patients.display_name = '' THEN EXCLUDED.display_name
				ELSE patients.display_name
			END
		RETURNING id, tenant_id, phone, display_name`,
		uuid.NewString(), tenantID, phone, strings.TrimSpace(displayName),
	).Scan(&patient.ID, &patient.TenantID, &patient.Phone, &patient.DisplayName)
	if err != nil {
		return Patient{}, fmt.Errorf("upsert patient: %w", err)
	}
	return patient, nil
}
