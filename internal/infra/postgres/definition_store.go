package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"drill-service/internal/domain"
)

// DefinitionStore keeps drill definitions as JSONB documents in Postgres.
type DefinitionStore struct {
	pool *pgxpool.Pool
}

func NewDefinitionStore(pool *pgxpool.Pool) *DefinitionStore {
	return &DefinitionStore{pool: pool}
}

func (s *DefinitionStore) LoadDrill(ctx context.Context, drillID string) (domain.DrillDefinition, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM drills WHERE id=$1`, drillID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DrillDefinition{}, domain.ErrDrillNotFound
	}
	if err != nil {
		return domain.DrillDefinition{}, fmt.Errorf("load drill: %w", err)
	}
	var def domain.DrillDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return domain.DrillDefinition{}, fmt.Errorf("unmarshal drill: %w", err)
	}
	return def, nil
}

func (s *DefinitionStore) ListDrills(ctx context.Context) ([]domain.DrillDefinition, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM drills ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list drills: %w", err)
	}
	defer rows.Close()

	out := make([]domain.DrillDefinition, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan drill: %w", err)
		}
		var def domain.DrillDefinition
		if err := json.Unmarshal(raw, &def); err != nil {
			return nil, fmt.Errorf("unmarshal drill: %w", err)
		}
		out = append(out, def)
	}
	return out, rows.Err()
}

func (s *DefinitionStore) SaveDrill(ctx context.Context, def domain.DrillDefinition) error {
	payload, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal drill: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO drills (id, type, archived, version, data, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET type = EXCLUDED.type,
		    archived = EXCLUDED.archived,
		    version = EXCLUDED.version,
		    data = EXCLUDED.data,
		    updated_at = EXCLUDED.updated_at`,
		def.ID, string(def.Type), def.Archived, def.Version, payload, def.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save drill: %w", err)
	}
	return nil
}
