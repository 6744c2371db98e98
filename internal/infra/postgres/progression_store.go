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

const progressionColumns = `user_id, region, points, level, badges, completed_modules,
	drills_completed, best_drill_score, recorded_attempts, created_at, updated_at, version`

// ProgressionStore persists user progressions. Update locks the row with
// SELECT ... FOR UPDATE for the whole read-modify-write.
type ProgressionStore struct {
	pool *pgxpool.Pool
}

func NewProgressionStore(pool *pgxpool.Pool) *ProgressionStore {
	return &ProgressionStore{pool: pool}
}

func (s *ProgressionStore) Create(ctx context.Context, p domain.UserProgression) (domain.UserProgression, error) {
	p.Version = 1
	modules, err := json.Marshal(p.CompletedModules)
	if err != nil {
		return domain.UserProgression{}, fmt.Errorf("marshal modules: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO user_progressions (`+progressionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.UserID, p.Region, p.Points, p.Level, badgeStrings(p.Badges), modules,
		p.DrillsCompleted, p.BestDrillScore, nonNil(p.RecordedAttempts), p.CreatedAt, p.UpdatedAt, p.Version,
	)
	if isUniqueViolation(err) {
		return domain.UserProgression{}, domain.ErrConflict
	}
	if err != nil {
		return domain.UserProgression{}, fmt.Errorf("insert progression: %w", err)
	}
	return p, nil
}

func (s *ProgressionStore) Get(ctx context.Context, userID string) (domain.UserProgression, error) {
	p, err := scanProgression(s.pool.QueryRow(ctx, `SELECT `+progressionColumns+` FROM user_progressions WHERE user_id=$1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UserProgression{}, domain.ErrUserNotFound
	}
	return p, err
}

func (s *ProgressionStore) Update(ctx context.Context, userID string, fn func(p *domain.UserProgression) error) (domain.UserProgression, error) {
	var updated domain.UserProgression
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		p, err := scanProgression(tx.QueryRow(ctx, `SELECT `+progressionColumns+` FROM user_progressions WHERE user_id=$1 FOR UPDATE`, userID))
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		if err := fn(&p); err != nil {
			return err
		}
		modules, err := json.Marshal(p.CompletedModules)
		if err != nil {
			return fmt.Errorf("marshal modules: %w", err)
		}
		p.Version++
		_, err = tx.Exec(ctx, `
			UPDATE user_progressions
			SET region=$2, points=$3, level=$4, badges=$5, completed_modules=$6,
			    drills_completed=$7, best_drill_score=$8, recorded_attempts=$9, updated_at=$10, version=$11
			WHERE user_id=$1`,
			p.UserID, p.Region, p.Points, p.Level, badgeStrings(p.Badges), modules,
			p.DrillsCompleted, p.BestDrillScore, nonNil(p.RecordedAttempts), p.UpdatedAt, p.Version,
		)
		if err != nil {
			return fmt.Errorf("update progression: %w", err)
		}
		updated = p
		return nil
	})
	if err != nil {
		return domain.UserProgression{}, err
	}
	return updated, nil
}

func (s *ProgressionStore) List(ctx context.Context) ([]domain.UserProgression, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+progressionColumns+` FROM user_progressions`)
	if err != nil {
		return nil, fmt.Errorf("list progressions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.UserProgression, 0)
	for rows.Next() {
		p, err := scanProgression(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProgression(row pgx.Row) (domain.UserProgression, error) {
	var (
		p       domain.UserProgression
		badges  []string
		modules []byte
	)
	err := row.Scan(
		&p.UserID, &p.Region, &p.Points, &p.Level, &badges, &modules,
		&p.DrillsCompleted, &p.BestDrillScore, &p.RecordedAttempts, &p.CreatedAt, &p.UpdatedAt, &p.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserProgression{}, err
		}
		return domain.UserProgression{}, fmt.Errorf("scan progression: %w", err)
	}
	p.Badges = make([]domain.BadgeCode, 0, len(badges))
	for _, b := range badges {
		p.Badges = append(p.Badges, domain.BadgeCode(b))
	}
	p.CompletedModules = []domain.CompletedModule{}
	if len(modules) > 0 {
		if err := json.Unmarshal(modules, &p.CompletedModules); err != nil {
			return domain.UserProgression{}, fmt.Errorf("unmarshal modules: %w", err)
		}
	}
	return p, nil
}

func badgeStrings(badges []domain.BadgeCode) []string {
	out := make([]string, 0, len(badges))
	for _, b := range badges {
		out = append(out, string(b))
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
