package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"drill-service/internal/domain"
)

const uniqueViolation = "23505"

// AttemptStore persists attempts as JSONB with the columns needed for
// filtering and the optimistic version promoted to real columns.
type AttemptStore struct {
	pool *pgxpool.Pool
}

func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

func (s *AttemptStore) Create(ctx context.Context, a domain.DrillAttempt) error {
	a.Version = 1
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO drill_attempts (id, user_id, drill_id, attempt_number, status, score, started_at, completed_at, version, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.UserID, a.DrillID, a.AttemptNumber, string(a.Status), a.Score, a.StartedAt, a.CompletedAt, a.Version, payload,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("attempt %d for %s/%s: %w", a.AttemptNumber, a.UserID, a.DrillID, domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (s *AttemptStore) Get(ctx context.Context, attemptID string) (domain.DrillAttempt, error) {
	a, err := scanAttempt(s.pool.QueryRow(ctx, `SELECT data, version FROM drill_attempts WHERE id=$1`, attemptID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DrillAttempt{}, domain.ErrAttemptNotFound
	}
	return a, err
}

// Save writes a only if the stored version still equals a.Version.
func (s *AttemptStore) Save(ctx context.Context, a domain.DrillAttempt) (domain.DrillAttempt, error) {
	expected := a.Version
	a.Version++
	payload, err := json.Marshal(a)
	if err != nil {
		return domain.DrillAttempt{}, fmt.Errorf("marshal attempt: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE drill_attempts
		SET status=$3, score=$4, completed_at=$5, data=$6, version=version+1
		WHERE id=$1 AND version=$2`,
		a.ID, expected, string(a.Status), a.Score, a.CompletedAt, payload,
	)
	if err != nil {
		return domain.DrillAttempt{}, fmt.Errorf("update attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM drill_attempts WHERE id=$1)`, a.ID).Scan(&exists); err != nil {
			return domain.DrillAttempt{}, fmt.Errorf("check attempt: %w", err)
		}
		if !exists {
			return domain.DrillAttempt{}, domain.ErrAttemptNotFound
		}
		return domain.DrillAttempt{}, domain.ErrConflict
	}
	return a, nil
}

func (s *AttemptStore) CountByUserDrill(ctx context.Context, userID, drillID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM drill_attempts WHERE user_id=$1 AND drill_id=$2`, userID, drillID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return n, nil
}

func (s *AttemptStore) ListByDrill(ctx context.Context, drillID string) ([]domain.DrillAttempt, error) {
	return s.list(ctx, `SELECT data, version FROM drill_attempts WHERE drill_id=$1`, drillID)
}

func (s *AttemptStore) ListByUser(ctx context.Context, userID string) ([]domain.DrillAttempt, error) {
	return s.list(ctx, `SELECT data, version FROM drill_attempts WHERE user_id=$1 ORDER BY started_at DESC`, userID)
}

func (s *AttemptStore) ListInProgress(ctx context.Context, startedBefore time.Time) ([]domain.DrillAttempt, error) {
	return s.list(ctx, `SELECT data, version FROM drill_attempts WHERE status='in_progress' AND started_at < $1`, startedBefore)
}

func (s *AttemptStore) list(ctx context.Context, query string, args ...interface{}) ([]domain.DrillAttempt, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	out := make([]domain.DrillAttempt, 0)
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAttempt(row pgx.Row) (domain.DrillAttempt, error) {
	var (
		raw     []byte
		version int
	)
	if err := row.Scan(&raw, &version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DrillAttempt{}, err
		}
		return domain.DrillAttempt{}, fmt.Errorf("scan attempt: %w", err)
	}
	var a domain.DrillAttempt
	if err := json.Unmarshal(raw, &a); err != nil {
		return domain.DrillAttempt{}, fmt.Errorf("unmarshal attempt: %w", err)
	}
	a.Version = version
	return a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
