package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helpdesk-kit/helpdesk/internal/domain"
)

// RotationRepository owns the persisted rotation cursor.
type RotationRepository interface {
	// Advance moves the cursor forward by one position modulo rosterSize and
	// returns the new index. The read-modify-write happens inside a single
	// statement, so concurrent callers can never observe the same index.
	Advance(ctx context.Context, rosterSize int) (int, error)
	Get(ctx context.Context) (*domain.RotationCursor, error)
}

type rotationRepository struct {
	pool *pgxpool.Pool
}

// NewRotationRepository instantiates the repository.
func NewRotationRepository(pool *pgxpool.Pool) RotationRepository {
	return &rotationRepository{pool: pool}
}

func (r *rotationRepository) Advance(ctx context.Context, rosterSize int) (int, error) {
	// First assignment inserts index 0; every later call increments modulo the
	// current roster size. The modulo uses the size at call time, so a shrunk
	// roster can skip or repeat agents but the index stays in bounds.
	const query = `
        INSERT INTO rotation_cursor (id, last_index) VALUES (1, 0)
        ON CONFLICT (id) DO UPDATE
        SET last_index = (rotation_cursor.last_index + 1) % $1,
            updated_at = NOW()
        RETURNING last_index`

	var index int
	if err := r.pool.QueryRow(ctx, query, rosterSize).Scan(&index); err != nil {
		return 0, err
	}
	return index, nil
}

func (r *rotationRepository) Get(ctx context.Context) (*domain.RotationCursor, error) {
	const query = `SELECT last_index, updated_at FROM rotation_cursor WHERE id=1`

	var cursor domain.RotationCursor
	if err := r.pool.QueryRow(ctx, query).Scan(&cursor.LastIndex, &cursor.UpdatedAt); err != nil {
		return nil, err
	}
	return &cursor, nil
}
