package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SequenceRepository hands out monotonically increasing values per code
// prefix. The upsert-returning form keeps concurrent allocations from ever
// observing the same value, unlike a count-then-insert.
type SequenceRepository struct {
	db *sqlx.DB
}

// NewSequenceRepository constructs a SequenceRepository.
func NewSequenceRepository(db *sqlx.DB) *SequenceRepository {
	return &SequenceRepository{db: db}
}

// Next returns the next value for the given prefix, starting at 1.
func (r *SequenceRepository) Next(ctx context.Context, prefix string) (int, error) {
	const query = `INSERT INTO code_sequences (prefix, value) VALUES ($1, 1)
        ON CONFLICT (prefix) DO UPDATE SET value = code_sequences.value + 1
        RETURNING value`
	var value int
	if err := r.db.GetContext(ctx, &value, query, prefix); err != nil {
		return 0, fmt.Errorf("next sequence for %s: %w", prefix, err)
	}
	return value, nil
}
