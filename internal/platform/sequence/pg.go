package sequence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitalsuite/claims/internal/platform/db"
)

// PG allocates sequence numbers from a counters table. The UPSERT increments
// and returns in one statement, so concurrent callers never observe the same
// value. When the context carries a transaction the allocation joins it.
type PG struct {
	pool *pgxpool.Pool
}

func NewPG(pool *pgxpool.Pool) *PG {
	return &PG{pool: pool}
}

func (p *PG) Next(ctx context.Context, scope string) (uint64, error) {
	const q = `
		INSERT INTO sequence_counters (scope, value) VALUES ($1, 1)
		ON CONFLICT (scope) DO UPDATE SET value = sequence_counters.value + 1
		RETURNING value`

	var value uint64
	var err error
	if tx := db.TxFromContext(ctx); tx != nil {
		err = tx.QueryRow(ctx, q, scope).Scan(&value)
	} else {
		err = p.pool.QueryRow(ctx, q, scope).Scan(&value)
	}
	if err != nil {
		return 0, fmt.Errorf("next sequence for %s: %w", scope, err)
	}
	return value, nil
}
