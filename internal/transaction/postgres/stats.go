package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/frahmantamala/estore-payments/internal/transaction"
	"github.com/jmoiron/sqlx"
)

// StatsRepository runs the reporting aggregate with plain SQL.
type StatsRepository struct {
	db *sqlx.DB
}

func NewStatsRepository(db *sqlx.DB) transaction.StatsAPI {
	return &StatsRepository{db: db}
}

const statsQuery = `
SELECT payment_method, status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total
FROM payment_transactions
%s
GROUP BY payment_method, status
ORDER BY payment_method, status`

func (r *StatsRepository) Stats(ctx context.Context, since time.Time) (*transaction.Stats, error) {
	where := ""
	var args []interface{}
	if !since.IsZero() {
		where = "WHERE created_at >= ?"
		args = append(args, since)
	}

	var rows []transaction.MethodStats
	query := r.db.Rebind(fmt.Sprintf(statsQuery, where))
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("payment stats: %w", err)
	}
	return transaction.Summarize(since, rows), nil
}
