package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/certwatch/internal/domain"
	"github.com/hamed0406/certwatch/internal/repo"
)

var _ repo.AlertHistory = (*Store)(nil)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS alert_history (
  target          TEXT PRIMARY KEY,
  last_alert_date DATE NOT NULL
);`

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Load(ctx context.Context) (repo.History, error) {
	rows, err := s.pool.Query(ctx, `SELECT target, last_alert_date FROM alert_history`)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	h := make(repo.History)
	for rows.Next() {
		var (
			target string
			day    time.Time
		)
		if err := rows.Scan(&target, &day); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		h[domain.Target(target)] = day.Format(domain.DateLayout)
	}
	return h, rows.Err()
}

// Save rewrites the table in a single transaction so readers never see a
// half-written history.
func (s *Store) Save(ctx context.Context, h repo.History) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM alert_history`); err != nil {
			return fmt.Errorf("clear history: %w", err)
		}
		batch := &pgx.Batch{}
		for target, date := range h {
			batch.Queue(`INSERT INTO alert_history (target, last_alert_date) VALUES ($1, $2::date)`,
				string(target), date)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert history: %w", err)
		}
		s.log.Debug("history_saved", zap.Int("entries", batch.Len()))
		return nil
	})
}
