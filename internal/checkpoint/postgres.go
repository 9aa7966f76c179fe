package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"medical-triage-agent/internal/triage"
)

// Postgres stores one row per thread with the case state as JSONB. The
// version column backs optimistic concurrency between server replicas.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Open connects to dsn and waits for the database to answer, retrying a few
// times while the container comes up.
func Open(ctx context.Context, dsn string, attempts int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	for i := 0; i < attempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			return db, nil
		}
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	db.Close()
	return nil, fmt.Errorf("postgres not reachable after %d attempts: %w", attempts, err)
}

func (p *Postgres) Get(ctx context.Context, threadID string) (*triage.CaseState, error) {
	query := `SELECT state, version FROM triage_checkpoints WHERE thread_id = $1`

	var (
		raw     []byte
		version int64
	)
	err := p.db.QueryRowContext(ctx, query, threadID).Scan(&raw, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, triage.ErrThreadNotFound
		}
		return nil, fmt.Errorf("query checkpoint: %w", err)
	}

	var st triage.CaseState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	st.Version = version
	return &st, nil
}

func (p *Postgres) Put(ctx context.Context, st *triage.CaseState) error {
	now := time.Now()
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}

	staged := st.Clone()
	staged.Version = st.Version + 1
	staged.UpdatedAt = now
	raw, err := json.Marshal(staged)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	var res sql.Result
	if st.Version == 0 {
		query := `
			INSERT INTO triage_checkpoints (thread_id, state, version, next_node, created_at, updated_at)
			VALUES ($1, $2, 1, $3, $4, $5)
			ON CONFLICT (thread_id) DO NOTHING
		`
		res, err = p.db.ExecContext(ctx, query, st.ThreadID, raw, string(st.Next), st.CreatedAt, now)
	} else {
		query := `
			UPDATE triage_checkpoints
			SET state = $2, version = version + 1, next_node = $3, updated_at = $4
			WHERE thread_id = $1 AND version = $5
		`
		res, err = p.db.ExecContext(ctx, query, st.ThreadID, raw, string(st.Next), now, st.Version)
	}
	if err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if n == 0 {
		return triage.ErrConflict
	}

	st.Version = staged.Version
	st.UpdatedAt = now
	return nil
}

// Sweep deletes idle threads except those parked at ask_human.
func (p *Postgres) Sweep(ctx context.Context, idle time.Duration) (int, error) {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM triage_checkpoints WHERE updated_at < $1 AND next_node <> $2`,
		time.Now().Add(-idle), string(triage.NodeAskHuman))
	if err != nil {
		return 0, fmt.Errorf("sweep checkpoints: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (p *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM triage_checkpoints`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count checkpoints: %w", err)
	}
	return n, nil
}
