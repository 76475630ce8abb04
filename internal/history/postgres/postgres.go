package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loykin/taskvisor/internal/history"
)

// Sink appends history events to a PostgreSQL task_history table.
type Sink struct {
	db *sql.DB
}

// New creates a new PostgreSQL history sink and ensures the schema exists.
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty PostgreSQL DSN")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	s := &Sink{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS task_history(
			id BIGSERIAL PRIMARY KEY,
			occurred_at TIMESTAMPTZ NOT NULL,
			event TEXT NOT NULL,
			task_id TEXT NOT NULL,
			task_type TEXT NOT NULL,
			priority TEXT NULL,
			schedule_id TEXT NULL,
			process_id BIGINT NULL,
			pid INTEGER NULL,
			detail TEXT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_task_history_task_id ON task_history(task_id);`,
		`CREATE INDEX IF NOT EXISTS idx_task_history_event ON task_history(event);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_history(occurred_at, event, task_id, task_type, priority, schedule_id, process_id, pid, detail)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9);`,
		e.OccurredAt.UTC(), string(e.Type), e.TaskID, e.TaskType, e.Priority, e.ScheduleID, int64(e.ProcessID), e.PID, e.Detail)
	return err
}

func (s *Sink) Close() error { return s.db.Close() }
