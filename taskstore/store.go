package taskstore

import (
	"context"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/pkg/errors"

	"github.com/naresh-chaudhary/tw-tasks-executor/pgrepo"
	"github.com/naresh-chaudhary/tw-tasks-executor/triggering"
)

// Store adapts a pgrepo.DB into triggering.TaskStore and the broader query
// surface the resurrection scanner needs, both against the same task table.
type Store struct {
	db    *pgrepo.DB
	table string
}

// New builds a Store reading/writing cfg.Table through db. db must already
// be started.
func New(db *pgrepo.DB, cfg Config) *Store {
	table := cfg.Table
	if table == "" {
		table = "tw_task"
	}
	return &Store{db: db, table: table}
}

// SetStatus updates a task's status, bumping its version, as long as the
// caller's version still matches the stored one. A mismatch (the task moved
// on since the caller read it) is not an error: no row is updated and
// SetStatus returns nil, the same result as a successful update.
func (s *Store) SetStatus(ctx context.Context, id, version int64, status triggering.TaskStatus) error {
	query := fmt.Sprintf(
		`UPDATE %s SET status = $1, version = version + 1, updated_at = now() WHERE id = $2 AND version = $3`,
		s.table,
	)
	_, err := pgrepo.Exec(ctx, s.db.Master(), query, status, id, version)
	if err != nil {
		return errors.Wrap(err, "set task status")
	}
	return nil
}

// staleTaskRow mirrors the columns FindStalePending reads; scany matches
// these to query columns by name.
type staleTaskRow struct {
	ID       int64               `db:"id"`
	Version  int64               `db:"version"`
	Type     string              `db:"type"`
	Priority int                 `db:"priority"`
	Status   triggering.TaskStatus `db:"status"`
}

// FindStalePending returns up to limit tasks still PENDING after sitting
// untouched for longer than olderThan, oldest-updated first within each
// priority band. Reads go against the replica pool since this is a
// best-effort background scan, not a consistency-sensitive path.
func (s *Store) FindStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]triggering.Task, error) {
	query := fmt.Sprintf(
		`SELECT id, version, type, priority, status FROM %s
		 WHERE status = $1 AND updated_at < $2
		 ORDER BY priority DESC, updated_at ASC
		 LIMIT $3`,
		s.table,
	)
	cutoff := time.Now().Add(-olderThan)

	var rows []staleTaskRow
	if err := pgxscan.Select(ctx, s.db.Replica(ctx), &rows, query, triggering.TaskStatusPending, cutoff, limit); err != nil {
		return nil, errors.Wrap(err, "find stale pending tasks")
	}

	tasks := make([]triggering.Task, 0, len(rows))
	for _, r := range rows {
		tasks = append(tasks, triggering.Task{
			ID:       r.ID,
			Version:  r.Version,
			Type:     r.Type,
			Priority: r.Priority,
			Status:   r.Status,
		})
	}
	return tasks, nil
}
