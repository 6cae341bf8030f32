package pubcover

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RecordRun appends the outcome of every item of r to the run history.
func (s *Store) RecordRun(ctx context.Context, r Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO runs (run_id, id, title, status, hash, size, error, recorded_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	at := r.Finished
	if at.IsZero() {
		at = time.Now()
	}
	recorded := at.UTC().Format(dbTimeLayout)
	for _, item := range r.Items {
		var msg string
		if item.Err != nil {
			msg = item.Err.Error()
		}
		if _, err := stmt.ExecContext(ctx, r.RunID, item.ID, item.Title.Text, item.Status.String(), item.Hash, item.Size, msg, recorded); err != nil {
			return fmt.Errorf("record %s: %w", item.ID, err)
		}
	}
	return tx.Commit()
}

// ListRuns returns the most recent history entries, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, id, title, status, hash, size, error, recorded_at FROM runs ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []RunEntry
	for rows.Next() {
		var e RunEntry
		var recorded string
		if err := rows.Scan(&e.RunID, &e.ID, &e.Title, &e.Status, &e.Hash, &e.Size, &e.Error, &recorded); err != nil {
			return nil, err
		}
		if e.Recorded, err = time.Parse(dbTimeLayout, recorded); err != nil {
			return nil, fmt.Errorf("parse recorded_at: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PruneRuns deletes history entries recorded before cutoff.
func (s *Store) PruneRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE recorded_at < ?`, cutoff.UTC().Format(dbTimeLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// StartCleanupScheduler prunes history older than retention every interval.
// Returns a stop function.
func (s *Store) StartCleanupScheduler(retention, interval time.Duration, logger *slog.Logger) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				n, err := s.PruneRuns(context.Background(), time.Now().Add(-retention))
				if err != nil {
					logger.Warn("run history cleanup failed", "error", err)
					continue
				}
				if n > 0 {
					logger.Debug("pruned run history", "entries", n)
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() { close(done) }
}
