package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fewshot/internal/services"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// ErrNotFound is returned when a run ID is unknown.
var ErrNotFound = errors.New("run not found")

// Run is one recorded batch-generation run.
type Run struct {
	ID           string
	Mode         string
	Status       Status
	NWay         int
	KShot        int
	KQuery       int
	MetaBatch    int
	Episodes     int
	Seed         uint64
	FromCache    bool
	Batches      int
	ErrorKind    string
	ErrorMessage string
	StartedAt    time.Time
	FinishedAt   time.Time
}

const runColumns = "id, mode, status, nway, kshot, kquery, meta_batchsz, episodes, seed, from_cache, batches, error_kind, error_message, started_at, finished_at"

// Begin records a new running run. An empty ID is filled with a UUID.
func (s *Store) Begin(ctx context.Context, run Run) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	run.StartedAt = run.StartedAt.UTC()
	run.Status = StatusRunning

	_, err := s.exec(ctx,
		`INSERT INTO runs (
            id, mode, status, nway, kshot, kquery, meta_batchsz, episodes, seed, from_cache, started_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Mode,
		string(run.Status),
		run.NWay,
		run.KShot,
		run.KQuery,
		run.MetaBatch,
		run.Episodes,
		int64(run.Seed),
		boolToInt(run.FromCache),
		run.StartedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// SetFromCache records whether the run's file list was read from the cache.
func (s *Store) SetFromCache(ctx context.Context, id string, fromCache bool) error {
	res, err := s.exec(ctx, "UPDATE runs SET from_cache = ? WHERE id = ?", boolToInt(fromCache), id)
	if err != nil {
		return fmt.Errorf("update run cache flag: %w", err)
	}
	return requireRow(res, id)
}

// Finish marks a run as ended. A nil runErr completes it; context
// cancellation cancels it; anything else fails it.
func (s *Store) Finish(ctx context.Context, id string, batches int, runErr error) error {
	status := StatusCompleted
	var kind, message sql.NullString
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled):
		status = StatusCanceled
	default:
		status = StatusFailed
		kind = sql.NullString{String: services.Kind(runErr), Valid: true}
		message = sql.NullString{String: runErr.Error(), Valid: true}
	}

	res, err := s.exec(ensureDetached(ctx),
		`UPDATE runs SET status = ?, batches = ?, error_kind = ?, error_message = ?, finished_at = ?
        WHERE id = ?`,
		string(status),
		batches,
		kind,
		message,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return requireRow(res, id)
}

// Get returns one run.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// List returns the most recent runs first. A limit <= 0 returns all runs.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY started_at DESC, id"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run         Run
		status      string
		seed        int64
		fromCache   int
		errorKind   sql.NullString
		errorMsg    sql.NullString
		startedRaw  string
		finishedRaw sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&run.Mode,
		&status,
		&run.NWay,
		&run.KShot,
		&run.KQuery,
		&run.MetaBatch,
		&run.Episodes,
		&seed,
		&fromCache,
		&run.Batches,
		&errorKind,
		&errorMsg,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run.Status = Status(status)
	run.Seed = uint64(seed)
	run.FromCache = fromCache != 0
	run.ErrorKind = errorKind.String
	run.ErrorMessage = errorMsg.String
	run.StartedAt = parseTime(startedRaw)
	if finishedRaw.Valid {
		run.FinishedAt = parseTime(finishedRaw.String)
	}
	return &run, nil
}

// Duration returns how long the run took, or zero while running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// ensureDetached lets a canceled run still record its final state.
func ensureDetached(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(ctx)
}
