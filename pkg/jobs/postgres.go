package jobs

import (
	"context"
	stdsql "database/sql"
	"embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql, used by golang-migrate

	"github.com/auditflow/auditflow/pkg/models"
)

//go:embed migrations
var migrationsFS embed.FS

// PostgresConfig configures the postgres-backed job store.
type PostgresConfig struct {
	DSN string

	// MaxConns caps the pgx pool. Zero uses the pool default.
	MaxConns int32
}

// PostgresStore is the multi-replica job store. Queue claims use
// FOR UPDATE SKIP LOCKED so concurrent workers never double-claim.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects, applies pending migrations, and returns the
// store backed by a pgx pool.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if err := runMigrations(ctx, cfg.DSN); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping reports store reachability for health checks.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// runMigrations applies embedded migrations over a short-lived database/sql
// connection. golang-migrate's postgres driver needs *sql.DB; the pgx pool
// used for queries is opened afterwards.
func runMigrations(ctx context.Context, dsn string) error {
	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("opening migration connection: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging postgres for migrations: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("creating postgres migration driver: %w", err)
	}
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "jobs", driver)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("applying migrations: %w", err)
	}
	// Close only the source. m.Close() would also close the *sql.DB through
	// the database driver, which is fine here but masks source errors.
	if err := sourceDriver.Close(); err != nil {
		return fmt.Errorf("closing migration source: %w", err)
	}
	return nil
}

// Evidence bytes live outside the JSON wire shape, so the stored form
// re-encodes them into the base64 field and decodes on the way out.

func encodeItems(items []models.EvaluationItem) ([]byte, error) {
	cp := make([]models.EvaluationItem, len(items))
	copy(cp, items)
	for i := range cp {
		if len(cp[i].EvidenceFiles) == 0 {
			continue
		}
		files := make([]models.EvidenceFile, len(cp[i].EvidenceFiles))
		copy(files, cp[i].EvidenceFiles)
		for j := range files {
			if files[j].Content != nil {
				files[j].Base64 = base64.StdEncoding.EncodeToString(files[j].Content)
			}
		}
		cp[i].EvidenceFiles = files
	}
	return json.Marshal(cp)
}

func decodeItems(data []byte) ([]models.EvaluationItem, error) {
	var items []models.EvaluationItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decoding stored items: %w", err)
	}
	for i := range items {
		for j := range items[i].EvidenceFiles {
			f := &items[i].EvidenceFiles[j]
			if f.Base64 == "" {
				continue
			}
			content, err := base64.StdEncoding.DecodeString(f.Base64)
			if err != nil {
				return nil, fmt.Errorf("decoding stored evidence %q: %w", f.FileName, err)
			}
			f.Content = content
			f.Base64 = ""
		}
	}
	return items, nil
}

const jobColumns = `job_id, state, correlation_id, pod_id, submitted_at, started_at,
	completed_at, heartbeat_at, progress, items, results, error_kind,
	error_message, cancel_requested, retain_until`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var (
		job        models.Job
		itemsJSON  []byte
		resultJSON []byte
	)
	err := row.Scan(
		&job.JobID, &job.State, &job.CorrelationID, &job.PodID,
		&job.SubmittedAt, &job.StartedAt, &job.CompletedAt, &job.HeartbeatAt,
		&job.Progress, &itemsJSON, &resultJSON, &job.ErrorKind,
		&job.ErrorMessage, &job.CancelRequested, &job.RetainUntil,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning job row: %w", err)
	}

	if job.Items, err = decodeItems(itemsJSON); err != nil {
		return nil, err
	}
	if resultJSON != nil {
		if err := json.Unmarshal(resultJSON, &job.Results); err != nil {
			return nil, fmt.Errorf("decoding stored results: %w", err)
		}
	}
	return &job, nil
}

// Put implements Store.
func (s *PostgresStore) Put(ctx context.Context, job *models.Job) error {
	itemsJSON, err := encodeItems(job.Items)
	if err != nil {
		return fmt.Errorf("encoding items: %w", err)
	}
	var resultJSON []byte
	if job.Results != nil {
		if resultJSON, err = json.Marshal(job.Results); err != nil {
			return fmt.Errorf("encoding results: %w", err)
		}
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		job.JobID, job.State, job.CorrelationID, job.PodID,
		job.SubmittedAt, job.StartedAt, job.CompletedAt, job.HeartbeatAt,
		job.Progress, itemsJSON, resultJSON, job.ErrorKind,
		job.ErrorMessage, job.CancelRequested, job.RetainUntil,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("inserting job: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, jobID string) (*models.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE job_id = $1`, jobID)
	return scanJob(row)
}

// CompareAndSet implements Store. Items, submission metadata, the cancel
// flag, and the heartbeat stamp are immutable here; only lifecycle fields
// are written.
func (s *PostgresStore) CompareAndSet(ctx context.Context, job *models.Job, expected models.JobState) error {
	var (
		resultJSON []byte
		err        error
	)
	if job.Results != nil {
		if resultJSON, err = json.Marshal(job.Results); err != nil {
			return fmt.Errorf("encoding results: %w", err)
		}
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET
			state = $3, pod_id = $4, started_at = $5, completed_at = $6,
			progress = $7, results = $8,
			error_kind = $9, error_message = $10, retain_until = $11
		WHERE job_id = $1 AND state = $2`,
		job.JobID, expected,
		job.State, job.PodID, job.StartedAt, job.CompletedAt,
		job.Progress, resultJSON,
		job.ErrorKind, job.ErrorMessage, job.RetainUntil,
	)
	if err != nil {
		return fmt.Errorf("updating job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrConflict(ctx, job.JobID)
	}
	return nil
}

// RequestCancel implements Store.
func (s *PostgresStore) RequestCancel(ctx context.Context, jobID string) (models.JobState, error) {
	var state models.JobState
	err := s.pool.QueryRow(ctx, `
		UPDATE jobs SET cancel_requested = TRUE
		WHERE job_id = $1 AND state NOT IN ($2, $3, $4, $5)
		RETURNING state`,
		jobID, models.JobStateCompleted, models.JobStateFailed,
		models.JobStateCancelled, models.JobStateExpired,
	).Scan(&state)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("requesting cancel: %w", err)
	}

	// Terminal job or missing job; report which.
	err = s.pool.QueryRow(ctx, `SELECT state FROM jobs WHERE job_id = $1`, jobID).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading job state: %w", err)
	}
	return state, ErrConflict
}

// Enqueue implements Store.
func (s *PostgresStore) Enqueue(ctx context.Context, jobID string) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO job_queue (job_id) VALUES ($1)`, jobID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrNotFound
		}
		return fmt.Errorf("enqueuing job: %w", err)
	}
	return nil
}

// Dequeue implements Store. The SKIP LOCKED claim removes the queue entry
// and transitions the job to processing in one transaction; stale entries
// whose jobs left the queued state are consumed and skipped.
func (s *PostgresStore) Dequeue(ctx context.Context, podID string) (*models.Job, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting dequeue transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for {
		var jobID string
		err := tx.QueryRow(ctx, `
			DELETE FROM job_queue
			WHERE position = (
				SELECT position FROM job_queue
				ORDER BY position
				FOR UPDATE SKIP LOCKED
				LIMIT 1
			)
			RETURNING job_id`).Scan(&jobID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQueueEmpty
		}
		if err != nil {
			return nil, fmt.Errorf("claiming queue entry: %w", err)
		}

		now := time.Now()
		row := tx.QueryRow(ctx, `
			UPDATE jobs SET state = $3, pod_id = $4, started_at = $5, heartbeat_at = $5
			WHERE job_id = $1 AND state = $2
			RETURNING `+jobColumns,
			jobID, models.JobStateQueued, models.JobStateRunning, podID, now)
		job, err := scanJob(row)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("committing dequeue: %w", err)
		}
		return job, nil
	}
}

// Delete implements Store. Queue entries go with the job via ON DELETE CASCADE.
func (s *PostgresStore) Delete(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE job_id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("deleting job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// QueueDepth implements Store.
func (s *PostgresStore) QueueDepth(ctx context.Context) (int, error) {
	var depth int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM job_queue q
		JOIN jobs j ON j.job_id = q.job_id
		WHERE j.state = $1`, models.JobStateQueued).Scan(&depth)
	if err != nil {
		return 0, fmt.Errorf("counting queued jobs: %w", err)
	}
	return depth, nil
}

// Heartbeat implements Store.
func (s *PostgresStore) Heartbeat(ctx context.Context, jobID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET heartbeat_at = $3
		WHERE job_id = $1 AND state = $2`,
		jobID, models.JobStateRunning, at)
	if err != nil {
		return fmt.Errorf("recording heartbeat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrConflict(ctx, jobID)
	}
	return nil
}

// ListExpired implements Store.
func (s *PostgresStore) ListExpired(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT job_id FROM jobs
		WHERE retain_until IS NOT NULL AND retain_until <= $1
		  AND state IN ($2, $3, $4, $5)`,
		now, models.JobStateCompleted, models.JobStateFailed,
		models.JobStateCancelled, models.JobStateExpired)
	if err != nil {
		return nil, fmt.Errorf("listing expired jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning expired job ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListOrphaned implements Store.
func (s *PostgresStore) ListOrphaned(ctx context.Context, cutoff time.Time) ([]*models.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE state = $1 AND COALESCE(heartbeat_at, started_at) < $2`,
		models.JobStateRunning, cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing orphaned jobs: %w", err)
	}
	defer rows.Close()

	var orphans []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		orphans = append(orphans, job)
	}
	return orphans, rows.Err()
}

// missOrConflict distinguishes a zero-row update: missing job or state
// mismatch.
func (s *PostgresStore) missOrConflict(ctx context.Context, jobID string) error {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM jobs WHERE job_id = $1)`, jobID).Scan(&exists); err != nil {
		return fmt.Errorf("checking job existence: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}
