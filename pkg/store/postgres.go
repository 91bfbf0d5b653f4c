package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/vango-go/vai-interview/pkg/core/live"
	"github.com/vango-go/vai-interview/pkg/core/report"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Postgres is a Store backed by a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// OpenPostgres connects to dsn, runs migrations and returns the store.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Postgres{pool: pool}, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (p *Postgres) SaveReport(ctx context.Context, r report.Report) error {
	candidate, err := json.Marshal(r.Candidate)
	if err != nil {
		return fmt.Errorf("encode candidate: %w", err)
	}
	var evaluation []byte
	if r.Evaluation != nil {
		if evaluation, err = json.Marshal(r.Evaluation); err != nil {
			return fmt.Errorf("encode evaluation: %w", err)
		}
	}

	const query = `
		INSERT INTO interview_reports
			(id, session_id, candidate, transcript, reason, status, evaluation, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			transcript = EXCLUDED.transcript,
			reason = EXCLUDED.reason,
			status = EXCLUDED.status,
			evaluation = EXCLUDED.evaluation`
	if _, err := p.pool.Exec(ctx, query,
		r.ID, r.SessionID, candidate, r.Transcript, r.Reason, string(r.Status), evaluation, r.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

const selectReport = `
	SELECT id, session_id, candidate, transcript, reason, status, evaluation, created_at
	FROM interview_reports`

func (p *Postgres) GetReport(ctx context.Context, id string) (report.Report, error) {
	row := p.pool.QueryRow(ctx, selectReport+` WHERE id = $1`, id)
	r, err := scanReport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return report.Report{}, ErrNotFound
	}
	if err != nil {
		return report.Report{}, fmt.Errorf("get report: %w", err)
	}
	return r, nil
}

func (p *Postgres) ListReports(ctx context.Context, limit int) ([]report.Report, error) {
	rows, err := p.pool.Query(ctx, selectReport+` ORDER BY created_at DESC, id DESC LIMIT $1`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []report.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return out, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func scanReport(row pgx.Row) (report.Report, error) {
	var (
		r          report.Report
		candidate  []byte
		evaluation []byte
		status     string
	)
	if err := row.Scan(&r.ID, &r.SessionID, &candidate, &r.Transcript, &r.Reason, &status, &evaluation, &r.CreatedAt); err != nil {
		return report.Report{}, err
	}
	r.Status = report.Status(status)
	r.CreatedAt = r.CreatedAt.UTC()

	var c live.Candidate
	if err := json.Unmarshal(candidate, &c); err != nil {
		return report.Report{}, fmt.Errorf("decode candidate: %w", err)
	}
	r.Candidate = c
	if len(evaluation) > 0 {
		var e report.Evaluation
		if err := json.Unmarshal(evaluation, &e); err != nil {
			return report.Report{}, fmt.Errorf("decode evaluation: %w", err)
		}
		r.Evaluation = &e
	}
	return r, nil
}
