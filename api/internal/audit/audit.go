// Package audit records one row per model call. Only call metadata is kept,
// never prompts or report content.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"parent-bridge/api/internal/util"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Entry is one completion_log row.
type Entry struct {
	Endpoint   string
	Engine     string
	Model      string
	SchemaName string
	Duration   time.Duration
	Status     string
	Error      string
}

// Recorder persists entries. Implementations must be safe for concurrent use.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
	Ping(ctx context.Context) error
}

// Nop is used when no database is configured.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }
func (Nop) Ping(context.Context) error          { return nil }

// Repo writes entries to Postgres.
type Repo struct{ DB *sql.DB }

func NewRepo(db *sql.DB) *Repo { return &Repo{DB: db} }

// Open connects through the pgx database/sql driver and checks the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

const schemaDDL = `
create table if not exists completion_log (
	id          bigserial primary key,
	endpoint    text not null,
	engine      text not null,
	model       text not null,
	schema_name text not null default '',
	duration_ms bigint not null,
	status      text not null,
	error       text not null default '',
	created_at  timestamptz not null default now()
)`

func (r *Repo) EnsureSchema(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("create completion_log: %w", err)
	}
	return nil
}

func (r *Repo) Record(ctx context.Context, e Entry) error {
	const q = `
insert into completion_log(endpoint, engine, model, schema_name, duration_ms, status, error)
values ($1,$2,$3,$4,$5,$6,$7)`
	_, err := r.DB.ExecContext(ctx, q,
		e.Endpoint, e.Engine, e.Model, e.SchemaName, e.Duration.Milliseconds(), e.Status, util.ClampRunes(e.Error, 2000))
	if err != nil {
		return fmt.Errorf("insert completion_log: %w", err)
	}
	return nil
}

func (r *Repo) Ping(ctx context.Context) error { return r.DB.PingContext(ctx) }

// NewEntry fills status and error from err.
func NewEntry(endpoint, engine, model, schemaName string, started time.Time, err error) Entry {
	e := Entry{
		Endpoint:   endpoint,
		Engine:     engine,
		Model:      model,
		SchemaName: schemaName,
		Duration:   time.Since(started),
		Status:     StatusOK,
	}
	if err != nil {
		e.Status = StatusError
		e.Error = err.Error()
	}
	return e
}
