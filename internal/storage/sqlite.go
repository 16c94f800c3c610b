//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "chainjobs/pkg/logx"
)

//go:embed migrations.sql
var migrations string

const (
	insertAudit = `INSERT INTO audit(at, actor, action, target, err) VALUES(?,?,?,?,?)`
	insertRun   = `INSERT INTO runs(at, run_id, task, function, ok, took_ms, output, err) VALUES(?,?,?,?,?,?,?,?)`
)

type sqliteStore struct {
	db    *sql.DB
	audit *sql.Stmt
	runs  *sql.Stmt
}

// sqliteDSN passes pragmas through the modernc driver's _pragma parameter so
// every pooled connection gets them.
func sqliteDSN(path string, busy time.Duration) string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	if busy > 0 {
		q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	}
	return "file:" + path + "?" + q.Encode()
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", sqliteDSN(path, cfg.BusyTimeout))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	s := &sqliteStore{db: db}
	if s.audit, err = db.PrepareContext(ctx, insertAudit); err == nil {
		s.runs, err = db.PrepareContext(ctx, insertRun)
	}
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("sqlite prepare: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return s, nil
}

func (s *sqliteStore) Close() error {
	for _, st := range []*sql.Stmt{s.audit, s.runs} {
		if st != nil {
			_ = st.Close()
		}
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_, err := s.audit.ExecContext(ctx, stamp(e.At), optional(e.Actor), e.Action, e.Target, optional(e.Error))
	return err
}

func (s *sqliteStore) AppendRun(ctx context.Context, e RunEntry) error {
	_, err := s.runs.ExecContext(ctx, stamp(e.At), e.RunID, e.Task, e.Function, e.OK, e.TookMS, optional(e.Output), optional(e.Error))
	return err
}

func stamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// optional maps blank strings to NULL.
func optional(v string) sql.NullString {
	v = strings.TrimSpace(v)
	return sql.NullString{String: v, Valid: v != ""}
}
