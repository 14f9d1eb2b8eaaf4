//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"sessionkeeper/internal/platform"
	logx "sessionkeeper/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	keep       int
	opCount    atomic.Uint64
	pruneEvery uint64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, keep: cfg.KeepRuns, pruneEvery: 50}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) PutHandle(ctx context.Context, h platform.RegistrationHandle) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if h.Identity == "" {
		return errors.New("handle identity is empty")
	}
	b, err := json.Marshal(h)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO handles(identity, platform, state, data, updated) VALUES(?,?,?,?,?)
		 ON CONFLICT(identity) DO UPDATE SET platform=excluded.platform, state=excluded.state, data=excluded.data, updated=excluded.updated`,
		h.Identity, string(h.Platform), string(h.State), string(b), time.Now().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) GetHandle(ctx context.Context, identity string) (platform.RegistrationHandle, bool, error) {
	if s == nil || s.db == nil {
		return platform.RegistrationHandle{}, false, ErrDisabled
	}
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM handles WHERE identity = ?`, identity).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return platform.RegistrationHandle{}, false, nil
	}
	if err != nil {
		return platform.RegistrationHandle{}, false, err
	}
	var h platform.RegistrationHandle
	if err := json.Unmarshal([]byte(data), &h); err != nil {
		return platform.RegistrationHandle{}, false, err
	}
	return h, true, nil
}

func (s *sqliteStore) DeleteHandle(ctx context.Context, identity string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM handles WHERE identity = ?`, identity)
	return err
}

func (s *sqliteStore) ListHandles(ctx context.Context) ([]platform.RegistrationHandle, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM handles ORDER BY identity`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []platform.RegistrationHandle
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var h platform.RegistrationHandle
		if err := json.Unmarshal([]byte(data), &h); err != nil {
			s.log.Debug("skip corrupt handle row", logx.Err(err))
			continue
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AppendRun(ctx context.Context, r RunRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(at, entry, exit_code, took_ms, err) VALUES(?,?,?,?,?)`,
		r.At.Format(time.RFC3339Nano), r.Entry, r.ExitCode, r.Took.Milliseconds(), nullStr(r.Error),
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
		_ = s.pruneRuns(pctx)
		cancel()
	}
	return err
}

func (s *sqliteStore) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = s.keep
	}
	rows, err := s.db.QueryContext(ctx, `SELECT at, entry, exit_code, took_ms, err FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunRecord
	for rows.Next() {
		var (
			at     string
			r      RunRecord
			tookMS int64
			errStr sql.NullString
		)
		if err := rows.Scan(&at, &r.Entry, &r.ExitCode, &tookMS, &errStr); err != nil {
			return nil, err
		}
		r.At, _ = time.Parse(time.RFC3339Nano, at)
		r.Took = time.Duration(tookMS) * time.Millisecond
		r.Error = errStr.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) pruneRuns(ctx context.Context) error {
	if s == nil || s.db == nil || s.keep <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id <= (SELECT id FROM runs ORDER BY id DESC LIMIT 1 OFFSET ?)`, s.keep)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
