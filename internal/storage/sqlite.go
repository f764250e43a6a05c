package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"snoozebot/internal/mute"
	logx "snoozebot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
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

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	// FULL: a committed mute must survive power loss, not just a crash.
	_, _ = db.Exec("PRAGMA synchronous = FULL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("sqlite store opened", logx.String("path", path))
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

// withTx runs fn in a transaction: commit on nil, rollback on error or panic.
func (s *sqliteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
			}
			return
		}
		if commitErr := tx.Commit(); commitErr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", commitErr)
		}
	}()
	err = fn(tx)
	return
}

func (s *sqliteStore) Upsert(ctx context.Context, rec mute.Record) (mute.Record, error) {
	if s == nil || s.db == nil {
		return mute.Record{}, ErrClosed
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM mute WHERE member_id = ?`, rec.MemberID); err != nil {
			return fmt.Errorf("failed to delete stale mute record: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO mute(member_id, unmute_date_unix, has_elevated_role, allow_self_unmute) VALUES(?,?,?,?)`,
			rec.MemberID, rec.ExpiresAt, rec.HadElevatedRole, rec.SelfLiftAllowed,
		)
		if err != nil {
			return fmt.Errorf("failed to insert mute record: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read mute id: %w", err)
		}
		rec.ID = id
		return nil
	})
	if err != nil {
		return mute.Record{}, err
	}
	return rec, nil
}

func (s *sqliteStore) Get(ctx context.Context, memberID int64) (mute.Record, bool, error) {
	if s == nil || s.db == nil {
		return mute.Record{}, false, ErrClosed
	}
	var r mute.Record
	err := s.db.QueryRowContext(ctx,
		`SELECT mute_id, member_id, unmute_date_unix, has_elevated_role, allow_self_unmute FROM mute WHERE member_id = ?`,
		memberID,
	).Scan(&r.ID, &r.MemberID, &r.ExpiresAt, &r.HadElevatedRole, &r.SelfLiftAllowed)
	if errors.Is(err, sql.ErrNoRows) {
		return mute.Record{}, false, nil
	}
	if err != nil {
		return mute.Record{}, false, fmt.Errorf("failed to get mute record: %w", err)
	}
	return r, true, nil
}

func (s *sqliteStore) Delete(ctx context.Context, memberID int64) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM mute WHERE member_id = ?`, memberID); err != nil {
		return fmt.Errorf("failed to delete mute record: %w", err)
	}
	return nil
}

func (s *sqliteStore) ListAll(ctx context.Context) ([]mute.Record, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT mute_id, member_id, unmute_date_unix, has_elevated_role, allow_self_unmute FROM mute ORDER BY unmute_date_unix`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list mute records: %w", err)
	}
	defer rows.Close()

	var out []mute.Record
	for rows.Next() {
		var r mute.Record
		if err := rows.Scan(&r.ID, &r.MemberID, &r.ExpiresAt, &r.HadElevatedRole, &r.SelfLiftAllowed); err != nil {
			return nil, fmt.Errorf("failed to scan mute record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list mute records: %w", err)
	}
	return out, nil
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	stampAudit(&e)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, op_id, action, member_id, actor_id, cause, ok, err, detail)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		e.At.UTC().Format(time.RFC3339Nano), e.OpID, e.Action, e.MemberID, e.ActorID,
		nullStr(e.Trigger), e.OK, nullStr(e.Error), nullStr(e.Detail),
	)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
