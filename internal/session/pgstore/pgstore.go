// Package pgstore provides a PostgreSQL-backed session.Store for
// deployments that run more than one screenline instance. Every claim is a
// single conditional UPDATE, so the check-and-mark step is atomic across
// processes rather than guarded only by an in-process mutex.
package pgstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/screenline/screenline/internal/session"

	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements session.Store using PostgreSQL.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens a PostgreSQL connection and runs pending migrations.
func New(dsn string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgresql: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgresql: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db, logger: logger.With("subsystem", "session-pgstore")}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Info("postgresql session store opened")
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate runs all pending SQL migration files in order.
func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version := strings.TrimSuffix(entry.Name(), ".sql")

		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = $1", version).Scan(&count)
		if err != nil {
			return fmt.Errorf("checking migration %s: %w", version, err)
		}
		if count > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", version, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %s: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", version, err)
		}

		s.logger.Info("applied migration", "version", version)
	}

	return nil
}

// GetOrCreate implements session.Store.
func (s *Store) GetOrCreate(ctx context.Context, callID string) (session.Snapshot, bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO call_sessions (call_id) VALUES ($1)
		 ON CONFLICT (call_id) DO NOTHING`,
		callID,
	)
	if err != nil {
		return session.Snapshot{}, false, fmt.Errorf("inserting session: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return session.Snapshot{}, false, fmt.Errorf("checking insert result: %w", err)
	}

	snap, err := s.Get(ctx, callID)
	if err != nil {
		return session.Snapshot{}, false, err
	}
	return snap, inserted > 0, nil
}

// Get implements session.Store.
func (s *Store) Get(ctx context.Context, callID string) (session.Snapshot, error) {
	var (
		snap    session.Snapshot
		state   int
		machine int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT call_id, state, started_at, window_text, machine_signal
		 FROM call_sessions WHERE call_id = $1`,
		callID,
	).Scan(&snap.ID, &state, &snap.StartedAt, &snap.Window, &machine)

	if err == sql.ErrNoRows {
		return session.Snapshot{}, session.ErrNotFound
	}
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("querying session: %w", err)
	}

	snap.State = session.State(state)
	snap.MachineSignal = session.MachineSignal(machine)
	return snap, nil
}

// AppendTranscript implements session.Store. The window trim happens inside
// the UPDATE so concurrent appends cannot lose each other's text.
func (s *Store) AppendTranscript(ctx context.Context, callID, text string) (string, error) {
	var window string
	err := s.db.QueryRowContext(ctx,
		`UPDATE call_sessions
		 SET window_text = right(
		         CASE WHEN window_text = '' THEN $2
		              ELSE window_text || ' ' || $2 END,
		         $3),
		     version = version + 1
		 WHERE call_id = $1
		 RETURNING window_text`,
		callID, text, session.TranscriptWindowCap,
	).Scan(&window)

	if err == sql.ErrNoRows {
		return "", session.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("appending transcript: %w", err)
	}
	return window, nil
}

// SetMachineSignal implements session.Store.
func (s *Store) SetMachineSignal(ctx context.Context, callID string, sig session.MachineSignal) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE call_sessions SET machine_signal = $2, version = version + 1
		 WHERE call_id = $1`,
		callID, int(sig),
	)
	if err != nil {
		return fmt.Errorf("setting machine signal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return session.ErrNotFound
	}
	return nil
}

// ClaimAction implements session.Store. The state check, tag check, tag
// insert, and transition are one conditional UPDATE: either this process
// claims the action or the row was already moved by another one.
func (s *Store) ClaimAction(ctx context.Context, callID, tag string, from, to session.State) (bool, error) {
	if to < from {
		return false, nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE call_sessions
		 SET state = $3,
		     fired_actions = array_append(fired_actions, $4),
		     version = version + 1
		 WHERE call_id = $1
		   AND state = $2
		   AND NOT (fired_actions @> ARRAY[$4])`,
		callID, int(from), int(to), tag,
	)
	if err != nil {
		return false, fmt.Errorf("claiming action: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking claim result: %w", err)
	}
	if n == 0 {
		// Distinguish "lost the race" from "no such session".
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			"SELECT EXISTS (SELECT 1 FROM call_sessions WHERE call_id = $1)", callID,
		).Scan(&exists); err != nil {
			return false, fmt.Errorf("checking session existence: %w", err)
		}
		if !exists {
			return false, session.ErrNotFound
		}
		return false, nil
	}
	return true, nil
}

// Delete implements session.Store.
func (s *Store) Delete(ctx context.Context, callID string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM call_sessions WHERE call_id = $1", callID,
	); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// Count implements session.Store.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM call_sessions",
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting sessions: %w", err)
	}
	return n, nil
}

// ActiveIDs implements session.Store.
func (s *Store) ActiveIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT call_id FROM call_sessions ORDER BY call_id",
	)
	if err != nil {
		return nil, fmt.Errorf("querying session ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PruneOlderThan implements session.Store.
func (s *Store) PruneOlderThan(ctx context.Context, age time.Duration) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM call_sessions WHERE started_at < NOW() - ($1 * INTERVAL '1 second')",
		age.Seconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking prune result: %w", err)
	}
	if n > 0 {
		s.logger.Info("pruned stale sessions", "removed", n)
	}
	return int(n), nil
}

// Ensure Store satisfies session.Store.
var _ session.Store = (*Store)(nil)
