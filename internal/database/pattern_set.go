package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/screenline/screenline/internal/classify"
	"github.com/screenline/screenline/internal/database/models"
)

// ErrNoPatternSet is returned when no stored revision matches; callers fall
// back to the built-in default set.
var ErrNoPatternSet = errors.New("no pattern set stored")

// patternSetRepo implements PatternSetRepository. Sets are stored as JSON
// payloads keyed by an autoincrement version, so the row id doubles as the
// revision number.
type patternSetRepo struct {
	db *DB
}

// NewPatternSetRepository creates a PatternSetRepository backed by the given
// database.
func NewPatternSetRepository(db *DB) PatternSetRepository {
	return &patternSetRepo{db: db}
}

// Latest implements PatternSetRepository.
func (r *patternSetRepo) Latest(ctx context.Context) (*classify.PatternSet, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT version, payload FROM pattern_sets ORDER BY version DESC LIMIT 1")
	return scanPatternSet(row)
}

// GetByVersion implements PatternSetRepository.
func (r *patternSetRepo) GetByVersion(ctx context.Context, version int64) (*classify.PatternSet, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT version, payload FROM pattern_sets WHERE version = ?", version)
	return scanPatternSet(row)
}

// Publish implements PatternSetRepository.
func (r *patternSetRepo) Publish(ctx context.Context, ps *classify.PatternSet) (int64, error) {
	payload, err := json.Marshal(ps)
	if err != nil {
		return 0, fmt.Errorf("encoding pattern set: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		"INSERT INTO pattern_sets (payload) VALUES (?)", string(payload))
	if err != nil {
		return 0, fmt.Errorf("inserting pattern set: %w", err)
	}

	version, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading new pattern set version: %w", err)
	}
	return version, nil
}

// ListRevisions implements PatternSetRepository.
func (r *patternSetRepo) ListRevisions(ctx context.Context) ([]models.PatternSetRevision, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT version, created_at FROM pattern_sets ORDER BY version DESC")
	if err != nil {
		return nil, fmt.Errorf("querying pattern set revisions: %w", err)
	}
	defer rows.Close()

	var revs []models.PatternSetRevision
	for rows.Next() {
		var rev models.PatternSetRevision
		if err := rows.Scan(&rev.Version, &rev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning pattern set revision: %w", err)
		}
		revs = append(revs, rev)
	}
	return revs, rows.Err()
}

func scanPatternSet(row *sql.Row) (*classify.PatternSet, error) {
	var (
		version int64
		payload string
	)
	if err := row.Scan(&version, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoPatternSet
		}
		return nil, fmt.Errorf("scanning pattern set: %w", err)
	}

	var ps classify.PatternSet
	if err := json.Unmarshal([]byte(payload), &ps); err != nil {
		return nil, fmt.Errorf("decoding pattern set payload: %w", err)
	}

	// The stored version wins over whatever the payload carried.
	ps.Version = version
	return &ps, nil
}
