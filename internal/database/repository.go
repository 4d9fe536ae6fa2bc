package database

import (
	"context"

	"github.com/screenline/screenline/internal/classify"
	"github.com/screenline/screenline/internal/database/models"
)

// PatternSetRepository manages versioned classifier pattern sets. Revisions
// are append-only: publishing always creates a new version and old versions
// stay readable for rollback.
type PatternSetRepository interface {
	// Latest returns the newest stored pattern set, or ErrNoPatternSet when
	// nothing has been published yet.
	Latest(ctx context.Context) (*classify.PatternSet, error)

	// GetByVersion returns a specific revision, or ErrNoPatternSet.
	GetByVersion(ctx context.Context, version int64) (*classify.PatternSet, error)

	// Publish stores the set as a new revision and returns its version.
	Publish(ctx context.Context, ps *classify.PatternSet) (int64, error)

	// ListRevisions returns revision metadata, newest first.
	ListRevisions(ctx context.Context) ([]models.PatternSetRevision, error)
}
