// Package models defines the rows stored in the Screenline database.
package models

import "time"

// PatternSetRevision is the metadata of one stored pattern set version.
type PatternSetRevision struct {
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}
