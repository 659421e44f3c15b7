// Package store defines the durable persistence contract for punch records.
//
// Implementations exist for a flat JSONL ledger file (internal/store/ledger),
// an embedded SQLite database (internal/store/sqlite), and an in-memory
// test double (internal/store/memory). All three expose the same contract;
// callers never touch the underlying file or database directly.
//
// Deletion is soft: Delete marks a tombstone that normal queries exclude
// but All still returns, so the syncer can propagate deletions to remote
// backends.
package store

import (
	"errors"

	"github.com/punchlog/punch/internal/punch"
)

// ErrClosed is returned by operations on a store after CleanUp.
var ErrClosed = errors.New("store is closed")

// Predicate selects punches during Filter and Find scans.
type Predicate func(*punch.Punch) bool

// Store is the durable record store for punches.
//
// Queries returning a single punch return (nil, nil) when nothing matches.
// Tombstoned records are excluded from every query except All.
type Store interface {
	// Save upserts the punch by id. An existing record is replaced
	// wholesale; there is no partial-field patch.
	Save(p *punch.Punch) error

	// Current returns the punch with no out time, optionally filtered by
	// project ("" matches any). At most one running punch per project is
	// expected but not enforced here; callers guard against double
	// punch-in.
	Current(project string) (*punch.Punch, error)

	// Latest returns the most recently started punch, optionally filtered
	// by project ("" matches any).
	Latest(project string) (*punch.Punch, error)

	// Filter returns all live punches matching the predicate.
	Filter(pred Predicate) ([]*punch.Punch, error)

	// Find returns the first live punch matching the predicate.
	Find(pred Predicate) (*punch.Punch, error)

	// Delete marks the punch's tombstone. The record is shrunk to
	// {id, deleted} and kept so the deletion can sync to remote peers.
	Delete(p *punch.Punch) error

	// All returns every record including tombstones, for the syncer.
	All() ([]*punch.Punch, error)

	// CleanUp flushes pending writes and releases file or database
	// handles. Call once at process exit.
	CleanUp() error
}

// ByProject is a predicate matching live punches for one project.
func ByProject(project string) Predicate {
	return func(p *punch.Punch) bool { return p.Project == project }
}
