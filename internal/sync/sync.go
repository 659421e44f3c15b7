// Package sync reconciles the local record store with remote backends.
//
// Each backend implements the Adapter contract: it exposes a manifest
// mapping punch ids to last-updated timestamps, and moves full records in
// and out. The Syncer diffs a manifest against local state and resolves
// conflicts whole-record, last-write-wins on the updated timestamp.
// Tombstones carry their deletion time in updated and compete under the
// same rule, so deletions propagate like edits.
//
// Adapter implementations live in subpackages (object, peer, noop) and
// register themselves by backend kind; unknown kinds surface as a typed
// configuration error instead of a failed lookup.
package sync

import (
	"context"
	"errors"

	"github.com/punchlog/punch/internal/punch"
)

// Errors returned by the sync engine. Check with errors.Is.
var (
	// ErrUnknownBackend is returned when no adapter is registered for a
	// configured backend kind.
	ErrUnknownBackend = errors.New("unknown sync backend")

	// ErrNoSuchLabel is returned when a requested backend label is not
	// configured.
	ErrNoSuchLabel = errors.New("no backend with that label")

	// ErrNotSupported is returned by adapters for operations they do not
	// implement, such as tombstone propagation.
	ErrNotSupported = errors.New("operation not supported by this backend")
)

// Manifest maps punch ids to the last-updated timestamp (epoch
// milliseconds) a backend has observed. It is fetched fresh per sync and
// never persisted locally.
type Manifest map[string]int64

// Adapter is the capability contract a remote backend implements to
// participate in synchronization.
type Adapter interface {
	// Label identifies the backend in logs and error messages.
	Label() string

	// GetManifest returns the backend's current id → updated-millis
	// snapshot. A backend with no prior data returns an empty manifest,
	// never an error.
	GetManifest(ctx context.Context) (Manifest, error)

	// Upload persists the given punches remotely, updates the remote
	// manifest to reflect their timestamps, and returns the punches
	// actually stored. Partial success is not modeled: the contract is
	// all-or-error.
	Upload(ctx context.Context, punches []*punch.Punch, manifest Manifest) ([]*punch.Punch, error)

	// Download fetches full records for the given ids.
	Download(ctx context.Context, ids []string) ([]*punch.Punch, error)

	// Delete propagates tombstones for the given ids and returns the ids
	// removed. Adapters without a deletion path return ErrNotSupported.
	Delete(ctx context.Context, ids []string) ([]string, error)
}
