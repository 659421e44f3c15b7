package sync

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/punchlog/punch/internal/config"
	"github.com/punchlog/punch/internal/punch"
	"github.com/punchlog/punch/internal/store"
)

// Delta is the outcome of diffing local state against a remote manifest.
type Delta struct {
	// Uploads are live local records the remote is missing or holds an
	// older copy of.
	Uploads []*punch.Punch

	// Downloads are remote ids missing locally or remotely newer.
	Downloads []string

	// Deletes are remote ids whose local tombstone is newer than the
	// remote copy.
	Deletes []string
}

// Empty reports whether the two sides already agree.
func (d Delta) Empty() bool {
	return len(d.Uploads) == 0 && len(d.Downloads) == 0 && len(d.Deletes) == 0
}

// Diff compares every local record (tombstones included) against the
// remote manifest. Resolution is whole-record last-write-wins on the
// updated timestamp; equal timestamps favor neither direction.
func Diff(local []*punch.Punch, manifest Manifest) Delta {
	var d Delta
	seen := make(map[string]bool, len(local))

	for _, p := range local {
		seen[p.ID] = true
		remote, known := manifest[p.ID]
		ours := p.UpdatedMillis()

		if p.IsTombstone() {
			// A tombstone unknown to the remote has nothing to delete
			// there. A remote copy newer than the deletion wins and
			// resurrects the record locally.
			switch {
			case !known:
			case ours > remote:
				d.Deletes = append(d.Deletes, p.ID)
			case remote > ours:
				d.Downloads = append(d.Downloads, p.ID)
			}
			continue
		}

		switch {
		case !known, ours > remote:
			d.Uploads = append(d.Uploads, p)
		case remote > ours:
			d.Downloads = append(d.Downloads, p.ID)
		}
	}

	for id := range manifest {
		if !seen[id] {
			d.Downloads = append(d.Downloads, id)
		}
	}
	return d
}

// Result summarizes one adapter's sync.
type Result struct {
	Label      string
	Uploaded   []string
	Downloaded []string
	Deleted    []string

	// CheckOnly marks a dry run: the lists describe what would happen.
	CheckOnly bool

	// Err is the failure that aborted this adapter's sync, if any.
	// SyncAll records it here instead of halting the remaining adapters.
	Err error
}

// Syncer orchestrates manifest retrieval, diffing, and transfer execution
// between the local record store and configured adapters.
type Syncer struct {
	store store.Store
	log   *zap.Logger
}

// New creates a Syncer over the local record store. A nil logger disables
// logging.
func New(st store.Store, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{store: st, log: logger}
}

// Sync reconciles one adapter: fetch manifest, diff, upload, propagate
// deletions, download, and persist downloaded records into the local
// store. With checkOnly the diff is reported and nothing moves.
//
// Any adapter error aborts this sync; work already transferred stays
// transferred. There are no retries.
func (s *Syncer) Sync(ctx context.Context, a Adapter, checkOnly bool) (Result, error) {
	res := Result{Label: a.Label(), CheckOnly: checkOnly}

	manifest, err := a.GetManifest(ctx)
	if err != nil {
		return res, fmt.Errorf("backend %s: failed to fetch manifest: %w", a.Label(), err)
	}

	local, err := s.store.All()
	if err != nil {
		return res, fmt.Errorf("backend %s: failed to read local records: %w", a.Label(), err)
	}

	delta := Diff(local, manifest)
	s.log.Debug("computed sync delta",
		zap.String("backend", a.Label()),
		zap.Int("uploads", len(delta.Uploads)),
		zap.Int("downloads", len(delta.Downloads)),
		zap.Int("deletes", len(delta.Deletes)))

	if checkOnly {
		for _, p := range delta.Uploads {
			res.Uploaded = append(res.Uploaded, p.ID)
		}
		res.Downloaded = delta.Downloads
		res.Deleted = delta.Deletes
		return res, nil
	}

	if len(delta.Uploads) > 0 {
		stored, err := a.Upload(ctx, delta.Uploads, manifest)
		if err != nil {
			return res, fmt.Errorf("backend %s: upload failed: %w", a.Label(), err)
		}
		for _, p := range stored {
			res.Uploaded = append(res.Uploaded, p.ID)
		}
	}

	if len(delta.Deletes) > 0 {
		deleted, err := a.Delete(ctx, delta.Deletes)
		switch {
		case errors.Is(err, ErrNotSupported):
			s.log.Info("backend does not propagate deletions, skipping",
				zap.String("backend", a.Label()),
				zap.Int("tombstones", len(delta.Deletes)))
		case err != nil:
			return res, fmt.Errorf("backend %s: delete failed: %w", a.Label(), err)
		default:
			res.Deleted = deleted
		}
	}

	if len(delta.Downloads) > 0 {
		punches, err := a.Download(ctx, delta.Downloads)
		if err != nil {
			return res, fmt.Errorf("backend %s: download failed: %w", a.Label(), err)
		}
		for _, p := range punches {
			if err := s.store.Save(p); err != nil {
				return res, fmt.Errorf("backend %s: failed to persist %s: %w", a.Label(), p.ID, err)
			}
			res.Downloaded = append(res.Downloaded, p.ID)
		}
	}

	s.log.Info("sync complete",
		zap.String("backend", a.Label()),
		zap.Int("uploaded", len(res.Uploaded)),
		zap.Int("downloaded", len(res.Downloaded)),
		zap.Int("deleted", len(res.Deleted)))
	return res, nil
}

// Options selects and shapes a SyncAll run.
type Options struct {
	// Labels limits the run to these configured backends. Empty means
	// all of them.
	Labels []string

	// AutoOnly keeps only backends marked for automatic sync.
	AutoOnly bool

	// CheckOnly reports each diff without transferring anything.
	CheckOnly bool
}

// SyncAll resolves the backend selection and syncs each one sequentially,
// so later adapters observe earlier results and manifest state never races
// against itself. Per-adapter failures are logged, recorded on the
// adapter's Result, and do not halt the remaining adapters.
func (s *Syncer) SyncAll(ctx context.Context, backends []config.Backend, opts Options) []Result {
	selected, missing := selectBackends(backends, opts)

	var results []Result
	for _, label := range missing {
		err := fmt.Errorf("%w: %s", ErrNoSuchLabel, label)
		s.log.Warn("skipping unknown backend", zap.String("label", label))
		results = append(results, Result{Label: label, Err: err})
	}

	for _, b := range selected {
		adapter, err := NewAdapter(b, s.log)
		if err != nil {
			s.log.Error("backend configuration failed",
				zap.String("backend", b.Label),
				zap.Error(err))
			results = append(results, Result{Label: b.Label, Err: err})
			continue
		}

		res, err := s.Sync(ctx, adapter, opts.CheckOnly)
		if err != nil {
			s.log.Error("sync failed",
				zap.String("backend", b.Label),
				zap.Error(err))
			res.Err = err
		}
		results = append(results, res)
	}
	return results
}

// selectBackends applies label and auto filters, reporting requested
// labels that match nothing.
func selectBackends(backends []config.Backend, opts Options) (selected []config.Backend, missing []string) {
	if len(opts.Labels) == 0 {
		for _, b := range backends {
			if opts.AutoOnly && !b.Auto {
				continue
			}
			selected = append(selected, b)
		}
		return selected, nil
	}

	byLabel := make(map[string]config.Backend, len(backends))
	for _, b := range backends {
		byLabel[b.Label] = b
	}
	for _, label := range opts.Labels {
		b, ok := byLabel[label]
		if !ok {
			missing = append(missing, label)
			continue
		}
		if opts.AutoOnly && !b.Auto {
			continue
		}
		selected = append(selected, b)
	}
	return selected, missing
}
