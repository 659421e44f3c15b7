// Package object implements the sync adapter for key/value object storage.
// It serves both the s3 and dir backend kinds by composing the matching
// blob.Store implementation.
//
// Layout inside the store:
//
//	manifest.json       id → updated-millis map
//	punches/<id>.json   full punch record in wire shape
//
// The manifest object is rewritten after the punch bodies so a reader
// never sees manifest entries for bodies that are not there yet.
package object

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"go.uber.org/zap"

	"github.com/punchlog/punch/internal/blob"
	"github.com/punchlog/punch/internal/blob/localfs"
	s3blob "github.com/punchlog/punch/internal/blob/s3"
	"github.com/punchlog/punch/internal/config"
	"github.com/punchlog/punch/internal/punch"
	"github.com/punchlog/punch/internal/sync"
)

const (
	manifestKey = "manifest.json"
	punchPrefix = "punches/"
)

func init() {
	sync.Register(config.KindS3, newS3)
	sync.Register(config.KindDir, newDir)
}

// Adapter syncs punches against a blob.Store.
type Adapter struct {
	label string
	store blob.Store
	log   *zap.Logger
}

var _ sync.Adapter = (*Adapter)(nil)

// New creates an object adapter over an existing blob store. Most callers
// go through the backend registry instead.
func New(label string, store blob.Store, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{label: label, store: store, log: logger}
}

func newS3(backend config.Backend, logger *zap.Logger) (sync.Adapter, error) {
	opts := []s3blob.Option{s3blob.Bucket(backend.S3.Bucket)}
	if backend.S3.Prefix != "" {
		opts = append(opts, s3blob.Prefix(backend.S3.Prefix))
	}
	awsCfg := aws.NewConfig()
	if backend.S3.Region != "" {
		awsCfg = awsCfg.WithRegion(backend.S3.Region)
	}
	if backend.S3.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(backend.S3.Endpoint).WithS3ForcePathStyle(true)
	}
	opts = append(opts, s3blob.AWSConfig(awsCfg))

	bs, err := s3blob.New(opts...)
	if err != nil {
		return nil, err
	}
	return New(backend.Label, bs, logger), nil
}

func newDir(backend config.Backend, logger *zap.Logger) (sync.Adapter, error) {
	return New(backend.Label, localfs.New(nil, backend.Dir.Path), logger), nil
}

// Label implements sync.Adapter.
func (a *Adapter) Label() string { return a.label }

// GetManifest implements sync.Adapter. A store with no manifest object is
// an empty backend, not an error.
func (a *Adapter) GetManifest(ctx context.Context) (sync.Manifest, error) {
	rdr, err := a.store.Get(ctx, manifestKey)
	if errors.Is(err, blob.ErrNotFound) {
		return sync.Manifest{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch manifest from %s: %w", a.store, err)
	}
	defer rdr.Close()

	var m sync.Manifest
	if err := json.NewDecoder(rdr).Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest from %s: %w", a.store, err)
	}
	if m == nil {
		m = sync.Manifest{}
	}
	return m, nil
}

// Upload implements sync.Adapter.
func (a *Adapter) Upload(ctx context.Context, punches []*punch.Punch, manifest sync.Manifest) ([]*punch.Punch, error) {
	if manifest == nil {
		manifest = sync.Manifest{}
	}
	for _, p := range punches {
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to encode punch %s: %w", p.ID, err)
		}
		if err := a.store.Put(ctx, punchPrefix+p.ID+".json", bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("failed to store punch %s: %w", p.ID, err)
		}
		manifest[p.ID] = p.UpdatedMillis()
	}

	if err := a.putManifest(ctx, manifest); err != nil {
		return nil, err
	}
	a.log.Debug("uploaded punches", zap.String("store", a.store.String()), zap.Int("count", len(punches)))
	return punches, nil
}

// Download implements sync.Adapter.
func (a *Adapter) Download(ctx context.Context, ids []string) ([]*punch.Punch, error) {
	punches := make([]*punch.Punch, 0, len(ids))
	for _, id := range ids {
		rdr, err := a.store.Get(ctx, punchPrefix+id+".json")
		if err != nil {
			return nil, fmt.Errorf("failed to fetch punch %s: %w", id, err)
		}
		data, err := io.ReadAll(rdr)
		_ = rdr.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read punch %s: %w", id, err)
		}

		var p punch.Punch
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to decode punch %s: %w", id, err)
		}
		punches = append(punches, &p)
	}
	return punches, nil
}

// Delete implements sync.Adapter. Bodies go first, then the manifest
// forgets the ids.
func (a *Adapter) Delete(ctx context.Context, ids []string) ([]string, error) {
	manifest, err := a.GetManifest(ctx)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		if err := a.store.Delete(ctx, punchPrefix+id+".json"); err != nil {
			return nil, fmt.Errorf("failed to delete punch %s: %w", id, err)
		}
		delete(manifest, id)
	}

	if err := a.putManifest(ctx, manifest); err != nil {
		return nil, err
	}
	return ids, nil
}

func (a *Adapter) putManifest(ctx context.Context, manifest sync.Manifest) error {
	data, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := a.store.Put(ctx, manifestKey, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to store manifest in %s: %w", a.store, err)
	}
	return nil
}
