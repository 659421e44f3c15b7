// Package noop provides a sync adapter that accepts everything and stores
// nothing. It exists for wiring tests and for keeping a backend entry
// configured but disabled.
package noop

import (
	"context"

	"go.uber.org/zap"

	"github.com/punchlog/punch/internal/config"
	"github.com/punchlog/punch/internal/punch"
	"github.com/punchlog/punch/internal/sync"
)

func init() {
	sync.Register(config.KindNoop, New)
}

// Adapter is the no-op sync backend.
type Adapter struct {
	label string
}

var _ sync.Adapter = (*Adapter)(nil)

// New creates a no-op adapter for the configured backend.
func New(backend config.Backend, _ *zap.Logger) (sync.Adapter, error) {
	return &Adapter{label: backend.Label}, nil
}

// Label implements sync.Adapter.
func (a *Adapter) Label() string { return a.label }

// GetManifest implements sync.Adapter. The remote is always empty.
func (a *Adapter) GetManifest(context.Context) (sync.Manifest, error) {
	return sync.Manifest{}, nil
}

// Upload implements sync.Adapter. Everything is accepted, nothing kept.
func (a *Adapter) Upload(_ context.Context, punches []*punch.Punch, _ sync.Manifest) ([]*punch.Punch, error) {
	return punches, nil
}

// Download implements sync.Adapter.
func (a *Adapter) Download(context.Context, []string) ([]*punch.Punch, error) {
	return nil, nil
}

// Delete implements sync.Adapter.
func (a *Adapter) Delete(_ context.Context, ids []string) ([]string, error) {
	return ids, nil
}
