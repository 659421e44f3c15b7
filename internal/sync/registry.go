package sync

import (
	"fmt"
	gosync "sync"

	"go.uber.org/zap"

	"github.com/punchlog/punch/internal/config"
)

// Constructor builds an adapter from its validated backend configuration.
// Implementations register themselves with Register from init().
type Constructor func(backend config.Backend, logger *zap.Logger) (Adapter, error)

var (
	registry   = make(map[config.BackendKind]Constructor)
	registryMu gosync.RWMutex
)

// Register registers an adapter constructor for a backend kind.
// Implementation packages call this from init():
//
//	func init() {
//	    sync.Register(config.KindNoop, New)
//	}
func Register(kind config.BackendKind, constructor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if constructor == nil {
		panic(fmt.Sprintf("sync: Register constructor is nil for kind %s", kind))
	}
	if _, exists := registry[kind]; exists {
		panic(fmt.Sprintf("sync: Register called twice for kind %s", kind))
	}
	registry[kind] = constructor
}

// NewAdapter instantiates the adapter for a configured backend. A kind with
// no registered constructor is a configuration error, reported as
// ErrUnknownBackend.
func NewAdapter(backend config.Backend, logger *zap.Logger) (Adapter, error) {
	if err := backend.Validate(); err != nil {
		return nil, err
	}

	registryMu.RLock()
	constructor := registry[backend.Kind]
	registryMu.RUnlock()

	if constructor == nil {
		return nil, fmt.Errorf("%w: kind %q (backend %s)", ErrUnknownBackend, backend.Kind, backend.Label)
	}

	a, err := constructor(backend, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to configure backend %s: %w", backend.Label, err)
	}
	return a, nil
}

// RegisteredKinds returns the kinds with registered constructors, for
// diagnostics and tests.
func RegisteredKinds() []config.BackendKind {
	registryMu.RLock()
	defer registryMu.RUnlock()

	kinds := make([]config.BackendKind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	return kinds
}
