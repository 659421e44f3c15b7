// Package config defines the typed configuration for the punch store and
// its sync backends, and loads it from a punch.yaml file via viper.
//
// Backends form a sealed union: each entry names one BackendKind and
// carries exactly the settings struct for that kind. Unknown kinds and
// missing settings are configuration errors raised at load time, before
// any adapter is instantiated.
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// Configuration errors. Check with errors.Is.
var (
	// ErrUnknownBackendKind is returned for a backend kind outside the
	// sealed set.
	ErrUnknownBackendKind = errors.New("unknown backend kind")

	// ErrInvalidBackend is returned when a backend entry is missing its
	// label or the settings its kind requires.
	ErrInvalidBackend = errors.New("invalid backend configuration")

	// ErrInvalidStore is returned for an unknown store driver.
	ErrInvalidStore = errors.New("invalid store configuration")
)

// BackendKind identifies one sync backend implementation.
type BackendKind string

const (
	// KindS3 syncs against an Amazon S3 (or compatible) bucket.
	KindS3 BackendKind = "s3"

	// KindDir syncs against a directory-based object store, typically a
	// mounted network share.
	KindDir BackendKind = "dir"

	// KindPeer syncs against a hosted punch peer over HTTP.
	KindPeer BackendKind = "peer"

	// KindNoop is a backend that accepts everything and stores nothing,
	// for wiring tests and disabled entries.
	KindNoop BackendKind = "noop"
)

// String returns the kind name.
func (k BackendKind) String() string { return string(k) }

// valid reports whether the kind is part of the sealed set.
func (k BackendKind) valid() bool {
	switch k {
	case KindS3, KindDir, KindPeer, KindNoop:
		return true
	}
	return false
}

// S3Settings configures a KindS3 backend.
type S3Settings struct {
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

// DirSettings configures a KindDir backend.
type DirSettings struct {
	Path string `mapstructure:"path"`
}

// PeerSettings configures a KindPeer backend.
type PeerSettings struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
}

// Backend is one configured sync target.
type Backend struct {
	// Label names the backend in commands, logs, and error messages.
	Label string `mapstructure:"label"`

	// Kind selects the adapter implementation.
	Kind BackendKind `mapstructure:"kind"`

	// Auto marks the backend for automatic/background sync.
	Auto bool `mapstructure:"auto"`

	S3   *S3Settings   `mapstructure:"s3"`
	Dir  *DirSettings  `mapstructure:"dir"`
	Peer *PeerSettings `mapstructure:"peer"`
}

// Validate checks the entry against its kind's requirements.
func (b Backend) Validate() error {
	if b.Label == "" {
		return fmt.Errorf("%w: label is required", ErrInvalidBackend)
	}
	if !b.Kind.valid() {
		return fmt.Errorf("%w: %q (backend %s)", ErrUnknownBackendKind, b.Kind, b.Label)
	}
	switch b.Kind {
	case KindS3:
		if b.S3 == nil || b.S3.Bucket == "" {
			return fmt.Errorf("%w: backend %s needs s3.bucket", ErrInvalidBackend, b.Label)
		}
	case KindDir:
		if b.Dir == nil || b.Dir.Path == "" {
			return fmt.Errorf("%w: backend %s needs dir.path", ErrInvalidBackend, b.Label)
		}
	case KindPeer:
		if b.Peer == nil || b.Peer.URL == "" {
			return fmt.Errorf("%w: backend %s needs peer.url", ErrInvalidBackend, b.Label)
		}
	}
	return nil
}

// StoreDriver selects the local record store implementation.
type StoreDriver string

const (
	// DriverLedger is the flat JSONL file store.
	DriverLedger StoreDriver = "ledger"

	// DriverSQLite is the embedded SQLite store.
	DriverSQLite StoreDriver = "sqlite"
)

// StoreSettings configures the local record store.
type StoreSettings struct {
	Driver StoreDriver `mapstructure:"driver"`
	Path   string      `mapstructure:"path"`
}

// LogSettings configures logging output.
type LogSettings struct {
	Level string `mapstructure:"level"`
	// File enables rotating file output when set.
	File string `mapstructure:"file"`
}

// Config is the root configuration document.
type Config struct {
	Store    StoreSettings `mapstructure:"store"`
	Backends []Backend     `mapstructure:"backends"`
	Log      LogSettings   `mapstructure:"log"`
}

// Validate checks the whole document.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverLedger, DriverSQLite:
	default:
		return fmt.Errorf("%w: unknown driver %q", ErrInvalidStore, c.Store.Driver)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("%w: store path is required", ErrInvalidStore)
	}

	seen := make(map[string]bool, len(c.Backends))
	for _, b := range c.Backends {
		if err := b.Validate(); err != nil {
			return err
		}
		if seen[b.Label] {
			return fmt.Errorf("%w: duplicate label %s", ErrInvalidBackend, b.Label)
		}
		seen[b.Label] = true
	}
	return nil
}

// Backend returns the backend with the given label, or false.
func (c *Config) Backend(label string) (Backend, bool) {
	for _, b := range c.Backends {
		if b.Label == label {
			return b, true
		}
	}
	return Backend{}, false
}

// Load reads and validates configuration from the given file. An empty
// path falls back to punch.yaml in the working directory. PUNCH_* env
// variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("store.driver", string(DriverLedger))
	v.SetDefault("log.level", "info")
	v.SetEnvPrefix("punch")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("punch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
