package daemon_test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchlog/punch/internal/config"
	"github.com/punchlog/punch/internal/daemon"
	"github.com/punchlog/punch/internal/punch"
	"github.com/punchlog/punch/internal/store/ledger"
	"github.com/punchlog/punch/internal/store/memory"
	"github.com/punchlog/punch/internal/sync"
	"github.com/punchlog/punch/internal/sync/peer"
)

func TestNewValidation(t *testing.T) {
	_, err := daemon.New(nil, nil, "some/path", daemon.Config{})
	assert.Error(t, err)

	st := memory.New()
	_, err = daemon.New(sync.New(st, nil), nil, "", daemon.Config{})
	assert.Error(t, err)
}

func TestDaemonSyncsStoreChanges(t *testing.T) {
	serverStore := memory.New()
	srv := httptest.NewServer(peer.Handler(serverStore, "", nil))
	t.Cleanup(srv.Close)

	path := filepath.Join(t.TempDir(), "punches.jsonl")
	st, err := ledger.Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.CleanUp() })

	existing := punch.New("acme", nil)
	require.NoError(t, st.Save(existing))

	backends := []config.Backend{{
		Label: "hosted",
		Kind:  config.KindPeer,
		Auto:  true,
		Peer:  &config.PeerSettings{URL: srv.URL},
	}}

	d, err := daemon.New(sync.New(st, nil), backends, path, daemon.Config{
		Interval: time.Hour,
		Debounce: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	// The startup pass pushes what the store already holds.
	require.Eventually(t, func() bool {
		p, err := serverStore.Find(func(q *punch.Punch) bool { return q.ID == existing.ID })
		return err == nil && p != nil
	}, 5*time.Second, 20*time.Millisecond, "startup sync should upload existing records")

	// A fresh write lands on the backend without any explicit sync call.
	added := punch.New("beta", nil)
	require.NoError(t, st.Save(added))

	require.Eventually(t, func() bool {
		p, err := serverStore.Find(func(q *punch.Punch) bool { return q.ID == added.ID })
		return err == nil && p != nil
	}, 5*time.Second, 20*time.Millisecond, "file change should trigger a debounced sync")

	cancel()
	require.NoError(t, <-done)
}

func TestDaemonIgnoresUnrelatedBackends(t *testing.T) {
	serverStore := memory.New()
	srv := httptest.NewServer(peer.Handler(serverStore, "", nil))
	t.Cleanup(srv.Close)

	st := memory.New()
	require.NoError(t, st.Save(punch.New("acme", nil)))

	backends := []config.Backend{{
		Label: "manual-only",
		Kind:  config.KindPeer,
		Auto:  false,
		Peer:  &config.PeerSettings{URL: srv.URL},
	}}

	path := filepath.Join(t.TempDir(), "punches.jsonl")
	d, err := daemon.New(sync.New(st, nil), backends, path, daemon.Config{
		Interval: time.Hour,
		Debounce: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	require.NoError(t, d.Start(ctx))

	all, err := serverStore.All()
	require.NoError(t, err)
	assert.Empty(t, all, "backends without auto stay untouched")
}
