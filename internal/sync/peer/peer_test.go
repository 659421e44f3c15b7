package peer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchlog/punch/internal/punch"
	"github.com/punchlog/punch/internal/store/memory"
	"github.com/punchlog/punch/internal/sync"
)

func newTestPeer(t *testing.T, token string) (*Adapter, *memory.Memory) {
	t.Helper()
	st := memory.New()
	srv := httptest.NewServer(Handler(st, token, nil))
	t.Cleanup(srv.Close)
	return New("test-peer", srv.URL, token, nil), st
}

func TestManifestIncludesTombstones(t *testing.T) {
	adapter, st := newTestPeer(t, "")

	live := punch.New("acme", nil)
	require.NoError(t, st.Save(live))
	dead := punch.New("acme", nil)
	require.NoError(t, st.Save(dead))
	require.NoError(t, st.Delete(dead))

	m, err := adapter.GetManifest(context.Background())
	require.NoError(t, err)
	assert.Contains(t, m, live.ID)
	assert.Contains(t, m, dead.ID, "tombstones keep their deletion time visible")
}

func TestUploadFetchRoundTrip(t *testing.T) {
	adapter, st := newTestPeer(t, "")
	ctx := context.Background()

	p := punch.New("acme", nil, punch.WithRate(90))
	p.AddComment("standup @team:platform")
	require.NoError(t, p.PunchOut(p.In.Add(15*time.Minute)))

	stored, err := adapter.Upload(ctx, []*punch.Punch{p}, nil)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	got, err := adapter.Download(ctx, []string{p.ID, "unknown-id"})
	require.NoError(t, err)
	require.Len(t, got, 1, "unknown ids are silently absent")
	assert.Equal(t, p.ID, got[0].ID)
	require.Len(t, got[0].Comments, 1)
	assert.Equal(t, "platform", got[0].Comments[0].Object("team"))

	// The server keeps its own copy.
	cur, err := st.Find(func(q *punch.Punch) bool { return q.ID == p.ID })
	require.NoError(t, err)
	require.NotNil(t, cur)
}

func TestUploadRejectsInvalidPunch(t *testing.T) {
	adapter, _ := newTestPeer(t, "")

	bad := punch.New("acme", nil)
	before := bad.In.Add(-time.Hour)
	bad.Out = &before

	_, err := adapter.Upload(context.Background(), []*punch.Punch{bad}, nil)
	require.Error(t, err)
}

func TestDeleteTombstonesOnServer(t *testing.T) {
	adapter, st := newTestPeer(t, "")
	ctx := context.Background()

	p := punch.New("acme", nil)
	require.NoError(t, st.Save(p))

	deleted, err := adapter.Delete(ctx, []string{p.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{p.ID}, deleted)

	// The record is gone from queries but its tombstone still syncs.
	cur, err := st.Find(func(q *punch.Punch) bool { return q.ID == p.ID })
	require.NoError(t, err)
	assert.Nil(t, cur)

	m, err := adapter.GetManifest(ctx)
	require.NoError(t, err)
	assert.Contains(t, m, p.ID)
}

func TestAuthRequired(t *testing.T) {
	st := memory.New()
	srv := httptest.NewServer(Handler(st, "sekrit", nil))
	t.Cleanup(srv.Close)

	unauthed := New("test-peer", srv.URL, "wrong", nil)
	_, err := unauthed.GetManifest(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	authed := New("test-peer", srv.URL, "sekrit", nil)
	_, err = authed.GetManifest(context.Background())
	require.NoError(t, err)
}

func TestDownloadChunksLargeRequests(t *testing.T) {
	st := memory.New()
	var fetches atomic.Int64
	counting := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/punches/fetch" {
			fetches.Add(1)
		}
		Handler(st, "", nil).ServeHTTP(w, r)
	})
	srv := httptest.NewServer(counting)
	t.Cleanup(srv.Close)

	var ids []string
	for i := 0; i < 250; i++ {
		p := punch.New(fmt.Sprintf("project-%d", i%3), nil)
		require.NoError(t, st.Save(p))
		ids = append(ids, p.ID)
	}

	adapter := New("test-peer", srv.URL, "", nil)
	got, err := adapter.Download(context.Background(), ids)
	require.NoError(t, err)
	assert.Len(t, got, 250)
	assert.EqualValues(t, 3, fetches.Load(), "250 ids split into chunks of 100")
}

func TestEndToEndSyncOverHTTP(t *testing.T) {
	serverStore := memory.New()
	srv := httptest.NewServer(Handler(serverStore, "", nil))
	t.Cleanup(srv.Close)
	ctx := context.Background()

	remote := punch.New("acme", nil)
	require.NoError(t, serverStore.Save(remote))

	local := memory.New()
	mine := punch.New("beta", nil)
	require.NoError(t, local.Save(mine))

	syncer := sync.New(local, nil)
	res, err := syncer.Sync(ctx, New("hosted", srv.URL, "", nil), false)
	require.NoError(t, err)
	assert.Equal(t, []string{mine.ID}, res.Uploaded)
	assert.Equal(t, []string{remote.ID}, res.Downloaded)

	// Both sides now hold both records, so a second pass is a no-op.
	res, err = syncer.Sync(ctx, New("hosted", srv.URL, "", nil), false)
	require.NoError(t, err)
	assert.Empty(t, res.Uploaded)
	assert.Empty(t, res.Downloaded)

	// A local deletion tombstones the record on the server.
	require.NoError(t, local.Delete(remote))
	res, err = syncer.Sync(ctx, New("hosted", srv.URL, "", nil), false)
	require.NoError(t, err)
	assert.Equal(t, []string{remote.ID}, res.Deleted)

	cur, err := serverStore.Find(func(q *punch.Punch) bool { return q.ID == remote.ID })
	require.NoError(t, err)
	assert.Nil(t, cur)
}
