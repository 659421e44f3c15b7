package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchlog/punch/internal/punch"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "punch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.CleanUp() })
	return db
}

func TestUpsertAndQueries(t *testing.T) {
	db := openTestDB(t)

	in := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	a := punch.New("acme", nil, punch.At(in), punch.WithRate(85))
	a.AddComment("kickoff #planning @room:2a")
	b := punch.New("beta", nil, punch.At(in.Add(time.Hour)))
	require.NoError(t, b.PunchOut(in.Add(90*time.Minute)))

	require.NoError(t, db.Save(a))
	require.NoError(t, db.Save(b))

	cur, err := db.Current("")
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, a.ID, cur.ID)
	require.Len(t, cur.Comments, 1)
	assert.True(t, cur.Comments[0].HasTag("planning"), "comments survive the round trip")
	assert.Equal(t, "2a", cur.Comments[0].Object("room"))

	latest, err := db.Latest("beta")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, b.ID, latest.ID)

	none, err := db.Current("beta")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSaveReplacesWholesale(t *testing.T) {
	db := openTestDB(t)
	p := punch.New("acme", nil)
	p.AddComment("one")
	require.NoError(t, db.Save(p))

	p.Comments = nil
	p.SetRate(50)
	require.NoError(t, db.Save(p))

	got, err := db.Find(func(q *punch.Punch) bool { return q.ID == p.ID })
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got.Comments)
	assert.Equal(t, float64(50), got.Rate)

	all, err := db.All()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestDeleteTombstone(t *testing.T) {
	db := openTestDB(t)
	p := punch.New("acme", nil)
	require.NoError(t, db.Save(p))
	require.NoError(t, db.Delete(p))

	got, err := db.Find(func(q *punch.Punch) bool { return q.ID == p.ID })
	require.NoError(t, err)
	assert.Nil(t, got)

	all, err := db.All()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].IsTombstone())
	assert.False(t, all[0].Updated.IsZero())
}

func TestValidationEnforced(t *testing.T) {
	db := openTestDB(t)
	in := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	out := in.Add(-time.Hour)
	bad := &punch.Punch{ID: "bad", Project: "acme", In: in, Out: &out, Created: in, Updated: in}

	err := db.Save(bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, punch.ErrOutBeforeIn)
}
