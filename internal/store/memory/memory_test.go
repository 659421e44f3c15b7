package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchlog/punch/internal/punch"
	"github.com/punchlog/punch/internal/store"
)

func TestMemoryStoreContract(t *testing.T) {
	m := New()

	in := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	a := punch.New("acme", nil, punch.At(in))
	require.NoError(t, m.Save(a))
	require.NoError(t, m.Save(a), "save is idempotent")

	cur, err := m.Current("acme")
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, a.ID, cur.ID)

	require.NoError(t, m.Delete(a))
	got, err := m.Find(func(p *punch.Punch) bool { return p.ID == a.ID })
	require.NoError(t, err)
	assert.Nil(t, got)

	all, err := m.All()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].IsTombstone())

	none, err := m.Latest("acme")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestMemoryCopiesOut(t *testing.T) {
	m := New()
	p := punch.New("acme", nil)
	require.NoError(t, m.Save(p))

	got, err := m.Find(store.ByProject("acme"))
	require.NoError(t, err)
	require.NotNil(t, got)
	got.Project = "mutated"

	again, err := m.Find(store.ByProject("acme"))
	require.NoError(t, err)
	assert.NotNil(t, again, "mutating a returned punch must not alter the store")
}
