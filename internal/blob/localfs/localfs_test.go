package localfs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchlog/punch/internal/blob"
)

func setupStore(t *testing.T) blob.Store {
	t.Helper()
	bs := New(afero.NewMemMapFs(), "")
	ctx := context.Background()
	require.NoError(t, bs.Put(ctx, "punches/one.json", strings.NewReader(`{"id":"one"}`)))
	require.NoError(t, bs.Put(ctx, "punches/two.json", strings.NewReader(`{"id":"two"}`)))
	require.NoError(t, bs.Put(ctx, "manifest.json", strings.NewReader(`{}`)))
	return bs
}

func TestHas(t *testing.T) {
	bs := setupStore(t)
	ctx := context.Background()

	has, err := bs.Has(ctx, "punches/one.json")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = bs.Has(ctx, "punches/three.json")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestGetPutRoundTrip(t *testing.T) {
	bs := setupStore(t)
	ctx := context.Background()

	rdr, err := bs.Get(ctx, "punches/one.json")
	require.NoError(t, err)
	data, err := io.ReadAll(rdr)
	require.NoError(t, err)
	require.NoError(t, rdr.Close())
	assert.Equal(t, `{"id":"one"}`, string(data))

	require.NoError(t, bs.Put(ctx, "punches/one.json", bytes.NewReader([]byte(`{"id":"one","rate":5}`))))
	rdr, err = bs.Get(ctx, "punches/one.json")
	require.NoError(t, err)
	data, err = io.ReadAll(rdr)
	require.NoError(t, err)
	require.NoError(t, rdr.Close())
	assert.Contains(t, string(data), `"rate":5`, "put replaces existing objects")
}

func TestGetMissing(t *testing.T) {
	bs := setupStore(t)

	_, err := bs.Get(context.Background(), "nope.json")
	require.Error(t, err)
	assert.True(t, errors.Is(err, blob.ErrNotFound))
}

func TestKeysByPrefix(t *testing.T) {
	bs := setupStore(t)
	ctx := context.Background()

	keys, err := bs.Keys(ctx, "punches/")
	require.NoError(t, err)
	assert.Equal(t, []string{"punches/one.json", "punches/two.json"}, keys)

	all, err := bs.Keys(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestDelete(t *testing.T) {
	bs := setupStore(t)
	ctx := context.Background()

	require.NoError(t, bs.Delete(ctx, "punches/one.json"))
	require.NoError(t, bs.Delete(ctx, "punches/one.json"), "deleting a missing key is not an error")

	has, err := bs.Has(ctx, "punches/one.json")
	require.NoError(t, err)
	assert.False(t, has)
}
