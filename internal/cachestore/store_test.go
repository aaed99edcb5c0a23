package cachestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxishq/coursesync/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestPutGetRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	cad := "2026-W10"
	item := model.CachedItem{
		ItemID:       "course-1",
		OwnerID:      "owner-1",
		Payload:      []byte(`{"title":"Week 10"}`),
		DownloadedAt: time.Now().UTC().Truncate(time.Second),
		ExpiresAt:    time.Now().UTC().Add(time.Hour).Truncate(time.Second),
		LocalVersion: "1.0",
		CadenceKey:   &cad,
		SizeBytes:    20,
	}
	key := model.ItemKey(item.OwnerID, item.ItemID)

	require.NoError(t, st.Put(ctx, key, item))
	got, err := st.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, item.ItemID, got.ItemID)
	assert.Equal(t, item.LocalVersion, got.LocalVersion)
	require.NotNil(t, got.CadenceKey)
	assert.Equal(t, cad, *got.CadenceKey)
	assert.Equal(t, item.Payload, got.Payload)
}

func TestGetMissingReturnsNil(t *testing.T) {
	st := newTestStore(t)
	got, err := st.Get(context.Background(), "item/nobody/nothing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPutOverwritesWholesale(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	key := model.ItemKey("o", "i")

	require.NoError(t, st.Put(ctx, key, model.CachedItem{ItemID: "i", OwnerID: "o", LocalVersion: "1.0", Payload: []byte(`{"a":1}`)}))
	require.NoError(t, st.Put(ctx, key, model.CachedItem{ItemID: "i", OwnerID: "o", LocalVersion: "1.1"}))

	got, err := st.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "1.1", got.LocalVersion)
	assert.Empty(t, got.Payload, "old payload must not survive a replace")
}

func TestDeleteIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	key := model.ItemKey("o", "i")
	require.NoError(t, st.Put(ctx, key, model.CachedItem{ItemID: "i", OwnerID: "o"}))
	require.NoError(t, st.Delete(ctx, key))
	require.NoError(t, st.Delete(ctx, key), "deleting an absent key must not fail")
	got, err := st.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListKeysByPrefix(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.Put(ctx, model.ItemKey("o1", "a"), model.CachedItem{ItemID: "a", OwnerID: "o1"}))
	require.NoError(t, st.Put(ctx, model.ItemKey("o1", "b"), model.CachedItem{ItemID: "b", OwnerID: "o1"}))
	require.NoError(t, st.Put(ctx, model.ItemKey("o2", "c"), model.CachedItem{ItemID: "c", OwnerID: "o2"}))
	require.NoError(t, st.PutRaw(ctx, model.MembershipKey("o1"), []byte(`[]`)))

	keys, err := st.ListKeys(ctx, model.OwnerPrefix("o1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"item/o1/a", "item/o1/b"}, keys)
}

func TestIndexMetadata(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	exp := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	require.NoError(t, st.Put(ctx, model.ItemKey("o", "i"), model.CachedItem{
		ItemID: "i", OwnerID: "o", Payload: []byte(`{"x":1}`), SizeBytes: 7, ExpiresAt: exp,
	}))

	idx, err := st.IndexMetadata(ctx, model.OwnerPrefix("o"))
	require.NoError(t, err)
	require.Len(t, idx, 1)
	meta := idx["item/o/i"]
	assert.Equal(t, int64(7), meta.SizeBytes)
	assert.WithinDuration(t, exp, meta.ExpiresAt, time.Second)
	assert.False(t, meta.LastAccessed.IsZero())
}

func TestEvictExpired(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, st.Put(ctx, model.ItemKey("o", "old"), model.CachedItem{ItemID: "old", OwnerID: "o", ExpiresAt: now.Add(-time.Minute)}))
	require.NoError(t, st.Put(ctx, model.ItemKey("o", "new"), model.CachedItem{ItemID: "new", OwnerID: "o", ExpiresAt: now.Add(time.Hour)}))
	// No expiry set: must never be evicted.
	require.NoError(t, st.PutRaw(ctx, model.MembershipKey("o"), []byte(`[]`)))

	keys, err := st.EvictExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"item/o/old"}, keys)

	remaining, err := st.ListKeys(ctx, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"item/o/new", "membership/o"}, remaining)
}

func TestDeletePrefixScopesToOwner(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.Put(ctx, model.ItemKey("o1", "a"), model.CachedItem{ItemID: "a", OwnerID: "o1"}))
	require.NoError(t, st.Put(ctx, model.ItemKey("o1", "b"), model.CachedItem{ItemID: "b", OwnerID: "o1"}))
	require.NoError(t, st.Put(ctx, model.ItemKey("o2", "a"), model.CachedItem{ItemID: "a", OwnerID: "o2"}))

	n, err := st.DeletePrefix(ctx, model.OwnerPrefix("o1"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	keys, err := st.ListKeys(ctx, "item/")
	require.NoError(t, err)
	assert.Equal(t, []string{"item/o2/a"}, keys)
}

func TestStorageErrorMatchesSentinel(t *testing.T) {
	err := storageErr("get", "k", errors.New("boom"))
	assert.True(t, errors.Is(err, ErrStorage))
	var se *StorageError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, "get", se.Op)
}
