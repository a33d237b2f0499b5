package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func TestJSONFileStoreKeyValue(t *testing.T) {
	store, err := NewJSONFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	var got sample
	require.ErrorIs(t, store.Get(ctx, "settings", &got), ErrNotFound)

	require.NoError(t, store.Set(ctx, "settings", sample{ID: "1", Name: "policy"}))
	require.NoError(t, store.Get(ctx, "settings", &got))
	assert.Equal(t, "policy", got.Name)
}

func TestJSONFileStoreListAppendReplace(t *testing.T) {
	dir := t.TempDir()
	store, err := NewJSONFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	var items []sample
	require.NoError(t, store.List(ctx, "files", &items))
	assert.Empty(t, items)

	require.NoError(t, store.Append(ctx, "files", sample{ID: "1", Name: "a"}))
	require.NoError(t, store.Append(ctx, "files", sample{ID: "2", Name: "b"}))

	reopened, err := NewJSONFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, reopened.List(ctx, "files", &items))
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].Name)
	assert.Equal(t, "b", items[1].Name)

	require.NoError(t, reopened.Replace(ctx, "files", []sample{{ID: "9", Name: "z"}}))
	require.NoError(t, reopened.List(ctx, "files", &items))
	assert.Equal(t, []sample{{ID: "9", Name: "z"}}, items)

	require.NoError(t, reopened.Replace(ctx, "files", nil))
	items = nil
	require.NoError(t, reopened.List(ctx, "files", &items))
	assert.Empty(t, items)
}

func TestJSONFileStoreRejectsUnsafeNames(t *testing.T) {
	store, err := NewJSONFileStore(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, store.Set(context.Background(), "../escape", 1))
	assert.Error(t, store.Append(context.Background(), "Files/x", 1))
}

func TestJSONFileStoreConcurrentAppend(t *testing.T) {
	store, err := NewJSONFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, store.Append(ctx, "users", sample{ID: fmt.Sprint(i)}))
		}(i)
	}
	wg.Wait()

	var items []sample
	require.NoError(t, store.List(ctx, "users", &items))
	assert.Len(t, items, 50)
}
