package filestore

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetMissing(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Get(context.Background(), "members.csv")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsNotFound(err))
}

func TestMemoryStore_CreateThenUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	v1, err := s.Put(ctx, "members.csv", []byte("header\n"), "create", "")
	require.NoError(t, err)
	assert.Equal(t, ContentVersion([]byte("header\n")), v1)

	f, err := s.Get(ctx, "members.csv")
	require.NoError(t, err)
	assert.Equal(t, "header\n", string(f.Content))
	assert.Equal(t, v1, f.Version)

	v2, err := s.Put(ctx, "members.csv", []byte("header\nrow\n"), "append", v1)
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)
	assert.Equal(t, []string{"create", "append"}, s.History("members.csv"))
}

func TestMemoryStore_RejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	v1, err := s.Put(ctx, "members.csv", []byte("a\n"), "create", "")
	require.NoError(t, err)
	_, err = s.Put(ctx, "members.csv", []byte("a\nb\n"), "first", v1)
	require.NoError(t, err)

	_, err = s.Put(ctx, "members.csv", []byte("a\nc\n"), "second", v1)
	assert.ErrorIs(t, err, ErrVersionMismatch)

	f, err := s.Get(ctx, "members.csv")
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", string(f.Content))
}

func TestMemoryStore_CreateOverExistingFails(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Put(ctx, "members.csv", []byte("a\n"), "create", "")
	require.NoError(t, err)

	_, err = s.Put(ctx, "members.csv", []byte("b\n"), "create again", "")
	assert.True(t, IsVersionMismatch(err))
}

func TestMemoryStore_UpdateMissingFails(t *testing.T) {
	_, err := NewMemoryStore().Put(context.Background(), "members.csv", []byte("a\n"), "update", "deadbeef")
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

func TestMemoryStore_ConcurrentWritersSameVersion(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base, err := s.Put(ctx, "members.csv", []byte("h\n"), "create", "")
	require.NoError(t, err)

	const writers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			content := []byte("h\n" + string(rune('a'+i)) + "\n")
			if _, err := s.Put(ctx, "members.csv", content, "append", base); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes, "only one writer may commit against the same version")
}
