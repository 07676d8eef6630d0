package session

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"docqa/llm"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(id string) Record {
	return Record{
		ID:             id,
		EmbeddingModel: "text-embedding-3-small",
		Mode:           llm.ModeSentenceWindow,
		CreatedAt:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func registries(t *testing.T) map[string]Registry {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return map[string]Registry{
		"file":  NewFileRegistry(filepath.Join(t.TempDir(), DefaultFile)),
		"redis": NewRedisRegistry(client, ""),
	}
}

func TestRegistryRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(ctx)
			assert.ErrorIs(t, err, llm.ErrNotFound)

			require.NoError(t, reg.Register(ctx, testRecord("first")))
			require.NoError(t, reg.Register(ctx, testRecord("second")))

			rec, err := reg.Resolve(ctx)
			require.NoError(t, err)
			assert.Equal(t, testRecord("second"), rec)

			require.NoError(t, reg.Clear(ctx))
			require.NoError(t, reg.Clear(ctx))
			_, err = reg.Resolve(ctx)
			assert.ErrorIs(t, err, llm.ErrNotFound)
		})
	}
}

func TestRegistryRejectsEmptyID(t *testing.T) {
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, reg.Register(context.Background(), Record{}))
		})
	}
}

func TestFileRegistryFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	reg := NewFileRegistry(path)
	require.NoError(t, reg.Register(context.Background(), testRecord("abc")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abc\nembedding_model=text-embedding-3-small\nmode=sentence-window\ncreated_at=2024-05-01T12:00:00Z\n", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileRegistryPlainID(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte("  legacy-id \n"), 0o644))

	rec, err := NewFileRegistry(path).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Record{ID: "legacy-id"}, rec)
}

func TestFileRegistryEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte("\n\n"), 0o644))

	_, err := NewFileRegistry(path).Resolve(context.Background())
	assert.ErrorIs(t, err, llm.ErrNotFound)
}

func TestFileRegistryConcurrentWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	reg := NewFileRegistry(path)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			assert.NoError(t, reg.Register(ctx, testRecord(id)))
		}(id)
	}
	wg.Wait()

	rec, err := reg.Resolve(ctx)
	require.NoError(t, err)
	assert.Contains(t, []string{"a", "b", "c", "d"}, rec.ID)
	assert.Equal(t, "text-embedding-3-small", rec.EmbeddingModel)
}
