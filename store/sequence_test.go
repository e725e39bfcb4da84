package store_test

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/collection-server/store"
)

func TestFileSequencer(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		content *string
		want    int64
	}{
		{name: "missing file", content: nil, want: 1},
		{name: "empty file", content: ptr(""), want: 1},
		{name: "non-numeric", content: ptr("banana"), want: 1},
		{name: "negative", content: ptr("-4"), want: 1},
		{name: "existing counter", content: ptr("41"), want: 42},
		{name: "trailing newline", content: ptr("9\n"), want: 10},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fsys := afero.NewMemMapFs()
			if tc.content != nil {
				require.NoError(t, afero.WriteFile(fsys, "/d/index/c_ids.json", []byte(*tc.content), 0o644))
			}
			seq := store.NewFileSequencer(fsys, "/d")

			got, err := seq.Next(ctx, "c")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)

			cur, err := seq.Current(ctx, "c")
			require.NoError(t, err)
			assert.Equal(t, tc.want, cur)

			raw, err := afero.ReadFile(fsys, "/d/index/c_ids.json")
			require.NoError(t, err)
			assert.Equal(t, []byte(strconv.FormatInt(tc.want, 10)), raw)
		})
	}
}

func TestFileSequencerIsPerCollection(t *testing.T) {
	ctx := context.Background()
	seq := store.NewFileSequencer(afero.NewMemMapFs(), "/d")

	for want := int64(1); want <= 3; want++ {
		got, err := seq.Next(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	got, err := seq.Next(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestFileSequencerConcurrent(t *testing.T) {
	ctx := context.Background()
	seq := store.NewFileSequencer(afero.NewMemMapFs(), "/d")

	const n = 50
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[int64]int{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := seq.Next(ctx, "hot")
			assert.NoError(t, err)
			mu.Lock()
			seen[id]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
	for id := int64(1); id <= n; id++ {
		assert.Equal(t, 1, seen[id], "id %d", id)
	}
}

func TestFileSequencerWriteFailure(t *testing.T) {
	seq := store.NewFileSequencer(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/d")
	_, err := seq.Next(context.Background(), "c")
	assert.Error(t, err)
}

func TestFileSequencerUnreadableCounter(t *testing.T) {
	ctx := context.Background()
	base := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(base, "/d/index/c_ids.json", []byte("41"), 0o644))
	seq := store.NewFileSequencer(unreadableFs{Fs: base, path: "/d/index/c_ids.json"}, "/d")

	cur, err := seq.Current(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, int64(0), cur)

	_, err = seq.Next(ctx, "c")
	assert.ErrorIs(t, err, store.ErrStorageUnreadable)

	raw, err := afero.ReadFile(base, "/d/index/c_ids.json")
	require.NoError(t, err)
	assert.Equal(t, "41", string(raw))
}

func TestFileSequencerRejectsBadName(t *testing.T) {
	seq := store.NewFileSequencer(afero.NewMemMapFs(), "/d")
	_, err := seq.Next(context.Background(), "../escape")
	assert.ErrorIs(t, err, store.ErrInvalidCollection)
}

func ptr(s string) *string { return &s }
