package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) handle(ctx context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return nil
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func TestWatcherHandlesSettledCSV(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := &Watcher{Dir: dir, Debounce: 50 * time.Millisecond, Handle: rec.handle}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	csvPath := filepath.Join(dir, "all_connections.csv")
	f, err := os.Create(csvPath)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := f.WriteString("organization,network,timestamp\n")
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	require.Eventually(t, func() bool { return len(rec.snapshot()) > 0 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(150 * time.Millisecond)

	paths := rec.snapshot()
	assert.Equal(t, []string{csvPath}, paths, "a burst of writes is handled once and non-CSV files are ignored")

	cancel()
	require.NoError(t, <-done)
}

func TestWatcherRequiresHandler(t *testing.T) {
	w := &Watcher{Dir: t.TempDir()}
	assert.Error(t, w.Run(context.Background()))
}

func TestWatcherMissingDirectory(t *testing.T) {
	w := &Watcher{Dir: filepath.Join(t.TempDir(), "missing"), Handle: (&recorder{}).handle}
	assert.Error(t, w.Run(context.Background()))
}
