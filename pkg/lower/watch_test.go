package lower

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestChangeWatcherDetectsCreateAndRemove(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	cw, err := NewChangeWatcher(dir)
	require.NoError(t, err)
	defer cw.Close()

	var mu sync.Mutex
	var got []ChangeEvent
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cw.Run(ctx, func(ev ChangeEvent) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev)
	})

	filePath := filepath.Join(dir, "sub", "new.txt")
	require.NoError(t, os.WriteFile(filePath, []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, ev := range got {
			if ev.Path == "/sub/new.txt" && !ev.Removed {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(filePath))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, ev := range got {
			if ev.Path == "/sub/new.txt" && ev.Removed {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHostFsProviderRoot(t *testing.T) {
	dir := t.TempDir()
	p := NewHostFsProvider(dir)
	require.Equal(t, filepath.Clean(dir), p.Root())
}
