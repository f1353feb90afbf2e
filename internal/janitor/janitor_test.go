package janitor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/umbridge-gateway/internal/rendezvous"
)

func TestJanitor_RemovesStaleFilesWhenEnabled(t *testing.T) {
	dir := t.TempDir()
	stalePath := filepath.Join(dir, "url-1.txt")
	require.NoError(t, os.WriteFile(stalePath, []byte("http://x\n"), 0o644))
	require.NoError(t, os.Chtimes(stalePath, time.Now().Add(-time.Hour), time.Now().Add(-time.Hour)))

	r := rendezvous.New(dir, time.Millisecond)
	j := New(r, WithSweepInterval(10*time.Millisecond), WithStaleAge(time.Minute), WithRemove(true))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	j.Start(ctx)
	defer j.Stop()

	require.Eventually(t, func() bool {
		_, err := os.Stat(stalePath)
		return os.IsNotExist(err)
	}, time.Second, 10*time.Millisecond)
}

func TestJanitor_LeavesFreshFilesAlone(t *testing.T) {
	dir := t.TempDir()
	freshPath := filepath.Join(dir, "url-2.txt")
	require.NoError(t, os.WriteFile(freshPath, []byte("http://x\n"), 0o644))

	r := rendezvous.New(dir, time.Millisecond)
	j := New(r, WithSweepInterval(10*time.Millisecond), WithStaleAge(time.Minute), WithRemove(true))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	j.Start(ctx)

	time.Sleep(50 * time.Millisecond)
	j.Stop()

	_, err := os.Stat(freshPath)
	assert.NoError(t, err)
}

func TestJanitor_StopReturnsPromptly(t *testing.T) {
	dir := t.TempDir()
	r := rendezvous.New(dir, time.Millisecond)
	j := New(r, WithSweepInterval(time.Hour))

	j.Start(context.Background())

	done := make(chan struct{})
	go func() {
		j.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return promptly")
	}
}
