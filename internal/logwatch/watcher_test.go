// ABOUTME: Tests for the exploration log watcher
// ABOUTME: Covers incremental tailing, fatal hook firing and the final scan on Close

package logwatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fatalBlock = "12-01 10:00:01 [Fastbot][1234] Internal error\n" +
	"java.lang.NullPointerException\n\tat com.bytedance.fastbot.Agent.step\n"

const completionBlock = "12-01 10:05:00 // Monkey is over!\n" +
	"Events injected: 1200\n:Dropped: keys=0 pointers=3 trackballs=0\n"

func appendLog(t *testing.T, path, text string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(text)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func newTestWatcher(t *testing.T, path string, fatal chan error) *Watcher {
	t.Helper()
	return New(path, Options{
		PollInterval: 20 * time.Millisecond,
		OnFatal: func(err error) {
			fatal <- err
		},
	})
}

func TestWatcher_FatalFiresHook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fastbot.log")
	appendLog(t, path, "starting exploration\n")

	fatal := make(chan error, 4)
	w := newTestWatcher(t, path, fatal)
	require.NoError(t, w.Start(context.Background()))
	defer w.Close()

	appendLog(t, path, fatalBlock)

	select {
	case err := <-fatal:
		var fe *FatalError
		require.ErrorAs(t, err, &fe)
		assert.Contains(t, fe.Body, "NullPointerException")
	case <-time.After(2 * time.Second):
		t.Fatal("fatal hook not invoked")
	}

	// The hook fires once even though later polls still match.
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, fatal)
}

func TestWatcher_CompletionIsNotFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fastbot.log")

	fatal := make(chan error, 1)
	w := newTestWatcher(t, path, fatal)
	require.NoError(t, w.Start(context.Background()))

	appendLog(t, path, "step 1\nstep 2\n")
	appendLog(t, path, completionBlock)

	require.Eventually(t, func() bool { return w.Summary() != "" }, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, w.Summary(), "Dropped: keys=0")
	assert.NoError(t, w.Close())
	assert.Empty(t, fatal)
}

func TestWatcher_MarkerSplitAcrossWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fastbot.log")
	w := New(path, Options{OnFatal: func(error) {}})

	appendLog(t, path, "10:00 [Fastbot][1] Internal")
	assert.Nil(t, w.scan())

	appendLog(t, path, " error\nstack line\n")
	fe := w.scan()
	require.NotNil(t, fe)
	assert.Equal(t, "stack line", fe.Body)
}

func TestWatcher_EmptyFatalBodyIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fastbot.log")
	appendLog(t, path, "[Fastbot][1] Internal error\n   \n")

	w := New(path, Options{OnFatal: func(error) {}})
	assert.NoError(t, w.Close())
}

func TestWatcher_CloseRunsFinalScan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fastbot.log")

	w := New(path, Options{
		PollInterval: time.Hour,
		OnFatal:      func(error) {},
	})
	require.NoError(t, w.Start(context.Background()))

	appendLog(t, path, fatalBlock)

	err := w.Close()
	var fe *FatalError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Body, "NullPointerException")

	// Idempotent.
	assert.Error(t, w.Close())
}

func TestWatcher_MissingFile(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "absent.log"), Options{})
	assert.NoError(t, w.Close())
	assert.Empty(t, w.Summary())
	assert.NoError(t, w.Err())
}

func TestWatcher_StartTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fastbot.log")
	w := New(path, Options{OnFatal: func(error) {}})
	require.NoError(t, w.Start(context.Background()))
	defer w.Close()

	assert.ErrorIs(t, w.Start(context.Background()), ErrAlreadyStarted)
}

func TestWatcher_StopsOnContextCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fastbot.log")
	w := New(path, Options{PollInterval: 10 * time.Millisecond, OnFatal: func(error) {}})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	cancel()

	select {
	case <-w.finished:
	case <-time.After(time.Second):
		t.Fatal("watcher goroutine did not exit")
	}
	assert.NoError(t, w.Close())
}
