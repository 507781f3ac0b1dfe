package jobmgr

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuplicateStartRejected(t *testing.T) {
	m := NewManager(nil)
	release := make(chan struct{})

	require.NoError(t, m.Start("scrape", func(ctx context.Context) error {
		<-release
		return nil
	}))
	assert.Error(t, m.Start("scrape", func(ctx context.Context) error { return nil }))
	assert.True(t, m.Running("scrape"))

	close(release)
	require.Eventually(t, func() bool { return !m.Running("scrape") }, time.Second, time.Millisecond)

	// Name is reusable once the first run finishes.
	assert.NoError(t, m.Start("scrape", func(ctx context.Context) error { return nil }))
}

func TestStopCancelsRunner(t *testing.T) {
	m := NewManager(nil)
	done := make(chan struct{})

	require.NoError(t, m.Start("watch", func(ctx context.Context) error {
		<-ctx.Done()
		close(done)
		return nil
	}))
	require.NoError(t, m.Stop("watch"))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner context was not canceled")
	}
	assert.Error(t, m.Stop("watch"), "second stop has nothing to stop")
}

func TestReporterSeesLifecycle(t *testing.T) {
	var mu sync.Mutex
	var events []string
	m := NewManager(func(e string) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})

	require.NoError(t, m.Start("ok", func(ctx context.Context) error { return nil }))
	require.NoError(t, m.Start("bad", func(ctx context.Context) error { return errors.New("boom") }))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 4
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, events, "running:ok")
	assert.Contains(t, events, "done:ok")
	assert.Contains(t, events, "error:bad:boom")
}

func TestListIsSorted(t *testing.T) {
	m := NewManager(nil)
	release := make(chan struct{})
	defer close(release)

	for _, name := range []string{"b", "a", "c"} {
		require.NoError(t, m.Start(name, func(ctx context.Context) error {
			<-release
			return nil
		}))
	}
	assert.Equal(t, []string{"a", "b", "c"}, m.List())
}
