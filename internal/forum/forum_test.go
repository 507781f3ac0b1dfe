package forum

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"spectreon/internal/registry"
	"spectreon/pkg/retrylimit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feed = `<?xml version="1.0"?>
<rss version="2.0">
<channel>
<item><title>Delta Scyther appreciation</title><link>https://f/t/101</link><creator>ash</creator><guid>t-101</guid></item>
<item><title>Nuzlocke rules</title><link>https://f/t/102</link><creator>misty</creator><guid>t-102</guid></item>
<item><title>no link, skipped</title><guid>t-x</guid></item>
</channel>
</rss>`

func TestRSSParser(t *testing.T) {
	threads, err := RSSParser{}.Threads([]byte(feed))
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, Thread{ID: "t-101", Title: "Delta Scyther appreciation", Author: "ash", URL: "https://f/t/101"}, threads[0])

	_, err = RSSParser{}.Threads([]byte("<not-xml"))
	assert.Error(t, err)
}

// fakeFetch serves a mutable body and counts calls.
type fakeFetch struct {
	mu    sync.Mutex
	body  string
	calls int
	err   error
}

func (ff *fakeFetch) fetch(_ context.Context, _ string) ([]byte, error) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	ff.calls++
	if ff.err != nil {
		return nil, ff.err
	}
	return []byte(ff.body), nil
}

func (ff *fakeFetch) set(body string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	ff.body = body
}

func newScraper(ff *fakeFetch) *Scraper {
	s := New("https://f", RSSParser{})
	s.fetch = ff.fetch
	s.watchTick = 5 * time.Millisecond
	s.limiter = retrylimit.NewLimiter(10000, 100)
	return s
}

func TestLatestCaches(t *testing.T) {
	ff := &fakeFetch{body: feed}
	s := newScraper(ff)

	first, err := s.Latest(context.Background())
	require.NoError(t, err)
	assert.Len(t, first, 2)

	_, err = s.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, ff.calls, "second call should come from cache")
}

func TestLatestSurfacesFetchFailure(t *testing.T) {
	ff := &fakeFetch{err: errors.New("connection refused")}
	s := newScraper(ff)

	_, err := s.Latest(context.Background())
	assert.ErrorContains(t, err, "failed to fetch forum index")
}

func TestWatchAnnouncesOnlyNewThreads(t *testing.T) {
	ff := &fakeFetch{body: feed}
	s := newScraper(ff)

	var mu sync.Mutex
	var got []string
	err := s.Watch("w1", func(th Thread) {
		mu.Lock()
		got = append(got, th.ID)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer func() { _ = s.Unwatch("w1") }()

	// Existing threads are primed as seen, so nothing announces yet.
	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	assert.Empty(t, got)
	mu.Unlock()

	ff.set(`<?xml version="1.0"?><rss><channel>
<item><title>Fresh</title><link>https://f/t/103</link><creator>brock</creator><guid>t-103</guid></item>
<item><title>Old</title><link>https://f/t/101</link><creator>ash</creator><guid>t-101</guid></item>
</channel></rss>`)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && got[0] == "t-103"
	}, time.Second, 5*time.Millisecond)
}

func TestSecondWatchForSameNameRejected(t *testing.T) {
	s := newScraper(&fakeFetch{body: feed})

	require.NoError(t, s.Watch("w1", func(Thread) {}))
	defer func() { _ = s.Unwatch("w1") }()

	assert.Error(t, s.Watch("w1", func(Thread) {}))
	assert.True(t, s.Watching("w1"))
	assert.Equal(t, []string{"w1"}, s.Jobs())
}

func TestCommandStatusAndGating(t *testing.T) {
	s := newScraper(&fakeFetch{body: feed})
	f := RegisterCommands(registry.New(nil), s)
	var lines []string
	f.say = func(_, text string) { lines = append(lines, text) }

	user := &registry.MessageContext{
		Actor: registry.ActorContext{GuildID: "g1", ChannelID: "c1", UserID: "u1"},
		Rest:  "watch",
	}
	require.NoError(t, f.handle(user))
	assert.Contains(t, lines[len(lines)-1], "admin")

	admin := &registry.MessageContext{
		Actor: registry.ActorContext{GuildID: "g1", ChannelID: "c1", UserID: "a1", IsGuildAdmin: true},
		Rest:  "watch",
	}
	require.NoError(t, f.handle(admin))
	assert.Contains(t, lines[len(lines)-1], "Watching")

	admin.Rest = "status"
	require.NoError(t, f.handle(admin))
	assert.Contains(t, lines[len(lines)-1], "is running")

	admin.Rest = "unwatch"
	require.NoError(t, f.handle(admin))
	assert.Contains(t, lines[len(lines)-1], "stopped")
}
