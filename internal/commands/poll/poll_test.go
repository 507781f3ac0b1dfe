package poll

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"spectreon/internal/registry"
	"spectreon/internal/session/sessiontest"
	"spectreon/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu   sync.Mutex
	rows map[string]*storage.Poll
}

func newFakeStore() *fakeStore { return &fakeStore{rows: make(map[string]*storage.Poll)} }

func (f *fakeStore) UpsertPoll(_ context.Context, p *storage.Poll) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.rows[p.MessageID] = &cp
	return nil
}

func (f *fakeStore) Poll(_ context.Context, messageID string) (*storage.Poll, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[messageID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) OpenPolls(_ context.Context) ([]*storage.Poll, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*storage.Poll
	for _, p := range f.rows {
		if p.CompletedAt.Valid || p.Canceled {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeStore) CastVote(_ context.Context, messageID, userID, option string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[messageID]
	if !ok {
		return fmt.Errorf("poll %s not found", messageID)
	}
	if p.CompletedAt.Valid || p.Canceled {
		return fmt.Errorf("poll %s is closed", messageID)
	}
	if p.Votes == nil {
		p.Votes = storage.Votes{}
	}
	for opt, voters := range p.Votes {
		for i, id := range voters {
			if id == userID {
				p.Votes[opt] = append(voters[:i], voters[i+1:]...)
				break
			}
		}
	}
	p.Votes[option] = append(p.Votes[option], userID)
	return nil
}

func (f *fakeStore) CompletePoll(_ context.Context, messageID string, at int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[messageID].CompletedAt.Valid = true
	f.rows[messageID].CompletedAt.Int64 = at
	return nil
}

func (f *fakeStore) CancelPoll(_ context.Context, messageID string, at int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[messageID].Canceled = true
	f.rows[messageID].CompletedAt.Valid = true
	f.rows[messageID].CompletedAt.Int64 = at
	return nil
}

func (f *fakeStore) row(messageID string) storage.Poll {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.rows[messageID]
}

func seed(t *testing.T, store *fakeStore, clock *sessiontest.Clock, in time.Duration) {
	t.Helper()
	require.NoError(t, store.UpsertPoll(context.Background(), &storage.Poll{
		MessageID: "m1",
		GuildID:   "g1",
		ChannelID: "c1",
		OwnerID:   "owner",
		Question:  "Best starter?",
		Options:   storage.Options{"Eevee", "Mew", "Gible"},
		EndsAt:    storage.Millis(clock.Now().Add(in)),
	}))
}

func TestTallyPicksMostVotedOption(t *testing.T) {
	p := &storage.Poll{
		Options: storage.Options{"a", "b", "c"},
		Votes: storage.Votes{
			"0": {"u1"},
			"1": {"u2", "u3", "u4"},
			"2": {"u5"},
		},
	}
	idx, voters, total := Tally(p)
	assert.Equal(t, 1, idx)
	assert.Equal(t, []string{"u2", "u3", "u4"}, voters)
	assert.Equal(t, 5, total)
}

func TestTallyTieBreaksTowardFirstOption(t *testing.T) {
	p := &storage.Poll{
		Options: storage.Options{"a", "b"},
		Votes:   storage.Votes{"0": {"u1"}, "1": {"u2"}},
	}
	idx, _, total := Tally(p)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 2, total)
}

func TestTallyEmptyPoll(t *testing.T) {
	p := &storage.Poll{Options: storage.Options{"a", "b"}}
	idx, voters, total := Tally(p)
	assert.Equal(t, 0, idx)
	assert.Empty(t, voters)
	assert.Zero(t, total)
}

func TestRevoteReplacesEarlierVote(t *testing.T) {
	store := newFakeStore()
	clock := sessiontest.NewClock()
	seed(t, store, clock, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.CastVote(ctx, "m1", "u1", "0"))
	require.NoError(t, store.CastVote(ctx, "m1", "u1", "2"))

	row := store.row("m1")
	assert.Empty(t, row.Votes["0"])
	assert.Equal(t, []string{"u1"}, row.Votes["2"])
}

func TestReconcileClosesAtOriginalDeadline(t *testing.T) {
	store := newFakeStore()
	clock := sessiontest.NewClock()
	seed(t, store, clock, 10*time.Minute)
	require.NoError(t, store.CastVote(context.Background(), "m1", "u1", "1"))

	clock.Advance(7 * time.Minute)
	f := New(registry.New(nil), store, clock)
	require.NoError(t, f.Reconcile(context.Background(), nil))

	clock.Advance(2 * time.Minute)
	assert.False(t, store.row("m1").CompletedAt.Valid)

	clock.Advance(1 * time.Minute)
	assert.True(t, store.row("m1").CompletedAt.Valid)
}

func TestDisarmedPollStaysCanceled(t *testing.T) {
	store := newFakeStore()
	clock := sessiontest.NewClock()
	seed(t, store, clock, 10*time.Minute)

	f := New(registry.New(nil), store, clock)
	require.NoError(t, f.Reconcile(context.Background(), nil))

	f.disarm("m1")
	require.NoError(t, store.CancelPoll(context.Background(), "m1", storage.Millis(clock.Now())))

	clock.Advance(time.Hour)
	row := store.row("m1")
	assert.True(t, row.Canceled)
}
