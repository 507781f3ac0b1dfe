package giveaway

import (
	"context"
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
	rows map[string]*storage.Giveaway
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]*storage.Giveaway)}
}

func (f *fakeStore) UpsertGiveaway(_ context.Context, g *storage.Giveaway) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *g
	f.rows[g.MessageID] = &cp
	return nil
}

func (f *fakeStore) Giveaway(_ context.Context, messageID string) (*storage.Giveaway, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.rows[messageID]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

func (f *fakeStore) OpenGiveaways(_ context.Context) ([]*storage.Giveaway, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*storage.Giveaway
	for _, g := range f.rows {
		if g.CompletedAt.Valid || g.Canceled {
			continue
		}
		cp := *g
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeStore) AddGiveawayEntrant(_ context.Context, messageID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.rows[messageID]
	if !ok || g.CompletedAt.Valid || g.Canceled {
		return false, nil
	}
	for _, id := range g.Entrants {
		if id == userID {
			return false, nil
		}
	}
	g.Entrants = append(g.Entrants, userID)
	return true, nil
}

func (f *fakeStore) CompleteGiveaway(_ context.Context, messageID string, winners []string, at int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := f.rows[messageID]
	g.Winners = winners
	g.CompletedAt.Valid = true
	g.CompletedAt.Int64 = at
	return nil
}

func (f *fakeStore) CancelGiveaway(_ context.Context, messageID string, at int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := f.rows[messageID]
	g.Canceled = true
	g.CompletedAt.Valid = true
	g.CompletedAt.Int64 = at
	return nil
}

func (f *fakeStore) row(messageID string) storage.Giveaway {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.rows[messageID]
}

func seed(t *testing.T, store *fakeStore, clock *sessiontest.Clock, messageID string, in time.Duration, entrants ...string) {
	t.Helper()
	require.NoError(t, store.UpsertGiveaway(context.Background(), &storage.Giveaway{
		MessageID: messageID,
		GuildID:   "g1",
		ChannelID: "c1",
		OwnerID:   "owner",
		Prize:     "Master Ball",
		Entrants:  storage.UserIDs(entrants),
		StartsAt:  storage.Millis(clock.Now()),
		EndsAt:    storage.Millis(clock.Now().Add(in)),
	}))
}

func TestReconcileFinalizesAtOriginalDeadline(t *testing.T) {
	store := newFakeStore()
	clock := sessiontest.NewClock()
	seed(t, store, clock, "m1", 10*time.Minute, "u1", "u2", "u3")

	// Seven minutes in, the process restarts and reconciles from the rows.
	clock.Advance(7 * time.Minute)
	f := New(registry.New(nil), store, clock)
	require.NoError(t, f.Reconcile(context.Background(), nil))

	clock.Advance(2 * time.Minute)
	assert.False(t, store.row("m1").CompletedAt.Valid, "should wait out the original deadline")

	clock.Advance(1 * time.Minute)
	row := store.row("m1")
	require.True(t, row.CompletedAt.Valid)
	require.Len(t, row.Winners, 1)
	assert.Contains(t, []string{"u1", "u2", "u3"}, row.Winners[0])
}

func TestReconcileFinalizesOverdueImmediately(t *testing.T) {
	store := newFakeStore()
	clock := sessiontest.NewClock()
	seed(t, store, clock, "m1", -time.Hour, "u1")

	f := New(registry.New(nil), store, clock)
	require.NoError(t, f.Reconcile(context.Background(), nil))

	clock.Advance(0)
	row := store.row("m1")
	assert.True(t, row.CompletedAt.Valid)
	assert.Equal(t, storage.UserIDs{"u1"}, row.Winners)
}

func TestFinalizeWithoutEntrants(t *testing.T) {
	store := newFakeStore()
	clock := sessiontest.NewClock()
	seed(t, store, clock, "m1", time.Minute)

	f := New(registry.New(nil), store, clock)
	require.NoError(t, f.Reconcile(context.Background(), nil))

	clock.Advance(time.Minute)
	row := store.row("m1")
	assert.True(t, row.CompletedAt.Valid)
	assert.Empty(t, row.Winners)
	assert.False(t, row.Canceled)
}

func TestDisarmedGiveawayDoesNotFinalize(t *testing.T) {
	store := newFakeStore()
	clock := sessiontest.NewClock()
	seed(t, store, clock, "m1", 10*time.Minute, "u1")

	f := New(registry.New(nil), store, clock)
	require.NoError(t, f.Reconcile(context.Background(), nil))

	f.disarm("m1")
	require.NoError(t, store.CancelGiveaway(context.Background(), "m1", storage.Millis(clock.Now())))

	clock.Advance(time.Hour)
	row := store.row("m1")
	assert.True(t, row.Canceled)
	assert.Empty(t, row.Winners)
}

func TestCompletedRowsAreNotRearmed(t *testing.T) {
	store := newFakeStore()
	clock := sessiontest.NewClock()
	seed(t, store, clock, "m1", time.Minute, "u1")
	require.NoError(t, store.CompleteGiveaway(context.Background(), "m1", []string{"u1"}, storage.Millis(clock.Now())))

	f := New(registry.New(nil), store, clock)
	require.NoError(t, f.Reconcile(context.Background(), nil))
	assert.Empty(t, f.armed)
}
