// Package session gives every minigame a uniform, race-free way to hold at
// most one live game per scope (a guild, or the whole process), with all of
// the game's timers owned by the session so teardown can never leak one.
package session

import (
	"fmt"
	"sync"
	"time"
)

// Scope says how sessions are keyed.
type Scope int

const (
	// ScopeGuild allows one session per guild.
	ScopeGuild Scope = iota
	// ScopeGlobal allows one session for the whole process.
	ScopeGlobal
)

// globalKey occupies the single slot of a ScopeGlobal manager.
const globalKey = "*"

// Session is one live minigame instance. State is owned exclusively by the
// game module; the manager only sees the envelope.
type Session struct {
	Key       string
	GuildID   string
	ChannelID string
	OwnerID   string
	OwnerName string
	StartedAt time.Time
	Timers    *Bag
	State     any
}

// ConflictError is the normal rejection when a scope slot is occupied. It
// carries enough to print "already running in #channel, started by @user".
type ConflictError struct {
	Game      string
	ChannelID string
	OwnerID   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("a %s is already running in <#%s>, started by <@%s>", e.Game, e.ChannelID, e.OwnerID)
}

// Manager holds the scope-keyed session table for one game. The table is
// mutated only through TryStart and Stop, both under one mutex, so two
// near-simultaneous starts can never both win.
type Manager struct {
	game  string
	scope Scope
	clock Clock

	mu     sync.Mutex
	active map[string]*Session
}

// NewManager builds a manager for one game. Pass SystemClock outside tests.
func NewManager(game string, scope Scope, clock Clock) *Manager {
	return &Manager{
		game:   game,
		scope:  scope,
		clock:  clock,
		active: make(map[string]*Session),
	}
}

// Game returns the game name the manager was built for.
func (m *Manager) Game() string { return m.game }

// Clock returns the manager's clock, so game code schedules on the same time
// source its sessions do.
func (m *Manager) Clock() Clock { return m.clock }

func (m *Manager) key(guildID string) string {
	if m.scope == ScopeGlobal {
		return globalKey
	}
	return guildID
}

// TryStart installs a new session if the scope slot is free. Occupied slots
// return a *ConflictError naming the existing session; that is an expected
// outcome, not a failure.
func (m *Manager) TryStart(guildID, channelID, ownerID, ownerName string, state any) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := m.key(guildID)
	if cur, ok := m.active[k]; ok {
		return nil, &ConflictError{Game: m.game, ChannelID: cur.ChannelID, OwnerID: cur.OwnerID}
	}

	s := &Session{
		Key:       k,
		GuildID:   guildID,
		ChannelID: channelID,
		OwnerID:   ownerID,
		OwnerName: ownerName,
		StartedAt: m.clock.Now(),
		Timers:    NewBag(m.clock),
		State:     state,
	}
	m.active[k] = s
	return s, nil
}

// Get returns the live session for a guild, or nil.
func (m *Manager) Get(guildID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[m.key(guildID)]
}

// Active reports whether a session occupies the guild's scope slot.
func (m *Manager) Active(guildID string) bool {
	return m.Get(guildID) != nil
}

// Stop shuts down the guild's session: every timer in its bag is canceled,
// then the slot is freed. Stopping an empty slot is a no-op, so every
// terminal path (natural end, cancel, game over) can call it unconditionally.
func (m *Manager) Stop(guildID string) {
	m.mu.Lock()
	k := m.key(guildID)
	s := m.active[k]
	delete(m.active, k)
	m.mu.Unlock()

	if s != nil {
		s.Timers.shutdown()
	}
}

// CanManage reports whether the acting user may manage a session: the
// session owner always can, and so can a guild admin. Every game routes its
// management commands through this one check.
func CanManage(s *Session, userID string, isGuildAdmin bool) bool {
	return s != nil && (s.OwnerID == userID || isGuildAdmin)
}

// RequireSameChannel rejects management of a session from any channel other
// than the one it is bound to, returning a pointer to the right place.
func RequireSameChannel(s *Session, channelID string) error {
	if s.ChannelID != channelID {
		return fmt.Errorf("that game lives in <#%s>, manage it there", s.ChannelID)
	}
	return nil
}
