// Package settings keeps the per-guild mutable configuration: exposure
// overrides, channel policies, trade lists, and FAQ entries. One JSON record
// per guild lives in the file datastore; the zero record is valid, so a guild
// the bot has never seen behaves like one with defaults.
package settings

import (
	"fmt"
	"sync"

	"spectreon/datastore"
	"spectreon/internal/registry"
)

// GuildRecord is everything the bot remembers about one guild outside MySQL.
type GuildRecord struct {
	Exposure   map[string]string                `json:"exposure,omitempty"`    // logical id -> mode string
	Channels   map[string]registry.ChannelRule  `json:"channels,omitempty"`    // logical id -> rule
	TradeLists map[string][]TradeEntry          `json:"trade_lists,omitempty"` // user id -> entries
	FAQ        []FAQEntry                       `json:"faq,omitempty"`
}

// TradeEntry is one line of a user's for-trade list.
type TradeEntry struct {
	Pokemon string `json:"pokemon"`
	Note    string `json:"note,omitempty"`
}

// FAQEntry pairs trigger phrases with a canned answer.
type FAQEntry struct {
	Triggers []string `json:"triggers"`
	Answer   string   `json:"answer"`
}

// Store reads and writes guild records. It implements registry.PolicySource,
// so a saved exposure change is visible to the very next dispatch.
type Store struct {
	ds *datastore.DataStore
	mu sync.Mutex // serializes read-modify-write cycles on guild records
}

// New opens the settings store at filePath.
func New(filePath string) (*Store, error) {
	ds, err := datastore.New(filePath)
	if err != nil {
		return nil, err
	}
	return &Store{ds: ds}, nil
}

// Close flushes and closes the underlying datastore.
func (s *Store) Close() error { return s.ds.Close() }

// Guild returns the guild's record, zero-valued when absent. Stored records
// that fail to decode are a deployment defect and surface as an error.
func (s *Store) Guild(guildID string) (GuildRecord, error) {
	var rec GuildRecord
	if _, err := s.ds.Get(guildID, &rec); err != nil {
		return GuildRecord{}, err
	}
	return rec, nil
}

// update applies fn to the guild's record under the store lock and saves it.
func (s *Store) update(guildID string, fn func(*GuildRecord) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.Guild(guildID)
	if err != nil {
		return err
	}
	if err := fn(&rec); err != nil {
		return err
	}
	return s.ds.Put(guildID, rec)
}

// --- registry.PolicySource ---

// ExposureOverride returns the guild's mode override for a logical command.
// An unparsable stored mode counts as no override; Validate catches those at
// boot.
func (s *Store) ExposureOverride(guildID, logicalID string) (registry.Mode, bool) {
	rec, err := s.Guild(guildID)
	if err != nil {
		return registry.ModeOff, false
	}
	raw, ok := rec.Exposure[logicalID]
	if !ok {
		return registry.ModeOff, false
	}
	mode, err := registry.ParseMode(raw)
	if err != nil {
		return registry.ModeOff, false
	}
	return mode, true
}

// ChannelRule returns the guild's channel policy for a logical command.
func (s *Store) ChannelRule(guildID, logicalID string) (registry.ChannelRule, bool) {
	rec, err := s.Guild(guildID)
	if err != nil {
		return registry.ChannelRule{}, false
	}
	rule, ok := rec.Channels[logicalID]
	return rule, ok
}

// --- exposure management (admin commands) ---

// SetExposure stores a guild's mode override for a logical command.
func (s *Store) SetExposure(guildID, logicalID string, mode registry.Mode) error {
	return s.update(guildID, func(rec *GuildRecord) error {
		if rec.Exposure == nil {
			rec.Exposure = make(map[string]string)
		}
		rec.Exposure[logicalID] = mode.String()
		return nil
	})
}

// ClearExposure removes an override, falling back to the global default.
func (s *Store) ClearExposure(guildID, logicalID string) error {
	return s.update(guildID, func(rec *GuildRecord) error {
		delete(rec.Exposure, logicalID)
		return nil
	})
}

// SetChannelRule stores a guild's channel policy for a logical command.
func (s *Store) SetChannelRule(guildID, logicalID string, rule registry.ChannelRule) error {
	return s.update(guildID, func(rec *GuildRecord) error {
		if rec.Channels == nil {
			rec.Channels = make(map[string]registry.ChannelRule)
		}
		rec.Channels[logicalID] = rule
		return nil
	})
}

// ClearChannelRule removes a channel policy.
func (s *Store) ClearChannelRule(guildID, logicalID string) error {
	return s.update(guildID, func(rec *GuildRecord) error {
		delete(rec.Channels, logicalID)
		return nil
	})
}

// Validate decodes and mode-checks every stored guild record. Run at boot so
// a malformed deployment aborts startup instead of misrouting at runtime.
func (s *Store) Validate() error {
	for _, guildID := range s.ds.Keys() {
		rec, err := s.Guild(guildID)
		if err != nil {
			return err
		}
		for logicalID, raw := range rec.Exposure {
			if _, err := registry.ParseMode(raw); err != nil {
				return fmt.Errorf("settings: guild %s, command %s: %w", guildID, logicalID, err)
			}
		}
	}
	return nil
}
