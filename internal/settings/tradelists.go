package settings

import "fmt"

const tradeListLimit = 25

// TradeList returns one user's for-trade entries.
func (s *Store) TradeList(guildID, userID string) ([]TradeEntry, error) {
	rec, err := s.Guild(guildID)
	if err != nil {
		return nil, err
	}
	return rec.TradeLists[userID], nil
}

// AddTrade appends an entry to a user's list.
func (s *Store) AddTrade(guildID, userID string, entry TradeEntry) error {
	return s.update(guildID, func(rec *GuildRecord) error {
		if rec.TradeLists == nil {
			rec.TradeLists = make(map[string][]TradeEntry)
		}
		list := rec.TradeLists[userID]
		if len(list) >= tradeListLimit {
			return fmt.Errorf("trade list is full (%d entries max)", tradeListLimit)
		}
		rec.TradeLists[userID] = append(list, entry)
		return nil
	})
}

// RemoveTrade deletes the 1-based entry n from a user's list.
func (s *Store) RemoveTrade(guildID, userID string, n int) (TradeEntry, error) {
	var removed TradeEntry
	err := s.update(guildID, func(rec *GuildRecord) error {
		list := rec.TradeLists[userID]
		if n < 1 || n > len(list) {
			return fmt.Errorf("no trade entry #%d", n)
		}
		removed = list[n-1]
		rec.TradeLists[userID] = append(list[:n-1], list[n:]...)
		if len(rec.TradeLists[userID]) == 0 {
			delete(rec.TradeLists, userID)
		}
		return nil
	})
	return removed, err
}

// FAQEntries returns the guild's configured FAQ entries.
func (s *Store) FAQEntries(guildID string) ([]FAQEntry, error) {
	rec, err := s.Guild(guildID)
	if err != nil {
		return nil, err
	}
	return rec.FAQ, nil
}

// SetFAQEntries replaces the guild's FAQ entries wholesale.
func (s *Store) SetFAQEntries(guildID string, entries []FAQEntry) error {
	return s.update(guildID, func(rec *GuildRecord) error {
		rec.FAQ = entries
		return nil
	})
}
