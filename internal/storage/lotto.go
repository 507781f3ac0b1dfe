package storage

import "context"

// BumpLottoCount increments a user's message counter for lotto eligibility.
func (s *Storage) BumpLottoCount(ctx context.Context, guildID, userID string) error {
	return s.exec(ctx, `
		INSERT INTO lotto_counts (guild_id, user_id, messages)
		VALUES (?, ?, 1)
		ON DUPLICATE KEY UPDATE messages = messages + 1`, guildID, userID)
}

// LottoCount returns one user's message counter.
func (s *Storage) LottoCount(ctx context.Context, guildID, userID string) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, `
		SELECT COALESCE(SUM(messages), 0) FROM lotto_counts
		WHERE guild_id = ? AND user_id = ?`, guildID, userID)
	return n, err
}

// LottoEligible returns users with at least min messages in a guild.
func (s *Storage) LottoEligible(ctx context.Context, guildID string, min int64) ([]string, error) {
	var out []string
	err := s.db.SelectContext(ctx, &out, `
		SELECT user_id FROM lotto_counts
		WHERE guild_id = ? AND messages >= ?
		ORDER BY user_id`, guildID, min)
	return out, err
}

// ResetLottoCounts clears a guild's counters after a drawing.
func (s *Storage) ResetLottoCounts(ctx context.Context, guildID string) error {
	return s.exec(ctx, `DELETE FROM lotto_counts WHERE guild_id = ?`, guildID)
}
