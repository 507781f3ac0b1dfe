package storage

import (
	"context"
	"database/sql"
)

// Giveaway is one durable giveaway row, keyed by the board message id.
type Giveaway struct {
	MessageID       string        `db:"message_id"`
	GuildID         string        `db:"guild_id"`
	ChannelID       string        `db:"channel_id"`
	OwnerID         string        `db:"owner_id"`
	Prize           string        `db:"prize"`
	Entrants        UserIDs       `db:"entrants"`
	Winners         UserIDs       `db:"winners"`
	StartsAt        int64         `db:"starts_at"`
	EndsAt          int64         `db:"ends_at"`
	CompletedAt     sql.NullInt64 `db:"completed_at"`
	Canceled        bool          `db:"canceled"`
	RequireVerified bool          `db:"require_verified"`
}

// UpsertGiveaway inserts or replaces a giveaway row.
func (s *Storage) UpsertGiveaway(ctx context.Context, g *Giveaway) error {
	if g.Entrants == nil {
		g.Entrants = UserIDs{}
	}
	if g.Winners == nil {
		g.Winners = UserIDs{}
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO giveaways
			(message_id, guild_id, channel_id, owner_id, prize, entrants, winners,
			 starts_at, ends_at, completed_at, canceled, require_verified)
		VALUES
			(:message_id, :guild_id, :channel_id, :owner_id, :prize, :entrants, :winners,
			 :starts_at, :ends_at, :completed_at, :canceled, :require_verified)
		ON DUPLICATE KEY UPDATE
			entrants = VALUES(entrants),
			winners = VALUES(winners),
			ends_at = VALUES(ends_at),
			completed_at = VALUES(completed_at),
			canceled = VALUES(canceled)`, g)
	return err
}

// Giveaway fetches one row by message id.
func (s *Storage) Giveaway(ctx context.Context, messageID string) (*Giveaway, error) {
	var g Giveaway
	err := s.db.GetContext(ctx, &g, `SELECT * FROM giveaways WHERE message_id = ?`, messageID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// OpenGiveaways returns every non-terminal giveaway, for boot reconciliation.
func (s *Storage) OpenGiveaways(ctx context.Context) ([]*Giveaway, error) {
	var out []*Giveaway
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM giveaways WHERE completed_at IS NULL AND canceled = FALSE`)
	return out, err
}

// AddGiveawayEntrant appends a user to the entrant list. The append, the
// duplicate check, and the still-open check are one statement: event handlers
// run on separate goroutines, and a read-modify-write here would let two
// near-simultaneous presses overwrite each other's entry, or let one land on
// a row that just finalized. Returns false when nothing changed, which covers
// both "already entered" and "no longer open".
func (s *Storage) AddGiveawayEntrant(ctx context.Context, messageID, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE giveaways
		SET entrants = JSON_ARRAY_APPEND(entrants, '$', ?)
		WHERE message_id = ? AND completed_at IS NULL AND canceled = FALSE
		  AND NOT JSON_CONTAINS(entrants, JSON_QUOTE(?))`,
		userID, messageID, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CompleteGiveaway marks a row terminal and records its winners.
func (s *Storage) CompleteGiveaway(ctx context.Context, messageID string, winners []string, at int64) error {
	return s.exec(ctx,
		`UPDATE giveaways SET winners = ?, completed_at = ? WHERE message_id = ?`,
		UserIDs(winners), at, messageID)
}

// CancelGiveaway marks a row canceled and terminal.
func (s *Storage) CancelGiveaway(ctx context.Context, messageID string, at int64) error {
	return s.exec(ctx,
		`UPDATE giveaways SET canceled = TRUE, completed_at = ? WHERE message_id = ?`,
		at, messageID)
}
