package storage

import (
	"context"
	"database/sql"
)

// ScheduledCommand is one durable scheduled-command row.
type ScheduledCommand struct {
	ID          int64         `db:"id"`
	GuildID     string        `db:"guild_id"`
	ChannelID   string        `db:"channel_id"`
	CreatorID   string        `db:"creator_id"`
	Command     string        `db:"command"` // full text, prefix included
	RunAt       int64         `db:"run_at"`
	CompletedAt sql.NullInt64 `db:"completed_at"`
	Canceled    bool          `db:"canceled"`
}

// InsertScheduledCommand stores a new row and fills in its id.
func (s *Storage) InsertScheduledCommand(ctx context.Context, sc *ScheduledCommand) error {
	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO scheduled_commands
			(guild_id, channel_id, creator_id, command, run_at, completed_at, canceled)
		VALUES
			(:guild_id, :channel_id, :creator_id, :command, :run_at, :completed_at, :canceled)`, sc)
	if err != nil {
		return err
	}
	sc.ID, err = res.LastInsertId()
	return err
}

// OpenScheduledCommands returns every non-terminal row, for boot reconciliation.
func (s *Storage) OpenScheduledCommands(ctx context.Context) ([]*ScheduledCommand, error) {
	var out []*ScheduledCommand
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM scheduled_commands WHERE completed_at IS NULL AND canceled = FALSE`)
	return out, err
}

// GuildScheduledCommands returns a guild's pending rows, soonest first.
func (s *Storage) GuildScheduledCommands(ctx context.Context, guildID string) ([]*ScheduledCommand, error) {
	var out []*ScheduledCommand
	err := s.db.SelectContext(ctx, &out, `
		SELECT * FROM scheduled_commands
		WHERE guild_id = ? AND completed_at IS NULL AND canceled = FALSE
		ORDER BY run_at`, guildID)
	return out, err
}

// CompleteScheduledCommand marks a row terminal.
func (s *Storage) CompleteScheduledCommand(ctx context.Context, id int64, at int64) error {
	return s.exec(ctx, `UPDATE scheduled_commands SET completed_at = ? WHERE id = ?`, at, id)
}

// CancelScheduledCommand marks a row canceled and terminal.
func (s *Storage) CancelScheduledCommand(ctx context.Context, id int64, at int64) error {
	return s.exec(ctx,
		`UPDATE scheduled_commands SET canceled = TRUE, completed_at = ? WHERE id = ?`, at, id)
}
