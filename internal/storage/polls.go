package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Options is a JSON-array-of-strings column holding poll answer options.
type Options []string

func (o Options) Value() (driver.Value, error) { return json.Marshal([]string(o)) }

func (o *Options) Scan(src any) error {
	raw, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("storage: cannot scan %T into Options", src)
	}
	return json.Unmarshal(raw, (*[]string)(o))
}

// Votes maps an option index (as a string key, JSON objects only key on
// strings) to the user ids who picked it.
type Votes map[string][]string

func (v Votes) Value() (driver.Value, error) {
	if v == nil {
		v = Votes{}
	}
	return json.Marshal(map[string][]string(v))
}

func (v *Votes) Scan(src any) error {
	raw, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("storage: cannot scan %T into Votes", src)
	}
	return json.Unmarshal(raw, (*map[string][]string)(v))
}

// Poll is one durable poll-contest row, keyed by the board message id.
type Poll struct {
	MessageID   string        `db:"message_id"`
	GuildID     string        `db:"guild_id"`
	ChannelID   string        `db:"channel_id"`
	OwnerID     string        `db:"owner_id"`
	Question    string        `db:"question"`
	Options     Options       `db:"options"`
	Votes       Votes         `db:"votes"`
	EndsAt      int64         `db:"ends_at"`
	CompletedAt sql.NullInt64 `db:"completed_at"`
	Canceled    bool          `db:"canceled"`
}

// UpsertPoll inserts or replaces a poll row.
func (s *Storage) UpsertPoll(ctx context.Context, p *Poll) error {
	if p.Votes == nil {
		p.Votes = Votes{}
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO polls
			(message_id, guild_id, channel_id, owner_id, question, options, votes,
			 ends_at, completed_at, canceled)
		VALUES
			(:message_id, :guild_id, :channel_id, :owner_id, :question, :options, :votes,
			 :ends_at, :completed_at, :canceled)
		ON DUPLICATE KEY UPDATE
			votes = VALUES(votes),
			ends_at = VALUES(ends_at),
			completed_at = VALUES(completed_at),
			canceled = VALUES(canceled)`, p)
	return err
}

// Poll fetches one row by message id.
func (s *Storage) Poll(ctx context.Context, messageID string) (*Poll, error) {
	var p Poll
	err := s.db.GetContext(ctx, &p, `SELECT * FROM polls WHERE message_id = ?`, messageID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// OpenPolls returns every non-terminal poll, for boot reconciliation.
func (s *Storage) OpenPolls(ctx context.Context) ([]*Poll, error) {
	var out []*Poll
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM polls WHERE completed_at IS NULL AND canceled = FALSE`)
	return out, err
}

// CastVote records a user's vote for an option, replacing any earlier vote.
// Replacement spans options, so the row is locked for the whole
// read-modify-write; without the lock two concurrent votes would both read
// the same votes JSON and the second write would drop the first.
func (s *Storage) CastVote(ctx context.Context, messageID, userID, option string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var p Poll
	err = tx.GetContext(ctx, &p, `SELECT * FROM polls WHERE message_id = ? FOR UPDATE`, messageID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("storage: poll %s not found", messageID)
	}
	if err != nil {
		return err
	}
	if p.CompletedAt.Valid || p.Canceled {
		return fmt.Errorf("storage: poll %s is closed", messageID)
	}

	for opt, voters := range p.Votes {
		for i, id := range voters {
			if id == userID {
				p.Votes[opt] = append(voters[:i], voters[i+1:]...)
				break
			}
		}
	}
	if p.Votes == nil {
		p.Votes = Votes{}
	}
	p.Votes[option] = append(p.Votes[option], userID)

	if _, err := tx.ExecContext(ctx,
		`UPDATE polls SET votes = ? WHERE message_id = ?`, p.Votes, messageID); err != nil {
		return err
	}
	return tx.Commit()
}

// CompletePoll marks a row terminal.
func (s *Storage) CompletePoll(ctx context.Context, messageID string, at int64) error {
	return s.exec(ctx, `UPDATE polls SET completed_at = ? WHERE message_id = ?`, at, messageID)
}

// CancelPoll marks a row canceled and terminal.
func (s *Storage) CancelPoll(ctx context.Context, messageID string, at int64) error {
	return s.exec(ctx,
		`UPDATE polls SET canceled = TRUE, completed_at = ? WHERE message_id = ?`, at, messageID)
}
