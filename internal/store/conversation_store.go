package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/nhle/inbox-sync/internal/identity"
	"github.com/nhle/inbox-sync/internal/model"
)

type conversationRow struct {
	ID           string `db:"id"`
	Participants string `db:"participants"`
	UpdatedAt    string `db:"updated_at"`
}

type messageRow struct {
	ID         string `db:"id"`
	SenderID   string `db:"sender_id"`
	ReceiverID string `db:"receiver_id"`
	Content    string `db:"content"`
	Timestamp  string `db:"timestamp"`
	Read       int    `db:"read"`
}

// ListConversations returns summaries of the conversations userID takes
// part in. Summaries carry no messages; use ListMessages for the history.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID string) ([]model.Conversation, error) {
	var rows []conversationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT c.id, c.participants, c.updated_at
		FROM conversations c
		JOIN conversation_members m ON m.conversation_id = c.id
		WHERE m.user_id = ?
		ORDER BY c.updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}

	out := make([]model.Conversation, 0, len(rows))
	for _, r := range rows {
		c := model.Conversation{ID: r.ID, UpdatedAt: r.UpdatedAt}
		if err := json.Unmarshal([]byte(r.Participants), &c.Participants); err != nil {
			return nil, fmt.Errorf("unmarshaling participants for conversation %s: %w", r.ID, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// ListMessages returns the history of a conversation, oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, sender_id, receiver_id, content, timestamp, read
		FROM messages
		WHERE conversation_id = ?
		ORDER BY seq`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying messages of %s: %w", conversationID, err)
	}

	out := make([]model.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.Message{
			ID:         r.ID,
			SenderID:   r.SenderID,
			ReceiverID: r.ReceiverID,
			Content:    r.Content,
			Timestamp:  r.Timestamp,
			Read:       r.Read != 0,
		})
	}
	return out, nil
}

// CreateConversation inserts a conversation with its messages. Creating a
// conversation that already exists is a no-op that still succeeds.
func (s *SQLiteStore) CreateConversation(ctx context.Context, c model.Conversation) error {
	if c.ID == "" {
		return fmt.Errorf("conversation id must not be empty")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	participants, err := json.Marshal(nonNil(c.Participants))
	if err != nil {
		return fmt.Errorf("marshaling participants: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (id, participants, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		c.ID, string(participants), c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating conversation %s: %w", c.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	if err := insertMembers(ctx, tx, c.ID, c.Participants); err != nil {
		return err
	}
	if err := insertMessages(ctx, tx, c.ID, c.Messages); err != nil {
		return err
	}

	return tx.Commit()
}

// UpdateConversation replaces the participants, timestamp and message
// history of an existing conversation. It reports false when the
// conversation does not exist.
func (s *SQLiteStore) UpdateConversation(ctx context.Context, id string, c model.Conversation) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var current conversationRow
	err = tx.GetContext(ctx, &current,
		"SELECT id, participants, updated_at FROM conversations WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("getting conversation %s: %w", id, err)
	}

	participants := current.Participants
	if len(c.Participants) > 0 {
		raw, err := json.Marshal(c.Participants)
		if err != nil {
			return false, fmt.Errorf("marshaling participants: %w", err)
		}
		participants = string(raw)

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM conversation_members WHERE conversation_id = ?", id); err != nil {
			return false, fmt.Errorf("clearing members of %s: %w", id, err)
		}
		if err := insertMembers(ctx, tx, id, c.Participants); err != nil {
			return false, err
		}
	}

	updatedAt := current.UpdatedAt
	if c.UpdatedAt != "" {
		updatedAt = c.UpdatedAt
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE conversations SET participants = ?, updated_at = ? WHERE id = ?",
		participants, updatedAt, id,
	); err != nil {
		return false, fmt.Errorf("updating conversation %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM messages WHERE conversation_id = ?", id); err != nil {
		return false, fmt.Errorf("clearing messages of %s: %w", id, err)
	}
	if err := insertMessages(ctx, tx, id, c.Messages); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing conversation %s: %w", id, err)
	}
	return true, nil
}

// DeleteConversation removes a conversation and its messages. It reports
// false when nothing was deleted.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// The foreign key pragma is per connection, so children are removed
	// explicitly.
	for _, q := range []string{
		"DELETE FROM messages WHERE conversation_id = ?",
		"DELETE FROM conversation_members WHERE conversation_id = ?",
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return false, fmt.Errorf("deleting children of conversation %s: %w", id, err)
		}
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("deleting conversation %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking deleted rows: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing delete of %s: %w", id, err)
	}
	return n > 0, nil
}

// SendMessage appends m to the conversation of its sender and receiver,
// creating the conversation first if needed, and bumps its updated_at.
func (s *SQLiteStore) SendMessage(ctx context.Context, m model.Message) error {
	if m.SenderID == "" || m.ReceiverID == "" {
		return fmt.Errorf("message sender and receiver must not be empty")
	}
	convID := identity.ConversationID(m.SenderID, m.ReceiverID)
	members := identity.Participants(m.SenderID, m.ReceiverID)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	participants, err := json.Marshal(members)
	if err != nil {
		return fmt.Errorf("marshaling participants: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, participants, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
		convID, string(participants), m.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("upserting conversation %s: %w", convID, err)
	}
	if err := insertMembers(ctx, tx, convID, members); err != nil {
		return err
	}
	if err := insertMessages(ctx, tx, convID, []model.Message{m}); err != nil {
		return err
	}

	return tx.Commit()
}

func insertMembers(ctx context.Context, tx *sqlx.Tx, convID string, userIDs []string) error {
	for _, u := range userIDs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_members (conversation_id, user_id)
			VALUES (?, ?)
			ON CONFLICT DO NOTHING`,
			convID, u,
		)
		if err != nil {
			return fmt.Errorf("adding member %s to %s: %w", u, convID, err)
		}
	}
	return nil
}

func insertMessages(ctx context.Context, tx *sqlx.Tx, convID string, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, receiver_id, content, timestamp, read)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing message insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		_, err := stmt.ExecContext(ctx,
			m.ID, convID, m.SenderID, m.ReceiverID, m.Content, m.Timestamp, boolToInt(m.Read),
		)
		if err != nil {
			return fmt.Errorf("inserting message %s: %w", m.ID, err)
		}
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
