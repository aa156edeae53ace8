package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chatdigest/pkg/chat"
)

// Chat is an archived conversation.
type Chat struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Messages int    `json:"messages"`
}

// UpsertChat creates a chat or renames it.
func (tx *Tx) UpsertChat(id, name string) error {
	_, err := tx.Exec(
		`INSERT INTO chats (id, name) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, imported_at = CURRENT_TIMESTAMP`,
		id, name,
	)
	return err
}

// UpsertParticipant creates a participant or updates the display name.
func (tx *Tx) UpsertParticipant(chatID string, p chat.Participant) error {
	_, err := tx.Exec(
		`INSERT INTO participants (chat_id, sender_id, display_name) VALUES (?, ?, ?)
		 ON CONFLICT(chat_id, sender_id) DO UPDATE SET display_name = excluded.display_name`,
		chatID, p.SenderID, p.DisplayName,
	)
	return err
}

// UpsertMessage writes one message. Re-importing the same id overwrites it.
func (tx *Tx) UpsertMessage(item chat.RawItem) error {
	_, err := tx.Exec(
		`INSERT OR REPLACE INTO messages (chat_id, id, sent_at, sender_id, text, media_kind, reply_to_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ChatID, item.ID, item.Timestamp.Unix(), item.SenderID, item.Text, item.MediaKind, item.ReplyToID,
	)
	return err
}

// ListChats lists the archived chats with their message counts.
func (db *DB) ListChats(ctx context.Context) ([]Chat, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT c.id, c.name, COUNT(m.id)
		FROM chats c LEFT JOIN messages m ON m.chat_id = c.id
		GROUP BY c.id, c.name
		ORDER BY c.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.Name, &c.Messages); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// importKeyPrefix keys the last export imported into each chat.
const importKeyPrefix = "import:"

// RecordImport remembers path as the last export imported into chatID.
func (db *DB) RecordImport(chatID, path string) error {
	return db.KVSet(importKeyPrefix+chatID, path)
}

// LastImport returns the last export imported into chatID, or ErrNotFound.
func (db *DB) LastImport(chatID string) (string, error) {
	return db.KVGet(importKeyPrefix + chatID)
}

// ImportedChats counts the chats with a recorded export.
func (db *DB) ImportedChats() (int, error) {
	return db.KVCount(importKeyPrefix)
}

// MessagesBefore returns one page of a chat's history, newest first.
// Zero beforeID and zero beforeTime are treated as unbounded.
func (db *DB) MessagesBefore(ctx context.Context, chatID string, beforeID int64, beforeTime time.Time, limit int) ([]chat.RawItem, error) {
	query := "SELECT chat_id, id, sent_at, sender_id, text, media_kind, reply_to_id FROM messages WHERE chat_id = ?"
	args := []any{chatID}

	if beforeID > 0 {
		query += " AND id < ?"
		args = append(args, beforeID)
	}
	if !beforeTime.IsZero() {
		query += " AND sent_at <= ?"
		args = append(args, beforeTime.Unix())
	}
	query += " ORDER BY sent_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	return db.queryMessages(ctx, query, args...)
}

// MessagesByIDs returns the messages among ids that exist, in id order.
func (db *DB) MessagesByIDs(ctx context.Context, chatID string, ids []int64) ([]chat.RawItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, chatID)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	query := fmt.Sprintf(
		"SELECT chat_id, id, sent_at, sender_id, text, media_kind, reply_to_id FROM messages WHERE chat_id = ? AND id IN (%s) ORDER BY id",
		strings.Join(placeholders, ","),
	)
	return db.queryMessages(ctx, query, args...)
}

// ListParticipants lists the members of a chat.
func (db *DB) ListParticipants(ctx context.Context, chatID string) ([]chat.Participant, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT sender_id, display_name FROM participants WHERE chat_id = ? ORDER BY sender_id",
		chatID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []chat.Participant
	for rows.Next() {
		var p chat.Participant
		if err := rows.Scan(&p.SenderID, &p.DisplayName); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (db *DB) queryMessages(ctx context.Context, query string, args ...any) ([]chat.RawItem, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []chat.RawItem
	for rows.Next() {
		var it chat.RawItem
		var sentAt int64
		if err := rows.Scan(&it.ChatID, &it.ID, &sentAt, &it.SenderID, &it.Text, &it.MediaKind, &it.ReplyToID); err != nil {
			return nil, err
		}
		it.Timestamp = time.Unix(sentAt, 0).UTC()
		items = append(items, it)
	}
	return items, rows.Err()
}
