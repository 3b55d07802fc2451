package chat

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// MessageStore is the append-only durable log behind every room.
type MessageStore struct {
	db *sql.DB
}

func NewMessageStore(dsn string) (*MessageStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("message store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "message store: open")
	}
	s := &MessageStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MessageStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *MessageStore) migrate() error {
	if s == nil || s.db == nil {
		return errors.New("message store: db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id TEXT PRIMARY KEY,
			room_id TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			sender_name TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL,
			read INTEGER NOT NULL DEFAULT 0,
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS messages_by_room ON chat_messages(room_id, created_at_ms DESC);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "message store: migrate")
		}
	}
	return nil
}

// Append persists a message, filling in id and timestamp when unset.
func (s *MessageStore) Append(ctx context.Context, m *ChatMessage) error {
	if s == nil || s.db == nil {
		return errors.New("message store: db is nil")
	}
	if m == nil {
		return errors.New("message store: message is nil")
	}
	if strings.TrimSpace(m.RoomID) == "" {
		return errors.New("message store: roomID is empty")
	}
	if strings.TrimSpace(m.Body) == "" {
		return errors.New("message store: empty body")
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages(id, room_id, sender_id, sender_name, body, read, created_at_ms)
		VALUES(?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.RoomID, m.SenderID, m.SenderName, m.Body, m.Read, m.CreatedAt.UnixMilli())
	return errors.Wrap(err, "message store: insert")
}

// ListRecent returns the latest n messages for a room in ascending
// chronological order, ready for history replay.
func (s *MessageStore) ListRecent(ctx context.Context, roomID string, n int) ([]ChatMessage, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("message store: db is nil")
	}
	if n <= 0 {
		n = historyPublisherClient
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_id, sender_id, sender_name, body, read, created_at_ms
		FROM chat_messages
		WHERE room_id = ?
		ORDER BY created_at_ms DESC, id DESC
		LIMIT ?
	`, roomID, n)
	if err != nil {
		return nil, errors.Wrap(err, "message store: list recent")
	}
	defer func() { _ = rows.Close() }()

	items := []ChatMessage{}
	for rows.Next() {
		var m ChatMessage
		var createdMs int64
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.SenderName, &m.Body, &m.Read, &createdMs); err != nil {
			return nil, err
		}
		m.CreatedAt = time.UnixMilli(createdMs)
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// fetched newest-first, delivered oldest-first
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}

// MarkRead flags every message in the room not sent by reader as read.
func (s *MessageStore) MarkRead(ctx context.Context, roomID, readerID string) error {
	if s == nil || s.db == nil {
		return errors.New("message store: db is nil")
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE chat_messages SET read = 1
		WHERE room_id = ? AND sender_id != ? AND read = 0
	`, roomID, readerID)
	return errors.Wrap(err, "message store: mark read")
}
