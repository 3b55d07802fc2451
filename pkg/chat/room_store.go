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

// RoomStore persists chat rooms. Get-or-create is first-writer-wins: a unique
// index on the room key plus an insert-or-ignore and reselect loop, so
// concurrent first joiners converge on a single row instead of racing a
// read-then-write sequence.
type RoomStore struct {
	db *sql.DB
}

func NewRoomStore(dsn string) (*RoomStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("room store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "room store: open")
	}
	s := &RoomStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *RoomStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *RoomStore) migrate() error {
	if s == nil || s.db == nil {
		return errors.New("room store: db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_rooms (
			id TEXT PRIMARY KEY,
			ad_id TEXT NOT NULL DEFAULT '',
			publisher_id TEXT NOT NULL,
			client_id TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS rooms_ad_client
			ON chat_rooms(ad_id, client_id) WHERE kind = 'publisher_client';`,
		`CREATE UNIQUE INDEX IF NOT EXISTS rooms_publisher_admin
			ON chat_rooms(publisher_id) WHERE kind = 'publisher_admin';`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "room store: migrate")
		}
	}
	return nil
}

const roomColumns = `id, ad_id, publisher_id, client_id, kind, created_at_ms`

func scanRoom(row interface{ Scan(...any) error }) (*ChatRoom, error) {
	var r ChatRoom
	var kind string
	var createdMs int64
	if err := row.Scan(&r.ID, &r.AdID, &r.PublisherID, &r.ClientID, &kind, &createdMs); err != nil {
		return nil, err
	}
	r.Kind = RoomKind(kind)
	r.CreatedAt = time.UnixMilli(createdMs)
	return &r, nil
}

// GetOrCreatePublisherClient resolves the room for an (ad, client) pair.
// clientID is empty when the connecting identity is the publisher and no
// client has joined yet.
func (s *RoomStore) GetOrCreatePublisherClient(ctx context.Context, adID, publisherID, clientID string) (*ChatRoom, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("room store: db is nil")
	}
	if strings.TrimSpace(adID) == "" {
		return nil, errors.New("room store: adID is empty")
	}
	if strings.TrimSpace(publisherID) == "" {
		return nil, errors.New("room store: publisherID is empty")
	}
	return s.getOrCreate(ctx,
		`SELECT `+roomColumns+` FROM chat_rooms
		 WHERE kind = ? AND ad_id = ? AND client_id = ?
		 ORDER BY created_at_ms ASC LIMIT 1`,
		[]any{string(RoomPublisherClient), adID, clientID},
		&ChatRoom{
			ID:          uuid.NewString(),
			AdID:        adID,
			PublisherID: publisherID,
			ClientID:    clientID,
			Kind:        RoomPublisherClient,
		})
}

// GetOrCreatePublisherAdmin resolves the single support room for a publisher.
func (s *RoomStore) GetOrCreatePublisherAdmin(ctx context.Context, publisherID string) (*ChatRoom, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("room store: db is nil")
	}
	if strings.TrimSpace(publisherID) == "" {
		return nil, errors.New("room store: publisherID is empty")
	}
	return s.getOrCreate(ctx,
		`SELECT `+roomColumns+` FROM chat_rooms
		 WHERE kind = ? AND publisher_id = ?
		 ORDER BY created_at_ms ASC LIMIT 1`,
		[]any{string(RoomPublisherAdmin), publisherID},
		&ChatRoom{
			ID:          uuid.NewString(),
			PublisherID: publisherID,
			Kind:        RoomPublisherAdmin,
		})
}

func (s *RoomStore) getOrCreate(ctx context.Context, selectQuery string, selectArgs []any, candidate *ChatRoom) (*ChatRoom, error) {
	for attempt := 0; attempt < 3; attempt++ {
		room, err := scanRoom(s.db.QueryRowContext(ctx, selectQuery, selectArgs...))
		if err == nil {
			return room, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrap(err, "room store: select")
		}
		candidate.CreatedAt = time.Now()
		_, err = s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO chat_rooms(id, ad_id, publisher_id, client_id, kind, created_at_ms)
			VALUES(?, ?, ?, ?, ?, ?)
		`, candidate.ID, candidate.AdID, candidate.PublisherID, candidate.ClientID, string(candidate.Kind), candidate.CreatedAt.UnixMilli())
		if err != nil {
			return nil, errors.Wrap(err, "room store: insert")
		}
		// Reselect: either our insert won or a concurrent writer's did.
	}
	return nil, errors.New("room store: get-or-create did not converge")
}

// Get returns a room by id, or nil when missing.
func (s *RoomStore) Get(ctx context.Context, id string) (*ChatRoom, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("room store: db is nil")
	}
	room, err := scanRoom(s.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM chat_rooms WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "room store: get")
	}
	return room, nil
}
