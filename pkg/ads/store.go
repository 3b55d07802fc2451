package ads

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// Ad is the slice of a classified listing that chat room resolution needs:
// who owns it. The full listing lifecycle lives elsewhere.
type Ad struct {
	ID            string
	PublisherID   string
	PublisherName string
	Title         string
	Active        bool
	CreatedAt     time.Time
}

// Store persists ads.
type Store struct {
	db *sql.DB
}

func NewStore(dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("ad store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "ad store: open")
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	if s == nil || s.db == nil {
		return errors.New("ad store: db is nil")
	}
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS ads (
		id TEXT PRIMARY KEY,
		publisher_id TEXT NOT NULL,
		publisher_name TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at_ms INTEGER NOT NULL
	);`)
	return errors.Wrap(err, "ad store: migrate")
}

func (s *Store) Put(ctx context.Context, a *Ad) error {
	if s == nil || s.db == nil {
		return errors.New("ad store: db is nil")
	}
	if a == nil {
		return errors.New("ad store: ad is nil")
	}
	if strings.TrimSpace(a.PublisherID) == "" {
		return errors.New("ad store: publisher id is required")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO ads(id, publisher_id, publisher_name, title, active, created_at_ms)
		VALUES(?, ?, ?, ?, ?, ?)
	`, a.ID, a.PublisherID, a.PublisherName, a.Title, a.Active, a.CreatedAt.UnixMilli())
	return errors.Wrap(err, "ad store: put")
}

func (s *Store) Get(ctx context.Context, id string) (*Ad, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("ad store: db is nil")
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, publisher_id, publisher_name, title, active, created_at_ms
		FROM ads WHERE id = ?
	`, id)
	var a Ad
	var createdMs int64
	err := row.Scan(&a.ID, &a.PublisherID, &a.PublisherName, &a.Title, &a.Active, &createdMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "ad store: get")
	}
	a.CreatedAt = time.UnixMilli(createdMs)
	return &a, nil
}

// OwnerOf implements chat room resolution's ad directory: the owning
// publisher id, or empty when the ad does not exist.
func (s *Store) OwnerOf(ctx context.Context, adID string) (string, error) {
	a, err := s.Get(ctx, adID)
	if err != nil {
		return "", err
	}
	if a == nil {
		return "", nil
	}
	return a.PublisherID, nil
}
