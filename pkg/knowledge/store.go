package knowledge

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// Store persists knowledge entries, conversations, and quick actions.
type Store struct {
	db *sql.DB
}

func NewStore(dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("knowledge store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "knowledge store: open")
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
		return errors.New("knowledge store: db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS knowledge_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			category TEXT NOT NULL,
			keywords TEXT NOT NULL DEFAULT '',
			active INTEGER NOT NULL DEFAULT 1,
			priority INTEGER NOT NULL DEFAULT 0,
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS entries_rank ON knowledge_entries(active, priority DESC, created_at_ms DESC);`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			user_message TEXT NOT NULL,
			bot_response TEXT NOT NULL,
			matched_entry_id INTEGER,
			helpful INTEGER,
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS conversations_by_session ON conversations(session_id, created_at_ms DESC);`,
		`CREATE TABLE IF NOT EXISTS quick_actions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL,
			value TEXT NOT NULL,
			icon TEXT NOT NULL DEFAULT '',
			ord INTEGER NOT NULL DEFAULT 0,
			active INTEGER NOT NULL DEFAULT 1
		);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "knowledge store: migrate")
		}
	}
	return nil
}

func (s *Store) CreateEntry(ctx context.Context, e *KnowledgeEntry) error {
	if s == nil || s.db == nil {
		return errors.New("knowledge store: db is nil")
	}
	if e == nil {
		return errors.New("knowledge store: entry is nil")
	}
	if strings.TrimSpace(e.Question) == "" || strings.TrimSpace(e.Answer) == "" {
		return errors.New("knowledge store: question and answer are required")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO knowledge_entries(question, answer, category, keywords, active, priority, created_at_ms)
		VALUES(?, ?, ?, ?, ?, ?, ?)
	`, e.Question, e.Answer, string(e.Category), e.Keywords, e.Active, e.Priority, e.CreatedAt.UnixMilli())
	if err != nil {
		return errors.Wrap(err, "knowledge store: insert entry")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "knowledge store: entry id")
	}
	e.ID = id
	return nil
}

func (s *Store) SetEntryActive(ctx context.Context, id int64, active bool) error {
	if s == nil || s.db == nil {
		return errors.New("knowledge store: db is nil")
	}
	_, err := s.db.ExecContext(ctx, `UPDATE knowledge_entries SET active = ? WHERE id = ?`, active, id)
	return errors.Wrap(err, "knowledge store: set active")
}

const entryColumns = `id, question, answer, category, keywords, active, priority, created_at_ms`

func scanEntry(row interface{ Scan(...any) error }) (*KnowledgeEntry, error) {
	var e KnowledgeEntry
	var category string
	var createdMs int64
	if err := row.Scan(&e.ID, &e.Question, &e.Answer, &category, &e.Keywords, &e.Active, &e.Priority, &createdMs); err != nil {
		return nil, err
	}
	e.Category = Category(category)
	e.CreatedAt = time.UnixMilli(createdMs)
	return &e, nil
}

// FindBest returns the highest-ranked active entry whose question, keywords,
// or answer contains the needle, or nil when nothing matches.
func (s *Store) FindBest(ctx context.Context, needle string) (*KnowledgeEntry, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("knowledge store: db is nil")
	}
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM knowledge_entries
		WHERE active = 1
		  AND (instr(lower(question), ?) > 0 OR instr(lower(keywords), ?) > 0 OR instr(lower(answer), ?) > 0)
		ORDER BY priority DESC, created_at_ms DESC
		LIMIT 1
	`, needle, needle, needle)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "knowledge store: find best")
	}
	return e, nil
}

func (s *Store) SaveConversation(ctx context.Context, c *Conversation) error {
	if s == nil || s.db == nil {
		return errors.New("knowledge store: db is nil")
	}
	if c == nil {
		return errors.New("knowledge store: conversation is nil")
	}
	if strings.TrimSpace(c.ID) == "" {
		return errors.New("knowledge store: conversation id is empty")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	var matched sql.NullInt64
	if c.MatchedEntryID > 0 {
		matched = sql.NullInt64{Int64: c.MatchedEntryID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations(id, session_id, user_id, user_message, bot_response, matched_entry_id, created_at_ms)
		VALUES(?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.SessionID, c.UserID, c.UserMessage, c.BotResponse, matched, c.CreatedAt.UnixMilli())
	return errors.Wrap(err, "knowledge store: insert conversation")
}

// Rate records user feedback on a conversation. A missing conversation id is
// reported as ok=false, never as an error.
func (s *Store) Rate(ctx context.Context, conversationID string, helpful bool) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("knowledge store: db is nil")
	}
	if strings.TrimSpace(conversationID) == "" {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET helpful = ? WHERE id = ?`, helpful, conversationID)
	if err != nil {
		return false, errors.Wrap(err, "knowledge store: rate")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "knowledge store: rate rows")
	}
	return n > 0, nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("knowledge store: db is nil")
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, user_id, user_message, bot_response, matched_entry_id, helpful, created_at_ms
		FROM conversations WHERE id = ?
	`, id)
	var c Conversation
	var matched sql.NullInt64
	var helpful sql.NullBool
	var createdMs int64
	err := row.Scan(&c.ID, &c.SessionID, &c.UserID, &c.UserMessage, &c.BotResponse, &matched, &helpful, &createdMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "knowledge store: get conversation")
	}
	if matched.Valid {
		c.MatchedEntryID = matched.Int64
	}
	if helpful.Valid {
		v := helpful.Bool
		c.Helpful = &v
	}
	c.CreatedAt = time.UnixMilli(createdMs)
	return &c, nil
}

func (s *Store) CreateQuickAction(ctx context.Context, a *QuickAction) error {
	if s == nil || s.db == nil {
		return errors.New("knowledge store: db is nil")
	}
	if a == nil {
		return errors.New("knowledge store: action is nil")
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO quick_actions(title, description, kind, value, icon, ord, active)
		VALUES(?, ?, ?, ?, ?, ?, ?)
	`, a.Title, a.Description, string(a.Kind), a.Value, a.Icon, a.Order, a.Active)
	if err != nil {
		return errors.Wrap(err, "knowledge store: insert action")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "knowledge store: action id")
	}
	a.ID = id
	return nil
}

// ListActiveQuickActions returns all active actions in display order.
func (s *Store) ListActiveQuickActions(ctx context.Context) ([]QuickAction, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("knowledge store: db is nil")
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, kind, value, icon, ord, active
		FROM quick_actions
		WHERE active = 1
		ORDER BY ord ASC, id ASC
	`)
	if err != nil {
		return nil, errors.Wrap(err, "knowledge store: list actions")
	}
	defer func() { _ = rows.Close() }()

	items := []QuickAction{}
	for rows.Next() {
		var a QuickAction
		var kind string
		if err := rows.Scan(&a.ID, &a.Title, &a.Description, &kind, &a.Value, &a.Icon, &a.Order, &a.Active); err != nil {
			return nil, err
		}
		a.Kind = ActionKind(kind)
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
