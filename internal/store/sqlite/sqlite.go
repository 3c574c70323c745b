package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/sugarchat/internal/store"
)

// Schema creates the relay tables. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS buddies (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	nick          TEXT NOT NULL UNIQUE,
	color         TEXT NOT NULL,
	password_hash TEXT NOT NULL DEFAULT '',
	is_guest      BOOLEAN NOT NULL DEFAULT 0,
	session_id    TEXT,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS channels (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	kind       TEXT NOT NULL DEFAULT 'room',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	channel_id INTEGER NOT NULL,
	nick       TEXT NOT NULL,
	color      TEXT NOT NULL,
	status     BOOLEAN NOT NULL DEFAULT 0,
	body       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (channel_id) REFERENCES channels(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel_id, id DESC);
`

// ApplySchema runs Schema on db.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, ApplySchema)
}

// NewWithSetup opens the database and runs setup before first use.
// Tests pass ":memory:" with ApplySchema or their own fixtures.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; ":memory:" requires it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// ==== BuddyStore implementation ====

const buddyColumns = `id, nick, color, password_hash, is_guest, COALESCE(session_id, ''), created_at`

func scanBuddy(row interface{ Scan(...any) error }) (*store.Buddy, error) {
	var b store.Buddy
	if err := row.Scan(&b.ID, &b.Nick, &b.Color, &b.PasswordHash, &b.IsGuest, &b.SessionID, &b.CreatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBuddy creates a registered buddy with a hashed password.
func (s *SQLiteStore) CreateBuddy(ctx context.Context, nick, color, passwordHash string) (*store.Buddy, error) {
	query := `
		INSERT INTO buddies (nick, color, password_hash, is_guest)
		VALUES (?, ?, ?, 0)
	`
	result, err := s.db.ExecContext(ctx, query, nick, color, passwordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("buddy %q: %w", nick, store.ErrConflict)
		}
		return nil, fmt.Errorf("insert buddy: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetBuddyByID(ctx, id)
}

// CreateGuestBuddy creates a temporary buddy bound to a session ID.
func (s *SQLiteStore) CreateGuestBuddy(ctx context.Context, sessionID, color string) (*store.Buddy, error) {
	if len(sessionID) < 8 {
		return nil, fmt.Errorf("guest session id too short")
	}
	query := `
		INSERT INTO buddies (nick, color, password_hash, is_guest, session_id)
		VALUES (?, ?, '', 1, ?)
	`
	nick := "guest_" + sessionID[:8]

	result, err := s.db.ExecContext(ctx, query, nick, color, sessionID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("guest %q: %w", nick, store.ErrConflict)
		}
		return nil, fmt.Errorf("insert guest buddy: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetBuddyByID(ctx, id)
}

// GetBuddyByID retrieves a buddy by ID.
func (s *SQLiteStore) GetBuddyByID(ctx context.Context, id int64) (*store.Buddy, error) {
	query := `SELECT ` + buddyColumns + ` FROM buddies WHERE id = ?`
	b, err := scanBuddy(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("buddy %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query buddy: %w", err)
	}
	return b, nil
}

// GetBuddyByNick retrieves a buddy by nick.
func (s *SQLiteStore) GetBuddyByNick(ctx context.Context, nick string) (*store.Buddy, error) {
	query := `SELECT ` + buddyColumns + ` FROM buddies WHERE nick = ?`
	b, err := scanBuddy(s.db.QueryRowContext(ctx, query, nick))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("buddy %q: %w", nick, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query buddy: %w", err)
	}
	return b, nil
}

// SearchBuddies finds registered buddies whose nick contains query.
// Guests are excluded. Results are ordered by nick.
func (s *SQLiteStore) SearchBuddies(ctx context.Context, query string) ([]*store.Buddy, error) {
	q := `
		SELECT ` + buddyColumns + `
		FROM buddies
		WHERE nick LIKE ? AND is_guest = 0
		ORDER BY nick ASC
		LIMIT 20
	`
	rows, err := s.db.QueryContext(ctx, q, "%"+query+"%")
	if err != nil {
		return nil, fmt.Errorf("search buddies: %w", err)
	}
	defer rows.Close()

	var buddies []*store.Buddy
	for rows.Next() {
		b, err := scanBuddy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan buddy: %w", err)
		}
		buddies = append(buddies, b)
	}
	return buddies, rows.Err()
}

// ==== ChannelStore implementation ====

// CreateChannel creates a new channel.
func (s *SQLiteStore) CreateChannel(ctx context.Context, name string, kind store.ChannelKind) (*store.Channel, error) {
	query := `
		INSERT INTO channels (name, kind)
		VALUES (?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, name, kind)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("channel %q: %w", name, store.ErrConflict)
		}
		return nil, fmt.Errorf("insert channel: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	var ch store.Channel
	err = s.db.QueryRowContext(ctx, `SELECT id, name, kind, created_at FROM channels WHERE id = ?`, id).
		Scan(&ch.ID, &ch.Name, &ch.Kind, &ch.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("query channel: %w", err)
	}
	return &ch, nil
}

// GetChannelByName retrieves a channel by name.
func (s *SQLiteStore) GetChannelByName(ctx context.Context, name string) (*store.Channel, error) {
	var ch store.Channel
	err := s.db.QueryRowContext(ctx, `SELECT id, name, kind, created_at FROM channels WHERE name = ?`, name).
		Scan(&ch.ID, &ch.Name, &ch.Kind, &ch.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("channel %q: %w", name, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query channel: %w", err)
	}
	return &ch, nil
}

// EnsureChannel returns the named channel, creating it when missing.
func (s *SQLiteStore) EnsureChannel(ctx context.Context, name string, kind store.ChannelKind) (*store.Channel, error) {
	ch, err := s.GetChannelByName(ctx, name)
	if err == nil {
		return ch, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	ch, err = s.CreateChannel(ctx, name, kind)
	if errors.Is(err, store.ErrConflict) {
		return s.GetChannelByName(ctx, name)
	}
	return ch, err
}

// ListChannels lists channels of the given kind, newest first.
func (s *SQLiteStore) ListChannels(ctx context.Context, kind store.ChannelKind) ([]*store.Channel, error) {
	query := `
		SELECT id, name, kind, created_at
		FROM channels
		WHERE kind = ?
		ORDER BY id DESC
	`
	rows, err := s.db.QueryContext(ctx, query, kind)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	var channels []*store.Channel
	for rows.Next() {
		var ch store.Channel
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.Kind, &ch.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		channels = append(channels, &ch)
	}
	return channels, rows.Err()
}

// ==== MessageStore implementation ====

// SaveMessage persists a message and sets its ID.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	query := `
		INSERT INTO messages (channel_id, nick, color, status, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, msg.ChannelID, msg.Nick, msg.Color, msg.Status, msg.Body, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	msg.ID = id
	return nil
}

// ListMessages retrieves messages from a channel with pagination.
func (s *SQLiteStore) ListMessages(ctx context.Context, channelID int64, limit int, beforeID *int64) ([]*store.Message, error) {
	var query string
	var args []any

	if beforeID != nil {
		query = `
			SELECT id, channel_id, nick, color, status, body, created_at
			FROM messages
			WHERE channel_id = ? AND id < ?
			ORDER BY id DESC
			LIMIT ?
		`
		args = []any{channelID, *beforeID, limit}
	} else {
		query = `
			SELECT id, channel_id, nick, color, status, body, created_at
			FROM messages
			WHERE channel_id = ?
			ORDER BY id DESC
			LIMIT ?
		`
		args = []any{channelID, limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(&msg.ID, &msg.ChannelID, &msg.Nick, &msg.Color, &msg.Status, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}

	// Reverse to get chronological order
	for i := range len(messages) / 2 {
		messages[i], messages[len(messages)-1-i] = messages[len(messages)-1-i], messages[i]
	}

	return messages, rows.Err()
}
