package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique nick or channel name is taken.
	ErrConflict = errors.New("already exists")
)

// Buddy is a registered or guest account on the relay.
type Buddy struct {
	ID           int64
	Nick         string
	Color        string
	PasswordHash string
	IsGuest      bool
	SessionID    string // For guest session tracking
	CreatedAt    time.Time
}

// ChannelKind distinguishes shared rooms from one-to-one channels.
type ChannelKind string

const (
	ChannelKindRoom   ChannelKind = "room"
	ChannelKindDirect ChannelKind = "direct"
)

// Channel is a persisted text channel.
type Channel struct {
	ID        int64
	Name      string
	Kind      ChannelKind
	CreatedAt time.Time
}

// Message is a persisted chat line. Status lines are join/leave notices.
type Message struct {
	ID        int64
	ChannelID int64
	Nick      string
	Color     string
	Status    bool
	Body      string
	CreatedAt time.Time
}

// BuddyStore handles account persistence.
type BuddyStore interface {
	// CreateBuddy creates a registered buddy with a hashed password.
	CreateBuddy(ctx context.Context, nick, color, passwordHash string) (*Buddy, error)

	// CreateGuestBuddy creates a temporary buddy bound to a session ID.
	CreateGuestBuddy(ctx context.Context, sessionID, color string) (*Buddy, error)

	GetBuddyByID(ctx context.Context, id int64) (*Buddy, error)
	GetBuddyByNick(ctx context.Context, nick string) (*Buddy, error)

	// SearchBuddies finds registered buddies whose nick contains query.
	SearchBuddies(ctx context.Context, query string) ([]*Buddy, error)
}

// ChannelStore handles channel persistence.
type ChannelStore interface {
	CreateChannel(ctx context.Context, name string, kind ChannelKind) (*Channel, error)
	GetChannelByName(ctx context.Context, name string) (*Channel, error)

	// EnsureChannel returns the named channel, creating it when missing.
	EnsureChannel(ctx context.Context, name string, kind ChannelKind) (*Channel, error)

	// ListChannels lists channels of the given kind, newest first.
	ListChannels(ctx context.Context, kind ChannelKind) ([]*Channel, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists msg and sets its ID.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListMessages returns up to limit messages in chronological order.
	// If beforeID is provided, only messages older than it are returned.
	ListMessages(ctx context.Context, channelID int64, limit int, beforeID *int64) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	BuddyStore
	ChannelStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
