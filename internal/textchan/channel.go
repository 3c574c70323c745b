// Package textchan adapts a signal-based text channel (Telepathy, or the
// sugarchat relay) to the activity: it resolves senders to buddies, replays
// pending messages and acknowledges what it delivered.
package textchan

import (
	"context"
	"errors"
	"time"

	"github.com/vovakirdan/sugarchat/internal/buddy"
)

// Handle identifies a contact on a connection, or inside a channel when the
// channel uses channel-specific handles.
type Handle uint32

// MessageType mirrors Telepathy's Channel_Text_Message_Type.
type MessageType uint32

const (
	MessageTypeNormal MessageType = iota
	MessageTypeAction
	MessageTypeNotice
	MessageTypeAutoReply
	MessageTypeDeliveryReport
)

// GroupFlags mirrors Telepathy's Channel_Group_Flags.
type GroupFlags uint32

// GroupFlagChannelSpecificHandles means member handles are only meaningful
// inside the channel and must be mapped to owners.
const GroupFlagChannelSpecificHandles GroupFlags = 2048

var (
	// ErrClosed is returned when the channel has already been closed.
	ErrClosed = errors.New("text channel closed")
	// ErrUnknownHandle is returned when a handle cannot be resolved.
	ErrUnknownHandle = errors.New("unknown handle")
)

// PendingMessage is a received message that may still await acknowledgement.
type PendingMessage struct {
	ID        uint32
	Timestamp time.Time
	Sender    Handle
	Type      MessageType
	Flags     uint32
	Text      string
}

// Channel is a text channel.
type Channel interface {
	Send(ctx context.Context, typ MessageType, text string) error
	ListPendingMessages(ctx context.Context, clear bool) ([]PendingMessage, error)
	AcknowledgePendingMessages(ctx context.Context, ids []uint32) error
	Close(ctx context.Context) error

	// OnReceived and OnClosed register signal handlers. The returned function
	// removes the handler.
	OnReceived(fn func(PendingMessage)) (remove func())
	OnClosed(fn func()) (remove func())

	// Group returns the group interface, or false for one-to-one channels
	// that do not implement it.
	Group() (Group, bool)
}

// Group is the membership interface of a multi-user channel.
type Group interface {
	SelfHandle(ctx context.Context) (Handle, error)
	GroupFlags(ctx context.Context) (GroupFlags, error)
	HandleOwners(ctx context.Context, handles []Handle) ([]Handle, error)
}

// Aliasing resolves handles to display names.
type Aliasing interface {
	RequestAliases(ctx context.Context, handles []Handle) ([]string, error)
}

// Presence resolves connection handles to buddies.
type Presence interface {
	SelfHandle(ctx context.Context) (Handle, error)
	BuddyByHandle(ctx context.Context, h Handle) (*buddy.Buddy, error)
}
