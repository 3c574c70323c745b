package core

import "time"

// ChannelKind distinguishes rooms from one-to-one channels.
type ChannelKind string

const (
	ChannelKindRoom   ChannelKind = "room"
	ChannelKindDirect ChannelKind = "direct"
)

// GroupFlagChannelSpecificHandles marks rooms whose member handles must be
// mapped to owners.
const GroupFlagChannelSpecificHandles uint32 = 2048

// MessageTypeNormal is the only message type persisted to history.
const MessageTypeNormal uint32 = 0

// Pending is a message queued for one member until acknowledged.
type Pending struct {
	ID        uint32
	Timestamp time.Time
	Sender    uint32 // channel-specific in rooms, global in direct channels
	Type      uint32
	Flags     uint32
	Text      string
}

// BuddyInfo is a buddy by global handle.
type BuddyInfo struct {
	Handle uint32
	Nick   string
	Color  string
}

// Member is a channel participant.
type Member struct {
	Handle uint32 // channel-specific in rooms
	Owner  uint32 // global
	Nick   string
	Color  string
}

// GroupInfo describes the caller's view of a room.
type GroupInfo struct {
	SelfHandle uint32
	Flags      uint32
}

// ChannelInfo is returned on join and open.
type ChannelInfo struct {
	Name       string
	Kind       ChannelKind
	SelfHandle uint32
	Flags      uint32
	Peer       *BuddyInfo
	Members    []Member
}
