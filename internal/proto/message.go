package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type  string          `json:"type"`
	ReqID string          `json:"req_id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

const (
	ProtocolVersion = 1

	InboundTypeHello        = "hello"
	InboundTypeJoin         = "join"
	InboundTypeOpen         = "open"
	InboundTypeSend         = "send"
	InboundTypeListPending  = "list_pending"
	InboundTypeAck          = "ack"
	InboundTypeAliases      = "aliases"
	InboundTypeHandleOwners = "handle_owners"
	InboundTypeGroupInfo    = "group_info"
	InboundTypeMembers      = "members"
	InboundTypeBuddy        = "buddy"
	InboundTypeSelf         = "self"
	InboundTypeClose        = "close"

	OutboundTypeResponse = "response"
	OutboundTypeEvent    = "event"
	OutboundTypeError    = "error"

	EventReceived       = "received"
	EventClosed         = "closed"
	EventMembersChanged = "members_changed"
	EventChannelOpened  = "channel_opened"
)

// HelloData is sent by the client to introduce itself. Token is required when
// the relay enforces authentication; otherwise Nick and Color are used.
type HelloData struct {
	Nick     string `json:"nick,omitempty"`
	Color    string `json:"color,omitempty"`
	Token    string `json:"token,omitempty"`
	Protocol int    `json:"protocol,omitempty"`
}

// ChannelData names a channel: join, close, group_info, members.
type ChannelData struct {
	Channel string `json:"channel"`
}

// OpenData requests a one-to-one channel with a buddy.
type OpenData struct {
	Handle uint32 `json:"handle"`
}

// SendData is a message for a channel.
type SendData struct {
	Channel string `json:"channel"`
	Type    uint32 `json:"type,omitempty"`
	Text    string `json:"text"`
}

// ListPendingData asks for unacknowledged messages.
type ListPendingData struct {
	Channel string `json:"channel"`
	Clear   bool   `json:"clear,omitempty"`
}

// AckData acknowledges pending messages.
type AckData struct {
	Channel string   `json:"channel"`
	IDs     []uint32 `json:"ids"`
}

// HandlesData carries handles for aliases (global) or handle_owners
// (channel-specific, Channel set).
type HandlesData struct {
	Channel string   `json:"channel,omitempty"`
	Handles []uint32 `json:"handles"`
}

// BuddyData asks for the buddy behind a global handle.
type BuddyData struct {
	Handle uint32 `json:"handle"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	ReqID string `json:"req_id,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Frame is Outbound as decoded by clients.
type Frame struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	ReqID string          `json:"req_id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// Buddy identifies a participant by global handle.
type Buddy struct {
	Handle uint32 `json:"handle"`
	Nick   string `json:"nick"`
	Color  string `json:"color"`
}

// Member is a room participant. Handle is channel-specific, Owner global.
type Member struct {
	Handle uint32 `json:"handle"`
	Owner  uint32 `json:"owner"`
	Nick   string `json:"nick"`
	Color  string `json:"color"`
}

// ChannelInfo answers join and open, and is the channel_opened payload.
type ChannelInfo struct {
	Channel    string   `json:"channel"`
	Kind       string   `json:"kind"`
	SelfHandle uint32   `json:"self_handle"`
	Flags      uint32   `json:"flags,omitempty"`
	Peer       *Buddy   `json:"peer,omitempty"`
	Members    []Member `json:"members,omitempty"`
}

// PendingMessage is a received message awaiting acknowledgement.
type PendingMessage struct {
	ID        uint32 `json:"id"`
	Timestamp int64  `json:"ts"`
	Sender    uint32 `json:"sender"`
	Type      uint32 `json:"type"`
	Flags     uint32 `json:"flags,omitempty"`
	Text      string `json:"text"`
}

// GroupInfo answers group_info.
type GroupInfo struct {
	SelfHandle uint32 `json:"self_handle"`
	Flags      uint32 `json:"flags"`
}

// PendingList answers list_pending.
type PendingList struct {
	Messages []PendingMessage `json:"messages"`
}

// Aliases answers aliases.
type Aliases struct {
	Aliases []string `json:"aliases"`
}

// Handles answers handle_owners.
type Handles struct {
	Handles []uint32 `json:"handles"`
}

// Members answers members.
type Members struct {
	Members []Member `json:"members"`
}

// EventReceivedData delivers a message.
type EventReceivedData struct {
	Channel string         `json:"channel"`
	Message PendingMessage `json:"message"`
}

// EventClosedData reports that a channel closed for this client.
type EventClosedData struct {
	Channel string `json:"channel"`
}

// EventMembersChangedData reports room membership changes.
type EventMembersChangedData struct {
	Channel string   `json:"channel"`
	Added   []Member `json:"added,omitempty"`
	Removed []Member `json:"removed,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Msg
}
