package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventResponse answers a command; Op says which.
	EventResponse EventKind = iota
	// EventError answers a command that failed, or reports a domain error.
	EventError
	// EventReceived delivers a message pending acknowledgement.
	EventReceived
	// EventClosed reports that a channel closed for this client.
	EventClosed
	// EventMembersChanged reports room joins and leaves.
	EventMembersChanged
	// EventChannelOpened reports a one-to-one channel opened by a peer.
	EventChannelOpened
)

// Event is sent to clients to describe what happened in the system.
// Only the fields relevant to Kind (and Op, for responses) are set.
type Event struct {
	Kind    EventKind
	Op      CommandKind
	ReqID   string
	Channel string

	Buddy   *BuddyInfo
	Info    *ChannelInfo
	Group   *GroupInfo
	Message *Pending
	Pending []Pending
	Aliases []string
	Handles []uint32
	Members []Member
	Added   []Member
	Removed []Member

	Error *CoreError
}
