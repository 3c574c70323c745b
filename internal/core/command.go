package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoin enters a room, creating it when missing.
	CommandJoin CommandKind = iota
	// CommandOpen opens a one-to-one channel with Peer.
	CommandOpen
	// CommandSend delivers Text to the other members of Channel.
	CommandSend
	// CommandListPending returns unacknowledged messages.
	CommandListPending
	// CommandAck acknowledges IDs.
	CommandAck
	// CommandAliases resolves global Handles to nicks.
	CommandAliases
	// CommandHandleOwners maps channel-specific Handles to global ones.
	CommandHandleOwners
	// CommandGroupInfo returns the self handle and group flags of a room.
	CommandGroupInfo
	// CommandMembers lists current members.
	CommandMembers
	// CommandBuddy resolves a global handle (Peer) to a buddy.
	CommandBuddy
	// CommandSelf returns the caller's own buddy.
	CommandSelf
	// CommandClose leaves a room or closes a one-to-one channel.
	CommandClose
)

var commandNames = map[CommandKind]string{
	CommandJoin:         "join",
	CommandOpen:         "open",
	CommandSend:         "send",
	CommandListPending:  "list_pending",
	CommandAck:          "ack",
	CommandAliases:      "aliases",
	CommandHandleOwners: "handle_owners",
	CommandGroupInfo:    "group_info",
	CommandMembers:      "members",
	CommandBuddy:        "buddy",
	CommandSelf:         "self",
	CommandClose:        "close",
}

func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return "unknown"
}

// Command represents an action requested by a client.
type Command struct {
	Kind    CommandKind
	ReqID   string
	Channel string
	Peer    uint32
	Type    uint32
	Text    string
	Clear   bool
	IDs     []uint32
	Handles []uint32
}
