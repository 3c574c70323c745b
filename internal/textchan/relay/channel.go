package relay

import (
	"context"
	"sync"

	"github.com/vovakirdan/sugarchat/internal/buddy"
	"github.com/vovakirdan/sugarchat/internal/proto"
	"github.com/vovakirdan/sugarchat/internal/textchan"
)

const kindRoom = "room"

// Channel is a relay room or one-to-one channel.
type Channel struct {
	client *Client
	name   string
	kind   string
	peer   *buddy.Buddy

	mu         sync.Mutex
	selfHandle textchan.Handle
	flags      textchan.GroupFlags
	closed     bool

	received handlers[textchan.PendingMessage]
	closedFn handlers[struct{}]
	joined   handlers[*buddy.Buddy]
	left     handlers[*buddy.Buddy]
}

var (
	_ textchan.Channel = (*Channel)(nil)
	_ textchan.Group   = (*Channel)(nil)
)

func newChannel(c *Client, info proto.ChannelInfo) *Channel {
	ch := &Channel{
		client:     c,
		name:       info.Channel,
		kind:       info.Kind,
		selfHandle: textchan.Handle(info.SelfHandle),
		flags:      textchan.GroupFlags(info.Flags),
	}
	if info.Peer != nil {
		ch.peer = &buddy.Buddy{Nick: info.Peer.Nick, Color: info.Peer.Color, Handle: info.Peer.Handle}
	}
	return ch
}

// Name is the relay channel name.
func (ch *Channel) Name() string { return ch.name }

// IsRoom reports whether this is a multi-user room.
func (ch *Channel) IsRoom() bool { return ch.kind == kindRoom }

// Peer is the other side of a one-to-one channel, nil for rooms.
func (ch *Channel) Peer() *buddy.Buddy { return ch.peer }

// Send sends a message to the other members.
func (ch *Channel) Send(ctx context.Context, typ textchan.MessageType, text string) error {
	return ch.client.call(ctx, proto.InboundTypeSend, proto.SendData{Channel: ch.name, Type: uint32(typ), Text: text}, nil)
}

// ListPendingMessages returns messages not yet acknowledged.
func (ch *Channel) ListPendingMessages(ctx context.Context, clear bool) ([]textchan.PendingMessage, error) {
	var out proto.PendingList
	if err := ch.client.call(ctx, proto.InboundTypeListPending, proto.ListPendingData{Channel: ch.name, Clear: clear}, &out); err != nil {
		return nil, err
	}
	msgs := make([]textchan.PendingMessage, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, pendingIn(m))
	}
	return msgs, nil
}

// AcknowledgePendingMessages removes ids from the pending queue.
func (ch *Channel) AcknowledgePendingMessages(ctx context.Context, ids []uint32) error {
	return ch.client.call(ctx, proto.InboundTypeAck, proto.AckData{Channel: ch.name, IDs: ids}, nil)
}

// Close leaves the room or closes the one-to-one channel. Closed handlers
// run when the relay confirms.
func (ch *Channel) Close(ctx context.Context) error {
	return ch.client.call(ctx, proto.InboundTypeClose, proto.ChannelData{Channel: ch.name}, nil)
}

// OnReceived registers fn for incoming messages.
func (ch *Channel) OnReceived(fn func(textchan.PendingMessage)) (remove func()) {
	return ch.received.add(fn)
}

// OnClosed registers fn to run when the channel closes.
func (ch *Channel) OnClosed(fn func()) (remove func()) {
	return ch.closedFn.add(func(struct{}) { fn() })
}

// OnBuddyJoined registers fn for room members arriving.
func (ch *Channel) OnBuddyJoined(fn func(*buddy.Buddy)) (remove func()) {
	return ch.joined.add(fn)
}

// OnBuddyLeft registers fn for room members leaving.
func (ch *Channel) OnBuddyLeft(fn func(*buddy.Buddy)) (remove func()) {
	return ch.left.add(fn)
}

// Members lists who is in the channel now, by global handle.
func (ch *Channel) Members(ctx context.Context) ([]*buddy.Buddy, error) {
	var out proto.Members
	if err := ch.client.call(ctx, proto.InboundTypeMembers, proto.ChannelData{Channel: ch.name}, &out); err != nil {
		return nil, err
	}
	buddies := make([]*buddy.Buddy, 0, len(out.Members))
	for _, m := range out.Members {
		buddies = append(buddies, memberBuddy(m))
	}
	return buddies, nil
}

// Group returns the channel itself for rooms.
func (ch *Channel) Group() (textchan.Group, bool) {
	if !ch.IsRoom() {
		return nil, false
	}
	return ch, true
}

// SelfHandle is the caller's channel-specific handle.
func (ch *Channel) SelfHandle(ctx context.Context) (textchan.Handle, error) {
	if err := ch.groupInfo(ctx); err != nil {
		return 0, err
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.selfHandle, nil
}

// GroupFlags returns the room's group flags.
func (ch *Channel) GroupFlags(ctx context.Context) (textchan.GroupFlags, error) {
	if err := ch.groupInfo(ctx); err != nil {
		return 0, err
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.flags, nil
}

// HandleOwners maps channel-specific handles to global handles.
func (ch *Channel) HandleOwners(ctx context.Context, handles []textchan.Handle) ([]textchan.Handle, error) {
	var out proto.Handles
	if err := ch.client.call(ctx, proto.InboundTypeHandleOwners, proto.HandlesData{Channel: ch.name, Handles: toUint32(handles)}, &out); err != nil {
		return nil, err
	}
	owners := make([]textchan.Handle, len(out.Handles))
	for i, h := range out.Handles {
		owners[i] = textchan.Handle(h)
	}
	return owners, nil
}

// groupInfo fetches the self handle and flags unless join already gave them.
func (ch *Channel) groupInfo(ctx context.Context) error {
	ch.mu.Lock()
	known := ch.selfHandle != 0
	ch.mu.Unlock()
	if known {
		return nil
	}

	var info proto.GroupInfo
	if err := ch.client.call(ctx, proto.InboundTypeGroupInfo, proto.ChannelData{Channel: ch.name}, &info); err != nil {
		return err
	}
	ch.mu.Lock()
	ch.selfHandle = textchan.Handle(info.SelfHandle)
	ch.flags = textchan.GroupFlags(info.Flags)
	ch.mu.Unlock()
	return nil
}

func (ch *Channel) fireReceived(msg textchan.PendingMessage) {
	for _, fn := range ch.received.snapshot() {
		fn(msg)
	}
}

func (ch *Channel) fireClosed() {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return
	}
	ch.closed = true
	ch.mu.Unlock()

	for _, fn := range ch.closedFn.snapshot() {
		fn(struct{}{})
	}
}

func (ch *Channel) fireMembersChanged(added, removed []proto.Member) {
	for _, m := range added {
		b := memberBuddy(m)
		for _, fn := range ch.joined.snapshot() {
			fn(b)
		}
	}
	for _, m := range removed {
		b := memberBuddy(m)
		for _, fn := range ch.left.snapshot() {
			fn(b)
		}
	}
}

func memberBuddy(m proto.Member) *buddy.Buddy {
	return &buddy.Buddy{Nick: m.Nick, Color: m.Color, Handle: m.Owner}
}
