package core

import (
	"context"
	"testing"
	"time"

	"github.com/vovakirdan/sugarchat/internal/store/sqlite"
)

func TestHubJoinSendAndLeave(t *testing.T) {
	hub := startHub(t)
	alice := connect(t, hub, "a", "alice")
	bob := connect(t, hub, "b", "bob")

	aliceJoin := call(t, alice, &Command{Kind: CommandJoin, ReqID: "1", Channel: "general"})
	if aliceJoin.Kind != EventResponse || aliceJoin.Info == nil {
		t.Fatalf("unexpected join response: %+v", aliceJoin)
	}
	if aliceJoin.Info.Flags != GroupFlagChannelSpecificHandles || aliceJoin.Info.SelfHandle != 1 {
		t.Fatalf("unexpected channel info: %+v", aliceJoin.Info)
	}

	bobJoin := call(t, bob, &Command{Kind: CommandJoin, ReqID: "2", Channel: "general"})
	if len(bobJoin.Info.Members) != 2 || bobJoin.Info.SelfHandle != 2 {
		t.Fatalf("unexpected members: %+v", bobJoin.Info)
	}

	// Alice sees Bob arrive.
	changed := mustEvent(t, alice.Events, EventMembersChanged)
	if len(changed.Added) != 1 || changed.Added[0].Nick != "bob" || changed.Added[0].Owner != bob.Handle {
		t.Fatalf("unexpected members_changed: %+v", changed)
	}

	call(t, alice, &Command{Kind: CommandSend, ReqID: "3", Channel: "general", Text: "hi"})

	recv := mustEvent(t, bob.Events, EventReceived)
	if recv.Message.Text != "hi" || recv.Message.Sender != 1 || recv.Channel != "general" {
		t.Fatalf("unexpected received event: %+v", recv.Message)
	}

	// The sender's channel-specific handle maps back to her global handle.
	owners := call(t, bob, &Command{Kind: CommandHandleOwners, ReqID: "4", Channel: "general", Handles: []uint32{1, 99}})
	if len(owners.Handles) != 2 || owners.Handles[0] != alice.Handle || owners.Handles[1] != 0 {
		t.Fatalf("unexpected owners: %+v", owners.Handles)
	}

	// Alice leaves; Bob sees members_changed, Alice gets closed.
	call(t, alice, &Command{Kind: CommandClose, ReqID: "5", Channel: "general"})
	left := mustEvent(t, bob.Events, EventMembersChanged)
	if len(left.Removed) != 1 || left.Removed[0].Nick != "alice" {
		t.Fatalf("unexpected leave event: %+v", left)
	}
	closed := mustEvent(t, alice.Events, EventClosed)
	if closed.Channel != "general" {
		t.Fatalf("unexpected closed event: %+v", closed)
	}

	// Departed handles still resolve.
	owners = call(t, bob, &Command{Kind: CommandHandleOwners, ReqID: "6", Channel: "general", Handles: []uint32{1}})
	if owners.Handles[0] != alice.Handle {
		t.Fatalf("expected departed owner to resolve, got %+v", owners.Handles)
	}
}

func TestHubDoubleJoinProducesError(t *testing.T) {
	hub := startHub(t)
	alice := connect(t, hub, "a", "alice")

	call(t, alice, &Command{Kind: CommandJoin, ReqID: "1", Channel: "general"})
	ev := call(t, alice, &Command{Kind: CommandJoin, ReqID: "2", Channel: "general"})
	if ev.Kind != EventError || ev.Error.Code != ErrCodeAlreadyJoined {
		t.Fatalf("expected already_joined error, got %+v", ev)
	}
}

func TestHubSendWithoutJoinProducesError(t *testing.T) {
	hub := startHub(t)
	alice := connect(t, hub, "a", "alice")

	ev := call(t, alice, &Command{Kind: CommandSend, ReqID: "1", Channel: "general", Text: "hi"})
	if ev.Kind != EventError || ev.Error.Code != ErrCodeChannelNotFound {
		t.Fatalf("expected channel_not_found error, got %+v", ev)
	}

	bob := connect(t, hub, "b", "bob")
	call(t, bob, &Command{Kind: CommandJoin, ReqID: "2", Channel: "general"})
	ev = call(t, alice, &Command{Kind: CommandSend, ReqID: "3", Channel: "general", Text: "hi"})
	if ev.Kind != EventError || ev.Error.Code != ErrCodeNotMember {
		t.Fatalf("expected not_member error, got %+v", ev)
	}
}

func TestHubRejectsDirectNamesAsRooms(t *testing.T) {
	hub := startHub(t)
	alice := connect(t, hub, "a", "alice")

	ev := call(t, alice, &Command{Kind: CommandJoin, ReqID: "1", Channel: "dm:1:2"})
	if ev.Kind != EventError || ev.Error.Code != ErrCodeBadRequest {
		t.Fatalf("expected bad_request, got %+v", ev)
	}
}

func TestHubPendingAndAck(t *testing.T) {
	hub := startHub(t)
	alice := connect(t, hub, "a", "alice")
	bob := connect(t, hub, "b", "bob")

	call(t, alice, &Command{Kind: CommandJoin, ReqID: "1", Channel: "general"})
	call(t, bob, &Command{Kind: CommandJoin, ReqID: "2", Channel: "general"})
	call(t, alice, &Command{Kind: CommandSend, ReqID: "3", Channel: "general", Text: "one"})
	call(t, alice, &Command{Kind: CommandSend, ReqID: "4", Channel: "general", Text: "two"})

	pending := call(t, bob, &Command{Kind: CommandListPending, ReqID: "5", Channel: "general"})
	if len(pending.Pending) != 2 || pending.Pending[0].Text != "one" || pending.Pending[1].ID != 2 {
		t.Fatalf("unexpected pending: %+v", pending.Pending)
	}

	call(t, bob, &Command{Kind: CommandAck, ReqID: "6", Channel: "general", IDs: []uint32{1, 42}})
	pending = call(t, bob, &Command{Kind: CommandListPending, ReqID: "7", Channel: "general", Clear: true})
	if len(pending.Pending) != 1 || pending.Pending[0].Text != "two" {
		t.Fatalf("unexpected pending after ack: %+v", pending.Pending)
	}

	pending = call(t, bob, &Command{Kind: CommandListPending, ReqID: "8", Channel: "general"})
	if len(pending.Pending) != 0 {
		t.Fatalf("expected clear to empty the queue, got %+v", pending.Pending)
	}

	// The sender has nothing pending.
	pending = call(t, alice, &Command{Kind: CommandListPending, ReqID: "9", Channel: "general"})
	if len(pending.Pending) != 0 {
		t.Fatalf("sender should not receive own messages: %+v", pending.Pending)
	}
}

func TestHubPendingLimitDropsOldest(t *testing.T) {
	hub := startHub(t, WithPendingLimit(2))
	alice := connect(t, hub, "a", "alice")
	bob := connect(t, hub, "b", "bob")

	call(t, alice, &Command{Kind: CommandJoin, ReqID: "1", Channel: "general"})
	call(t, bob, &Command{Kind: CommandJoin, ReqID: "2", Channel: "general"})
	for i, text := range []string{"one", "two", "three"} {
		call(t, alice, &Command{Kind: CommandSend, ReqID: string(rune('a' + i)), Channel: "general", Text: text})
	}

	pending := call(t, bob, &Command{Kind: CommandListPending, ReqID: "z", Channel: "general"})
	if len(pending.Pending) != 2 || pending.Pending[0].Text != "two" || pending.Pending[1].Text != "three" {
		t.Fatalf("unexpected pending: %+v", pending.Pending)
	}
}

func TestHubDirectChannel(t *testing.T) {
	hub := startHub(t)
	alice := connect(t, hub, "a", "alice")
	bob := connect(t, hub, "b", "bob")

	open := call(t, alice, &Command{Kind: CommandOpen, ReqID: "1", Peer: bob.Handle})
	if open.Kind != EventResponse || open.Info.Kind != ChannelKindDirect || open.Info.Peer.Nick != "bob" {
		t.Fatalf("unexpected open response: %+v", open)
	}
	name := open.Info.Name

	opened := mustEvent(t, bob.Events, EventChannelOpened)
	if opened.Channel != name || opened.Info.Peer.Handle != alice.Handle || opened.Info.SelfHandle != bob.Handle {
		t.Fatalf("unexpected channel_opened: %+v", opened.Info)
	}

	// Direct channels carry global handles and no group interface.
	call(t, bob, &Command{Kind: CommandSend, ReqID: "2", Channel: name, Text: "psst"})
	recv := mustEvent(t, alice.Events, EventReceived)
	if recv.Message.Sender != bob.Handle {
		t.Fatalf("expected global sender handle, got %d", recv.Message.Sender)
	}
	ev := call(t, alice, &Command{Kind: CommandGroupInfo, ReqID: "3", Channel: name})
	if ev.Kind != EventError || ev.Error.Code != ErrCodeNotGroup {
		t.Fatalf("expected not_group, got %+v", ev)
	}

	aliases := call(t, alice, &Command{Kind: CommandAliases, ReqID: "4", Handles: []uint32{bob.Handle}})
	if len(aliases.Aliases) != 1 || aliases.Aliases[0] != "bob" {
		t.Fatalf("unexpected aliases: %+v", aliases.Aliases)
	}

	// Bob disconnects; Alice's channel closes.
	hub.UnregisterClient(bob)
	closed := mustEvent(t, alice.Events, EventClosed)
	if closed.Channel != name {
		t.Fatalf("unexpected closed event: %+v", closed)
	}

	// Bob is gone but still known.
	b := call(t, alice, &Command{Kind: CommandBuddy, ReqID: "5", Peer: bob.Handle})
	if b.Kind != EventResponse || b.Buddy.Nick != "bob" {
		t.Fatalf("unexpected buddy: %+v", b)
	}
	ev = call(t, alice, &Command{Kind: CommandOpen, ReqID: "6", Peer: bob.Handle})
	if ev.Kind != EventError || ev.Error.Code != ErrCodeUnknownHandle {
		t.Fatalf("expected unknown_handle for a disconnected peer, got %+v", ev)
	}
}

func TestHubUnknownHandles(t *testing.T) {
	hub := startHub(t)
	alice := connect(t, hub, "a", "alice")

	ev := call(t, alice, &Command{Kind: CommandAliases, ReqID: "1", Handles: []uint32{alice.Handle, 999}})
	if ev.Kind != EventError || ev.Error.Code != ErrCodeUnknownHandle {
		t.Fatalf("expected unknown_handle, got %+v", ev)
	}

	self := call(t, alice, &Command{Kind: CommandSelf, ReqID: "2"})
	if self.Buddy == nil || self.Buddy.Handle != alice.Handle || self.Buddy.Nick != "alice" {
		t.Fatalf("unexpected self: %+v", self.Buddy)
	}

	ev = call(t, alice, &Command{Kind: CommandOpen, ReqID: "3", Peer: alice.Handle})
	if ev.Kind != EventError || ev.Error.Code != ErrCodeBadRequest {
		t.Fatalf("expected bad_request for self open, got %+v", ev)
	}
}

func TestHubPersistsRoomHistory(t *testing.T) {
	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	hub := NewHub(st, WithClock(func() time.Time { return fixed }))
	go hub.Run(ctx)

	alice := connect(t, hub, "a", "alice")
	call(t, alice, &Command{Kind: CommandJoin, ReqID: "1", Channel: "general"})
	call(t, alice, &Command{Kind: CommandSend, ReqID: "2", Channel: "general", Text: "hello"})
	call(t, alice, &Command{Kind: CommandSend, ReqID: "3", Channel: "general", Type: 2, Text: "notice"})
	call(t, alice, &Command{Kind: CommandClose, ReqID: "4", Channel: "general"})

	ch, err := st.GetChannelByName(ctx, "general")
	if err != nil {
		t.Fatalf("get channel: %v", err)
	}
	msgs, err := st.ListMessages(ctx, ch.ID, 10, nil)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected join, message and leave, got %d", len(msgs))
	}
	if !msgs[0].Status || msgs[0].Body != "alice joined the chat" {
		t.Fatalf("unexpected first message: %+v", msgs[0])
	}
	if msgs[1].Status || msgs[1].Body != "hello" || msgs[1].Nick != "alice" {
		t.Fatalf("unexpected second message: %+v", msgs[1])
	}
	if !msgs[2].Status || msgs[2].Body != "alice left the chat" {
		t.Fatalf("unexpected last message: %+v", msgs[2])
	}
}
