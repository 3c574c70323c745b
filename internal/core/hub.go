package core

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/sugarchat/internal/metrics"
	"github.com/vovakirdan/sugarchat/internal/store"
)

// DefaultPendingLimit bounds each member's unacknowledged queue.
const DefaultPendingLimit = 256

// directPrefix names one-to-one channels; rooms may not use it.
const directPrefix = "dm:"

const storeTimeout = 2 * time.Second

// Status lines persisted with room history.
const (
	joinedFormat = "%s joined the chat"
	leftFormat   = "%s left the chat"
)

type clientCommand struct {
	client *Client
	cmd    *Command
}

// Hub owns every channel and routes commands from clients. All state is
// confined to the Run goroutine.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	inbox      chan clientCommand
	done       chan struct{}

	nextHandle atomic.Uint32

	clients  map[uint32]*Client
	known    map[uint32]BuddyInfo // every buddy ever seen, for late lookups
	channels map[string]*channel

	store        store.Store
	metrics      *metrics.Metrics
	log          *zerolog.Logger
	pendingLimit int
	now          func() time.Time
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.log = logger
		}
	}
}

// WithMetrics records hub activity.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithPendingLimit bounds each member's pending queue. Zero means unbounded.
func WithPendingLimit(n int) Option {
	return func(h *Hub) {
		if n >= 0 {
			h.pendingLimit = n
		}
	}
}

// WithClock overrides the message timestamp source.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

// NewHub creates a hub. st may be nil, in which case history is not kept.
func NewHub(st store.Store, opts ...Option) *Hub {
	nop := zerolog.Nop()
	h := &Hub{
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		inbox:        make(chan clientCommand, 64),
		done:         make(chan struct{}),
		clients:      make(map[uint32]*Client),
		known:        make(map[uint32]BuddyInfo),
		channels:     make(map[string]*channel),
		store:        st,
		log:          &nop,
		pendingLimit: DefaultPendingLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterClient assigns c a global handle and adds it to the hub.
func (h *Hub) RegisterClient(c *Client) {
	c.Handle = h.nextHandle.Add(1)
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// UnregisterClient removes c, leaving every channel it was in.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Run processes registrations and commands until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		case in := <-h.inbox:
			h.handle(in.client, in.cmd)
		case <-ctx.Done():
			for _, c := range h.clients {
				c.stop()
			}
			return
		}
	}
}

func (h *Hub) addClient(c *Client) {
	h.clients[c.Handle] = c
	h.known[c.Handle] = c.Buddy()
	h.metrics.ClientConnected()
	h.log.Debug().Str("client_id", c.ID).Uint32("handle", c.Handle).Str("nick", c.Nick).Msg("client registered")

	go h.forward(c)
}

// forward feeds c.Commands into the hub inbox.
func (h *Hub) forward(c *Client) {
	for {
		select {
		case cmd, ok := <-c.Commands:
			if !ok {
				return
			}
			if cmd == nil {
				continue
			}
			select {
			case h.inbox <- clientCommand{client: c, cmd: cmd}:
			case <-c.done:
				return
			case <-h.done:
				return
			}
		case <-c.done:
			return
		case <-h.done:
			return
		}
	}
}

func (h *Hub) removeClient(c *Client) {
	if _, ok := h.clients[c.Handle]; !ok {
		return
	}
	for name := range c.channels {
		if ch := h.channels[name]; ch != nil {
			h.leave(ch, c)
		}
	}
	delete(h.clients, c.Handle)
	c.stop()
	close(c.Events)
	h.metrics.ClientDisconnected()
	h.log.Debug().Str("client_id", c.ID).Uint32("handle", c.Handle).Msg("client unregistered")
}

func (h *Hub) handle(c *Client, cmd *Command) {
	if _, ok := h.clients[c.Handle]; !ok {
		return
	}

	var (
		ev  *Event
		err *CoreError
	)
	switch cmd.Kind {
	case CommandJoin:
		ev, err = h.join(c, cmd.Channel)
	case CommandOpen:
		ev, err = h.open(c, cmd.Peer)
	case CommandSend:
		ev, err = h.send(c, cmd)
	case CommandListPending:
		ev, err = h.listPending(c, cmd)
	case CommandAck:
		ev, err = h.ack(c, cmd)
	case CommandAliases:
		ev, err = h.aliases(cmd.Handles)
	case CommandHandleOwners:
		ev, err = h.handleOwners(c, cmd)
	case CommandGroupInfo:
		ev, err = h.groupInfo(c, cmd.Channel)
	case CommandMembers:
		ev, err = h.members(c, cmd.Channel)
	case CommandBuddy:
		ev, err = h.buddy(cmd.Peer)
	case CommandSelf:
		b := c.Buddy()
		ev = &Event{Buddy: &b}
	case CommandClose:
		ev, err = h.closeChannel(c, cmd.Channel)
	default:
		err = coreError(ErrCodeBadRequest, "unknown command")
	}

	if err != nil {
		h.log.Debug().Str("client_id", c.ID).Str("op", cmd.Kind.String()).Str("code", err.Code).Msg(err.Message)
		h.emit(c, &Event{Kind: EventError, Op: cmd.Kind, ReqID: cmd.ReqID, Channel: cmd.Channel, Error: err})
		return
	}
	ev.Kind = EventResponse
	ev.Op = cmd.Kind
	ev.ReqID = cmd.ReqID
	if ev.Channel == "" {
		ev.Channel = cmd.Channel
	}
	h.emit(c, ev)

	// The closer hears Closed after its call returns.
	if cmd.Kind == CommandClose {
		h.emit(c, &Event{Kind: EventClosed, Channel: cmd.Channel})
	}
}

// emit delivers ev to c, counting drops.
func (h *Hub) emit(c *Client, ev *Event) {
	if !deliver(c, ev) {
		h.metrics.EventDropped()
		h.log.Warn().Str("client_id", c.ID).Msg("event buffer full, dropping event")
	}
}

// memberOf looks up the caller's membership.
func (h *Hub) memberOf(c *Client, name string) (*channel, *member, *CoreError) {
	ch := h.channels[name]
	if ch == nil {
		return nil, nil, coreError(ErrCodeChannelNotFound, "channel not found")
	}
	m := ch.members[c]
	if m == nil {
		return nil, nil, coreError(ErrCodeNotMember, "not a member of this channel")
	}
	return ch, m, nil
}

func (h *Hub) join(c *Client, name string) (*Event, *CoreError) {
	if name == "" || strings.HasPrefix(name, directPrefix) {
		return nil, coreError(ErrCodeBadRequest, "invalid room name")
	}
	ch := h.channels[name]
	if ch == nil {
		ch = newChannel(name, ChannelKindRoom)
		ch.storeID = h.persistChannel(name, store.ChannelKindRoom)
		h.channels[name] = ch
		h.metrics.ChannelOpened(string(ChannelKindRoom))
	}
	m := ch.add(c)
	if m == nil {
		return nil, coreError(ErrCodeAlreadyJoined, "already joined")
	}

	h.log.Info().Str("room", name).Str("nick", c.Nick).Uint32("handle", m.handle).Msg("joined room")
	h.warnSlow(ch.broadcast(&Event{Kind: EventMembersChanged, Channel: name, Added: []Member{m.info()}}, c))
	h.persistMessage(ch, c, fmt.Sprintf(joinedFormat, c.Nick), true)

	return &Event{Info: &ChannelInfo{
		Name:       name,
		Kind:       ChannelKindRoom,
		SelfHandle: m.handle,
		Flags:      ch.flags(),
		Members:    ch.memberList(),
	}}, nil
}

func directName(a, b uint32) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%s%d:%d", directPrefix, a, b)
}

func (h *Hub) open(c *Client, peerHandle uint32) (*Event, *CoreError) {
	peer := h.clients[peerHandle]
	if peer == nil {
		return nil, coreError(ErrCodeUnknownHandle, "buddy is not connected")
	}
	if peer == c {
		return nil, coreError(ErrCodeBadRequest, "cannot open a channel with yourself")
	}

	name := directName(c.Handle, peer.Handle)
	peerInfo := peer.Buddy()
	if ch := h.channels[name]; ch != nil {
		if ch.members[c] == nil {
			ch.add(c)
		}
		return &Event{Channel: name, Info: &ChannelInfo{Name: name, Kind: ChannelKindDirect, SelfHandle: c.Handle, Peer: &peerInfo}}, nil
	}

	ch := newChannel(name, ChannelKindDirect)
	ch.storeID = h.persistChannel(name, store.ChannelKindDirect)
	ch.add(c)
	ch.add(peer)
	h.channels[name] = ch
	h.metrics.ChannelOpened(string(ChannelKindDirect))
	h.log.Info().Str("channel", name).Str("from", c.Nick).Str("to", peer.Nick).Msg("direct channel opened")

	self := c.Buddy()
	h.emit(peer, &Event{
		Kind:    EventChannelOpened,
		Channel: name,
		Info:    &ChannelInfo{Name: name, Kind: ChannelKindDirect, SelfHandle: peer.Handle, Peer: &self},
	})
	return &Event{Channel: name, Info: &ChannelInfo{Name: name, Kind: ChannelKindDirect, SelfHandle: c.Handle, Peer: &peerInfo}}, nil
}

func (h *Hub) send(c *Client, cmd *Command) (*Event, *CoreError) {
	ch, sender, cerr := h.memberOf(c, cmd.Channel)
	if cerr != nil {
		return nil, cerr
	}

	ts := h.now()
	for other, m := range ch.members {
		if other == c {
			continue
		}
		p, dropped := m.enqueue(sender.handle, cmd.Type, cmd.Text, ts, h.pendingLimit)
		if dropped {
			h.metrics.PendingDropped()
			h.log.Debug().Str("client_id", other.ID).Str("channel", ch.name).Msg("pending queue full, dropped oldest message")
		}
		h.emit(other, &Event{Kind: EventReceived, Channel: ch.name, Message: &p})
	}
	h.metrics.MessageRelayed(string(ch.kind))

	if cmd.Type == MessageTypeNormal {
		h.persistMessage(ch, c, cmd.Text, false)
	}
	return &Event{}, nil
}

func (h *Hub) listPending(c *Client, cmd *Command) (*Event, *CoreError) {
	_, m, cerr := h.memberOf(c, cmd.Channel)
	if cerr != nil {
		return nil, cerr
	}
	out := make([]Pending, len(m.pending))
	copy(out, m.pending)
	if cmd.Clear {
		m.pending = nil
	}
	return &Event{Pending: out}, nil
}

func (h *Hub) ack(c *Client, cmd *Command) (*Event, *CoreError) {
	_, m, cerr := h.memberOf(c, cmd.Channel)
	if cerr != nil {
		return nil, cerr
	}
	if unknown := m.ack(cmd.IDs); len(unknown) > 0 {
		h.log.Debug().Str("client_id", c.ID).Interface("ids", unknown).Msg("ack for unknown message ids")
	}
	return &Event{}, nil
}

func (h *Hub) aliases(handles []uint32) (*Event, *CoreError) {
	names := make([]string, 0, len(handles))
	for _, handle := range handles {
		b, ok := h.known[handle]
		if !ok {
			return nil, coreError(ErrCodeUnknownHandle, fmt.Sprintf("unknown handle %d", handle))
		}
		names = append(names, b.Nick)
	}
	return &Event{Aliases: names}, nil
}

func (h *Hub) handleOwners(c *Client, cmd *Command) (*Event, *CoreError) {
	ch, _, cerr := h.memberOf(c, cmd.Channel)
	if cerr != nil {
		return nil, cerr
	}
	if ch.kind != ChannelKindRoom {
		return nil, coreError(ErrCodeNotGroup, "channel has no group interface")
	}
	owners := make([]uint32, len(cmd.Handles))
	for i, handle := range cmd.Handles {
		owners[i] = ch.owners[handle]
	}
	return &Event{Handles: owners}, nil
}

func (h *Hub) groupInfo(c *Client, name string) (*Event, *CoreError) {
	ch, m, cerr := h.memberOf(c, name)
	if cerr != nil {
		return nil, cerr
	}
	if ch.kind != ChannelKindRoom {
		return nil, coreError(ErrCodeNotGroup, "channel has no group interface")
	}
	return &Event{Group: &GroupInfo{SelfHandle: m.handle, Flags: ch.flags()}}, nil
}

func (h *Hub) members(c *Client, name string) (*Event, *CoreError) {
	ch, _, cerr := h.memberOf(c, name)
	if cerr != nil {
		return nil, cerr
	}
	return &Event{Members: ch.memberList()}, nil
}

func (h *Hub) buddy(handle uint32) (*Event, *CoreError) {
	b, ok := h.known[handle]
	if !ok {
		return nil, coreError(ErrCodeUnknownHandle, fmt.Sprintf("unknown handle %d", handle))
	}
	return &Event{Buddy: &b}, nil
}

func (h *Hub) closeChannel(c *Client, name string) (*Event, *CoreError) {
	ch, _, cerr := h.memberOf(c, name)
	if cerr != nil {
		return nil, cerr
	}
	h.leave(ch, c)
	return &Event{}, nil
}

// leave removes c from ch. Direct channels close for both sides; rooms tell
// the remaining members.
func (h *Hub) leave(ch *channel, c *Client) {
	m := ch.remove(c)
	if m == nil {
		return
	}

	switch ch.kind {
	case ChannelKindDirect:
		if peer := ch.peer(c); peer != nil {
			ch.remove(peer)
			h.emit(peer, &Event{Kind: EventClosed, Channel: ch.name})
		}
		h.log.Info().Str("channel", ch.name).Str("nick", c.Nick).Msg("direct channel closed")
	case ChannelKindRoom:
		h.warnSlow(ch.broadcast(&Event{Kind: EventMembersChanged, Channel: ch.name, Removed: []Member{m.info()}}, nil))
		h.persistMessage(ch, c, fmt.Sprintf(leftFormat, c.Nick), true)
		h.log.Info().Str("room", ch.name).Str("nick", c.Nick).Msg("left room")
	}

	if ch.empty() {
		delete(h.channels, ch.name)
		h.metrics.ChannelClosed(string(ch.kind))
	}
}

func (h *Hub) warnSlow(slow []*Client) {
	for _, c := range slow {
		h.metrics.EventDropped()
		h.log.Warn().Str("client_id", c.ID).Msg("event buffer full, dropping event")
	}
}

func (h *Hub) persistChannel(name string, kind store.ChannelKind) int64 {
	if h.store == nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	ch, err := h.store.EnsureChannel(ctx, name, kind)
	if err != nil {
		h.log.Error().Err(err).Str("channel", name).Msg("failed to persist channel")
		return 0
	}
	return ch.ID
}

func (h *Hub) persistMessage(ch *channel, c *Client, text string, status bool) {
	if h.store == nil || ch.storeID == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	msg := &store.Message{
		ChannelID: ch.storeID,
		Nick:      c.Nick,
		Color:     c.Color,
		Status:    status,
		Body:      text,
		CreatedAt: h.now(),
	}
	if err := h.store.SaveMessage(ctx, msg); err != nil {
		h.log.Error().Err(err).Str("channel", ch.name).Msg("failed to save message")
	}
}
