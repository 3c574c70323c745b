// Package relay talks to a sugarchat relay over WebSocket and exposes its
// rooms and one-to-one channels as text channels.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/sugarchat/internal/buddy"
	"github.com/vovakirdan/sugarchat/internal/proto"
	"github.com/vovakirdan/sugarchat/internal/textchan"
)

const readLimit = 1 << 20

// ErrDisconnected is returned for calls on a closed or broken connection.
var ErrDisconnected = errors.New("relay connection closed")

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.log = logger
		}
	}
}

// Client is a connection to the relay. It implements textchan.Aliasing and
// textchan.Presence for the channels it opens.
type Client struct {
	conn *websocket.Conn
	self buddy.Buddy
	log  *zerolog.Logger

	mu       sync.Mutex
	closed   bool
	calls    map[string]chan proto.Frame
	channels map[string]*Channel

	opened handlers[*Channel]

	events   *queue
	cancel   context.CancelFunc
	readDone chan struct{}
	wg       sync.WaitGroup
}

var (
	_ textchan.Aliasing = (*Client)(nil)
	_ textchan.Presence = (*Client)(nil)
)

// Dial connects to the relay at url and introduces the caller with hello.
func Dial(ctx context.Context, url string, hello proto.HelloData, opts ...Option) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}
	conn.SetReadLimit(readLimit)

	hello.Protocol = proto.ProtocolVersion
	self, err := handshake(ctx, conn, hello)
	if err != nil {
		conn.Close(websocket.StatusNormalClosure, "handshake failed")
		return nil, err
	}

	nop := zerolog.Nop()
	c := &Client{
		conn:     conn,
		self:     buddy.Buddy{Nick: self.Nick, Color: self.Color, Handle: self.Handle},
		log:      &nop,
		calls:    make(map[string]chan proto.Frame),
		channels: make(map[string]*Channel),
		events:   newQueue(),
		readDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.wg.Add(2)
	go c.readLoop(runCtx)
	go c.dispatch()

	c.log.Info().Str("nick", self.Nick).Uint32("handle", self.Handle).Msg("connected to relay")
	return c, nil
}

func handshake(ctx context.Context, conn *websocket.Conn, hello proto.HelloData) (proto.Buddy, error) {
	data, err := json.Marshal(hello)
	if err != nil {
		return proto.Buddy{}, err
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeHello, ReqID: "hello", Data: data}); err != nil {
		return proto.Buddy{}, fmt.Errorf("send hello: %w", err)
	}
	var frame proto.Frame
	if err := wsjson.Read(ctx, conn, &frame); err != nil {
		return proto.Buddy{}, fmt.Errorf("read hello: %w", err)
	}
	if frame.Type == proto.OutboundTypeError {
		if frame.Error == nil {
			return proto.Buddy{}, errors.New("hello rejected")
		}
		return proto.Buddy{}, frame.Error
	}
	var self proto.Buddy
	if err := json.Unmarshal(frame.Data, &self); err != nil {
		return proto.Buddy{}, fmt.Errorf("decode hello: %w", err)
	}
	return self, nil
}

// Self returns the buddy the relay assigned to this connection.
func (c *Client) Self() buddy.Buddy {
	return c.self
}

// SelfHandle returns the caller's global handle.
func (c *Client) SelfHandle(context.Context) (textchan.Handle, error) {
	return textchan.Handle(c.self.Handle), nil
}

// BuddyByHandle resolves a global handle, including buddies that have left.
func (c *Client) BuddyByHandle(ctx context.Context, h textchan.Handle) (*buddy.Buddy, error) {
	var b proto.Buddy
	if err := c.call(ctx, proto.InboundTypeBuddy, proto.BuddyData{Handle: uint32(h)}, &b); err != nil {
		return nil, err
	}
	return &buddy.Buddy{Nick: b.Nick, Color: b.Color, Handle: b.Handle}, nil
}

// RequestAliases resolves global handles to nicks.
func (c *Client) RequestAliases(ctx context.Context, handles []textchan.Handle) ([]string, error) {
	var out proto.Aliases
	if err := c.call(ctx, proto.InboundTypeAliases, proto.HandlesData{Handles: toUint32(handles)}, &out); err != nil {
		return nil, err
	}
	return out.Aliases, nil
}

// Join enters a room, creating it when needed.
func (c *Client) Join(ctx context.Context, room string) (*Channel, error) {
	var info proto.ChannelInfo
	if err := c.call(ctx, proto.InboundTypeJoin, proto.ChannelData{Channel: room}, &info); err != nil {
		return nil, err
	}
	return c.track(info), nil
}

// Open opens a one-to-one channel with the buddy behind a global handle.
func (c *Client) Open(ctx context.Context, peer textchan.Handle) (*Channel, error) {
	var info proto.ChannelInfo
	if err := c.call(ctx, proto.InboundTypeOpen, proto.OpenData{Handle: uint32(peer)}, &info); err != nil {
		return nil, err
	}
	return c.track(info), nil
}

// OnChannelOpened runs fn for one-to-one channels other buddies open with us.
func (c *Client) OnChannelOpened(fn func(*Channel)) (remove func()) {
	return c.opened.add(fn)
}

// Close disconnects. Every open channel reports closed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.cancel == nil {
		c.mu.Unlock()
		return nil
	}
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	err := c.conn.Close(websocket.StatusNormalClosure, "bye")
	cancel()
	c.wg.Wait()
	if err != nil {
		c.log.Debug().Err(err).Msg("close relay connection")
	}
	return nil
}

func (c *Client) track(info proto.ChannelInfo) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.channels[info.Channel]; ok {
		return ch
	}
	ch := newChannel(c, info)
	c.channels[info.Channel] = ch
	return ch
}

func (c *Client) channel(name string) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channels[name]
}

func (c *Client) forget(name string) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := c.channels[name]
	delete(c.channels, name)
	return ch
}

// call sends a request and waits for its response. Error frames are
// returned as *proto.Error.
func (c *Client) call(ctx context.Context, typ string, data, out any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", typ, err)
	}
	reqID := uuid.NewString()
	resp := make(chan proto.Frame, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrDisconnected
	}
	c.calls[reqID] = resp
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.calls, reqID)
		c.mu.Unlock()
	}()

	if err := wsjson.Write(ctx, c.conn, proto.Inbound{Type: typ, ReqID: reqID, Data: raw}); err != nil {
		return fmt.Errorf("write %s: %w", typ, err)
	}

	select {
	case frame, ok := <-resp:
		if !ok {
			return ErrDisconnected
		}
		if frame.Type == proto.OutboundTypeError {
			if frame.Error == nil {
				return fmt.Errorf("%s failed", typ)
			}
			return frame.Error
		}
		if out != nil && len(frame.Data) > 0 {
			if err := json.Unmarshal(frame.Data, out); err != nil {
				return fmt.Errorf("decode %s: %w", typ, err)
			}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) readLoop(ctx context.Context) {
	defer c.wg.Done()
	defer close(c.readDone)
	defer c.disconnected()

	for {
		var frame proto.Frame
		if err := wsjson.Read(ctx, c.conn, &frame); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				c.log.Warn().Err(err).Msg("relay read failed")
			}
			return
		}

		if frame.Type != proto.OutboundTypeEvent {
			c.mu.Lock()
			resp := c.calls[frame.ReqID]
			c.mu.Unlock()
			if resp == nil {
				c.log.Debug().Str("req_id", frame.ReqID).Msg("response without caller")
				continue
			}
			resp <- frame
			continue
		}
		c.handleEvent(frame)
	}
}

func (c *Client) handleEvent(frame proto.Frame) {
	switch frame.Event {
	case proto.EventReceived:
		var data proto.EventReceivedData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			c.log.Warn().Err(err).Msg("decode received event")
			return
		}
		if ch := c.channel(data.Channel); ch != nil {
			msg := pendingIn(data.Message)
			c.events.push(func() { ch.fireReceived(msg) })
		}
	case proto.EventClosed:
		var data proto.EventClosedData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			c.log.Warn().Err(err).Msg("decode closed event")
			return
		}
		if ch := c.forget(data.Channel); ch != nil {
			c.events.push(ch.fireClosed)
		}
	case proto.EventMembersChanged:
		var data proto.EventMembersChangedData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			c.log.Warn().Err(err).Msg("decode members_changed event")
			return
		}
		if ch := c.channel(data.Channel); ch != nil {
			c.events.push(func() { ch.fireMembersChanged(data.Added, data.Removed) })
		}
	case proto.EventChannelOpened:
		var info proto.ChannelInfo
		if err := json.Unmarshal(frame.Data, &info); err != nil {
			c.log.Warn().Err(err).Msg("decode channel_opened event")
			return
		}
		ch := c.track(info)
		c.events.push(func() {
			for _, fn := range c.opened.snapshot() {
				fn(ch)
			}
		})
	default:
		c.log.Debug().Str("event", frame.Event).Msg("ignoring unknown event")
	}
}

// disconnected fails outstanding calls and closes every channel.
func (c *Client) disconnected() {
	c.mu.Lock()
	c.closed = true
	for id, resp := range c.calls {
		close(resp)
		delete(c.calls, id)
	}
	channels := c.channels
	c.channels = make(map[string]*Channel)
	c.mu.Unlock()

	for _, ch := range channels {
		c.events.push(ch.fireClosed)
	}
}

// dispatch runs event callbacks in order, off the read loop.
func (c *Client) dispatch() {
	defer c.wg.Done()
	for {
		for _, fn := range c.events.drain() {
			fn()
		}
		select {
		case <-c.events.notify:
		case <-c.readDone:
			for _, fn := range c.events.drain() {
				fn()
			}
			return
		}
	}
}

func pendingIn(m proto.PendingMessage) textchan.PendingMessage {
	return textchan.PendingMessage{
		ID:        m.ID,
		Timestamp: time.Unix(m.Timestamp, 0),
		Sender:    textchan.Handle(m.Sender),
		Type:      textchan.MessageType(m.Type),
		Flags:     m.Flags,
		Text:      m.Text,
	}
}

func toUint32(hs []textchan.Handle) []uint32 {
	out := make([]uint32, len(hs))
	for i, h := range hs {
		out[i] = uint32(h)
	}
	return out
}
