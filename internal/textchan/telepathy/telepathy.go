// Package telepathy implements textchan over the Telepathy D-Bus API.
package telepathy

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/sugarchat/internal/buddy"
	"github.com/vovakirdan/sugarchat/internal/textchan"
)

// D-Bus interface names.
const (
	IfaceChannel            = "org.freedesktop.Telepathy.Channel"
	IfaceChannelTypeText    = "org.freedesktop.Telepathy.Channel.Type.Text"
	IfaceChannelGroup       = "org.freedesktop.Telepathy.Channel.Interface.Group"
	IfaceConnection         = "org.freedesktop.Telepathy.Connection"
	IfaceConnectionAliasing = "org.freedesktop.Telepathy.Connection.Interface.Aliasing"
)

// Invitation names the text channel of an incoming private chat.
type Invitation struct {
	BusName    string
	Connection dbus.ObjectPath
	Channel    dbus.ObjectPath
}

// ParseURI decodes an invitation of the form ["bus", "/conn", "/chan"].
func ParseURI(uri string) (Invitation, error) {
	var parts []string
	if err := json.Unmarshal([]byte(uri), &parts); err != nil {
		return Invitation{}, fmt.Errorf("decode invitation: %w", err)
	}
	if len(parts) != 3 {
		return Invitation{}, fmt.Errorf("invitation needs 3 elements, got %d", len(parts))
	}
	inv := Invitation{
		BusName:    parts[0],
		Connection: dbus.ObjectPath(parts[1]),
		Channel:    dbus.ObjectPath(parts[2]),
	}
	if !inv.Connection.IsValid() || !inv.Channel.IsValid() {
		return Invitation{}, fmt.Errorf("invalid object path in invitation")
	}
	return inv, nil
}

// pendingTuple is the (uuuuus) struct of ListPendingMessages and Received.
type pendingTuple struct {
	ID        uint32
	Timestamp uint32
	Sender    uint32
	Type      uint32
	Flags     uint32
	Text      string
}

func (p pendingTuple) message() textchan.PendingMessage {
	return textchan.PendingMessage{
		ID:        p.ID,
		Timestamp: time.Unix(int64(p.Timestamp), 0),
		Sender:    textchan.Handle(p.Sender),
		Type:      textchan.MessageType(p.Type),
		Flags:     p.Flags,
		Text:      p.Text,
	}
}

type signalKey struct {
	path dbus.ObjectPath
	name string
}

// Bus routes Telepathy signals to handlers. One Bus serves every channel
// and connection on a D-Bus connection.
type Bus struct {
	conn *dbus.Conn
	log  *zerolog.Logger

	mu       sync.Mutex
	handlers map[signalKey]map[int]func(*dbus.Signal)
	nextID   int

	signals chan *dbus.Signal
	done    chan struct{}
}

// NewBus starts routing signals received on conn.
func NewBus(conn *dbus.Conn, logger *zerolog.Logger) *Bus {
	b := &Bus{
		conn:     conn,
		log:      logger,
		handlers: make(map[signalKey]map[int]func(*dbus.Signal)),
		signals:  make(chan *dbus.Signal, 32),
		done:     make(chan struct{}),
	}
	conn.Signal(b.signals)
	go b.dispatch()
	return b
}

// Close stops routing. The D-Bus connection is left open.
func (b *Bus) Close() {
	b.conn.RemoveSignal(b.signals)
	close(b.done)
}

func (b *Bus) dispatch() {
	for {
		select {
		case sig, ok := <-b.signals:
			if !ok {
				return
			}
			b.mu.Lock()
			var fns []func(*dbus.Signal)
			for _, fn := range b.handlers[signalKey{path: sig.Path, name: sig.Name}] {
				fns = append(fns, fn)
			}
			b.mu.Unlock()
			for _, fn := range fns {
				fn(sig)
			}
		case <-b.done:
			return
		}
	}
}

// connect adds a match rule and handler; the returned func removes both.
func (b *Bus) connect(path dbus.ObjectPath, iface, member string, fn func(*dbus.Signal)) func() {
	opts := []dbus.MatchOption{
		dbus.WithMatchObjectPath(path),
		dbus.WithMatchInterface(iface),
		dbus.WithMatchMember(member),
	}
	if err := b.conn.AddMatchSignal(opts...); err != nil {
		b.log.Warn().Err(err).Str("path", string(path)).Str("member", member).Msg("add signal match")
	}

	key := signalKey{path: path, name: iface + "." + member}
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.handlers[key] == nil {
		b.handlers[key] = make(map[int]func(*dbus.Signal))
	}
	b.handlers[key][id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers[key], id)
			if len(b.handlers[key]) == 0 {
				delete(b.handlers, key)
			}
			b.mu.Unlock()
			if err := b.conn.RemoveMatchSignal(opts...); err != nil {
				b.log.Debug().Err(err).Str("member", member).Msg("remove signal match")
			}
		})
	}
}

// Channel is a Telepathy text channel.
type Channel struct {
	bus   *Bus
	obj   dbus.BusObject
	path  dbus.ObjectPath
	group bool
}

// OpenChannel binds to a text channel object and probes its interfaces.
func OpenChannel(ctx context.Context, bus *Bus, busName string, path dbus.ObjectPath) (*Channel, error) {
	obj := bus.conn.Object(busName, path)

	var ifaces []string
	if err := obj.CallWithContext(ctx, IfaceChannel+".GetInterfaces", 0).Store(&ifaces); err != nil {
		return nil, fmt.Errorf("get channel interfaces: %w", err)
	}
	ch := &Channel{bus: bus, obj: obj, path: path}
	for _, iface := range ifaces {
		if iface == IfaceChannelGroup {
			ch.group = true
		}
	}
	return ch, nil
}

// Send implements textchan.Channel.
func (c *Channel) Send(ctx context.Context, typ textchan.MessageType, text string) error {
	return c.obj.CallWithContext(ctx, IfaceChannelTypeText+".Send", 0, uint32(typ), text).Err
}

// ListPendingMessages implements textchan.Channel.
func (c *Channel) ListPendingMessages(ctx context.Context, clear bool) ([]textchan.PendingMessage, error) {
	var tuples []pendingTuple
	if err := c.obj.CallWithContext(ctx, IfaceChannelTypeText+".ListPendingMessages", 0, clear).Store(&tuples); err != nil {
		return nil, err
	}
	out := make([]textchan.PendingMessage, 0, len(tuples))
	for _, t := range tuples {
		out = append(out, t.message())
	}
	return out, nil
}

// AcknowledgePendingMessages implements textchan.Channel.
func (c *Channel) AcknowledgePendingMessages(ctx context.Context, ids []uint32) error {
	return c.obj.CallWithContext(ctx, IfaceChannelTypeText+".AcknowledgePendingMessages", 0, ids).Err
}

// Close implements textchan.Channel.
func (c *Channel) Close(ctx context.Context) error {
	return c.obj.CallWithContext(ctx, IfaceChannel+".Close", 0).Err
}

// OnReceived implements textchan.Channel.
func (c *Channel) OnReceived(fn func(textchan.PendingMessage)) func() {
	return c.bus.connect(c.path, IfaceChannelTypeText, "Received", func(sig *dbus.Signal) {
		var t pendingTuple
		if err := dbus.Store(sig.Body, &t.ID, &t.Timestamp, &t.Sender, &t.Type, &t.Flags, &t.Text); err != nil {
			c.bus.log.Warn().Err(err).Msg("decode Received signal")
			return
		}
		fn(t.message())
	})
}

// OnClosed implements textchan.Channel.
func (c *Channel) OnClosed(fn func()) func() {
	return c.bus.connect(c.path, IfaceChannel, "Closed", func(*dbus.Signal) {
		fn()
	})
}

// Group implements textchan.Channel.
func (c *Channel) Group() (textchan.Group, bool) {
	if !c.group {
		return nil, false
	}
	return c, true
}

// SelfHandle implements textchan.Group.
func (c *Channel) SelfHandle(ctx context.Context) (textchan.Handle, error) {
	var h uint32
	err := c.obj.CallWithContext(ctx, IfaceChannelGroup+".GetSelfHandle", 0).Store(&h)
	return textchan.Handle(h), err
}

// GroupFlags implements textchan.Group.
func (c *Channel) GroupFlags(ctx context.Context) (textchan.GroupFlags, error) {
	var f uint32
	err := c.obj.CallWithContext(ctx, IfaceChannelGroup+".GetGroupFlags", 0).Store(&f)
	return textchan.GroupFlags(f), err
}

// HandleOwners implements textchan.Group.
func (c *Channel) HandleOwners(ctx context.Context, handles []textchan.Handle) ([]textchan.Handle, error) {
	var owners []uint32
	if err := c.obj.CallWithContext(ctx, IfaceChannelGroup+".GetHandleOwners", 0, toUint32(handles)).Store(&owners); err != nil {
		return nil, err
	}
	return fromUint32(owners), nil
}

// Connection is a Telepathy connection used for aliases and self handle.
// It resolves buddies from aliases, since there is no presence service on
// a bare bus.
type Connection struct {
	obj dbus.BusObject
}

// OpenConnection binds to a connection object.
func OpenConnection(bus *Bus, busName string, path dbus.ObjectPath) *Connection {
	return &Connection{obj: bus.conn.Object(busName, path)}
}

// RequestAliases implements textchan.Aliasing.
func (c *Connection) RequestAliases(ctx context.Context, handles []textchan.Handle) ([]string, error) {
	var names []string
	err := c.obj.CallWithContext(ctx, IfaceConnectionAliasing+".RequestAliases", 0, toUint32(handles)).Store(&names)
	return names, err
}

// SelfHandle implements textchan.Presence.
func (c *Connection) SelfHandle(ctx context.Context) (textchan.Handle, error) {
	var h uint32
	err := c.obj.CallWithContext(ctx, IfaceConnection+".GetSelfHandle", 0).Store(&h)
	return textchan.Handle(h), err
}

// BuddyByHandle implements textchan.Presence.
func (c *Connection) BuddyByHandle(ctx context.Context, h textchan.Handle) (*buddy.Buddy, error) {
	names, err := c.RequestAliases(ctx, []textchan.Handle{h})
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, textchan.ErrUnknownHandle
	}
	return &buddy.Buddy{Nick: names[0], Color: buddy.PrivateChatColor, Handle: uint32(h)}, nil
}

func toUint32(hs []textchan.Handle) []uint32 {
	out := make([]uint32, len(hs))
	for i, h := range hs {
		out[i] = uint32(h)
	}
	return out
}

func fromUint32(vs []uint32) []textchan.Handle {
	out := make([]textchan.Handle, len(vs))
	for i, v := range vs {
		out[i] = textchan.Handle(v)
	}
	return out
}
