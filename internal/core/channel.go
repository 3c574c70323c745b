package core

import (
	"slices"
	"sort"
	"time"
)

// member is one client's view of a channel.
type member struct {
	client  *Client
	handle  uint32
	pending []Pending
	nextID  uint32
}

// channel is a room or a one-to-one channel.
type channel struct {
	name    string
	kind    ChannelKind
	storeID int64 // zero when history is not persisted
	members map[*Client]*member

	// owners maps channel-specific handles to global handles. Entries
	// outlive membership so late messages still resolve.
	owners     map[uint32]uint32
	nextHandle uint32
}

func newChannel(name string, kind ChannelKind) *channel {
	return &channel{
		name:    name,
		kind:    kind,
		members: make(map[*Client]*member),
		owners:  make(map[uint32]uint32),
	}
}

// add inserts c. Rooms allocate a channel-specific handle; direct channels
// use the global one. Returns nil if c is already a member.
func (ch *channel) add(c *Client) *member {
	if _, exists := ch.members[c]; exists {
		return nil
	}
	m := &member{client: c, handle: c.Handle}
	if ch.kind == ChannelKindRoom {
		ch.nextHandle++
		m.handle = ch.nextHandle
		ch.owners[m.handle] = c.Handle
	}
	ch.members[c] = m
	c.channels[ch.name] = struct{}{}
	return m
}

// remove deletes c. Returns the removed member or nil.
func (ch *channel) remove(c *Client) *member {
	m, exists := ch.members[c]
	if !exists {
		return nil
	}
	delete(ch.members, c)
	delete(c.channels, ch.name)
	return m
}

func (ch *channel) empty() bool {
	return len(ch.members) == 0
}

func (ch *channel) flags() uint32 {
	if ch.kind == ChannelKindRoom {
		return GroupFlagChannelSpecificHandles
	}
	return 0
}

func (m *member) info() Member {
	return Member{
		Handle: m.handle,
		Owner:  m.client.Handle,
		Nick:   m.client.Nick,
		Color:  m.client.Color,
	}
}

// memberList returns members ordered by handle.
func (ch *channel) memberList() []Member {
	out := make([]Member, 0, len(ch.members))
	for _, m := range ch.members {
		out = append(out, m.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

// peer returns the other member of a direct channel.
func (ch *channel) peer(c *Client) *Client {
	for other := range ch.members {
		if other != c {
			return other
		}
	}
	return nil
}

// enqueue appends a message to m's pending queue, dropping the oldest entry
// when limit is reached. Reports whether a message was dropped.
func (m *member) enqueue(sender, typ uint32, text string, ts time.Time, limit int) (Pending, bool) {
	m.nextID++
	p := Pending{
		ID:        m.nextID,
		Timestamp: ts,
		Sender:    sender,
		Type:      typ,
		Text:      text,
	}
	dropped := false
	if limit > 0 && len(m.pending) >= limit {
		m.pending = slices.Delete(m.pending, 0, len(m.pending)-limit+1)
		dropped = true
	}
	m.pending = append(m.pending, p)
	return p, dropped
}

// ack removes acknowledged messages and returns the IDs that were unknown.
func (m *member) ack(ids []uint32) []uint32 {
	var unknown []uint32
	for _, id := range ids {
		i := slices.IndexFunc(m.pending, func(p Pending) bool { return p.ID == id })
		if i < 0 {
			unknown = append(unknown, id)
			continue
		}
		m.pending = slices.Delete(m.pending, i, i+1)
	}
	return unknown
}

// broadcast sends ev to all members except skip. Returns clients whose
// event buffer was full.
func (ch *channel) broadcast(ev *Event, skip *Client) []*Client {
	var slow []*Client
	for c := range ch.members {
		if c == skip {
			continue
		}
		if !deliver(c, ev) {
			slow = append(slow, c)
		}
	}
	return slow
}

// deliver sends without blocking. Slow consumers lose the event.
func deliver(c *Client, ev *Event) bool {
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}
