package core

import "sync"

// Client is a relay participant as seen by the core layer.
type Client struct {
	ID     string
	Handle uint32 // global handle, assigned by RegisterClient
	Nick   string
	Color  string

	Commands chan *Command
	Events   chan *Event

	channels map[string]struct{} // owned by the hub goroutine
	done     chan struct{}
	doneOnce sync.Once
}

// NewClient constructs a client with initialized channels.
func NewClient(id, nick, color string) *Client {
	if nick == "" {
		nick = id
	}
	return &Client{
		ID:       id,
		Nick:     nick,
		Color:    color,
		Commands: make(chan *Command, 16),
		Events:   make(chan *Event, 64),
		channels: make(map[string]struct{}),
		done:     make(chan struct{}),
	}
}

// Buddy describes the client by its global handle.
func (c *Client) Buddy() BuddyInfo {
	return BuddyInfo{Handle: c.Handle, Nick: c.Nick, Color: c.Color}
}

func (c *Client) stop() {
	c.doneOnce.Do(func() { close(c.done) })
}
