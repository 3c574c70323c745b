package core

import (
	"context"
	"testing"
	"time"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// call sends cmd and waits for its response or error.
func call(t *testing.T, c *Client, cmd *Command) *Event {
	t.Helper()

	c.Commands <- cmd
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-c.Events:
			if ev != nil && (ev.Kind == EventResponse || ev.Kind == EventError) && ev.ReqID == cmd.ReqID {
				return ev
			}
		case <-deadline:
			t.Fatalf("no response to %s (req %q)", cmd.Kind, cmd.ReqID)
			return nil
		}
	}
}

func startHub(t *testing.T, opts ...Option) *Hub {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	hub := NewHub(nil, opts...)
	go hub.Run(ctx)
	return hub
}

func connect(t *testing.T, hub *Hub, id, nick string) *Client {
	t.Helper()

	c := NewClient(id, nick, "#000000,#FFFFFF")
	hub.RegisterClient(c)
	return c
}
