package core

import (
	"context"
	"fmt"
	"testing"
)

func benchmarkRoomBroadcast(b *testing.B, recipients int) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil, WithPendingLimit(16))
	go hub.Run(ctx)

	sender := NewClient("sender", "sender", "")
	hub.RegisterClient(sender)
	sender.Commands <- &Command{Kind: CommandJoin, Channel: "bench"}
	<-sender.Events

	clients := make([]*Client, 0, recipients)
	for i := range recipients {
		c := NewClient(fmt.Sprintf("c%d", i), "client", "")
		hub.RegisterClient(c)
		c.Commands <- &Command{Kind: CommandJoin, Channel: "bench"}
		clients = append(clients, c)
	}

	// Drain events for all but the first recipient to avoid backpressure.
	target := clients[0]
	for _, c := range clients[1:] {
		go func(cl *Client) {
			for range cl.Events {
			}
		}(c)
	}
	go func() {
		for range sender.Events {
		}
	}()

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		sender.Commands <- &Command{Kind: CommandSend, Channel: "bench", Text: "payload"}
		for ev := range target.Events {
			if ev.Kind == EventReceived {
				break
			}
		}
	}
}

func BenchmarkRoomBroadcast_10(b *testing.B)  { benchmarkRoomBroadcast(b, 10) }
func BenchmarkRoomBroadcast_100(b *testing.B) { benchmarkRoomBroadcast(b, 100) }
func BenchmarkRoomBroadcast_500(b *testing.B) { benchmarkRoomBroadcast(b, 500) }
