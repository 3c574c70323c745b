package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/vovakirdan/sugarchat/internal/buddy"
	"github.com/vovakirdan/sugarchat/internal/proto"
	"github.com/vovakirdan/sugarchat/internal/textchan"
	"github.com/vovakirdan/sugarchat/internal/textchan/relay"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

// run connects two buddies to a room and checks that a message from one
// reaches the other with its sender resolved.
func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "relay WebSocket address")
	room := flag.String("room", "general", "room name")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sender, err := relay.Dial(ctx, *addr, proto.HelloData{Nick: "smoke-sender", Color: buddy.RandomColor()})
	if err != nil {
		return fmt.Errorf("dial sender: %w", err)
	}
	defer sender.Close()

	listener, err := relay.Dial(ctx, *addr, proto.HelloData{Nick: "smoke-listener", Color: buddy.RandomColor()})
	if err != nil {
		return fmt.Errorf("dial listener: %w", err)
	}
	defer listener.Close()

	in, err := listener.Join(ctx, *room)
	if err != nil {
		return fmt.Errorf("listener join: %w", err)
	}
	got := make(chan *buddy.Buddy, 1)
	w := textchan.NewWrapper(in, listener, listener)
	w.SetReceivedCallback(func(b *buddy.Buddy, msg string) {
		if b == nil {
			b = buddy.New(buddy.UnknownNick, "")
		}
		fmt.Printf("received %q from %s\n", msg, b.Nick)
		if msg == *text {
			select {
			case got <- b:
			default:
			}
		}
	})

	out, err := sender.Join(ctx, *room)
	if err != nil {
		return fmt.Errorf("sender join: %w", err)
	}
	if err := textchan.NewWrapper(out, sender, sender).Send(ctx, *text); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	select {
	case b := <-got:
		if b.Nick != "smoke-sender" {
			return fmt.Errorf("sender resolved as %q", b.Nick)
		}
		fmt.Println("ok")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("no message before timeout: %w", ctx.Err())
	}
}
