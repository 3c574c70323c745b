package http

import (
	"context"
	"testing"

	"github.com/vovakirdan/sugarchat/internal/config"
	"github.com/vovakirdan/sugarchat/internal/core"
	"github.com/vovakirdan/sugarchat/internal/proto"
)

func requireJWT(cfg *config.Config) { cfg.JWTRequired = true }

func TestWebSocketJWTSuccess(t *testing.T) {
	env := newTestEnv(t, requireJWT)
	ctx := testContext(t)

	token, err := env.auth.Register(context.Background(), "alice", "password123", "#00588C,#00A0FF")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	conn := env.dial(ctx, t)
	frame := call(ctx, t, conn, proto.InboundTypeHello, "1", proto.HelloData{Token: token, Nick: "mallory"})
	if frame.Type != proto.OutboundTypeResponse {
		t.Fatalf("hello rejected: %+v", frame.Error)
	}
	b := decode[proto.Buddy](t, frame.Data)
	if b.Nick != "alice" || b.Color != "#00588C,#00A0FF" {
		t.Fatalf("expected identity from token, got %+v", b)
	}

	join := call(ctx, t, conn, proto.InboundTypeJoin, "2", proto.ChannelData{Channel: "general"})
	if join.Type != proto.OutboundTypeResponse {
		t.Fatalf("join failed: %+v", join.Error)
	}
}

func TestWebSocketJWTInvalid(t *testing.T) {
	env := newTestEnv(t, requireJWT)
	ctx := testContext(t)
	conn := env.dial(ctx, t)

	frame := call(ctx, t, conn, proto.InboundTypeHello, "1", proto.HelloData{Token: "invalid"})
	if frame.Type != proto.OutboundTypeError || frame.Error == nil || frame.Error.Code != core.ErrCodeUnauthorized {
		t.Fatalf("expected unauthorized error, got %+v", frame)
	}
}

func TestWebSocketJWTMissing(t *testing.T) {
	env := newTestEnv(t, requireJWT)
	ctx := testContext(t)
	conn := env.dial(ctx, t)

	frame := call(ctx, t, conn, proto.InboundTypeHello, "1", proto.HelloData{Nick: "alice"})
	if frame.Type != proto.OutboundTypeError || frame.Error.Code != core.ErrCodeUnauthorized {
		t.Fatalf("expected unauthorized error, got %+v", frame)
	}
}
