package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/sugarchat/internal/auth"
	"github.com/vovakirdan/sugarchat/internal/config"
	"github.com/vovakirdan/sugarchat/internal/core"
	"github.com/vovakirdan/sugarchat/internal/metrics"
	"github.com/vovakirdan/sugarchat/internal/proto"
	"github.com/vovakirdan/sugarchat/internal/store/sqlite"
)

const testSecret = "test-secret"

type testEnv struct {
	ts      *httptest.Server
	auth    *auth.Service
	store   *sqlite.SQLiteStore
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWTSecret = testSecret
	cfg.MaxMessageBytes = 1 << 20
	if mutate != nil {
		mutate(&cfg)
	}

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	})

	logger := zerolog.Nop()
	m := metrics.New()
	hub := core.NewHub(st, core.WithLogger(&logger), core.WithMetrics(m))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	server := NewServer(hub, authService, st, m, &cfg, &logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, auth: authService, store: st, metrics: m}
}

func (e *testEnv) dial(ctx context.Context, t *testing.T) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func write(ctx context.Context, t *testing.T, conn *websocket.Conn, typ, reqID string, data any) {
	t.Helper()

	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			t.Fatalf("marshal %s: %v", typ, err)
		}
		raw = b
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, ReqID: reqID, Data: raw}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// readUntil reads frames until match returns true.
func readUntil(ctx context.Context, t *testing.T, conn *websocket.Conn, match func(proto.Frame) bool) proto.Frame {
	t.Helper()

	for {
		var frame proto.Frame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if match(frame) {
			return frame
		}
	}
}

// call sends a request and waits for the matching response or error.
func call(ctx context.Context, t *testing.T, conn *websocket.Conn, typ, reqID string, data any) proto.Frame {
	t.Helper()

	write(ctx, t, conn, typ, reqID, data)
	return readUntil(ctx, t, conn, func(f proto.Frame) bool {
		return f.ReqID == reqID && f.Type != proto.OutboundTypeEvent
	})
}

func event(name string) func(proto.Frame) bool {
	return func(f proto.Frame) bool {
		return f.Type == proto.OutboundTypeEvent && f.Event == name
	}
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode %T: %v", v, err)
	}
	return v
}

// hello introduces conn as nick and returns the assigned buddy.
func hello(ctx context.Context, t *testing.T, conn *websocket.Conn, nick string) proto.Buddy {
	t.Helper()

	frame := call(ctx, t, conn, proto.InboundTypeHello, "hello", proto.HelloData{Nick: nick, Protocol: proto.ProtocolVersion})
	if frame.Type != proto.OutboundTypeResponse {
		t.Fatalf("hello rejected: %+v", frame.Error)
	}
	return decode[proto.Buddy](t, frame.Data)
}
