package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/vovakirdan/sugarchat/internal/chatlog"
	"github.com/vovakirdan/sugarchat/internal/store"
)

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func TestCreateAndListChannels(t *testing.T) {
	env := newTestEnv(t, nil)

	token, err := env.auth.Register(context.Background(), "walter", "password123", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	resp, body := env.do(t, http.MethodPost, "/api/channels", token, CreateChannelRequest{Name: "sugar"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, body)
	}
	var created ChannelResponse
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if created.Name != "sugar" || created.Kind != "room" {
		t.Fatalf("unexpected channel: %+v", created)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/channels", "", CreateChannelRequest{Name: "nope"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/channels", token, CreateChannelRequest{Name: "sugar"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/channels", token, CreateChannelRequest{Name: "dm:1:2"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for direct channel name, got %d", resp.StatusCode)
	}

	if _, err := env.store.CreateChannel(context.Background(), "dm:1:2", store.ChannelKindDirect); err != nil {
		t.Fatalf("create direct channel: %v", err)
	}
	resp, body = env.do(t, http.MethodGet, "/api/channels", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var rooms []ChannelResponse
	if err := json.Unmarshal(body, &rooms); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(rooms) != 1 || rooms[0].Name != "sugar" {
		t.Fatalf("expected only the room to be listed, got %+v", rooms)
	}
}

func TestChannelHistoryAndLog(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	token, err := env.auth.Register(ctx, "walter", "password123", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	ch, err := env.store.EnsureChannel(ctx, "general", store.ChannelKindRoom)
	if err != nil {
		t.Fatalf("ensure channel: %v", err)
	}
	base := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	rows := []store.Message{
		{Nick: "alice", Color: "#00588C,#00A0FF", Status: true, Body: "alice joined the chat"},
		{Nick: "alice", Color: "#00588C,#00A0FF", Body: "hello"},
		{Nick: "bob", Color: "#B20008,#FF2B34", Body: "hi alice"},
	}
	for i := range rows {
		rows[i].ChannelID = ch.ID
		rows[i].CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := env.store.SaveMessage(ctx, &rows[i]); err != nil {
			t.Fatalf("save message: %v", err)
		}
	}

	resp, body := env.do(t, http.MethodGet, "/api/channels/general/messages?limit=2", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var msgs []MessageResponse
	if err := json.Unmarshal(body, &msgs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Body != "hello" || msgs[1].Body != "hi alice" {
		t.Fatalf("unexpected history page: %+v", msgs)
	}

	resp, body = env.do(t, http.MethodGet, "/api/channels/general/log", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	entries, err := chatlog.Parse(strings.NewReader(string(body)))
	if err != nil {
		t.Fatalf("exported log does not parse: %v", err)
	}
	if len(entries) != 4 || !entries[0].Separator {
		t.Fatalf("expected separator plus 3 records, got %+v", entries)
	}
	if !entries[1].Status || entries[3].Nick != "bob" || entries[3].Text != "hi alice" {
		t.Fatalf("unexpected log records: %+v", entries)
	}
	if entries[2].Timestamp != "May 04 09:30:01" {
		t.Fatalf("expected stored timestamp, got %q", entries[2].Timestamp)
	}

	resp, _ = env.do(t, http.MethodGet, "/api/channels/missing/log", token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestDirectHistoryHidden(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	ch, err := env.store.CreateChannel(ctx, "dm:1:2", store.ChannelKindDirect)
	if err != nil {
		t.Fatalf("create direct channel: %v", err)
	}
	msg := store.Message{ChannelID: ch.ID, Nick: "alice", Color: "#00588C,#00A0FF", Body: "my secret is hunter2", CreatedAt: time.Now()}
	if err := env.store.SaveMessage(ctx, &msg); err != nil {
		t.Fatalf("save message: %v", err)
	}

	token, _, err := env.auth.CreateGuest(ctx)
	if err != nil {
		t.Fatalf("create guest: %v", err)
	}
	for _, path := range []string{"/api/channels/dm:1:2/log", "/api/channels/dm:1:2/messages"} {
		resp, body := env.do(t, http.MethodGet, path, token, nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, resp.StatusCode)
		}
		if strings.Contains(string(body), "hunter2") {
			t.Fatalf("%s leaked direct history: %s", path, body)
		}
	}
}

func TestBuddySearchExcludesSelf(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	token, err := env.auth.Register(ctx, "alice", "password123", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := env.auth.Register(ctx, "alan", "password123", ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	resp, body := env.do(t, http.MethodGet, "/api/buddies/search?q=al", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var found []BuddyResponse
	if err := json.Unmarshal(body, &found); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(found) != 1 || found[0].Nick != "alan" {
		t.Fatalf("expected only alan, got %+v", found)
	}
}

func TestRegisterLoginAndGuest(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodPost, "/api/register", "", RegisterRequest{Nick: "walter", Password: "password123"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, body)
	}
	resp, _ = env.do(t, http.MethodPost, "/api/register", "", RegisterRequest{Nick: "walter", Password: "password123"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodPost, "/api/register", "", RegisterRequest{Nick: "w", Password: "password123"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for short nick, got %d", resp.StatusCode)
	}

	resp, body = env.do(t, http.MethodPost, "/api/login", "", LoginRequest{Nick: "walter", Password: "password123"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	resp, _ = env.do(t, http.MethodPost, "/api/login", "", LoginRequest{Nick: "walter", Password: "wrong-password"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	resp, body = env.do(t, http.MethodPost, "/api/guest", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var ar AuthResponse
	if err := json.Unmarshal(body, &ar); err != nil || ar.Token == "" {
		t.Fatalf("expected guest token, got %s", body)
	}
	claims, err := env.auth.ValidateToken(ar.Token)
	if err != nil || !claims.IsGuest {
		t.Fatalf("expected guest claims, got %+v (%v)", claims, err)
	}
	meResp, meBody := env.do(t, http.MethodGet, "/api/me", ar.Token, nil)
	if meResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /api/me, got %d: %s", meResp.StatusCode, meBody)
	}
	var me MeResponse
	if err := json.Unmarshal(meBody, &me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if !me.IsGuest || me.Nick != claims.Nick {
		t.Fatalf("unexpected me: %+v", me)
	}

	var cookie bool
	for _, c := range resp.Cookies() {
		cookie = cookie || c.Name == guestCookie
	}
	if !cookie {
		t.Fatalf("expected guest session cookie")
	}
}
