package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vovakirdan/sugarchat/internal/store/sqlite"
)

func newTestAuthService(t *testing.T) *Service {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	jwtConfig := &JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}

	return NewService(st, jwtConfig)
}

func TestRegister_RejectsInvalidNick(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "ab", "password123", ""); !errors.Is(err, ErrInvalidNick) {
		t.Fatalf("expected ErrInvalidNick, got %v", err)
	}

	// Should be validated after trimming whitespace.
	if _, err := svc.Register(ctx, " ab ", "password123", ""); !errors.Is(err, ErrInvalidNick) {
		t.Fatalf("expected ErrInvalidNick, got %v", err)
	}

	// Tabs would break the chat log format.
	if _, err := svc.Register(ctx, "a\tbc", "password123", ""); !errors.Is(err, ErrInvalidNick) {
		t.Fatalf("expected ErrInvalidNick, got %v", err)
	}
}

func TestRegister_RejectsInvalidPassword(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "abc", "12345", ""); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestRegister_RejectsInvalidColor(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "abc", "password123", "red,blue"); !errors.Is(err, ErrInvalidColor) {
		t.Fatalf("expected ErrInvalidColor, got %v", err)
	}
}

func TestRegister_TrimsNickAndCarriesColor(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	token, err := svc.Register(ctx, " alice ", "password123", "#FF2B34,#B20008")
	if err != nil {
		t.Fatalf("expected registration success, got %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.Nick != "alice" || claims.Color != "#FF2B34,#B20008" || claims.IsGuest {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	// Should collide because the stored nick is trimmed.
	if _, err := svc.Register(ctx, "alice", "password123", ""); !errors.Is(err, ErrBuddyExists) {
		t.Fatalf("expected ErrBuddyExists, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "walter", "password123", ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Login(ctx, "walter", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	token, err := svc.Login(ctx, "walter", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.Nick != "walter" || claims.Color == "" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestCreateGuest(t *testing.T) {
	svc := newTestAuthService(t)

	token, sessionID, err := svc.CreateGuest(context.Background())
	if err != nil {
		t.Fatalf("create guest: %v", err)
	}
	if len(sessionID) != 32 {
		t.Fatalf("unexpected session id %q", sessionID)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if !claims.IsGuest || claims.Nick != "guest_"+sessionID[:8] {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestValidateToken_RejectsWrongAudience(t *testing.T) {
	cfg := &JWTConfig{Secret: []byte("s"), Issuer: "a", Audience: "b", TTL: time.Hour}
	token, err := GenerateToken(cfg, Identity{BuddyID: 1, Nick: "x"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	other := *cfg
	other.Audience = "c"
	if _, err := ValidateToken(&other, token); err == nil {
		t.Fatalf("expected audience mismatch error")
	}

	other = *cfg
	other.Secret = []byte("different")
	if _, err := ValidateToken(&other, token); err == nil {
		t.Fatalf("expected signature error")
	}
}

func TestPasswordPolicyAndVerify(t *testing.T) {
	if err := CheckPassword(strings.Repeat("x", 73)); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword for long password, got %v", err)
	}

	hash, err := HashPassword("secret1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := VerifyPassword(hash, "secret1"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := VerifyPassword(hash, "secret2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := VerifyPassword("", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for guest, got %v", err)
	}
}
