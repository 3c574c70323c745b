package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/vovakirdan/sugarchat/internal/buddy"
	"github.com/vovakirdan/sugarchat/internal/store"
)

var (
	// ErrInvalidCredentials is returned when nick/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrBuddyExists is returned when trying to register a taken nick.
	ErrBuddyExists = errors.New("buddy already exists")
	// ErrInvalidNick is returned when the nick doesn't meet constraints.
	ErrInvalidNick = errors.New("invalid nick")
	// ErrInvalidPassword is returned when the password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrInvalidColor is returned for a color that is not "#rrggbb,#rrggbb".
	ErrInvalidColor = errors.New("invalid color")
)

// Service provides authentication operations.
type Service struct {
	store     store.BuddyStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(buddyStore store.BuddyStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     buddyStore,
		jwtConfig: jwtConfig,
	}
}

// Register creates a buddy and returns a JWT token. An empty color picks a
// random XO color.
func (s *Service) Register(ctx context.Context, nick, password, color string) (string, error) {
	nick = strings.TrimSpace(nick)
	if len(nick) < 3 || len(nick) > 32 || strings.ContainsAny(nick, "\t\n") {
		return "", ErrInvalidNick
	}
	if err := CheckPassword(password); err != nil {
		return "", err
	}
	if color == "" {
		color = buddy.RandomColor()
	} else if !buddy.ValidColor(color) {
		return "", ErrInvalidColor
	}

	hashed, err := HashPassword(password)
	if err != nil {
		return "", err
	}

	b, err := s.store.CreateBuddy(ctx, nick, color, hashed)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return "", ErrBuddyExists
		}
		return "", fmt.Errorf("create buddy: %w", err)
	}

	return s.token(b)
}

// Login validates credentials and returns a JWT token.
func (s *Service) Login(ctx context.Context, nick, password string) (string, error) {
	b, err := s.store.GetBuddyByNick(ctx, strings.TrimSpace(nick))
	if err != nil || b.IsGuest {
		return "", ErrInvalidCredentials
	}
	if err := VerifyPassword(b.PasswordHash, password); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return "", err
		}
		return "", fmt.Errorf("login: %w", err)
	}
	return s.token(b)
}

// CreateGuest creates a temporary buddy and returns its token and session ID.
func (s *Service) CreateGuest(ctx context.Context) (token, sessionID string, err error) {
	sessionID = strings.ReplaceAll(uuid.NewString(), "-", "")

	b, err := s.store.CreateGuestBuddy(ctx, sessionID, buddy.RandomColor())
	if err != nil {
		return "", "", fmt.Errorf("create guest buddy: %w", err)
	}

	token, err = s.token(b)
	if err != nil {
		return "", "", err
	}
	return token, sessionID, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

func (s *Service) token(b *store.Buddy) (string, error) {
	token, err := GenerateToken(s.jwtConfig, Identity{
		BuddyID: b.ID,
		Nick:    b.Nick,
		Color:   b.Color,
		IsGuest: b.IsGuest,
	})
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}
