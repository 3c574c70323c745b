package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/sugarchat/internal/chatlog"
	"github.com/vovakirdan/sugarchat/internal/store"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// ChannelHandlers serves room management and history.
type ChannelHandlers struct {
	store store.Store
	log   *zerolog.Logger
}

// NewChannelHandlers creates channel handlers.
func NewChannelHandlers(st store.Store, logger *zerolog.Logger) *ChannelHandlers {
	return &ChannelHandlers{store: st, log: logger}
}

// CreateChannelRequest is the body of POST /api/channels.
type CreateChannelRequest struct {
	Name string `json:"name" binding:"required"`
}

// ChannelResponse is a persisted room.
type ChannelResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageResponse is a persisted chat line.
type MessageResponse struct {
	ID        int64     `json:"id"`
	Nick      string    `json:"nick"`
	Color     string    `json:"color"`
	Status    bool      `json:"status"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

func channelResponse(ch *store.Channel) ChannelResponse {
	return ChannelResponse{ID: ch.ID, Name: ch.Name, Kind: string(ch.Kind), CreatedAt: ch.CreatedAt}
}

// Create creates a room.
// POST /api/channels
func (h *ChannelHandlers) Create(c *gin.Context) {
	var req CreateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > 64 || strings.HasPrefix(name, "dm:") {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid room name"})
		return
	}

	ch, err := h.store.CreateChannel(c.Request.Context(), name, store.ChannelKindRoom)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "room already exists"})
			return
		}
		h.log.Error().Err(err).Str("room", name).Msg("failed to create room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("room", name).Str("nick", c.GetString(ContextKeyNick)).Msg("room created")
	c.JSON(http.StatusCreated, channelResponse(ch))
}

// List lists rooms, newest first.
// GET /api/channels
func (h *ChannelHandlers) List(c *gin.Context) {
	channels, err := h.store.ListChannels(c.Request.Context(), store.ChannelKindRoom)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list rooms")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	out := make([]ChannelResponse, 0, len(channels))
	for _, ch := range channels {
		out = append(out, channelResponse(ch))
	}
	c.JSON(http.StatusOK, out)
}

// History returns a page of room messages in chronological order.
// GET /api/channels/:name/messages?limit=&before=
func (h *ChannelHandlers) History(c *gin.Context) {
	msgs, ok := h.messages(c)
	if !ok {
		return
	}
	out := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageResponse{
			ID:        m.ID,
			Nick:      m.Nick,
			Color:     m.Color,
			Status:    m.Status,
			Body:      m.Body,
			CreatedAt: m.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}

// Log exports history in the chat log format.
// GET /api/channels/:name/log
func (h *ChannelHandlers) Log(c *gin.Context) {
	msgs, ok := h.messages(c)
	if !ok {
		return
	}
	l := chatlog.New()
	if len(msgs) > 0 {
		l.AddTimestamp(msgs[0].CreatedAt.Format(chatlog.TimestampLayout))
	}
	for _, m := range msgs {
		l.AddMessageAt(m.CreatedAt, m.Nick, m.Color, m.Body, m.Status)
	}
	c.String(http.StatusOK, l.String())
}

func (h *ChannelHandlers) messages(c *gin.Context) ([]*store.Message, bool) {
	ctx := c.Request.Context()

	// Direct channels are named after session handles, which a token cannot
	// prove, so their history never leaves the relay.
	ch, err := h.store.GetChannelByName(ctx, c.Param("name"))
	if err == nil && ch.Kind != store.ChannelKindRoom {
		err = store.ErrNotFound
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "channel not found"})
			return nil, false
		}
		h.log.Error().Err(err).Msg("failed to get channel")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return nil, false
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return nil, false
		}
		limit = min(n, maxHistoryLimit)
	}
	var before *int64
	if raw := c.Query("before"); raw != "" {
		id, convErr := strconv.ParseInt(raw, 10, 64)
		if convErr != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid before"})
			return nil, false
		}
		before = &id
	}

	msgs, err := h.store.ListMessages(ctx, ch.ID, limit, before)
	if err != nil {
		h.log.Error().Err(err).Str("channel", ch.Name).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return nil, false
	}
	return msgs, true
}
