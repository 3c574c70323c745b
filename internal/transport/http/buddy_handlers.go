package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/sugarchat/internal/store"
)

// BuddyHandlers serves buddy lookups.
type BuddyHandlers struct {
	store store.BuddyStore
	log   *zerolog.Logger
}

// NewBuddyHandlers creates buddy handlers.
func NewBuddyHandlers(st store.BuddyStore, logger *zerolog.Logger) *BuddyHandlers {
	return &BuddyHandlers{store: st, log: logger}
}

// BuddyResponse is a registered buddy.
type BuddyResponse struct {
	ID    int64  `json:"id"`
	Nick  string `json:"nick"`
	Color string `json:"color"`
}

// MeResponse is the caller's own buddy record.
type MeResponse struct {
	BuddyResponse
	IsGuest bool `json:"is_guest"`
}

// Me returns the caller.
// GET /api/me
func (h *BuddyHandlers) Me(c *gin.Context) {
	b, err := h.store.GetBuddyByID(c.Request.Context(), c.GetInt64(ContextKeyBuddyID))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "buddy not found"})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("failed to load buddy")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, MeResponse{
		BuddyResponse: BuddyResponse{ID: b.ID, Nick: b.Nick, Color: b.Color},
		IsGuest:       c.GetBool(ContextKeyIsGuest),
	})
}

// Search finds registered buddies by nick, excluding the caller.
// GET /api/buddies/search?q=
func (h *BuddyHandlers) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "query parameter q is required"})
		return
	}

	buddies, err := h.store.SearchBuddies(c.Request.Context(), query)
	if err != nil {
		h.log.Error().Err(err).Str("query", query).Msg("failed to search buddies")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	self := c.GetInt64(ContextKeyBuddyID)
	out := make([]BuddyResponse, 0, len(buddies))
	for _, b := range buddies {
		if b.ID == self {
			continue
		}
		out = append(out, BuddyResponse{ID: b.ID, Nick: b.Nick, Color: b.Color})
	}
	c.JSON(http.StatusOK, out)
}
