package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/sugarchat/internal/auth"
	"github.com/vovakirdan/sugarchat/internal/buddy"
	"github.com/vovakirdan/sugarchat/internal/config"
	"github.com/vovakirdan/sugarchat/internal/core"
	"github.com/vovakirdan/sugarchat/internal/metrics"
	"github.com/vovakirdan/sugarchat/internal/proto"
)

const errCodeUnsupportedVersion = "unsupported_version"

// errHandshake ends a connection whose hello was rejected.
var errHandshake = errors.New("handshake rejected")

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub         *core.Hub
	authService *auth.Service
	metrics     *metrics.Metrics
	cfg         *config.Config
	log         *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler. authService may be nil when
// tokens are never checked.
func NewWSHandler(hub *core.Hub, authService *auth.Service, m *metrics.Metrics, cfg *config.Config, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{hub: hub, authService: authService, metrics: m, cfg: cfg, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	client, err := h.handshake(ctx, conn)
	if err != nil {
		if errors.Is(err, errHandshake) {
			conn.Close(websocket.StatusPolicyViolation, "handshake rejected")
		} else {
			h.log.Debug().Err(err).Msg("ws handshake failed")
		}
		return
	}
	defer h.hub.UnregisterClient(client)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("client_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// handshake reads the hello, resolves the buddy identity and registers the
// client with the hub.
func (h *WSHandler) handshake(ctx context.Context, conn *websocket.Conn) (*core.Client, error) {
	var inbound proto.Inbound
	if err := wsjson.Read(ctx, conn, &inbound); err != nil {
		return nil, err
	}

	reject := func(code, msg string) error {
		if err := wsjson.Write(ctx, conn, proto.Outbound{
			Type:  proto.OutboundTypeError,
			ReqID: inbound.ReqID,
			Error: &proto.Error{Code: code, Msg: msg},
		}); err != nil {
			return err
		}
		return errHandshake
	}

	if inbound.Type != proto.InboundTypeHello {
		return nil, reject(core.ErrCodeBadRequest, "hello required")
	}
	var hello proto.HelloData
	if err := json.Unmarshal(inbound.Data, &hello); err != nil {
		return nil, reject(errCodeInvalidMessage, "malformed hello")
	}
	if hello.Protocol != 0 && hello.Protocol != proto.ProtocolVersion {
		return nil, reject(errCodeUnsupportedVersion, "unsupported protocol version")
	}

	nick, color := strings.TrimSpace(hello.Nick), hello.Color
	switch {
	case hello.Token != "":
		if h.authService == nil {
			return nil, reject(core.ErrCodeUnauthorized, "tokens are not accepted")
		}
		claims, err := h.authService.ValidateToken(hello.Token)
		if err != nil {
			h.log.Debug().Err(err).Msg("invalid hello token")
			return nil, reject(core.ErrCodeUnauthorized, "invalid token")
		}
		nick, color = claims.Nick, claims.Color
	case h.cfg.JWTRequired:
		return nil, reject(core.ErrCodeUnauthorized, "token required")
	case nick == "":
		return nil, reject(core.ErrCodeBadRequest, "nick is required")
	}
	if !buddy.ValidColor(color) {
		color = buddy.RandomColor()
	}

	client := core.NewClient(uuid.NewString(), nick, color)
	h.hub.RegisterClient(client)

	if err := wsjson.Write(ctx, conn, proto.Outbound{
		Type:  proto.OutboundTypeResponse,
		ReqID: inbound.ReqID,
		Data:  buddyOut(client.Buddy()),
	}); err != nil {
		h.hub.UnregisterClient(client)
		return nil, err
	}

	h.log.Info().Str("client_id", client.ID).Str("nick", nick).Uint32("handle", client.Handle).Msg("buddy connected")
	return client, nil
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	limiter := newRateLimiter(h.cfg.RateLimitPerMinute)
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		cmd, protoErr, err := inboundToCommand(inbound)
		if err != nil {
			h.log.Warn().Err(err).Str("client_id", client.ID).Msg("failed to map inbound")
			return err
		}
		if protoErr == nil && cmd.Kind == core.CommandSend && !limiter.allow() {
			h.metrics.RateLimited()
			protoErr = &proto.Error{Code: core.ErrCodeRateLimited, Msg: "too many messages"}
		}
		if protoErr != nil {
			if writeErr := wsjson.Write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeError,
				ReqID: inbound.ReqID,
				Error: protoErr,
			}); writeErr != nil {
				return writeErr
			}
			continue
		}

		select {
		case client.Commands <- cmd:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("client_id", client.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
