package textchan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/sugarchat/internal/buddy"
)

// slashEscape keeps '/' out of the transport, which treats leading slashes
// as commands.
const slashEscape = "-x-SLASH-x-"

const defaultCallTimeout = 5 * time.Second

// EncodeText escapes text for sending.
func EncodeText(text string) string {
	return strings.ReplaceAll(text, "/", slashEscape)
}

// DecodeText reverses EncodeText.
func DecodeText(text string) string {
	return strings.ReplaceAll(text, slashEscape, "/")
}

// Option configures a Wrapper.
type Option func(*Wrapper)

// WithLogger sets the logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(w *Wrapper) {
		if logger != nil {
			w.log = logger
		}
	}
}

// WithCallTimeout bounds calls made from signal handlers.
func WithCallTimeout(d time.Duration) Option {
	return func(w *Wrapper) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// Wrapper makes a text channel simple to use from the activity.
type Wrapper struct {
	mu sync.Mutex

	ch       Channel
	aliasing Aliasing
	presence Presence

	onReceived func(*buddy.Buddy, string)
	onClosed   func()
	matches    []func()

	buddies map[Handle]*buddy.Buddy

	timeout time.Duration
	log     *zerolog.Logger
}

// NewWrapper connects to ch. aliasing resolves one-to-one peers, presence
// resolves multi-user members; either may be nil when the channel kind
// does not need it.
func NewWrapper(ch Channel, aliasing Aliasing, presence Presence, opts ...Option) *Wrapper {
	nop := zerolog.Nop()
	w := &Wrapper{
		ch:       ch,
		aliasing: aliasing,
		presence: presence,
		buddies:  make(map[Handle]*buddy.Buddy),
		timeout:  defaultCallTimeout,
		log:      &nop,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.matches = append(w.matches, ch.OnClosed(w.closed))
	return w
}

// Send sends text as a normal message.
func (w *Wrapper) Send(ctx context.Context, text string) error {
	ch := w.channel()
	if ch == nil {
		return ErrClosed
	}
	w.log.Debug().Str("text", text).Msg("sending")
	if err := ch.Send(ctx, MessageTypeNormal, EncodeText(text)); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// Close closes the channel. A channel that fails to close is treated as
// already gone.
func (w *Wrapper) Close(ctx context.Context) {
	ch := w.channel()
	if ch == nil {
		return
	}
	w.log.Debug().Msg("closing text channel")
	if err := ch.Close(ctx); err != nil {
		w.log.Debug().Err(err).Msg("channel disappeared")
		w.closed()
	}
}

// Closed reports whether the channel is gone.
func (w *Wrapper) Closed() bool {
	return w.channel() == nil
}

// SetReceivedCallback delivers received messages to fn as (sender, text).
func (w *Wrapper) SetReceivedCallback(fn func(*buddy.Buddy, string)) {
	w.mu.Lock()
	ch := w.ch
	if ch == nil {
		w.mu.Unlock()
		return
	}
	w.onReceived = fn
	w.mu.Unlock()

	remove := ch.OnReceived(w.handleReceived)

	w.mu.Lock()
	w.matches = append(w.matches, remove)
	w.mu.Unlock()
}

// SetClosedCallback runs fn once the channel closes.
func (w *Wrapper) SetClosedCallback(fn func()) {
	w.mu.Lock()
	w.onClosed = fn
	w.mu.Unlock()
}

// HandlePendingMessages delivers messages that arrived before a callback was
// connected.
func (w *Wrapper) HandlePendingMessages(ctx context.Context) error {
	ch := w.channel()
	if ch == nil {
		return ErrClosed
	}
	pending, err := ch.ListPendingMessages(ctx, false)
	if err != nil {
		return fmt.Errorf("list pending messages: %w", err)
	}
	for _, msg := range pending {
		w.received(ctx, msg)
	}
	return nil
}

func (w *Wrapper) channel() Channel {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ch
}

func (w *Wrapper) closed() {
	w.mu.Lock()
	if w.ch == nil {
		w.mu.Unlock()
		return
	}
	matches := w.matches
	w.matches = nil
	w.ch = nil
	cb := w.onClosed
	w.mu.Unlock()

	w.log.Debug().Msg("text channel closed")
	for _, remove := range matches {
		remove()
	}
	if cb != nil {
		cb()
	}
}

func (w *Wrapper) handleReceived(msg PendingMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	w.received(ctx, msg)
}

func (w *Wrapper) received(ctx context.Context, msg PendingMessage) {
	w.log.Debug().Uint32("type", uint32(msg.Type)).Str("text", msg.Text).Msg("received")
	if msg.Type != MessageTypeNormal {
		return
	}

	w.mu.Lock()
	ch := w.ch
	cb := w.onReceived
	w.mu.Unlock()

	if ch == nil {
		return
	}
	if cb == nil {
		w.log.Debug().Msg("dropping received message, no callback connected")
		return
	}

	text := DecodeText(msg.Text)

	var (
		b   *buddy.Buddy
		err error
	)
	if group, ok := ch.Group(); ok {
		b, err = w.groupBuddy(ctx, group, msg.Sender)
	} else {
		b, err = w.aliasBuddy(ctx, msg.Sender)
	}
	if err != nil {
		w.log.Warn().Err(err).Uint32("handle", uint32(msg.Sender)).Msg("resolve sender")
		b = buddy.New(buddy.UnknownNick, "")
	}

	cb(b, text)

	if err := ch.AcknowledgePendingMessages(ctx, []uint32{msg.ID}); err != nil {
		w.log.Warn().Err(err).Uint32("id", msg.ID).Msg("acknowledge pending message")
	}
}

// aliasBuddy resolves a one-to-one peer.
func (w *Wrapper) aliasBuddy(ctx context.Context, sender Handle) (*buddy.Buddy, error) {
	if b := w.cached(sender); b != nil {
		return b, nil
	}
	if w.aliasing == nil {
		return nil, errors.New("no aliasing interface")
	}
	names, err := w.aliasing.RequestAliases(ctx, []Handle{sender})
	if err != nil {
		return nil, fmt.Errorf("request aliases: %w", err)
	}
	if len(names) == 0 {
		return nil, ErrUnknownHandle
	}
	b := &buddy.Buddy{Nick: names[0], Color: buddy.PrivateChatColor, Handle: uint32(sender)}
	w.cache(sender, b)
	return b, nil
}

// groupBuddy resolves a possibly channel-specific member handle.
func (w *Wrapper) groupBuddy(ctx context.Context, group Group, cs Handle) (*buddy.Buddy, error) {
	if b := w.cached(cs); b != nil {
		return b, nil
	}
	if w.presence == nil {
		return nil, errors.New("no presence service")
	}

	self, err := group.SelfHandle(ctx)
	if err != nil {
		return nil, fmt.Errorf("group self handle: %w", err)
	}

	var handle Handle
	switch {
	case self == cs:
		handle, err = w.presence.SelfHandle(ctx)
		if err != nil {
			return nil, fmt.Errorf("connection self handle: %w", err)
		}
	default:
		flags, err := group.GroupFlags(ctx)
		if err != nil {
			return nil, fmt.Errorf("group flags: %w", err)
		}
		if flags&GroupFlagChannelSpecificHandles != 0 {
			owners, err := group.HandleOwners(ctx, []Handle{cs})
			if err != nil {
				return nil, fmt.Errorf("handle owners: %w", err)
			}
			if len(owners) == 0 {
				return nil, ErrUnknownHandle
			}
			handle = owners[0]
		} else {
			handle = cs
		}
	}
	if handle == 0 {
		return nil, ErrUnknownHandle
	}

	b, err := w.presence.BuddyByHandle(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("buddy by handle %d: %w", handle, err)
	}
	w.cache(cs, b)
	return b, nil
}

func (w *Wrapper) cached(h Handle) *buddy.Buddy {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buddies[h]
}

func (w *Wrapper) cache(h Handle, b *buddy.Buddy) {
	w.mu.Lock()
	w.buddies[h] = b
	w.mu.Unlock()
}
