// Package activity drives a chat session: it connects the conversation to a
// text channel, reports connection state, and saves and resumes the log.
package activity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/sugarchat/internal/buddy"
	"github.com/vovakirdan/sugarchat/internal/chatlog"
	"github.com/vovakirdan/sugarchat/internal/conversation"
	"github.com/vovakirdan/sugarchat/internal/journal"
	"github.com/vovakirdan/sugarchat/internal/linkify"
	"github.com/vovakirdan/sugarchat/internal/textchan"
)

// Sound is an event sound.
type Sound string

const (
	SoundSaidNick Sound = "said_nick"
	SoundLogin    Sound = "login"
	SoundLogout   Sound = "logout"
)

// Alert titles and messages.
const (
	TitleOffline = "Off-line"
	TitleOnline  = "On-line"

	MsgShare     = "Share, or invite someone."
	MsgJoining   = "Joining the Chat."
	MsgConnected = "Connected."
	MsgPrivate   = "Private chat."
	MsgLeft      = "Left the chat."

	// WaitPlaceholder is shown in the entry until a channel is ready.
	WaitPlaceholder = "Please wait for a connection before starting to chat."
)

const (
	botMention = "@bot"
	botPrefix  = "@bot "
	botReply   = "Received"

	logTitle = "Chat"
)

// ErrNoJournal is returned by journal operations when none is configured.
var ErrNoJournal = errors.New("no journal configured")

// Notifier shows alerts, plays sounds and posts desktop notifications.
type Notifier interface {
	Alert(title, msg string)
	PlaySound(s Sound)
	NotifyUser(summary, body string)
}

// SharedActivity reports who is in a shared session.
type SharedActivity interface {
	Members(ctx context.Context) ([]*buddy.Buddy, error)
	OnBuddyJoined(fn func(*buddy.Buddy)) (remove func())
	OnBuddyLeft(fn func(*buddy.Buddy)) (remove func())
}

// Option configures an Activity.
type Option func(*Activity)

// WithLogger sets the logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *Activity) {
		if logger != nil {
			a.log = logger
		}
	}
}

// WithJournal enables saving to and resuming from a journal.
func WithJournal(j *journal.Store) Option {
	return func(a *Activity) { a.journal = j }
}

// WithCallTimeout bounds the channel calls made while handling messages.
func WithCallTimeout(d time.Duration) Option {
	return func(a *Activity) { a.callTimeout = d }
}

// WithBox uses an existing conversation.
func WithBox(box *conversation.Box) Option {
	return func(a *Activity) { a.box = box }
}

// Activity is one chat session.
type Activity struct {
	owner    *buddy.Buddy
	box      *conversation.Box
	notifier Notifier
	journal  *journal.Store
	log      *zerolog.Logger

	callTimeout time.Duration

	mu          sync.Mutex
	text        *textchan.Wrapper
	isRoom      bool
	ready       bool
	focused     bool
	placeholder string
	journalID   string
	unsubscribe []func()
}

// New creates an activity for owner.
func New(owner *buddy.Buddy, notifier Notifier, opts ...Option) *Activity {
	nop := zerolog.Nop()
	a := &Activity{
		owner:    owner,
		notifier: notifier,
		log:      &nop,
		focused:  true,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.box == nil {
		a.box = conversation.New(owner)
	}
	return a
}

// Box is the conversation.
func (a *Activity) Box() *conversation.Box { return a.box }

// Owner is the local buddy.
func (a *Activity) Owner() *buddy.Buddy { return a.owner }

// Ready reports whether messages can be sent.
func (a *Activity) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ready
}

// IsRoom reports whether the session is a multi-user room.
func (a *Activity) IsRoom() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isRoom
}

// Placeholder is the entry hint, empty once connected.
func (a *Activity) Placeholder() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.placeholder
}

// SetFocused records whether the user is looking at the conversation.
func (a *Activity) SetFocused(focused bool) {
	a.mu.Lock()
	a.focused = focused
	a.mu.Unlock()
}

// StartPrivate begins an unshared session.
func (a *Activity) StartPrivate() {
	a.notifier.Alert(TitleOffline, MsgShare)
}

// StartResumedShared begins a session resumed from a shared journal entry,
// waiting for the share to come back.
func (a *Activity) StartResumedShared() {
	a.setPlaceholder(WaitPlaceholder)
}

// StartJoining begins a session that follows an invitation.
func (a *Activity) StartJoining() {
	a.notifier.Alert(TitleOffline, MsgJoining)
	a.setPlaceholder(WaitPlaceholder)
}

// Joined sets up a session we joined: buddies already present are listed
// before the channel is connected.
func (a *Activity) Joined(ctx context.Context, ch textchan.Channel, aliasing textchan.Aliasing, presence textchan.Presence, shared SharedActivity) error {
	a.log.Debug().Msg("joined a shared chat")
	members, err := shared.Members(ctx)
	if err != nil {
		return fmt.Errorf("list joined buddies: %w", err)
	}
	for _, b := range members {
		a.buddyAlreadyHere(b)
	}
	a.Shared(ch, aliasing, presence, shared)
	return nil
}

// Shared connects a multi-user channel after sharing or joining.
func (a *Activity) Shared(ch textchan.Channel, aliasing textchan.Aliasing, presence textchan.Presence, shared SharedActivity) {
	w := a.wrap(ch, aliasing, presence)
	w.SetReceivedCallback(a.received)

	a.notifier.Alert(TitleOnline, MsgConnected)

	a.mu.Lock()
	a.text = w
	a.isRoom = true
	a.ready = true
	a.placeholder = ""
	if shared != nil {
		a.unsubscribe = append(a.unsubscribe,
			shared.OnBuddyJoined(a.buddyJoined),
			shared.OnBuddyLeft(a.buddyLeft),
		)
	}
	a.mu.Unlock()
}

// OneToOne connects a private channel opened from an invitation. Messages
// that arrived earlier are replayed.
func (a *Activity) OneToOne(ctx context.Context, ch textchan.Channel, aliasing textchan.Aliasing, presence textchan.Presence) error {
	a.mu.Lock()
	if a.text != nil {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	w := a.wrap(ch, aliasing, presence)
	w.SetReceivedCallback(a.received)
	if err := w.HandlePendingMessages(ctx); err != nil {
		a.log.Warn().Err(err).Msg("replay pending messages")
	}
	w.SetClosedCallback(a.oneToOneClosed)

	a.mu.Lock()
	a.text = w
	a.isRoom = false
	a.ready = true
	a.placeholder = ""
	a.mu.Unlock()

	a.notifier.Alert(TitleOnline, MsgPrivate)
	return nil
}

func (a *Activity) wrap(ch textchan.Channel, aliasing textchan.Aliasing, presence textchan.Presence) *textchan.Wrapper {
	return textchan.NewWrapper(ch, aliasing, presence,
		textchan.WithLogger(a.log),
		textchan.WithCallTimeout(a.callTimeout),
	)
}

func (a *Activity) oneToOneClosed() {
	a.mu.Lock()
	a.ready = false
	a.mu.Unlock()
	a.notifier.Alert(TitleOffline, MsgLeft)
}

// Send shows text as the owner's and sends it. A mention of the bot gets a
// local reply.
func (a *Activity) Send(ctx context.Context, text string) error {
	a.box.SetScrollAuto(true)
	if text == "" {
		return nil
	}
	a.box.AddText(a.owner, text, false)

	a.mu.Lock()
	w := a.text
	a.mu.Unlock()
	if w == nil {
		a.log.Debug().Msg("tried to send message but text channel not connected")
		return nil
	}

	if err := w.Send(ctx, text); err != nil {
		a.log.Warn().Err(err).Msg("send message")
		return err
	}
	if strings.Contains(text, botMention) {
		a.log.Debug().Str("text", text).Msg("mention of bot detected")
		a.box.AddText(buddy.Bot(), botReply, false)
	}
	return nil
}

// ToggleBot adds or removes the bot prefix at the start of the entry text.
func ToggleBot(entry string) string {
	if strings.HasPrefix(entry, botPrefix) {
		return strings.TrimPrefix(entry, botPrefix)
	}
	return botPrefix + entry
}

func (a *Activity) received(b *buddy.Buddy, text string) {
	nick := buddy.UnknownNick
	if b != nil {
		nick = b.Nick
	}
	a.log.Debug().Str("nick", nick).Str("text", text).Msg("received message")
	a.box.AddText(b, text, false)

	if a.owner != nil && a.owner.Nick != "" && strings.Contains(text, a.owner.Nick) {
		a.notifier.PlaySound(SoundSaidNick)
	}

	a.mu.Lock()
	focused := a.focused
	a.mu.Unlock()
	if !focused {
		a.notifier.NotifyUser("Message from "+nick, text)
	}
}

func (a *Activity) buddyJoined(b *buddy.Buddy) {
	if buddy.Same(b, a.owner) {
		return
	}
	a.box.AddText(b, b.Nick+" joined the chat", true)
	a.notifier.PlaySound(SoundLogin)
}

func (a *Activity) buddyLeft(b *buddy.Buddy) {
	if buddy.Same(b, a.owner) {
		return
	}
	a.box.AddText(b, b.Nick+" left the chat", true)
	a.notifier.PlaySound(SoundLogout)
}

func (a *Activity) buddyAlreadyHere(b *buddy.Buddy) {
	if buddy.Same(b, a.owner) {
		return
	}
	a.box.AddText(b, b.Nick+" is here", true)
}

// CanClose cleans up before the activity exits. A one-to-one channel is
// closed; a room is simply left behind.
func (a *Activity) CanClose(ctx context.Context) bool {
	a.mu.Lock()
	w := a.text
	isRoom := a.isRoom
	unsubscribe := a.unsubscribe
	a.unsubscribe = nil
	a.mu.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}
	if !isRoom && w != nil {
		w.Close(ctx)
	}
	return true
}

// WriteFile stamps the log and writes it to w.
func (a *Activity) WriteFile(w io.Writer) error {
	a.box.AddLogTimestamp()
	if _, err := io.WriteString(w, a.box.Log()); err != nil {
		return fmt.Errorf("write chat log: %w", err)
	}
	return nil
}

// ReadFile restores a saved log. Records before a malformed line are kept.
func (a *Activity) ReadFile(r io.Reader) error {
	entries, err := chatlog.Parse(r)
	a.box.Restore(entries)
	if err != nil {
		return fmt.Errorf("read chat log: %w", err)
	}
	return nil
}

// SaveToJournal writes the log to the journal, updating the entry this
// session was resumed from or saved to before.
func (a *Activity) SaveToJournal() (journal.Entry, error) {
	if a.journal == nil {
		return journal.Entry{}, ErrNoJournal
	}
	var sb strings.Builder
	if err := a.WriteFile(&sb); err != nil {
		return journal.Entry{}, err
	}

	a.mu.Lock()
	id := a.journalID
	a.mu.Unlock()

	meta := journal.Entry{
		ID:        id,
		Title:     logTitle,
		MimeType:  journal.MimeChatLog,
		IconColor: a.owner.Color,
	}
	var (
		e   journal.Entry
		err error
	)
	if id == "" {
		e, err = a.journal.Create(meta, []byte(sb.String()))
	} else {
		e, err = a.journal.Update(meta, []byte(sb.String()))
	}
	if err != nil {
		return journal.Entry{}, fmt.Errorf("save to journal: %w", err)
	}

	a.mu.Lock()
	a.journalID = e.ID
	a.mu.Unlock()
	return e, nil
}

// ResumeFromJournal restores the log saved in entry id. Later saves update
// that entry only when the whole log was read; a partly restored log is
// saved to a new entry so the records it lost stay in the old one.
func (a *Activity) ResumeFromJournal(id string) error {
	if a.journal == nil {
		return ErrNoJournal
	}
	rc, err := a.journal.Open(id)
	if err != nil {
		return fmt.Errorf("open journal entry: %w", err)
	}
	defer rc.Close()

	if err := a.ReadFile(rc); err != nil {
		return err
	}
	a.mu.Lock()
	a.journalID = id
	a.mu.Unlock()
	return nil
}

// OpenURL records a link from the conversation in the journal.
func (a *Activity) OpenURL(url string) (journal.Entry, error) {
	if a.journal == nil {
		return journal.Entry{}, ErrNoJournal
	}
	url = linkify.CheckProtocol(url)
	a.log.Debug().Str("url", url).Msg("create journal entry for URL")
	return a.journal.SaveURL(url, a.owner.Color)
}

func (a *Activity) setPlaceholder(s string) {
	a.mu.Lock()
	a.placeholder = s
	a.mu.Unlock()
}
