// Package conversation holds the on-screen conversation: message blocks
// grouped by sender, session separators, the chat log and text search.
package conversation

import (
	"sync"
	"time"

	"github.com/vovakirdan/sugarchat/internal/buddy"
	"github.com/vovakirdan/sugarchat/internal/chatlog"
)

// BlockKind tells how a block is drawn.
type BlockKind int

const (
	// BlockMessage is what a buddy said.
	BlockMessage BlockKind = iota
	// BlockStatus is what a buddy did (joined, left, is here).
	BlockStatus
	// BlockSeparator marks the start of a new session.
	BlockSeparator
)

// Block is one rounded box of the conversation.
type Block struct {
	Kind      BlockKind
	Nick      string
	Color     buddy.Color
	RTL       bool
	Lines     []string
	Timestamp string
	At        time.Time
}

// Box is the conversation model. It is safe for concurrent use.
type Box struct {
	mu sync.Mutex

	owner      *buddy.Buddy
	blocks     []*Block
	lastSender *buddy.Buddy
	log        *chatlog.Log
	now        func() time.Time

	scrollAuto bool

	search searchState

	listeners []func()
}

// New creates an empty conversation for owner.
func New(owner *buddy.Buddy) *Box {
	return NewWithClock(owner, time.Now)
}

// NewWithClock creates an empty conversation using now for log timestamps.
func NewWithClock(owner *buddy.Buddy, now func() time.Time) *Box {
	return &Box{
		owner:      owner,
		log:        chatlog.NewWithClock(now),
		now:        now,
		scrollAuto: true,
	}
}

// Owner returns the local buddy.
func (b *Box) Owner() *buddy.Buddy {
	return b.owner
}

// Subscribe registers fn to run after every change.
func (b *Box) Subscribe(fn func()) {
	b.mu.Lock()
	b.listeners = append(b.listeners, fn)
	b.mu.Unlock()
}

// AddText shows text from sender. A nil sender is the owner. Consecutive
// messages from the same buddy share a block; status messages never do.
func (b *Box) AddText(sender *buddy.Buddy, text string, status bool) {
	b.mu.Lock()

	if sender == nil {
		sender = b.owner
	}
	nick := ""
	color := ""
	if sender != nil {
		nick = sender.Nick
		color = sender.Color
	}
	b.log.AddMessage(nick, color, text, status)

	newBlock := true
	if b.lastSender != nil && !status && buddy.Same(sender, b.lastSender) && len(b.blocks) > 0 {
		newBlock = false
	}

	if newBlock {
		kind := BlockMessage
		if status {
			kind = BlockStatus
		}
		if nick == "" {
			nick = buddy.UnknownNick
		}
		b.blocks = append(b.blocks, &Block{
			Kind:  kind,
			Nick:  nick,
			Color: buddy.ParseColor(color),
			RTL:   buddy.IsRTL(nick),
			At:    b.now(),
		})
		b.lastSender = sender
	}

	if status {
		b.lastSender = nil
	}

	last := b.blocks[len(b.blocks)-1]
	last.Lines = append(last.Lines, text)

	b.refreshSearchLocked()
	b.notifyLocked()
}

// AddSeparator shows a session break stamped ts and logs it.
func (b *Box) AddSeparator(ts string) {
	b.mu.Lock()

	b.blocks = append(b.blocks, &Block{Kind: BlockSeparator, Timestamp: ts})
	b.log.AddTimestamp(ts)
	b.lastSender = nil

	b.notifyLocked()
}

// AddLogTimestamp appends a separator to the log only, stamped now.
func (b *Box) AddLogTimestamp() {
	b.log.AddTimestamp("")
}

// Log returns the chat log text.
func (b *Box) Log() string {
	return b.log.String()
}

// Restore replays a parsed log. Runs of separators collapse into one.
func (b *Box) Restore(entries []chatlog.Entry) {
	lastWasSeparator := false
	for _, e := range entries {
		if e.Separator {
			if !lastWasSeparator {
				b.AddSeparator(e.Timestamp)
				lastWasSeparator = true
			}
			continue
		}
		b.AddText(buddy.New(e.Nick, e.Color), e.Text, e.Status)
		lastWasSeparator = false
	}
}

// Blocks returns a snapshot of the conversation.
func (b *Box) Blocks() []Block {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Block, len(b.blocks))
	for i, blk := range b.blocks {
		out[i] = *blk
		out[i].Lines = append([]string(nil), blk.Lines...)
	}
	return out
}

// Len returns the number of blocks.
func (b *Box) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.blocks)
}

// ScrollAuto reports whether the view should follow new messages.
func (b *Box) ScrollAuto() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scrollAuto
}

// SetScrollAuto turns following new messages on or off.
func (b *Box) SetScrollAuto(on bool) {
	b.mu.Lock()
	b.scrollAuto = on
	b.mu.Unlock()
}

// notifyLocked releases the lock before running listeners.
func (b *Box) notifyLocked() {
	listeners := append([]func(){}, b.listeners...)
	b.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}
