// Package ui is the terminal chat client built on bubbletea.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/sugarchat/internal/activity"
	"github.com/vovakirdan/sugarchat/internal/conversation"
	"github.com/vovakirdan/sugarchat/internal/journal"
	"github.com/vovakirdan/sugarchat/internal/linkify"
	"github.com/vovakirdan/sugarchat/internal/smilies"
)

const (
	defaultWidth  = 80
	defaultHeight = 24

	helpText = "enter send | ctrl+f search | ctrl+e smileys | ctrl+b bot | ctrl+s save | ctrl+o keep link | esc quit"
)

type mode int

const (
	modeChat mode = iota
	modeSearch
	modeSmiley
)

type ebookMsg bool

type sentMsg struct{ err error }

type journalMsg struct {
	entry journal.Entry
	err   error
}

// Option configures a Model.
type Option func(*Model)

// WithEbook shows e-book mode changes delivered on ch.
func WithEbook(ch <-chan bool) Option {
	return func(m *Model) { m.ebookCh = ch }
}

// WithClock sets the clock used for separator times.
func WithClock(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(m *Model) {
		if logger != nil {
			m.log = logger
		}
	}
}

// Model is the chat window.
type Model struct {
	ctx      context.Context
	act      *activity.Activity
	box      *conversation.Box
	notifier *Notifier
	ebookCh  <-chan bool
	now      func() time.Time
	log      *zerolog.Logger

	viewport viewport.Model
	input    textinput.Model
	search   textinput.Model
	offsets  []int

	mode   mode
	smiley int
	status string
	ebook  bool
	width  int
	height int
}

// New builds the chat window for act. The notifier must be the one act
// reports to.
func New(ctx context.Context, act *activity.Activity, n *Notifier, opts ...Option) Model {
	nop := zerolog.Nop()
	input := textinput.New()
	input.Prompt = "> "
	input.Focus()

	search := textinput.New()
	search.Prompt = "search: "

	m := Model{
		ctx:      ctx,
		act:      act,
		box:      act.Box(),
		notifier: n,
		now:      time.Now,
		log:      &nop,
		viewport: viewport.New(defaultWidth, defaultHeight),
		input:    input,
		search:   search,
		width:    defaultWidth,
		height:   defaultHeight,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.box.Subscribe(n.changed)
	m.layout()
	m.refresh()
	return m
}

// Init starts listening for activity and e-book events.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.notifier.listen(), m.listenEbook())
}

func (m Model) listenEbook() tea.Cmd {
	if m.ebookCh == nil {
		return nil
	}
	ch := m.ebookCh
	return func() tea.Msg {
		v, ok := <-ch
		if !ok {
			return nil
		}
		return ebookMsg(v)
	}
}

// Update handles a message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.refresh()
		return m, nil

	case tea.FocusMsg:
		m.act.SetFocused(true)
		return m, nil

	case tea.BlurMsg:
		m.act.SetFocused(false)
		return m, nil

	case boxChangedMsg:
		m.refresh()
		return m, m.notifier.listen()

	case alertMsg:
		m.status = msg.title + ": " + msg.msg
		m.refresh()
		return m, m.notifier.listen()

	case notifyMsg:
		m.status = msg.summary + ": " + msg.body
		return m, m.notifier.listen()

	case soundMsg:
		return m, m.notifier.listen()

	case ebookMsg:
		m.ebook = bool(msg)
		m.layout()
		m.refresh()
		return m, m.listenEbook()

	case sentMsg:
		if msg.err != nil {
			m.log.Warn().Err(msg.err).Msg("send message")
			m.status = "Send failed: " + msg.err.Error()
		}
		return m, nil

	case journalMsg:
		if msg.err != nil {
			m.status = "Journal: " + msg.err.Error()
		} else {
			m.status = "Saved to journal: " + msg.entry.Title
		}
		return m, nil

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		m.box.SetScrollAuto(m.viewport.AtBottom())
		return m, cmd

	case tea.KeyMsg:
		switch m.mode {
		case modeSearch:
			return m.updateSearch(msg)
		case modeSmiley:
			return m.updateSmiley(msg), nil
		default:
			return m.updateChat(msg)
		}
	}
	return m, nil
}

func (m Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		act, ctx := m.act, m.ctx
		return m, tea.Sequence(func() tea.Msg {
			act.CanClose(ctx)
			return nil
		}, tea.Quit)

	case "enter":
		if m.act.Placeholder() != "" {
			return m, nil
		}
		text := m.input.Value()
		m.input.Reset()
		act, ctx := m.act, m.ctx
		return m, func() tea.Msg {
			return sentMsg{err: act.Send(ctx, text)}
		}

	case "ctrl+b":
		m.input.SetValue(activity.ToggleBot(m.input.Value()))
		m.input.CursorEnd()
		return m, nil

	case "ctrl+f":
		m.mode = modeSearch
		m.input.Blur()
		m.search.Reset()
		m.search.Focus()
		m.layout()
		return m, nil

	case "ctrl+e":
		m.mode = modeSmiley
		m.layout()
		return m, nil

	case "ctrl+s":
		act := m.act
		return m, func() tea.Msg {
			e, err := act.SaveToJournal()
			return journalMsg{entry: e, err: err}
		}

	case "ctrl+o":
		url := m.lastURL()
		if url == "" {
			m.status = "No link in the conversation"
			return m, nil
		}
		act := m.act
		return m, func() tea.Msg {
			e, err := act.OpenURL(url)
			return journalMsg{entry: e, err: err}
		}

	case "pgup":
		m.viewport.HalfViewUp()
		m.box.SetScrollAuto(false)
		return m, nil

	case "pgdown":
		m.viewport.HalfViewDown()
		m.box.SetScrollAuto(m.viewport.AtBottom())
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "ctrl+f":
		m.mode = modeChat
		m.search.Blur()
		m.input.Focus()
		m.box.SetSearchText("")
		m.layout()
		m.refresh()
		return m, nil

	case "enter", "ctrl+n", "down":
		m.step(conversation.Forward)
		return m, nil

	case "ctrl+p", "up":
		m.step(conversation.Backward)
		return m, nil
	}

	var cmd tea.Cmd
	before := m.search.Value()
	m.search, cmd = m.search.Update(msg)
	if m.search.Value() != before {
		m.box.SetSearchText(m.search.Value())
		m.refresh()
	}
	return m, cmd
}

// step moves to the next match in dir and scrolls it into view.
func (m *Model) step(dir conversation.Direction) {
	match, ok := m.box.Search(dir)
	if !ok {
		m.status = "No more matches"
		return
	}
	m.status = ""
	m.box.SetScrollAuto(false)
	m.refresh()
	if match.Block < len(m.offsets) {
		m.viewport.SetYOffset(m.offsets[match.Block])
	}
}

func (m Model) updateSmiley(msg tea.KeyMsg) Model {
	switch msg.String() {
	case "esc", "ctrl+e":
		m.mode = modeChat
	case "left":
		if m.smiley > 0 {
			m.smiley--
		}
	case "right":
		if m.smiley < len(smilies.Theme)-1 {
			m.smiley++
		}
	case "enter":
		code := smilies.Theme[m.smiley].Codes[0]
		m.input.SetValue(m.input.Value() + code)
		m.input.CursorEnd()
		m.mode = modeChat
	}
	m.layout()
	return m
}

// lastURL finds the most recent link in the conversation.
func (m Model) lastURL() string {
	blocks := m.box.Blocks()
	for i := len(blocks) - 1; i >= 0; i-- {
		lines := blocks[i].Lines
		for j := len(lines) - 1; j >= 0; j-- {
			if urls := linkify.URLs(lines[j]); len(urls) > 0 {
				return urls[len(urls)-1]
			}
		}
	}
	return ""
}

// layout sizes the viewport to what the other rows leave.
func (m *Model) layout() {
	rows := 3 // header, entry, status bar
	if m.mode != modeChat {
		rows++
	}
	h := m.height - rows
	if h < 1 {
		h = 1
	}
	m.viewport.Width = m.width
	m.viewport.Height = h
	m.input.Width = m.width - lipgloss.Width(m.input.Prompt) - 1
	m.search.Width = m.width - lipgloss.Width(m.search.Prompt) - 1
}

// refresh redraws the conversation, following new messages when auto
// scrolling is on.
func (m *Model) refresh() {
	var hl *conversation.Match
	if match, ok := m.box.Highlight(); ok {
		hl = &match
	}
	content, offsets := renderBlocks(m.box.Blocks(), m.width, m.now(), hl)
	m.offsets = offsets
	m.viewport.SetContent(content)
	if m.box.ScrollAuto() {
		m.viewport.GotoBottom()
	}
	m.input.Placeholder = m.act.Placeholder()
}

// View renders the window.
func (m Model) View() string {
	rows := []string{m.header(), m.viewport.View()}
	switch m.mode {
	case modeSearch:
		rows = append(rows, m.search.View())
	case modeSmiley:
		rows = append(rows, renderPalette(m.smiley))
	}
	rows = append(rows, m.input.View(), m.statusBar())
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m Model) header() string {
	kind := "private"
	switch {
	case m.act.Ready() && m.act.IsRoom():
		kind = "room"
	case m.act.Ready():
		kind = "one-to-one"
	}
	parts := []string{"Chat", m.act.Owner().Nick, "[" + kind + "]"}
	if m.ebook {
		parts = append(parts, "[ebook]")
	}
	return headerStyle.Render(strings.Join(parts, "  "))
}

func (m Model) statusBar() string {
	text := m.status
	if text == "" {
		text = helpText
	}
	if m.mode == modeSearch {
		if n := len(m.box.Matches()); n > 0 {
			text = fmt.Sprintf("%d matches | enter next | ctrl+p previous | esc done", n)
		}
	}
	return statusBarStyle.Render(text)
}
