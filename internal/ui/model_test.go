package ui

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/sugarchat/internal/activity"
	"github.com/vovakirdan/sugarchat/internal/buddy"
	"github.com/vovakirdan/sugarchat/internal/conversation"
	"github.com/vovakirdan/sugarchat/internal/journal"
	"github.com/vovakirdan/sugarchat/internal/smilies"
)

var testNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func newTestModel(t *testing.T, opts ...activity.Option) (Model, *activity.Activity, *Notifier) {
	t.Helper()
	owner := buddy.New("walter", "#FF0000,#00FF00")
	n := NewNotifier(nil)
	act := activity.New(owner, n, opts...)
	m := New(context.Background(), act, n, WithClock(func() time.Time { return testNow }))
	return m, act, n
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

func key(k tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: k}
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return m
}

func TestRenderBlocks(t *testing.T) {
	box := conversation.NewWithClock(buddy.New("walter", "#FF0000,#00FF00"), func() time.Time { return testNow })
	box.AddSeparator("May 04 09:00:00")
	box.AddText(buddy.New("alice", "#0000FF,#FFFF00"), "hi :-) see http://sugarlabs.org", false)
	box.AddText(buddy.New("bob", "#000000,#FFFFFF"), "bob joined the chat", true)

	out, offsets := renderBlocks(box.Blocks(), 60, testNow, nil)

	assert.Contains(t, out, "3 hours ago")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "hi "+smilies.Theme[0].Emoji)
	assert.Contains(t, out, "http://sugarlabs.org")
	assert.Contains(t, out, "bob joined the chat")
	require.Len(t, offsets, 3)
	assert.Equal(t, 0, offsets[0])
	assert.Less(t, offsets[1], offsets[2])
}

func TestRenderLineHighlight(t *testing.T) {
	hl := &conversation.Match{Block: 0, Line: 0, Start: 4, End: 9}
	out := renderLine("say hello :)", 0, 0, hl)
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, smilies.Theme[0].Emoji)

	assert.Equal(t, "say hello", renderLine("say hello", 1, 0, hl))
}

func TestModelSendsEntry(t *testing.T) {
	m, act, _ := newTestModel(t)
	act.StartPrivate()

	m = typeText(t, m, "hello there")
	m, cmd := update(t, m, key(tea.KeyEnter))
	require.NotNil(t, cmd)
	assert.Equal(t, "", m.input.Value())

	msg := cmd()
	sent, ok := msg.(sentMsg)
	require.True(t, ok)
	require.NoError(t, sent.err)

	m, _ = update(t, m, boxChangedMsg{})
	view := m.View()
	assert.Contains(t, view, "walter")
	assert.Contains(t, view, "hello there")
}

func TestModelWaitsForConnection(t *testing.T) {
	m, act, _ := newTestModel(t)
	act.StartJoining()
	m, _ = update(t, m, boxChangedMsg{})

	m = typeText(t, m, "too early")
	m, cmd := update(t, m, key(tea.KeyEnter))
	assert.Nil(t, cmd)
	assert.Equal(t, "too early", m.input.Value())
	assert.Equal(t, 0, act.Box().Len())
	assert.Equal(t, activity.WaitPlaceholder, m.input.Placeholder)
}

func TestModelBotToggle(t *testing.T) {
	m, _, _ := newTestModel(t)
	m = typeText(t, m, "hi")

	m, _ = update(t, m, key(tea.KeyCtrlB))
	assert.Equal(t, "@bot hi", m.input.Value())

	m, _ = update(t, m, key(tea.KeyCtrlB))
	assert.Equal(t, "hi", m.input.Value())
}

func TestModelSmileyPicker(t *testing.T) {
	m, _, _ := newTestModel(t)
	m = typeText(t, m, "hey ")

	m, _ = update(t, m, key(tea.KeyCtrlE))
	assert.Equal(t, modeSmiley, m.mode)
	assert.Contains(t, m.View(), smilies.Theme[0].Hint)

	m, _ = update(t, m, key(tea.KeyRight))
	m, _ = update(t, m, key(tea.KeyEnter))
	assert.Equal(t, modeChat, m.mode)
	assert.Equal(t, "hey "+smilies.Theme[1].Codes[0], m.input.Value())
}

func TestModelSearch(t *testing.T) {
	m, act, _ := newTestModel(t)
	box := act.Box()
	alice := buddy.New("alice", "#0000FF,#FFFF00")
	box.AddText(alice, "first apple", false)
	box.AddText(buddy.New("bob", "#000000,#FFFFFF"), "no fruit", false)
	box.AddText(alice, "second apple", false)

	m, _ = update(t, m, key(tea.KeyCtrlF))
	require.Equal(t, modeSearch, m.mode)

	m = typeText(t, m, "apple")
	assert.Equal(t, "apple", box.SearchText())
	assert.Contains(t, m.View(), "2 matches")

	m, _ = update(t, m, key(tea.KeyEnter))
	match, ok := box.Highlight()
	require.True(t, ok)
	assert.Equal(t, 0, match.Block)
	assert.False(t, box.ScrollAuto())

	m, _ = update(t, m, key(tea.KeyCtrlN))
	match, _ = box.Highlight()
	assert.Equal(t, 2, match.Block)

	m, _ = update(t, m, key(tea.KeyCtrlN))
	assert.Equal(t, "No more matches", m.status)

	m, _ = update(t, m, key(tea.KeyEsc))
	assert.Equal(t, modeChat, m.mode)
	assert.Equal(t, "", box.SearchText())
}

func TestNotifierFeedsStatus(t *testing.T) {
	var bell bytes.Buffer
	n := NewNotifier(&bell)
	owner := buddy.New("walter", "#FF0000,#00FF00")
	act := activity.New(owner, n)
	m := New(context.Background(), act, n)

	act.StartPrivate()
	n.PlaySound(activity.SoundLogin)
	assert.Equal(t, "\a", bell.String())

	for i := 0; i < 2; i++ {
		m, _ = update(t, m, n.listen()())
	}
	assert.Contains(t, m.View(), activity.TitleOffline+": "+activity.MsgShare)

	m, _ = update(t, m, notifyMsg{summary: "Message from alice", body: "hi"})
	assert.Contains(t, m.View(), "Message from alice: hi")
}

func TestModelEbookIndicator(t *testing.T) {
	ch := make(chan bool, 1)
	owner := buddy.New("walter", "#FF0000,#00FF00")
	n := NewNotifier(nil)
	m := New(context.Background(), activity.New(owner, n), n, WithEbook(ch))

	assert.NotContains(t, m.View(), "[ebook]")

	ch <- true
	msg := m.listenEbook()()
	m, _ = update(t, m, msg)
	assert.Contains(t, m.View(), "[ebook]")

	close(ch)
	assert.Nil(t, m.listenEbook()())
}

func TestModelSavesToJournal(t *testing.T) {
	j, err := journal.New(t.TempDir())
	require.NoError(t, err)
	m, act, _ := newTestModel(t, activity.WithJournal(j))
	act.Box().AddText(buddy.New("alice", "#0000FF,#FFFF00"), "look at sugarlabs.org", false)

	m, cmd := update(t, m, key(tea.KeyCtrlS))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	assert.True(t, strings.HasPrefix(m.status, "Saved to journal: "), m.status)

	m, cmd = update(t, m, key(tea.KeyCtrlO))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	assert.Contains(t, m.status, "URL from Chat: http://sugarlabs.org")

	entries, err := j.List(journal.MimeURIList)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestModelResize(t *testing.T) {
	m, _, _ := newTestModel(t)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	assert.Equal(t, 100, m.viewport.Width)
	assert.Equal(t, 27, m.viewport.Height)

	m, _ = update(t, m, key(tea.KeyCtrlF))
	assert.Equal(t, 26, m.viewport.Height)
}
