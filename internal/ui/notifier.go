package ui

import (
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vovakirdan/sugarchat/internal/activity"
)

const notifierBuffer = 64

type alertMsg struct{ title, msg string }

type notifyMsg struct{ summary, body string }

type soundMsg struct{ sound activity.Sound }

type boxChangedMsg struct{}

// Notifier delivers activity alerts, sounds and notifications to the
// terminal program. Sounds ring the terminal bell.
type Notifier struct {
	msgs chan tea.Msg
	bell io.Writer
}

// NewNotifier creates a notifier ringing bell. A nil bell stays silent.
func NewNotifier(bell io.Writer) *Notifier {
	return &Notifier{msgs: make(chan tea.Msg, notifierBuffer), bell: bell}
}

func (n *Notifier) Alert(title, msg string) {
	n.post(alertMsg{title: title, msg: msg})
}

func (n *Notifier) PlaySound(s activity.Sound) {
	if n.bell != nil {
		_, _ = io.WriteString(n.bell, "\a")
	}
	n.post(soundMsg{sound: s})
}

func (n *Notifier) NotifyUser(summary, body string) {
	n.post(notifyMsg{summary: summary, body: body})
}

func (n *Notifier) changed() {
	n.post(boxChangedMsg{})
}

// post never blocks: activity callbacks run on channel goroutines and before
// the program starts.
func (n *Notifier) post(msg tea.Msg) {
	select {
	case n.msgs <- msg:
	default:
	}
}

func (n *Notifier) listen() tea.Cmd {
	return func() tea.Msg {
		return <-n.msgs
	}
}
