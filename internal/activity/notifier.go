package activity

import "github.com/rs/zerolog"

// LogNotifier writes alerts, sounds and notifications to a logger. It is
// used when no terminal is attached.
type LogNotifier struct {
	Log *zerolog.Logger
}

func (n LogNotifier) Alert(title, msg string) {
	n.Log.Info().Str("title", title).Msg(msg)
}

func (n LogNotifier) PlaySound(s Sound) {
	n.Log.Debug().Str("sound", string(s)).Msg("play sound")
}

func (n LogNotifier) NotifyUser(summary, body string) {
	n.Log.Info().Str("summary", summary).Msg(body)
}
