package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/sugarchat/internal/activity"
	"github.com/vovakirdan/sugarchat/internal/buddy"
	"github.com/vovakirdan/sugarchat/internal/config"
	"github.com/vovakirdan/sugarchat/internal/ebook"
	"github.com/vovakirdan/sugarchat/internal/journal"
	"github.com/vovakirdan/sugarchat/internal/log"
	"github.com/vovakirdan/sugarchat/internal/proto"
	"github.com/vovakirdan/sugarchat/internal/textchan"
	"github.com/vovakirdan/sugarchat/internal/textchan/relay"
	"github.com/vovakirdan/sugarchat/internal/textchan/telepathy"
	"github.com/vovakirdan/sugarchat/internal/ui"
)

var clientFlags struct {
	relayURL string
	nick     string
	color    string
	token    string
	room     string
	peer     uint32
	private  bool
	uri      string
	resume   string
	logFile  string
}

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Open the terminal chat window",
	Long: `Open the terminal chat window.

By default the client joins a room on the relay. --peer opens a private chat
with a buddy handle, --uri answers a Telepathy private chat invitation on the
session bus, and --private chats offline. --resume restores a chat log saved
in the journal.`,
	RunE: runClient,
}

func init() {
	f := clientCmd.Flags()
	f.StringVar(&clientFlags.relayURL, "relay", "", "relay WebSocket URL")
	f.StringVar(&clientFlags.nick, "nick", "", "nick name")
	f.StringVar(&clientFlags.color, "color", "", "XO color as #stroke,#fill")
	f.StringVar(&clientFlags.token, "token", "", "relay access token")
	f.StringVar(&clientFlags.room, "room", "", "room to join")
	f.Uint32Var(&clientFlags.peer, "peer", 0, "buddy handle to chat with privately")
	f.BoolVar(&clientFlags.private, "private", false, "chat without connecting")
	f.StringVar(&clientFlags.uri, "uri", "", `Telepathy invitation ["bus","/connection","/channel"]`)
	f.StringVar(&clientFlags.resume, "resume", "", "journal entry to resume")
	f.StringVar(&clientFlags.logFile, "log-file", "sugarchat-client.log", "client log file")
}

func runClient(cmd *cobra.Command, args []string) error {
	cfg, _, err := config.Load(nil, configPath)
	if err != nil {
		return err
	}
	cfg.UpdateFrom(config.Config{Client: config.ClientConfig{
		RelayURL: clientFlags.relayURL,
		Nick:     clientFlags.nick,
		Color:    clientFlags.color,
		Token:    clientFlags.token,
		Room:     clientFlags.room,
	}})

	logOut, err := os.OpenFile(clientFlags.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logOut.Close()
	logger := log.NewWithWriter(cfg.LogLevel, logOut)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := startSession(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer s.close()

	detector := ebook.New(cfg.Client.EbookDevice, ebook.WithLogger(logger))
	go func() {
		if err := detector.Run(ctx); err != nil {
			logger.Debug().Err(err).Msg("ebook mode detection off")
		}
	}()

	model := ui.New(ctx, s.act, s.notifier, ui.WithEbook(detector.Changes()), ui.WithLogger(logger))
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithReportFocus(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run chat window: %w", err)
	}

	if s.journal != nil {
		e, err := s.act.SaveToJournal()
		if err != nil {
			logger.Warn().Err(err).Msg("save chat log")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "chat log saved to journal entry %s\n", e.ID)
	}
	return nil
}

// session is the activity plus whatever connection feeds it.
type session struct {
	act      *activity.Activity
	notifier *ui.Notifier
	journal  *journal.Store
	closers  []func()
}

func (s *session) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func startSession(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*session, error) {
	s := &session{notifier: ui.NewNotifier(os.Stderr)}

	if cfg.Client.JournalDir != "" {
		j, err := journal.New(cfg.Client.JournalDir, journal.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		s.journal = j
	}

	owner := buddy.New(cfg.Client.Nick, cfg.Client.Color)
	if owner.Nick == "" {
		owner.Nick = os.Getenv("USER")
	}
	if !buddy.ValidColor(owner.Color) {
		owner.Color = buddy.RandomColor()
	}

	var client *relay.Client
	if clientFlags.uri == "" && !clientFlags.private {
		c, err := relay.Dial(ctx, cfg.Client.RelayURL, proto.HelloData{
			Nick:  owner.Nick,
			Color: owner.Color,
			Token: cfg.Client.Token,
		}, relay.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("connect to relay: %w", err)
		}
		s.closers = append(s.closers, func() { _ = c.Close() })
		client = c
		self := c.Self()
		owner = &self
	}

	opts := []activity.Option{
		activity.WithLogger(logger),
		activity.WithCallTimeout(cfg.Client.CallTimeout),
	}
	if s.journal != nil {
		opts = append(opts, activity.WithJournal(s.journal))
	}
	s.act = activity.New(owner, s.notifier, opts...)

	if clientFlags.resume != "" {
		if err := s.act.ResumeFromJournal(clientFlags.resume); err != nil {
			if errors.Is(err, activity.ErrNoJournal) || errors.Is(err, journal.ErrNotFound) {
				s.close()
				return nil, err
			}
			logger.Warn().Err(err).Str("entry", clientFlags.resume).Msg("chat log partly restored, saving to a new entry")
		}
	}

	var err error
	switch {
	case clientFlags.uri != "":
		err = s.answerInvitation(ctx, clientFlags.uri, logger)
	case clientFlags.private:
		s.act.StartPrivate()
	case clientFlags.peer != 0:
		err = s.openPrivate(ctx, client, textchan.Handle(clientFlags.peer))
	default:
		err = s.joinRoom(ctx, client, cfg.Client.Room)
	}
	if err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *session) joinRoom(ctx context.Context, client *relay.Client, room string) error {
	if clientFlags.resume != "" {
		s.act.StartResumedShared()
	} else {
		s.act.StartJoining()
	}
	ch, err := client.Join(ctx, room)
	if err != nil {
		return fmt.Errorf("join %s: %w", room, err)
	}
	return s.act.Joined(ctx, ch, client, client, ch)
}

func (s *session) openPrivate(ctx context.Context, client *relay.Client, peer textchan.Handle) error {
	s.act.StartJoining()
	ch, err := client.Open(ctx, peer)
	if err != nil {
		return fmt.Errorf("open private chat: %w", err)
	}
	return s.act.OneToOne(ctx, ch, client, client)
}

func (s *session) answerInvitation(ctx context.Context, uri string, logger *zerolog.Logger) error {
	inv, err := telepathy.ParseURI(uri)
	if err != nil {
		return err
	}
	s.act.StartJoining()

	conn, err := dbus.SessionBus()
	if err != nil {
		return fmt.Errorf("connect to session bus: %w", err)
	}
	bus := telepathy.NewBus(conn, logger)
	s.closers = append(s.closers, bus.Close)

	ch, err := telepathy.OpenChannel(ctx, bus, inv.BusName, inv.Channel)
	if err != nil {
		return fmt.Errorf("open invited channel: %w", err)
	}
	tpConn := telepathy.OpenConnection(bus, inv.BusName, inv.Connection)
	return s.act.OneToOne(ctx, ch, tpConn, tpConn)
}
