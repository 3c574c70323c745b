package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/sugarchat/internal/buddy"
	"github.com/vovakirdan/sugarchat/internal/chatlog"
	"github.com/vovakirdan/sugarchat/internal/config"
	"github.com/vovakirdan/sugarchat/internal/journal"
	"github.com/vovakirdan/sugarchat/internal/smilies"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Inspect saved chat logs",
}

var logShowCmd = &cobra.Command{
	Use:   "show <file|->",
	Short: "Print a chat log as a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLog(args[0], func(r io.Reader) error {
			return showLog(cmd.OutOrStdout(), r, time.Now())
		})
	},
}

var logCheckCmd = &cobra.Command{
	Use:   "check <file|->",
	Short: "Validate a chat log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLog(args[0], func(r io.Reader) error {
			return checkLog(cmd.OutOrStdout(), r)
		})
	},
}

var logListCmd = &cobra.Command{
	Use:   "list",
	Short: "List chat logs saved in the journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := config.Load(nil, configPath)
		if err != nil {
			return err
		}
		j, err := journal.New(cfg.Client.JournalDir)
		if err != nil {
			return err
		}
		return listLogs(cmd.OutOrStdout(), j, time.Now())
	},
}

func init() {
	logCmd.AddCommand(logShowCmd, logCheckCmd, logListCmd)
}

func withLog(path string, fn func(io.Reader) error) error {
	if path == "-" {
		return fn(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return fn(f)
}

// showLog prints what parses, then reports the first malformed line.
func showLog(w io.Writer, r io.Reader, now time.Time) error {
	entries, err := chatlog.Parse(r)
	for _, e := range entries {
		switch {
		case e.Separator:
			fmt.Fprintf(w, "-- %s --\n", chatlog.Elapsed(e.Timestamp, now))
		case e.Status:
			fmt.Fprintf(w, "* %s\n", smilies.Render(e.Text))
		default:
			nick := e.Nick
			if nick == "" {
				nick = buddy.UnknownNick
			}
			fmt.Fprintf(w, "%s: %s\n", nick, smilies.Render(e.Text))
		}
	}
	return err
}

func checkLog(w io.Writer, r io.Reader) error {
	entries, err := chatlog.Parse(r)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%d records ok\n", len(entries))
	return nil
}

func listLogs(w io.Writer, j *journal.Store, now time.Time) error {
	entries, err := j.List(journal.MimeChatLog)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.ID, e.Title, humanize.RelTime(e.Modified, now, "ago", "from now"))
	}
	return nil
}
