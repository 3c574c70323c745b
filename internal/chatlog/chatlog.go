// Package chatlog reads and writes the tab-delimited conversation log kept in
// the journal.
//
// Each message record is one line:
//
//	timestamp \t nick \t color \t status \t text
//
// and a session separator is a timestamp followed by two tabs.
package chatlog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/vovakirdan/sugarchat/internal/buddy"
)

// TimestampLayout is the time format used in log records.
const TimestampLayout = "Jan 02 15:04:05"

const emptyText = "-"

// ErrMalformed is wrapped by every ParseError.
var ErrMalformed = errors.New("malformed chat log record")

// ParseError reports the first invalid line of a log.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("chat log line %d: %s", e.Line, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return ErrMalformed
}

// Entry is one parsed log record.
type Entry struct {
	Timestamp string
	Separator bool
	Nick      string
	Color     string
	Status    bool
	Text      string
}

// Line renders the entry in log format, including the trailing newline.
func (e Entry) Line() string {
	if e.Separator {
		return e.Timestamp + "\t\t\n"
	}
	status := 0
	if e.Status {
		status = 1
	}
	return fmt.Sprintf("%s\t%s\t%s\t%d\t%s\n", e.Timestamp, e.Nick, e.Color, status, e.Text)
}

// Log accumulates records during a session.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	now     func() time.Time
}

// New returns an empty log stamped with the wall clock.
func New() *Log {
	return &Log{now: time.Now}
}

// NewWithClock returns an empty log using now for timestamps.
func NewWithClock(now func() time.Time) *Log {
	return &Log{now: now}
}

// AddMessage appends a message record stamped now and returns it.
func (l *Log) AddMessage(nick, color, text string, status bool) Entry {
	return l.AddMessageAt(l.now(), nick, color, text, status)
}

// AddMessageAt appends a message record stamped at t.
func (l *Log) AddMessageAt(t time.Time, nick, color, text string, status bool) Entry {
	if nick == "" {
		nick = buddy.UnknownNick
	}
	if color == "" {
		color = buddy.DefaultLogColor
	}
	if text == "" {
		text = emptyText
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e := Entry{
		Timestamp: t.Format(TimestampLayout),
		Nick:      flatten(nick),
		Color:     flatten(color),
		Status:    status,
		Text:      flatten(text),
	}
	l.entries = append(l.entries, e)
	return e
}

// AddTimestamp appends a separator. An empty existing value stamps the
// current time.
func (l *Log) AddTimestamp(existing string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := existing
	if ts == "" {
		ts = l.now().Format(TimestampLayout)
	}
	e := Entry{Timestamp: ts, Separator: true}
	l.entries = append(l.entries, e)
	return e
}

// Entries returns a copy of the records logged so far.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// String renders the whole log.
func (l *Log) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var b strings.Builder
	for _, e := range l.entries {
		b.WriteString(e.Line())
	}
	return b.String()
}

// WriteTo writes the log to w.
func (l *Log) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, l.String())
	return int64(n), err
}

// Parse reads a log. It stops at the first malformed line.
func Parse(r io.Reader) ([]Entry, error) {
	var entries []Entry

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		e, err := ParseLine(line)
		if err != nil {
			return entries, &ParseError{Line: lineNo, Reason: err.Error()}
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("read chat log: %w", err)
	}
	return entries, nil
}

// ParseLine parses a single record without its newline.
func ParseLine(line string) (Entry, error) {
	if strings.HasSuffix(line, "\t\t") && strings.Count(line, "\t") == 2 {
		ts := strings.TrimSpace(strings.TrimSuffix(line, "\t\t"))
		if ts == "" {
			return Entry{}, errors.New("separator without timestamp")
		}
		return Entry{Timestamp: ts, Separator: true}, nil
	}

	fields := strings.SplitN(line, "\t", 5)
	if len(fields) != 5 {
		return Entry{}, fmt.Errorf("expected 5 fields, got %d", len(fields))
	}

	var status bool
	switch fields[3] {
	case "0":
	case "1":
		status = true
	default:
		return Entry{}, fmt.Errorf("invalid status %q", fields[3])
	}

	return Entry{
		Timestamp: fields[0],
		Nick:      fields[1],
		Color:     fields[2],
		Status:    status,
		Text:      fields[4],
	}, nil
}

// ResolveTimestamp places a log timestamp, which has no year, in the current
// year, or the previous one when that would be in the future.
func ResolveTimestamp(ts string, now time.Time) (time.Time, error) {
	parsed, err := time.ParseInLocation(TimestampLayout, ts, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", ts, err)
	}
	t := parsed.AddDate(now.Year()-parsed.Year(), 0, 0)
	if t.After(now) {
		t = t.AddDate(-1, 0, 0)
	}
	return t, nil
}

// Elapsed describes ts relative to now, e.g. "3 hours ago".
func Elapsed(ts string, now time.Time) string {
	t, err := ResolveTimestamp(ts, now)
	if err != nil {
		return ts
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

func flatten(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\t', '\n', '\r':
			return ' '
		}
		return r
	}, s)
}
