package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/sugarchat/internal/chatlog"
	"github.com/vovakirdan/sugarchat/internal/journal"
)

const sampleLog = "May 04 09:00:00\t\t\n" +
	"May 04 09:00:05\talice\t#0000FF,#FFFF00\t1\talice joined the chat\n" +
	"May 04 09:00:10\talice\t#0000FF,#FFFF00\t0\thello :-)\n"

func TestShowLog(t *testing.T) {
	now := time.Date(2026, 5, 4, 11, 0, 0, 0, time.Local)
	var out bytes.Buffer
	require.NoError(t, showLog(&out, strings.NewReader(sampleLog), now))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "-- 2 hours ago --", lines[0])
	assert.Equal(t, "* alice joined the chat", lines[1])
	assert.Equal(t, "alice: hello 🙂", lines[2])
}

func TestShowLogKeepsRecordsBeforeError(t *testing.T) {
	var out bytes.Buffer
	err := showLog(&out, strings.NewReader(sampleLog+"garbage\n"), time.Now())
	assert.True(t, errors.Is(err, chatlog.ErrMalformed))
	assert.Contains(t, out.String(), "alice: hello")
}

func TestCheckLog(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, checkLog(&out, strings.NewReader(sampleLog)))
	assert.Equal(t, "3 records ok\n", out.String())

	err := checkLog(&out, strings.NewReader("bad\tline\n"))
	var perr *chatlog.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 1, perr.Line)
}

func TestListLogs(t *testing.T) {
	j, err := journal.New(t.TempDir())
	require.NoError(t, err)
	e, err := j.Create(journal.Entry{Title: "Chat", MimeType: journal.MimeChatLog}, []byte(sampleLog))
	require.NoError(t, err)
	_, err = j.SaveURL("http://sugarlabs.org", "#000000,#FFFFFF")
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, listLogs(&out, j, time.Now()))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], e.ID+"\tChat\t"), lines[0])
}
