package ui

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/vovakirdan/sugarchat/internal/buddy"
	"github.com/vovakirdan/sugarchat/internal/chatlog"
	"github.com/vovakirdan/sugarchat/internal/conversation"
	"github.com/vovakirdan/sugarchat/internal/linkify"
	"github.com/vovakirdan/sugarchat/internal/smilies"
)

const minBlockWidth = 12

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	statusBarStyle = lipgloss.NewStyle().Faint(true).Padding(0, 1)
	separatorStyle = lipgloss.NewStyle().Faint(true).Align(lipgloss.Center)
	statusStyle    = lipgloss.NewStyle().Italic(true).Faint(true).Padding(0, 1)
	nickStyle      = lipgloss.NewStyle().Bold(true)
	urlStyle       = lipgloss.NewStyle().Underline(true)
	matchStyle     = lipgloss.NewStyle().Reverse(true)
	selectedStyle  = lipgloss.NewStyle().Reverse(true).Padding(0, 1)
	paletteStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// renderBlocks draws the conversation at the given width. It also returns the
// first line of each block so a search match can be scrolled into view.
func renderBlocks(blocks []conversation.Block, width int, now time.Time, hl *conversation.Match) (string, []int) {
	if width < minBlockWidth+2 {
		width = minBlockWidth + 2
	}

	pieces := make([]string, 0, len(blocks))
	offsets := make([]int, len(blocks))
	line := 0
	for i, blk := range blocks {
		var piece string
		switch blk.Kind {
		case conversation.BlockSeparator:
			piece = separatorStyle.Width(width).Render("-- " + chatlog.Elapsed(blk.Timestamp, now) + " --")
		case conversation.BlockStatus:
			piece = renderStatus(blk, i, width, hl)
		default:
			piece = renderMessage(blk, i, width, hl)
		}
		offsets[i] = line
		line += lipgloss.Height(piece)
		pieces = append(pieces, piece)
	}
	return strings.Join(pieces, "\n"), offsets
}

func renderMessage(blk conversation.Block, index, width int, hl *conversation.Match) string {
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(blk.Color.Stroke)).
		Background(lipgloss.Color(blk.Color.Fill)).
		Foreground(lipgloss.Color(blk.Color.TextColor())).
		Padding(0, 1).
		Width(width - 2)
	if blk.RTL {
		style = style.Align(lipgloss.Right)
	}

	lines := make([]string, 0, len(blk.Lines)+1)
	lines = append(lines, nickStyle.Render(blk.Nick))
	for li, text := range blk.Lines {
		lines = append(lines, renderLine(text, index, li, hl))
	}
	return style.Render(strings.Join(lines, "\n"))
}

func renderStatus(blk conversation.Block, index, width int, hl *conversation.Match) string {
	style := statusStyle.Width(width).Foreground(lipgloss.Color(blk.Color.Stroke))
	if blk.Color == (buddy.Color{}) {
		style = statusStyle.Width(width)
	}
	lines := make([]string, 0, len(blk.Lines))
	for li, text := range blk.Lines {
		lines = append(lines, renderLine(text, index, li, hl))
	}
	return style.Render(strings.Join(lines, "\n"))
}

// renderLine draws one message line, reversing the highlighted match.
func renderLine(text string, block, line int, hl *conversation.Match) string {
	if hl != nil && hl.Block == block && hl.Line == line && hl.Start <= hl.End && hl.End <= len(text) {
		return renderText(text[:hl.Start]) + matchStyle.Render(text[hl.Start:hl.End]) + renderText(text[hl.End:])
	}
	return renderText(text)
}

// renderText underlines URLs and replaces smiley codes with emoji.
func renderText(text string) string {
	words := strings.Split(text, " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		if linkify.IsURL(w) {
			words[i] = urlStyle.Render(w)
			continue
		}
		words[i] = smilies.Render(w)
	}
	return strings.Join(words, " ")
}

// renderPalette draws the smiley picker with selected highlighted.
func renderPalette(selected int) string {
	items := make([]string, 0, len(smilies.Theme))
	for i, s := range smilies.Theme {
		if i == selected {
			items = append(items, selectedStyle.Render(s.Emoji+" "+s.Hint))
			continue
		}
		items = append(items, s.Emoji)
	}
	return paletteStyle.Render(strings.Join(items, " "))
}
