// Package smilies maps ASCII smiley codes to named faces.
package smilies

import (
	"sort"
	"strings"
	"sync"
)

// Smiley is one entry of the theme.
type Smiley struct {
	Name  string
	Hint  string
	Codes []string
	Emoji string
}

// Theme lists the smileys in palette order.
var Theme = []Smiley{
	{Name: "smile", Hint: "Smile", Codes: []string{":-)", ":)"}, Emoji: "🙂"},
	{Name: "wink", Hint: "Winking", Codes: []string{";-)", ";)"}, Emoji: "😉"},
	{Name: "confused", Hint: "Confused", Codes: []string{":-/", ":/"}, Emoji: "😕"},
	{Name: "sad", Hint: "Sad", Codes: []string{":-(", ":("}, Emoji: "🙁"},
	{Name: "grin", Hint: "Grin", Codes: []string{":-D", ":D"}, Emoji: "😀"},
	{Name: "neutral", Hint: "Neutral", Codes: []string{":-|", ":|"}, Emoji: "😐"},
	{Name: "shock", Hint: "Shock", Codes: []string{":-O", ":O", "=-O", "=O"}, Emoji: "😮"},
	{Name: "cool", Hint: "Cool", Codes: []string{"B-)", "B)", "8-)", "8)"}, Emoji: "😎"},
	{Name: "tongue", Hint: "Tongue", Codes: []string{":-P", ":P"}, Emoji: "😛"},
	{Name: "blush", Hint: "Blushing", Codes: []string{`:">`}, Emoji: "😊"},
	{Name: "weep", Hint: "Weeping", Codes: []string{":'-(", ":'("}, Emoji: "😢"},
	{Name: "angel", Hint: "Angel", Codes: []string{"O-)", "O)", "O:-)", "O:)"}, Emoji: "😇"},
	{Name: "shutup", Hint: "Don't tell anyone", Codes: []string{":-$"}, Emoji: "🤐"},
	{Name: "angry", Hint: "Angry", Codes: []string{"x-(", "x(", "X-("}, Emoji: "😠"},
	{Name: "devil", Hint: "Devil", Codes: []string{">:>", ">:)"}, Emoji: "😈"},
	{Name: "nerd", Hint: "Nerd", Codes: []string{":-B", ":B"}, Emoji: "🤓"},
	{Name: "kiss", Hint: "Kiss", Codes: []string{":-*", ":*"}, Emoji: "😗"},
	{Name: "laugh", Hint: "Laughing", Codes: []string{":))"}, Emoji: "😂"},
	{Name: "sleep", Hint: "Sleepy", Codes: []string{"I-)"}, Emoji: "😴"},
	{Name: "sick", Hint: "Sick", Codes: []string{":-&"}, Emoji: "🤢"},
	{Name: "eyebrow", Hint: "Raised eyebrows", Codes: []string{"/:)"}, Emoji: "🤨"},
}

// Segment is a run of plain text or a single smiley.
type Segment struct {
	Text   string
	Smiley *Smiley
}

var (
	catalogOnce sync.Once
	catalog     map[string]*Smiley
	codes       []string
)

func loadCatalog() {
	catalog = make(map[string]*Smiley)
	for i := range Theme {
		for _, code := range Theme[i].Codes {
			catalog[code] = &Theme[i]
		}
	}
	codes = make([]string, 0, len(catalog))
	for code := range catalog {
		codes = append(codes, code)
	}
	// Longest first so ":))" wins over ":)".
	sort.Slice(codes, func(i, j int) bool {
		if len(codes[i]) != len(codes[j]) {
			return len(codes[i]) > len(codes[j])
		}
		return codes[i] < codes[j]
	})
}

// Lookup returns the smiley for an exact code.
func Lookup(code string) (*Smiley, bool) {
	catalogOnce.Do(loadCatalog)
	s, ok := catalog[code]
	return s, ok
}

// Parse splits text into plain and smiley segments.
func Parse(text string) []Segment {
	catalogOnce.Do(loadCatalog)

	result := []Segment{{Text: text}}
	for _, code := range codes {
		next := make([]Segment, 0, len(result))
		for _, seg := range result {
			if seg.Smiley != nil || !strings.Contains(seg.Text, code) {
				next = append(next, seg)
				continue
			}
			parts := strings.Split(seg.Text, code)
			for i, part := range parts {
				if part != "" {
					next = append(next, Segment{Text: part})
				}
				if i < len(parts)-1 {
					next = append(next, Segment{Text: code, Smiley: catalog[code]})
				}
			}
		}
		result = next
	}
	return result
}

// Render replaces every smiley code in text with its emoji.
func Render(text string) string {
	var b strings.Builder
	for _, seg := range Parse(text) {
		if seg.Smiley != nil {
			b.WriteString(seg.Smiley.Emoji)
			continue
		}
		b.WriteString(seg.Text)
	}
	return b.String()
}
