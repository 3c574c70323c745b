package conversation

import (
	"unicode"
	"unicode/utf8"
)

// Direction of a search step.
type Direction int

const (
	Forward Direction = iota
	Backward
)

// Match locates search text inside a block line. Offsets are byte offsets
// into the line.
type Match struct {
	Block int
	Line  int
	Start int
	End   int
}

type searchState struct {
	text    string
	matches []Match
	current int
}

// SetSearchText starts a new search. Empty text clears it.
func (b *Box) SetSearchText(text string) {
	b.mu.Lock()
	b.search = searchState{text: text, current: -1}
	b.search.matches = b.findLocked(text)
	b.notifyLocked()
}

// SearchText returns the active search text.
func (b *Box) SearchText() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.search.text
}

// Matches returns every match of the active search.
func (b *Box) Matches() []Match {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Match(nil), b.search.matches...)
}

// HasNext reports whether Search(dir) would move to a match.
func (b *Box) HasNext(dir Direction) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.search.step(dir)
	return ok
}

// Search moves the highlight one match in dir.
func (b *Box) Search(dir Direction) (Match, bool) {
	b.mu.Lock()
	next, ok := b.search.step(dir)
	if !ok {
		b.mu.Unlock()
		return Match{}, false
	}
	b.search.current = next
	m := b.search.matches[next]
	b.notifyLocked()
	return m, true
}

// Highlight returns the currently selected match.
func (b *Box) Highlight() (Match, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.search.current < 0 || b.search.current >= len(b.search.matches) {
		return Match{}, false
	}
	return b.search.matches[b.search.current], true
}

func (s *searchState) step(dir Direction) (int, bool) {
	n := len(s.matches)
	if s.text == "" || n == 0 {
		return 0, false
	}
	if s.current < 0 {
		if dir == Forward {
			return 0, true
		}
		return n - 1, true
	}
	if dir == Forward {
		if s.current+1 < n {
			return s.current + 1, true
		}
		return 0, false
	}
	if s.current-1 >= 0 {
		return s.current - 1, true
	}
	return 0, false
}

func (b *Box) refreshSearchLocked() {
	if b.search.text == "" {
		return
	}
	b.search.matches = b.findLocked(b.search.text)
	if b.search.current >= len(b.search.matches) {
		b.search.current = len(b.search.matches) - 1
	}
}

func (b *Box) findLocked(text string) []Match {
	if text == "" {
		return nil
	}

	var matches []Match
	for bi, blk := range b.blocks {
		if blk.Kind == BlockSeparator {
			continue
		}
		for li, line := range blk.Lines {
			offset := 0
			for offset < len(line) {
				start, end := indexFold(line[offset:], text)
				if start < 0 {
					break
				}
				matches = append(matches, Match{Block: bi, Line: li, Start: offset + start, End: offset + end})
				offset += end
			}
		}
	}
	return matches
}

// indexFold finds the first case-insensitive occurrence of substr in s and
// returns its byte range in s, or -1, -1.
func indexFold(s, substr string) (int, int) {
	for i := 0; i < len(s); {
		if end, ok := prefixFold(s[i:], substr); ok {
			return i, i + end
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return -1, -1
}

// prefixFold reports whether s starts with substr under simple case folding
// and returns the byte length of the matching prefix of s.
func prefixFold(s, substr string) (int, bool) {
	n := 0
	for _, want := range substr {
		if n >= len(s) {
			return 0, false
		}
		got, size := utf8.DecodeRuneInString(s[n:])
		if !equalFold(got, want) {
			return 0, false
		}
		n += size
	}
	return n, true
}

func equalFold(a, b rune) bool {
	if a == b {
		return true
	}
	for r := unicode.SimpleFold(a); r != a; r = unicode.SimpleFold(r) {
		if r == b {
			return true
		}
	}
	return false
}
