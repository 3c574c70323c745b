package buddy

import (
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/bidi"
)

const (
	// UnknownNick is shown when the sender cannot be resolved.
	UnknownNick = "???"

	// DefaultLogColor is written to the chat log when a buddy has no color.
	DefaultLogColor = "#000000,#FFFFFF"
	// PrivateChatColor is used for one-to-one peers resolved through aliases.
	PrivateChatColor = "#000000,#808080"
	// BotNick and BotColor describe the local chatbot buddy.
	BotNick  = "Chatbot"
	BotColor = "#123456,#654321"

	fallbackStroke = "#000000"
	fallbackFill   = "#888888"

	white = "#FFFFFF"
	black = "#000000"
)

// Color is an XO color pair.
type Color struct {
	Stroke string
	Fill   string
}

// ParseColor parses "#stroke,#fill". Anything else yields the fallback pair.
func ParseColor(s string) Color {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Color{Stroke: fallbackStroke, Fill: fallbackFill}
	}
	return Color{Stroke: strings.TrimSpace(parts[0]), Fill: strings.TrimSpace(parts[1])}
}

func (c Color) String() string {
	return c.Stroke + "," + c.Fill
}

// TextColor picks white or black text for readability on the fill color.
func (c Color) TextColor() string {
	r, g, b, ok := hexRGB(c.Fill)
	if !ok {
		r, g, b, _ = hexRGB(fallbackFill)
	}
	gray := (r + g + b) / 3
	if gray < 0.5 {
		return white
	}
	return black
}

func hexRGB(s string) (r, g, b float64, ok bool) {
	s = strings.TrimPrefix(s, "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return 0, 0, 0, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	r = float64((v>>16)&0xff) / 255
	g = float64((v>>8)&0xff) / 255
	b = float64(v&0xff) / 255
	return r, g, b, true
}

// xoPalette is a subset of the Sugar XO color pairs.
var xoPalette = []string{
	"#B20008,#FF2B34", "#FF2B34,#B20008", "#E6000A,#FF8F00", "#FF8F00,#E6000A",
	"#807500,#FFFA00", "#FFFA00,#807500", "#008009,#00EA11", "#00EA11,#008009",
	"#00588C,#00A0FF", "#00A0FF,#00588C", "#5E008C,#AC32FF", "#AC32FF,#5E008C",
	"#9A5200,#FF8F00", "#F8E800,#5E008C", "#A700FF,#00EA11", "#D1A3FF,#008009",
}

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6},#[0-9A-Fa-f]{6}$`)

// ValidColor reports whether s is a "#rrggbb,#rrggbb" pair.
func ValidColor(s string) bool {
	return colorPattern.MatchString(s)
}

// RandomColor picks an XO color pair for a new buddy.
func RandomColor() string {
	return xoPalette[rand.IntN(len(xoPalette))]
}

// Buddy is a chat participant as seen by the activity.
type Buddy struct {
	Nick   string
	Color  string
	Handle uint32
}

// New builds a buddy without a presence handle (log replay, bots, aliases).
func New(nick, color string) *Buddy {
	return &Buddy{Nick: nick, Color: color}
}

// Bot returns the local chatbot buddy.
func Bot() *Buddy {
	return New(BotNick, BotColor)
}

// XOColor returns the parsed color pair.
func (b *Buddy) XOColor() Color {
	return ParseColor(b.Color)
}

// Same reports whether two buddies should be treated as one sender.
func Same(a, b *Buddy) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a == b {
		return true
	}
	return a.Nick == b.Nick && a.Color == b.Color
}

// IsRTL reports whether text starts with a right-to-left strong character.
func IsRTL(text string) bool {
	for _, r := range text {
		props, _ := bidi.LookupRune(r)
		switch props.Class() {
		case bidi.R, bidi.AL:
			return true
		case bidi.L:
			return false
		}
	}
	return false
}
