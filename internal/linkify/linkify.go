// Package linkify finds URLs in chat text.
package linkify

import (
	"regexp"
	"strings"
)

var urlRegexp = regexp.MustCompile(`((http|ftp)s?://)?` +
	`(([-a-zA-Z0-9]+[.])+[-a-zA-Z0-9]{2,}|([0-9]{1,3}[.]){3}[0-9]{1,3})` +
	`(:[1-9][0-9]{0,4})?(/[-a-zA-Z0-9/%~@&_+=;:,.?#]*[a-zA-Z0-9/])?`)

var protocols = []string{"http://", "https://", "ftp://", "ftps://"}

// Token is a whitespace-separated word of a message.
type Token struct {
	Text string
	URL  bool
}

// IsURL reports whether word begins with something that looks like a URL.
func IsURL(word string) bool {
	loc := urlRegexp.FindStringIndex(word)
	return loc != nil && loc[0] == 0
}

// Tokenize splits text on whitespace and flags the words that are URLs.
func Tokenize(text string) []Token {
	words := strings.Fields(text)
	tokens := make([]Token, 0, len(words))
	for _, w := range words {
		tokens = append(tokens, Token{Text: w, URL: IsURL(w)})
	}
	return tokens
}

// URLs returns the URL words of text in order.
func URLs(text string) []string {
	var out []string
	for _, tok := range Tokenize(text) {
		if tok.URL {
			out = append(out, tok.Text)
		}
	}
	return out
}

// CheckProtocol prefixes url with http:// unless it already names a protocol.
func CheckProtocol(url string) string {
	for _, p := range protocols {
		if strings.HasPrefix(url, p) {
			return url
		}
	}
	return "http://" + url
}
