package pipeline

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/neurosnap/sentences/english"
)

var htmlTagRE = regexp.MustCompile(`<[^>]*>`)

// cleanText strips markdown and markup that reads badly when spoken.
func cleanText(text string) string {
	for _, mark := range []string{"*", "#", "_", "~", "`", "[", "]"} {
		text = strings.ReplaceAll(text, mark, "")
	}
	text = htmlTagRE.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// SpeakableText prepares reply text for the GET /speak/{text} path: strip
// markup, then cut at a sentence boundary so the URL-encoded result stays
// within budget. Long replies get their leading sentences spoken; the full
// text is still shown and captioned.
func SpeakableText(text string, budget int) string {
	text = cleanText(text)
	if len(url.PathEscape(text)) <= budget {
		return text
	}
	tokenizer, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		return truncateEscaped(text, budget)
	}
	var b strings.Builder
	for _, sentence := range tokenizer.Tokenize(text) {
		candidate := strings.TrimSpace(b.String() + " " + sentence.Text)
		if b.Len() > 0 && len(url.PathEscape(candidate)) > budget {
			break
		}
		b.Reset()
		b.WriteString(candidate)
	}
	out := strings.TrimSpace(b.String())
	if len(url.PathEscape(out)) > budget {
		return truncateEscaped(out, budget)
	}
	return out
}

// truncateEscaped cuts on rune boundaries until the escaped form fits.
func truncateEscaped(text string, budget int) string {
	runes := []rune(text)
	for len(runes) > 0 && len(url.PathEscape(string(runes))) > budget {
		runes = runes[:len(runes)-1]
	}
	return strings.TrimSpace(string(runes))
}
