package notify

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/lysyi3m/scripta/app/story"
)

const maxExcerptRunes = 280

func title(d story.Digest) string {
	return fmt.Sprintf("La storia di ieri: %s", d.Title)
}

func storyURL(baseURL, date string) string {
	if baseURL == "" {
		return ""
	}
	return strings.TrimRight(baseURL, "/") + "/stories/" + date
}

// excerpt shortens text to at most n runes, cutting at a word boundary.
func excerpt(text string, n int) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	cut := string(runes[:n])
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return cut + "…"
}
