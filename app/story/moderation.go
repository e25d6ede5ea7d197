package story

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const MaxWords = 50

type Rule string

const (
	RuleEmpty   Rule = "empty"
	RuleTooLong Rule = "too_long"
	RuleLink    Rule = "link"
	RuleMarkup  Rule = "markup"
)

// Rejection explains why the Filter refused a text.
type Rejection struct {
	Rule   Rule
	Reason string
}

func (r *Rejection) Error() string {
	return r.Reason
}

var (
	linkPattern = regexp.MustCompile(`(?i)(https?|ftp)(://|\b)|www|` +
		`[a-z0-9-]\.[a-z]{2,}/|` +
		`\.(it|com|net|org|eu|io|info|de|fr|es|uk|ch|at|be|nl|ru|us|ly|me|co|cc|tv|gg|gl|to|xyz|app|dev|biz|link|site|online)\b`)
	markupPattern = regexp.MustCompile(`<[^>]*>?`)
)

// Filter holds the structural rules a contribution must satisfy. It is pure:
// the same text always gets the same verdict.
type Filter struct {
	maxWords int
	fold     cases.Caser
}

func NewFilter() *Filter {
	return &Filter{
		maxWords: MaxWords,
		fold:     cases.Fold(),
	}
}

// Validate returns nil when text is acceptable, a *Rejection otherwise.
// Link and markup checks come first so they apply at any length.
func (f *Filter) Validate(text string) error {
	trimmed := strings.TrimSpace(text)
	normalized := f.fold.String(norm.NFKC.String(trimmed))

	if linkPattern.MatchString(normalized) {
		return &Rejection{Rule: RuleLink, Reason: "Non è consentito inserire link."}
	}
	if markupPattern.MatchString(normalized) {
		return &Rejection{Rule: RuleMarkup, Reason: "Caratteri non consentiti rilevati."}
	}

	words := CountWords(trimmed)
	if words == 0 {
		return &Rejection{Rule: RuleEmpty, Reason: "Il testo è vuoto."}
	}
	if words > f.maxWords {
		return &Rejection{Rule: RuleTooLong, Reason: fmt.Sprintf("Limite di %d parole superato.", f.maxWords)}
	}

	return nil
}

func CountWords(text string) int {
	return len(strings.Fields(text))
}
