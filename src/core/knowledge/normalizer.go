package knowledge

import (
	"strings"
)

// Boilerplate lines stripped from page text before chunking. The source
// documents are Russian market reviews that repeat these portal plugs on
// most pages.
var defaultBoilerplate = []string{
	"полная версия обзора доступна на нашем портале",
	"подробнее см. в нашем обзоре на портале",
	"полная версия обзора доступна на английском языке",
}

// punctCutset mirrors the ASCII punctuation set trimmed from the edges of a
// normalized page.
const punctCutset = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// Normalizer prepares raw page text for chunking and indexing. It is
// deterministic and has no failure mode: empty input yields empty output.
type Normalizer struct {
	boilerplate []string
}

// NormalizerOption configures a Normalizer.
type NormalizerOption func(*Normalizer)

// WithBoilerplate replaces the default boilerplate phrase list.
func WithBoilerplate(phrases []string) NormalizerOption {
	return func(n *Normalizer) {
		n.boilerplate = phrases
	}
}

// NewNormalizer creates a Normalizer with the default boilerplate list.
func NewNormalizer(opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		boilerplate: defaultBoilerplate,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize strips boilerplate phrases and quotes, collapses whitespace,
// replaces dashes and angle brackets with spaces, trims edge punctuation,
// and lower-cases the result.
func (n *Normalizer) Normalize(text string) string {
	s := strings.ReplaceAll(text, `"`, "")
	for _, phrase := range n.boilerplate {
		s = strings.ReplaceAll(s, phrase, "")
	}

	replacer := strings.NewReplacer(
		"\n", " ",
		"-", " ",
		">", " ",
	)
	s = replacer.Replace(s)

	// Collapse runs of spaces left behind by the replacements.
	s = strings.Join(strings.Fields(s), " ")

	s = strings.Trim(s, punctCutset)
	s = strings.TrimSpace(s)
	return strings.ToLower(s)
}
