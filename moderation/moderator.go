// Package moderation masks forbidden words in message bodies before fan-out.
// Matching runs over a normalized view of the text (lowercased, leet speak
// folded, punctuation stripped) so trivial obfuscations still match, while
// replacement happens on the original runes to preserve spacing.
package moderation

import (
	"bufio"
	"bytes"
	_ "embed"
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

//go:embed censored.txt
var defaultWordList []byte

type Moderator struct {
	matcher     *goahocorasick.Machine
	replacement rune
}

// NewModerator builds the aho-corasick automaton over the normalized word
// list. Extra words are merged with the embedded default list.
func NewModerator(replacement rune, extraWords ...string) (*Moderator, error) {
	words := append(loadDefaultWords(), extraWords...)
	patterns := make([][]rune, 0, len(words))
	for _, word := range words {
		if normalized, _ := normalize(word); len(normalized) > 0 {
			patterns = append(patterns, normalized)
		}
	}

	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return nil, err
	}
	return &Moderator{matcher: machine, replacement: replacement}, nil
}

// Censor replaces every match with the replacement rune. The input comes
// back untouched when nothing matches.
func (m *Moderator) Censor(original string) string {
	normalized, origIdx := normalize(original)
	if len(normalized) == 0 {
		return original
	}

	spans := m.matcher.MultiPatternSearch(normalized, false)
	if len(spans) == 0 {
		return original
	}

	runes := []rune(original)
	for _, span := range spans {
		start := span.Pos
		end := start + len(span.Word)
		if start < 0 || end > len(origIdx) {
			continue
		}
		for i := origIdx[start]; i <= origIdx[end-1]; i++ {
			runes[i] = m.replacement
		}
	}
	return string(runes)
}

// normalize lowers, folds leet speak and drops noise runes, keeping a map
// from normalized positions back to original rune positions.
func normalize(input string) ([]rune, []int) {
	runes := []rune(input)
	normalized := make([]rune, 0, len(runes))
	origIdx := make([]int, 0, len(runes))
	for i, r := range runes {
		folded := foldLeet(r)
		if unicode.IsPunct(folded) || unicode.IsSpace(folded) || unicode.IsSymbol(folded) {
			continue
		}
		normalized = append(normalized, unicode.ToLower(folded))
		origIdx = append(origIdx, i)
	}
	return normalized, origIdx
}

func foldLeet(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}

func loadDefaultWords() []string {
	var words []string
	scanner := bufio.NewScanner(bytes.NewReader(defaultWordList))
	for scanner.Scan() {
		word := strings.TrimSpace(scanner.Text())
		if word == "" || strings.HasPrefix(word, "#") {
			continue
		}
		words = append(words, word)
	}
	return words
}
