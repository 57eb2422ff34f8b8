// Package moderation masks blocklisted terms in message bodies before they
// are persisted. Marketplace chats attract off-platform bait ("pay me on
// xyz", throwaway contact handles); the blocklist is operator-configured.
package moderation

import (
	"fmt"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

var ErrEmptyBlocklist = fmt.Errorf("no blocked terms have been provided")

// Moderator matches a fixed blocklist against normalized message text with
// an Aho-Corasick automaton, so cost is linear in the message length no
// matter how large the blocklist grows.
type Moderator struct {
	matcher  *goahocorasick.Machine
	maskChar rune
}

// textMapping links the normalized search text back to rune positions in
// the original body, so masking hits the original characters including any
// separators typed between them.
type textMapping struct {
	normalized []rune
	origIdx    []int
}

// NewModerator builds the automaton from a normalized copy of the blocklist.
func NewModerator(blockedTerms []string, maskChar rune) (Moderator, error) {
	if len(blockedTerms) == 0 {
		return Moderator{}, ErrEmptyBlocklist
	}
	patterns := make([][]rune, len(blockedTerms))
	for i, term := range blockedTerms {
		patterns[i] = normalizeRunes([]rune(term))
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return Moderator{}, err
	}
	return Moderator{matcher: m, maskChar: maskChar}, nil
}

// Mask replaces every blocklisted occurrence with the mask character while
// preserving the body's length in runes outside the hit and its spacing
// around it. Obfuscation through leet speak or interleaved punctuation is
// folded away before matching.
func (m *Moderator) Mask(original string) string {
	mapping := m.normalize(original)
	if len(mapping.normalized) == 0 {
		return original
	}

	origRunes := []rune(original)
	spans := m.matcher.MultiPatternSearch(mapping.normalized, false)
	if len(spans) == 0 {
		return original
	}

	for _, span := range spans {
		normStart := span.Pos
		normEnd := normStart + len(span.Word)
		if normStart < 0 || normEnd > len(mapping.origIdx) {
			continue
		}

		origStart := mapping.origIdx[normStart]
		origEnd := mapping.origIdx[normEnd-1] + 1
		for i := origStart; i < origEnd; i++ {
			origRunes[i] = m.maskChar
		}
	}

	return string(origRunes)
}

// normalize lowercases, folds leet substitutions, and drops separator noise,
// tracking where each kept rune came from.
func (m *Moderator) normalize(input string) textMapping {
	origRunes := []rune(input)
	norm := make([]rune, 0, len(origRunes))
	origIdx := make([]int, 0, len(origRunes))

	for i, r := range origRunes {
		clean := foldRune(r)
		if isSeparator(clean) {
			continue
		}
		norm = append(norm, unicode.ToLower(clean))
		origIdx = append(origIdx, i)
	}
	return textMapping{normalized: norm, origIdx: origIdx}
}

func normalizeRunes(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		clean := foldRune(r)
		if isSeparator(clean) {
			continue
		}
		out = append(out, unicode.ToLower(clean))
	}
	return out
}

// foldRune maps common leet substitutions back onto their letters.
func foldRune(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
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

func isSeparator(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
