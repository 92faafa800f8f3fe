// Package moderation censors relayed chat on the host before rebroadcast,
// so every peer renders the same sanitized text. Matching runs over a
// normalized rune stream (lowercased, leet speak folded, punctuation and
// spacing stripped) while replacement happens on the original runes.
package moderation

import (
	"bufio"
	"bytes"
	"embed"
	"io/fs"
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
	goahocorasick "github.com/anknown/ahocorasick"
)

//go:embed censored/*
var censoredFS embed.FS

type Moderator struct {
	matcher     *goahocorasick.Machine
	replacement rune
	languages   []string
}

// NewModerator builds the Aho-Corasick automaton from the embedded word
// lists (one .txt file per language under censored/).
func NewModerator(replacement rune) (*Moderator, error) {
	words, languages, err := loadWordLists("censored")
	if err != nil {
		return nil, err
	}
	return newModeratorFromWords(words, languages, replacement)
}

// NewModeratorFromWords builds a moderator from an explicit word list.
// Used by tests and by deployments shipping their own lists.
func NewModeratorFromWords(words []string, replacement rune) (*Moderator, error) {
	return newModeratorFromWords(words, nil, replacement)
}

func newModeratorFromWords(words, languages []string, replacement rune) (*Moderator, error) {
	patterns := make([][]rune, 0, len(words))
	for _, w := range words {
		if norm := normalize([]rune(w)); len(norm.runes) > 0 {
			patterns = append(patterns, norm.runes)
		}
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Moderator{matcher: m, replacement: replacement, languages: languages}, nil
}

// Languages reports which embedded word lists were loaded, for logging.
func (m *Moderator) Languages() []string {
	return m.languages
}

// Censor replaces every character of a matched pattern in the original
// text with the replacement rune, preserving spacing and untouched runes.
func (m *Moderator) Censor(original string) string {
	origRunes := []rune(original)
	norm := normalize(origRunes)
	if len(norm.runes) == 0 {
		return original
	}

	spans := m.matcher.MultiPatternSearch(norm.runes, false)
	if len(spans) == 0 {
		return original
	}

	for _, span := range spans {
		start := span.Pos
		end := start + len(span.Word)
		if start < 0 || end > len(norm.origIdx) {
			continue
		}
		for i := norm.origIdx[start]; i <= norm.origIdx[end-1]; i++ {
			origRunes[i] = m.replacement
		}
	}
	return string(origRunes)
}

// DetectLanguage returns a best-effort ISO language name for a chat line,
// or "" when detection is unreliable. Display-only metadata.
func DetectLanguage(text string) string {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}

// normalized keeps the searchable runes plus, for each, the index of the
// rune in the original text it came from.
type normalized struct {
	runes   []rune
	origIdx []int
}

func normalize(input []rune) normalized {
	var n normalized
	for i, r := range input {
		clean := foldLeet(r)
		if unicode.IsPunct(clean) || unicode.IsSpace(clean) || unicode.IsSymbol(clean) {
			continue
		}
		n.runes = append(n.runes, unicode.ToLower(clean))
		n.origIdx = append(n.origIdx, i)
	}
	return n
}

// foldLeet maps common leet speak characters back to their alphabet
// counterparts so "h3llo" matches "hello".
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

// loadWordLists reads every .txt file in the embedded directory; the file
// name (minus extension) is the language tag.
func loadWordLists(dir string) ([]string, []string, error) {
	entries, err := fs.ReadDir(censoredFS, dir)
	if err != nil {
		return nil, nil, err
	}

	var languages []string
	unique := make(map[string]struct{})
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		languages = append(languages, strings.TrimSuffix(entry.Name(), ".txt"))

		data, err := censoredFS.ReadFile(dir + "/" + entry.Name())
		if err != nil {
			return nil, nil, err
		}
		// Scanner handles \n and \r\n endings alike.
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				unique[line] = struct{}{}
			}
		}
	}

	words := make([]string, 0, len(unique))
	for w := range unique {
		words = append(words, w)
	}
	return words, languages, nil
}
