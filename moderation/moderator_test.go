package moderation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const replacementChar = '*'

// TestModerator_Censor
// The dictionary uses specific words to avoid partial collisions (e.g., "he" inside "The")
func TestModerator_Censor(t *testing.T) {
	req := require.New(t)
	dictionary := []string{"badger", "snake", "mushroom"}
	mod, err := NewModeratorFromWords(dictionary, replacementChar)
	req.NoError(err)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Simple word and space preservation",
			input:    "The badger is here",
			expected: "The ****** is here",
		},
		{
			name:     "Multiple occurrences and preserved spacing",
			input:    "badger badger badger",
			expected: "****** ****** ******",
		},
		{
			name:     "Leet speak folding",
			input:    "such a b4dg3r move",
			expected: "such a ****** move",
		},
		{
			name:     "Uppercase and internal punctuation",
			input:    "S-N-A-K-E is a B.A.D.G.E.R",
			expected: "********* is a ***********",
		},
		{
			name:     "Accents around the match (UTF-8)",
			input:    "Un été avec un badger",
			expected: "Un été avec un ******",
		},
		{
			name:     "Word adjacent to trailing punctuation",
			input:    "I love badger.",
			expected: "I love ******.",
		},
		{
			name:     "Nothing to censor",
			input:    "Lobby-Lab is amazing",
			expected: "Lobby-Lab is amazing",
		},
		{
			name:     "Empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req.Equal(tt.expected, mod.Censor(tt.input), "test=%s,", tt.name)
		})
	}
}

func TestModerator_CornerCases(t *testing.T) {
	req := require.New(t)

	// Given noise-only entries that normalize to nothing
	dictionary := []string{"...", ",,,", "", "badger"}

	mod, err := NewModeratorFromWords(dictionary, replacementChar)
	req.NoError(err)

	// Then the real word is still censored
	req.Equal("The ****** is safe", mod.Censor("The badger is safe"))

	// Then noise alone passes through untouched
	req.Equal("Hello ...", mod.Censor("Hello ..."))
}

func TestModerator_Embedded_Word_Lists(t *testing.T) {
	req := require.New(t)

	// When building from the embedded lists
	mod, err := NewModerator(replacementChar)
	req.NoError(err)

	// Then both shipped languages are loaded
	req.ElementsMatch([]string{"en", "fr"}, mod.Languages())
}

func TestDetectLanguage_Unreliable_Input(t *testing.T) {
	req := require.New(t)

	// Too short for a confident call
	req.Empty(DetectLanguage("ok"))
	req.Empty(DetectLanguage(""))
}
