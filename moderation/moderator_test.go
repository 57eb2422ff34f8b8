package moderation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const maskChar = '*'

func TestModerator_Mask(t *testing.T) {
	req := require.New(t)
	blocklist := []string{"paypal", "telegram", "whatsapp"}
	mod, err := NewModerator(blocklist, maskChar)
	req.NoError(err)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "should mask a plain occurrence",
			input:    "Send it via paypal please",
			expected: "Send it via ****** please",
		},
		{
			name:     "should mask every occurrence",
			input:    "telegram or whatsapp works",
			expected: "******** or ******** works",
		},
		{
			name:     "should fold leet speak before matching",
			input:    "reach me on t3l3gr4m ok",
			expected: "reach me on ******** ok",
		},
		{
			name:     "should mask through interleaved punctuation",
			input:    "try p.a.y.p.a.l today",
			expected: "try *********** today",
		},
		{
			name:     "should ignore case",
			input:    "PayPal only",
			expected: "****** only",
		},
		{
			name:     "should leave clean text untouched",
			input:    "Is this still available?",
			expected: "Is this still available?",
		},
		{
			name:     "should handle the empty body",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, mod.Mask(tt.input))
		})
	}
}

func TestModerator_Empty_Blocklist(t *testing.T) {
	req := require.New(t)
	_, err := NewModerator(nil, maskChar)
	// The automaton needs at least one pattern; an empty blocklist is a
	// configuration error, not a silent no-op.
	req.Error(err)
}
