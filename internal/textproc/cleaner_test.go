package textproc_test

import (
	"testing"

	"github.com/ImranRahimov1995/SearchNewsRAG/internal/textproc"
	"github.com/stretchr/testify/assert"
)

func TestNewsCleaner_Markdown(t *testing.T) {
	c := textproc.NewNewsCleaner()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bold", "**Breaking** news", "breaking news"},
		{"italic", "*important* update", "important update"},
		{"underscore", "_quiet_ day", "quiet day"},
		{"link", "see [the report](https://example.com/r) today", "see the report today"},
		{"header", "# Headline\nBody text", "headline\nbody text"},
		{"inline code", "run `uname -a` now", "run uname -a now"},
		{"blockquote", "> quoted line", "quoted line"},
		{"code block removed", "before ```secret block``` after", "before after"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Clean(tt.input))
		})
	}
}

func TestNewsCleaner_Whitespace(t *testing.T) {
	c := textproc.NewNewsCleaner()

	assert.Equal(t, "one two", c.Clean("one    two"))
	assert.Equal(t, "a\nb", c.Clean("a \n b"))
	// Paragraph breaks survive for the chunker, longer runs collapse.
	assert.Equal(t, "p1\n\np2", c.Clean("p1\n\n\n\n\np2"))
	assert.Equal(t, "trimmed", c.Clean("   trimmed \t "))
}

func TestNewsCleaner_Emoji(t *testing.T) {
	c := textproc.NewNewsCleaner()

	assert.Equal(t, "fire in the district", c.Clean("🔥🔥 Fire in the district 🚒"))
	assert.Equal(t, "flags", c.Clean("Flags 🇦🇿🇹🇷"))
}

func TestNewsCleaner_Punctuation(t *testing.T) {
	c := textproc.NewNewsCleaner()

	assert.Equal(t, "wait. what?", c.Clean("Wait... What???"))
	assert.Equal(t, `he said "go" - now`, c.Clean("He said “go” — now"))
}

func TestNewsCleaner_EmptyInput(t *testing.T) {
	c := textproc.NewNewsCleaner()

	assert.Equal(t, "", c.Clean(""))
	assert.Equal(t, "", c.Clean("   \n\t  "))
}

func TestNewsCleaner_NoLowercase(t *testing.T) {
	c := &textproc.NewsCleaner{Lowercase: false}

	assert.Equal(t, "Breaking News", c.Clean("**Breaking News**"))
}

func TestNewsCleaner_Deterministic(t *testing.T) {
	c := textproc.NewNewsCleaner()
	in := "# Title\n\n**Bold** _text_ 😀 with [link](http://x) and    spaces..."

	first := c.Clean(in)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, c.Clean(in))
	}
}
