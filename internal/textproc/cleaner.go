// Package textproc normalizes raw news text before chunking and embedding.
//
// Channel messages arrive with Markdown markup, emoji, irregular whitespace
// and inconsistent punctuation. The cleaner strips all of that without
// altering word content, so that chunk boundaries are computed on clean text
// and embeddings are not polluted by formatting noise.
package textproc

import (
	"regexp"
	"strings"
)

// Cleaner normalizes raw article text.
type Cleaner interface {
	// Clean returns the normalized form of text. Deterministic, no I/O.
	// Empty or whitespace-only input yields an empty string.
	Clean(text string) string
}

// Markdown patterns, applied in order so nested formatting unwraps correctly.
var (
	boldPattern       = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicPattern     = regexp.MustCompile(`\*([^*]+)\*`)
	underscorePattern = regexp.MustCompile(`_([^_]+)_`)
	linkPattern       = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	headerPattern     = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	codeBlockPattern  = regexp.MustCompile(`(?s)` + "```.*?```")
	inlineCodePattern = regexp.MustCompile("`([^`]+)`")
	blockquotePattern = regexp.MustCompile(`(?m)^>\s*`)

	whitespacePattern = regexp.MustCompile(`[ \t\r\f]+`)
	blankLinePattern  = regexp.MustCompile(`\n{3,}`)
	spacedLinePattern = regexp.MustCompile(` ?\n ?`)

	// Emoji and pictograph blocks. Flag sequences, transport symbols and
	// supplemental pictographs all land in these ranges.
	emojiPattern = regexp.MustCompile(`[\x{1F600}-\x{1F64F}` +
		`\x{1F300}-\x{1F5FF}` +
		`\x{1F680}-\x{1F6FF}` +
		`\x{1F1E0}-\x{1F1FF}` +
		`\x{1F900}-\x{1F9FF}` +
		`\x{2600}-\x{27BF}` +
		`\x{2190}-\x{21FF}` +
		`\x{2B00}-\x{2BFF}]+`)

	repeatedDotPattern  = regexp.MustCompile(`\.{2,}`)
	repeatedBangPattern = regexp.MustCompile(`!{2,}`)
	repeatedQPattern    = regexp.MustCompile(`\?{2,}`)
)

// punctuation replacements for typographic variants.
var standardizer = strings.NewReplacer(
	"–", "-",
	"—", "-",
	"“", `"`,
	"”", `"`,
	"‘", "'",
	"’", "'",
)

// NewsCleaner is the default cleaner for channel-sourced news text.
//
// The zero value is ready to use. Processing order matters: markup is
// stripped first so emoji and whitespace passes see plain text, and
// whitespace is collapsed last so earlier removals leave no double spaces.
type NewsCleaner struct {
	// Lowercase converts the cleaned text to lower case. The embedding
	// models used downstream are case-insensitive enough that this reduces
	// token diversity without losing meaning.
	Lowercase bool
}

// NewNewsCleaner returns a cleaner with lowercasing enabled, matching the
// normalization applied to the existing collections.
func NewNewsCleaner() *NewsCleaner {
	return &NewsCleaner{Lowercase: true}
}

// Clean normalizes raw news text.
func (c *NewsCleaner) Clean(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	text = stripMarkdown(text)
	text = emojiPattern.ReplaceAllString(text, "")
	text = standardizer.Replace(text)

	text = repeatedDotPattern.ReplaceAllString(text, ".")
	text = repeatedBangPattern.ReplaceAllString(text, "!")
	text = repeatedQPattern.ReplaceAllString(text, "?")

	if c.Lowercase {
		text = strings.ToLower(text)
	}

	return normalizeWhitespace(text)
}

func stripMarkdown(text string) string {
	text = codeBlockPattern.ReplaceAllString(text, "")
	text = boldPattern.ReplaceAllString(text, "$1")
	text = italicPattern.ReplaceAllString(text, "$1")
	text = underscorePattern.ReplaceAllString(text, "$1")
	text = linkPattern.ReplaceAllString(text, "$1")
	text = headerPattern.ReplaceAllString(text, "")
	text = inlineCodePattern.ReplaceAllString(text, "$1")
	text = blockquotePattern.ReplaceAllString(text, "")
	return text
}

// normalizeWhitespace collapses runs of spaces and tabs while keeping
// newlines, since paragraph breaks are the chunker's preferred split points.
// Runs of three or more newlines collapse to a paragraph break.
func normalizeWhitespace(text string) string {
	text = whitespacePattern.ReplaceAllString(text, " ")
	text = spacedLinePattern.ReplaceAllString(text, "\n")
	text = blankLinePattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

var _ Cleaner = (*NewsCleaner)(nil)
