package search

import (
	_ "embed"
	"io"
	"strings"
	"sync"
)

//go:embed help.md
var helpMarkdown string

var helpStopwords = []string{"a", "an", "the", "to", "is", "it", "i", "do", "how", "my", "of", "you", "can", "what"}

var (
	helpOnce  sync.Once
	helpIndex Index
)

// HelpIndex returns the shared index over the bot's built-in FAQ.
func HelpIndex() Index {
	helpOnce.Do(func() {
		helpIndex, _ = LoadHelp(strings.NewReader(helpMarkdown))
	})
	return helpIndex
}

// LoadHelp indexes a help FAQ in the same Markdown layout as the built-in one.
func LoadHelp(r io.Reader) (Index, error) {
	return NewIndexFromReader(r, WithStopwords(helpStopwords...))
}
