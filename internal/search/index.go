// Package search provides a small, deterministic, in-memory index over
// Markdown paragraphs. The bot uses it to answer "/help <question>" from its
// embedded FAQ, and as the fallback for /ask when the assistant is off.
//
// Scoring is Jaccard similarity between the query token set and each
// paragraph's token set: score = |Q ∩ P| / |Q ∪ P|. Tokens are Unicode
// case-folded. The index is immutable after construction and safe for
// concurrent use.
package search

import (
	"io"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// Result is a ranked snippet with its similarity score.
type Result struct {
	Snippet string
	Score   float64
}

// Index is implemented by all search indices.
type Index interface {
	TopK(query string, k int) []Result
	Len() int
}

// Option configures index construction.
type Option func(*config)

type config struct {
	minParagraphRunes int
	stopwords         map[string]struct{}
}

// WithMinParagraphRunes drops paragraphs shorter than n runes.
func WithMinParagraphRunes(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.minParagraphRunes = n
		}
	}
}

// WithStopwords ignores the given words on both sides of the comparison.
func WithStopwords(words ...string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			if w = fold.String(strings.TrimSpace(w)); w != "" {
				m[w] = struct{}{}
			}
		}
		c.stopwords = m
	}
}

type doc struct {
	text   string
	tokens map[string]struct{}
}

type index struct {
	cfg  config
	docs []doc
}

// NewIndexFromReader builds an Index from Markdown read from r. Paragraphs
// are split on blank lines and table rows become one paragraph each.
func NewIndexFromReader(r io.Reader, opts ...Option) (Index, error) {
	all, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return NewIndexFromStrings(splitParagraphs(FlattenTables(string(all))), opts...), nil
}

// NewIndexFromStrings builds an Index directly from paragraphs.
func NewIndexFromStrings(paragraphs []string, opts ...Option) Index {
	cfg := config{minParagraphRunes: 20}
	for _, o := range opts {
		o(&cfg)
	}
	docs := make([]doc, 0, len(paragraphs))
	for _, raw := range paragraphs {
		t := strings.TrimSpace(spaceRE.ReplaceAllString(raw, " "))
		if t == "" || utf8.RuneCountInString(t) < cfg.minParagraphRunes {
			continue
		}
		if toks := tokenize(t, cfg.stopwords); len(toks) > 0 {
			docs = append(docs, doc{text: t, tokens: toks})
		}
	}
	return &index{cfg: cfg, docs: docs}
}

func (i *index) Len() int { return len(i.docs) }

// TopK returns up to k best-matching paragraphs. Ties prefer the shorter
// snippet, then lexical order. k <= 0 means 3.
func (i *index) TopK(q string, k int) []Result {
	if len(i.docs) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	if k <= 0 {
		k = 3
	}
	qt := tokenize(q, i.cfg.stopwords)
	if len(qt) == 0 {
		return nil
	}

	var out []Result
	for _, d := range i.docs {
		over := overlap(qt, d.tokens)
		if over == 0 {
			continue
		}
		union := len(qt) + len(d.tokens) - over
		out = append(out, Result{Snippet: d.text, Score: float64(over) / float64(union)})
	}

	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}
		la, lb := utf8.RuneCountInString(out[a].Snippet), utf8.RuneCountInString(out[b].Snippet)
		if la != lb {
			return la < lb
		}
		return out[a].Snippet < out[b].Snippet
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

var (
	fold = cases.Fold()

	wordRE  = regexp.MustCompile(`[\p{L}\p{N}]+`)
	spaceRE = regexp.MustCompile(`[ \t\r]+`)
	paraRE  = regexp.MustCompile(`\n\s*\n`)
)

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	words := wordRE.FindAllString(fold.String(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, skip := stop[w]; skip {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

func splitParagraphs(s string) []string {
	chunks := paraRE.Split(s, -1)
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if t := strings.TrimSpace(c); t != "" {
			out = append(out, t)
		}
	}
	return out
}
