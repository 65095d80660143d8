// Package tokenizer turns raw document or query text into index terms.
// The default analyzer lower-cases input, splits on punctuation and
// whitespace, applies the Snowball English stemmer to tokens without digits
// and drops stop-words.
package tokenizer

import (
	"strings"

	"github.com/kljensen/snowball/english"
)

// Delimiters separate tokens. '|' is always a delimiter because it
// terminates terms in the lexicon file.
const Delimiters = " .!?-',\t\r\n;()[]{}:\"/|"

// DefaultStopWords are removed after stemming.
var DefaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "by", "for",
	"from", "has", "he", "in", "is", "it", "its", "of", "on", "that", "the", "to", "was",
	"were", "will", "with",
}

// Tokenizer is a pure function from text to an ordered sequence of terms.
type Tokenizer interface {
	Tokenize(text string) []string
}

// Analyzer is the stemming, stop-word aware Tokenizer used for both indexing
// and queries. It is safe for concurrent use.
type Analyzer struct {
	stopWords map[string]struct{}
	stem      bool
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithStopWords replaces the stop list. A nil or empty list disables
// stop-word removal.
func WithStopWords(words []string) Option {
	return func(a *Analyzer) {
		a.stopWords = make(map[string]struct{}, len(words))
		for _, w := range words {
			a.stopWords[w] = struct{}{}
		}
	}
}

// WithoutStemming keeps tokens in their lower-cased surface form.
func WithoutStemming() Option {
	return func(a *Analyzer) {
		a.stem = false
	}
}

// New returns an Analyzer using DefaultStopWords and stemming unless
// overridden.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{stem: true}
	WithStopWords(DefaultStopWords)(a)
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Tokenize splits text on Delimiters and normalises every token.
func (a *Analyzer) Tokenize(text string) []string {
	fields := strings.FieldsFunc(text, isDelimiter)
	terms := make([]string, 0, len(fields))
	for _, field := range fields {
		term := strings.ToLower(field)
		if a.stem && !hasDigit(term) {
			term = english.Stem(term, true)
		}
		if term == "" {
			continue
		}
		if _, stop := a.stopWords[term]; stop {
			continue
		}
		terms = append(terms, term)
	}
	return terms
}

// Simple only splits and lower-cases.
type Simple struct{}

func (Simple) Tokenize(text string) []string {
	fields := strings.FieldsFunc(text, isDelimiter)
	for i, f := range fields {
		fields[i] = strings.ToLower(f)
	}
	return fields
}

func isDelimiter(r rune) bool {
	return strings.ContainsRune(Delimiters, r)
}

func hasDigit(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			return true
		}
	}
	return false
}
