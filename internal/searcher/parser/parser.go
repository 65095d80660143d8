// Package parser classifies a raw query string and normalises its terms with
// the same tokenizer the index was built with.
package parser

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Positional-Search-Engine/internal/indexer/tokenizer"
)

// OperatorAND marks a boolean query. It is matched case-sensitively as a
// whole whitespace-separated word.
const OperatorAND = "AND"

type QueryKind int

const (
	FreeText QueryKind = iota
	Boolean
)

func (k QueryKind) String() string {
	switch k {
	case Boolean:
		return "and"
	default:
		return "free_text"
	}
}

type QueryPlan struct {
	Kind     QueryKind
	Terms    []string
	RawQuery string
}

// Parse tokenizes query. A query containing the AND operator is boolean;
// the operator words are dropped and the remaining text is tokenized.
func Parse(query string, tok tokenizer.Tokenizer) *QueryPlan {
	plan := &QueryPlan{
		Kind:     FreeText,
		Terms:    make([]string, 0),
		RawQuery: query,
	}
	words := strings.Fields(query)
	if len(words) == 0 {
		return plan
	}
	kept := words[:0:0]
	for _, w := range words {
		if w == OperatorAND {
			plan.Kind = Boolean
			continue
		}
		kept = append(kept, w)
	}
	plan.Terms = append(plan.Terms, tok.Tokenize(strings.Join(kept, " "))...)
	return plan
}
