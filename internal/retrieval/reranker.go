package retrieval

import (
	"context"
	"sort"
	"strings"
)

// lexicalWeight blends term overlap into the similarity ordering
const lexicalWeight = 0.2

// LexicalReranker reorders candidates by blending cosine similarity with term
// overlap between the question and the document text. A cheap second pass
// that pulls documents mentioning the question's exact words above
// near-synonyms the embedding scored the same.
type LexicalReranker struct{}

func NewLexicalReranker() *LexicalReranker {
	return &LexicalReranker{}
}

func (r *LexicalReranker) Rerank(_ context.Context, question string, candidates []ScoredDocument) ([]ScoredDocument, error) {
	terms := tokenize(question)
	if len(terms) == 0 {
		return candidates, nil
	}

	type rescored struct {
		doc     ScoredDocument
		blended float64
	}

	scored := make([]rescored, len(candidates))

	for i, cand := range candidates {
		overlap := termOverlap(terms, cand.Doc.Doc.Text)
		scored[i] = rescored{
			doc:     cand,
			blended: (1-lexicalWeight)*cand.Score + lexicalWeight*overlap,
		}
	}

	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].blended > scored[b].blended
	})

	out := make([]ScoredDocument, len(scored))
	for i, s := range scored {
		out[i] = s.doc
	}

	return out, nil
}

func (r *LexicalReranker) Name() string { return "lexical" }

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r != '_'
	})

	var terms []string

	for _, f := range fields {
		if len(f) > 2 {
			terms = append(terms, f)
		}
	}

	return terms
}

func termOverlap(terms []string, text string) float64 {
	lower := strings.ToLower(text)

	var hits int

	for _, term := range terms {
		if strings.Contains(lower, term) {
			hits++
		}
	}

	return float64(hits) / float64(len(terms))
}
