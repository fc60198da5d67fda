package retrieval

import (
	"context"
	"math"
	"sort"

	"github.com/askdb/askdb/internal/errors"
	"github.com/askdb/askdb/internal/logging"
	"github.com/askdb/askdb/internal/store"
)

// QueryPrefix is prepended to the question before embedding. Asymmetric
// embedding models score document-query pairs better with an instruction
// prefix on the query side only.
const QueryPrefix = "Represent this sentence for searching relevant database schema: "

// ScoredDocument pairs a stored document with its similarity to the question
type ScoredDocument struct {
	Doc   store.StoredDocument
	Score float64
}

// Embedder is the slice of the embedding contract retrieval needs
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelVersion() string
}

// Reranker reorders an already-scored candidate list. Optional capability
// slot; retrieval works identically without one.
type Reranker interface {
	Rerank(ctx context.Context, question string, candidates []ScoredDocument) ([]ScoredDocument, error)
	Name() string
}

// Retriever ranks the stored description corpus against a question and
// applies the selection policy.
type Retriever struct {
	store      store.Store
	embedder   Embedder
	policy     SelectionPolicy
	reranker   Reranker
	rerankTopN int
	logger     *logging.Logger
}

// NewRetriever creates a retriever. reranker may be nil.
func NewRetriever(s store.Store, e Embedder, p SelectionPolicy) *Retriever {
	return &Retriever{
		store:    s,
		embedder: e,
		policy:   p,
		logger:   logging.GetLogger(),
	}
}

// WithReranker enables reranking of the top n candidates before selection
func (r *Retriever) WithReranker(reranker Reranker, topN int) *Retriever {
	r.reranker = reranker
	r.rerankTopN = topN

	return r
}

// Retrieve embeds the question, scores every stored document, and returns the
// policy's selection in descending score order. An empty result is not an
// error; it means the corpus holds nothing relevant.
func (r *Retriever) Retrieve(ctx context.Context, question string) ([]ScoredDocument, error) {
	docs, err := r.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	if len(docs) == 0 {
		return nil, nil
	}

	if version := r.embedder.ModelVersion(); docs[0].ModelVersion != version {
		return nil, errors.Newf(errors.ErrTypeEmbeddingSpace,
			"stored embeddings were built with %s but the configured embedder is %s",
			docs[0].ModelVersion, version).
			WithSuggestion("Run 'askdb index' to rebuild the description store with the current embedder")
	}

	queryVec, err := r.embedder.Embed(ctx, QueryPrefix+question)
	if err != nil {
		return nil, err
	}

	ranked := rankDocuments(queryVec, docs)

	if r.reranker != nil {
		topN := r.rerankTopN
		if topN <= 0 || topN > len(ranked) {
			topN = len(ranked)
		}

		reranked, err := r.reranker.Rerank(ctx, question, ranked[:topN])
		if err != nil {
			r.logger.WithError(err).Warn("reranker failed, falling back to similarity order")
		} else {
			ranked = append(reranked, ranked[topN:]...)
		}
	}

	selected := r.policy.Select(ranked)

	r.logger.WithFields(map[string]interface{}{
		"policy":     r.policy.Name(),
		"candidates": len(ranked),
		"selected":   len(selected),
	}).Debug("retrieval complete")

	return selected, nil
}

// rankDocuments scores every document and sorts descending. Ties break on
// stored position so ranking is deterministic across runs.
func rankDocuments(queryVec []float32, docs []store.StoredDocument) []ScoredDocument {
	ranked := make([]ScoredDocument, 0, len(docs))

	for _, doc := range docs {
		ranked = append(ranked, ScoredDocument{
			Doc:   doc,
			Score: cosineSimilarity(queryVec, doc.Embedding),
		})
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		if ranked[a].Score != ranked[b].Score {
			return ranked[a].Score > ranked[b].Score
		}

		return ranked[a].Doc.Position < ranked[b].Doc.Position
	})

	return ranked
}

// cosineSimilarity calculates cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dotProduct, normA, normB float64

	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
