package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdb/askdb/internal/errors"
	"github.com/askdb/askdb/internal/schema"
	"github.com/askdb/askdb/internal/store"
)

type fakeStore struct {
	docs []store.StoredDocument
	err  error
}

func (f *fakeStore) GetAll(_ context.Context) ([]store.StoredDocument, error) {
	return f.docs, f.err
}

func (f *fakeStore) ReplaceAll(_ context.Context, _ []store.StoredDocument) error { return nil }
func (f *fakeStore) Stats(_ context.Context) (*store.Stats, error)                { return nil, nil }
func (f *fakeStore) Close() error                                                 { return nil }

type fakeEmbedder struct {
	vec     []float32
	version string
	gotText string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.gotText = text
	return f.vec, nil
}

func (f *fakeEmbedder) ModelVersion() string { return f.version }

func storedDoc(id string, position int, embedding []float32) store.StoredDocument {
	return store.StoredDocument{
		Doc:          schema.Document{ID: id, Type: schema.DocTypeColumn, Text: "Column: " + id},
		Embedding:    embedding,
		ModelVersion: "ollama/all-minilm",
		Position:     position,
	}
}

func newTestRetriever(docs []store.StoredDocument, queryVec []float32) (*Retriever, *fakeEmbedder) {
	embedder := &fakeEmbedder{vec: queryVec, version: "ollama/all-minilm"}
	policy := &TopKThresholdPolicy{TopK: 10, Threshold: 0.0}

	return NewRetriever(&fakeStore{docs: docs}, embedder, policy), embedder
}

func TestRetrieveOrdersByScoreDescending(t *testing.T) {
	docs := []store.StoredDocument{
		storedDoc("column:t.far", 0, []float32{0, 1, 0}),
		storedDoc("column:t.near", 1, []float32{1, 0, 0}),
		storedDoc("column:t.mid", 2, []float32{1, 1, 0}),
	}

	r, _ := newTestRetriever(docs, []float32{1, 0, 0})

	selected, err := r.Retrieve(context.Background(), "which rows")
	require.NoError(t, err)
	require.Len(t, selected, 3)

	assert.Equal(t, "column:t.near", selected[0].Doc.Doc.ID)
	assert.Equal(t, "column:t.mid", selected[1].Doc.Doc.ID)
	assert.Equal(t, "column:t.far", selected[2].Doc.Doc.ID)
	assert.GreaterOrEqual(t, selected[0].Score, selected[1].Score)
}

func TestRetrieveTieBreaksOnPosition(t *testing.T) {
	docs := []store.StoredDocument{
		storedDoc("column:t.second", 5, []float32{1, 0, 0}),
		storedDoc("column:t.first", 1, []float32{1, 0, 0}),
	}

	r, _ := newTestRetriever(docs, []float32{1, 0, 0})

	selected, err := r.Retrieve(context.Background(), "tied")
	require.NoError(t, err)
	require.Len(t, selected, 2)
	assert.Equal(t, "column:t.first", selected[0].Doc.Doc.ID)
}

func TestRetrieveAppliesQueryPrefix(t *testing.T) {
	r, embedder := newTestRetriever([]store.StoredDocument{
		storedDoc("table:t", 0, []float32{1, 0, 0}),
	}, []float32{1, 0, 0})

	_, err := r.Retrieve(context.Background(), "total sales by artist")
	require.NoError(t, err)
	assert.Equal(t, QueryPrefix+"total sales by artist", embedder.gotText)
}

func TestRetrieveEmptyStore(t *testing.T) {
	r, _ := newTestRetriever(nil, []float32{1, 0, 0})

	selected, err := r.Retrieve(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, selected)
}

func TestRetrieveModelVersionMismatch(t *testing.T) {
	docs := []store.StoredDocument{storedDoc("table:t", 0, []float32{1, 0, 0})}
	docs[0].ModelVersion = "ollama/old-model"

	r, _ := newTestRetriever(docs, []float32{1, 0, 0})

	_, err := r.Retrieve(context.Background(), "anything")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeEmbeddingSpace))
}

// headReranker moves the weakest candidate to the front, the worst case for
// any selection policy that assumes score order.
type headReranker struct{}

func (headReranker) Rerank(_ context.Context, _ string, candidates []ScoredDocument) ([]ScoredDocument, error) {
	if len(candidates) < 2 {
		return candidates, nil
	}

	last := candidates[len(candidates)-1]

	return append([]ScoredDocument{last}, candidates[:len(candidates)-1]...), nil
}

func (headReranker) Name() string { return "head" }

func TestRetrieveRerankedOrderKeepsAboveThreshold(t *testing.T) {
	docs := []store.StoredDocument{
		storedDoc("column:t.near", 0, []float32{1, 0, 0}),
		storedDoc("column:t.mid", 1, []float32{1, 1, 0}),
		storedDoc("column:t.far", 2, []float32{0, 1, 0}),
	}

	embedder := &fakeEmbedder{vec: []float32{1, 0, 0}, version: "ollama/all-minilm"}
	policy := &TopKThresholdPolicy{TopK: 10, Threshold: 0.5}

	r := NewRetriever(&fakeStore{docs: docs}, embedder, policy).WithReranker(headReranker{}, 0)

	selected, err := r.Retrieve(context.Background(), "which rows")
	require.NoError(t, err)
	require.Len(t, selected, 2)

	assert.Equal(t, "column:t.near", selected[0].Doc.Doc.ID)
	assert.Equal(t, "column:t.mid", selected[1].Doc.Doc.ID)
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 0}, b: []float32{1, 0}, want: 1.0},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0.0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1.0},
		{name: "length mismatch", a: []float32{1, 0}, b: []float32{1}, want: 0.0},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 0}, want: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, cosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestLexicalRerankerPullsExactMatches(t *testing.T) {
	amount := ScoredDocument{Doc: storedDoc("column:sales.amount", 0, nil), Score: 0.80}
	amount.Doc.Doc.Text = "Column: sales.amount\nData type: DOUBLE"

	price := ScoredDocument{Doc: storedDoc("column:sales.price", 1, nil), Score: 0.81}
	price.Doc.Doc.Text = "Column: sales.price\nData type: DOUBLE"

	reranked, err := NewLexicalReranker().Rerank(context.Background(),
		"total amount per artist", []ScoredDocument{price, amount})
	require.NoError(t, err)
	require.Len(t, reranked, 2)

	// "amount" appears verbatim in the question, outweighing a 0.01 similarity gap
	assert.Equal(t, "column:sales.amount", reranked[0].Doc.Doc.ID)
}
