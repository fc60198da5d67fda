package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdb/askdb/internal/errors"
	"github.com/askdb/askdb/internal/retrieval"
	"github.com/askdb/askdb/internal/schema"
	"github.com/askdb/askdb/internal/store"
)

func scored(doc schema.Document, score float64) retrieval.ScoredDocument {
	return retrieval.ScoredDocument{
		Doc:   store.StoredDocument{Doc: doc},
		Score: score,
	}
}

func salesDocs() []retrieval.ScoredDocument {
	return []retrieval.ScoredDocument{
		scored(schema.Document{
			ID: "table:sales", Type: schema.DocTypeTable, Table: "sales",
			Text: "Table: sales\nColumns:\n - id (INTEGER)\n - amount (DOUBLE)",
		}, 0.9),
		scored(schema.Document{
			ID: "column:artists.name", Type: schema.DocTypeColumn, Table: "artists", Column: "name",
			Text: "Column: artists.name\nData type: VARCHAR",
		}, 0.8),
		scored(schema.Document{
			ID: "rel:sales.artist_id->artists.id", Type: schema.DocTypeRelationship,
			Table: "sales", Column: "artist_id", RefTable: "artists", RefColumn: "id",
			Text: "Relationship: sales.artist_id references artists.id",
		}, 0.7),
	}
}

func TestAssembleIncludesDocumentsWithMarkers(t *testing.T) {
	ctx, err := NewAssembler(4000).Assemble("total sales per artist", salesDocs(), nil)
	require.NoError(t, err)

	assert.Equal(t, 3, ctx.Included)
	assert.False(t, ctx.Truncated)
	assert.Equal(t, "total sales per artist", ctx.Question)

	assert.Equal(t, 3, strings.Count(ctx.SchemaBlock, documentStart))
	assert.Equal(t, 3, strings.Count(ctx.SchemaBlock, documentEnd))
	assert.Contains(t, ctx.SchemaBlock, "Table: sales")

	// higher scored documents render first
	assert.Less(t,
		strings.Index(ctx.SchemaBlock, "Table: sales"),
		strings.Index(ctx.SchemaBlock, "Column: artists.name"))
}

func TestAssembleScope(t *testing.T) {
	ctx, err := NewAssembler(4000).Assemble("q", salesDocs(), nil)
	require.NoError(t, err)

	assert.True(t, ctx.AllowsTable("sales"))
	assert.True(t, ctx.AllowsTable("artists"))
	assert.False(t, ctx.AllowsTable("employees"))

	// table document licenses all sales columns
	assert.True(t, ctx.AllowsColumn("sales", "amount"))
	assert.True(t, ctx.AllowsColumn("sales", "id"))

	// artists only had a column and a relationship endpoint in scope
	assert.True(t, ctx.AllowsColumn("artists", "name"))
	assert.True(t, ctx.AllowsColumn("artists", "id"))
	assert.False(t, ctx.AllowsColumn("artists", "country"))
}

func TestAssembleBudgetDropsLowScoredDocuments(t *testing.T) {
	docs := salesDocs()
	question := "q"

	// budget fits the question plus roughly the first document only
	budget := len(question) + len(renderDocument(docs[0].Doc.Doc)) + 10

	ctx, err := NewAssembler(budget).Assemble(question, docs, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, ctx.Included)
	assert.True(t, ctx.Truncated)
	assert.Contains(t, ctx.SchemaBlock, "Table: sales")
	assert.NotContains(t, ctx.SchemaBlock, "Column: artists.name")
}

func TestAssembleStopsAtFirstOverflow(t *testing.T) {
	docs := salesDocs()

	// the middle document is too large while the last one would still fit;
	// it must not be included in place of the higher-ranked one
	docs[1].Doc.Doc.Text = strings.Repeat("x", 500)

	question := "q"
	budget := len(question) + len(renderDocument(docs[0].Doc.Doc)) + len(renderDocument(docs[2].Doc.Doc)) + 10

	ctx, err := NewAssembler(budget).Assemble(question, docs, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, ctx.Included)
	assert.True(t, ctx.Truncated)
	assert.Contains(t, ctx.SchemaBlock, "Table: sales")
	assert.NotContains(t, ctx.SchemaBlock, "Relationship: sales.artist_id")
}

func TestAssembleQuestionOverBudget(t *testing.T) {
	_, err := NewAssembler(10).Assemble(strings.Repeat("x", 11), nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeContextBudget))
}

func TestAssembleFeedbackCountsAgainstBudget(t *testing.T) {
	feedback := []string{strings.Repeat("f", 8)}

	_, err := NewAssembler(10).Assemble("qq", nil, feedback)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeContextBudget))
}

func TestAssembleEmptyRetrieval(t *testing.T) {
	ctx, err := NewAssembler(100).Assemble("q", nil, nil)
	require.NoError(t, err)

	assert.Empty(t, ctx.SchemaBlock)
	assert.Zero(t, ctx.Included)
}
