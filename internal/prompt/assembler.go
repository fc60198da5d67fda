package prompt

import (
	"fmt"
	"strings"

	"github.com/askdb/askdb/internal/errors"
	"github.com/askdb/askdb/internal/retrieval"
	"github.com/askdb/askdb/internal/schema"
)

// Document boundary markers keep the model from bleeding one schema
// description into the next.
const (
	documentStart = "[DOCUMENT_START]"
	documentEnd   = "[DOCUMENT_END]"
)

// Context is the assembled generator input: the schema block, the verbatim
// question, and the identifier scope the guard validates against.
type Context struct {
	SchemaBlock string
	Question    string
	Feedback    []string
	Tables      map[string]bool
	Columns     map[string]bool
	// TableDocs marks tables whose full table document was included, which
	// licenses every column of that table without naming each one.
	TableDocs map[string]bool
	Included  int
	Truncated bool
}

// AllowsTable reports whether the generator may reference a table
func (c *Context) AllowsTable(table string) bool {
	return c.Tables[table]
}

// AllowsColumn reports whether the generator may reference table.column
func (c *Context) AllowsColumn(table, column string) bool {
	return c.TableDocs[table] || c.Columns[table+"."+column]
}

// Assembler renders retrieved documents into a bounded generator context
type Assembler struct {
	budgetChars int
}

// NewAssembler creates an assembler with a character budget
func NewAssembler(budgetChars int) *Assembler {
	return &Assembler{budgetChars: budgetChars}
}

// Assemble includes retrieved documents in score order until the next one
// would exceed the budget; everything from that point on is dropped, so a
// lower-ranked document never displaces a higher-ranked one. The question is
// never truncated or paraphrased; if it alone exceeds the budget, assembly
// fails.
func (a *Assembler) Assemble(question string, retrieved []retrieval.ScoredDocument, feedback []string) (*Context, error) {
	fixed := len(question) + feedbackLen(feedback)
	if fixed > a.budgetChars {
		return nil, errors.Newf(errors.ErrTypeContextBudget,
			"question length %d exceeds the context budget of %d characters", fixed, a.budgetChars).
			WithSuggestion("Shorten the question or raise ASKDB_PROMPT_BUDGET_CHARS")
	}

	ctx := &Context{
		Question:  question,
		Feedback:  feedback,
		Tables:    make(map[string]bool),
		Columns:   make(map[string]bool),
		TableDocs: make(map[string]bool),
	}

	var block strings.Builder

	remaining := a.budgetChars - fixed

	for _, scored := range retrieved {
		rendered := renderDocument(scored.Doc.Doc)
		if len(rendered) > remaining {
			ctx.Truncated = true
			break
		}

		block.WriteString(rendered)
		remaining -= len(rendered)
		ctx.Included++

		addScope(ctx, scored.Doc.Doc)
	}

	ctx.SchemaBlock = block.String()

	return ctx, nil
}

// addScope records which tables and columns the generator is allowed to
// reference. A column document licenses its table too; a relationship
// document licenses both endpoints.
func addScope(ctx *Context, doc schema.Document) {
	ctx.Tables[doc.Table] = true

	if doc.Type == schema.DocTypeTable {
		ctx.TableDocs[doc.Table] = true
	}

	if doc.Column != "" {
		ctx.Columns[doc.Table+"."+doc.Column] = true
	}

	if doc.RefTable != "" {
		ctx.Tables[doc.RefTable] = true

		if doc.RefColumn != "" {
			ctx.Columns[doc.RefTable+"."+doc.RefColumn] = true
		}
	}
}

func renderDocument(doc schema.Document) string {
	return fmt.Sprintf("%s\n%s\n%s\n", documentStart, doc.Text, documentEnd)
}

func feedbackLen(feedback []string) int {
	total := 0
	for _, f := range feedback {
		total += len(f) + 1
	}

	return total
}
