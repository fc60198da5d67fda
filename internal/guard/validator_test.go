package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdb/askdb/internal/prompt"
)

// salesScope licenses all of sales (table document included) plus
// artists.name and artists.id (column and relationship documents).
func salesScope() *prompt.Context {
	return &prompt.Context{
		Tables:    map[string]bool{"sales": true, "artists": true},
		Columns:   map[string]bool{"artists.name": true, "artists.id": true},
		TableDocs: map[string]bool{"sales": true},
	}
}

func TestValidateAccepted(t *testing.T) {
	tests := []struct {
		name string
		sql  string
	}{
		{name: "plain select", sql: "SELECT amount FROM sales"},
		{name: "trailing semicolon", sql: "SELECT amount FROM sales;"},
		{name: "qualified columns", sql: "SELECT sales.amount, artists.name FROM sales JOIN artists ON sales.artist_id = artists.id"},
		{name: "aliases", sql: "SELECT s.amount FROM sales AS s"},
		{name: "lowercase", sql: "select amount from sales limit 10"},
		{name: "cte", sql: "WITH totals AS (SELECT artist_id, SUM(amount) AS total FROM sales GROUP BY artist_id) SELECT totals.total FROM totals"},
		{name: "keyword in string literal", sql: "SELECT amount FROM sales WHERE note = 'DROP TABLE x'"},
	}

	v := NewValidator(nil)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := v.Validate(tt.sql, salesScope())
			assert.True(t, verdict.IsAccepted(), "reason: %s", verdict.Reason)
			assert.NotEmpty(t, verdict.SQL)
		})
	}
}

func TestValidateDisallowedStatementType(t *testing.T) {
	tests := []struct {
		name string
		sql  string
	}{
		{name: "delete", sql: "DELETE FROM sales"},
		{name: "update", sql: "UPDATE sales SET amount = 0"},
		{name: "insert", sql: "INSERT INTO sales VALUES (1)"},
		{name: "drop", sql: "DROP TABLE sales"},
		{name: "create", sql: "CREATE TABLE t (id INTEGER)"},
		{name: "pragma", sql: "PRAGMA database_list"},
	}

	v := NewValidator(nil)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := v.Validate(tt.sql, salesScope())
			require.True(t, verdict.IsRejected())
			assert.Contains(t, verdict.Reason, "disallowed statement type")
		})
	}
}

func TestValidateMutationHiddenInWith(t *testing.T) {
	tests := []struct {
		name string
		sql  string
	}{
		{name: "mutation after prologue", sql: "WITH d AS (SELECT 1) DELETE FROM sales"},
		{name: "data modifying cte body", sql: "WITH d AS (DELETE FROM sales RETURNING id) SELECT id FROM d"},
		{name: "insert after prologue", sql: "WITH d AS (SELECT amount FROM sales) INSERT INTO sales SELECT * FROM d"},
		{name: "nested cte mutation", sql: "WITH a AS (WITH b AS (UPDATE sales SET amount = 0 RETURNING id) SELECT id FROM b) SELECT id FROM a"},
		{name: "create after prologue", sql: "WITH d AS (SELECT 1) CREATE TABLE t AS SELECT * FROM d"},
	}

	v := NewValidator(nil)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := v.Validate(tt.sql, salesScope())
			require.True(t, verdict.IsRejected(), "kind: %s", verdict.Kind)
			assert.Contains(t, verdict.Reason, "disallowed statement type")
		})
	}
}

func TestValidateParenthesizedSelect(t *testing.T) {
	v := NewValidator(nil)

	verdict := v.Validate("(SELECT amount FROM sales)", salesScope())
	assert.True(t, verdict.IsAccepted(), "reason: %s", verdict.Reason)

	verdict = v.Validate("((SELECT amount FROM sales))", salesScope())
	assert.True(t, verdict.IsAccepted(), "reason: %s", verdict.Reason)

	verdict = v.Validate("(DELETE FROM sales)", salesScope())
	require.True(t, verdict.IsRejected())
	assert.Contains(t, verdict.Reason, "disallowed statement type")
}

func TestValidateMultipleStatements(t *testing.T) {
	v := NewValidator(nil)

	verdict := v.Validate("SELECT amount FROM sales; DROP TABLE sales", salesScope())
	require.True(t, verdict.IsRejected())
	assert.Contains(t, verdict.Reason, "multiple SQL statements")
}

func TestValidateSemicolonInStringIsNotASplit(t *testing.T) {
	v := NewValidator(nil)

	verdict := v.Validate("SELECT amount FROM sales WHERE note = 'a;b'", salesScope())
	assert.True(t, verdict.IsAccepted(), "reason: %s", verdict.Reason)
}

func TestValidateCommentsAreStripped(t *testing.T) {
	v := NewValidator(nil)

	verdict := v.Validate("SELECT amount FROM sales -- ; DROP TABLE sales", salesScope())
	assert.True(t, verdict.IsAccepted(), "reason: %s", verdict.Reason)

	verdict = v.Validate("/* preamble */ SELECT amount FROM sales", salesScope())
	assert.True(t, verdict.IsAccepted(), "reason: %s", verdict.Reason)
}

func TestValidateTableOutOfScope(t *testing.T) {
	v := NewValidator(nil)

	verdict := v.Validate("SELECT salary FROM employees", salesScope())
	require.True(t, verdict.IsRetry())
	assert.Contains(t, verdict.Reason, `"employees"`)
}

func TestValidateColumnOutOfScope(t *testing.T) {
	v := NewValidator(nil)

	// artists only has name and id in scope
	verdict := v.Validate("SELECT artists.country FROM artists", salesScope())
	require.True(t, verdict.IsRetry())
	assert.Contains(t, verdict.Reason, `"artists.country"`)
}

func TestValidateTableDocLicensesAllColumns(t *testing.T) {
	v := NewValidator(nil)

	// sales has its full table document in scope
	verdict := v.Validate("SELECT sales.anything FROM sales", salesScope())
	assert.True(t, verdict.IsAccepted(), "reason: %s", verdict.Reason)
}

func TestValidateAliasResolution(t *testing.T) {
	v := NewValidator(nil)

	verdict := v.Validate("SELECT a.country FROM artists a", salesScope())
	require.True(t, verdict.IsRetry())
	assert.Contains(t, verdict.Reason, `"artists.country"`)
}

func TestValidateEmptySQL(t *testing.T) {
	v := NewValidator(nil)

	verdict := v.Validate("   ", salesScope())
	assert.True(t, verdict.IsRetry())
}

func TestHeuristicPolicyCommaJoin(t *testing.T) {
	v := NewValidator(HeuristicPolicy{})

	verdict := v.Validate("SELECT sales.amount FROM sales, artists", salesScope())
	require.True(t, verdict.IsRetry())
	assert.Contains(t, verdict.Reason, "cartesian product")
}

func TestHeuristicPolicyRequireLimit(t *testing.T) {
	v := NewValidator(HeuristicPolicy{RequireLimit: true})

	verdict := v.Validate("SELECT amount FROM sales", salesScope())
	require.True(t, verdict.IsRetry())
	assert.Contains(t, verdict.Reason, "LIMIT")

	verdict = v.Validate("SELECT amount FROM sales LIMIT 100", salesScope())
	assert.True(t, verdict.IsAccepted(), "reason: %s", verdict.Reason)
}

func TestHeuristicPolicyMaxJoins(t *testing.T) {
	v := NewValidator(HeuristicPolicy{MaxJoins: 1})

	verdict := v.Validate(
		"SELECT sales.amount FROM sales JOIN artists ON sales.artist_id = artists.id JOIN artists a2 ON a2.id = artists.id",
		salesScope())
	require.True(t, verdict.IsRetry())
	assert.Contains(t, verdict.Reason, "joins")
}

func TestStripLiterals(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "line comment", in: "SELECT 1 -- comment", want: "SELECT 1 "},
		{name: "block comment", in: "SELECT /* x */ 1", want: "SELECT  1"},
		{name: "string literal", in: "SELECT 'a;b'", want: "SELECT '?'"},
		{name: "escaped quote", in: "SELECT 'it''s'", want: "SELECT '?'"},
		{name: "quoted identifier", in: `SELECT "weird name"`, want: "SELECT weird name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripLiterals(tt.in))
		})
	}
}
