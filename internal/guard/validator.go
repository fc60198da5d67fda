package guard

import (
	"fmt"
	"strings"

	"github.com/askdb/askdb/internal/prompt"
)

// Validator runs the ordered checks that establish trust in generated SQL.
// First failing check wins; disallowed statement types are terminal while
// scope and cost violations request a retry.
type Validator struct {
	cost CostPolicy
}

// NewValidator creates a validator. cost may be nil for the permissive default.
func NewValidator(cost CostPolicy) *Validator {
	if cost == nil {
		cost = PermissivePolicy{}
	}

	return &Validator{cost: cost}
}

// Validate checks one SQL candidate against the assembled context scope
func (v *Validator) Validate(sql string, scope *prompt.Context) Verdict {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return RetryRequested("the response contained no SQL")
	}

	stripped := stripLiterals(trimmed)

	statements := splitStatements(stripped)
	if len(statements) == 0 {
		return RetryRequested("the response contained no SQL")
	}

	if len(statements) > 1 {
		return Rejected("multiple SQL statements are not allowed")
	}

	tokens := unwrapParens(tokenize(statements[0]))
	if len(tokens) == 0 {
		return RetryRequested("the response contained no SQL")
	}

	if bad := checkStatementType(tokens); bad != "" {
		return Rejected("disallowed statement type: " + bad)
	}

	refs := analyzeReferences(tokens)

	for _, table := range refs.tables {
		if !scope.AllowsTable(table) {
			return RetryRequested(fmt.Sprintf(
				"referenced table %q is not in the provided schema context", table))
		}
	}

	for _, col := range refs.columns {
		if !scope.AllowsColumn(col.table, col.column) {
			return RetryRequested(fmt.Sprintf(
				"referenced column %q is not in the provided schema context",
				col.table+"."+col.column))
		}
	}

	if reason := v.cost.Check(statements[0], refs); reason != "" {
		return RetryRequested(reason)
	}

	return Accepted(trimmed)
}

// mutationKeywords are statement heads that modify data or schema. None may
// appear as the statement head, inside a CTE body, or at the top level after
// a WITH prologue.
var mutationKeywords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true,
	"DROP": true, "CREATE": true, "ALTER": true, "TRUNCATE": true,
	"GRANT": true, "REVOKE": true, "ATTACH": true, "DETACH": true,
	"COPY": true, "CALL": true, "SET": true, "PRAGMA": true,
	"VACUUM": true, "INSTALL": true, "LOAD": true,
	"EXPORT": true, "IMPORT": true,
}

// unwrapParens strips parentheses enclosing the whole statement, as in
// "(SELECT ...)", so the allowlist sees the real statement head.
func unwrapParens(tokens []token) []token {
	for len(tokens) >= 2 &&
		tokens[0].punct && tokens[0].text == "(" &&
		tokens[len(tokens)-1].punct && tokens[len(tokens)-1].text == ")" &&
		skipBalanced(tokens, 0) == len(tokens) {
		tokens = tokens[1 : len(tokens)-1]
	}

	return tokens
}

// checkStatementType enforces the read-only allowlist over the whole
// statement, not just the first token. A WITH prologue can carry a mutation
// either as a data-modifying CTE body or as the statement that follows the
// prologue, so CTE bodies are checked recursively and the trailing statement
// must itself pass. Returns the offending keyword, or "" when acceptable.
func checkStatementType(tokens []token) string {
	if len(tokens) == 0 {
		return ""
	}

	if tokens[0].punct {
		return tokens[0].text
	}

	head := strings.ToUpper(tokens[0].text)

	switch head {
	case "SELECT":
		return topLevelMutation(tokens[1:])
	case "WITH":
		return checkWithBodies(tokens)
	default:
		return head
	}
}

// topLevelMutation reports a mutation keyword at paren depth zero. String
// literals are already replaced by the lexer, so such a keyword cannot be
// literal text.
func topLevelMutation(tokens []token) string {
	depth := 0

	for _, tok := range tokens {
		if tok.punct {
			switch tok.text {
			case "(":
				depth++
			case ")":
				if depth > 0 {
					depth--
				}
			}

			continue
		}

		if depth == 0 {
			if word := strings.ToUpper(tok.text); mutationKeywords[word] {
				return word
			}
		}
	}

	return ""
}

// checkWithBodies walks the WITH prologue, validating each CTE body and the
// statement that follows the prologue.
func checkWithBodies(tokens []token) string {
	i := 1

	if i < len(tokens) && !tokens[i].punct && strings.EqualFold(tokens[i].text, "RECURSIVE") {
		i++
	}

	for i < len(tokens) {
		if tokens[i].punct {
			break
		}

		i++

		// optional column list before AS
		if i < len(tokens) && tokens[i].punct && tokens[i].text == "(" {
			i = skipBalanced(tokens, i)
		}

		if i >= len(tokens) || tokens[i].punct || !strings.EqualFold(tokens[i].text, "AS") {
			break
		}

		i++

		if i >= len(tokens) || !tokens[i].punct || tokens[i].text != "(" {
			break
		}

		end := skipBalanced(tokens, i)

		if end-1 > i {
			if bad := checkStatementType(tokens[i+1 : end-1]); bad != "" {
				return bad
			}
		}

		i = end

		if i < len(tokens) && tokens[i].punct && tokens[i].text == "," {
			i++
			continue
		}

		break
	}

	return checkStatementType(tokens[i:])
}

type columnRef struct {
	table  string
	column string
}

// references holds everything the scope and cost checks need from one
// statement: physical table references (CTEs excluded), qualified column
// references resolved through aliases, and join shape facts.
type references struct {
	tables    []string
	columns   []columnRef
	commaJoin bool
	joins     int
	hasLimit  bool
}

// sqlKeywords stops alias detection from eating the next clause keyword
var sqlKeywords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "GROUP": true, "ORDER": true,
	"HAVING": true, "LIMIT": true, "OFFSET": true, "JOIN": true, "INNER": true,
	"LEFT": true, "RIGHT": true, "FULL": true, "CROSS": true, "OUTER": true,
	"ON": true, "USING": true, "AS": true, "AND": true, "OR": true, "NOT": true,
	"UNION": true, "ALL": true, "DISTINCT": true, "BY": true, "WITH": true,
	"CASE": true, "WHEN": true, "THEN": true, "ELSE": true, "END": true,
	"ASC": true, "DESC": true, "NULLS": true, "FIRST": true, "LAST": true,
	"IN": true, "EXISTS": true, "BETWEEN": true, "LIKE": true, "ILIKE": true,
	"IS": true, "NULL": true, "QUALIFY": true, "WINDOW": true, "NATURAL": true,
}

// analyzeReferences walks the token stream once, collecting table references
// after FROM/JOIN, alias bindings, CTE names, and qualified column pairs.
func analyzeReferences(tokens []token) references {
	refs := references{}
	ctes := collectCTENames(tokens)
	aliases := make(map[string]string)
	consumed := make([]bool, len(tokens))

	isWord := func(i int, word string) bool {
		return i < len(tokens) && !tokens[i].punct && strings.EqualFold(tokens[i].text, word)
	}

	// readTableRef consumes a table name plus optional alias starting at i,
	// returning the next unconsumed index.
	readTableRef := func(i int) int {
		if i >= len(tokens) || tokens[i].punct {
			return i
		}

		name := tokens[i].text
		consumed[i] = true
		i++

		// schema-qualified reference, keep the last segment
		for i+1 < len(tokens) && tokens[i].punct && tokens[i].text == "." && !tokens[i+1].punct {
			name = tokens[i+1].text
			consumed[i] = true
			consumed[i+1] = true
			i += 2
		}

		if !ctes[strings.ToLower(name)] {
			refs.tables = append(refs.tables, name)
		}

		alias := ""

		if isWord(i, "AS") {
			consumed[i] = true
			i++
		}

		if i < len(tokens) && !tokens[i].punct && !sqlKeywords[strings.ToUpper(tokens[i].text)] {
			alias = tokens[i].text
			consumed[i] = true
			i++
		}

		if alias != "" {
			aliases[strings.ToLower(alias)] = name
		} else {
			aliases[strings.ToLower(name)] = name
		}

		return i
	}

	for i := 0; i < len(tokens); {
		if tokens[i].punct || !(strings.EqualFold(tokens[i].text, "FROM") || strings.EqualFold(tokens[i].text, "JOIN")) {
			i++
			continue
		}

		fromClause := strings.EqualFold(tokens[i].text, "FROM")
		if !fromClause {
			refs.joins++
		}

		i++

		// subqueries carry their own FROM, nothing to consume here
		if i < len(tokens) && tokens[i].punct && tokens[i].text == "(" {
			continue
		}

		i = readTableRef(i)

		// comma-separated table list in FROM is an implicit cross join
		for fromClause && i < len(tokens) && tokens[i].punct && tokens[i].text == "," {
			if i+1 < len(tokens) && !tokens[i+1].punct {
				refs.commaJoin = true
				i = readTableRef(i + 1)
			} else {
				break
			}
		}
	}

	// qualified column references: word '.' word pairs not consumed as tables
	for i := 0; i+2 < len(tokens); i++ {
		if tokens[i].punct || consumed[i] {
			continue
		}

		if !tokens[i+1].punct || tokens[i+1].text != "." {
			continue
		}

		// a digit-led qualifier is a numeric literal, not an identifier
		if tokens[i].text[0] >= '0' && tokens[i].text[0] <= '9' {
			continue
		}

		qualifier := strings.ToLower(tokens[i].text)
		if ctes[qualifier] {
			continue
		}

		table, bound := aliases[qualifier]
		if !bound {
			table = tokens[i].text
		}

		if tokens[i+2].punct {
			// t.* references the whole table, covered by the table check
			continue
		}

		refs.columns = append(refs.columns, columnRef{table: table, column: tokens[i+2].text})
	}

	for _, tok := range tokens {
		if !tok.punct && strings.EqualFold(tok.text, "LIMIT") {
			refs.hasLimit = true
		}
	}

	return refs
}

// collectCTENames parses the WITH clause prologue for the names it binds
func collectCTENames(tokens []token) map[string]bool {
	ctes := make(map[string]bool)

	if len(tokens) == 0 || tokens[0].punct || !strings.EqualFold(tokens[0].text, "WITH") {
		return ctes
	}

	i := 1

	if i < len(tokens) && !tokens[i].punct && strings.EqualFold(tokens[i].text, "RECURSIVE") {
		i++
	}

	for i < len(tokens) {
		if tokens[i].punct {
			break
		}

		ctes[strings.ToLower(tokens[i].text)] = true
		i++

		// optional column list before AS
		if i < len(tokens) && tokens[i].punct && tokens[i].text == "(" {
			i = skipBalanced(tokens, i)
		}

		if i >= len(tokens) || tokens[i].punct || !strings.EqualFold(tokens[i].text, "AS") {
			break
		}

		i++

		if i >= len(tokens) || !tokens[i].punct || tokens[i].text != "(" {
			break
		}

		i = skipBalanced(tokens, i)

		if i < len(tokens) && tokens[i].punct && tokens[i].text == "," {
			i++
			continue
		}

		break
	}

	return ctes
}

// skipBalanced advances past a parenthesized group starting at an open paren
func skipBalanced(tokens []token, i int) int {
	depth := 0

	for ; i < len(tokens); i++ {
		if !tokens[i].punct {
			continue
		}

		switch tokens[i].text {
		case "(":
			depth++
		case ")":
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}

	return i
}
