package guard

import (
	"strings"
	"unicode"
)

// stripLiterals removes comments and replaces string literals with a
// placeholder so later checks never trip on keyword-looking text inside
// quotes. Double-quoted identifiers keep their content.
func stripLiterals(sql string) string {
	var out strings.Builder

	runes := []rune(sql)

	for i := 0; i < len(runes); {
		switch {
		case runes[i] == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
		case runes[i] == '/' && i+1 < len(runes) && runes[i+1] == '*':
			i += 2
			for i+1 < len(runes) && !(runes[i] == '*' && runes[i+1] == '/') {
				i++
			}

			i += 2
		case runes[i] == '\'':
			i++
			for i < len(runes) {
				if runes[i] == '\'' {
					// '' is an escaped quote inside the literal
					if i+1 < len(runes) && runes[i+1] == '\'' {
						i += 2
						continue
					}

					i++

					break
				}

				i++
			}

			out.WriteString("'?'")
		case runes[i] == '"':
			i++

			start := i
			for i < len(runes) && runes[i] != '"' {
				i++
			}

			out.WriteString(string(runes[start:i]))

			if i < len(runes) {
				i++
			}
		default:
			out.WriteRune(runes[i])
			i++
		}
	}

	return out.String()
}

// token is a lexed word or a single punctuation rune
type token struct {
	text  string
	punct bool
}

// tokenize splits stripped SQL into identifier/keyword words and punctuation
func tokenize(sql string) []token {
	var tokens []token

	runes := []rune(sql)

	for i := 0; i < len(runes); {
		r := runes[i]

		switch {
		case unicode.IsSpace(r):
			i++
		case r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r):
			start := i
			for i < len(runes) && (runes[i] == '_' || unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i])) {
				i++
			}

			tokens = append(tokens, token{text: string(runes[start:i])})
		default:
			tokens = append(tokens, token{text: string(r), punct: true})
			i++
		}
	}

	return tokens
}

// splitStatements divides stripped SQL on semicolons, dropping empty parts
func splitStatements(sql string) []string {
	var statements []string

	for _, part := range strings.Split(sql, ";") {
		if strings.TrimSpace(part) != "" {
			statements = append(statements, part)
		}
	}

	return statements
}
