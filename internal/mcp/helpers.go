package mcpserver

import (
	"slices"
	"strings"
	"unicode"
)

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

var writeVerbs = []string{"UPDATE", "DELETE", "DROP", "INSERT", "ALTER", "TRUNCATE", "CREATE", "REPLACE", "MERGE", "ATTACH", "VACUUM"}

// isWriteQuery detects statements that change the published database.
// Each ;-separated statement is checked after its leading comments are
// stripped; a WITH statement is a write if any write verb appears in it.
// Mongo pipelines writing through $out or $merge count as writes.
func isWriteQuery(query string) bool {
	q := strings.ToUpper(query)
	if strings.HasPrefix(strings.TrimSpace(q), "{") {
		return strings.Contains(q, `"$OUT"`) || strings.Contains(q, `"$MERGE"`)
	}
	for _, stmt := range strings.Split(q, ";") {
		stmt = stripLeadingComments(stmt)
		if stmt == "" {
			continue
		}
		words := strings.FieldsFunc(stmt, func(r rune) bool {
			return !unicode.IsLetter(r) && r != '_'
		})
		if len(words) == 0 {
			continue
		}
		if slices.Contains(writeVerbs, words[0]) {
			return true
		}
		if words[0] == "WITH" && slices.ContainsFunc(words, func(w string) bool { return slices.Contains(writeVerbs, w) }) {
			return true
		}
	}
	return false
}

// stripLeadingComments drops whitespace, -- line comments and /* */ block
// comments from the start of stmt.
func stripLeadingComments(stmt string) string {
	for {
		stmt = strings.TrimSpace(stmt)
		switch {
		case strings.HasPrefix(stmt, "--"):
			i := strings.IndexByte(stmt, '\n')
			if i < 0 {
				return ""
			}
			stmt = stmt[i+1:]
		case strings.HasPrefix(stmt, "/*"):
			i := strings.Index(stmt, "*/")
			if i < 0 {
				return ""
			}
			stmt = stmt[i+2:]
		default:
			return stmt
		}
	}
}
