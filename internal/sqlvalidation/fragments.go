// Package sqlvalidation checks the opaque SQL fragments a plan embeds: the
// source expression and predicate of a backfill. The engine treats them as
// text, so this is the last chance to reject a typo before it runs against a
// production table.
package sqlvalidation

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/schemapatch/schemapatch/database"
	"github.com/schemapatch/schemapatch/internal/patch"
)

// Issue is one problem found in a plan's SQL fragments.
type Issue struct {
	PrimitiveID string `json:"primitive_id"`
	Field       string `json:"field"` // "source_expression" or "predicate"
	Message     string `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.PrimitiveID, i.Field, i.Message)
}

// CheckPlan validates every SQL fragment in a plan for the given dialect.
// Fragment syntax is only parseable for postgres; structural checks (no
// statement terminators, no comments) apply to every dialect.
func CheckPlan(plan *patch.Plan, dialect database.Dialect) []Issue {
	var issues []Issue
	for _, spec := range plan.Primitives {
		if spec.Kind != patch.KindBackfillColumn {
			continue
		}
		issues = append(issues, checkFragment(spec.ID, "source_expression", spec.SourceExpression, dialect)...)
		issues = append(issues, checkFragment(spec.ID, "predicate", spec.Predicate, dialect)...)
	}
	return issues
}

func checkFragment(id, field, fragment string, dialect database.Dialect) []Issue {
	var issues []Issue
	report := func(msg string) {
		issues = append(issues, Issue{PrimitiveID: id, Field: field, Message: msg})
	}

	trimmed := strings.TrimSpace(fragment)
	if trimmed == "" {
		report("fragment is empty")
		return issues
	}

	// Fragments are spliced into generated statements, so anything that can
	// terminate or comment out the surrounding SQL is rejected outright.
	if strings.Contains(trimmed, ";") {
		report("fragment must not contain a statement terminator")
	}
	if strings.Contains(trimmed, "--") || strings.Contains(trimmed, "/*") {
		report("fragment must not contain SQL comments")
	}
	if len(issues) > 0 {
		return issues
	}

	if dialect == database.DialectPostgres {
		// Parse the fragment as an expression by wrapping it in a SELECT.
		probe := fmt.Sprintf("SELECT 1 WHERE %s", trimmed)
		if field == "source_expression" {
			probe = fmt.Sprintf("SELECT %s", trimmed)
		}
		if _, err := pg_query.Parse(probe); err != nil {
			report(fmt.Sprintf("not a valid expression: %v", err))
		}
	}

	return issues
}
