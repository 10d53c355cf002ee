package devserver

import (
	"fmt"
	"strings"

	"github.com/ayman-m/yaragent/internal/domain"
)

// checkRule performs a lightweight structural check of rule source: a rule
// header, balanced braces, and a condition section. It is not a full
// compiler; it exists so the development server can exercise the console's
// validation workflow with realistic line-numbered diagnostics.
func checkRule(content string) domain.ValidationResult {
	var issues []domain.ValidationIssue

	addIssue := func(line int, format string, args ...interface{}) {
		l := line
		issues = append(issues, domain.ValidationIssue{
			Line:    &l,
			Message: fmt.Sprintf(format, args...),
		})
	}

	lines := strings.Split(content, "\n")
	depth := 0
	sawRule := false
	sawCondition := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "rule ") || trimmed == "rule" {
			sawRule = true
		}
		if strings.Contains(trimmed, "condition:") {
			sawCondition = true
		}
		for _, r := range line {
			switch r {
			case '{':
				depth++
			case '}':
				depth--
				if depth < 0 {
					addIssue(i+1, "unexpected closing brace")
					depth = 0
				}
			}
		}
	}

	if !sawRule {
		addIssue(1, "expected rule declaration")
	}
	if sawRule && !sawCondition {
		addIssue(len(lines), "rule has no condition section")
	}
	if depth > 0 {
		addIssue(len(lines), "unbalanced braces: %d unclosed", depth)
	}

	if len(issues) > 0 {
		return domain.ValidationResult{
			Valid:   false,
			Message: issues[0].Message,
			Errors:  issues,
		}
	}
	return domain.ValidationResult{Valid: true, Message: "compilation succeeded", Errors: []domain.ValidationIssue{}}
}
