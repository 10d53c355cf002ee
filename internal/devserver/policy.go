package devserver

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// policyEngine evaluates the push policy with OPA.
type policyEngine struct {
	query rego.PreparedEvalQuery
}

func newPolicyEngine(ctx context.Context, policyContent string) (*policyEngine, error) {
	r := rego.New(
		rego.Query("data.push_policy.decision"),
		rego.Module("push_policy.rego", policyContent),
	)
	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}
	return &policyEngine{query: query}, nil
}

// Evaluate checks the push policy. Input carries agent_id, agent_status, and
// rule_size. Returns "allow" or "block".
func (e *policyEngine) Evaluate(ctx context.Context, input interface{}) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return "allow", nil
	}
	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return "allow", nil
}

// DefaultPushPolicy gates rule pushes: only connected agents may receive
// rules, and oversized rules are rejected before reaching the agent.
const DefaultPushPolicy = `
package push_policy

default decision = "allow"

decision = "block" {
	input.agent_status != "connected"
}

decision = "block" {
	input.rule_size > 1048576
}
`
