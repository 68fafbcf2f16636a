package validator

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	ghaerrors "github.com/dangazineu/ghaexec/internal/errors"
	"github.com/dangazineu/ghaexec/internal/workflow"
)

// policyCostLimit bounds the evaluation cost of a single rule.
const policyCostLimit = 1000000

// Rule is a CEL boolean expression over the decoded workflow, bound to the
// variable `doc`. A rule that evaluates to false produces an issue.
type Rule struct {
	Name    string
	Expr    string
	Message string
}

type compiledRule struct {
	Rule
	program cel.Program
}

// Policy evaluates organisation-specific rules, e.g.
//
//	doc.jobs.all(j, doc.jobs[j]["runs-on"] != "self-hosted")
type Policy struct {
	rules []compiledRule
}

// NewPolicy compiles rules. Every rule must type-check to a boolean.
func NewPolicy(rules []Rule) (*Policy, error) {
	env, err := cel.NewEnv(
		cel.Variable("doc", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %v", err)
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if r.Expr == "" {
			return nil, fmt.Errorf("policy rule %q has no expression", r.Name)
		}
		ast, issues := env.Compile(r.Expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("policy rule %q: CEL compilation error: %v", r.Name, issues.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("policy rule %q must return bool, got %v", r.Name, ast.OutputType())
		}
		program, err := env.Program(ast, cel.CostLimit(policyCostLimit))
		if err != nil {
			return nil, fmt.Errorf("policy rule %q: CEL program creation error: %v", r.Name, err)
		}
		compiled = append(compiled, compiledRule{Rule: r, program: program})
	}
	return &Policy{rules: compiled}, nil
}

func (p *Policy) Name() string { return "policy" }

func (p *Policy) Check(_ context.Context, document []byte) ([]ghaerrors.Issue, error) {
	if len(p.rules) == 0 {
		return nil, nil
	}

	doc, err := workflow.Decode(document)
	if err != nil {
		return []ghaerrors.Issue{{Title: "workflow could not be decoded for policy rules", Detail: err.Error(), Code: "policy"}}, nil
	}

	var issues []ghaerrors.Issue
	for _, r := range p.rules {
		out, _, err := r.program.Eval(map[string]any{"doc": doc})
		if err != nil {
			issues = append(issues, ghaerrors.Issue{Title: r.message(), Detail: err.Error(), Code: "policy:" + r.Name})
			continue
		}
		if out.Type() != types.BoolType || out.Value() != true {
			issues = append(issues, ghaerrors.Issue{Title: r.message(), Code: "policy:" + r.Name})
		}
	}
	return issues, nil
}

func (r compiledRule) message() string {
	if r.Message != "" {
		return r.Message
	}
	return fmt.Sprintf("policy rule %q not satisfied", r.Name)
}
