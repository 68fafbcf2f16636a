package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/dangazineu/ghaexec/internal/engine"
	ghaerrors "github.com/dangazineu/ghaexec/internal/errors"
	"github.com/dangazineu/ghaexec/internal/interfaces"
)

const (
	toolExecute  = "execute_workflow"
	toolValidate = "validate_workflow"
)

type workflowInput struct {
	WorkflowYAML string `json:"workflow_yaml,omitempty" jsonschema:"Inline workflow YAML. Exactly one of workflow_yaml or workflow_path is required."`
	WorkflowPath string `json:"workflow_path,omitempty" jsonschema:"Path to a workflow file readable by the server."`
	BranchName   string `json:"branch_name,omitempty" jsonschema:"Ephemeral branch name. Generated from the current time if omitted."`
}

func (in workflowInput) request() engine.ExecutionRequest {
	return engine.ExecutionRequest{
		WorkflowYAML: in.WorkflowYAML,
		WorkflowPath: in.WorkflowPath,
		BranchName:   in.BranchName,
	}
}

type jobOutput struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	Conclusion  string `json:"conclusion"`
	StartedAt   string `json:"started_at,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`
	URL         string `json:"url"`
}

// executeOutput mirrors interfaces.ExecutionResult with RFC 3339 timestamps.
type executeOutput struct {
	Status          string      `json:"status"`
	Conclusion      string      `json:"conclusion"`
	URL             string      `json:"url"`
	CreatedAt       string      `json:"created_at"`
	UpdatedAt       string      `json:"updated_at"`
	Jobs            []jobOutput `json:"jobs"`
	RunID           int64       `json:"run_id"`
	Branch          string      `json:"branch"`
	ReplacedTrigger string      `json:"replaced_trigger,omitempty"`
}

type validateOutput struct {
	OK              bool              `json:"ok"`
	OriginalIssues  []ghaerrors.Issue `json:"original_issues,omitempty"`
	MutatedIssues   []ghaerrors.Issue `json:"mutated_issues,omitempty"`
	MutatedYAML     string            `json:"mutated_yaml,omitempty"`
	ReplacedTrigger string            `json:"replaced_trigger,omitempty"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolExecute,
		Description: "Run a GitHub Actions workflow on the configured repository. The workflow trigger is replaced with `on: push`, the document is committed to an ephemeral branch, the resulting run is polled to completion and the branch is deleted.",
	}, s.handleExecute)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolValidate,
		Description: "Validate a GitHub Actions workflow and show the document that execute_workflow would commit. Nothing is sent to the repository.",
	}, s.handleValidate)
}

func (s *Server) handleExecute(ctx context.Context, req *mcp.CallToolRequest, args workflowInput) (*mcp.CallToolResult, executeOutput, error) {
	ctx, end, err := s.begin(ctx)
	if err != nil {
		return nil, executeOutput{}, err
	}
	defer end()

	start := time.Now()
	result, err := s.executor.Execute(ctx, args.request())
	if err != nil {
		s.logger.Warn("tool failed",
			zap.String("tool", toolExecute),
			zap.String("code", string(ghaerrors.CodeOf(err))),
			zap.Error(err),
		)
		return nil, executeOutput{}, err
	}
	s.logger.Info("tool completed",
		zap.String("tool", toolExecute),
		zap.Int64("run_id", result.RunID),
		zap.Duration("duration", time.Since(start)),
	)

	out := toExecuteOutput(result)
	return textResult(out), out, nil
}

func (s *Server) handleValidate(ctx context.Context, req *mcp.CallToolRequest, args workflowInput) (*mcp.CallToolResult, validateOutput, error) {
	prep, err := s.executor.Prepare(ctx, args.request())

	var codedErr *ghaerrors.Error
	if err != nil && (prep == nil || !errors.As(err, &codedErr) || len(codedErr.Issues) == 0) {
		s.logger.Warn("tool failed", zap.String("tool", toolValidate), zap.Error(err))
		return nil, validateOutput{}, err
	}

	out := validateOutput{
		OK:              err == nil,
		OriginalIssues:  prep.OriginalOutcome.Issues,
		MutatedIssues:   prep.MutatedOutcome.Issues,
		MutatedYAML:     string(prep.Mutated),
		ReplacedTrigger: prep.ReplacedTrigger,
	}
	return textResult(out), out, nil
}

func toExecuteOutput(r *interfaces.ExecutionResult) executeOutput {
	out := executeOutput{
		Status:          r.Status,
		Conclusion:      r.Conclusion,
		URL:             r.URL,
		CreatedAt:       formatTime(&r.CreatedAt),
		UpdatedAt:       formatTime(&r.UpdatedAt),
		Jobs:            make([]jobOutput, 0, len(r.Jobs)),
		RunID:           r.RunID,
		Branch:          r.Branch,
		ReplacedTrigger: r.ReplacedTrigger,
	}
	for _, j := range r.Jobs {
		out.Jobs = append(out.Jobs, jobOutput{
			Name:        j.Name,
			Status:      j.Status,
			Conclusion:  j.Conclusion,
			StartedAt:   formatTime(j.StartedAt),
			CompletedAt: formatTime(j.CompletedAt),
			URL:         j.URL,
		})
	}
	return out
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// textResult renders v as indented JSON text content for clients that do not
// read structured content.
func textResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		data = []byte(err.Error())
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
