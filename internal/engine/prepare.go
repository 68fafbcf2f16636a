package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	ghaerrors "github.com/dangazineu/ghaexec/internal/errors"
	"github.com/dangazineu/ghaexec/internal/interfaces"
	"github.com/dangazineu/ghaexec/internal/workflow"
)

// Validation targets.
const (
	TargetOriginal = "original"
	TargetMutated  = "mutated"
)

// ExecutionRequest asks for one workflow execution. Exactly one of
// WorkflowYAML and WorkflowPath must be set. BranchName is optional.
type ExecutionRequest struct {
	WorkflowYAML string
	WorkflowPath string
	BranchName   string
}

// Preparation is the local part of an execution: the resolved document, its
// mutated form and both validation outcomes.
type Preparation struct {
	Original        []byte
	Mutated         []byte
	ReplacedTrigger string
	OriginalOutcome interfaces.ValidationOutcome
	MutatedOutcome  interfaces.ValidationOutcome
}

// Preparer runs the local stages of an execution. It never calls the remote
// provider.
type Preparer struct {
	validator interfaces.Validator
	mutator   interfaces.Mutator
	logger    *zap.Logger
}

// NewPreparer creates a Preparer. logger may be nil.
func NewPreparer(validator interfaces.Validator, mutator interfaces.Mutator, logger *zap.Logger) (*Preparer, error) {
	if validator == nil {
		return nil, errors.New("validator cannot be nil")
	}
	if mutator == nil {
		return nil, errors.New("mutator cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Preparer{validator: validator, mutator: mutator, logger: logger}, nil
}

// ResolveSource returns the workflow document named by req.
func ResolveSource(req ExecutionRequest) ([]byte, error) {
	switch {
	case req.WorkflowYAML != "" && req.WorkflowPath != "":
		return nil, ghaerrors.New(ghaerrors.CodeSourceResolution, "workflow_yaml and workflow_path are mutually exclusive")
	case req.WorkflowYAML != "":
		return []byte(req.WorkflowYAML), nil
	case req.WorkflowPath != "":
		data, err := os.ReadFile(req.WorkflowPath)
		if err != nil {
			return nil, ghaerrors.Wrap(err, ghaerrors.CodeSourceResolution, fmt.Sprintf("could not read workflow file %s", req.WorkflowPath))
		}
		return data, nil
	default:
		return nil, ghaerrors.New(ghaerrors.CodeSourceResolution, "one of workflow_yaml or workflow_path is required")
	}
}

// Prepare resolves, validates and mutates the requested document without
// touching the remote side.
func (p *Preparer) Prepare(ctx context.Context, req ExecutionRequest) (*Preparation, error) {
	prep, stage, err := p.prepare(ctx, req)
	if err != nil {
		return prep, &ghaerrors.StageError{Stage: stage, Err: err}
	}
	return prep, nil
}

func (p *Preparer) prepare(ctx context.Context, req ExecutionRequest) (*Preparation, string, error) {
	p.logger.Debug("resolving workflow source", zap.String("stage", StageResolveSource))
	original, err := ResolveSource(req)
	if err != nil {
		return nil, StageResolveSource, err
	}
	prep := &Preparation{Original: original}

	p.logger.Debug("validating workflow", zap.String("stage", StageValidateOriginal))
	prep.OriginalOutcome, err = p.validate(ctx, original, TargetOriginal)
	if err != nil {
		return prep, StageValidateOriginal, err
	}

	p.logger.Debug("rewriting workflow trigger", zap.String("stage", StageMutateTrigger))
	mutation, err := p.mutator.Mutate(original)
	if err != nil {
		return prep, StageMutateTrigger, err
	}
	prep.Mutated = mutation.Document
	prep.ReplacedTrigger = mutation.ReplacedTrigger
	if mutation.ReplacedTrigger != "" && mutation.ReplacedTrigger != "push" {
		p.logger.Warn("workflow trigger replaced with push; the original trigger is not honored",
			zap.String("replaced_trigger", mutation.ReplacedTrigger),
		)
	}

	p.logger.Debug("validating mutated workflow", zap.String("stage", StageValidateMutated))
	prep.MutatedOutcome, err = p.validate(ctx, mutation.Document, TargetMutated)
	if err != nil {
		return prep, StageValidateMutated, explainDroppedInputs(original, err)
	}

	return prep, "", nil
}

// explainDroppedInputs rewords a mutated-document validation failure when the
// original trigger declared inputs, which the push rewrite cannot supply.
func explainDroppedInputs(original []byte, err error) error {
	var codedErr *ghaerrors.Error
	if !errors.As(err, &codedErr) || codedErr.Target != TargetMutated || len(codedErr.Issues) == 0 {
		return err
	}
	names, _ := workflow.DeclaredInputs(original)
	if len(names) == 0 {
		return err
	}
	codedErr.Message = fmt.Sprintf("mutated workflow failed validation; the push trigger supplies none of the inputs declared by the original trigger (%s), so references to them must be replaced",
		strings.Join(names, ", "))
	return codedErr
}

func (p *Preparer) validate(ctx context.Context, document []byte, target string) (interfaces.ValidationOutcome, error) {
	outcome, err := p.validator.Validate(ctx, document)
	if err != nil {
		return outcome, ghaerrors.Wrap(err, ghaerrors.CodeInternal, fmt.Sprintf("could not validate %s workflow", target))
	}
	if !outcome.OK {
		return outcome, ghaerrors.Validation(target, outcome.Issues)
	}
	return outcome, nil
}
