package interfaces

import (
	"context"

	ghaerrors "github.com/dangazineu/ghaexec/internal/errors"
)

// ValidationOutcome is the verdict of a Validator.
type ValidationOutcome struct {
	OK     bool              `json:"ok"`
	Issues []ghaerrors.Issue `json:"issues,omitempty"`
}

// Validator checks a workflow document against the provider's schema and
// lint rules. It has no side effects.
type Validator interface {
	// Validate returns the verdict for document. A non-nil error means the
	// validator itself could not run, not that the document is invalid.
	Validate(ctx context.Context, document []byte) (ValidationOutcome, error)
}

// Mutation is the output of a Mutator.
type Mutation struct {
	// Document is the re-serialized workflow with the canonical trigger.
	Document []byte
	// ReplacedTrigger is the serialized trigger that was discarded; empty if
	// the document declared none.
	ReplacedTrigger string
}

// Mutator rewrites a workflow's trigger to an unconditional push trigger.
type Mutator interface {
	Mutate(document []byte) (Mutation, error)
}
