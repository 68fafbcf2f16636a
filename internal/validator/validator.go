// Package validator checks workflow documents before they are staged remotely.
//
// A Validator runs a list of checks and merges their findings. The default
// set is the actionlint schema/lint check; deployments can add CEL policy
// rules on top.
package validator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	ghaerrors "github.com/dangazineu/ghaexec/internal/errors"
	"github.com/dangazineu/ghaexec/internal/interfaces"
)

// Check is one source of validation findings.
type Check interface {
	Name() string
	Check(ctx context.Context, document []byte) ([]ghaerrors.Issue, error)
}

// Validator implements interfaces.Validator over a list of checks.
type Validator struct {
	checks []Check
	logger *zap.Logger
}

var _ interfaces.Validator = (*Validator)(nil)

// New returns a Validator running checks in order.
func New(logger *zap.Logger, checks ...Check) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{checks: checks, logger: logger}
}

// Validate runs every check. The outcome is OK only if no check reported an issue.
func (v *Validator) Validate(ctx context.Context, document []byte) (interfaces.ValidationOutcome, error) {
	var issues []ghaerrors.Issue
	for _, c := range v.checks {
		found, err := c.Check(ctx, document)
		if err != nil {
			return interfaces.ValidationOutcome{}, fmt.Errorf("%s check: %w", c.Name(), err)
		}
		if len(found) > 0 {
			v.logger.Debug("validation check reported issues",
				zap.String("check", c.Name()),
				zap.Int("issues", len(found)),
			)
		}
		issues = append(issues, found...)
	}
	return interfaces.ValidationOutcome{OK: len(issues) == 0, Issues: issues}, nil
}
