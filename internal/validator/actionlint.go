package validator

import (
	"context"
	"fmt"
	"io"

	"github.com/rhysd/actionlint"

	ghaerrors "github.com/dangazineu/ghaexec/internal/errors"
)

// defaultLintPath only labels findings; nothing is read from disk.
const defaultLintPath = ".github/workflows/ghaexec.yml"

// Actionlint checks a document against the GitHub Actions workflow schema
// and actionlint's rule set. External linters (shellcheck, pyflakes) are
// not invoked.
type Actionlint struct {
	path string
}

// NewActionlint returns an Actionlint check labelling findings with path.
func NewActionlint(path string) *Actionlint {
	if path == "" {
		path = defaultLintPath
	}
	return &Actionlint{path: path}
}

func (a *Actionlint) Name() string { return "actionlint" }

func (a *Actionlint) Check(_ context.Context, document []byte) ([]ghaerrors.Issue, error) {
	linter, err := actionlint.NewLinter(io.Discard, &actionlint.LinterOptions{})
	if err != nil {
		return nil, fmt.Errorf("could not create linter: %w", err)
	}

	errs, err := linter.Lint(a.path, document, nil)
	if err != nil {
		return nil, fmt.Errorf("lint failed: %w", err)
	}

	issues := make([]ghaerrors.Issue, 0, len(errs))
	for _, e := range errs {
		issues = append(issues, ghaerrors.Issue{
			Title:  e.Message,
			Code:   e.Kind,
			Line:   e.Line,
			Column: e.Column,
		})
	}
	return issues, nil
}
