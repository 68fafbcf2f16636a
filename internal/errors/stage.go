package errors

import "fmt"

// Disposition is the final state of an execution's ephemeral branch.
type Disposition string

const (
	DispositionNotCreated   Disposition = "not_created"
	DispositionDeleted      Disposition = "deleted"
	DispositionDeleteFailed Disposition = "delete_failed"
)

// StageError reports which pipeline stage failed and what happened to the
// ephemeral branch afterwards.
type StageError struct {
	Stage       string
	Branch      string
	Disposition Disposition
	Err         error
}

func (e *StageError) Error() string {
	if e.Branch == "" {
		return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("stage %s failed (branch %s: %s): %v", e.Stage, e.Branch, e.Disposition, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
