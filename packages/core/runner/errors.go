package runner

import (
	"errors"
	"fmt"

	"github.com/abdul-hamid-achik/beaconspec/packages/core/parser"
)

// ErrUnrecognizedStep is logged for a Step implementation the interpreter does
// not know. The step is skipped and the run continues.
var ErrUnrecognizedStep = errors.New("unrecognized step")

// StepError is a browser-control failure that aborted the run.
type StepError struct {
	Index  int
	Action parser.Action
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index, e.Action, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
