package submit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-formstate/pkg/validation"
)

// ErrSubmitInProgress is returned when Submit is called while a previous
// submission is still validating or running its handler.
var ErrSubmitInProgress = errors.New("submit: submission in progress")

// InvalidError carries the validation failures that stopped a submission.
type InvalidError struct {
	Errors validation.ErrorMap
}

func (e *InvalidError) Error() string {
	keys := e.Errors.Keys()
	if len(keys) == 1 {
		return fmt.Sprintf("submit: invalid form: %s: %s", keys[0], e.Errors[keys[0]])
	}
	return fmt.Sprintf("submit: invalid form: %d fields failed (%s)", len(keys), strings.Join(keys, ", "))
}

// SubmitHandlerError wraps a failure returned by the submit handler or a
// transformer.
type SubmitHandlerError struct {
	Err error
}

func (e *SubmitHandlerError) Error() string {
	return fmt.Sprintf("submit: handler failed: %v", e.Err)
}

func (e *SubmitHandlerError) Unwrap() error {
	return e.Err
}
