package formstate

import (
	"fmt"
	"strings"
)

// UnknownFormError reports a form id missing from a definition set.
type UnknownFormError struct {
	ID        string
	Available []string
}

func (e *UnknownFormError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("formstate: form %q not found", e.ID)
	}
	return fmt.Sprintf("formstate: form %q not found (available: %s)", e.ID, strings.Join(e.Available, ", "))
}
