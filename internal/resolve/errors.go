package resolve

import (
	"fmt"
	"strings"
)

// ResolutionError reports that the command's binary was not found in any
// candidate directory. It is not fatal: callers proceed with the unresolved
// command and surface the condition.
type ResolutionError struct {
	Name     string
	Searched []string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("command %q not found (searched %s)", e.Name, strings.Join(e.Searched, ", "))
}
