package workspace

import (
	"fmt"
	"regexp"
)

// ValidationError reports bad user input. It is always fatal and is raised
// before any side effect.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

var contextNameRE = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,50}$`)

// Context names that would collide with CLI keywords.
var reservedContextNames = map[string]bool{
	"current": true,
	"all":     true,
	"none":    true,
	"clone":   true,
	"delete":  true,
}

// ValidateContextName checks the workspace name format, length, and the
// reserved-word list.
func ValidateContextName(name string) error {
	if !contextNameRE.MatchString(name) {
		return &ValidationError{
			Field: "context name",
			Msg:   fmt.Sprintf("%q must match [a-zA-Z0-9_-]{1,50}", name),
		}
	}
	if reservedContextNames[name] {
		return &ValidationError{
			Field: "context name",
			Msg:   fmt.Sprintf("%q is reserved", name),
		}
	}
	return nil
}
