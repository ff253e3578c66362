package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/strata/internal/ir"
)

// Schema error codes (E100-E199)
const (
	// General errors (E100)
	ErrInvalidKind = "E100" // unknown entry kind

	// Naming errors (E101-E107)
	ErrInvalidName         = "E101" // empty, reserved prefix, or reserved character
	ErrDuplicateName       = "E102" // duplicate qualified name or storage path
	ErrDuplicateActionType = "E103" // action type registered twice
	ErrMissingField        = "E104" // required field absent for the entry kind
	ErrUnknownDependency   = "E105" // source or prop names an unknown entry
	ErrSelfReference       = "E106" // schema entry contains itself
	ErrInvalidDependency   = "E107" // dependency of the wrong kind

	// Graph errors (E108)
	ErrCycle = "E108" // dependency cycle
)

// CompileError is a fatal schema error. Compile reports the first one;
// Validate reports all of them.
type CompileError struct {
	Code    string `json:"code"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message"`

	err error
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Name, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause (a *CycleError for E108).
func (e *CompileError) Unwrap() error {
	return e.err
}

// HasCode reports whether err is a CompileError with the given code.
func HasCode(err error, code string) bool {
	var ce *CompileError
	return errors.As(err, &ce) && ce.Code == code
}

func newError(code, name, format string, args ...any) *CompileError {
	return &CompileError{Code: code, Name: name, Message: fmt.Sprintf(format, args...)}
}

// Validate checks a schema and returns every error found (does not
// fail-fast). A cycle is reported only when naming and field checks pass,
// since dependencies must resolve before the graph can be built.
func Validate(s ir.Schema) []*CompileError {
	c := newCompilation()
	c.walk(s)
	c.registerActions()
	c.resolveDependencies()
	if len(c.errs) == 0 {
		c.compileGraph()
	}
	return c.errs
}

// validateKey enforces the naming rules shared by schema keys and path
// segments: non-empty, no leading '$' or '_', no '.' or NUL, and not the
// refresh source name.
func validateKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("name must be non-empty")
	case key == AllName:
		return fmt.Errorf("name %q is reserved", key)
	case strings.HasPrefix(key, "$"), strings.HasPrefix(key, "_"):
		return fmt.Errorf("name %q must not start with '$' or '_'", key)
	case strings.Contains(key, "."):
		return fmt.Errorf("name %q must not contain '.'", key)
	case strings.ContainsRune(key, 0):
		return fmt.Errorf("name %q must not contain NUL", key)
	}
	return nil
}

// validateFields checks the kind-specific required fields of an entry.
func validateFields(name string, e ir.Entry) []*CompileError {
	var errs []*CompileError
	missing := func(field string) {
		errs = append(errs, newError(ErrMissingField, name, "%s entry requires %s", e.Kind, field))
	}

	switch e.Kind {
	case ir.KindValue:
		if e.Reducer != nil && e.ActionType == "" {
			missing("actionType when a reducer is set")
		}
	case ir.KindCustomValue:
		if e.ActionType == "" {
			missing("actionType")
		}
		if e.Reducer == nil {
			missing("reducer")
		}
	case ir.KindFormula:
		if e.Formula == nil {
			missing("formula")
		}
	case ir.KindView:
		if e.Source == "" {
			missing("source")
		}
		if e.View == nil {
			missing("view")
		}
	case ir.KindCustom:
		if e.ActionType == "" {
			missing("actionType")
		}
		if e.Custom == nil {
			missing("custom reducer")
		}
	case ir.KindSchema:
		if e.Schema == nil {
			missing("schema")
		}
	}

	if e.ActionType != "" && strings.HasPrefix(e.ActionType, ir.ActionPrefix) {
		errs = append(errs, newError(ErrInvalidName, name,
			"action type %q uses the reserved %q prefix", e.ActionType, ir.ActionPrefix))
	}
	return errs
}
