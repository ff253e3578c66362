package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/strata/internal/compiler"
	"github.com/roach88/strata/internal/engine"
	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/recipes"
)

// LoadMode controls how errors are handled during schema loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects every compile error before returning.
	LoadModeCollectAll
)

// LoadResult is a loaded and compiled schema.
type LoadResult struct {
	Path      string
	Schema    ir.Schema
	Compiled  *compiler.Schema
	FileCount int
}

// LoadError represents an error that occurred during schema loading.
type LoadError struct {
	Code    string
	Name    string    // schema name the error is about, if any
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.Name != "" {
		msg = e.Name + ": " + msg
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Error code constants, unified across all CLI commands. Schema compile
// errors keep the compiler's E1xx codes.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeNotFound      = "E002" // Path not found
	ErrCodeNoFiles       = "E003" // No CUE files found
	ErrCodeLoadFailed    = "E004" // CUE load or evaluation failed
	ErrCodeWriteFailed   = "E005" // File write error
	ErrCodeInvalidInput  = "E006" // Malformed action input
	ErrCodeRefreshFailed = "E007" // Initial refresh of derived nodes failed

	ErrCodeInvalidKind         = compiler.ErrInvalidKind
	ErrCodeInvalidName         = compiler.ErrInvalidName
	ErrCodeDuplicateName       = compiler.ErrDuplicateName
	ErrCodeDuplicateActionType = compiler.ErrDuplicateActionType
	ErrCodeMissingField        = compiler.ErrMissingField
	ErrCodeUnknownDependency   = compiler.ErrUnknownDependency
	ErrCodeSelfReference       = compiler.ErrSelfReference
	ErrCodeInvalidDependency   = compiler.ErrInvalidDependency
	ErrCodeCycle               = compiler.ErrCycle
)

// LoadSchema loads a CUE schema from a file or a directory and compiles
// it. A directory is loaded as one CUE package; every file contributes to
// the top-level schema field.
//
// In LoadModeFailFast the first error is returned. In LoadModeCollectAll
// every compile error is returned; load errors still stop early since
// nothing can be compiled without a schema.
func LoadSchema(path string, reg *recipes.Registry, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema path not found: %s", path)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing schema path: %v", err)}}
	}

	result := &LoadResult{Path: path, FileCount: 1}
	if info.IsDir() {
		result.Schema, result.FileCount, err = loadSchemaDir(path, reg)
	} else {
		result.Schema, err = compiler.LoadSchemaFile(path, reg)
	}
	if err != nil {
		return nil, []error{convertLoadError(err)}
	}

	if mode == LoadModeCollectAll {
		if errs := compiler.Validate(result.Schema); len(errs) > 0 {
			out := make([]error, len(errs))
			for i, ce := range errs {
				out[i] = convertCompileError(ce)
			}
			return result, out
		}
	}

	result.Compiled, err = compiler.Compile(result.Schema)
	if err != nil {
		return result, []error{convertCompileError(err)}
	}
	return result, nil
}

// loadSchemaDir builds the CUE package in dir and loads its schema field.
func loadSchemaDir(dir string, reg *recipes.Registry) (ir.Schema, int, error) {
	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, 0, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(files) == 0 {
		return nil, 0, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, len(files), &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	if inst := instances[0]; inst.Err != nil {
		return nil, len(files), cueLoadError(inst.Err)
	}

	value := cuecontext.New().BuildInstance(instances[0])
	if err := value.Err(); err != nil {
		return nil, len(files), cueLoadError(err)
	}
	schemaVal := value.LookupPath(cue.ParsePath(compiler.SchemaField))
	if !schemaVal.Exists() {
		return nil, len(files), &LoadError{Code: ErrCodeLoadFailed, Message: "schema field is required"}
	}
	s, err := compiler.LoadSchema(schemaVal, reg)
	return s, len(files), err
}

// FindCUEFiles returns the .cue files directly inside dir.
func FindCUEFiles(dir string) ([]string, error) {
	return filepath.Glob(filepath.Join(dir, "*.cue"))
}

// NewEngine builds the reducer engine over a loaded schema.
func (r *LoadResult) NewEngine(opts ...engine.Option) (*engine.Engine, error) {
	eng, err := engine.NewFromCompiled(r.Compiled, opts...)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeRefreshFailed, Message: err.Error()}
	}
	return eng, nil
}

func cueLoadError(err error) *LoadError {
	le := &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
	if errs := cueerrors.Errors(err); len(errs) > 0 {
		le.Message = errs[0].Error()
		if pos := cueerrors.Positions(errs[0]); len(pos) > 0 {
			le.Pos = pos[0]
		}
	}
	return le
}

// convertLoadError converts a schema loading error to a LoadError with
// position info.
func convertLoadError(err error) *LoadError {
	var le *LoadError
	if errors.As(err, &le) {
		return le
	}
	var cle *compiler.LoadError
	if errors.As(err, &cle) {
		return &LoadError{Code: ErrCodeLoadFailed, Name: cle.Field, Message: cle.Message, Pos: cle.Pos}
	}
	return &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
}

// convertCompileError keeps the compiler's code and offending name.
func convertCompileError(err error) *LoadError {
	var ce *compiler.CompileError
	if errors.As(err, &ce) {
		return &LoadError{Code: ce.Code, Name: ce.Name, Message: ce.Message}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
}

// errorCode extracts the code and message from a loading error.
func errorCode(err error) (string, string) {
	var le *LoadError
	if errors.As(err, &le) {
		msg := le.Message
		if le.Name != "" {
			msg = le.Name + ": " + msg
		}
		return le.Code, msg
	}
	return ErrCodeGeneric, err.Error()
}

// loadEngine loads a schema fail-fast and builds its engine.
func loadEngine(path string, opts ...engine.Option) (*LoadResult, *engine.Engine, error) {
	res, errs := LoadSchema(path, recipes.NewRegistry(), LoadModeFailFast)
	if len(errs) > 0 {
		return nil, nil, errs[0]
	}
	eng, err := res.NewEngine(opts...)
	if err != nil {
		return nil, nil, err
	}
	return res, eng, nil
}
