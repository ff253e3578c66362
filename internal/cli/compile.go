package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/compiler"
	"github.com/roach88/strata/internal/recipes"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult describes a compiled schema.
type CompilationResult struct {
	Names        []NameInfo   `json:"names"`
	Actions      []ActionInfo `json:"actions"`
	RefreshOrder []string     `json:"refresh_order"`
}

// NameInfo is one compiled schema name.
type NameInfo struct {
	Name       string   `json:"name"`
	Kind       string   `json:"kind"`
	Path       string   `json:"path"`
	Source     string   `json:"source,omitempty"`
	Props      []string `json:"props,omitempty"`
	Dependents []string `json:"dependents,omitempty"`
}

// ActionInfo is one user-named action type and the entry that handles it.
type ActionInfo struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <schema>",
		Short: "Compile a CUE schema and report its names and dependencies",
		Long: `Compile a declarative CUE schema (a file, or a directory holding one CUE
package) and report every name with its kind, storage path and dependents,
the user-named action types, and the full refresh order.

All schema errors are reported, not just the first.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the compiled schema as JSON to this file")

	return cmd
}

func runCompile(opts *CompileOptions, schemaPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	loadResult, loadErrors := LoadSchema(schemaPath, recipes.NewRegistry(), LoadModeCollectAll)
	if loadResult == nil {
		code, message := errorCode(loadErrors[0])
		return outputCompileError(formatter, code, message, nil)
	}
	formatter.VerboseLog("Loaded %d CUE file(s) from %s", loadResult.FileCount, schemaPath)

	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}

	result := describeSchema(loadResult.Compiled)
	for _, n := range result.Names {
		formatter.VerboseLog("Compiled %s: %s", n.Kind, n.Name)
	}

	if opts.Output != "" {
		if err := writeCompiledToFile(result, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

// describeSchema flattens a compiled schema in registration order.
func describeSchema(s *compiler.Schema) *CompilationResult {
	result := &CompilationResult{
		Names:        make([]NameInfo, 0, len(s.Order)),
		Actions:      make([]ActionInfo, 0, len(s.Actions)),
		RefreshOrder: s.AllDependents,
	}

	for _, name := range s.Order {
		n := s.Names[name]
		info := NameInfo{
			Name:       n.Name,
			Kind:       string(n.Kind),
			Path:       n.Path.String(),
			Source:     n.Source,
			Dependents: n.Dependents,
		}
		for _, p := range n.Props {
			info.Props = append(info.Props, p.Name)
		}
		result.Names = append(result.Names, info)
	}

	for _, typ := range slices.Sorted(maps.Keys(s.Actions)) {
		a := s.Actions[typ]
		result.Actions = append(result.Actions, ActionInfo{Type: a.Type, Name: a.Name, Kind: string(a.Kind)})
	}
	return result
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d name(s), %d action type(s)\n\n", len(result.Names), len(result.Actions))

	if len(result.Names) > 0 {
		fmt.Fprintln(w, "Names:")
		for _, n := range result.Names {
			path := n.Path
			if path == "" {
				path = "(root)"
			}
			line := fmt.Sprintf("  %s: %s at %s", n.Name, n.Kind, path)
			if n.Source != "" {
				line += " <- " + n.Source
			}
			if len(n.Props) > 0 {
				line += " <- " + strings.Join(n.Props, ", ")
			}
			if len(n.Dependents) > 0 {
				line += " -> " + strings.Join(n.Dependents, ", ")
			}
			fmt.Fprintln(w, line)
		}
		fmt.Fprintln(w)
	}

	if len(result.Actions) > 0 {
		fmt.Fprintln(w, "Actions:")
		for _, a := range result.Actions {
			fmt.Fprintf(w, "  %s -> %s (%s)\n", a.Type, a.Name, a.Kind)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Refresh order: %s\n", strings.Join(result.RefreshOrder, ", "))

	if outputFile != "" {
		fmt.Fprintf(w, "Wrote compiled schema to %s\n", outputFile)
	}
	return nil
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message), nil)
}

// outputCompileErrors outputs every compile error.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	exitErr := NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))

	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := errorCode(err)
			cliErrors[i] = CLIError{Code: code, Message: message}
		}
		if err := writeResponse(formatter.Writer, CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors,
		}); err != nil {
			return err
		}
		return exitErr
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		code, message := errorCode(err)
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}
	return exitErr
}

// writeCompiledToFile writes the compilation result as indented JSON.
func writeCompiledToFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling compiled schema: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
