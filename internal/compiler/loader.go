package compiler

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/recipes"
)

// SchemaField is the top-level CUE field holding a declarative schema.
const SchemaField = "schema"

// LoadError is a declarative schema error with its CUE source position.
type LoadError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// LoadSchemaFile reads a CUE file and loads its top-level schema field.
func LoadSchemaFile(path string, reg *recipes.Registry) (ir.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	v := cuecontext.New().CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	schemaVal := v.LookupPath(cue.ParsePath(SchemaField))
	if !schemaVal.Exists() {
		return nil, &LoadError{Field: SchemaField, Message: "schema field is required", Pos: v.Pos()}
	}
	return LoadSchema(schemaVal, reg)
}

// LoadSchema converts a CUE struct of entries into an ir.Schema. Views and
// formulas are bound to recipes by name; custom and customValue entries
// need Go reducers and cannot be declared in CUE.
//
// Example:
//
//	schema: {
//		todos: kind: "collection"
//		open: {kind: "view", source: "todos", recipe: "where", args: where: done: false}
//		openCount: {kind: "formula", props: ["open"], recipe: "count"}
//		filter: {kind: "value", init: "all", actionType: "setFilter"}
//	}
func LoadSchema(v cue.Value, reg *recipes.Registry) (ir.Schema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	schema := make(ir.Schema)
	for iter.Next() {
		entry, err := loadEntry(iter.Selector().Unquoted(), iter.Value(), reg)
		if err != nil {
			return nil, err
		}
		schema[iter.Selector().Unquoted()] = entry
	}
	return schema, nil
}

func loadEntry(key string, v cue.Value, reg *recipes.Registry) (ir.Entry, error) {
	var entry ir.Entry

	kind, err := lookupString(v, "kind", true)
	if err != nil {
		return entry, err
	}
	entry.Kind = ir.Kind(kind)

	if entry.Path, err = lookupString(v, "path", false); err != nil {
		return entry, err
	}
	if entry.ActionType, err = lookupString(v, "actionType", false); err != nil {
		return entry, err
	}

	if pv := v.LookupPath(cue.ParsePath("persistent")); pv.Exists() {
		persistent, err := pv.Bool()
		if err != nil {
			return entry, formatCUEError(err)
		}
		entry.Transient = !persistent
	}

	switch entry.Kind {
	case ir.KindValue:
		if iv := v.LookupPath(cue.ParsePath("init")); iv.Exists() {
			if entry.Init, err = CUEToValue(iv); err != nil {
				return entry, err
			}
		}
	case ir.KindCollection:
	case ir.KindView, ir.KindFormula:
		if entry.Source, err = lookupString(v, "source", false); err != nil {
			return entry, err
		}
		if entry.Props, err = lookupStrings(v, "props"); err != nil {
			return entry, err
		}
		if err := bindRecipe(&entry, v, reg); err != nil {
			return entry, err
		}
	case ir.KindSchema:
		sv := v.LookupPath(cue.ParsePath("schema"))
		if !sv.Exists() {
			return entry, &LoadError{Field: key + ".schema", Message: "schema entry requires schema", Pos: v.Pos()}
		}
		if entry.Schema, err = LoadSchema(sv, reg); err != nil {
			return entry, err
		}
	case ir.KindCustom, ir.KindCustomValue:
		return entry, &LoadError{
			Field:   key + ".kind",
			Message: fmt.Sprintf("%s entries need a Go reducer and cannot be declared in CUE", entry.Kind),
			Pos:     v.LookupPath(cue.ParsePath("kind")).Pos(),
		}
	default:
		return entry, &LoadError{
			Field:   key + ".kind",
			Message: fmt.Sprintf("unknown entry kind %q", kind),
			Pos:     v.LookupPath(cue.ParsePath("kind")).Pos(),
		}
	}
	return entry, nil
}

func bindRecipe(entry *ir.Entry, v cue.Value, reg *recipes.Registry) error {
	name, err := lookupString(v, "recipe", true)
	if err != nil {
		return err
	}

	args := ir.Object{}
	if av := v.LookupPath(cue.ParsePath("args")); av.Exists() {
		val, err := CUEToValue(av)
		if err != nil {
			return err
		}
		obj, ok := val.(ir.Object)
		if !ok {
			return &LoadError{Field: "args", Message: "args must be a struct", Pos: av.Pos()}
		}
		args = obj
	}

	pos := v.LookupPath(cue.ParsePath("recipe")).Pos()
	if entry.Kind == ir.KindView {
		fn, err := reg.View(name, args)
		if err != nil {
			return &LoadError{Field: "recipe", Message: err.Error(), Pos: pos}
		}
		entry.View = fn
		return nil
	}
	fn, err := reg.Formula(name, args)
	if err != nil {
		return &LoadError{Field: "recipe", Message: err.Error(), Pos: pos}
	}
	entry.Formula = fn
	return nil
}

// CUEToValue converts a concrete CUE value into an ir.Value. Floats are
// rejected.
func CUEToValue(v cue.Value) (ir.Value, error) {
	switch v.Kind() {
	case cue.NullKind:
		return ir.Null{}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Bool(b), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Int(n), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.String(s), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		arr := ir.Array{}
		for iter.Next() {
			elem, err := CUEToValue(iter.Value())
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		obj := ir.Object{}
		for iter.Next() {
			elem, err := CUEToValue(iter.Value())
			if err != nil {
				return nil, err
			}
			obj[iter.Selector().Unquoted()] = elem
		}
		return obj, nil
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		n, err := ir.Number(f)
		if err != nil {
			return nil, &LoadError{Field: "value", Message: err.Error(), Pos: v.Pos()}
		}
		return n, nil
	}
	return nil, &LoadError{Field: "value", Message: fmt.Sprintf("value must be concrete, got %v", v.IncompleteKind()), Pos: v.Pos()}
}

func lookupString(v cue.Value, field string, required bool) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		if required {
			return "", &LoadError{Field: field, Message: field + " is required", Pos: v.Pos()}
		}
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func lookupStrings(v cue.Value, field string) ([]string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, nil
	}
	iter, err := fv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &LoadError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
