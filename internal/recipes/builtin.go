package recipes

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/roach88/strata/internal/ir"
)

var builtinViews = map[string]ViewRecipe{
	"identity": identityView,
	"where":    whereView,
	"limit":    limitView,
}

var builtinFormulas = map[string]FormulaRecipe{
	"count": countFormula,
	"sum":   sumFormula,
	"ids":   idsFormula,
	"get":   getFormula,
	"not":   notFormula,
}

func identityView(ir.Object) (ir.ViewFunc, error) {
	return func(source []ir.Record, _ ir.Props) ([]ir.Record, error) {
		return source, nil
	}, nil
}

func whereView(args ir.Object) (ir.ViewFunc, error) {
	clause, ok := args["where"]
	if !ok {
		return nil, fmt.Errorf("where: missing args.where")
	}
	pred, err := ParsePredicate(clause)
	if err != nil {
		return nil, fmt.Errorf("where: %w", err)
	}
	return func(source []ir.Record, props ir.Props) ([]ir.Record, error) {
		out := make([]ir.Record, 0, len(source))
		for _, rec := range source {
			if Match(pred, rec.Doc, props) {
				out = append(out, rec)
			}
		}
		return out, nil
	}, nil
}

// limitView keeps the first n records, by id or by args.by (args.desc
// reverses).
func limitView(args ir.Object) (ir.ViewFunc, error) {
	n, ok := args["n"].(ir.Int)
	if !ok || n < 0 {
		return nil, fmt.Errorf("limit: args.n must be a non-negative integer")
	}
	by, err := optionalString(args, "by")
	if err != nil {
		return nil, fmt.Errorf("limit: %w", err)
	}
	desc, _ := args["desc"].(ir.Bool)

	return func(source []ir.Record, _ ir.Props) ([]ir.Record, error) {
		recs := slices.Clone(source)
		if by != "" || desc {
			sortRecords(recs, by, bool(desc))
		}
		if int(n) < len(recs) {
			recs = recs[:n]
		}
		return recs, nil
	}, nil
}

func countFormula(args ir.Object) (ir.FormulaFunc, error) {
	of, err := optionalString(args, "of")
	if err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}
	return func(props ir.Props) (ir.Value, error) {
		v, err := subject(props, of)
		if err != nil {
			return nil, fmt.Errorf("count: %w", err)
		}
		switch val := v.(type) {
		case ir.Object:
			return ir.Int(len(val)), nil
		case ir.Array:
			return ir.Int(len(val)), nil
		case nil, ir.Null:
			return ir.Int(0), nil
		}
		return nil, fmt.Errorf("count: cannot count %T", v)
	}, nil
}

// sumFormula adds args.field over every document; non-numeric fields are
// skipped.
func sumFormula(args ir.Object) (ir.FormulaFunc, error) {
	field, err := optionalString(args, "field")
	if err != nil || field == "" {
		return nil, fmt.Errorf("sum: args.field must be a non-empty string")
	}
	of, err := optionalString(args, "of")
	if err != nil {
		return nil, fmt.Errorf("sum: %w", err)
	}
	path := ir.ParsePath(field)
	return func(props ir.Props) (ir.Value, error) {
		v, err := subject(props, of)
		if err != nil {
			return nil, fmt.Errorf("sum: %w", err)
		}
		var total ir.Value = ir.Int(0)
		for _, rec := range ir.Records(v) {
			n, ok := ir.GetIn(rec.Doc, path)
			if !ok || !ir.IsNumber(n) {
				continue
			}
			if total, err = ir.Add(total, n); err != nil {
				return nil, fmt.Errorf("sum: %w", err)
			}
		}
		return total, nil
	}, nil
}

func idsFormula(args ir.Object) (ir.FormulaFunc, error) {
	by, err := optionalString(args, "sortBy")
	if err != nil {
		return nil, fmt.Errorf("ids: %w", err)
	}
	of, err := optionalString(args, "of")
	if err != nil {
		return nil, fmt.Errorf("ids: %w", err)
	}
	desc, _ := args["desc"].(ir.Bool)
	return func(props ir.Props) (ir.Value, error) {
		v, err := subject(props, of)
		if err != nil {
			return nil, fmt.Errorf("ids: %w", err)
		}
		recs := ir.Records(v)
		if by != "" || desc {
			sortRecords(recs, by, bool(desc))
		}
		out := make(ir.Array, len(recs))
		for i, rec := range recs {
			out[i] = ir.String(rec.ID)
		}
		return out, nil
	}, nil
}

func getFormula(args ir.Object) (ir.FormulaFunc, error) {
	of, err := optionalString(args, "of")
	if err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}
	return func(props ir.Props) (ir.Value, error) {
		return subject(props, of)
	}, nil
}

// notFormula negates a boolean prop; Null counts as false.
func notFormula(args ir.Object) (ir.FormulaFunc, error) {
	of, err := optionalString(args, "of")
	if err != nil {
		return nil, fmt.Errorf("not: %w", err)
	}
	return func(props ir.Props) (ir.Value, error) {
		v, err := subject(props, of)
		if err != nil {
			return nil, fmt.Errorf("not: %w", err)
		}
		switch b := v.(type) {
		case ir.Bool:
			return !b, nil
		case nil, ir.Null:
			return ir.Bool(true), nil
		}
		return nil, fmt.Errorf("not: %T is not a boolean", v)
	}, nil
}

// subject picks the prop a formula operates on: args.of when given,
// otherwise the only declared prop.
func subject(props ir.Props, of string) (ir.Value, error) {
	if of != "" {
		v, ok := props[of]
		if !ok {
			return nil, fmt.Errorf("prop %q not declared", of)
		}
		return v, nil
	}
	if len(props) != 1 {
		return nil, fmt.Errorf("args.of is required with %d props", len(props))
	}
	for _, v := range props {
		return v, nil
	}
	return nil, nil
}

func optionalString(args ir.Object, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", nil
	}
	s, ok := v.(ir.String)
	if !ok {
		return "", fmt.Errorf("args.%s must be a string", key)
	}
	return string(s), nil
}

// sortRecords orders records by field (missing sorts first), ties broken
// by id. An empty field sorts by id alone.
func sortRecords(recs []ir.Record, field string, desc bool) {
	path := ir.ParsePath(field)
	slices.SortStableFunc(recs, func(a, b ir.Record) int {
		c := 0
		if field != "" {
			av, _ := ir.GetIn(a.Doc, path)
			bv, _ := ir.GetIn(b.Doc, path)
			c = Compare(av, bv)
		}
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		if desc {
			return -c
		}
		return c
	})
}

// Compare totally orders values: missing/Null < Bool < numbers < String <
// Array < Object. Int and Float compare by numeric value. Arrays and objects compare by length only.
func Compare(a, b ir.Value) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch av := a.(type) {
	case ir.Bool:
		bv := b.(ir.Bool)
		switch {
		case av == bv:
			return 0
		case !bool(av):
			return -1
		}
		return 1
	case ir.Int, ir.Float:
		return ir.CompareNumbers(av, b)
	case ir.String:
		return cmp.Compare(av, b.(ir.String))
	case ir.Array:
		return cmp.Compare(len(av), len(b.(ir.Array)))
	case ir.Object:
		return cmp.Compare(len(av), len(b.(ir.Object)))
	}
	return 0
}

func rank(v ir.Value) int {
	switch v.(type) {
	case ir.Bool:
		return 1
	case ir.Int, ir.Float:
		return 2
	case ir.String:
		return 3
	case ir.Array:
		return 4
	case ir.Object:
		return 5
	}
	return 0
}
