package recipes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/ir"
)

func TestMatch(t *testing.T) {
	doc := ir.Object{
		"done":  ir.Bool(false),
		"owner": ir.String("ana"),
		"meta":  ir.Object{"prio": ir.Int(2)},
	}
	props := ir.Props{"me": ir.String("ana")}

	tests := []struct {
		name string
		pred Predicate
		want bool
	}{
		{"nil matches", nil, true},
		{"equals", Equals{Field: "done", Value: ir.Bool(false)}, true},
		{"equals mismatch", Equals{Field: "done", Value: ir.Bool(true)}, false},
		{"nested field", Equals{Field: "meta.prio", Value: ir.Int(2)}, true},
		{"missing field never matches null", Equals{Field: "gone", Value: ir.Null{}}, false},
		{"prop equals", PropEquals{Field: "owner", Prop: "me"}, true},
		{"prop undeclared", PropEquals{Field: "owner", Prop: "other"}, false},
		{"empty and", And{}, true},
		{"and", And{Predicates: []Predicate{
			Equals{Field: "done", Value: ir.Bool(false)},
			PropEquals{Field: "owner", Prop: "me"},
		}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.pred, doc, props))
		})
	}
}

func TestParsePredicate(t *testing.T) {
	pred, err := ParsePredicate(ir.Object{
		"owner": ir.Object{"$prop": ir.String("me")},
		"done":  ir.Bool(true),
	})
	require.NoError(t, err)

	assert.Equal(t, And{Predicates: []Predicate{
		Equals{Field: "done", Value: ir.Bool(true)},
		PropEquals{Field: "owner", Prop: "me"},
	}}, pred)
	assert.Equal(t, []string{"me"}, Props(pred))

	single, err := ParsePredicate(ir.Object{"done": ir.Bool(true)})
	require.NoError(t, err)
	assert.Equal(t, Equals{Field: "done", Value: ir.Bool(true)}, single)
}

func TestParsePredicateErrors(t *testing.T) {
	_, err := ParsePredicate(ir.Int(1))
	assert.Error(t, err)

	_, err = ParsePredicate(ir.Object{"x": ir.Object{"$prop": ir.Int(1)}})
	assert.Error(t, err)
}
