package ir

// Kind discriminates schema entries.
type Kind string

const (
	KindValue       Kind = "value"
	KindCustomValue Kind = "customValue"
	KindFormula     Kind = "formula"
	KindCollection  Kind = "collection"
	KindView        Kind = "view"
	KindCustom      Kind = "custom"
	KindSchema      Kind = "schema"
)

// Valid reports whether k is a known entry kind.
func (k Kind) Valid() bool {
	switch k {
	case KindValue, KindCustomValue, KindFormula, KindCollection, KindView, KindCustom, KindSchema:
		return true
	}
	return false
}

// Derived reports whether nodes of this kind are recomputed from other nodes.
func (k Kind) Derived() bool {
	return k == KindFormula || k == KindView
}

// Props carries the current values of a derived node's declared props,
// keyed by the prop name as written in the schema.
type Props map[string]Value

// Record is one document of a collection or view, as presented to view
// recipes.
type Record struct {
	ID  string
	Doc Value
}

// FormulaFunc computes a derived scalar. It must be pure.
type FormulaFunc func(props Props) (Value, error)

// ViewFunc computes a derived collection from its source records (sorted
// by id) and props. It must be pure and must not modify source.
type ViewFunc func(source []Record, props Props) ([]Record, error)

// ValueReducer computes the next value of a value/customValue slot.
type ValueReducer func(old Value, a Custom) (Value, error)

// PrepareFunc normalizes the payload of a customValue action at
// construction time.
type PrepareFunc func(payload Value) (Value, error)

// CustomReducer mutates the subtree rooted at a custom entry's path.
type CustomReducer func(sub *Subtree, a Custom) error

// Schema is a declarative set of named entries. Keys are compiled in sorted
// order, so map iteration order never leaks into compiled artifacts.
type Schema map[string]Entry

// Entry is one named slot of a schema. Which fields apply depends on Kind:
//
//	value        Init, ActionType (optional), Reducer (optional), Transient
//	customValue  Init, ActionType, Reducer, Prepare (optional)
//	formula      Props, Formula
//	collection   Transient
//	view         Source, Props, View
//	custom       ActionType, Custom
//	schema       Schema
//
// Path optionally overrides the storage location relative to the enclosing
// schema ("a.b"); the default is the entry's key.
type Entry struct {
	Kind Kind
	Path string

	Init       Value
	ActionType string
	Reducer    ValueReducer
	Prepare    PrepareFunc

	// Transient entries are excluded from the persistable projection.
	Transient bool

	Source  string
	Props   []string
	Formula FormulaFunc
	View    ViewFunc

	Custom CustomReducer
	Schema Schema
}

// ValueEntry declares a plain value slot.
func ValueEntry(init Value) Entry {
	return Entry{Kind: KindValue, Init: init}
}

// CollectionEntry declares an id-keyed document collection.
func CollectionEntry() Entry {
	return Entry{Kind: KindCollection}
}

// ViewEntry declares a view over source.
func ViewEntry(source string, fn ViewFunc, props ...string) Entry {
	return Entry{Kind: KindView, Source: source, View: fn, Props: props}
}

// FormulaEntry declares a formula over props.
func FormulaEntry(fn FormulaFunc, props ...string) Entry {
	return Entry{Kind: KindFormula, Formula: fn, Props: props}
}

// SchemaEntry declares a nested sub-schema.
func SchemaEntry(s Schema) Entry {
	return Entry{Kind: KindSchema, Schema: s}
}

// Records lists the documents of a collection object sorted by id.
// Non-object input yields no records.
func Records(v Value) []Record {
	obj, ok := v.(Object)
	if !ok {
		return nil
	}
	keys := obj.SortedKeys()
	out := make([]Record, len(keys))
	for i, k := range keys {
		out[i] = Record{ID: k, Doc: obj[k]}
	}
	return out
}

// RecordsObject builds an id-keyed collection object. Later records with a
// duplicate id win.
func RecordsObject(recs []Record) Object {
	out := make(Object, len(recs))
	for _, r := range recs {
		doc := r.Doc
		if doc == nil {
			doc = Null{}
		}
		out[r.ID] = doc
	}
	return out
}
