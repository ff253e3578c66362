package recipes

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/roach88/strata/internal/ir"
)

// ErrUnknownRecipe is returned when a recipe name is not registered.
var ErrUnknownRecipe = errors.New("unknown recipe")

// ViewRecipe builds a view function from its args.
type ViewRecipe func(args ir.Object) (ir.ViewFunc, error)

// FormulaRecipe builds a formula function from its args.
type FormulaRecipe func(args ir.Object) (ir.FormulaFunc, error)

// Registry maps recipe names to constructors.
//
// Thread Safety: safe for concurrent use. Registration normally happens
// once at startup, before schemas are loaded.
type Registry struct {
	mu       sync.RWMutex
	views    map[string]ViewRecipe
	formulas map[string]FormulaRecipe
}

// NewRegistry returns a registry preloaded with the built-in recipes.
func NewRegistry() *Registry {
	r := &Registry{
		views:    make(map[string]ViewRecipe),
		formulas: make(map[string]FormulaRecipe),
	}
	for name, fn := range builtinViews {
		r.views[name] = fn
	}
	for name, fn := range builtinFormulas {
		r.formulas[name] = fn
	}
	return r
}

// RegisterView adds a view recipe. Names may not be registered twice.
func (r *Registry) RegisterView(name string, fn ViewRecipe) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.views[name]; dup {
		return fmt.Errorf("view recipe %q already registered", name)
	}
	r.views[name] = fn
	return nil
}

// RegisterFormula adds a formula recipe. Names may not be registered twice.
func (r *Registry) RegisterFormula(name string, fn FormulaRecipe) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.formulas[name]; dup {
		return fmt.Errorf("formula recipe %q already registered", name)
	}
	r.formulas[name] = fn
	return nil
}

// View builds the named view function.
func (r *Registry) View(name string, args ir.Object) (ir.ViewFunc, error) {
	r.mu.RLock()
	fn, ok := r.views[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("view %q: %w", name, ErrUnknownRecipe)
	}
	return fn(args)
}

// Formula builds the named formula function.
func (r *Registry) Formula(name string, args ir.Object) (ir.FormulaFunc, error) {
	r.mu.RLock()
	fn, ok := r.formulas[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("formula %q: %w", name, ErrUnknownRecipe)
	}
	return fn(args)
}

// ViewNames lists registered view recipes, sorted.
func (r *Registry) ViewNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.views))
}

// FormulaNames lists registered formula recipes, sorted.
func (r *Registry) FormulaNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.formulas))
}
