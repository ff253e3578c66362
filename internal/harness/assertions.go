package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/strata/internal/engine"
	"github.com/roach88/strata/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s\n", event.Seq, event.Action, event.Result)
		}
	}

	return buf.String()
}

// AssertionContext provides the final state for state assertions.
type AssertionContext struct {
	Engine *engine.Engine
	State  ir.Object
	Branch string
	Index  int
}

// assertTraceContains checks that the trace holds a step of the action
// whose args contain the expected args.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	expected, err := toObject(assertion.Args)
	if err != nil {
		return fmt.Errorf("trace_contains: args: %w", err)
	}
	for _, event := range trace {
		if event.Action == assertion.Action && matchArgs(event.Args, expected) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("action %s with args %v", assertion.Action, assertion.Args),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if actions appear in the specified order.
// Actions don't need to be consecutive (intervening actions are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if positions[event.Action] == 0 {
			positions[event.Action] = i + 1 // 1-indexed for readability
		}
	}

	for _, action := range assertion.Actions {
		if positions[action] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all actions present: %v", assertion.Actions),
				Actual:   fmt.Sprintf("missing action: %s", action),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Actions); i++ {
		prev := assertion.Actions[i-1]
		curr := assertion.Actions[i]

		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", assertion.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks if the action appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Action == assertion.Action {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertFinalState reads a name from the final state and compares it
// structurally with the expected value.
func assertFinalState(actx *AssertionContext, assertion Assertion) error {
	expected, err := ir.FromGo(assertion.Expect)
	if err != nil {
		return fmt.Errorf("final_state: expect: %w", err)
	}
	actual, err := actx.Engine.Get(actx.State, assertion.Name)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("readable name %s", assertion.Name),
			Actual:   err.Error(),
		}
	}
	if !ir.Equal(expected, actual) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s = %s", assertion.Name, render(expected)),
			Actual:   fmt.Sprintf("%s = %s", assertion.Name, render(actual)),
		}
	}
	return nil
}

func assertFinalBranch(actx *AssertionContext, assertion Assertion) error {
	if actx.Branch != assertion.Branch {
		return &AssertionError{
			Type:     AssertFinalBranch,
			Expected: fmt.Sprintf("branch %q", assertion.Branch),
			Actual:   fmt.Sprintf("branch %q", actx.Branch),
		}
	}
	if assertion.Index != nil && *assertion.Index != actx.Index {
		return &AssertionError{
			Type:     AssertFinalBranch,
			Expected: fmt.Sprintf("index %d", *assertion.Index),
			Actual:   fmt.Sprintf("index %d", actx.Index),
		}
	}
	return nil
}

// matchArgs reports whether actual contains every expected key with an
// equal value. Extra keys in actual are ignored.
func matchArgs(actual, expected ir.Object) bool {
	for key, want := range expected {
		got, exists := actual[key]
		if !exists || !ir.Equal(got, want) {
			return false
		}
	}
	return true
}

func toObject(m map[string]any) (ir.Object, error) {
	v, err := ir.FromGo(m)
	if err != nil {
		return nil, err
	}
	obj, _ := v.(ir.Object)
	return obj, nil
}

func render(v ir.Value) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState, AssertFinalBranch:
			if actx == nil || actx.Engine == nil {
				err = fmt.Errorf("assertion[%d]: %s requires state context", i, assertion.Type)
			} else if assertion.Type == AssertFinalState {
				err = assertFinalState(actx, assertion)
			} else {
				err = assertFinalBranch(actx, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
