package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/strata/internal/ir"
)

// Scenario defines an executable scenario over one schema.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is the path to the CUE schema file. LoadScenario resolves it
	// relative to the scenario file.
	Schema string `yaml:"schema"`

	// History enables repo mode with the given history cap.
	History int `yaml:"history,omitempty"`

	// Setup steps establish initial state. They must not be rejected.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow is the main sequence of steps.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step dispatches one action.
type Step struct {
	// Action is the action type, e.g. "strata/INSERT" or "setFilter".
	Action string `yaml:"action"`

	// Args holds the envelope fields of the action.
	Args map[string]any `yaml:"args,omitempty"`

	// Expect, when set, checks the outcome of the step.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect is the expected outcome of a step.
type Expect struct {
	// Result is one of applied, noop or rejected.
	Result string `yaml:"result"`

	// Error is the expected error code of a rejected step.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Action is the action type (trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// Args are matched as a subset (trace_contains).
	Args map[string]any `yaml:"args,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected order (trace_order).
	Actions []string `yaml:"actions,omitempty"`

	// Name is the schema name to read (final_state).
	Name string `yaml:"name,omitempty"`

	// Expect is the expected value (final_state), compared structurally.
	Expect any `yaml:"expect,omitempty"`

	// Branch and Index describe the expected checkout (final_branch).
	Branch string `yaml:"branch,omitempty"`
	Index  *int   `yaml:"index,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertFinalBranch   = "final_branch"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected, and the schema path is resolved relative to the file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) {
		scenario.Schema = filepath.Join(filepath.Dir(path), scenario.Schema)
	}
	if _, err := os.Stat(scenario.Schema); err != nil {
		return nil, fmt.Errorf("invalid scenario: schema file not found: %s", scenario.Schema)
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML without touching the filesystem.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if s.History < 0 {
		return fmt.Errorf("history must not be negative")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(step Step) error {
	if step.Action == "" {
		return fmt.Errorf("action is required")
	}
	if _, ok := step.Args["type"]; ok {
		return fmt.Errorf("args must not contain type")
	}
	if step.Expect == nil {
		return nil
	}
	switch step.Expect.Result {
	case ResultApplied, ResultNoop:
		if step.Expect.Error != "" {
			return fmt.Errorf("expect.error requires result %s", ResultRejected)
		}
	case ResultRejected:
	default:
		return fmt.Errorf("expect.result must be applied, noop or rejected, got %q", step.Expect.Result)
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for final_state", index)
		}
		if _, err := ir.FromGo(a.Expect); err != nil {
			return fmt.Errorf("assertions[%d]: expect: %w", index, err)
		}
	case AssertFinalBranch:
		if a.Branch == "" {
			return fmt.Errorf("assertions[%d]: branch is required for final_branch", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// envelope builds the action envelope of a step.
func (s Step) envelope() (ir.Object, error) {
	v, err := ir.FromGo(s.Args)
	if err != nil {
		return nil, err
	}
	env, _ := v.(ir.Object)
	if env == nil {
		env = ir.Object{}
	}
	env["type"] = ir.String(s.Action)
	return env, nil
}
