package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/strata/internal/ir"
)

// GoldenDir is where golden snapshots live, relative to the test package.
const GoldenDir = "testdata/golden"

// Snapshot renders a result as canonical JSON: the trace and the final
// printable state, plus the checkout in repo mode.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	trace := make(ir.Array, len(result.Trace))
	for i, ev := range result.Trace {
		obj := ir.Object{
			"seq":    ir.Int(ev.Seq),
			"action": ir.String(ev.Action),
			"result": ir.String(ev.Result),
		}
		if len(ev.Args) > 0 {
			obj["args"] = ev.Args
		}
		if ev.Error != "" {
			obj["error"] = ir.String(ev.Error)
		}
		trace[i] = obj
	}

	snap := ir.Object{
		"scenario": ir.String(scenarioName),
		"trace":    trace,
		"state":    result.State,
	}
	if result.Branch != "" {
		snap["branch"] = ir.String(result.Branch)
		snap["index"] = ir.Int(result.Index)
	}
	return ir.MarshalCanonical(snap)
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(scenario, opts...)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against its golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
