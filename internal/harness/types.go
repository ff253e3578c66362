package harness

import "github.com/roach88/strata/internal/ir"

// Outcomes of a dispatched step.
const (
	ResultApplied  = "applied"
	ResultNoop     = "noop"
	ResultRejected = "rejected"
)

// TraceEvent records one dispatched step.
type TraceEvent struct {
	Seq    int64     `json:"seq"`
	Action string    `json:"action"`
	Args   ir.Object `json:"args,omitempty"`
	Result string    `json:"result"`
	Error  string    `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion matched.
	Pass bool `json:"pass"`

	// Trace lists setup and flow steps in dispatch order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`

	// State is the final printable state.
	State ir.Object `json:"state"`

	// Branch and Index describe the final checkout in repo mode.
	Branch string `json:"branch,omitempty"`
	Index  int    `json:"index,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a dispatched step.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
