package repo

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/telemetry"
)

// FormatVersion is the repo layout version recorded in Repo.Version.
const FormatVersion = 1

// DefaultHistory caps branch length when Options.History is not positive.
const DefaultHistory = 1000

// MasterBranch is the branch a fresh repo starts on.
const MasterBranch = "master"

// Options configures history retention.
type Options struct {
	// History is the maximum number of states kept per branch.
	History int
}

// Repo is a set of branches with one checked out.
//
// INVARIANTS:
//   - CurrentBranch names an entry of Branches
//   - A Repo value is never modified after Reduce returns it
type Repo struct {
	Version       int
	Options       Options
	CurrentBranch string
	Branches      map[string]*Branch
}

// Branch is one bounded timeline.
//
// INVARIANTS:
//   - len(States) == len(Actions) <= Options.History
//   - CurrentIndex is a valid index into States, or -1 iff States is empty
type Branch struct {
	Live         bool
	CurrentIndex int
	States       []ir.Object
	Actions      []ir.Action
}

// Current returns the checked-out branch.
func (r *Repo) Current() *Branch {
	return r.Branches[r.CurrentBranch]
}

// BranchNames lists branch names in sorted order.
func (r *Repo) BranchNames() []string {
	return slices.Sorted(maps.Keys(r.Branches))
}

// Len returns the number of states on the branch.
func (b *Branch) Len() int {
	return len(b.States)
}

// State returns the checked-out state, or nil on an empty branch.
func (b *Branch) State() ir.Object {
	if b.CurrentIndex < 0 || b.CurrentIndex >= len(b.States) {
		return nil
	}
	return b.States[b.CurrentIndex]
}

func emptyBranch() *Branch {
	return &Branch{Live: true, CurrentIndex: -1}
}

// clone copies the branch with its own backing arrays. States and actions
// themselves are immutable and shared.
func (b *Branch) clone() *Branch {
	return &Branch{
		Live:         b.Live,
		CurrentIndex: b.CurrentIndex,
		States:       slices.Clone(b.States),
		Actions:      slices.Clone(b.Actions),
	}
}

// truncated returns a copy holding [0, CurrentIndex].
func (b *Branch) truncated() *Branch {
	n := b.CurrentIndex + 1
	return &Branch{
		Live:         b.Live,
		CurrentIndex: b.CurrentIndex,
		States:       slices.Clone(b.States[:n]),
		Actions:      slices.Clone(b.Actions[:n]),
	}
}

func (r *Repo) shallowCopy() *Repo {
	return &Repo{
		Version:       r.Version,
		Options:       r.Options,
		CurrentBranch: r.CurrentBranch,
		Branches:      maps.Clone(r.Branches),
	}
}

// Head returns the checked-out state of the current branch, or nil when the
// repo is nil or the branch is empty.
func Head(r *Repo) ir.Object {
	if r == nil {
		return nil
	}
	b := r.Current()
	if b == nil {
		return nil
	}
	return b.State()
}

// StateReducer is the pure state reducer a repo replays.
type StateReducer interface {
	Reduce(state ir.Object, a ir.Action) (ir.Object, error)
	InitialState() ir.Object
}

// Reducer reduces repo actions and dispatches everything else to the
// current branch.
type Reducer struct {
	state   StateReducer
	opts    Options
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// Option configures a Reducer.
type Option func(*Reducer)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Reducer) {
		r.logger = l
	}
}

// WithMetrics records branch and eviction activity on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Reducer) {
		r.metrics = m
	}
}

// NewReducer creates a repo reducer over state.
func NewReducer(state StateReducer, opts Options, ropts ...Option) *Reducer {
	if opts.History <= 0 {
		opts.History = DefaultHistory
	}
	rd := &Reducer{
		state:  state,
		opts:   opts,
		logger: slog.Default(),
	}
	for _, opt := range ropts {
		opt(rd)
	}
	return rd
}

// Options returns the effective options.
func (rd *Reducer) Options() Options {
	return rd.opts
}

// Init returns a fresh repo: branch master holding the initial state and
// an Init sentinel action.
func (rd *Reducer) Init() *Repo {
	r := &Repo{
		Version:       FormatVersion,
		Options:       rd.opts,
		CurrentBranch: MasterBranch,
		Branches: map[string]*Branch{
			MasterBranch: {
				Live:         true,
				CurrentIndex: 0,
				States:       []ir.Object{rd.state.InitialState()},
				Actions:      []ir.Action{ir.Init{}},
			},
		},
	}
	rd.metrics.RecordRepo(len(r.Branches), 1)
	return r
}

// Reduce applies a to r and returns the new repo. A nil repo is initialized
// first; a nil or Init action then returns it as is. On error r is returned
// unchanged along with the error.
func (rd *Reducer) Reduce(r *Repo, a ir.Action) (*Repo, error) {
	if r == nil {
		r = rd.Init()
		if _, isInit := a.(ir.Init); isInit || a == nil {
			return r, nil
		}
	}
	if a == nil {
		return r, fmt.Errorf("nil action")
	}

	next := r.shallowCopy()
	var err error
	switch act := a.(type) {
	case ir.CreateBranch:
		err = next.createBranch(act.Branch)
	case ir.SwitchBranch:
		err = next.switchBranch(act.Branch)
	case ir.SaveBranch:
		err = next.saveBranch(act.Branch)
	case ir.ResetBranch:
		err = next.resetBranch(act.Branch)
	case ir.RemoveBranch:
		err = next.removeBranch(act.Branch)
	case ir.GoForward:
		err = next.move(act.Steps, 1)
	case ir.GoBack:
		err = next.move(act.Steps, -1)
	case ir.GoLive:
		next.goLive()
	default:
		err = rd.dispatch(next, a)
	}
	if err != nil {
		rd.logger.Warn("repo action rejected",
			"type", a.ActionType(),
			"branch", r.CurrentBranch,
			"error", err,
		)
		return r, err
	}

	rd.metrics.RecordRepo(len(next.Branches), next.Current().Len())
	return next, nil
}

func checkName(name string) error {
	if name == "" {
		return newError(ErrCodeInvalidBranchName, "", "branch name must not be empty")
	}
	return nil
}

func (r *Repo) branch(name string) (*Branch, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	b, ok := r.Branches[name]
	if !ok {
		return nil, newError(ErrCodeBranchNotFound, name, "branch does not exist")
	}
	return b, nil
}

func (r *Repo) createBranch(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if _, exists := r.Branches[name]; exists {
		return newError(ErrCodeBranchExists, name, "branch already exists")
	}
	r.Branches[name] = emptyBranch()
	return nil
}

func (r *Repo) switchBranch(name string) error {
	if _, err := r.branch(name); err != nil {
		return err
	}
	r.CurrentBranch = name
	return nil
}

// saveBranch stores the current branch, truncated at its checkout, under
// name. The current branch keeps its redo tail.
func (r *Repo) saveBranch(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	r.Branches[name] = r.Current().truncated()
	return nil
}

// resetBranch discards the redo tail of the named branch.
func (r *Repo) resetBranch(name string) error {
	b, err := r.branch(name)
	if err != nil {
		return err
	}
	r.Branches[name] = b.truncated()
	return nil
}

func (r *Repo) removeBranch(name string) error {
	if _, err := r.branch(name); err != nil {
		return err
	}
	if name == r.CurrentBranch {
		return newError(ErrCodeRemoveCurrentBranch, name, "cannot remove the current branch")
	}
	delete(r.Branches, name)
	return nil
}

// move shifts the checkout by steps in direction dir, clamped to the
// branch, and pins it.
func (r *Repo) move(steps, dir int) error {
	if steps < 0 {
		return newError(ErrCodeInvalidSteps, r.CurrentBranch, "steps must not be negative, got %d", steps)
	}
	b := r.Current().clone()
	b.Live = false
	if n := len(b.States); n > 0 {
		// Clamp before multiplying so huge step counts cannot overflow.
		steps = min(steps, n)
		b.CurrentIndex = min(max(b.CurrentIndex+dir*steps, 0), n-1)
	}
	r.Branches[r.CurrentBranch] = b
	return nil
}

func (r *Repo) goLive() {
	b := r.Current().clone()
	b.Live = true
	b.CurrentIndex = len(b.States) - 1
	r.Branches[r.CurrentBranch] = b
}

// dispatch reduces a against the tail state of the current branch and
// appends the result, evicting from the front past the history cap.
func (rd *Reducer) dispatch(r *Repo, a ir.Action) error {
	b := r.Current().clone()

	var tail ir.Object
	if n := len(b.States); n > 0 {
		tail = b.States[n-1]
	}
	state, err := rd.state.Reduce(tail, a)
	if err != nil {
		return err
	}

	b.States = append(b.States, state)
	b.Actions = append(b.Actions, a)

	evicted := 0
	limit := r.Options.History
	if limit <= 0 {
		limit = rd.opts.History
	}
	for len(b.States) > limit {
		b.States[0] = nil
		b.Actions[0] = nil
		b.States = b.States[1:]
		b.Actions = b.Actions[1:]
		b.CurrentIndex = max(b.CurrentIndex-1, 0)
		evicted++
	}

	if b.Live || b.CurrentIndex < 0 {
		b.CurrentIndex = len(b.States) - 1
	}
	r.Branches[r.CurrentBranch] = b

	if evicted > 0 {
		rd.metrics.RecordEvictions(evicted)
	}
	rd.logger.Debug("repo dispatch",
		"type", a.ActionType(),
		"branch", r.CurrentBranch,
		"index", b.CurrentIndex,
		"length", len(b.States),
		"evicted", evicted,
	)
	return nil
}
