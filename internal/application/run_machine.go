package application

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// Run lifecycle states.
const (
	StatePending     = "pending"
	StateFetching    = "fetching"
	StateDeriving    = "deriving"
	StateAggregating = "aggregating"
	StatePublishing  = "publishing"
	StatePersisting  = "persisting"
	StateDone        = "done"
	StateFailed      = "failed"
)

// Run lifecycle events.
const (
	eventFetch     = "fetch"
	eventDerive    = "derive"
	eventAggregate = "aggregate"
	eventPublish   = "publish"
	eventPersist   = "persist"
	eventFinish    = "finish"
	eventFail      = "fail"
)

// runContext carries per-run facts the machine's guards need.
type runContext struct {
	RunID  string
	DryRun bool
}

// RunMachine tracks one sync run through its stages. The publish
// transition is guarded on live runs, so a dry run's terminal path is
// pending → fetching → deriving → aggregating → done and the recorded
// history reflects what actually happened.
type RunMachine struct {
	interpreter *statekit.Interpreter[runContext]
	history     []string
	failedAt    string
}

func NewRunMachine(runID string, dryRun bool) (*RunMachine, error) {
	builder := statekit.NewMachine[runContext]("sync-run").
		WithInitial(statekit.StateID(StatePending)).
		WithContext(runContext{RunID: runID, DryRun: dryRun}).
		WithGuard("liveRun", func(ctx runContext, e statekit.Event) bool {
			return !ctx.DryRun
		})

	builder.State(StatePending).
		On(eventFetch).Target(StateFetching).
		On(eventFail).Target(StateFailed).
		Done()

	builder.State(StateFetching).
		On(eventDerive).Target(StateDeriving).
		On(eventFail).Target(StateFailed).
		Done()

	builder.State(StateDeriving).
		On(eventAggregate).Target(StateAggregating).
		On(eventFail).Target(StateFailed).
		Done()

	builder.State(StateAggregating).
		On(eventPublish).Target(StatePublishing).Guard("liveRun").
		On(eventFinish).Target(StateDone).
		On(eventFail).Target(StateFailed).
		Done()

	builder.State(StatePublishing).
		On(eventPersist).Target(StatePersisting).
		On(eventFail).Target(StateFailed).
		Done()

	builder.State(StatePersisting).
		On(eventFinish).Target(StateDone).
		On(eventFail).Target(StateFailed).
		Done()

	builder.State(StateDone).Done()
	builder.State(StateFailed).Done()

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("build run machine: %w", err)
	}

	interpreter := statekit.NewInterpreter(machine)
	interpreter.Start()

	return &RunMachine{
		interpreter: interpreter,
		history:     []string{StatePending},
	}, nil
}

// advance sends an event and reports whether the machine moved. A guarded
// or invalid event leaves the state unchanged.
func (m *RunMachine) advance(event string) bool {
	before := m.Current()
	m.interpreter.Send(statekit.Event{Type: statekit.EventType(event)})
	after := m.Current()
	if after == before {
		return false
	}
	m.history = append(m.history, after)
	return true
}

// fail records which stage the run failed in and moves to failed.
func (m *RunMachine) fail() {
	m.failedAt = m.Current()
	m.advance(eventFail)
}

func (m *RunMachine) Current() string {
	return string(m.interpreter.State().Value)
}

// Report is the per-run outcome surfaced on the CLI and MCP status
// endpoints.
type Report struct {
	State    string   `json:"state"`
	History  []string `json:"history"`
	FailedAt string   `json:"failed_at,omitempty"`
}

func (m *RunMachine) Report() Report {
	history := make([]string, len(m.history))
	copy(history, m.history)
	return Report{
		State:    m.Current(),
		History:  history,
		FailedAt: m.failedAt,
	}
}
