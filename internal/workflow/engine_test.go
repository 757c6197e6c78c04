// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/assistant-core/internal/config"
)

func newTestEngine() *Engine {
	e := NewEngine(config.WorkflowConfig{StepTimeoutSeconds: 5}, nil, nil)
	e.sleep = func(time.Duration) {}
	return e
}

func registerEcho(t *testing.T, e *Engine, name string, required ...string) *int {
	t.Helper()
	calls := new(int)
	require.NoError(t, e.RegisterSkill(&Skill{
		Name:               name,
		RequiredParameters: required,
		Handler: func(_ context.Context, params map[string]any) (any, error) {
			*calls++
			return params, nil
		},
	}))
	return calls
}

// eventRecorder collects events synchronously.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func TestExecuteSkillSuccess(t *testing.T) {
	e := newTestEngine()
	rec := &eventRecorder{}
	e.Subscribe(rec.record)
	calls := registerEcho(t, e, "task_create", "title")

	result, err := e.ExecuteSkill(context.Background(), "task_create", map[string]any{"title": "buy milk"})
	require.NoError(t, err)
	assert.Equal(t, 1, *calls)
	assert.Equal(t, map[string]any{"title": "buy milk"}, result)

	assert.Equal(t, []EventType{EventExecutionStarted, EventExecutionCompleted}, rec.types())

	st := e.StatsFor("task_create")
	assert.Equal(t, 1, st.Total)
	assert.Equal(t, 1, st.Completed)

	execs := e.ListExecutions()
	require.Len(t, execs, 1)
	assert.Equal(t, StatusCompleted, execs[0].Status)
	assert.NotNil(t, execs[0].EndTime)
}

func TestExecuteSkillValidationNamesMissingFields(t *testing.T) {
	e := newTestEngine()
	calls := registerEcho(t, e, "calendar_create_event", "title", "time")

	_, err := e.ExecuteSkill(context.Background(), "calendar_create_event", map[string]any{})
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ElementsMatch(t, []string{"title", "time"}, verr.Missing)
	assert.Contains(t, err.Error(), "title")
	assert.Contains(t, err.Error(), "time")

	assert.Equal(t, 0, *calls, "validation failure must not run the handler")
	assert.Empty(t, e.ListExecutions(), "no execution record is created on validation failure")
	assert.Equal(t, 0, e.StatsFor("calendar_create_event").Total)
}

func TestExecuteSkillFalseAndZeroArePresent(t *testing.T) {
	e := newTestEngine()
	calls := registerEcho(t, e, "toggle", "enabled", "count")

	_, err := e.ExecuteSkill(context.Background(), "toggle", map[string]any{"enabled": false, "count": 0})
	require.NoError(t, err)
	assert.Equal(t, 1, *calls)
}

func TestExecuteSkillUnknown(t *testing.T) {
	e := newTestEngine()
	_, err := e.ExecuteSkill(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, ErrUnknownSkill)
}

func TestExecuteSkillRetries(t *testing.T) {
	e := NewEngine(config.WorkflowConfig{StepMaxRetries: 2}, nil, nil)

	calls := 0
	require.NoError(t, e.RegisterSkill(&Skill{
		Name: "flaky",
		Handler: func(_ context.Context, _ map[string]any) (any, error) {
			calls++
			if calls < 3 {
				return nil, errors.New("transient")
			}
			return "ok", nil
		},
	}))

	result, err := e.ExecuteSkill(context.Background(), "flaky", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestExecuteSkillSchemaValidation(t *testing.T) {
	e := newTestEngine()
	require.NoError(t, e.RegisterSkill(&Skill{
		Name:               "typed",
		RequiredParameters: []string{"title"},
		ParameterSchema:    json.RawMessage(`{"type": "object", "properties": {"title": {"type": "string"}}}`),
		Handler: func(_ context.Context, _ map[string]any) (any, error) {
			return nil, nil
		},
	}))

	_, err := e.ExecuteSkill(context.Background(), "typed", map[string]any{"title": 123})
	var serr *SchemaError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "typed", serr.Skill)

	_, err = e.ExecuteSkill(context.Background(), "typed", map[string]any{"title": "fine"})
	assert.NoError(t, err)
}

func TestExecuteWorkflowSuccess(t *testing.T) {
	e := newTestEngine()
	rec := &eventRecorder{}
	e.Subscribe(rec.record)
	registerEcho(t, e, "step_skill")

	require.NoError(t, e.RegisterWorkflow(&Workflow{
		Name: "two_steps",
		Steps: []Step{
			{Name: "A", Type: StepSkill, Skill: "step_skill"},
			{Name: "B", Type: StepSkill, Skill: "step_skill", DependsOn: []string{"A"}},
		},
	}))

	exec, err := e.ExecuteWorkflow(context.Background(), "two_steps", map[string]any{"k": "v"})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, exec.Status)
	require.Len(t, exec.Steps, 2)
	assert.Equal(t, StepCompleted, exec.Steps["A"].Status)
	assert.Equal(t, StepCompleted, exec.Steps["B"].Status)
	assert.Equal(t, 1, exec.Steps["A"].Attempts)
	assert.Equal(t, []string{"A"}, exec.Steps["B"].DependsOn, "dependsOn is recorded as metadata")

	types := rec.types()
	assert.Contains(t, types, EventWorkflowCompleted)
	assert.Contains(t, types, EventExecutionCompleted)
}

func TestExecuteWorkflowFailureAbortsRemaining(t *testing.T) {
	e := newTestEngine()
	rec := &eventRecorder{}
	e.Subscribe(rec.record)
	registerEcho(t, e, "ok_skill")
	require.NoError(t, e.RegisterSkill(&Skill{
		Name: "boom",
		Handler: func(_ context.Context, _ map[string]any) (any, error) {
			return nil, errors.New("step exploded")
		},
	}))

	require.NoError(t, e.RegisterWorkflow(&Workflow{
		Name: "abort_chain",
		Steps: []Step{
			{Name: "A", Type: StepSkill, Skill: "ok_skill"},
			{Name: "B", Type: StepSkill, Skill: "boom"},
			{Name: "C", Type: StepSkill, Skill: "ok_skill"},
		},
	}))

	exec, err := e.ExecuteWorkflow(context.Background(), "abort_chain", nil)
	require.Error(t, err)

	assert.Equal(t, StatusFailed, exec.Status)
	assert.Equal(t, StepCompleted, exec.Steps["A"].Status)
	assert.Equal(t, StepFailed, exec.Steps["B"].Status)
	assert.Contains(t, exec.Steps["B"].Error, "step exploded")

	_, created := exec.Steps["C"]
	assert.False(t, created, "steps after the failure are never created")

	assert.Contains(t, rec.types(), EventStepFailed)
	assert.Contains(t, rec.types(), EventExecutionFailed)
	assert.NotContains(t, rec.types(), EventWorkflowCompleted)
}

func TestExecuteWorkflowConditionFalseSkipsRemaining(t *testing.T) {
	e := newTestEngine()
	calls := registerEcho(t, e, "guarded")

	require.NoError(t, e.RegisterWorkflow(&Workflow{
		Name: "conditional",
		Steps: []Step{
			{Name: "check", Type: StepCondition, Condition: "approved"},
			{Name: "act", Type: StepSkill, Skill: "guarded"},
		},
	}))

	exec, err := e.ExecuteWorkflow(context.Background(), "conditional", map[string]any{"approved": false})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, exec.Status)
	assert.Equal(t, StepCompleted, exec.Steps["check"].Status)
	assert.Equal(t, StepSkipped, exec.Steps["act"].Status)
	assert.Equal(t, 0, *calls)

	// Truthy condition lets the chain continue.
	exec, err = e.ExecuteWorkflow(context.Background(), "conditional", map[string]any{"approved": true})
	require.NoError(t, err)
	assert.Equal(t, StepCompleted, exec.Steps["act"].Status)
	assert.Equal(t, 1, *calls)
}

func TestExecuteWorkflowWaitAndParallelSteps(t *testing.T) {
	e := newTestEngine()
	var slept []time.Duration
	e.sleep = func(d time.Duration) { slept = append(slept, d) }
	calls := registerEcho(t, e, "child")

	require.NoError(t, e.RegisterWorkflow(&Workflow{
		Name: "mixed",
		Steps: []Step{
			{Name: "pause", Type: StepWait, WaitMs: 250},
			{Name: "group", Type: StepParallel, Steps: []Step{
				{Name: "g1", Type: StepSkill, Skill: "child"},
				{Name: "g2", Type: StepSkill, Skill: "child"},
			}},
		},
	}))

	exec, err := e.ExecuteWorkflow(context.Background(), "mixed", nil)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, exec.Status)
	assert.Equal(t, []time.Duration{250 * time.Millisecond}, slept)
	assert.Equal(t, 2, *calls, "parallel group children all run, in order")
	assert.Equal(t, StepCompleted, exec.Steps["group"].Status)
}

func TestCancelExecutionAdvisory(t *testing.T) {
	e := newTestEngine()

	var execID string
	e.Subscribe(func(ev Event) {
		if ev.Type == EventExecutionStarted {
			execID = ev.ExecutionID
		}
	})

	// The first step cancels its own execution; the engine observes the
	// flag before the next step, which is never created.
	require.NoError(t, e.RegisterSkill(&Skill{
		Name: "self_cancel",
		Handler: func(_ context.Context, _ map[string]any) (any, error) {
			return nil, e.CancelExecution(execID)
		},
	}))
	after := registerEcho(t, e, "after")

	require.NoError(t, e.RegisterWorkflow(&Workflow{
		Name: "cancellable",
		Steps: []Step{
			{Name: "first", Type: StepSkill, Skill: "self_cancel"},
			{Name: "second", Type: StepSkill, Skill: "after"},
		},
	}))

	exec, err := e.ExecuteWorkflow(context.Background(), "cancellable", nil)
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, exec.Status)
	assert.NotNil(t, exec.EndTime)
	assert.Equal(t, StepCompleted, exec.Steps["first"].Status, "in-flight work is not interrupted")
	_, created := exec.Steps["second"]
	assert.False(t, created)
	assert.Equal(t, 0, *after)
}

func TestCancelDuringFinalStepSuppressesWorkflowCompleted(t *testing.T) {
	e := newTestEngine()

	var execID string
	rec := &eventRecorder{}
	e.Subscribe(func(ev Event) {
		if ev.Type == EventExecutionStarted {
			execID = ev.ExecutionID
		}
		rec.record(ev)
	})

	// The only step cancels its own execution, so the cancellation lands
	// after the step loop with no next step left to observe it.
	require.NoError(t, e.RegisterSkill(&Skill{
		Name: "self_cancel",
		Handler: func(_ context.Context, _ map[string]any) (any, error) {
			return nil, e.CancelExecution(execID)
		},
	}))
	require.NoError(t, e.RegisterWorkflow(&Workflow{
		Name:  "last_gasp",
		Steps: []Step{{Name: "only", Type: StepSkill, Skill: "self_cancel"}},
	}))

	exec, err := e.ExecuteWorkflow(context.Background(), "last_gasp", nil)
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, exec.Status)
	assert.NotContains(t, rec.types(), EventWorkflowCompleted,
		"a cancelled run must not broadcast workflow completion")
	assert.Contains(t, rec.types(), EventExecutionCancelled)
}

func TestCancelExecutionOnlyWhileRunning(t *testing.T) {
	e := newTestEngine()
	registerEcho(t, e, "quick")

	_, err := e.ExecuteSkill(context.Background(), "quick", nil)
	require.NoError(t, err)
	execs := e.ListExecutions()
	require.Len(t, execs, 1)

	err = e.CancelExecution(execs[0].ID)
	assert.ErrorIs(t, err, ErrNotRunning)

	err = e.CancelExecution("no-such-id")
	assert.ErrorIs(t, err, ErrUnknownExecution)
}

func TestClearExecutions(t *testing.T) {
	e := newTestEngine()
	registerEcho(t, e, "quick")

	for i := 0; i < 3; i++ {
		_, err := e.ExecuteSkill(context.Background(), "quick", nil)
		require.NoError(t, err)
	}
	require.Len(t, e.ListExecutions(), 3)

	assert.Equal(t, 3, e.ClearExecutions())
	assert.Empty(t, e.ListExecutions())

	// Stats survive a table clear.
	assert.Equal(t, 3, e.StatsFor("quick").Total)
}

func TestStatsAggregation(t *testing.T) {
	e := newTestEngine()
	registerEcho(t, e, "quick")
	require.NoError(t, e.RegisterSkill(&Skill{
		Name: "boom",
		Handler: func(_ context.Context, _ map[string]any) (any, error) {
			return nil, errors.New("nope")
		},
	}))

	_, _ = e.ExecuteSkill(context.Background(), "quick", nil)
	_, _ = e.ExecuteSkill(context.Background(), "quick", nil)
	_, _ = e.ExecuteSkill(context.Background(), "boom", nil)

	quick := e.StatsFor("quick")
	assert.Equal(t, 2, quick.Total)
	assert.Equal(t, 2, quick.Completed)
	assert.Equal(t, 0, quick.Failed)
	assert.GreaterOrEqual(t, quick.AverageDurationMs, 0.0)

	boom := e.StatsFor("boom")
	assert.Equal(t, 1, boom.Total)
	assert.Equal(t, 1, boom.Failed)
}
