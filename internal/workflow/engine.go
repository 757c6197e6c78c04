// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/jeranaias/assistant-core/internal/config"
	"github.com/jeranaias/assistant-core/internal/metrics"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrUnknownSkill is returned for a skill name with no registration.
	ErrUnknownSkill = errors.New("unknown skill")

	// ErrUnknownWorkflow is returned for a workflow name with no
	// registration.
	ErrUnknownWorkflow = errors.New("unknown workflow")

	// ErrNotRunning is returned when cancelling an execution that is not
	// in the running state.
	ErrNotRunning = errors.New("execution is not running")

	// ErrUnknownExecution is returned for an execution id not in the
	// table.
	ErrUnknownExecution = errors.New("unknown execution")
)

// ValidationError reports missing required parameters. It is raised before
// any execution record is created and is never retried.
type ValidationError struct {
	Skill   string
	Missing []string
}

// Error implements the error interface, naming every missing field.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("skill %q missing required parameters: %s", e.Skill, strings.Join(e.Missing, ", "))
}

// SchemaError reports parameters rejected by a skill's JSON Schema.
type SchemaError struct {
	Skill    string
	Problems []string
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	return fmt.Sprintf("skill %q parameters failed validation: %s", e.Skill, strings.Join(e.Problems, "; "))
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine runs skills and workflows and keeps their execution records.
type Engine struct {
	cfg     config.WorkflowConfig
	log     *zap.Logger
	metrics *metrics.Metrics

	mu          sync.Mutex
	skills      map[string]*Skill
	workflows   map[string]*Workflow
	executions  map[string]*Execution
	stats       map[string]*Stats
	subscribers []func(Event)

	// sleep backs wait steps; tests replace it.
	sleep func(time.Duration)
}

// NewEngine creates an empty execution engine. m may be nil.
func NewEngine(cfg config.WorkflowConfig, m *metrics.Metrics, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		cfg:        cfg,
		log:        log.Named("workflow"),
		metrics:    m,
		skills:     make(map[string]*Skill),
		workflows:  make(map[string]*Workflow),
		executions: make(map[string]*Execution),
		stats:      make(map[string]*Stats),
		sleep:      time.Sleep,
	}
}

// RegisterSkill adds or replaces a skill registration.
func (e *Engine) RegisterSkill(s *Skill) error {
	if s == nil || s.Name == "" {
		return fmt.Errorf("skill must have a name")
	}
	if s.Handler == nil {
		return fmt.Errorf("skill %q has no handler", s.Name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.skills[s.Name] = s
	return nil
}

// RegisterWorkflow adds or replaces a workflow registration.
func (e *Engine) RegisterWorkflow(w *Workflow) error {
	if w == nil || w.Name == "" {
		return fmt.Errorf("workflow must have a name")
	}
	for _, step := range w.Steps {
		if step.Name == "" {
			return fmt.Errorf("workflow %q has an unnamed step", w.Name)
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.workflows[w.Name] = w
	return nil
}

// Skills returns the registered skill names, sorted.
func (e *Engine) Skills() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.skills))
	for name := range e.skills {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// =============================================================================
// SINGLE-SKILL EXECUTION
// =============================================================================

// ExecuteSkill validates parameters and runs the named skill, recording the
// execution. Validation failures surface before any record is created.
func (e *Engine) ExecuteSkill(ctx context.Context, name string, params map[string]any) (any, error) {
	e.mu.Lock()
	skill, ok := e.skills[name]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSkill, name)
	}

	if err := validateParams(skill, params); err != nil {
		return nil, err
	}

	exec := e.newExecution(name, "skill")
	e.transition(exec, StatusRunning)
	e.emit(Event{Type: EventExecutionStarted, ExecutionID: exec.ID, Name: name})

	result, _, err := e.invokeSkill(ctx, skill, params, 0, 0)
	e.settle(exec, result, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// invokeSkill runs a skill handler with a timeout and bounded retries,
// reporting how many attempts were made. timeoutSeconds and maxRetries of
// zero inherit the engine defaults.
func (e *Engine) invokeSkill(ctx context.Context, skill *Skill, params map[string]any, timeoutSeconds, maxRetries int) (any, int, error) {
	if timeoutSeconds == 0 {
		timeoutSeconds = e.cfg.StepTimeoutSeconds
	}
	if maxRetries == 0 {
		maxRetries = e.cfg.StepMaxRetries
	}

	attempts := 1 + maxRetries
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		callCtx := ctx
		cancel := context.CancelFunc(func() {})
		if timeoutSeconds > 0 {
			callCtx, cancel = context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second)
		}

		result, err := skill.Handler(callCtx, params)
		cancel()
		if err == nil {
			return result, attempt, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, attempt, lastErr
		}
	}
	return nil, attempts, lastErr
}

// validateParams checks required-key presence, then the optional JSON
// Schema. Presence is key existence: false and 0 are present values.
func validateParams(skill *Skill, params map[string]any) error {
	var missing []string
	for _, key := range skill.RequiredParameters {
		if _, ok := params[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Skill: skill.Name, Missing: missing}
	}

	if len(skill.ParameterSchema) > 0 {
		result, err := gojsonschema.Validate(
			gojsonschema.NewBytesLoader(skill.ParameterSchema),
			gojsonschema.NewGoLoader(params),
		)
		if err != nil {
			return fmt.Errorf("skill %q schema: %w", skill.Name, err)
		}
		if !result.Valid() {
			problems := make([]string, 0, len(result.Errors()))
			for _, desc := range result.Errors() {
				problems = append(problems, desc.String())
			}
			return &SchemaError{Skill: skill.Name, Problems: problems}
		}
	}
	return nil
}

// =============================================================================
// WORKFLOW EXECUTION
// =============================================================================

// ExecuteWorkflow runs the named workflow's steps strictly in declaration
// order. A step failure aborts the remaining steps; their records are never
// created. Cancellation is advisory: it is observed between steps, not
// mid-step.
func (e *Engine) ExecuteWorkflow(ctx context.Context, name string, params map[string]any) (*Execution, error) {
	e.mu.Lock()
	wf, ok := e.workflows[name]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorkflow, name)
	}

	exec := e.newExecution(name, "workflow")
	exec.Steps = make(map[string]*StepExecution)
	e.transition(exec, StatusRunning)
	e.emit(Event{Type: EventExecutionStarted, ExecutionID: exec.ID, Name: name})

	results := make(map[string]any)
	for i, step := range wf.Steps {
		if e.status(exec) == StatusCancelled {
			e.log.Info("workflow cancelled between steps",
				zap.String("workflow", name), zap.String("next_step", step.Name))
			e.settle(exec, nil, nil)
			return exec, nil
		}

		stepExec := &StepExecution{
			StepName:  step.Name,
			Status:    StepPending,
			DependsOn: step.DependsOn,
		}
		e.mu.Lock()
		exec.Steps[step.Name] = stepExec
		stepExec.Status = StepRunning
		e.mu.Unlock()
		e.emit(Event{Type: EventStepStarted, ExecutionID: exec.ID, Name: name, Step: step.Name})

		result, proceed, err := e.runStep(ctx, stepExec, step, params)
		if err != nil {
			e.mu.Lock()
			stepExec.Status = StepFailed
			stepExec.Error = err.Error()
			e.mu.Unlock()
			e.emit(Event{Type: EventStepFailed, ExecutionID: exec.ID, Name: name, Step: step.Name, Error: err.Error()})

			stepErr := fmt.Errorf("step %q: %w", step.Name, err)
			e.settle(exec, nil, stepErr)
			return exec, stepErr
		}

		e.mu.Lock()
		stepExec.Status = StepCompleted
		stepExec.Result = result
		e.mu.Unlock()
		results[step.Name] = result
		e.emit(Event{Type: EventStepCompleted, ExecutionID: exec.ID, Name: name, Step: step.Name})

		// A false condition skips everything after it.
		if !proceed {
			e.skipRemaining(exec, wf.Steps[i+1:])
			break
		}
	}

	// A cancellation arriving during the final step still settles as
	// cancelled; only a cleanly completed run broadcasts workflowCompleted.
	if e.settle(exec, results, nil) == StatusCompleted {
		e.emit(Event{Type: EventWorkflowCompleted, ExecutionID: exec.ID, Name: name})
	}
	return exec, nil
}

// runStep executes one step. The bool result is false when a condition
// step evaluated falsy and the remaining steps should be skipped.
func (e *Engine) runStep(ctx context.Context, stepExec *StepExecution, step Step, params map[string]any) (any, bool, error) {
	stepParams := params
	if len(step.Params) > 0 {
		stepParams = make(map[string]any, len(params)+len(step.Params))
		for k, v := range params {
			stepParams[k] = v
		}
		for k, v := range step.Params {
			stepParams[k] = v
		}
	}

	switch step.Type {
	case StepSkill, "":
		e.mu.Lock()
		skill, ok := e.skills[step.Skill]
		e.mu.Unlock()
		if !ok {
			return nil, true, fmt.Errorf("%w: %s", ErrUnknownSkill, step.Skill)
		}
		if err := validateParams(skill, stepParams); err != nil {
			return nil, true, err
		}
		result, attempts, err := e.invokeSkill(ctx, skill, stepParams, step.TimeoutSeconds, step.MaxRetries)
		e.mu.Lock()
		stepExec.Attempts = attempts
		e.mu.Unlock()
		return result, true, err

	case StepCondition:
		ok := truthy(stepParams[step.Condition])
		return ok, ok, nil

	case StepWait:
		e.sleep(time.Duration(step.WaitMs) * time.Millisecond)
		return nil, true, nil

	case StepParallel:
		// Declared parallel groups currently run sequentially, matching
		// top-level ordering guarantees.
		groupResults := make(map[string]any, len(step.Steps))
		for _, child := range step.Steps {
			childExec := &StepExecution{StepName: child.Name}
			result, _, err := e.runStep(ctx, childExec, child, stepParams)
			if err != nil {
				return nil, true, fmt.Errorf("child %q: %w", child.Name, err)
			}
			groupResults[child.Name] = result
		}
		return groupResults, true, nil

	default:
		return nil, true, fmt.Errorf("unknown step type %q", step.Type)
	}
}

// skipRemaining records every undeclared-yet step as skipped.
func (e *Engine) skipRemaining(exec *Execution, steps []Step) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, step := range steps {
		exec.Steps[step.Name] = &StepExecution{
			StepName:  step.Name,
			Status:    StepSkipped,
			DependsOn: step.DependsOn,
		}
	}
}

// truthy decides condition-step outcomes: nil, false, zero numbers, and
// empty strings are falsy.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	default:
		return true
	}
}

// =============================================================================
// EXECUTION TABLE
// =============================================================================

// newExecution creates a pending record and stores it in the table.
func (e *Engine) newExecution(name, kind string) *Execution {
	exec := &Execution{
		ID:        uuid.NewString(),
		Name:      name,
		Kind:      kind,
		Status:    StatusPending,
		StartTime: time.Now(),
	}
	e.mu.Lock()
	e.executions[exec.ID] = exec
	e.mu.Unlock()
	return exec
}

func (e *Engine) status(exec *Execution) Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return exec.Status
}

// transition moves a non-terminal execution to the given status.
func (e *Engine) transition(exec *Execution, s Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if exec.Status.Terminal() {
		return
	}
	exec.Status = s
}

// settle finalizes an execution: status, end time, stats, metrics, and the
// completion event. A cancellation that won the race is preserved. The
// returned status is the one the record settled on.
func (e *Engine) settle(exec *Execution, result any, err error) Status {
	now := time.Now()

	e.mu.Lock()
	if !exec.Status.Terminal() {
		if err != nil {
			exec.Status = StatusFailed
			exec.Error = err.Error()
		} else {
			exec.Status = StatusCompleted
			exec.Result = result
		}
		exec.EndTime = &now
	}
	status := exec.Status
	errMsg := exec.Error
	elapsed := now.Sub(exec.StartTime)
	e.updateStatsLocked(exec.Name, status, elapsed)
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.Executions.WithLabelValues(exec.Name, string(status)).Inc()
		e.metrics.ExecutionDuration.WithLabelValues(exec.Name).Observe(elapsed.Seconds())
	}

	switch status {
	case StatusCompleted:
		e.emit(Event{Type: EventExecutionCompleted, ExecutionID: exec.ID, Name: exec.Name})
	case StatusFailed:
		e.emit(Event{Type: EventExecutionFailed, ExecutionID: exec.ID, Name: exec.Name, Error: errMsg})
	}
	return status
}

// updateStatsLocked maintains the per-name running average. Must hold the
// lock.
func (e *Engine) updateStatsLocked(name string, status Status, elapsed time.Duration) {
	st, ok := e.stats[name]
	if !ok {
		st = &Stats{}
		e.stats[name] = st
	}
	st.Total++
	switch status {
	case StatusCompleted:
		st.Completed++
	case StatusFailed:
		st.Failed++
	case StatusCancelled:
		st.Cancelled++
	}
	ms := float64(elapsed.Milliseconds())
	st.AverageDurationMs += (ms - st.AverageDurationMs) / float64(st.Total)
}

// CancelExecution flips a running execution to cancelled and stamps its end
// time. It does not interrupt in-flight step work; the owning goroutine
// observes the flag between steps.
func (e *Engine) CancelExecution(id string) error {
	e.mu.Lock()
	exec, ok := e.executions[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownExecution, id)
	}
	if exec.Status != StatusRunning {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrNotRunning, id, exec.Status)
	}
	now := time.Now()
	exec.Status = StatusCancelled
	exec.EndTime = &now
	e.mu.Unlock()

	e.emit(Event{Type: EventExecutionCancelled, ExecutionID: id, Name: exec.Name})
	return nil
}

// GetExecution returns the record for id.
func (e *Engine) GetExecution(id string) (*Execution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	exec, ok := e.executions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownExecution, id)
	}
	return exec, nil
}

// ListExecutions returns every retained record, newest first.
func (e *Engine) ListExecutions() []*Execution {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Execution, 0, len(e.executions))
	for _, exec := range e.executions {
		out = append(out, exec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out
}

// ClearExecutions drops all retained records. Records are never collected
// automatically; this is the only way they leave the table.
func (e *Engine) ClearExecutions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.executions)
	e.executions = make(map[string]*Execution)
	return n
}

// StatsFor returns a copy of the aggregate stats for name.
func (e *Engine) StatsFor(name string) Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.stats[name]; ok {
		return *st
	}
	return Stats{}
}
