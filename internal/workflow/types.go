// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package workflow

import (
	"context"
	"encoding/json"
	"time"
)

// =============================================================================
// STATUSES
// =============================================================================

// Status is the lifecycle status of an execution.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// StepStatus is the lifecycle status of one step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// StepType discriminates the step kinds.
type StepType string

const (
	// StepSkill invokes a registered skill.
	StepSkill StepType = "skill"
	// StepCondition checks a workflow parameter; a falsy value skips all
	// remaining steps.
	StepCondition StepType = "condition"
	// StepWait pauses for a fixed duration.
	StepWait StepType = "wait"
	// StepParallel groups child steps. The group is currently executed
	// sequentially in declaration order, the same as top-level steps.
	StepParallel StepType = "parallel"
)

// =============================================================================
// DEFINITIONS
// =============================================================================

// SkillFunc is a skill's handler. It must honor ctx cancellation.
type SkillFunc func(ctx context.Context, params map[string]any) (any, error)

// Skill is a registered unit of work.
type Skill struct {
	Name        string
	Description string

	// RequiredParameters must be present in the call's parameter map.
	// Presence is key existence: explicit false or 0 values count.
	RequiredParameters []string

	// ParameterSchema optionally holds a JSON Schema the parameters are
	// validated against after the required-key check.
	ParameterSchema json.RawMessage

	Handler SkillFunc
}

// Step is one declared workflow step.
type Step struct {
	Name string   `json:"name"`
	Type StepType `json:"type"`

	// Skill names the registered skill for StepSkill steps.
	Skill string `json:"skill,omitempty"`
	// Params overrides the workflow parameters for this step.
	Params map[string]any `json:"params,omitempty"`

	// Condition names the workflow parameter checked by StepCondition.
	Condition string `json:"condition,omitempty"`

	// WaitMs is the pause length for StepWait.
	WaitMs int `json:"wait_ms,omitempty"`

	// Steps are the children of a StepParallel group.
	Steps []Step `json:"steps,omitempty"`

	// DependsOn is recorded on the execution but does not affect order:
	// steps always run in declaration order.
	DependsOn []string `json:"depends_on,omitempty"`

	// TimeoutSeconds and MaxRetries override the engine defaults for
	// this step. Zero means inherit.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
	MaxRetries     int `json:"max_retries,omitempty"`
}

// Workflow is a named sequence of steps.
type Workflow struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Steps       []Step `json:"steps"`
}

// =============================================================================
// EXECUTION RECORDS
// =============================================================================

// StepExecution records one step's run. Immutable once its status is
// terminal.
type StepExecution struct {
	StepName  string     `json:"step_name"`
	Status    StepStatus `json:"status"`
	Attempts  int        `json:"attempts"`
	DependsOn []string   `json:"depends_on,omitempty"`
	Result    any        `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Execution is one skill or workflow run. Records are retained in the
// engine's table until the caller clears them; they are never collected
// automatically.
type Execution struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Kind      string     `json:"kind"` // "skill" or "workflow"
	Status    Status     `json:"status"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	// Steps holds one record per step that actually started (or was
	// skipped); steps after an aborting failure are never created.
	Steps map[string]*StepExecution `json:"steps,omitempty"`

	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Stats aggregates executions per skill or workflow name.
type Stats struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`

	// AverageDurationMs is a running average over terminal executions.
	AverageDurationMs float64 `json:"average_duration_ms"`
}
