// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package workflow

import "time"

// EventType names an execution lifecycle event.
type EventType string

const (
	EventExecutionStarted   EventType = "executionStarted"
	EventExecutionCompleted EventType = "executionCompleted"
	EventExecutionFailed    EventType = "executionFailed"
	EventExecutionCancelled EventType = "executionCancelled"
	EventStepStarted        EventType = "stepStarted"
	EventStepCompleted      EventType = "stepCompleted"
	EventStepFailed         EventType = "stepFailed"
	EventWorkflowCompleted  EventType = "workflowCompleted"
)

// Event is one lifecycle notification. Delivery is synchronous at emission
// time, at least once, in the emitting goroutine.
type Event struct {
	Type        EventType `json:"type"`
	ExecutionID string    `json:"execution_id"`
	Name        string    `json:"name"`
	Step        string    `json:"step,omitempty"`
	Error       string    `json:"error,omitempty"`
	Time        time.Time `json:"time"`
}

// Subscribe registers an observer for all lifecycle events. Observers run
// inline during emission, so they must be fast and must not call back into
// the engine.
func (e *Engine) Subscribe(fn func(Event)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscribers = append(e.subscribers, fn)
}

// emit delivers an event to every subscriber, synchronously.
func (e *Engine) emit(ev Event) {
	ev.Time = time.Now()

	e.mu.Lock()
	subs := make([]func(Event), len(e.subscribers))
	copy(subs, e.subscribers)
	e.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}
