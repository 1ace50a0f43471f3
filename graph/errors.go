package graph

import (
	"errors"
	"fmt"

	"github.com/nodeforge/graphrun/label"
)

// Sentinel errors returned from graph construction, grounded on this
// codebase's ErrEntryPointNotSet/ErrNodeNotFound/ErrNoOutgoingEdge.
var (
	ErrEntryPointNotSet = errors.New("graph: entry point not set")
	ErrNodeNotFound     = errors.New("graph: node not found")
	ErrNoOutgoingEdge   = errors.New("graph: node has no outgoing edge")
	ErrUnreachableNode  = errors.New("graph: node unreachable from entry")
)

// LabelConflictError reports a duplicate node registration.
type LabelConflictError struct {
	Label string
}

func (e *LabelConflictError) Error() string {
	return fmt.Sprintf("graph: label %q already registered", e.Label)
}

// ValidationError wraps a graph-construction failure with the offending
// label for context.
type ValidationError struct {
	Label string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Label == "" {
		return fmt.Sprintf("graph: validation failed: %v", e.Err)
	}
	return fmt.Sprintf("graph: validation failed at %q: %v", e.Label, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NodeError wraps the error a node returned, tagging it with the node's
// label and the round in which it occurred.
type NodeError struct {
	Label string
	Step  int
	Err   error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("graph: node %q failed at step %d: %v", e.Label, e.Step, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// CheckpointError wraps a checkpoint store failure.
type CheckpointError struct {
	Op  string
	Err error
}

func (e *CheckpointError) Error() string {
	return fmt.Sprintf("graph: checkpoint %s failed: %v", e.Op, e.Err)
}

func (e *CheckpointError) Unwrap() error { return e.Err }

// LabelResolutionError reports a persisted label string with no
// corresponding interned label on resume — never silently dropped unless
// the caller opted into lossy resume via Config.AllowLossyResume.
type LabelResolutionError struct {
	Text string
}

func (e *LabelResolutionError) Error() string {
	return fmt.Sprintf("graph: could not resolve persisted label %q on resume", e.Text)
}

// StepLimitExceededError reports that the executor hit Config.MaxSteps.
type StepLimitExceededError struct {
	MaxSteps int
}

func (e *StepLimitExceededError) Error() string {
	return fmt.Sprintf("graph: exceeded max steps (%d)", e.MaxSteps)
}

// CancelledError reports cooperative cancellation.
type CancelledError struct {
	Err error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("graph: cancelled: %v", e.Err)
}

func (e *CancelledError) Unwrap() error { return e.Err }

// Interrupt is returned by Invoke/Stream when execution paused at an
// InterruptBefore/InterruptAfter boundary. CheckpointID names the
// checkpoint a caller can resume from to continue past the interrupt,
// grounded on this codebase's GraphInterrupt / NodeInterrupt types.
type Interrupt struct {
	Label        string
	CheckpointID string
	Before       bool // true if interrupted before running Label, false if after
}

func (e *Interrupt) Error() string {
	when := "after"
	if e.Before {
		when = "before"
	}
	return fmt.Sprintf("graph: interrupted %s node %q (resume from checkpoint %s)", when, e.Label, e.CheckpointID)
}

func labelListToStrings(labels []label.Label) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = label.AsStr(l)
	}
	return out
}
