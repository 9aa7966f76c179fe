package triage

import (
	"errors"
	"fmt"
)

var (
	ErrThreadNotFound       = errors.New("thread not found")
	ErrConflict             = errors.New("checkpoint version conflict")
	ErrNotSuspended         = errors.New("thread is not waiting for an answer")
	ErrPendingQuestion      = errors.New("thread is waiting for an answer to a pending question")
	ErrConversationComplete = errors.New("conversation already has a final answer")
	ErrRouterInvariant      = errors.New("router reached an unroutable branch")
)

// PreconditionError is returned when a node is invoked on a state it cannot handle.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return "precondition failed: " + e.Reason
}

// InvalidDecisionError is returned when a decision is outside the routable set.
type InvalidDecisionError struct {
	Value string
}

func (e *InvalidDecisionError) Error() string {
	return fmt.Sprintf("invalid decision %q: must be one of %v", e.Value, Decisions)
}

// MissingContextError is returned when a terminal node has nothing to brief the responder with.
type MissingContextError struct {
	Node Node
}

func (e *MissingContextError) Error() string {
	return fmt.Sprintf("%s: no case synthesis and no conversation history", e.Node)
}
