package triage

import "context"

// Store persists case states keyed by thread id.
//
// Get returns ErrThreadNotFound for unknown threads. Put must reject a state
// whose Version differs from the stored one with ErrConflict, and bumps
// Version on success.
type Store interface {
	Get(ctx context.Context, threadID string) (*CaseState, error)
	Put(ctx context.Context, st *CaseState) error
}
