package triage

import (
	"context"
	"errors"
	"sync"
)

type scriptedClassifier struct {
	mu      sync.Mutex
	outputs []*ClassifierOutput
	err     error
	calls   int
	seen    [][]Message
}

func (s *scriptedClassifier) ClassifyCase(_ context.Context, history []Message) (*ClassifierOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.seen = append(s.seen, append([]Message(nil), history...))
	if s.err != nil {
		return nil, s.err
	}
	if len(s.outputs) == 0 {
		return nil, errors.New("scriptedClassifier: no output left")
	}
	out := s.outputs[0]
	if len(s.outputs) > 1 {
		s.outputs = s.outputs[1:]
	}
	return out, nil
}

type countingModel struct {
	mu      sync.Mutex
	reply   string
	err     error
	calls   int
	prompts []string
}

func (c *countingModel) Complete(_ context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.prompts = append(c.prompts, prompt)
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

type mapStore struct {
	mu     sync.Mutex
	states map[string]*CaseState
	puts   int
}

func newMapStore() *mapStore {
	return &mapStore{states: make(map[string]*CaseState)}
}

func (m *mapStore) Get(_ context.Context, threadID string) (*CaseState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[threadID]
	if !ok {
		return nil, ErrThreadNotFound
	}
	return st.Clone(), nil
}

func (m *mapStore) Put(_ context.Context, st *CaseState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var current int64
	if prev, ok := m.states[st.ThreadID]; ok {
		current = prev.Version
	}
	if st.Version != current {
		return ErrConflict
	}
	st.Version++
	m.states[st.ThreadID] = st.Clone()
	m.puts++
	return nil
}

func verdict(decision Decision, synthesis, question string) *ClassifierOutput {
	out := &ClassifierOutput{Decision: string(decision)}
	if synthesis != "" {
		out.CaseSynthesis = &synthesis
	}
	if question != "" {
		out.QuestionToHuman = &question
	}
	return out
}
