package triage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// maxStepsPerTurn bounds node dispatches inside one turn. The longest legal
// path is ask_human -> llm_router -> terminal.
const maxStepsPerTurn = 4

type Config struct {
	ClarificationCap   int
	SystemPrompt       string
	EmergencyPrompt    string
	DifferentialPrompt string
}

// DefaultConfig returns the stock prompts and clarification cap.
func DefaultConfig() Config {
	return Config{
		ClarificationCap:   DefaultClarificationCap,
		SystemPrompt:       RouterPrompt,
		EmergencyPrompt:    EmergencyPrompt,
		DifferentialPrompt: DifferentialPrompt,
	}
}

// Suspension is returned when the machine needs more information from the user.
type Suspension struct {
	Question string
}

// Outcome describes where a turn stopped.
type Outcome struct {
	ThreadID    string
	Node        Node
	Suspended   *Suspension
	FinalAnswer string
	// Escalated is set when a clarification request was overridden because
	// the thread ran out of clarification rounds.
	Escalated bool
	State     *CaseState
}

type Option func(*Machine)

func WithLogger(log zerolog.Logger) Option {
	return func(m *Machine) { m.log = log }
}

// Machine drives case states through llm_router, ask_human and the terminal
// specialist nodes. Turns on the same thread are serialised.
type Machine struct {
	store      Store
	classifier *Classifier
	responder  *Responder
	cfg        Config
	log        zerolog.Logger

	mu    sync.Mutex
	locks map[string]*threadLock
}

type threadLock struct {
	mu   sync.Mutex
	refs int
}

func NewMachine(store Store, router CaseClassifier, specialist TextModel, cfg Config, opts ...Option) *Machine {
	if cfg.ClarificationCap <= 0 {
		cfg.ClarificationCap = DefaultClarificationCap
	}
	def := DefaultConfig()
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = def.SystemPrompt
	}
	if cfg.EmergencyPrompt == "" {
		cfg.EmergencyPrompt = def.EmergencyPrompt
	}
	if cfg.DifferentialPrompt == "" {
		cfg.DifferentialPrompt = def.DifferentialPrompt
	}

	m := &Machine{
		store: store,
		cfg:   cfg,
		log:   zerolog.Nop(),
		locks: make(map[string]*threadLock),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.classifier = NewClassifier(router, m.log)
	m.responder = NewResponder(specialist, cfg.EmergencyPrompt, cfg.DifferentialPrompt, m.log)
	return m
}

// Start feeds a new user message into the thread, creating the thread on
// first use.
func (m *Machine) Start(ctx context.Context, threadID, text string) (*Outcome, error) {
	unlock := m.lock(threadID)
	defer unlock()

	st, err := m.store.Get(ctx, threadID)
	switch {
	case errors.Is(err, ErrThreadNotFound):
		st = NewCaseState(threadID, m.cfg.SystemPrompt)
	case err != nil:
		return nil, fmt.Errorf("load thread %s: %w", threadID, err)
	case st.Suspended():
		return nil, ErrPendingQuestion
	case st.Complete():
		return nil, ErrConversationComplete
	}

	staged := st.Clone()
	staged.appendMessage(RoleHuman, text)
	return m.run(ctx, staged, NodeRouter, nil)
}

// Resume answers the pending clarification question of a suspended thread.
func (m *Machine) Resume(ctx context.Context, threadID, answer string) (*Outcome, error) {
	unlock := m.lock(threadID)
	defer unlock()

	st, err := m.store.Get(ctx, threadID)
	if err != nil {
		if errors.Is(err, ErrThreadNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load thread %s: %w", threadID, err)
	}
	if !st.Suspended() {
		return nil, ErrNotSuspended
	}
	return m.run(ctx, st.Clone(), NodeAskHuman, &answer)
}

// State returns the last checkpoint of a thread.
func (m *Machine) State(ctx context.Context, threadID string) (*CaseState, error) {
	return m.store.Get(ctx, threadID)
}

// Reset replaces the thread with a fresh case, keeping its id.
func (m *Machine) Reset(ctx context.Context, threadID string) (*CaseState, error) {
	unlock := m.lock(threadID)
	defer unlock()

	fresh := NewCaseState(threadID, m.cfg.SystemPrompt)
	st, err := m.store.Get(ctx, threadID)
	switch {
	case errors.Is(err, ErrThreadNotFound):
	case err != nil:
		return nil, fmt.Errorf("load thread %s: %w", threadID, err)
	default:
		fresh.Version = st.Version
		fresh.CreatedAt = st.CreatedAt
	}
	if err := m.store.Put(ctx, fresh); err != nil {
		return nil, fmt.Errorf("reset thread %s: %w", threadID, err)
	}
	return fresh, nil
}

// run dispatches nodes on the staged state until the thread parks at
// ask_human or reaches END, then checkpoints once. Nothing is persisted if any
// node fails.
func (m *Machine) run(ctx context.Context, st *CaseState, node Node, answer *string) (*Outcome, error) {
	out := &Outcome{ThreadID: st.ThreadID}

	for steps := 0; ; steps++ {
		if steps >= maxStepsPerTurn {
			return nil, fmt.Errorf("%w: turn did not settle after %d steps", ErrRouterInvariant, steps)
		}
		next, err := m.step(ctx, st, node, answer, out)
		if err != nil {
			return nil, err
		}
		answer = nil

		if next == NodeAskHuman || next == NodeEnd {
			st.Next = next
			break
		}
		out.Node = next
		node = next
	}

	st.UpdatedAt = time.Now()
	if err := m.store.Put(ctx, st); err != nil {
		return nil, fmt.Errorf("checkpoint thread %s: %w", st.ThreadID, err)
	}

	if st.Suspended() {
		out.Node = NodeAskHuman
		out.Suspended = &Suspension{Question: deref(st.QuestionToHuman)}
	} else {
		out.FinalAnswer = deref(st.FinalAnswer)
	}
	out.State = st.Clone()
	return out, nil
}

// step executes a single node against st and returns the node to go to.
func (m *Machine) step(ctx context.Context, st *CaseState, node Node, answer *string, out *Outcome) (Node, error) {
	switch node {
	case NodeRouter:
		if err := m.classifier.Classify(ctx, st); err != nil {
			return "", err
		}
		next, count, err := Route(st.Decision, st.InteractionCount, m.cfg.ClarificationCap)
		if err != nil {
			return "", err
		}
		if st.Decision == DecisionAskHuman && next == NodeEmergency {
			out.Escalated = true
			m.log.Warn().Str("thread_id", st.ThreadID).Int("interaction_count", count).
				Msg("clarification cap reached, routing to emergencial")
		}
		st.InteractionCount = count
		m.log.Debug().Str("thread_id", st.ThreadID).Str("next", string(next)).
			Int("interaction_count", count).Msg("routed")
		return next, nil

	case NodeAskHuman:
		if answer == nil {
			return NodeAskHuman, nil
		}
		if err := answerQuestion(st, *answer); err != nil {
			return "", err
		}
		return NodeRouter, nil

	case NodeEmergency, NodeDifferential:
		if err := m.responder.Respond(ctx, node, st); err != nil {
			return "", err
		}
		return NodeEnd, nil
	}
	return "", fmt.Errorf("%w: unknown node %q", ErrRouterInvariant, node)
}

func (m *Machine) lock(threadID string) func() {
	m.mu.Lock()
	l, ok := m.locks[threadID]
	if !ok {
		l = &threadLock{}
		m.locks[threadID] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, threadID)
		}
		m.mu.Unlock()
	}
}
