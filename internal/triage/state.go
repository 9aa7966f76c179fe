package triage

import (
	"strings"
	"time"
)

// Role tags the author of a message in the case history.
type Role string

const (
	RoleSystem    Role = "system"
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Decision is the classifier's verdict for the current turn.
type Decision string

const (
	DecisionNone         Decision = ""
	DecisionAskHuman     Decision = "ask_human"
	DecisionEmergency    Decision = "emergencial"
	DecisionDifferential Decision = "diagnostico_diferencial"
)

// Decisions lists the values a classifier may return.
var Decisions = []Decision{DecisionAskHuman, DecisionEmergency, DecisionDifferential}

// Valid reports whether d is one of the routable decisions.
func (d Decision) Valid() bool {
	switch d {
	case DecisionAskHuman, DecisionEmergency, DecisionDifferential:
		return true
	}
	return false
}

// Node names a state of the triage machine.
type Node string

const (
	NodeRouter       Node = "llm_router"
	NodeAskHuman     Node = "ask_human"
	NodeEmergency    Node = "emergencial"
	NodeDifferential Node = "diagnostico_diferencial"
	NodeEnd          Node = "END"
)

// CaseState is the checkpointed state of one conversation thread.
type CaseState struct {
	ThreadID         string    `json:"thread_id"`
	Messages         []Message `json:"messages"`
	Decision         Decision  `json:"decision"`
	CaseSynthesis    *string   `json:"case_synthesis"`
	QuestionToHuman  *string   `json:"question_to_human"`
	FinalAnswer      *string   `json:"final_answer"`
	InteractionCount int       `json:"interaction_count"`

	// Next is the node the thread is parked at between turns.
	Next Node `json:"next"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewCaseState returns a fresh thread whose history starts with the system prompt.
func NewCaseState(threadID, systemPrompt string) *CaseState {
	now := time.Now()
	return &CaseState{
		ThreadID: threadID,
		Messages: []Message{
			{Role: RoleSystem, Content: systemPrompt, CreatedAt: now},
		},
		Next:      NodeRouter,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so a node can stage mutations without touching the original.
func (s *CaseState) Clone() *CaseState {
	if s == nil {
		return nil
	}
	c := *s
	if s.Messages != nil {
		c.Messages = make([]Message, len(s.Messages))
		copy(c.Messages, s.Messages)
	}
	c.CaseSynthesis = cloneString(s.CaseSynthesis)
	c.QuestionToHuman = cloneString(s.QuestionToHuman)
	c.FinalAnswer = cloneString(s.FinalAnswer)
	return &c
}

// Suspended reports whether the thread is waiting for a human answer.
func (s *CaseState) Suspended() bool {
	return s.Next == NodeAskHuman
}

// Complete reports whether a terminal node has answered this thread.
func (s *CaseState) Complete() bool {
	return s.Next == NodeEnd
}

// PendingQuestion returns the clarification question while the thread is suspended.
func (s *CaseState) PendingQuestion() string {
	if !s.Suspended() || s.QuestionToHuman == nil {
		return ""
	}
	return *s.QuestionToHuman
}

// Transcript returns the user-visible part of the history.
func (s *CaseState) Transcript() []Message {
	out := make([]Message, 0, len(s.Messages))
	for _, m := range s.Messages {
		if m.Role == RoleSystem {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (s *CaseState) lastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

func (s *CaseState) appendMessage(role Role, content string) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content, CreatedAt: time.Now()})
}

// caseInput is the briefing handed to a terminal responder: the synthesis when
// present, otherwise every non-system message joined by newlines.
func (s *CaseState) caseInput() (string, bool) {
	if s.CaseSynthesis != nil && *s.CaseSynthesis != "" {
		return *s.CaseSynthesis, false
	}
	parts := make([]string, 0, len(s.Messages))
	for _, m := range s.Transcript() {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "\n"), true
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func stringPtr(v string) *string {
	return &v
}
