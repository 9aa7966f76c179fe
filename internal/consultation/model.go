package consultation

import (
	"time"

	"medical-triage-agent/internal/triage"
)

type Status string

const (
	StatusOpen           Status = "open"
	StatusAwaitingAnswer Status = "awaiting_answer"
	StatusComplete       Status = "complete"
)

// Message is a transcript entry as shown to the user.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Thread is the user-facing view of a case. Synthesis, decision and routing
// details stay internal.
type Thread struct {
	ID              string    `json:"thread_id"`
	Status          Status    `json:"status"`
	History         []Message `json:"history"`
	PendingQuestion string    `json:"pending_question,omitempty"`
	FinalAnswer     string    `json:"final_answer,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Turn is the result of one user message.
type Turn struct {
	ThreadID    string `json:"thread_id"`
	Status      Status `json:"status"`
	Reply       string `json:"reply"`
	Text        string `json:"text,omitempty"`
	AudioBase64 string `json:"audio_base64,omitempty"`
}

func statusOf(st *triage.CaseState) Status {
	switch {
	case st.Suspended():
		return StatusAwaitingAnswer
	case st.Complete():
		return StatusComplete
	default:
		return StatusOpen
	}
}

func newThread(st *triage.CaseState) *Thread {
	t := &Thread{
		ID:              st.ThreadID,
		Status:          statusOf(st),
		PendingQuestion: st.PendingQuestion(),
		CreatedAt:       st.CreatedAt,
		UpdatedAt:       st.UpdatedAt,
	}
	for _, m := range st.Transcript() {
		t.History = append(t.History, Message{Role: string(m.Role), Content: m.Content, Timestamp: m.CreatedAt})
	}
	if t.History == nil {
		t.History = []Message{}
	}
	if st.FinalAnswer != nil {
		t.FinalAnswer = *st.FinalAnswer
	}
	return t
}

func newTurn(out *triage.Outcome) *Turn {
	t := &Turn{ThreadID: out.ThreadID}
	if out.Suspended != nil {
		t.Status = StatusAwaitingAnswer
		t.Reply = out.Suspended.Question
		return t
	}
	t.Status = StatusComplete
	t.Reply = out.FinalAnswer
	return t
}
