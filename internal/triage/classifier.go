package triage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// ClassifierOutput is the structured reply expected from the routing model.
type ClassifierOutput struct {
	Decision        string  `json:"decision"`
	CaseSynthesis   *string `json:"case_synthesis"`
	QuestionToHuman *string `json:"question_to_human"`
	DecisionReason  *string `json:"decision_reason"`
}

// CaseClassifier is a model that reads the whole case history and returns a
// structured routing verdict.
type CaseClassifier interface {
	ClassifyCase(ctx context.Context, history []Message) (*ClassifierOutput, error)
}

// TextModel is a model that answers a single free-text prompt.
type TextModel interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Classifier applies the routing model's verdict to a case state.
type Classifier struct {
	model CaseClassifier
	log   zerolog.Logger
}

func NewClassifier(model CaseClassifier, log zerolog.Logger) *Classifier {
	return &Classifier{model: model, log: log}
}

// Classify asks the model for a decision and writes it into st. On error st is
// left untouched.
func (c *Classifier) Classify(ctx context.Context, st *CaseState) error {
	last, ok := st.lastMessage()
	if !ok {
		return &PreconditionError{Reason: "case history is empty"}
	}
	if last.Role != RoleHuman {
		return &PreconditionError{Reason: fmt.Sprintf("last message must be from a human, got %s", last.Role)}
	}

	out, err := c.model.ClassifyCase(ctx, st.Messages)
	if err != nil {
		return fmt.Errorf("classify case: %w", err)
	}

	decision := Decision(out.Decision)
	if !decision.Valid() {
		return &InvalidDecisionError{Value: out.Decision}
	}

	c.log.Debug().
		Str("thread_id", st.ThreadID).
		Str("decision", string(decision)).
		Str("reason", deref(out.DecisionReason)).
		Msg("case classified")

	st.Decision = decision
	st.CaseSynthesis = nonEmpty(out.CaseSynthesis)
	st.QuestionToHuman = nil
	if decision == DecisionAskHuman {
		st.QuestionToHuman = nonEmpty(out.QuestionToHuman)
		if st.QuestionToHuman != nil {
			st.appendMessage(RoleAssistant, *st.QuestionToHuman)
		}
	}
	return nil
}

func nonEmpty(p *string) *string {
	if p == nil || *p == "" {
		return nil
	}
	return stringPtr(*p)
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
