package triage

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

const inputPlaceholder = "{input}"

// Responder runs the terminal specialist nodes.
type Responder struct {
	model     TextModel
	templates map[Node]string
	log       zerolog.Logger
}

func NewResponder(model TextModel, emergencyPrompt, differentialPrompt string, log zerolog.Logger) *Responder {
	return &Responder{
		model: model,
		templates: map[Node]string{
			NodeEmergency:    emergencyPrompt,
			NodeDifferential: differentialPrompt,
		},
		log: log,
	}
}

// Respond briefs the specialist for node with the case, records its reply as
// the final answer and closes the clarification cycle.
func (r *Responder) Respond(ctx context.Context, node Node, st *CaseState) error {
	tmpl, ok := r.templates[node]
	if !ok {
		return fmt.Errorf("%w: %s is not a terminal node", ErrRouterInvariant, node)
	}

	input, fromHistory := st.caseInput()
	if fromHistory {
		if strings.TrimSpace(input) == "" {
			return &MissingContextError{Node: node}
		}
		r.log.Warn().Str("thread_id", st.ThreadID).Str("node", string(node)).
			Msg("no case synthesis, briefing from conversation history")
	}

	prompt := strings.Replace(tmpl, inputPlaceholder, input, 1)
	reply, err := r.model.Complete(ctx, prompt)
	if err != nil {
		return fmt.Errorf("%s: %w", node, err)
	}

	st.appendMessage(RoleAssistant, reply)
	st.FinalAnswer = stringPtr(reply)
	st.InteractionCount = 0
	return nil
}

// answerQuestion is the resume half of ask_human: the verbatim answer becomes
// the next human message.
func answerQuestion(st *CaseState, answer string) error {
	if !st.Suspended() {
		return ErrNotSuspended
	}
	st.appendMessage(RoleHuman, answer)
	return nil
}
