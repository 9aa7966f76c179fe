package agent

import (
	"context"
	"fmt"
	"strings"

	"medical-triage-agent/internal/triage"
)

// alarmSigns trigger an emergencial verdict in the offline client.
var alarmSigns = []string{
	"irradia", "falta de ar", "dispneia", "suor frio", "desmaio", "cianose",
	"convuls", "sangramento intenso", "inconsciente", "dor torácica intensa",
}

// minDetailWords is how long a case description must be before the offline
// client stops asking for details.
const minDetailWords = 8

type mockClient struct{}

// NewMockClient returns a deterministic keyword-based backend for local runs
// without API keys.
func NewMockClient() Model {
	return &mockClient{}
}

func (c *mockClient) Name() string {
	return ProviderMock
}

// ClassifyCase simulates the router using the accumulated human messages.
func (c *mockClient) ClassifyCase(ctx context.Context, history []triage.Message) (*triage.ClassifierOutput, error) {
	var human []string
	for _, m := range history {
		if m.Role == triage.RoleHuman {
			human = append(human, m.Content)
		}
	}
	synthesis := strings.Join(human, " ")
	text := strings.ToLower(synthesis)

	out := &triage.ClassifierOutput{CaseSynthesis: &synthesis}
	for _, sign := range alarmSigns {
		if strings.Contains(text, sign) {
			out.Decision = string(triage.DecisionEmergency)
			reason := fmt.Sprintf("sinal de alarme: %s", sign)
			out.DecisionReason = &reason
			return out, nil
		}
	}

	if len(strings.Fields(text)) < minDetailWords {
		out.Decision = string(triage.DecisionAskHuman)
		q := "Para avaliar melhor, informe: há quanto tempo os sintomas começaram, qual a intensidade e se há outros sintomas associados?"
		out.QuestionToHuman = &q
		return out, nil
	}

	out.Decision = string(triage.DecisionDifferential)
	return out, nil
}

// Complete echoes the briefing back with a canned specialist header.
func (c *mockClient) Complete(ctx context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, "caso emergencial") {
		return "Orientação emergencial: acione imediatamente o SAMU (192) e mantenha o paciente em repouso monitorando os sinais vitais.", nil
	}
	return "Diagnóstico diferencial: recomenda-se avaliação clínica presencial e exames complementares conforme a evolução.", nil
}
