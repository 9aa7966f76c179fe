package main

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"

	"medical-triage-agent/internal/agent"
	"medical-triage-agent/internal/checkpoint"
	"medical-triage-agent/internal/triage"
)

func newMachine() *triage.Machine {
	model := agent.NewMockClient()
	return triage.NewMachine(checkpoint.NewMemory(), model, model, triage.DefaultConfig())
}

func TestChatAnswersClarification(t *testing.T) {
	in := bufio.NewReader(strings.NewReader("há dois dias com tosse seca e dor de cabeça\n"))
	var out bytes.Buffer

	if err := chat(context.Background(), newMachine(), "cli-1", "febre", in, &out); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	if !strings.Contains(got, "Digite a sua resposta: ") {
		t.Errorf("no prompt in output:\n%s", got)
	}
	if !strings.Contains(got, "Assistente: Diagnóstico diferencial") {
		t.Errorf("no final answer in output:\n%s", got)
	}
}

func TestChatEscalatesAfterCap(t *testing.T) {
	// Every answer is too short for the offline model, so the cap kicks in.
	in := bufio.NewReader(strings.NewReader("sim\nnão\ntalvez\n"))
	var out bytes.Buffer

	if err := chat(context.Background(), newMachine(), "cli-2", "dor", in, &out); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	if strings.Count(got, "Digite a sua resposta: ") != 3 {
		t.Errorf("expected 3 prompts:\n%s", got)
	}
	if !strings.Contains(got, "caso tratado como emergencial") || !strings.Contains(got, "SAMU") {
		t.Errorf("no escalation in output:\n%s", got)
	}
}

func TestChatStopsOnClosedInput(t *testing.T) {
	in := bufio.NewReader(strings.NewReader(""))
	var out bytes.Buffer

	if err := chat(context.Background(), newMachine(), "cli-3", "dor", in, &out); err == nil {
		t.Fatal("expected error on EOF")
	}
}
