package report

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"medical-triage-agent/internal/triage"
)

type fakeTelegram struct {
	messages  []string
	documents []string
	docData   [][]byte
	err       error
}

func (f *fakeTelegram) SendMessage(_ context.Context, _ int64, text string) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, text)
	return nil
}

func (f *fakeTelegram) SendDocument(_ context.Context, _ int64, data []byte, fileName, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.documents = append(f.documents, fileName)
	f.docData = append(f.docData, data)
	return nil
}

func escalatedCase() *triage.CaseState {
	st := triage.NewCaseState("thread-9", triage.RouterPrompt)
	synthesis := "Dor torácica com irradiação e dispneia"
	answer := "Acione o SAMU (192).\nMantenha o paciente em repouso."
	st.Messages = append(st.Messages,
		triage.Message{Role: triage.RoleHuman, Content: "dor no peito"},
		triage.Message{Role: triage.RoleAssistant, Content: "Há quanto tempo?"},
		triage.Message{Role: triage.RoleHuman, Content: "30 minutos, com falta de ar"},
		triage.Message{Role: triage.RoleAssistant, Content: answer},
	)
	st.CaseSynthesis = &synthesis
	st.FinalAnswer = &answer
	st.Decision = triage.DecisionEmergency
	st.Next = triage.NodeEnd
	return st
}

func TestSendEscalationFallsBackToText(t *testing.T) {
	tg := &fakeTelegram{}
	svc := NewService(tg, 42, zerolog.Nop())
	svc.fontPaths = []string{"/nonexistent/font.ttf"}

	if err := svc.SendEscalation(context.Background(), escalatedCase()); err != nil {
		t.Fatal(err)
	}
	if len(tg.messages) != 2 || len(tg.documents) != 0 {
		t.Fatalf("messages=%d documents=%d", len(tg.messages), len(tg.documents))
	}
	if !strings.Contains(tg.messages[0], "Dor torácica") {
		t.Errorf("alert = %q", tg.messages[0])
	}
	if !strings.Contains(tg.messages[1], "Usuário: dor no peito") {
		t.Errorf("summary = %q", tg.messages[1])
	}
}

func TestSendEscalationPropagatesTelegramErrors(t *testing.T) {
	boom := errors.New("telegram down")
	svc := NewService(&fakeTelegram{err: boom}, 42, zerolog.Nop())
	if err := svc.SendEscalation(context.Background(), escalatedCase()); !errors.Is(err, boom) {
		t.Fatalf("error = %v", err)
	}
}

func availableFont(t *testing.T) string {
	t.Helper()
	for _, p := range DefaultFontPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	t.Skip("no DejaVu font installed")
	return ""
}

func TestRenderAndSendDocument(t *testing.T) {
	font := availableFont(t)
	tg := &fakeTelegram{}
	svc := NewService(tg, 42, zerolog.Nop())
	svc.fontPaths = []string{font}

	if err := svc.SendEscalation(context.Background(), escalatedCase()); err != nil {
		t.Fatal(err)
	}
	if len(tg.documents) != 1 || tg.documents[0] != "triagem_thread-9.pdf" {
		t.Fatalf("documents = %v", tg.documents)
	}
	if !bytes.HasPrefix(tg.docData[0], []byte("%PDF")) {
		t.Errorf("attachment is not a PDF")
	}
}

func TestCountQuestions(t *testing.T) {
	if n := countQuestions(escalatedCase()); n != 1 {
		t.Fatalf("countQuestions = %d, want 1", n)
	}
}
