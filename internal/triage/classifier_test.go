package triage

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/rs/zerolog"
)

func humanState(text string) *CaseState {
	st := NewCaseState("t-1", RouterPrompt)
	st.appendMessage(RoleHuman, text)
	return st
}

func TestClassifyPreconditions(t *testing.T) {
	empty := &CaseState{ThreadID: "t-empty"}
	trailingAssistant := humanState("dor")
	trailingAssistant.appendMessage(RoleAssistant, "há quanto tempo?")

	for name, st := range map[string]*CaseState{"empty": empty, "assistant last": trailingAssistant} {
		t.Run(name, func(t *testing.T) {
			model := &scriptedClassifier{outputs: []*ClassifierOutput{verdict(DecisionEmergency, "x", "")}}
			before := st.Clone()

			err := NewClassifier(model, zerolog.Nop()).Classify(context.Background(), st)

			var pre *PreconditionError
			if !errors.As(err, &pre) {
				t.Fatalf("Classify() error = %v, want PreconditionError", err)
			}
			if model.calls != 0 {
				t.Errorf("model called %d times", model.calls)
			}
			if !reflect.DeepEqual(before, st) {
				t.Errorf("state mutated on precondition failure")
			}
		})
	}
}

func TestClassifyInvalidDecisionLeavesStateUntouched(t *testing.T) {
	st := humanState("dor de cabeça")
	before := st.Clone()
	model := &scriptedClassifier{outputs: []*ClassifierOutput{verdict("unknown_value", "síntese", "pergunta?")}}

	err := NewClassifier(model, zerolog.Nop()).Classify(context.Background(), st)

	var invalid *InvalidDecisionError
	if !errors.As(err, &invalid) {
		t.Fatalf("Classify() error = %v, want InvalidDecisionError", err)
	}
	if !reflect.DeepEqual(before, st) {
		t.Fatalf("state mutated: %+v", st)
	}
}

func TestClassifyAskHumanAppendsQuestion(t *testing.T) {
	st := humanState("tuberculose")
	model := &scriptedClassifier{outputs: []*ClassifierOutput{verdict(DecisionAskHuman, "Tuberculose", "Quais sintomas?")}}

	if err := NewClassifier(model, zerolog.Nop()).Classify(context.Background(), st); err != nil {
		t.Fatal(err)
	}

	if st.Decision != DecisionAskHuman {
		t.Errorf("Decision = %q", st.Decision)
	}
	if deref(st.QuestionToHuman) != "Quais sintomas?" {
		t.Errorf("QuestionToHuman = %v", st.QuestionToHuman)
	}
	if deref(st.CaseSynthesis) != "Tuberculose" {
		t.Errorf("CaseSynthesis = %v", st.CaseSynthesis)
	}
	last, _ := st.lastMessage()
	if last.Role != RoleAssistant || last.Content != "Quais sintomas?" {
		t.Errorf("last message = %+v", last)
	}
	if len(model.seen[0]) != 2 || model.seen[0][0].Role != RoleSystem {
		t.Errorf("model did not receive the full history: %+v", model.seen[0])
	}
}

func TestClassifyAskHumanWithoutQuestion(t *testing.T) {
	st := humanState("febre")
	model := &scriptedClassifier{outputs: []*ClassifierOutput{verdict(DecisionAskHuman, "", "")}}

	if err := NewClassifier(model, zerolog.Nop()).Classify(context.Background(), st); err != nil {
		t.Fatal(err)
	}
	if len(st.Messages) != 2 {
		t.Fatalf("expected no appended message, got %d messages", len(st.Messages))
	}
	if st.QuestionToHuman != nil {
		t.Errorf("QuestionToHuman = %q, want nil", *st.QuestionToHuman)
	}
}

func TestClassifyTerminalDecisionDropsQuestion(t *testing.T) {
	st := humanState("dor torácica")
	st.QuestionToHuman = stringPtr("pergunta antiga")
	model := &scriptedClassifier{outputs: []*ClassifierOutput{verdict(DecisionEmergency, "SCA provável", "ignorada")}}

	if err := NewClassifier(model, zerolog.Nop()).Classify(context.Background(), st); err != nil {
		t.Fatal(err)
	}
	if st.QuestionToHuman != nil {
		t.Errorf("QuestionToHuman = %q, want nil", *st.QuestionToHuman)
	}
	if len(st.Messages) != 2 {
		t.Errorf("terminal decision appended a message")
	}
	if deref(st.CaseSynthesis) != "SCA provável" {
		t.Errorf("CaseSynthesis = %v", st.CaseSynthesis)
	}
}

func TestClassifyWrapsModelErrors(t *testing.T) {
	boom := errors.New("upstream 500")
	st := humanState("x")
	before := st.Clone()

	err := NewClassifier(&scriptedClassifier{err: boom}, zerolog.Nop()).Classify(context.Background(), st)
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want wrapped %v", err, boom)
	}
	if !reflect.DeepEqual(before, st) {
		t.Fatalf("state mutated on model error")
	}
}
