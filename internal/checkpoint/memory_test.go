package checkpoint

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"medical-triage-agent/internal/triage"
)

func TestMemoryGetMissing(t *testing.T) {
	_, err := NewMemory().Get(context.Background(), "nope")
	if !errors.Is(err, triage.ErrThreadNotFound) {
		t.Fatalf("Get() error = %v, want ErrThreadNotFound", err)
	}
}

func TestMemoryPutIsolatesCallerCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	st := triage.NewCaseState("t1", "sys")

	if err := m.Put(ctx, st); err != nil {
		t.Fatal(err)
	}
	if st.Version != 1 {
		t.Fatalf("Version = %d, want 1", st.Version)
	}
	st.Messages[0].Content = "mutated"

	got, err := m.Get(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Messages[0].Content != "sys" {
		t.Fatalf("store shares memory with caller")
	}
	got.Messages = append(got.Messages, triage.Message{Role: triage.RoleHuman, Content: "x"})
	again, _ := m.Get(ctx, "t1")
	if len(again.Messages) != 1 {
		t.Fatalf("Get returned an aliased state")
	}
}

func TestMemoryVersionConflict(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.Put(ctx, triage.NewCaseState("t1", "sys")); err != nil {
		t.Fatal(err)
	}

	a, _ := m.Get(ctx, "t1")
	b, _ := m.Get(ctx, "t1")
	if err := m.Put(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := m.Put(ctx, b); !errors.Is(err, triage.ErrConflict) {
		t.Fatalf("stale Put() error = %v, want ErrConflict", err)
	}
	if err := m.Put(ctx, triage.NewCaseState("t1", "sys")); !errors.Is(err, triage.ErrConflict) {
		t.Fatalf("recreate Put() error = %v, want ErrConflict", err)
	}
}

func TestMemorySweep(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	_ = m.Put(ctx, triage.NewCaseState("old", "sys"))
	now = now.Add(45 * time.Minute)
	_ = m.Put(ctx, triage.NewCaseState("fresh", "sys"))

	n, err := m.Sweep(ctx, DefaultIdleTTL)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("Sweep() removed %d, want 1", n)
	}
	if _, err := m.Get(ctx, "old"); !errors.Is(err, triage.ErrThreadNotFound) {
		t.Errorf("old thread survived sweep")
	}
	if count, _ := m.Count(ctx); count != 1 {
		t.Errorf("Count() = %d, want 1", count)
	}
}

func TestMemorySweepKeepsSuspendedThreads(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	classifier := askOnce{question: "Quais sintomas o paciente apresenta?"}
	machine := triage.NewMachine(m, classifier, nil, triage.DefaultConfig())
	out, err := machine.Start(ctx, "waiting", "tuberculose")
	if err != nil {
		t.Fatal(err)
	}
	if out.Suspended == nil {
		t.Fatalf("expected suspension, got %+v", out)
	}

	now = now.Add(45 * time.Minute)
	n, err := m.Sweep(ctx, DefaultIdleTTL)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("Sweep() removed %d suspended threads", n)
	}
	st, err := machine.State(ctx, "waiting")
	if err != nil {
		t.Fatalf("suspended thread lost: %v", err)
	}
	if st.PendingQuestion() != "Quais sintomas o paciente apresenta?" {
		t.Errorf("PendingQuestion = %q", st.PendingQuestion())
	}
}

type askOnce struct{ question string }

func (a askOnce) ClassifyCase(context.Context, []triage.Message) (*triage.ClassifierOutput, error) {
	q := a.question
	return &triage.ClassifierOutput{Decision: string(triage.DecisionAskHuman), QuestionToHuman: &q}, nil
}

type countingSweeper struct{ calls atomic.Int32 }

func (c *countingSweeper) Sweep(context.Context, time.Duration) (int, error) {
	c.calls.Add(1)
	return 0, nil
}

func TestRunJanitorStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &countingSweeper{}
	done := make(chan struct{})
	go func() {
		RunJanitor(ctx, s, 5*time.Millisecond, time.Minute, zerolog.Nop())
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for s.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("janitor never swept")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestMemoryBacksMachine(t *testing.T) {
	var _ triage.Store = NewMemory()
	var _ triage.Store = (*Postgres)(nil)
	var _ Sweeper = NewMemory()
	var _ Sweeper = (*Postgres)(nil)
}
