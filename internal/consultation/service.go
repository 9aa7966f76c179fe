package consultation

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"medical-triage-agent/internal/triage"
)

var (
	ErrSpeechDisabled = errors.New("speech services are not configured")
	ErrEmptyMessage   = errors.New("message text is empty")
)

const escalationTimeout = 2 * time.Minute

// Engine is the triage state machine.
type Engine interface {
	Start(ctx context.Context, threadID, text string) (*triage.Outcome, error)
	Resume(ctx context.Context, threadID, answer string) (*triage.Outcome, error)
	State(ctx context.Context, threadID string) (*triage.CaseState, error)
	Reset(ctx context.Context, threadID string) (*triage.CaseState, error)
}

// ReportService defines the interface for doctor escalation reports
type ReportService interface {
	SendEscalation(ctx context.Context, st *triage.CaseState) error
}

type STTClient interface {
	Transcribe(ctx context.Context, audioData []byte) (string, error)
}

type TTSClient interface {
	Synthesize(ctx context.Context, text string, voiceID string) ([]byte, error)
}

type Service interface {
	CreateThread(ctx context.Context) (*Thread, error)
	GetThread(ctx context.Context, threadID string) (*Thread, error)
	ResetThread(ctx context.Context, threadID string) (*Thread, error)
	// SendMessage starts a turn, or answers the pending question when the
	// thread is waiting for one.
	SendMessage(ctx context.Context, threadID, text string) (*Turn, error)
	Resume(ctx context.Context, threadID, answer string) (*Turn, error)
	Transcribe(ctx context.Context, audio []byte) (string, error)
	ProcessAudio(ctx context.Context, threadID string, audio []byte) (*Turn, error)
	SynthesizeSpeech(ctx context.Context, text string) ([]byte, error)
	// Close waits for background escalation reports.
	Close()
}

type service struct {
	engine    Engine
	sttClient STTClient
	ttsClient TTSClient
	reportSvc ReportService
	log       zerolog.Logger

	wg sync.WaitGroup
}

// NewService wires the triage engine with optional speech and report
// collaborators; nil disables the feature.
func NewService(engine Engine, stt STTClient, tts TTSClient, report ReportService, log zerolog.Logger) Service {
	return &service{
		engine:    engine,
		sttClient: stt,
		ttsClient: tts,
		reportSvc: report,
		log:       log,
	}
}

func (s *service) CreateThread(ctx context.Context) (*Thread, error) {
	st, err := s.engine.Reset(ctx, uuid.NewString())
	if err != nil {
		return nil, err
	}
	return newThread(st), nil
}

func (s *service) GetThread(ctx context.Context, threadID string) (*Thread, error) {
	st, err := s.engine.State(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return newThread(st), nil
}

func (s *service) ResetThread(ctx context.Context, threadID string) (*Thread, error) {
	if _, err := s.engine.State(ctx, threadID); err != nil {
		return nil, err
	}
	st, err := s.engine.Reset(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return newThread(st), nil
}

func (s *service) SendMessage(ctx context.Context, threadID, text string) (*Turn, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	st, err := s.engine.State(ctx, threadID)
	switch {
	case errors.Is(err, triage.ErrThreadNotFound):
	case err != nil:
		return nil, err
	case st.Suspended():
		return s.Resume(ctx, threadID, text)
	}

	out, err := s.engine.Start(ctx, threadID, text)
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, out), nil
}

func (s *service) Resume(ctx context.Context, threadID, answer string) (*Turn, error) {
	out, err := s.engine.Resume(ctx, threadID, answer)
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, out), nil
}

func (s *service) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if s.sttClient == nil {
		return "", ErrSpeechDisabled
	}
	text, err := s.sttClient.Transcribe(ctx, audio)
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func (s *service) ProcessAudio(ctx context.Context, threadID string, audio []byte) (*Turn, error) {
	// 1. Transcribe
	text, err := s.Transcribe(ctx, audio)
	if err != nil {
		return nil, err
	}
	if text == "" {
		// Silence: nothing to route.
		return &Turn{ThreadID: threadID}, nil
	}

	// 2. Route as a text message
	turn, err := s.SendMessage(ctx, threadID, text)
	if err != nil {
		return nil, err
	}
	turn.Text = text

	// 3. Speak the reply so the client saves a roundtrip
	if s.ttsClient != nil && turn.Reply != "" {
		audio, err := s.ttsClient.Synthesize(ctx, turn.Reply, "")
		if err != nil {
			s.log.Warn().Err(err).Str("thread_id", threadID).Msg("tts failed, returning text only")
		} else {
			turn.AudioBase64 = base64.StdEncoding.EncodeToString(audio)
		}
	}
	return turn, nil
}

func (s *service) SynthesizeSpeech(ctx context.Context, text string) ([]byte, error) {
	if s.ttsClient == nil {
		return nil, ErrSpeechDisabled
	}
	return s.ttsClient.Synthesize(ctx, text, "")
}

func (s *service) Close() {
	s.wg.Wait()
}

// finish converts the outcome and, for emergencial cases, hands the case to
// the doctor in the background.
func (s *service) finish(ctx context.Context, out *triage.Outcome) *Turn {
	if out.Node == triage.NodeEmergency && out.Suspended == nil && s.reportSvc != nil {
		st := out.State
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), escalationTimeout)
			defer cancel()

			if err := s.reportSvc.SendEscalation(bgCtx, st); err != nil {
				s.log.Error().Err(err).Str("thread_id", st.ThreadID).Msg("failed to send escalation report")
			}
		}()
	}
	if out.Escalated {
		s.log.Info().Str("thread_id", out.ThreadID).Msg("clarification limit reached, case escalated")
	}
	return newTurn(out)
}
