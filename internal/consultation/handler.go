package consultation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"medical-triage-agent/internal/agent"
	"medical-triage-agent/internal/triage"
)

const maxAudioUpload = 10 << 20

type Handler struct {
	svc Service
	log zerolog.Logger
}

func NewHandler(svc Service, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

type MessageRequest struct {
	Text string `json:"text"`
}

type ResumeRequest struct {
	Answer string `json:"answer"`
}

type TTSRequest struct {
	Text string `json:"text"`
}

type StreamEvent struct {
	Type string `json:"type"` // "user_text", "reply", "audio", "error"
	Data any    `json:"data"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) CreateThread(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.CreateThread(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) GetThread(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.GetThread(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) ResetThread(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.ResetThread(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request"})
		return
	}

	turn, err := h.svc.SendMessage(r.Context(), chi.URLParam(r, "id"), req.Text)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	var req ResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request"})
		return
	}

	turn, err := h.svc.Resume(r.Context(), chi.URLParam(r, "id"), req.Answer)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

func (h *Handler) HandleTTS(w http.ResponseWriter, r *http.Request) {
	var req TTSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request"})
		return
	}

	audioData, err := h.svc.SynthesizeSpeech(r.Context(), req.Text)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	_, _ = w.Write(audioData)
}

func (h *Handler) HandleAudioUpload(w http.ResponseWriter, r *http.Request) {
	audio, ok := readAudio(w, r)
	if !ok {
		return
	}

	turn, err := h.svc.ProcessAudio(r.Context(), chi.URLParam(r, "id"), audio)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

// HandleAudioUploadStream reports the transcription before the routing turn
// finishes, then the reply and its audio, as server-sent events.
func (h *Handler) HandleAudioUploadStream(w http.ResponseWriter, r *http.Request) {
	audio, ok := readAudio(w, r)
	if !ok {
		return
	}
	threadID := chi.URLParam(r, "id")

	// 1. Transcribe (Blocking)
	text, err := h.svc.Transcribe(r.Context(), audio)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	send := func(ev StreamEvent) {
		data, _ := json.Marshal(ev)
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	send(StreamEvent{Type: "user_text", Data: text})
	if text == "" {
		return
	}

	turn, err := h.svc.SendMessage(r.Context(), threadID, text)
	if err != nil {
		h.log.Warn().Err(err).Str("thread_id", threadID).Int("status", statusFor(err)).Msg("streamed turn failed")
		send(StreamEvent{Type: "error", Data: clientMessage(statusFor(err), err)})
		return
	}
	send(StreamEvent{Type: "reply", Data: turn})

	if speech, err := h.svc.SynthesizeSpeech(r.Context(), turn.Reply); err == nil {
		send(StreamEvent{Type: "audio", Data: speech})
	}
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Route("/threads", func(r chi.Router) {
		r.Post("/", h.CreateThread)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetThread)
			r.Post("/messages", h.SendMessage)
			r.Post("/resume", h.Resume)
			r.Post("/reset", h.ResetThread)
			r.Post("/audio", h.HandleAudioUpload)
			r.Post("/audio/stream", h.HandleAudioUploadStream)
		})
	})
	r.Post("/tts", h.HandleTTS)
}

func readAudio(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if err := r.ParseMultipartForm(maxAudioUpload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid multipart form"})
		return nil, false
	}
	file, _, err := r.FormFile("audio")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "error retrieving audio file"})
		return nil, false
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to read audio file"})
		return nil, false
	}
	return buf.Bytes(), true
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		precondition *triage.PreconditionError
		invalid      *triage.InvalidDecisionError
		missing      *triage.MissingContextError
		provider     *agent.ProviderError
	)
	switch {
	case errors.Is(err, triage.ErrThreadNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrEmptyMessage), errors.As(err, &precondition):
		return http.StatusBadRequest
	case errors.Is(err, triage.ErrPendingQuestion),
		errors.Is(err, triage.ErrNotSuspended),
		errors.Is(err, triage.ErrConversationComplete),
		errors.Is(err, triage.ErrConflict):
		return http.StatusConflict
	case errors.As(err, &missing):
		return http.StatusUnprocessableEntity
	case errors.As(err, &invalid), errors.As(err, &provider):
		return http.StatusBadGateway
	case errors.Is(err, ErrSpeechDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	ev := h.log.Warn()
	if status >= http.StatusInternalServerError {
		ev = h.log.Error()
	}
	ev.Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
	writeJSON(w, status, errorResponse{Error: clientMessage(status, err)})
}

// clientMessage keeps routing and upstream details in the log. Only caller
// errors are echoed back.
func clientMessage(status int, err error) string {
	switch {
	case status == http.StatusUnprocessableEntity:
		return "not enough case information to answer yet"
	case status == http.StatusBadGateway:
		return "the triage model could not process this message, please try again"
	case status >= http.StatusInternalServerError:
		return strings.ToLower(http.StatusText(status))
	default:
		return err.Error()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
