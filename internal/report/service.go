package report

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/signintech/gopdf"

	"medical-triage-agent/internal/triage"
)

// DefaultFontPaths are searched for a TTF font with Latin-1 coverage.
var DefaultFontPaths = []string{
	"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
}

const (
	pageWidth  = 500.0
	lineHeight = 14.0
	pageBottom = 780.0
)

type TelegramClient interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendDocument(ctx context.Context, chatID int64, data []byte, fileName, caption string) error
}

// Service forwards emergencial cases to the on-call doctor.
type Service struct {
	tgClient     TelegramClient
	doctorChatID int64
	fontPaths    []string
	log          zerolog.Logger
}

func NewService(tg TelegramClient, doctorChatID int64, log zerolog.Logger) *Service {
	return &Service{
		tgClient:     tg,
		doctorChatID: doctorChatID,
		fontPaths:    DefaultFontPaths,
		log:          log,
	}
}

// SendEscalation alerts the doctor and attaches a PDF case report. When no
// font is available the transcript is sent as plain text instead.
func (s *Service) SendEscalation(ctx context.Context, st *triage.CaseState) error {
	alert := fmt.Sprintf("🚨 Caso emergencial na triagem\nThread: %s\nSíntese: %s",
		st.ThreadID, orDash(st.CaseSynthesis))
	if err := s.tgClient.SendMessage(ctx, s.doctorChatID, alert); err != nil {
		return fmt.Errorf("send escalation alert: %w", err)
	}

	pdf, err := s.Render(st)
	if err != nil {
		s.log.Warn().Err(err).Str("thread_id", st.ThreadID).Msg("pdf report unavailable, sending text summary")
		if err := s.tgClient.SendMessage(ctx, s.doctorChatID, plainSummary(st)); err != nil {
			return fmt.Errorf("send escalation summary: %w", err)
		}
		return nil
	}

	fileName := fmt.Sprintf("triagem_%s.pdf", st.ThreadID)
	if err := s.tgClient.SendDocument(ctx, s.doctorChatID, pdf, fileName, "Relatório de triagem"); err != nil {
		return fmt.Errorf("send escalation report: %w", err)
	}
	s.log.Info().Str("thread_id", st.ThreadID).Msg("escalation report sent")
	return nil
}

// Render lays out the case report as an A4 PDF.
func (s *Service) Render(st *triage.CaseState) ([]byte, error) {
	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	var fontErr error
	fontLoaded := false
	for _, path := range s.fontPaths {
		if err := pdf.AddTTFFont("DejaVu", path); err == nil {
			fontLoaded = true
			break
		} else {
			fontErr = err
		}
	}
	if !fontLoaded {
		return nil, fmt.Errorf("failed to load font for PDF: %w", fontErr)
	}

	w := &pageWriter{pdf: &pdf}
	w.heading(18, "Relatório de triagem (emergencial)")
	w.line(11, fmt.Sprintf("Data: %s", time.Now().Format("02/01/2006 15:04")))
	w.line(11, fmt.Sprintf("Thread: %s", st.ThreadID))
	w.line(11, fmt.Sprintf("Rodadas de esclarecimento: %d", countQuestions(st)))
	w.gap()

	w.heading(14, "Síntese do caso")
	w.paragraph(11, orDash(st.CaseSynthesis))
	w.gap()

	w.heading(14, "Conversa")
	for _, m := range st.Transcript() {
		w.paragraph(11, fmt.Sprintf("%s: %s", speaker(m.Role), m.Content))
	}
	w.gap()

	if st.FinalAnswer != nil {
		w.heading(14, "Orientação do especialista")
		w.paragraph(11, *st.FinalAnswer)
	}
	if w.err != nil {
		return nil, w.err
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// pageWriter keeps the first layout error and adds pages as text overflows.
type pageWriter struct {
	pdf *gopdf.GoPdf
	err error
}

func (w *pageWriter) setFont(size float64) {
	if w.err == nil {
		w.err = w.pdf.SetFont("DejaVu", "", size)
	}
}

func (w *pageWriter) cell(text string) {
	if w.err != nil {
		return
	}
	if w.pdf.GetY() > pageBottom {
		w.pdf.AddPage()
	}
	w.err = w.pdf.Cell(nil, text)
	w.pdf.Br(lineHeight)
}

func (w *pageWriter) heading(size float64, text string) {
	w.setFont(size)
	w.cell(text)
	w.pdf.Br(4)
}

func (w *pageWriter) line(size float64, text string) {
	w.setFont(size)
	w.cell(text)
}

func (w *pageWriter) paragraph(size float64, text string) {
	w.setFont(size)
	for _, para := range strings.Split(text, "\n") {
		if w.err != nil {
			return
		}
		if strings.TrimSpace(para) == "" {
			w.pdf.Br(lineHeight / 2)
			continue
		}
		lines, err := w.pdf.SplitText(para, pageWidth)
		if err != nil {
			w.err = err
			return
		}
		for _, l := range lines {
			w.cell(l)
		}
	}
}

func (w *pageWriter) gap() {
	w.pdf.Br(lineHeight)
}

func plainSummary(st *triage.CaseState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Relatório de triagem %s\n\n", st.ThreadID)
	for _, m := range st.Transcript() {
		fmt.Fprintf(&b, "%s: %s\n", speaker(m.Role), m.Content)
	}
	return b.String()
}

func speaker(r triage.Role) string {
	switch r {
	case triage.RoleHuman:
		return "Usuário"
	case triage.RoleAssistant:
		return "Assistente"
	default:
		return string(r)
	}
}

func countQuestions(st *triage.CaseState) int {
	n := 0
	for _, m := range st.Transcript() {
		if m.Role == triage.RoleAssistant {
			n++
		}
	}
	if st.FinalAnswer != nil && n > 0 {
		n--
	}
	return n
}

func orDash(p *string) string {
	if p == nil || *p == "" {
		return "-"
	}
	return *p
}
