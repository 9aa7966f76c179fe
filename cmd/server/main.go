package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"medical-triage-agent/internal/agent"
	"medical-triage-agent/internal/app"
	"medical-triage-agent/internal/config"
	"medical-triage-agent/internal/consultation"
	"medical-triage-agent/internal/platform/logging"
	"medical-triage-agent/internal/platform/telegram"
	"medical-triage-agent/internal/report"
)

func main() {
	log := logging.New("info", false)
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	log = logging.New(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	// 1. Infrastructure
	store, closeStore, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()
	app.StartJanitor(ctx, cfg, store, log)

	machine, err := app.NewMachine(ctx, cfg, store, log)
	if err != nil {
		return err
	}

	// 2. Clients
	var stt consultation.STTClient
	if cfg.Speech.STTURL != "" {
		stt = agent.NewWhisperClient(cfg.Speech.STTURL, cfg.Speech.Language)
	}
	var tts consultation.TTSClient
	if cfg.Speech.ElevenLabsAPIKey != "" {
		tts = agent.NewElevenLabsClient(cfg.Speech.ElevenLabsAPIKey, cfg.Speech.VoiceID, "")
	}

	var reportSvc consultation.ReportService
	if cfg.EscalationEnabled() {
		reportSvc = report.NewService(telegram.NewClient(cfg.Telegram.BotToken), cfg.Telegram.DoctorChatID, log)
	} else {
		log.Warn().Msg("TELEGRAM_BOT_TOKEN or DOCTOR_CHAT_ID not set, emergencial cases will not be forwarded")
	}

	// 3. Services
	svc := consultation.NewService(machine, stt, tts, reportSvc, log)
	defer svc.Close()
	handler := consultation.NewHandler(svc, log)

	// 4. Router
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(log))
	r.Use(middleware.Recoverer)

	// CORS for frontend
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization")
			if r.Method == http.MethodOptions {
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/healthz", healthz(store, log))
	r.Route("/api", func(r chi.Router) {
		consultation.RegisterRoutes(r, handler)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func healthz(store app.Store, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		n, err := store.Count(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("health check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok","threads":` + strconv.Itoa(n) + `}`))
	}
}
