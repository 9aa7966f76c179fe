package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"medical-triage-agent/internal/app"
	"medical-triage-agent/internal/checkpoint"
	"medical-triage-agent/internal/config"
	"medical-triage-agent/internal/platform/logging"
	"medical-triage-agent/internal/triage"
)

const maxIterations = 10

var threadFlag string

func main() {
	rootCmd := &cobra.Command{
		Use:   "triage",
		Short: "Medical triage router from the terminal",
		Long: `triage runs the case router locally against the configured model
	backend and checkpoint store. Set MODEL_PROVIDER=mock to try it without
	API keys.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&threadFlag, "thread", "", "thread id (a new one is generated when empty)")

	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(stateCmd())
	rootCmd.AddCommand(migrateCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type session struct {
	machine *triage.Machine
	close   func()
}

func setup(ctx context.Context) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := logging.New(cfg.LogLevel, cfg.LogPretty)

	store, closeStore, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	machine, err := app.NewMachine(ctx, cfg, store, log)
	if err != nil {
		closeStore()
		return nil, err
	}
	return &session{machine: machine, close: closeStore}, nil
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [case description]",
		Short: "Describe a case and answer clarification questions interactively",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			in := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()

			input := ""
			if len(args) == 1 {
				input = args[0]
			} else {
				if input, err = prompt(in, out, "Descreva o caso: "); err != nil {
					return err
				}
			}

			threadID := threadFlag
			if threadID == "" {
				threadID = uuid.NewString()
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "thread %s\n", threadID)
			return chat(cmd.Context(), rt.machine, threadID, input, in, out)
		},
	}
}

func stateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Print the checkpoint of a thread as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if threadFlag == "" {
				return errors.New("--thread is required")
			}
			rt, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			st, err := rt.machine.State(cmd.Context(), threadFlag)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply checkpoint schema migrations to DATABASE_URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfg.Store.DatabaseURL == "" {
				return errors.New("DATABASE_URL is not set")
			}
			if err := checkpoint.Migrate(cfg.Store.DatabaseURL); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

type engine interface {
	Start(ctx context.Context, threadID, text string) (*triage.Outcome, error)
	Resume(ctx context.Context, threadID, answer string) (*triage.Outcome, error)
}

// chat runs one case to completion, asking the user for each clarification.
func chat(ctx context.Context, m engine, threadID, input string, in *bufio.Reader, out io.Writer) error {
	fmt.Fprintf(out, "Usuário: %s\n", input)

	outcome, err := m.Start(ctx, threadID, input)
	if err != nil {
		return err
	}

	for i := 0; i < maxIterations; i++ {
		if outcome.Suspended == nil {
			if outcome.Escalated {
				fmt.Fprintln(out, "(limite de esclarecimentos atingido, caso tratado como emergencial)")
			}
			fmt.Fprintf(out, "Assistente: %s\n", outcome.FinalAnswer)
			return nil
		}

		fmt.Fprintf(out, "Assistente: %s\n", outcome.Suspended.Question)
		answer, err := prompt(in, out, "Digite a sua resposta: ")
		if err != nil {
			return err
		}
		if outcome, err = m.Resume(ctx, threadID, answer); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "Reached maximum iterations (%d)\n", maxIterations)
	return nil
}

func prompt(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
