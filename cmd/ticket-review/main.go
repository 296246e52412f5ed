// Package main provides ticket-review, a CLI around the decision engine.
//
// evaluate decides a ticket offline from a saved model answer, which is how
// policy changes are checked before deployment. process runs the full AWS
// pipeline for a stored ticket.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/ticket-decision-engine/internal/config"
	"github.com/fpang/ticket-decision-engine/internal/lambdaboot"
	"github.com/fpang/ticket-decision-engine/internal/logging"
	"github.com/fpang/ticket-decision-engine/internal/review"
	"github.com/fpang/ticket-decision-engine/internal/ticket"
)

// CLI flags
var (
	ticketFlag      string
	analysisFlag    string
	visionErrorFlag string
	ticketIDFlag    string
	timeoutFlag     time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "ticket-review",
	Short: "Decide website-change tickets",
	Long: `ticket-review runs the LogicCart decision engine from the command line.

Examples:
  ticket-review evaluate --ticket ticket.json --analysis answer.txt
  ticket-review evaluate --ticket ticket.json --vision-error "ThrottlingException: Rate exceeded"
  cat answer.txt | ticket-review evaluate --ticket ticket.json --analysis -
  ticket-review process --ticket-id T-1042`,
	SilenceUsage: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		logging.Init()
	},
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Decide a ticket offline from a saved vision answer",
	RunE:  runEvaluate,
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run the full review for a stored ticket",
	RunE:  runProcess,
}

func init() {
	evaluateCmd.Flags().StringVarP(&ticketFlag, "ticket", "t", "", "Ticket JSON file")
	evaluateCmd.Flags().StringVarP(&analysisFlag, "analysis", "a", "", "Raw vision model output (file path, or - for stdin)")
	evaluateCmd.Flags().StringVar(&visionErrorFlag, "vision-error", "", "Simulate a vision failure with this error message")
	_ = evaluateCmd.MarkFlagRequired("ticket")

	processCmd.Flags().StringVar(&ticketIDFlag, "ticket-id", "", "Ticket ID to review")
	processCmd.Flags().DurationVar(&timeoutFlag, "timeout", 2*time.Minute, "Overall deadline")
	_ = processCmd.MarkFlagRequired("ticket-id")

	rootCmd.AddCommand(evaluateCmd, processCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	t, err := readTicket(ticketFlag)
	if err != nil {
		return err
	}

	ev := review.Evaluation{Ticket: t}
	if analysisFlag != "" {
		raw, err := readInput(analysisFlag, cmd.InOrStdin())
		if err != nil {
			return err
		}
		ev.RawAnalysis = raw
	}
	if visionErrorFlag != "" {
		ev.VisionErr = errors.New(visionErrorFlag)
	}

	res := review.New(review.Deps{Config: cfg}).Evaluate(ev)
	return printJSON(cmd.OutOrStdout(), res)
}

func runProcess(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeoutFlag)
	defer cancel()

	engine, _ := lambdaboot.BuildEngine(ctx, lambdaboot.InitAWS())
	res := engine.ProcessTicket(ctx, ticketIDFlag, nil)
	log.Info().Str("ticketId", ticketIDFlag).Str("decision", string(res.Decision.Decision)).Msg("Review complete")
	return printJSON(cmd.OutOrStdout(), res)
}

func readTicket(path string) (*ticket.Ticket, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ticket %s: %w", path, err)
	}
	var t ticket.Ticket
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode ticket %s: %w", path, err)
	}
	t.ApplyDefaults()
	return &t, nil
}

func readInput(path string, stdin io.Reader) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read analysis from stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read analysis %s: %w", path, err)
	}
	return string(b), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
