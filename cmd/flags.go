package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// AddProviderFlag adds the --provider/-p override flag.
func AddProviderFlag(cmd *cobra.Command, dest *string) {
	cmd.Flags().StringVarP(dest, "provider", "p", "", "Override provider, optionally with model (e.g., openai:gpt-4o)")
}

// AddMaxTurnsFlag adds the --max-turns flag.
func AddMaxTurnsFlag(cmd *cobra.Command, dest *int, def int) {
	cmd.Flags().IntVar(dest, "max-turns", def, "Maximum model round-trips before giving up")
}

// AddFinalOnlyFlag adds the --final-only flag.
func AddFinalOnlyFlag(cmd *cobra.Command, dest *bool) {
	cmd.Flags().BoolVar(dest, "final-only", false, "Suppress intermediate turns, print only the final answer")
}

// AddNoSessionFlag adds the --no-session flag.
func AddNoSessionFlag(cmd *cobra.Command, dest *bool) {
	cmd.Flags().BoolVar(dest, "no-session", false, "Do not record this conversation")
}

// AddResumeFlag adds the --resume/-r flag. Passing the flag without a
// value resumes the most recent conversation.
func AddResumeFlag(cmd *cobra.Command, dest *string) {
	cmd.Flags().StringVarP(dest, "resume", "r", "", "Continue a conversation (empty for most recent, or conversation ID)")
	cmd.Flags().Lookup("resume").NoOptDefVal = " "
}

// notifyContext returns a context cancelled on SIGINT or SIGTERM.
func notifyContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
