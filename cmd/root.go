package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "convoloop",
	Short: "Multi-turn tool-calling conversations with LLM providers",
	Long: `convoloop runs conversations against LLM providers, streaming
responses and executing tool calls across turns until the model
produces a final answer.

Examples:
  convoloop ask "What is the capital of France?"
  convoloop ask "What time is it in Tokyo?" --final-only
  cat notes.txt | convoloop ask -p openai:gpt-4o "Summarize this"
  convoloop chat
  convoloop sessions list`,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
}

var rootDebug bool

func init() {
	rootCmd.PersistentFlags().BoolVar(&rootDebug, "debug", false, "Emit per-event debug logs")
	cobra.OnInitialize(func() {
		if rootDebug {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	})
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
