package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/convoloop/convoloop/internal/config"
	"github.com/convoloop/convoloop/internal/llm"
	"github.com/convoloop/convoloop/internal/session"
	"github.com/convoloop/convoloop/internal/tools"
)

var (
	askProvider  string
	askMaxTurns  int
	askFinalOnly bool
	askNoSession bool
	askResume    string
	askTools     string
	askSystem    string
	askNoStream  bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question and stream the answer",
	Long: `Ask the model a question and stream the response, executing any
tool calls it makes along the way.

Examples:
  convoloop ask "What is the capital of France?"
  convoloop ask "What time is it in Tokyo?"
  convoloop ask "Summarize main.go" --final-only
  cat error.log | convoloop ask "What went wrong?"`,
	Args: cobra.MinimumNArgs(0),
	RunE: runAsk,
}

func init() {
	AddProviderFlag(askCmd, &askProvider)
	AddMaxTurnsFlag(askCmd, &askMaxTurns, 0)
	AddFinalOnlyFlag(askCmd, &askFinalOnly)
	AddNoSessionFlag(askCmd, &askNoSession)
	AddResumeFlag(askCmd, &askResume)
	askCmd.Flags().StringVar(&askTools, "tools", "", "Comma-separated tool allowlist (default: all built-in tools)")
	askCmd.Flags().StringVar(&askSystem, "system", "", "System message to prepend")
	askCmd.Flags().BoolVar(&askNoStream, "no-stream", false, "Use the provider's non-streaming call and print the answer at once")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")

	// Piped stdin becomes context ahead of the question.
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		piped, err := io.ReadAll(os.Stdin)
		if err == nil && len(piped) > 0 {
			if question == "" {
				question = string(piped)
			} else {
				question = string(piped) + "\n\n" + question
			}
		}
	}
	if strings.TrimSpace(question) == "" {
		return fmt.Errorf("question required")
	}

	ctx, stop := notifyContext()
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	providerName, model := "", ""
	if askProvider != "" {
		providerName, model, err = llm.ParseProviderModel(askProvider, cfg)
		if err != nil {
			return err
		}
	}

	provider, err := llm.NewProvider(cfg, providerName, model)
	if err != nil {
		return err
	}

	registry := tools.DefaultRegistry()
	engine := llm.NewEngine(provider, registry)
	if selected := tools.ParseToolList(askTools); selected != nil {
		names := make([]string, 0, len(selected))
		for name := range selected {
			names = append(names, name)
		}
		engine.SetAllowedTools(names)
	}

	sessionCfg := session.Config{
		Enabled:    cfg.Sessions.Enabled && !askNoSession,
		Path:       cfg.Sessions.Path,
		MaxAgeDays: cfg.Sessions.MaxAgeDays,
		MaxCount:   cfg.Sessions.MaxCount,
	}
	store, err := session.NewStore(sessionCfg)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer store.Close()

	recorder := session.NewRecorder(store, provider.Name(), model)

	var messages []llm.Message
	resumed := false
	if cmd.Flags().Changed("resume") {
		prior, err := resumeConversation(ctx, cmd, store, recorder, strings.TrimSpace(askResume))
		if err != nil {
			return err
		}
		messages = prior
		resumed = true
	}
	if askSystem != "" && !resumed {
		messages = append(messages, llm.SystemText(askSystem))
	}
	userMsg := llm.UserText(question)
	messages = append(messages, userMsg)

	engine.SetTurnCompletedCallback(recorder.Callback())
	if resumed {
		// Prior messages are already in the store.
		recorder.Begin(ctx, []llm.Message{userMsg})
	} else {
		recorder.Begin(ctx, messages)
	}

	maxTurns := askMaxTurns
	if maxTurns == 0 {
		maxTurns = cfg.MaxTurns
	}
	filter := llm.FilterAll
	if askFinalOnly {
		filter = llm.FilterFinal
	}
	req := llm.Request{
		Model:          model,
		Messages:       messages,
		Tools:          registry.AllSpecs(),
		MaxTurns:       maxTurns,
		Filter:         filter,
		ConversationID: recorder.ConversationID(),
		Debug:          rootDebug,
	}

	if askNoStream {
		completion, err := engine.Complete(ctx, req)
		if err != nil {
			recorder.Finish(ctx, finishStatus(ctx, err))
			return renderRunError(err)
		}
		fmt.Println(strings.TrimRight(completion.Text, "\n"))
		recorder.Finish(ctx, session.StatusComplete)
		return nil
	}

	stream, err := engine.Stream(ctx, req)
	if err != nil {
		recorder.Finish(ctx, finishStatus(ctx, err))
		return renderRunError(err)
	}
	defer stream.Close()

	if err := renderStream(cmd, stream); err != nil {
		recorder.Finish(ctx, finishStatus(ctx, err))
		return renderRunError(err)
	}
	recorder.Finish(ctx, session.StatusComplete)
	return nil
}

func resumeConversation(ctx context.Context, cmd *cobra.Command, store session.Store, recorder *session.Recorder, id string) ([]llm.Message, error) {
	if id == "" {
		conv, err := store.LatestConversation(ctx)
		if err != nil {
			return nil, err
		}
		if conv == nil {
			return nil, fmt.Errorf("no conversation to resume")
		}
		id = conv.ID
	}
	msgs, err := recorder.Resume(ctx, id)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		return nil, fmt.Errorf("conversation not found: %s", id)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "resuming conversation %s\n", id)
	return msgs, nil
}

// renderStream prints events until the stream ends. Text goes to stdout,
// tool activity to stderr.
func renderStream(cmd *cobra.Command, stream llm.Stream) error {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	sawText := false

	for {
		event, err := stream.Recv()
		if err == io.EOF {
			if sawText {
				fmt.Fprintln(out)
			}
			return nil
		}
		if err != nil {
			return err
		}

		switch event.Type {
		case llm.EventTextDelta:
			fmt.Fprint(out, event.Text)
			sawText = true
		case llm.EventToolExecStart:
			if event.ToolInfo != "" {
				fmt.Fprintf(errOut, "⚙ %s %s\n", event.ToolName, event.ToolInfo)
			} else {
				fmt.Fprintf(errOut, "⚙ %s\n", event.ToolName)
			}
		case llm.EventToolExecEnd:
			if !event.ToolSuccess {
				fmt.Fprintf(errOut, "✗ %s failed\n", event.ToolName)
			}
		case llm.EventToolCall:
			// Delivered unexecuted: print it so the caller can act on it.
			fmt.Fprintf(errOut, "tool call (not executed): %s %s\n",
				event.Tool.Name, llm.ExtractToolInfo(*event.Tool))
		case llm.EventError:
			fmt.Fprintf(errOut, "error: %v\n", event.Err)
		}
	}
}

func finishStatus(ctx context.Context, err error) session.Status {
	if llm.IsCancellation(err) || ctx.Err() != nil {
		return session.StatusInterrupted
	}
	return session.StatusError
}

// renderRunError maps taxonomy errors onto friendly messages.
func renderRunError(err error) error {
	if llm.IsCancellation(err) {
		fmt.Fprintln(os.Stderr, "interrupted")
		return nil
	}
	var limitErr *llm.IterationLimitError
	if errors.As(err, &limitErr) {
		return fmt.Errorf("conversation did not converge within %d turns", limitErr.Limit)
	}
	var transportErr *llm.TransportError
	if errors.As(err, &transportErr) {
		return fmt.Errorf("provider %s: %v", transportErr.Provider, transportErr.Err)
	}
	return err
}
