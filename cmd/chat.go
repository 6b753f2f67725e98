package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/convoloop/convoloop/internal/config"
	"github.com/convoloop/convoloop/internal/llm"
	"github.com/convoloop/convoloop/internal/session"
	"github.com/convoloop/convoloop/internal/tools"
)

var (
	chatProvider  string
	chatMaxTurns  int
	chatNoSession bool
	chatResume    string
	chatSystem    string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Start a multi-turn conversation. Each line you type becomes a user
message; the model's reply streams back, executing tools as needed.

Commands inside chat:
  /exit or /quit   leave the conversation
  /id              print the conversation id`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	AddProviderFlag(chatCmd, &chatProvider)
	AddMaxTurnsFlag(chatCmd, &chatMaxTurns, 0)
	AddNoSessionFlag(chatCmd, &chatNoSession)
	AddResumeFlag(chatCmd, &chatResume)
	chatCmd.Flags().StringVar(&chatSystem, "system", "", "System message to prepend")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := notifyContext()
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	providerName, model := "", ""
	if chatProvider != "" {
		providerName, model, err = llm.ParseProviderModel(chatProvider, cfg)
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

	store, err := session.NewStore(session.Config{
		Enabled:    cfg.Sessions.Enabled && !chatNoSession,
		Path:       cfg.Sessions.Path,
		MaxAgeDays: cfg.Sessions.MaxAgeDays,
		MaxCount:   cfg.Sessions.MaxCount,
	})
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer store.Close()

	recorder := session.NewRecorder(store, provider.Name(), model)
	engine.SetTurnCompletedCallback(recorder.Callback())

	var messages []llm.Message
	resumed := false
	if cmd.Flags().Changed("resume") {
		prior, err := resumeConversation(ctx, cmd, store, recorder, strings.TrimSpace(chatResume))
		if err != nil {
			return err
		}
		messages = prior
		resumed = true
	}
	if chatSystem != "" && !resumed {
		messages = append(messages, llm.SystemText(chatSystem))
	}

	maxTurns := chatMaxTurns
	if maxTurns == 0 {
		maxTurns = cfg.MaxTurns
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "convoloop chat (%s). Type /exit to quit.\n", provider.Name())
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	begun := resumed

	for {
		fmt.Fprint(cmd.OutOrStdout(), "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch line {
		case "/exit", "/quit":
			recorder.Finish(ctx, session.StatusComplete)
			return nil
		case "/id":
			fmt.Fprintln(cmd.OutOrStdout(), recorder.ConversationID())
			continue
		}

		userMsg := llm.UserText(line)
		if begun {
			recorder.Begin(ctx, []llm.Message{userMsg})
		} else {
			recorder.Begin(ctx, append(append([]llm.Message{}, messages...), userMsg))
			begun = true
		}
		messages = append(messages, userMsg)

		req := llm.Request{
			Model:          model,
			Messages:       messages,
			Tools:          registry.AllSpecs(),
			MaxTurns:       maxTurns,
			ConversationID: recorder.ConversationID(),
			Debug:          rootDebug,
		}

		stream, err := engine.Stream(ctx, req)
		if err != nil {
			if handleChatError(cmd, err) {
				recorder.Finish(ctx, session.StatusInterrupted)
				return nil
			}
			continue
		}
		reply, streamErr := renderChatStream(cmd, stream)
		stream.Close()
		if streamErr != nil {
			if handleChatError(cmd, streamErr) {
				recorder.Finish(ctx, session.StatusInterrupted)
				return nil
			}
			continue
		}
		if reply != "" {
			messages = append(messages, llm.AssistantText(reply))
		}
		if ctx.Err() != nil {
			break
		}
	}

	recorder.Finish(ctx, session.StatusComplete)
	return scanner.Err()
}

// handleChatError reports an error inside the REPL. Returns true when the
// REPL should exit (cancellation).
func handleChatError(cmd *cobra.Command, err error) bool {
	if llm.IsCancellation(err) {
		return true
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", renderRunError(err))
	return false
}

// renderChatStream is renderStream plus capture of the assistant's text so
// the REPL can extend the conversation locally.
func renderChatStream(cmd *cobra.Command, stream llm.Stream) (string, error) {
	var reply strings.Builder
	capture := &captureStream{inner: stream, text: &reply}
	err := renderStream(cmd, capture)
	return reply.String(), err
}

type captureStream struct {
	inner llm.Stream
	text  *strings.Builder
}

func (s *captureStream) Recv() (llm.Event, error) {
	event, err := s.inner.Recv()
	if err == nil && event.Type == llm.EventTextDelta {
		s.text.WriteString(event.Text)
	}
	return event, err
}

func (s *captureStream) Close() error { return s.inner.Close() }
