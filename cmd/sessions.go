package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/convoloop/convoloop/internal/config"
	"github.com/convoloop/convoloop/internal/llm"
	"github.com/convoloop/convoloop/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage recorded conversations",
}

var sessionsListLimit int

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded conversations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSessionStore()
		if err != nil {
			return err
		}
		defer store.Close()

		convs, err := store.ListConversations(cmd.Context(), sessionsListLimit)
		if err != nil {
			return err
		}
		if len(convs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no conversations recorded")
			return nil
		}
		for _, conv := range convs {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %-10s %2d turns  %6d tok  %-11s %-8s %s\n",
				conv.ID[:8], conv.Provider, conv.LLMTurns,
				conv.InputTokens+conv.OutputTokens, conv.Status,
				formatAge(time.Since(conv.UpdatedAt)),
				truncate(conv.Summary, 60))
		}
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a conversation's messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSessionStore()
		if err != nil {
			return err
		}
		defer store.Close()

		conv, err := resolveConversation(cmd, store, args[0])
		if err != nil {
			return err
		}
		msgs, err := store.GetMessages(cmd.Context(), conv.ID)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "conversation %s (%s, %d turns, %d tool calls)\n\n",
			conv.ID, conv.Provider, conv.LLMTurns, conv.ToolCalls)
		for _, msg := range msgs {
			fmt.Fprintf(cmd.OutOrStdout(), "[%s]\n", msg.Role)
			for _, part := range msg.Parts {
				switch part.Type {
				case llm.PartText:
					fmt.Fprintln(cmd.OutOrStdout(), part.Text)
				case llm.PartToolCall:
					fmt.Fprintf(cmd.OutOrStdout(), "→ tool call %s %s\n",
						part.ToolCall.Name, llm.ExtractToolInfo(*part.ToolCall))
				case llm.PartToolResult:
					fmt.Fprintf(cmd.OutOrStdout(), "← tool result %s: %s\n",
						part.ToolResult.Name, truncate(part.ToolResult.Content, 200))
				}
			}
			fmt.Fprintln(cmd.OutOrStdout())
		}
		return nil
	},
}

// exportedConversation is the YAML export shape.
type exportedConversation struct {
	Conversation session.Conversation `yaml:"conversation"`
	Messages     []exportedMessage    `yaml:"messages"`
}

type exportedMessage struct {
	Role    string    `yaml:"role"`
	Text    string    `yaml:"text,omitempty"`
	Created time.Time `yaml:"created_at"`
}

var sessionsExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a conversation as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSessionStore()
		if err != nil {
			return err
		}
		defer store.Close()

		conv, err := resolveConversation(cmd, store, args[0])
		if err != nil {
			return err
		}
		msgs, err := store.GetMessages(cmd.Context(), conv.ID)
		if err != nil {
			return err
		}

		export := exportedConversation{Conversation: *conv}
		for _, msg := range msgs {
			export.Messages = append(export.Messages, exportedMessage{
				Role:    string(msg.Role),
				Text:    msg.TextContent,
				Created: msg.CreatedAt,
			})
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(export)
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSessionStore()
		if err != nil {
			return err
		}
		defer store.Close()

		conv, err := resolveConversation(cmd, store, args[0])
		if err != nil {
			return err
		}
		return store.DeleteConversation(cmd.Context(), conv.ID)
	},
}

var sessionsSearchLimit int

var sessionsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search recorded conversations by message text",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSessionStore()
		if err != nil {
			return err
		}
		defer store.Close()

		results, err := store.Search(cmd.Context(), strings.Join(args, " "), sessionsSearchLimit)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no matches")
			return nil
		}
		for _, r := range results {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %-10s %s\n",
				r.ConversationID[:8], r.Provider, truncate(r.Snippet, 80))
		}
		return nil
	},
}

var sessionsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove conversations past the configured retention limits",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := openSessionStore()
		if err != nil {
			return err
		}
		defer store.Close()

		maxAge := time.Duration(cfg.Sessions.MaxAgeDays) * 24 * time.Hour
		removed, err := store.Prune(cmd.Context(), maxAge, cfg.Sessions.MaxCount)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d conversation(s)\n", removed)
		return nil
	},
}

func init() {
	sessionsListCmd.Flags().IntVarP(&sessionsListLimit, "limit", "n", 20, "Maximum conversations to list")
	sessionsSearchCmd.Flags().IntVarP(&sessionsSearchLimit, "limit", "n", 20, "Maximum results")
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsExportCmd,
		sessionsSearchCmd, sessionsDeleteCmd, sessionsPruneCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func openSessionStore() (session.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return session.NewStore(session.Config{
		Enabled:    true, // Management commands always open the real store
		Path:       cfg.Sessions.Path,
		MaxAgeDays: cfg.Sessions.MaxAgeDays,
		MaxCount:   cfg.Sessions.MaxCount,
	})
}

// resolveConversation accepts a full id or unique prefix.
func resolveConversation(cmd *cobra.Command, store session.Store, id string) (*session.Conversation, error) {
	conv, err := store.GetConversation(cmd.Context(), id)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		return conv, nil
	}

	// Prefix match against the listing.
	convs, err := store.ListConversations(cmd.Context(), 0)
	if err != nil {
		return nil, err
	}
	var match *session.Conversation
	for i := range convs {
		if len(id) > 0 && len(convs[i].ID) >= len(id) && convs[i].ID[:len(id)] == id {
			if match != nil {
				return nil, fmt.Errorf("ambiguous conversation id prefix: %s", id)
			}
			match = &convs[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("conversation not found: %s", id)
	}
	return match, nil
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
