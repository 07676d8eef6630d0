package cmd

import (
	"fmt"

	"docqa/tui/chat"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	chatSession string
	chatDoc     string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation about a document",
	Long: `Open a terminal chat over one session. Follow-up questions are condensed
with the conversation history. Esc cancels an answer, Ctrl+L starts over.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "", "session id (default the latest session)")
	chatCmd.Flags().StringVarP(&chatDoc, "doc", "d", "", "index this document before chatting")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := newStack(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer s.Close()

	e, err := openEngine(ctx, s, chatSession, chatDoc, modeFlagSet())
	if err != nil {
		return err
	}
	defer e.Close()

	p := tea.NewProgram(
		chat.InitialModel(ctx, e),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	return nil
}
