package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect or drop the latest session",
}

var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the latest session and its index entries",
	Args:  cobra.NoArgs,
	RunE:  runSessionShow,
}

var sessionDropCmd = &cobra.Command{
	Use:   "drop [session-id]",
	Short: "Remove a session from the index",
	Long:  `Remove a session's entries from the vector index. Without an id the latest session is dropped and forgotten.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSessionDrop,
}

func init() {
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionDropCmd)
	rootCmd.AddCommand(sessionCmd)
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := newStack(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer s.Close()

	rec, err := s.registry.Resolve(ctx)
	if err != nil {
		return err
	}
	info, err := s.index.Info(ctx, rec.ID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(map[string]any{
		"session": rec,
		"index":   info,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func runSessionDrop(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := newStack(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer s.Close()

	latest, err := s.registry.Resolve(ctx)
	var id string
	switch {
	case len(args) == 1:
		id = args[0]
	case err != nil:
		return err
	default:
		id = latest.ID
	}

	if err := s.index.Drop(ctx, id); err != nil {
		return err
	}
	if latest.ID == id {
		if err := s.registry.Clear(ctx); err != nil {
			return err
		}
	}
	cmd.Printf("Dropped session %s\n", id)
	return nil
}
