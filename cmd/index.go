package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"docqa/llm/parser"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	indexSession string
	indexJSON    bool
)

var indexCmd = &cobra.Command{
	Use:   "index <file>",
	Short: "Index a document into a new session",
	Long: `Parse a document, split it into chunks, embed them and store them in the
vector index. The session id is printed and recorded as the latest session.`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVarP(&indexSession, "session", "s", "", "session id (default a new UUID)")
	indexCmd.Flags().BoolVar(&indexJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	doc, err := parser.DefaultRegistry().ParseFile(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", args[0], err)
	}

	s, err := newStack(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer s.Close()

	sessionID := indexSession
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	e, err := newEngine(cfg, s, sessionID, cfg.Mode())
	if err != nil {
		return err
	}
	defer e.Close()

	report, err := e.Build(ctx, doc)
	if err != nil {
		return err
	}

	if indexJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Printf("Indexed %q (%s)\n", report.Title, doc.FileType)
	cmd.Printf("  Session:   %s\n", report.Session)
	cmd.Printf("  Chunks:    %d\n", report.Chunks)
	cmd.Printf("  Dimension: %d (%s)\n", report.Dimension, report.Model)
	cmd.Printf("  Took:      %s\n", report.Took.Round(time.Millisecond))
	return nil
}
