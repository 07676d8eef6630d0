package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"docqa/llm/engine"
	"docqa/llm/parser"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	askSession string
	askDoc     string
	askJSON    bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer one question about an indexed document",
	Long: `Answer a question from the chunks of a session. Without --session the
latest indexed session is used. With --doc the document is indexed first.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askSession, "session", "s", "", "session id (default the latest session)")
	askCmd.Flags().StringVarP(&askDoc, "doc", "d", "", "index this document before asking")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer and its trace as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	question := strings.Join(args, " ")

	s, err := newStack(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer s.Close()

	e, err := openEngine(ctx, s, askSession, askDoc, modeFlagSet())
	if err != nil {
		return err
	}
	defer e.Close()

	if askJSON {
		result, err := e.Chat(ctx, question)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(result.Trace, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal trace: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	resp, err := e.Query(ctx, question)
	if err != nil {
		return err
	}
	defer resp.Close()

	out := cmd.OutOrStdout()
	for {
		fragment, err := resp.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fmt.Fprintln(out)
			return err
		}
		fmt.Fprint(out, fragment)
	}
	fmt.Fprintln(out)

	for _, p := range resp.Trace().Reranked {
		cmd.Printf("  [%d] chunk %d (%.3f)\n", p.Rank, p.Ordinal, p.Score)
	}
	return nil
}

// openEngine returns an engine for the session, the indexed doc, or the latest session.
// modeSet tells whether --mode was given on the command line.
func openEngine(ctx context.Context, s *stack, sessionID, doc string, modeSet bool) (*engine.Engine, error) {
	if doc != "" {
		parsed, err := parser.DefaultRegistry().ParseFile(ctx, doc)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", doc, err)
		}
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		e, err := newEngine(cfg, s, sessionID, cfg.Mode())
		if err != nil {
			return nil, err
		}
		if _, err := e.Build(ctx, parsed); err != nil {
			e.Close()
			return nil, err
		}
		return e, nil
	}

	sessionID, mode, err := resolveSession(ctx, cfg, s, sessionID, modeSet)
	if err != nil {
		return nil, err
	}
	return newEngine(cfg, s, sessionID, mode)
}
