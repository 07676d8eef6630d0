package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"docqa/eval"

	"github.com/spf13/cobra"
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Run a question dataset against the latest session",
	Long: `Ask every question of a CSV dataset against the latest indexed session and
write one JSON record per question. With --judge each answer is scored for
groundedness, answer relevance and context relevance.`,
	Args: cobra.NoArgs,
	RunE: runEval,
}

func init() {
	fs := evalCmd.Flags()
	fs.String("dataset", "", "CSV file with a user_input or question column")
	fs.String("output", "", "JSONL result file")
	fs.Duration("interval", 0, "minimum time between questions")
	fs.Bool("judge", false, "score answers with the chat model")

	bindFlag(fs, "eval.dataset", "dataset")
	bindFlag(fs, "eval.output", "output")
	bindFlag(fs, "eval.interval", "interval")
	bindFlag(fs, "eval.judge", "judge")
	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	questions, err := eval.LoadFile(cfg.Eval.Dataset)
	if err != nil {
		return err
	}

	s, err := newStack(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer s.Close()

	sessionID, mode, err := resolveSession(ctx, cfg, s, "", modeFlagSet())
	if err != nil {
		return err
	}
	e, err := newEngine(cfg, s, sessionID, mode)
	if err != nil {
		return err
	}
	defer e.Close()

	if dir := filepath.Dir(cfg.Eval.Output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output dir: %w", err)
		}
	}
	out, err := os.Create(cfg.Eval.Output)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer out.Close()

	opts := []eval.RunnerOption{eval.WithInterval(cfg.Eval.Interval)}
	if cfg.Eval.Judge {
		opts = append(opts, eval.WithJudge(eval.NewJudge(s.chatModel, cfg.Retrieval.Concurrency)))
	}

	cmd.Printf("Evaluating %d questions against session %s (%s)\n", len(questions), sessionID, mode)
	summary, err := eval.NewRunner(e, out, opts...).Run(ctx, questions)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	cmd.Println(string(data))
	cmd.Printf("Results written to %s\n", cfg.Eval.Output)
	return nil
}
