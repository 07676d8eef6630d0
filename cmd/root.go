// Package cmd implements the docqa command line.
package cmd

import (
	"context"
	"fmt"
	"os"

	"docqa/config"
	"docqa/llm/providers"

	"github.com/kart-io/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	configFile string

	v               = viper.New()
	cfg             *config.Config
	shutdownTracing = func(context.Context) {}
)

var rootCmd = &cobra.Command{
	Use:   "docqa",
	Short: "Ask questions about a document",
	Long: `docqa indexes a document (PDF, text, Markdown or HTML) into a vector store
and answers questions about it with retrieval, reranking and a chat model.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		shutdownTracing(context.Background())
		_ = logger.Flush()
	},
}

func init() {
	fs := rootCmd.PersistentFlags()
	fs.StringVarP(&configFile, "config", "c", "", "path to config file (default docqa.yaml)")
	fs.String("store", "", "vector index backend (redis|milvus|memory)")
	fs.String("mode", "", "retrieval mode (standard|sentence-window)")
	fs.String("reranker", "", "rerank scorer (lexical|cohere|llm)")
	fs.String("log-level", "", "log level (DEBUG|INFO|WARN|ERROR)")

	bindFlag(fs, "index.store", "store")
	bindFlag(fs, "chunk.mode", "mode")
	bindFlag(fs, "retrieval.reranker", "reranker")
	bindFlag(fs, "log.level", "log-level")
}

// bindFlag lets a flag override the config key when it is set
func bindFlag(fs *pflag.FlagSet, key, name string) {
	if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", name, err))
	}
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(v, configFile)
	if err != nil {
		return err
	}

	lg, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	logger.SetGlobal(lg)

	shutdown, err := providers.SetupTracing(cmd.Context(), cfg.TracingProvider())
	if err != nil {
		logger.Warnw("tracing disabled", "error", err)
	} else {
		shutdownTracing = shutdown
	}
	return nil
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
