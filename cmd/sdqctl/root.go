package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sdq-screen/internal/config"
	"sdq-screen/internal/llm"
	"sdq-screen/internal/sdq"
	"sdq-screen/internal/service"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sdqctl",
		Short:         "Terminal tools for the SDQ screening service",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			noColor, _ := cmd.Flags().GetBool("no-color")
			if noColor || !isatty.IsTerminal(os.Stdout.Fd()) {
				color.NoColor = true
			}
		},
	}
	root.PersistentFlags().String("catalog", "", "Path to a catalog YAML file (defaults to the embedded catalog)")
	root.PersistentFlags().Bool("no-color", false, "Disable colored output")
	root.PersistentFlags().Bool("verbose", false, "Log LLM calls to stderr")

	root.AddCommand(newCatalogCmd())
	root.AddCommand(newScoreCmd())
	root.AddCommand(newTakeCmd())
	root.AddCommand(newEvalCmd())
	return root
}

// loadCatalog resuelve el flag --catalog.
func loadCatalog(cmd *cobra.Command) (*sdq.Catalog, error) {
	path, _ := cmd.Flags().GetString("catalog")
	if path == "" {
		return sdq.DefaultCatalog(), nil
	}
	return sdq.LoadCatalogFile(path)
}

func newLogger(cmd *cobra.Command) *zap.Logger {
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logger, err := zap.NewDevelopment()
		if err == nil {
			return logger
		}
	}
	return zap.NewNop()
}

// newInterpreter arma el interprete segun LLM_PROVIDER. Sin proveedor
// configurado, o con useLLM en false, se usan las reglas locales.
func newInterpreter(ctx context.Context, useLLM bool, logger *zap.Logger) (service.Interpreter, string, error) {
	if !useLLM {
		return service.KeywordInterpreter{}, llm.ProviderKeyword, nil
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, "", fmt.Errorf("load config: %w", err)
	}
	retry := llm.DefaultRetryConfig()
	retry.MaxAttempts = cfg.LLMMaxAttempts
	provider, _, err := llm.NewProvider(ctx, llm.Config{
		Provider: cfg.LLMProvider,
		APIKey:   cfg.LLMAPIKey,
		BaseURL:  cfg.LLMBaseURL,
		Model:    cfg.LLMModel,
		Retry:    retry,
	}, logger)
	if err != nil {
		return nil, "", err
	}
	if provider == nil {
		return service.KeywordInterpreter{}, llm.ProviderKeyword, nil
	}
	return service.NewLLMInterpreter(provider, logger), provider.ModelID(), nil
}

var (
	cyan   = color.New(color.FgCyan)
	bold   = color.New(color.Bold)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
)

func severityColor(s sdq.Severity) *color.Color {
	switch s {
	case sdq.SeverityAbnormal:
		return red
	case sdq.SeverityBorderline:
		return yellow
	default:
		return green
	}
}
