package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"
	"github.com/jkaninda/mtafiti/internal/config"
	"github.com/jkaninda/mtafiti/internal/pipeline"
)

var (
	generateConfigPath   string
	generateInstructions string
)

var generateCmd = &cobra.Command{
	Use:   "generate <topic>",
	Short: "Generate a single report and print it to stdout",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&generateConfigPath, "config", config.DefaultConfigPath(), "path to config file")
	generateCmd.Flags().StringVar(&generateInstructions, "instructions", "", "extra instructions for the report")
}

// runGenerate runs the pipeline once without a server or storage.
func runGenerate(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	cfg, err := config.Load(goutils.Env("MTAFITI_CONFIG", generateConfigPath))
	if err != nil {
		return err
	}

	provider, err := buildProvider(cfg, logger)
	if err != nil {
		return err
	}

	model := pipeline.ModelConfig{
		Model:       cfg.Pipeline.ModelName(),
		Temperature: cfg.Pipeline.ModelTemperature(),
		UseNative:   cfg.Pipeline.NativeProvider(),
	}
	engine := pipeline.NewEngine(provider, nil, nil, logger, model)

	topic := strings.Join(args, " ")
	report, err := engine.Generate(cmd.Context(), &pipeline.Request{
		Topic:        topic,
		Instructions: generateInstructions,
	})
	if err != nil {
		return fmt.Errorf("generating report: %w", err)
	}

	fmt.Println(report.FullMarkdown)
	return nil
}
