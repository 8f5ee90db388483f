package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/galeed/Conversor/internal/convert"
	"github.com/galeed/Conversor/internal/domain"
	"github.com/galeed/Conversor/internal/engine"
)

func main() {
	rootCmd := newRootCmd()

	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		format    string
		rate      int
		depth     int
		outputDir string
		debug     bool
	)

	rootCmd := &cobra.Command{
		Use:           "conversor-cli <media-file>",
		Short:         "Convert an audio/video file to wav, flac, or mp3",
		Long:          "Convert an audio/video file to wav, flac, or mp3 using the bundled transcoding engine.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if debug {
				slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
					Level: slog.LevelDebug,
				})))
			}

			inputPath := args[0]
			if _, err := os.Stat(inputPath); errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("input file not found: %s", inputPath)
			}

			return run(cmd, inputPath, domain.ConversionOptions{
				TargetFormat: format,
				SampleRate:   rate,
				BitDepth:     depth,
			}, outputDir)
		},
	}

	rootCmd.Flags().StringVarP(&format, "format", "f", "wav", "target format: wav, flac, or mp3")
	rootCmd.Flags().IntVarP(&rate, "rate", "r", 44100, "output sample rate in Hz")
	rootCmd.Flags().IntVarP(&depth, "depth", "b", 16, "output bit depth: 16, 24, or 32 (wav only)")
	rootCmd.Flags().StringVarP(&outputDir, "output-dir", "o", ".", "directory for the converted file")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")

	return rootCmd
}

// run bootstraps the engine if needed and executes one conversion.
func run(cmd *cobra.Command, inputPath string, opts domain.ConversionOptions, outputDir string) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolve user home: %w", err)
	}
	appDir := filepath.Join(homeDir, ".conversor")

	lifecycle := engine.NewLifecycle(filepath.Join(appDir, "bin"), func(line string) {
		slog.Info(line)
	})
	if err := lifecycle.Bootstrap(cmd.Context()); err != nil {
		return fmt.Errorf("load transcoding engine: %w", err)
	}

	workspace, err := engine.NewWorkspace(filepath.Join(appDir, "workspace"))
	if err != nil {
		return fmt.Errorf("prepare engine workspace: %w", err)
	}

	runner := engine.NewRunner(lifecycle.FFmpegPath(), lifecycle.FFprobePath(), workspace.Dir())
	pipeline := convert.NewPipeline(runner, workspace)

	result, err := pipeline.Run(cmd.Context(), convert.Request{
		InputPath: inputPath,
		Options:   opts,
		OutputDir: outputDir,
		OnStage: func(stage string) {
			slog.Debug("stage", "name", stage)
		},
		OnMessage: func(line string) {
			slog.Info(line)
		},
		OnLog: func(log convert.CommandLog) {
			slog.Debug("command finished",
				"command", log.Command,
				"exitCode", log.ExitCode,
				"stderr", log.Stderr,
			)
		},
	})
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(os.Stdout, result.OutputPath)
	return err
}
