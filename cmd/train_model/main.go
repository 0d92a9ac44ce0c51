package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"tempcast/config"
	"tempcast/db"
	"tempcast/logging"
	"tempcast/training"
)

var (
	configPath string
	outputDir  string
	limit      int

	rootCmd = &cobra.Command{
		Use:          "train_model",
		Short:        "Train the candidate regressors and save the best one",
		SilenceUsage: true,
		RunE:         runTrain,
	}
	historyCmd = &cobra.Command{
		Use:          "history",
		Short:        "List recorded training runs",
		SilenceUsage: true,
		RunE:         runHistory,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "config file path")
	rootCmd.Flags().StringVar(&outputDir, "output-dir", "", "artifact output directory (overrides training.output_dir)")
	historyCmd.Flags().IntVar(&limit, "limit", 10, "number of runs to show")
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("train_model: %v", err)
	}
}

func runTrain(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if outputDir != "" {
		cfg.Training.OutputDir = outputDir
	}

	logger, _, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := training.OptionsFromConfig(cfg)
	opts.Logger = logger
	if cfg.Database.Path != "" {
		store, err := db.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		opts.Recorder = store
	}

	report, err := training.Run(ctx, opts)
	if err != nil {
		logger.Error("training failed", zap.Error(err))
		return err
	}
	printReport(cmd.OutOrStdout(), report)
	return nil
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(context.Background(), limit)
	if err != nil {
		return err
	}
	p := message.NewPrinter(language.English)
	for _, run := range runs {
		p.Fprintf(cmd.OutOrStdout(), "%s  %s  best=%s mse=%.6f  train=%d test=%d\n",
			run.TrainedAt.Format("2006-01-02 15:04:05"), run.RunID, run.BestModel, run.BestMSE, run.TrainSize, run.TestSize)
		for _, score := range run.Scores {
			p.Fprintf(cmd.OutOrStdout(), "    %-24s %.6f\n", score.ModelName, score.MSE)
		}
	}
	return nil
}

func printReport(w io.Writer, report *training.Report) {
	p := message.NewPrinter(language.English)
	p.Fprintf(w, "Created dataset with %d records\n", report.Dataset.Count)
	// years are printed as plain strings, %d would add digit grouping
	p.Fprintf(w, "Year range: %s - %s\n", strconv.Itoa(report.Dataset.MinYear), strconv.Itoa(report.Dataset.MaxYear))
	p.Fprintf(w, "Temperature change range: %.3f - %.3f\n", report.Dataset.MinChange, report.Dataset.MaxChange)
	p.Fprintf(w, "Train/test split: %d/%d\n\n", report.TrainSize, report.TestSize)

	p.Fprintln(w, "Model performance comparison:")
	for _, score := range report.Scores {
		p.Fprintf(w, "  %s: %.6f\n", score.Name, score.MSE)
	}

	p.Fprintf(w, "\nBest model: %s\n", report.Best.Name)
	p.Fprintf(w, "Model saved to %s\n\n", report.ArtifactPath)

	p.Fprintln(w, "Sample predictions:")
	for _, prediction := range report.Predictions {
		p.Fprintf(w, "  Year %s: %.3f°C change\n", strconv.Itoa(prediction.Year), prediction.Change)
	}
	p.Fprintf(w, "\nRun %s complete\n", report.RunID)
}
