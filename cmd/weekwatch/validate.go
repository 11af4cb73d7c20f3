package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/weekwatch/internal/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the WeekWatch configuration file for syntax and semantic errors.`,
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation failed: %v\n", err)
		return err
	}

	fmt.Fprintf(os.Stdout, "✅ Configuration is valid: %s\n\n", configPath)

	cyan := color.New(color.FgCyan, color.Bold)
	cyan.Println("Effective settings:")
	fmt.Printf("  storage:            %s\n", cfg.Storage.Type)
	fmt.Printf("  timezone:           %s\n", cfg.Tracking.Timezone)
	fmt.Printf("  min session:        %s\n", cfg.Tracking.MinSessionDuration)
	fmt.Printf("  opt-out cutoff:     first %d weekdays\n", cfg.Tracking.OptOutCutoffDays)
	fmt.Printf("  single-day minimum: %s\n", cfg.Evaluation.SingleDayMinimum)
	fmt.Printf("  multi-day minimum:  %s\n", cfg.Evaluation.MultiDayMinimum)
	fmt.Printf("  weekly goal:        %s\n", cfg.Evaluation.WeeklyGoal)
	fmt.Printf("  bridge:             %s\n", cfg.Bridge.BaseURL)
	if cfg.Webhook.Enabled {
		fmt.Printf("  webhook:            %s\n", cfg.Webhook.URL)
	} else {
		fmt.Printf("  webhook:            disabled\n")
	}

	loc, _ := time.LoadLocation(cfg.Tracking.Timezone)
	fmt.Printf("\nCurrent time in tracking timezone: %s\n", time.Now().In(loc).Format(time.RFC1123))

	return nil
}
