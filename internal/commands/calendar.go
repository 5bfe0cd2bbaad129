package commands

import (
	"fmt"
	"time"

	"MarketSpider/internal/calendar"

	"github.com/spf13/cobra"
)

var (
	calendarID   string
	calendarDate string
	calendarDir  string
)

var calendarCmd = &cobra.Command{
	Use:   "calendar",
	Short: "Trading calendar helpers",
}

var alignCmd = &cobra.Command{
	Use:   "align",
	Short: "Snap a date onto the nearest trading day",
	Long: `Prints the trading day reached from --date by walking in --direction.

Examples:
  # Saturday snaps back to Friday
  spider calendar align --date 2024-03-09 --calendar US

  # First KRX session on or after Lunar New Year
  spider calendar align --date 2024-02-09 --calendar KR --direction next`,
	RunE: runAlign,
}

var latestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Print the most recent completed session",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := calendar.LatestSession(time.Now(), calendarID)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), d.Format(time.DateOnly))
		return nil
	},
}

func init() {
	calendarCmd.PersistentFlags().StringVar(&calendarID, "calendar", calendar.US, "calendar id (US, KR)")
	alignCmd.Flags().StringVar(&calendarDate, "date", "", "date to align (YYYY-MM-DD), defaults to today")
	alignCmd.Flags().StringVar(&calendarDir, "direction", string(calendar.Previous), "previous or next")

	calendarCmd.AddCommand(alignCmd, latestCmd)
	rootCmd.AddCommand(calendarCmd)
}

func runAlign(cmd *cobra.Command, args []string) error {
	date := time.Now()
	if calendarDate != "" {
		d, err := parseDate(calendarDate)
		if err != nil {
			return err
		}
		date = d.Time
	}
	dir, err := calendar.ParseDirection(calendarDir)
	if err != nil {
		return err
	}
	aligned, err := calendar.Align(date, calendarID, dir)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), aligned.Format(time.DateOnly))
	return nil
}
