package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/alanyoungcy/deltasync/internal/app"
	"github.com/alanyoungcy/deltasync/internal/config"
)

var historyCount int

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and print it with secrets redacted",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		redacted := config.RedactedConfig(cfg)
		return toml.NewEncoder(os.Stdout).Encode(redacted)
	},
}

var datesCmd = &cobra.Command{
	Use:   "dates",
	Short: "List trading dates with recorded quotes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		application := app.New(cfg, logger)
		defer application.Close()

		dates, err := application.AvailableDates(cmd.Context())
		if err != nil {
			return err
		}
		for _, d := range dates {
			fmt.Println(d)
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the most recent runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		application := app.New(cfg, logger)
		defer application.Close()

		reports, err := application.RecentRuns(cmd.Context(), historyCount)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "STARTED\tDATE\tMODE\tDELTAS\tMATCHED\tTOOK\tERROR")
		for _, r := range reports {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
				r.StartedAt.Format(time.RFC3339), r.Date, r.Mode, r.Deltas, r.Positions.Matched,
				time.Duration(r.DurationMs)*time.Millisecond, r.Error)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyCount, "count", 20, "number of runs to show")
	rootCmd.AddCommand(validateCmd, datesCmd, historyCmd)
}
