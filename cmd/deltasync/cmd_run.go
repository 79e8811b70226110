package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/deltasync/internal/app"
	"github.com/alanyoungcy/deltasync/internal/domain"
	"github.com/alanyoungcy/deltasync/internal/pipeline"
)

var (
	runDates []string
	runFrom  string
	runTo    string
	runReuse bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Detect deltas and reconcile positions for trading dates",
	Long: `Detect deltas from the recorded quotes and reconcile them against the
positions and failed signals of each date.

Examples:
  deltasync run --date 03-05-2023
  deltasync run --from 01-05-2023 --to 05-05-2023 --reuse
  deltasync run                        # dates from run.dates`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runPipeline(cmd, pipeline.ModeReconcile)
	},
}

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect deltas and export the summary without reconciling",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runPipeline(cmd, pipeline.ModeDetect)
	},
}

func init() {
	for _, c := range []*cobra.Command{runCmd, detectCmd} {
		c.Flags().StringSliceVar(&runDates, "date", nil, "trading date DD-MM-YYYY (repeatable)")
		c.Flags().StringVar(&runFrom, "from", "", "first trading date of a range, DD-MM-YYYY")
		c.Flags().StringVar(&runTo, "to", "", "last trading date of a range, DD-MM-YYYY")
		c.Flags().BoolVar(&runReuse, "reuse", false, "reuse cached deltas when available")
		c.MarkFlagsRequiredTogether("from", "to")
		c.MarkFlagsMutuallyExclusive("date", "from")
		rootCmd.AddCommand(c)
	}
}

func runPipeline(cmd *cobra.Command, mode string) error {
	dates, err := parseDates(runDates, runFrom, runTo)
	if err != nil {
		return err
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Mode = mode
	if runReuse {
		cfg.Run.ReuseCachedDeltas = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Info("deltasync starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", configPath),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	reports, err := application.Run(cmd.Context(), dates)
	printReports(reports)
	if err != nil {
		if errors.Is(err, cmd.Context().Err()) {
			logger.Info("run interrupted")
		}
		return err
	}
	logger.Info("deltasync finished", slog.Int("dates", len(reports)))
	return nil
}

// parseDates resolves the date flags. No flags yields nil so run.dates from
// the configuration applies.
func parseDates(dates []string, from, to string) ([]domain.TradingDate, error) {
	if from != "" {
		f, err := domain.ParseTradingDate(from)
		if err != nil {
			return nil, err
		}
		t, err := domain.ParseTradingDate(to)
		if err != nil {
			return nil, err
		}
		out := domain.DateRange(f, t)
		if len(out) == 0 {
			return nil, fmt.Errorf("empty date range %s..%s", from, to)
		}
		return out, nil
	}

	out := make([]domain.TradingDate, 0, len(dates))
	for _, s := range dates {
		d, err := domain.ParseTradingDate(s)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func printReports(reports []pipeline.Report) {
	if len(reports) == 0 {
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tMODE\tSOURCE\tDELTAS\tPOSITIONS\tMATCHED\tMISMATCHES\tFAILED MATCHED\tSTATUS")
	for _, r := range reports {
		status := "ok"
		switch {
		case r.Error != "":
			status = "error"
		case r.Skipped != "":
			status = "skipped: " + r.Skipped
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			r.Date, r.Mode, r.Source, r.Deltas,
			r.Positions.Positions, r.Positions.Matched, len(r.Mismatches),
			r.Failed.Matched, status)
	}
	_ = w.Flush()
}
