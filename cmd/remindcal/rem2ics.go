package main

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/spf13/cobra"

	"remindcal/internal/ics"
	"remindcal/internal/remind"
)

type rem2icsFlags struct {
	startdate string
	months    int
	zone      string
}

func newRem2icsCmd(a *app) *cobra.Command {
	f := &rem2icsFlags{}
	cmd := &cobra.Command{
		Use:   "rem2ics [infile|-] [outfile]",
		Short: "Convert a Remind file to iCalendar",
		Long: `Runs remind on infile (default: the configured remind file) and writes
every reminder as a VEVENT. "-" reads reminders from stdin.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRem2ics(cmd, a, f, args)
		},
	}
	cmd.Flags().StringVarP(&f.startdate, "startdate", "s", "", "start of the computed window, YYYY-MM-DD (default: today)")
	cmd.Flags().IntVarP(&f.months, "months", "m", remind.DefaultMonths, "number of months to compute")
	cmd.Flags().StringVarP(&f.zone, "zone", "z", "", "zone of the Remind file (default: config timezone)")
	return cmd
}

func runRem2ics(cmd *cobra.Command, a *app, f *rem2icsFlags, args []string) error {
	ctx := cmd.Context()

	zone, err := a.zone(f.zone)
	if err != nil {
		return err
	}
	start := time.Now().In(zone)
	if f.startdate != "" {
		start, err = time.ParseInLocation("2006-01-02", f.startdate, zone)
		if err != nil {
			return fmt.Errorf("invalid --startdate %q: %w", f.startdate, err)
		}
	}
	if f.months < 1 {
		return fmt.Errorf("invalid --months %d", f.months)
	}

	infile := argOr(args, 0, a.cfg.RemindFile)
	outfile := argOr(args, 1, stdio)

	m := remind.NewManager(infile, remind.NewExecTool(a.cfg.RemindBinary),
		remind.WithZone(zone),
		remind.WithHost(a.cfg.Host),
		remind.WithWindow(start, f.months),
		remind.WithCalendarOptions(ics.Options{AlarmMinutes: a.cfg.AlarmMinutes}),
	)

	var cal *ical.Calendar
	if infile == stdio {
		lines, err := readInput(cmd, stdio)
		if err != nil {
			return err
		}
		events, err := m.ParseStdin(ctx, lines)
		if err != nil {
			return err
		}
		cal, err = ics.NewCalendar(events, time.Now(), ics.Options{AlarmMinutes: a.cfg.AlarmMinutes})
		if err != nil {
			return err
		}
	} else {
		cal, err = m.All(ctx, "")
		if err != nil {
			return err
		}
	}
	return writeOutput(cmd, outfile, ics.Serialize(cal))
}
