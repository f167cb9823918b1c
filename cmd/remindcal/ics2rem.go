package main

import (
	"bytes"

	ical "github.com/arran4/golang-ical"
	"github.com/spf13/cobra"

	"remindcal/internal/ics"
	appLog "remindcal/internal/log"
	"remindcal/internal/remind"
)

type ics2remFlags struct {
	label    string
	priority int
	tags     []string
	tail     string
	sep      string
	postdate string
	posttime string
	zone     string
}

func newIcs2remCmd(a *app) *cobra.Command {
	f := &ics2remFlags{}
	cmd := &cobra.Command{
		Use:   "ics2rem [infile|-|URL] [outfile]",
		Short: "Convert iCalendar to Remind lines",
		Long: `Reads an iCalendar document from infile, stdin ("-", the default) or an
http(s) URL and writes one REM line per VEVENT.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIcs2rem(cmd, a, f, args)
		},
	}
	cmd.Flags().StringVarP(&f.label, "label", "l", "", "label for every Remind entry")
	cmd.Flags().IntVarP(&f.priority, "priority", "p", 0, "priority for every Remind entry (0..9999)")
	cmd.Flags().StringArrayVarP(&f.tags, "tag", "t", nil, "tag for every Remind entry (repeatable)")
	cmd.Flags().StringVar(&f.tail, "tail", "", "text appended to every message, e.g. %b")
	cmd.Flags().StringVar(&f.sep, "sep", "", "token separator (default: a single space)")
	cmd.Flags().StringVar(&f.postdate, "postdate", "", "text inserted after the date")
	cmd.Flags().StringVar(&f.posttime, "posttime", "", "text inserted after the time")
	cmd.Flags().StringVarP(&f.zone, "zone", "z", "", "zone of the Remind file (default: config timezone)")
	return cmd
}

// options merges the configured defaults with the flags that were set.
func (f *ics2remFlags) options(cmd *cobra.Command, a *app) remind.Options {
	d := a.cfg.Ics2Rem
	opts := remind.Options{
		Label:    d.Label,
		Priority: d.Priority,
		Tags:     d.Tags,
		Tail:     d.Tail,
		Sep:      d.Sep,
		PostDate: d.PostDate,
		PostTime: d.PostTime,
	}
	flags := cmd.Flags()
	if flags.Changed("label") {
		opts.Label = f.label
	}
	if flags.Changed("priority") {
		opts.Priority = f.priority
	}
	if flags.Changed("tag") {
		opts.Tags = f.tags
	}
	if flags.Changed("tail") {
		opts.Tail = f.tail
	}
	if flags.Changed("sep") {
		opts.Sep = f.sep
	}
	if flags.Changed("postdate") {
		opts.PostDate = f.postdate
	}
	if flags.Changed("posttime") {
		opts.PostTime = f.posttime
	}
	if opts.Priority < 0 {
		opts.Priority = 0
	}
	if opts.Priority > 9999 {
		opts.Priority = 9999
	}
	return opts
}

func runIcs2rem(cmd *cobra.Command, a *app, f *ics2remFlags, args []string) error {
	zone, err := a.zone(f.zone)
	if err != nil {
		return err
	}
	infile := argOr(args, 0, stdio)
	outfile := argOr(args, 1, stdio)

	var cal *ical.Calendar
	if ics.IsRemote(infile) {
		cal, err = ics.NewFetcher(a.cfg.CacheDir).Calendar(cmd.Context(), infile)
	} else {
		var data []byte
		data, err = readInput(cmd, infile)
		if err == nil {
			if len(bytes.TrimSpace(data)) == 0 {
				return nil
			}
			cal, err = ics.Parse(bytes.NewReader(data))
		}
	}
	if err != nil {
		return err
	}

	events, _, err := ics.Events(cal, zone)
	if err != nil {
		return err
	}
	appLog.Debug("converting events", "count", len(events))

	r := remind.Renderer{Zone: zone}
	lines, err := r.Lines(events, f.options(cmd, a))
	if err != nil {
		return err
	}
	return writeOutput(cmd, outfile, joinLines(lines))
}
