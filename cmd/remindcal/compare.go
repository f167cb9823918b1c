package main

import (
	"bytes"
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/spf13/cobra"

	"remindcal/internal/compare"
	"remindcal/internal/ics"
	appLog "remindcal/internal/log"
)

func newCompareCmd(a *app) *cobra.Command {
	var zoneName string
	cmd := &cobra.Command{
		Use:   "compare first second first_out second_out",
		Short: "Compare two iCalendar files semantically",
		Long: `Matches the events of second against those of first. first_out receives
first without the matched events, second_out the events of second that
found no match.`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			zone, err := a.zone(zoneName)
			if err != nil {
				return err
			}
			return runCompare(cmd, zone, args[0], args[1], args[2], args[3])
		},
	}
	cmd.Flags().StringVarP(&zoneName, "zone", "z", "", "zone for floating times (default: config timezone)")
	return cmd
}

func runCompare(cmd *cobra.Command, zone *time.Location, firstIn, secondIn, firstOut, secondOut string) error {
	firstCal, err := loadCalendar(cmd, firstIn)
	if err != nil {
		return err
	}
	secondCal, err := loadCalendar(cmd, secondIn)
	if err != nil {
		return err
	}

	first, firstComps, err := ics.Events(firstCal, zone)
	if err != nil {
		return fmt.Errorf("%s: %w", firstIn, err)
	}
	second, secondComps, rejected, err := ics.Split(secondCal, zone)
	if err != nil {
		return fmt.Errorf("%s: %w", secondIn, err)
	}

	res := compare.Compare(first, second)
	for _, m := range res.Matches {
		fmt.Fprintf(cmd.OutOrStdout(), "matching %d to %d\n", m.First, m.Second)
	}

	matched := make(map[*ical.VEvent]bool, len(res.Matches))
	for _, m := range res.Matches {
		matched[firstComps[m.First]] = true
	}
	rest := &ical.Calendar{CalendarProperties: firstCal.CalendarProperties}
	for _, c := range firstCal.Components {
		if ve, ok := c.(*ical.VEvent); ok && matched[ve] {
			continue
		}
		rest.Components = append(rest.Components, c)
	}

	added := ical.NewCalendarFor("remindcal")
	for _, i := range res.AddedIndex {
		added.AddVEvent(secondComps[i])
	}
	// nothing in first can match what could not be read
	for _, ve := range rejected {
		appLog.Warn("compare: passing unconvertible event through", "uid", ve.Id())
		added.AddVEvent(ve)
	}

	if err := writeOutput(cmd, firstOut, ics.Serialize(rest)); err != nil {
		return err
	}
	return writeOutput(cmd, secondOut, ics.Serialize(added))
}

func loadCalendar(cmd *cobra.Command, name string) (*ical.Calendar, error) {
	data, err := readInput(cmd, name)
	if err != nil {
		return nil, err
	}
	cal, err := ics.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return cal, nil
}
