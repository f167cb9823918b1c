package ics

import (
	"crypto/sha256"
	"encoding/hex"

	ical "github.com/arran4/golang-ical"
)

// Normalize returns a copy of cal without volatile properties (DTSTAMP)
// so that two renderings of the same content serialise identically.
func Normalize(cal *ical.Calendar) *ical.Calendar {
	out := &ical.Calendar{
		CalendarProperties: cal.CalendarProperties,
		Components:         make([]ical.Component, 0, len(cal.Components)),
	}
	for _, c := range cal.Components {
		ve, ok := c.(*ical.VEvent)
		if !ok {
			out.Components = append(out.Components, c)
			continue
		}
		props := make([]ical.IANAProperty, 0, len(ve.Properties))
		for _, p := range ve.Properties {
			if p.IANAToken == string(ical.ComponentPropertyDtstamp) {
				continue
			}
			props = append(props, p)
		}
		out.Components = append(out.Components, &ical.VEvent{
			ComponentBase: ical.ComponentBase{Properties: props, Components: ve.Components},
		})
	}
	return out
}

// Etag is the quoted sha256 of the normalised serialisation of cal.
func Etag(cal *ical.Calendar) string {
	sum := sha256.Sum256([]byte(Normalize(cal).Serialize()))
	return `"` + hex.EncodeToString(sum[:]) + `"`
}
