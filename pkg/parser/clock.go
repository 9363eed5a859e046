package parser

import (
	"time"

	"takao35/pkg/timeutil"
)

type clockResult struct {
	hour, minute int
	hasMinute    bool
	departure    time.Time // zero unless the full timestamp parsed
}

// resolveClock derives the departure wall clock in stages:
//  1. the full ISO timestamp, which also yields the absolute departure;
//  2. the HH:MM after the "T" separator when the offset is unreadable;
//  3. the operation's hour hint, which cannot place a departure on its own
//     and so leaves the minute unresolved.
func resolveClock(timeISO string, hourHint int, hasHint bool) clockResult {
	if t, err := timeutil.ParseTimestamp(timeISO); err == nil {
		return clockResult{hour: t.Hour(), minute: t.Minute(), hasMinute: true, departure: t}
	}
	if h, m, err := timeutil.LenientHHMM(timeISO); err == nil {
		return clockResult{hour: h, minute: m, hasMinute: true}
	}
	if hasHint {
		return clockResult{hour: hourHint}
	}
	return clockResult{}
}
