// Timeframe token resolution.

package retrieval

import "time"

// Timeframe tokens accepted from the reasoning service. "all"/"all_time"
// and unknown tokens resolve to no bound.
const (
	TimeframeLastHour = "last_hour"
	TimeframeToday    = "today"
	TimeframeThisWeek = "this_week"
	TimeframeRecent   = "recent"
	TimeframeWeeks    = "weeks"
	TimeframeMonths   = "months"
)

// ResolveTimeframe maps a timeframe token to a lower-bound timestamp.
// The second return is false when the token imposes no bound.
func ResolveTimeframe(token string, now time.Time) (time.Time, bool) {
	switch token {
	case TimeframeLastHour:
		return now.Add(-time.Hour), true
	case TimeframeToday:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()), true
	case TimeframeThisWeek:
		weekday := int(now.Weekday())
		// Weeks start on Monday; Sunday counts as six days in.
		if weekday == 0 {
			weekday = 7
		}
		start := now.AddDate(0, 0, -(weekday - 1))
		return time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, now.Location()), true
	case TimeframeRecent:
		return now.AddDate(0, 0, -3), true
	case TimeframeWeeks:
		return now.AddDate(0, 0, -14), true
	case TimeframeMonths:
		return now.AddDate(0, 0, -30), true
	default:
		return time.Time{}, false
	}
}
