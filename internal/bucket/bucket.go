package bucket

import (
	"fmt"
	"strings"
)

/*
	Buckets are aligned to the Unix epoch: start = floor(ts / period) * period.
	Weekly buckets therefore start on Thursday 00:00 UTC (1970-01-01 was a Thursday).
	Changing the origin silently moves historical movements into other buckets, so it is fixed here.
*/

// Period length in seconds
type Period int64

const (
	Day  Period = 86_400
	Week Period = 7 * Day
)

// Both levels are written for every movement
var All = []Period{Day, Week}

func (p Period) Name() string {
	switch p {
	case Day:
		return "daily"
	case Week:
		return "weekly"
	default:
		return fmt.Sprintf("%ds", int64(p))
	}
}

func (p Period) String() string {
	return p.Name()
}

func ParsePeriod(s string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily", "day":
		return Day, nil
	case "weekly", "week":
		return Week, nil
	default:
		return 0, fmt.Errorf("unknown period %q", s)
	}
}

// Start returns the first second of the bucket containing ts; integer floor, also for ts < 0
func Start(ts int64, p Period) int64 {
	length := int64(p)
	if length <= 0 {
		panic("bucket: period must be positive")
	}

	q := ts / length
	if ts%length < 0 {
		q--
	}
	return q * length
}

// End returns the exclusive upper bound of the bucket containing ts
func End(ts int64, p Period) int64 {
	return Start(ts, p) + int64(p)
}
