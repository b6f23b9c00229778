/*
Copyright © 2026 the Impex authors.
This file is part of Impex.

Impex is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Impex is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Impex.  If not, see <http://www.gnu.org/licenses/>.
*/

package impex

import (
	"fmt"
	"time"
)

// TimeRange is a closed-open interval [Start, Stop) in UTC.
type TimeRange struct {
	Start, Stop time.Time
}

// NewTimeRange returns the range [start, stop) with both instants
// converted to UTC.
func NewTimeRange(start, stop time.Time) TimeRange {
	return TimeRange{Start: start.UTC(), Stop: stop.UTC()}
}

func (r TimeRange) String() string {
	return fmt.Sprintf("[%s, %s)", r.Start.Format(time.RFC3339), r.Stop.Format(time.RFC3339))
}

// IsZero reports whether the range is unset.
func (r TimeRange) IsZero() bool { return r.Start.IsZero() && r.Stop.IsZero() }

// Duration returns Stop - Start.
func (r TimeRange) Duration() time.Duration { return r.Stop.Sub(r.Start) }

// Contains reports whether t lies within [Start, Stop).
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.Stop)
}

// Intersects reports whether r and o share any instant.
func (r TimeRange) Intersects(o TimeRange) bool {
	return r.Start.Before(o.Stop) && o.Start.Before(r.Stop)
}

// Split cuts the range into consecutive sub-ranges of at most max each.
// The sub-ranges are contiguous, non-overlapping, and their union is the
// whole range; the last one is clipped to Stop. A range no longer than max
// is returned unchanged as a single chunk.
func (r TimeRange) Split(max time.Duration) []TimeRange {
	if max <= 0 || r.Duration() <= max {
		return []TimeRange{r}
	}
	var chunks []TimeRange
	for t := r.Start; t.Before(r.Stop); t = t.Add(max) {
		stop := t.Add(max)
		if stop.After(r.Stop) {
			stop = r.Stop
		}
		chunks = append(chunks, TimeRange{Start: t, Stop: stop})
	}
	return chunks
}
