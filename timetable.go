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
	"bufio"
	"bytes"
	"fmt"
	"strings"
	"time"
)

// TimeTable is a named list of time ranges.
type TimeTable struct {
	Name   string
	Meta   map[string]string
	Ranges []TimeRange
}

// Event is one catalog entry: a time range with its own metadata.
type Event struct {
	TimeRange
	Meta map[string]string
}

// Catalog is a named list of events.
type Catalog struct {
	Name   string
	Meta   map[string]string
	Events []Event
}

// timeLayouts are the timestamp formats accepted in timetable and catalog
// documents.
var timeLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("impex: unrecognized timestamp %q", s)
}

// ParseTimeTable decodes the provider's line-oriented timetable document:
// "#" lines carry "KEY : value" metadata, data lines carry a start and a
// stop timestamp.
func ParseTimeTable(name string, data []byte) (*TimeTable, error) {
	tt := &TimeTable{Name: name, Meta: make(map[string]string)}
	err := scanDocument(data, tt.Meta, func(fields []string, lineMeta map[string]string) error {
		if len(fields) < 2 {
			return fmt.Errorf("impex: timetable %s: line needs start and stop", name)
		}
		start, err := parseTimestamp(fields[0])
		if err != nil {
			return err
		}
		stop, err := parseTimestamp(fields[1])
		if err != nil {
			return err
		}
		tt.Ranges = append(tt.Ranges, TimeRange{Start: start, Stop: stop})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tt, nil
}

// ParseCatalog decodes a catalog document. Columns past the stop timestamp
// become per-event metadata, keyed by the column names declared in the
// header when present.
func ParseCatalog(name string, data []byte) (*Catalog, error) {
	cat := &Catalog{Name: name, Meta: make(map[string]string)}
	var columns []string
	err := scanDocument(data, cat.Meta, func(fields []string, docMeta map[string]string) error {
		if columns == nil {
			if c, ok := docMeta["COLUMNS"]; ok {
				columns = strings.Split(c, ",")
				for i := range columns {
					columns[i] = strings.TrimSpace(columns[i])
				}
			} else {
				columns = []string{}
			}
		}
		if len(fields) < 2 {
			return fmt.Errorf("impex: catalog %s: line needs start and stop", name)
		}
		start, err := parseTimestamp(fields[0])
		if err != nil {
			return err
		}
		stop, err := parseTimestamp(fields[1])
		if err != nil {
			return err
		}
		ev := Event{
			TimeRange: TimeRange{Start: start, Stop: stop},
			Meta:      make(map[string]string),
		}
		for i, extra := range fields[2:] {
			key := fmt.Sprintf("column_%d", i)
			if i+2 < len(columns) {
				key = columns[i+2]
			}
			ev.Meta[key] = extra
		}
		cat.Events = append(cat.Events, ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cat, nil
}

// scanDocument walks a line-oriented document, collecting "#" header
// metadata into meta and handing data lines to row.
func scanDocument(data []byte, meta map[string]string, row func(fields []string, meta map[string]string) error) error {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if k, v, ok := headerField(line); ok {
				if _, dup := meta[k]; !dup {
					meta[k] = v
				}
			}
			continue
		}
		if err := row(strings.Fields(line), meta); err != nil {
			return err
		}
	}
	return scanner.Err()
}
