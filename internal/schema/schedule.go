package schema

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/devghori1264/quads/internal/models"
)

// ScheduleLayout is the wire format of schedule start and end times.
const ScheduleLayout = "2006-01-02 15:04"

// Schedule validates an allocation window on a host. Entries are keyed by a
// non-negative integer index; windows on one host never overlap.
type Schedule struct {
	lookup Lookup
}

func (s *Schedule) PrepareItem(ctx context.Context, in models.Fields) ([]string, Item, error) {
	var errs problems
	for _, u := range unknown(in, "host", "cloud", "start", "end", "index") {
		errs.add(u)
	}

	host, msg := required(in, "host")
	errs.add(msg)
	if host != "" {
		_, msg, err := mustExist(ctx, s.lookup, models.Hosts, host)
		if err != nil {
			return nil, Item{}, err
		}
		errs.add(msg)
	}

	cloud, msg := required(in, "cloud")
	errs.add(msg)
	if cloud != "" {
		_, msg, err := mustExist(ctx, s.lookup, models.Clouds, cloud)
		if err != nil {
			return nil, Item{}, err
		}
		errs.add(msg)
	}

	start, msg := parseTime(in, "start")
	errs.add(msg)
	end, msg := parseTime(in, "end")
	errs.add(msg)
	if !start.IsZero() && !end.IsZero() && !start.Before(end) {
		errs.add("start must be before end")
	}

	index := -1
	if raw, ok := in["index"]; ok {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || n < 0 {
			errs.add(fmt.Sprintf("invalid index: %q", raw))
		} else {
			index = n
		}
	}

	if len(errs) > 0 {
		return errs, Item{}, nil
	}

	entry := map[string]any{
		"cloud": cloud,
		"start": start.Format(ScheduleLayout),
		"end":   end.Format(ScheduleLayout),
	}
	resolve := func(parent models.Document) (string, models.Update, []string) {
		existing := parent.Property("schedule")
		idx := index
		if idx < 0 {
			idx = nextIndex(existing)
		}
		key := strconv.Itoa(idx)
		if other, ok := overlapping(existing, key, start, end); ok {
			return key, models.Update{}, []string{"schedule overlaps with index " + other}
		}
		return key, models.Update{Set: map[string]any{"schedule." + key: entry}}, nil
	}
	return nil, Item{Parent: host, Resolve: resolve}, nil
}

func parseTime(in models.Fields, field string) (time.Time, string) {
	raw, msg := required(in, field)
	if msg != "" {
		return time.Time{}, msg
	}
	t, err := time.Parse(ScheduleLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Sprintf("invalid %s: %q, expected %q", field, raw, ScheduleLayout)
	}
	return t, ""
}

func nextIndex(entries map[string]any) int {
	next := 0
	for k := range entries {
		if n, err := strconv.Atoi(k); err == nil && n >= next {
			next = n + 1
		}
	}
	return next
}

// overlapping returns the lowest index, other than skip, whose window
// intersects [start, end).
func overlapping(entries map[string]any, skip string, start, end time.Time) (string, bool) {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.Atoi(keys[i])
		b, _ := strconv.Atoi(keys[j])
		return a < b
	})
	for _, k := range keys {
		if k == skip {
			continue
		}
		e, ok := entries[k].(map[string]any)
		if !ok {
			continue
		}
		es, err1 := time.Parse(ScheduleLayout, models.Document(e).Text("start"))
		ee, err2 := time.Parse(ScheduleLayout, models.Document(e).Text("end"))
		if err1 != nil || err2 != nil {
			continue
		}
		if start.Before(ee) && es.Before(end) {
			return k, true
		}
	}
	return "", false
}
