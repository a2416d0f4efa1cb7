package statuspage

import (
	"context"
	"sort"

	"github.com/uptimer-dev/uptimer/internal/storage"
)

// UptimeReport breaks a time window into downtime, unknown, and uptime
// seconds. The three always sum to TotalSec.
type UptimeReport struct {
	TotalSec    int64    `json:"total_sec"`
	DowntimeSec int64    `json:"downtime_sec"`
	UnknownSec  int64    `json:"unknown_sec"`
	UptimeSec   int64    `json:"uptime_sec"`
	UptimePct   *float64 `json:"uptime_pct"`
}

type interval struct {
	start, end int64
}

// UptimeBetween computes the uptime breakdown for [from, to), clamped to the
// monitor's creation time. Open outages are treated as extending to the end
// of the window.
func UptimeBetween(ctx context.Context, store storage.Store, m *storage.Monitor, from, to int64) (*UptimeReport, error) {
	if m.CreatedAt > from {
		from = m.CreatedAt
	}
	if to <= from {
		return &UptimeReport{}, nil
	}
	total := to - from

	outages, err := store.ListOutagesOverlapping(ctx, m.ID, from, to)
	if err != nil {
		return nil, err
	}
	var down []interval
	for _, o := range outages {
		iv := interval{start: o.StartedAt, end: to}
		if o.EndedAt != nil {
			iv.end = *o.EndedAt
		}
		if iv = clip(iv, from, to); iv.start < iv.end {
			down = append(down, iv)
		}
	}
	down = merge(down)

	coverage := 2 * m.IntervalSec
	// Results shortly before the window still cover into it.
	results, err := store.ListCheckResults(ctx, m.ID, from-coverage, to)
	if err != nil {
		return nil, err
	}
	unknown := unknownIntervals(results, from, to, coverage)

	downtimeSec := sum(down)
	unknownSec := sum(unknown) - overlap(unknown, down)
	if unknownSec < 0 {
		unknownSec = 0
	}

	unavailable := downtimeSec + unknownSec
	if unavailable > total {
		unavailable = total
	}
	uptimeSec := total - unavailable

	pct := 100 * float64(uptimeSec) / float64(total)
	return &UptimeReport{
		TotalSec:    total,
		DowntimeSec: downtimeSec,
		UnknownSec:  unknownSec,
		UptimeSec:   uptimeSec,
		UptimePct:   &pct,
	}, nil
}

// unknownIntervals returns the parts of [from, to) not covered by an up or
// down result. A result at time t covers [t, t+coverage). The head of the
// window gets the same grace: a gap before the first covering result counts
// as unknown only beyond coverage seconds. Results with an explicit unknown
// status never cover.
func unknownIntervals(results []*storage.CheckResult, from, to, coverage int64) []interval {
	var covered []interval
	for _, r := range results {
		if r.Status != storage.StatusUp && r.Status != storage.StatusDown {
			continue
		}
		iv := clip(interval{start: r.CheckedAt, end: r.CheckedAt + coverage}, from, to)
		if iv.start < iv.end {
			covered = append(covered, iv)
		}
	}
	if len(covered) == 0 {
		return []interval{{start: from, end: to}}
	}
	covered = merge(covered)
	if gap := covered[0].start - from; gap > 0 && gap <= coverage {
		covered[0].start = from
	}
	return complement(covered, from, to)
}

func clip(iv interval, from, to int64) interval {
	if iv.start < from {
		iv.start = from
	}
	if iv.end > to {
		iv.end = to
	}
	return iv
}

// merge sorts and coalesces overlapping or adjacent intervals.
func merge(ivs []interval) []interval {
	if len(ivs) <= 1 {
		return ivs
	}
	sort.Slice(ivs, func(i, j int) bool { return ivs[i].start < ivs[j].start })
	out := ivs[:1]
	for _, iv := range ivs[1:] {
		last := &out[len(out)-1]
		if iv.start <= last.end {
			if iv.end > last.end {
				last.end = iv.end
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// complement returns [from, to) minus the given merged intervals.
func complement(merged []interval, from, to int64) []interval {
	var out []interval
	cursor := from
	for _, iv := range merged {
		if iv.start > cursor {
			out = append(out, interval{start: cursor, end: iv.start})
		}
		if iv.end > cursor {
			cursor = iv.end
		}
	}
	if cursor < to {
		out = append(out, interval{start: cursor, end: to})
	}
	return out
}

func sum(ivs []interval) int64 {
	var total int64
	for _, iv := range ivs {
		total += iv.end - iv.start
	}
	return total
}

// overlap returns the total seconds shared by two merged interval sets.
func overlap(a, b []interval) int64 {
	var total int64
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		start := a[i].start
		if b[j].start > start {
			start = b[j].start
		}
		end := a[i].end
		if b[j].end < end {
			end = b[j].end
		}
		if start < end {
			total += end - start
		}
		if a[i].end < b[j].end {
			i++
		} else {
			j++
		}
	}
	return total
}
