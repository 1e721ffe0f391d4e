// Package pipeline turns discovered session logs into cached summaries and
// the global aggregate, and coordinates when that work runs.
package pipeline

import (
	"sort"
	"time"

	"github.com/theirongolddev/ccdash/internal/config"
	"github.com/theirongolddev/ccdash/internal/model"
)

// TopN is the length of the truncated project, file type and cost series.
const TopN = 15

const day = 24 * time.Hour

// windows are the trailing age limits, inclusive.
var windows = [3]time.Duration{day, 7 * day, 30 * day}

type counter map[string]int

type costCounter map[string]float64

// windowed holds the all-time series plus one per trailing window.
type windowed struct {
	all     counter
	windows [3]counter
}

func newWindowed() windowed {
	return windowed{all: counter{}, windows: [3]counter{{}, {}, {}}}
}

type windowedCost struct {
	all     costCounter
	windows [3]costCounter
}

func newWindowedCost() windowedCost {
	return windowedCost{all: costCounter{}, windows: [3]costCounter{{}, {}, {}}}
}

type bucket struct {
	sessions, direct, subagent int
	activeMs                   int64
}

// BuildAggregate recomputes the overview from every cached summary. Ages
// are measured from now on absolute instants; calendar buckets use loc.
// The caller deletes the stored aggregate instead when summaries is empty.
func BuildAggregate(summaries []model.SessionSummary, now time.Time, loc *time.Location) model.GlobalAggregate {
	if loc == nil {
		loc = time.Local
	}

	agg := model.GlobalAggregate{
		GeneratedAt:   now,
		TotalSessions: len(summaries),
	}

	var (
		tools     = newWindowed()
		projects  = newWindowed()
		fileTypes = newWindowed()
		costs     = newWindowedCost()

		daily   = make(map[string]*bucket)
		weekly  = make(map[string]*bucket)
		monthly = make(map[string]*bucket)

		projectSet = make(map[string]struct{})
	)

	for _, s := range summaries {
		agg.TotalTools += s.TotalTools
		agg.TotalActions += s.TotalActions
		agg.TotalCost += s.CostEstimate
		agg.Tokens.Add(s.Tokens)
		agg.TotalActiveMs += s.TotalActiveDurationMs
		agg.SubagentCount += s.SubagentCount
		agg.SubagentTools += s.TotalActions - s.TotalTools
		projectSet[s.Project] = struct{}{}

		if !s.StartTime.IsZero() && (agg.FirstSessionTime.IsZero() || s.StartTime.Before(agg.FirstSessionTime)) {
			agg.FirstSessionTime = s.StartTime
		}
		if !s.EndTime.IsZero() && s.EndTime.After(agg.LastSessionTime) {
			agg.LastSessionTime = s.EndTime
		}

		// Which trailing windows this session falls in.
		var in [3]bool
		if !s.StartTime.IsZero() {
			age := now.Sub(s.StartTime)
			for i, limit := range windows {
				in[i] = age <= limit
			}
		}

		tools.add(s.ToolCounts, in)
		fileTypes.add(s.FileExtensions, in)
		projects.addOne(s.Project, s.TotalActions, in)
		costs.add(s.Project, s.CostEstimate, in)

		if s.StartTime.IsZero() {
			continue
		}
		local := s.StartTime.In(loc)
		for _, b := range []*bucket{
			bucketFor(daily, local.Format("2006-01-02")),
			bucketFor(weekly, WeekStart(local).Format("2006-01-02")),
			bucketFor(monthly, local.Format("2006-01")),
		} {
			b.sessions++
			b.direct += s.TotalTools
			b.subagent += s.TotalActions - s.TotalTools
			b.activeMs += s.TotalActiveDurationMs
		}
	}

	agg.TotalCost = config.Round4(agg.TotalCost)
	agg.ProjectCount = len(projectSet)
	agg.Projects = sortedSet(projectSet)

	agg.Tools = tools.ranked(0)
	agg.ProjectsRank = projects.ranked(TopN)
	agg.FileTypes = fileTypes.ranked(TopN)
	agg.ProjectCosts = costs.ranked(TopN)

	agg.Daily = timeline(daily)
	agg.Weekly = timeline(weekly)
	agg.Monthly = timeline(monthly)

	return agg
}

// WeekStart returns midnight of the Monday starting t's ISO week, in t's
// location. It steps back whole days so month and year boundaries are safe.
func WeekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.AddDate(0, 0, -offset).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func (w windowed) add(counts map[string]int, in [3]bool) {
	for k, n := range counts {
		w.all[k] += n
		for i := range in {
			if in[i] {
				w.windows[i][k] += n
			}
		}
	}
}

func (w windowed) addOne(key string, n int, in [3]bool) {
	w.all[key] += n
	for i := range in {
		if in[i] {
			w.windows[i][key] += n
		}
	}
}

func (w windowedCost) add(key string, cost float64, in [3]bool) {
	w.all[key] += cost
	for i := range in {
		if in[i] {
			w.windows[i][key] += cost
		}
	}
}

func (w windowed) ranked(limit int) model.CountWindows {
	return model.CountWindows{
		All:     w.all.ranked(limit),
		Last1d:  w.windows[0].ranked(limit),
		Last7d:  w.windows[1].ranked(limit),
		Last30d: w.windows[2].ranked(limit),
	}
}

func (w windowedCost) ranked(limit int) model.CostWindows {
	return model.CostWindows{
		All:     w.all.ranked(limit),
		Last1d:  w.windows[0].ranked(limit),
		Last7d:  w.windows[1].ranked(limit),
		Last30d: w.windows[2].ranked(limit),
	}
}

// ranked orders by count descending then key. limit <= 0 keeps every entry.
func (c counter) ranked(limit int) []model.CountEntry {
	out := make([]model.CountEntry, 0, len(c))
	for k, n := range c {
		out = append(out, model.CountEntry{Key: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ranked orders by unrounded cost, then rounds each value for output.
func (c costCounter) ranked(limit int) []model.CostEntry {
	out := make([]model.CostEntry, 0, len(c))
	for k, v := range c {
		out = append(out, model.CostEntry{Key: k, Cost: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Cost != out[j].Cost {
			return out[i].Cost > out[j].Cost
		}
		return out[i].Key < out[j].Key
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Cost = config.Round4(out[i].Cost)
	}
	return out
}

func bucketFor(m map[string]*bucket, key string) *bucket {
	b, ok := m[key]
	if !ok {
		b = &bucket{}
		m[key] = b
	}
	return b
}

func timeline(m map[string]*bucket) []model.TimelinePoint {
	points := make([]model.TimelinePoint, 0, len(m))
	for key, b := range m {
		points = append(points, model.TimelinePoint{
			Key:             key,
			Sessions:        b.sessions,
			DirectActions:   b.direct,
			SubagentActions: b.subagent,
			ActiveMs:        b.activeMs,
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Key < points[j].Key })
	return points
}

func sortedSet(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
