package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"uptimedock/models"
)

const (
	dateLayout            = "2006-01-02"
	defaultAnalyticsRange = 30 * day
	maxAnalyticsRange     = 731 * day
	recentResponseSamples = 10
	maxResponseSamples    = 500
)

// Analytics aggregates the incidents of a user. When the filter narrows the
// result to one monitor, its response times are attached as well.
func (e *Engine) Analytics(ctx context.Context, userID string, filter models.AnalyticsFilter) (models.Analytics, error) {
	if filter.Start != nil {
		end := e.now()
		if filter.End != nil {
			end = *filter.End
		}
		if end.Sub(*filter.Start) > maxAnalyticsRange {
			return models.Analytics{}, newError(ErrConfiguration, nil, "date range is longer than %d days", int(maxAnalyticsRange/day))
		}
	}

	views, err := e.ListIncidents(ctx, userID, models.IncidentFilter{Start: filter.Start, End: filter.End})
	if err != nil {
		return models.Analytics{}, err
	}

	// ListIncidents is newest first; aggregation runs oldest first.
	incidents := make([]models.IncidentView, 0, len(views))
	needle := strings.ToLower(filter.URL)
	for i := len(views) - 1; i >= 0; i-- {
		if needle != "" && !strings.Contains(strings.ToLower(views[i].MonitorURL), needle) {
			continue
		}
		incidents = append(incidents, views[i])
	}

	userMonitors, err := e.Store.FindMonitorsByUser(ctx, userID)
	if err != nil {
		return models.Analytics{}, err
	}
	monitors := make(map[string]models.Monitor, len(userMonitors))
	for _, m := range userMonitors {
		monitors[m.ID] = m
	}

	a := ComputeAnalytics(incidents, monitors, filter, e.now())

	if filter.URL == "" {
		return a, nil
	}
	target, ok := targetMonitor(filter.URL, userMonitors, incidents)
	if !ok {
		return a, nil
	}

	recent, err := e.Store.ResponseTimes(ctx, target, nil, nil, recentResponseSamples)
	if err != nil {
		return models.Analytics{}, fmt.Errorf("recent response times of monitor %s: %w", target, err)
	}
	if len(recent) > 0 {
		var sum int64
		for _, rt := range recent {
			sum += rt.LatencyMs
		}
		avg := float64(sum) / float64(len(recent))
		a.URLResponseTime = &avg
	}

	a.ResponseTimes, err = e.Store.ResponseTimes(ctx, target, filter.Start, filter.End, maxResponseSamples)
	if err != nil {
		return models.Analytics{}, fmt.Errorf("response times of monitor %s: %w", target, err)
	}
	return a, nil
}

// targetMonitor picks the monitor a URL filter refers to: an exact URL match
// among the monitors of the user, else the only monitor left in the incidents.
func targetMonitor(url string, monitors []models.Monitor, incidents []models.IncidentView) (string, bool) {
	for _, m := range monitors {
		if strings.EqualFold(m.URL, url) {
			return m.ID, true
		}
	}

	id := ""
	for _, inc := range incidents {
		if id != "" && inc.MonitorID != id {
			return "", false
		}
		id = inc.MonitorID
	}
	return id, id != ""
}

func resolvedAt(inc models.Incident) time.Time {
	if inc.ResolvedAt != nil {
		return *inc.ResolvedAt
	}
	return inc.UpdatedAt
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

// ComputeAnalytics derives counts, uptime and resolution times from an
// already filtered incident set. Per-day uptime subtracts each incident from
// the day it was opened on; overlapping incidents are not merged.
func ComputeAnalytics(incidents []models.IncidentView, monitors map[string]models.Monitor, filter models.AnalyticsFilter, now time.Time) models.Analytics {
	a := models.Analytics{
		Incidents:        incidents,
		IncidentsByDay:   map[string]int{},
		IncidentsByCause: map[string]int{},
		IncidentsByURL:   map[string]int{},
		UptimeByDate:     map[string]float64{},
		ResolutionTimes:  []models.ResolutionTime{},
		ResponseTimes:    []models.ResponseTime{},
		TotalIncidents:   len(incidents),
	}
	if a.Incidents == nil {
		a.Incidents = []models.IncidentView{}
	}

	var earliest time.Time
	var resolutionSum float64

	for _, inc := range incidents {
		date := inc.CreatedAt.UTC().Format(dateLayout)
		a.IncidentsByDay[date]++
		a.IncidentsByCause[inc.Cause]++
		a.IncidentsByURL[inc.MonitorURL]++

		if m, ok := monitors[inc.MonitorID]; ok && !m.CreatedAt.IsZero() {
			if earliest.IsZero() || m.CreatedAt.Before(earliest) {
				earliest = m.CreatedAt
			}
		}

		switch {
		case inc.Resolved:
			a.ResolvedIncidents++
			hours := resolvedAt(inc.Incident).Sub(inc.CreatedAt).Hours()
			resolutionSum += hours
			a.ResolutionTimes = append(a.ResolutionTimes, models.ResolutionTime{
				URL:   inc.MonitorURL,
				Hours: hours,
				Date:  date,
			})
		case inc.Acknowledged:
			a.Acknowledged++
		default:
			a.PendingIncidents++
		}
	}
	if len(a.ResolutionTimes) > 0 {
		a.AvgResolutionHours = resolutionSum / float64(len(a.ResolutionTimes))
	}

	if earliest.IsZero() {
		earliest = now.Add(-defaultAnalyticsRange)
	}
	start := earliest
	if filter.Start != nil {
		start = *filter.Start
	}
	end := now
	if filter.End != nil {
		end = *filter.End
	}

	for d := start.UTC().Truncate(day); !d.After(end); d = d.Add(day) {
		a.UptimeByDate[d.Format(dateLayout)] = 100
	}

	var downtime float64
	for _, inc := range incidents {
		from := maxTime(inc.CreatedAt, start)
		if m, ok := monitors[inc.MonitorID]; ok {
			from = maxTime(from, m.CreatedAt)
		}
		to := end
		if inc.Resolved {
			to = resolvedAt(inc.Incident)
		}

		hours := to.Sub(from).Hours()
		if hours <= 0 {
			continue
		}
		downtime += hours

		date := inc.CreatedAt.UTC().Format(dateLayout)
		if uptime, ok := a.UptimeByDate[date]; ok {
			a.UptimeByDate[date] = max(0, uptime-hours/24*100)
		}
	}

	a.OverallUptime = 100
	if period := end.Sub(start).Hours(); period > 0 {
		a.OverallUptime = min(100, max(0, 100*(1-downtime/period)))
	}

	a.DateRange = models.DateRange{Start: start.UTC().Format(dateLayout), End: "present"}
	if filter.End != nil {
		a.DateRange.End = filter.End.UTC().Format(dateLayout)
	}
	a.Summary = summarize(a, filter.URL)
	return a
}

func summarize(a models.Analytics, url string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "From %s to %s, there were %d incidents", a.DateRange.Start, a.DateRange.End, a.TotalIncidents)
	if url != "" {
		fmt.Fprintf(&b, " for URLs containing %q", url)
	}
	fmt.Fprintf(&b, ". %d resolved, %d acknowledged, and %d pending.", a.ResolvedIncidents, a.Acknowledged, a.PendingIncidents)
	if len(a.ResolutionTimes) > 0 {
		fmt.Fprintf(&b, " Average resolution time: %.2f hours.", a.AvgResolutionHours)
	}
	fmt.Fprintf(&b, " Overall uptime: %.2f%%.", a.OverallUptime)

	type urlCount struct {
		url   string
		count int
	}
	var counts []urlCount
	for u, c := range a.IncidentsByURL {
		counts = append(counts, urlCount{u, c})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].url < counts[j].url
	})
	if len(counts) > 3 {
		counts = counts[:3]
	}
	if len(counts) > 0 {
		parts := make([]string, len(counts))
		for i, c := range counts {
			parts[i] = fmt.Sprintf("%s (%d)", c.url, c.count)
		}
		fmt.Fprintf(&b, " Most affected URLs: %s.", strings.Join(parts, ", "))
	}
	return b.String()
}
