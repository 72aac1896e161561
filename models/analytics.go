package models

import "time"

type AnalyticsFilter struct {
	Start *time.Time
	End   *time.Time
	URL   string
}

type ResolutionTime struct {
	URL   string  `json:"url"`
	Hours float64 `json:"resolution_time"`
	Date  string  `json:"date"`
}

type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type Analytics struct {
	Incidents          []IncidentView     `json:"incidents"`
	IncidentsByDay     map[string]int     `json:"incidents_by_day"`
	IncidentsByCause   map[string]int     `json:"incidents_by_cause"`
	IncidentsByURL     map[string]int     `json:"incidents_by_url"`
	UptimeByDate       map[string]float64 `json:"uptime_by_date"`
	ResolutionTimes    []ResolutionTime   `json:"resolution_times"`
	TotalIncidents     int                `json:"total_incidents"`
	ResolvedIncidents  int                `json:"resolved_incidents"`
	Acknowledged       int                `json:"acknowledged_incidents"`
	PendingIncidents   int                `json:"pending_incidents"`
	OverallUptime      float64            `json:"overall_uptime"`
	AvgResolutionHours float64            `json:"avg_resolution_time"`
	Summary            string             `json:"summary"`
	DateRange          DateRange          `json:"date_range"`
	URLResponseTime    *float64           `json:"url_response_time"`
	ResponseTimes      []ResponseTime     `json:"response_times"`
}
