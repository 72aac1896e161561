package models

import (
	"fmt"
	"time"
)

type MonitorKind string

const (
	KindURLAvailability MonitorKind = "url_availability"
	KindSSLExpiry       MonitorKind = "ssl_expiry"
	KindDomainExpiry    MonitorKind = "domain_expiry"
)

// ParseMonitorKind accepts the enum names and the legacy numeric tags (1, 3, 4).
func ParseMonitorKind(s string) (MonitorKind, error) {
	switch s {
	case string(KindURLAvailability), "1":
		return KindURLAvailability, nil
	case string(KindSSLExpiry), "3":
		return KindSSLExpiry, nil
	case string(KindDomainExpiry), "4":
		return KindDomainExpiry, nil
	default:
		return "", fmt.Errorf("unknown monitor kind %q", s)
	}
}

func (k MonitorKind) Valid() bool {
	switch k {
	case KindURLAvailability, KindSSLExpiry, KindDomainExpiry:
		return true
	default:
		return false
	}
}

// IsExpiry reports whether the kind is tracked through an expiry-check record.
func (k MonitorKind) IsExpiry() bool {
	switch k {
	case KindSSLExpiry, KindDomainExpiry:
		return true
	case KindURLAvailability:
		return false
	default:
		return false
	}
}

type Monitor struct {
	ID              string      `json:"id"`
	URL             string      `json:"url"`
	UserID          string      `json:"user_id"`
	TeamID          string      `json:"team_id"`
	Kind            MonitorKind `json:"kind"`
	Active          bool        `json:"active"`
	NotifyThreshold int         `json:"notify_threshold"`
	Availability    bool        `json:"availability"`
	LastError       *string     `json:"last_error,omitempty"`
	LastIncidentAt  *time.Time  `json:"last_incident_at,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

// StatusUpdate is a partial update of the derived status fields. Nil fields
// are left untouched; an empty LastError clears the column.
type StatusUpdate struct {
	Availability   *bool
	LastError      *string
	LastIncidentAt *time.Time
}

type ResponseTime struct {
	MonitorID string    `json:"monitor_id"`
	LatencyMs int64     `json:"response_time"`
	CreatedAt time.Time `json:"created_at"`
}

// ExpiryInfo is the expiry date shown next to an SSL or domain monitor.
type ExpiryInfo struct {
	ValidTo time.Time   `json:"valid_to"`
	Kind    MonitorKind `json:"type"`
}

// ResponseTimeMetrics summarises the latest response-time samples of a monitor.
type ResponseTimeMetrics struct {
	Average float64        `json:"avg_response_time"`
	Min     int64          `json:"min_response_time"`
	Max     int64          `json:"max_response_time"`
	P90     int64          `json:"percentile_90"`
	Last    int64          `json:"last_response_time"`
	Samples []ResponseTime `json:"response_time_data"`
}

type MonitorDetail struct {
	Monitor
	ExpiryInfo *ExpiryInfo          `json:"expiry_info,omitempty"`
	Metrics    *ResponseTimeMetrics `json:"response_time_metrics,omitempty"`
}
