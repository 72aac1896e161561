package models

import (
	"fmt"
	"strconv"
	"time"
)

// CauseFamily is the dedup class of an incident. Together with CauseKey it
// decides whether two problems are the same incident.
type CauseFamily string

const (
	FamilyServiceDown  CauseFamily = "service_down"
	FamilySSLExpiry    CauseFamily = "ssl_expiry"
	FamilyDomainExpiry CauseFamily = "domain_expiry"
)

// IsExpiry reports whether incidents of the family must be acknowledged
// before they may be resolved.
func (f CauseFamily) IsExpiry() bool {
	switch f {
	case FamilySSLExpiry, FamilyDomainExpiry:
		return true
	case FamilyServiceDown:
		return false
	default:
		return false
	}
}

// FamilyForKind maps an expiry monitor kind to its incident family.
func FamilyForKind(k MonitorKind) CauseFamily {
	switch k {
	case KindSSLExpiry:
		return FamilySSLExpiry
	case KindDomainExpiry:
		return FamilyDomainExpiry
	case KindURLAvailability:
		return FamilyServiceDown
	default:
		return ""
	}
}

// Cause is the classification of a problem: the family, the dedup key inside
// the family and the human readable text stored on the incident.
type Cause struct {
	Family CauseFamily
	Key    string
	Text   string
}

// UnknownStatus is used when a failed probe never produced an HTTP status.
const UnknownStatus = "Unknown"

// StatusLabel renders an HTTP status for causes and lastError.
func StatusLabel(code int) string {
	if code <= 0 {
		return UnknownStatus
	}
	return strconv.Itoa(code)
}

// ServiceDownCause keys the incident by status so that different codes make
// different incidents.
func ServiceDownCause(status string) Cause {
	return Cause{
		Family: FamilyServiceDown,
		Key:    status,
		Text:   fmt.Sprintf("Service Down Status %s", status),
	}
}

func SSLExpiryCause(days int) Cause {
	return Cause{
		Family: FamilySSLExpiry,
		Text:   fmt.Sprintf("SSL certificate expires in %d days", days),
	}
}

func DomainExpiryCause(days int) Cause {
	return Cause{
		Family: FamilyDomainExpiry,
		Text:   fmt.Sprintf("Domain Name expires in %d days", days),
	}
}

// ExpiryCause builds the cause for an expiry record of the given kind.
func ExpiryCause(kind MonitorKind, days int) Cause {
	if kind == KindDomainExpiry {
		return DomainExpiryCause(days)
	}
	return SSLExpiryCause(days)
}

type Incident struct {
	ID            string      `json:"id"`
	MonitorID     string      `json:"monitor_id"`
	UserID        string      `json:"user_id"`
	Cause         string      `json:"cause"`
	Family        CauseFamily `json:"cause_family"`
	CauseKey      string      `json:"-"`
	Details       string      `json:"details"`
	Acknowledged  bool        `json:"acknowledged"`
	Resolved      bool        `json:"resolved"`
	ResolvedAt    *time.Time  `json:"resolved_at,omitempty"`
	LastAlertSent time.Time   `json:"last_alert_sent"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// NeedsRepair reports an expiry incident that was resolved without being
// acknowledged first.
func (i Incident) NeedsRepair() bool {
	return i.Family.IsExpiry() && i.Resolved && !i.Acknowledged
}

// LastAlertAt is the reference point for re-alerting.
func (i Incident) LastAlertAt() time.Time {
	if i.LastAlertSent.IsZero() {
		return i.CreatedAt
	}
	return i.LastAlertSent
}

// IncidentUpdate is a partial update; nil fields are left untouched.
type IncidentUpdate struct {
	Acknowledged  *bool
	Resolved      *bool
	ResolvedAt    *time.Time
	LastAlertSent *time.Time
}

// IncidentFilter narrows the incidents of a user.
type IncidentFilter struct {
	Start *time.Time
	End   *time.Time
}

func (f IncidentFilter) Match(i Incident) bool {
	if f.Start != nil && i.CreatedAt.Before(*f.Start) {
		return false
	}
	if f.End != nil && i.CreatedAt.After(*f.End) {
		return false
	}
	return true
}

// IncidentView is an incident joined with the monitor it belongs to.
type IncidentView struct {
	Incident
	MonitorURL          string `json:"monitor_url"`
	MonitorAvailability bool   `json:"monitor_availability"`
	TeamID              string `json:"team_id"`
}

func BoolPtr(b bool) *bool { return &b }

func StringPtr(s string) *string { return &s }

func TimePtr(t time.Time) *time.Time { return &t }
