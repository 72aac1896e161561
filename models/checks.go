package models

import "time"

type TLSCheck struct {
	MonitorID       string    `json:"monitor_id"`
	Issuer          string    `json:"issuer"`
	ValidFrom       time.Time `json:"valid_from"`
	ValidTo         time.Time `json:"valid_to"`
	Protocol        string    `json:"protocol"`
	NotifyThreshold int       `json:"notify_threshold"`
	CheckedAt       time.Time `json:"checked_at"`
}

func (c TLSCheck) Expiry() ExpiryRecord {
	return ExpiryRecord{
		MonitorID:       c.MonitorID,
		Kind:            KindSSLExpiry,
		ExpiresAt:       c.ValidTo,
		NotifyThreshold: c.NotifyThreshold,
	}
}

type DomainCheck struct {
	MonitorID       string    `json:"monitor_id"`
	Domain          string    `json:"domain"`
	ExpiresAt       time.Time `json:"expiry_date"`
	NotifyThreshold int       `json:"notify_threshold"`
	CheckedAt       time.Time `json:"checked_at"`
}

func (c DomainCheck) Expiry() ExpiryRecord {
	return ExpiryRecord{
		MonitorID:       c.MonitorID,
		Kind:            KindDomainExpiry,
		ExpiresAt:       c.ExpiresAt,
		NotifyThreshold: c.NotifyThreshold,
	}
}

// ExpiryRecord is the part of a TLS or domain check the re-check works on.
type ExpiryRecord struct {
	MonitorID       string
	Kind            MonitorKind
	ExpiresAt       time.Time
	NotifyThreshold int
}
