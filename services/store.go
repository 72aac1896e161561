package services

import (
	"context"
	"time"

	"uptimedock/models"
)

// MonitorStore is the monitor registry.
type MonitorStore interface {
	FindMonitorByID(ctx context.Context, id string) (models.Monitor, error)
	FindActiveMonitorsByKind(ctx context.Context, kind models.MonitorKind) ([]models.Monitor, error)
	FindMonitorsByUser(ctx context.Context, userID string) ([]models.Monitor, error)
	CreateMonitor(ctx context.Context, m models.Monitor) (models.Monitor, error)
	UpdateMonitorStatus(ctx context.Context, id string, u models.StatusUpdate) error
	DeleteMonitor(ctx context.Context, id string) error
}

// IncidentStore persists incidents. FindOrCreateUnresolved must be atomic:
// two concurrent callers with the same monitor, family and key end up with
// one incident and exactly one of them sees created == true.
type IncidentStore interface {
	FindOrCreateUnresolved(ctx context.Context, inc models.Incident) (models.Incident, bool, error)
	FindUnresolvedByFamily(ctx context.Context, monitorID string, family models.CauseFamily) ([]models.Incident, error)
	FindLatestByFamily(ctx context.Context, monitorID string, family models.CauseFamily) (models.Incident, error)
	FindIncidentByID(ctx context.Context, id string) (models.Incident, error)
	FindIncidentsByUser(ctx context.Context, userID string, filter models.IncidentFilter) ([]models.Incident, error)
	UpdateIncident(ctx context.Context, id string, u models.IncidentUpdate) (models.Incident, error)
}

// CheckStore keeps the last TLS and WHOIS observation per monitor.
type CheckStore interface {
	UpsertTLSCheck(ctx context.Context, c models.TLSCheck) error
	UpsertDomainCheck(ctx context.Context, c models.DomainCheck) error
	ListTLSChecks(ctx context.Context) ([]models.TLSCheck, error)
	ListDomainChecks(ctx context.Context) ([]models.DomainCheck, error)
	FindTLSCheck(ctx context.Context, monitorID string) (models.TLSCheck, error)
	FindDomainCheck(ctx context.Context, monitorID string) (models.DomainCheck, error)
}

type ResponseTimeStore interface {
	AddResponseTime(ctx context.Context, rt models.ResponseTime) error
	ResponseTimes(ctx context.Context, monitorID string, start, end *time.Time, limit int) ([]models.ResponseTime, error)
}

type UserStore interface {
	FindUserByID(ctx context.Context, id string) (models.User, error)
}

type IntegrationStore interface {
	FindSlackWebhook(ctx context.Context, teamID string) (string, error)
}

// Store is everything the engine reads and writes.
type Store interface {
	MonitorStore
	IncidentStore
	CheckStore
	ResponseTimeStore
	UserStore
	IntegrationStore
}
