package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"uptimedock/db"
	"uptimedock/models"
)

// DefaultReAlertInterval is the pause between repeated alerts for an
// unresolved expiry incident.
const DefaultReAlertInterval = 3 * time.Hour

// Engine is the incident state machine. It turns probe outcomes into incident
// and monitor-status changes and hands notifications to the Dispatcher.
type Engine struct {
	Store        Store
	Prober       *Prober
	Certificates CertFetcher
	Domains      ExpiryLookup
	Dispatcher   *Dispatcher

	ReAlertInterval time.Duration
	Now             func() time.Time

	background sync.WaitGroup
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) reAlertInterval() time.Duration {
	if e.ReAlertInterval > 0 {
		return e.ReAlertInterval
	}
	return DefaultReAlertInterval
}

// integrity wraps store errors caused by a vanished monitor.
func integrity(err error, format string, args ...any) error {
	if errors.Is(err, db.ErrNotFound) {
		return newError(ErrDataIntegrity, err, format, args...)
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// RunAvailabilityCheck probes the monitor URL and applies the outcome.
func (e *Engine) RunAvailabilityCheck(ctx context.Context, m models.Monitor) error {
	result := e.Prober.Probe(ctx, m.URL)
	if err := ctx.Err(); err != nil && !result.Up {
		return err
	}

	if result.Up {
		return e.markUp(ctx, m, result)
	}
	return e.markDown(ctx, m, result)
}

func (e *Engine) markUp(ctx context.Context, m models.Monitor, result ProbeResult) error {
	now := e.now()

	err := e.Store.AddResponseTime(ctx, models.ResponseTime{
		MonitorID: m.ID,
		LatencyMs: result.Latency.Milliseconds(),
		CreatedAt: now,
	})
	if err != nil {
		return integrity(err, "record response time of monitor %s", m.ID)
	}

	var open []models.Incident
	if m.Kind == models.KindURLAvailability {
		open, err = e.Store.FindUnresolvedByFamily(ctx, m.ID, models.FamilyServiceDown)
		if err != nil {
			return fmt.Errorf("find open incidents of monitor %s: %w", m.ID, err)
		}
	}

	if len(open) > 0 {
		for _, inc := range open {
			_, err := e.Store.UpdateIncident(ctx, inc.ID, models.IncidentUpdate{
				Resolved:   models.BoolPtr(true),
				ResolvedAt: models.TimePtr(now),
			})
			if err != nil {
				return integrity(err, "resolve incident %s", inc.ID)
			}
			slog.Info("incident auto-resolved", "monitor_id", m.ID, "incident_id", inc.ID, "cause", inc.Cause)

			e.Dispatcher.NotifyTeam(ctx, m.TeamID, autoResolvedMessage(m, inc, now))
		}

		err := e.Store.UpdateMonitorStatus(ctx, m.ID, models.StatusUpdate{
			Availability:   models.BoolPtr(true),
			LastError:      models.StringPtr(""),
			LastIncidentAt: models.TimePtr(now),
		})
		if err != nil {
			return integrity(err, "mark monitor %s up", m.ID)
		}
		slog.Info("service restored", "monitor_id", m.ID, "url", m.URL)
		return nil
	}

	if !m.Availability {
		err := e.Store.UpdateMonitorStatus(ctx, m.ID, models.StatusUpdate{
			Availability: models.BoolPtr(true),
			LastError:    models.StringPtr(""),
		})
		if err != nil {
			return integrity(err, "repair availability of monitor %s", m.ID)
		}
		slog.Info("availability repaired", "monitor_id", m.ID)
	}
	return nil
}

func (e *Engine) markDown(ctx context.Context, m models.Monitor, result ProbeResult) error {
	now := e.now()
	status := models.StatusLabel(result.StatusCode)

	slog.Info("service down confirmed",
		"monitor_id", m.ID,
		"url", m.URL,
		"attempts", result.Attempts,
		"status", status,
		"error", result.Err,
	)

	err := e.Store.UpdateMonitorStatus(ctx, m.ID, models.StatusUpdate{
		Availability: models.BoolPtr(false),
		LastError:    models.StringPtr("Status " + status),
	})
	if err != nil {
		return integrity(err, "mark monitor %s down", m.ID)
	}

	if m.Kind != models.KindURLAvailability {
		slog.Debug("skipping incident for non-URL monitor", "monitor_id", m.ID, "kind", m.Kind)
		return nil
	}

	cause := models.ServiceDownCause(status)
	inc, created, err := e.Store.FindOrCreateUnresolved(ctx, models.Incident{
		MonitorID:     m.ID,
		UserID:        m.UserID,
		Cause:         cause.Text,
		Family:        cause.Family,
		CauseKey:      cause.Key,
		Details:       fmt.Sprintf("HTTP Status %s detected for %s", status, m.URL),
		LastAlertSent: now,
		CreatedAt:     now,
	})
	if err != nil {
		return integrity(err, "open incident for monitor %s", m.ID)
	}

	user, err := e.Store.FindUserByID(ctx, m.UserID)
	if err != nil {
		slog.Warn("alert recipient not found", "monitor_id", m.ID, "user_id", m.UserID, "error", err)
	}
	email := ServiceDownEmail(AlertData{
		FirstName:  user.FirstName,
		MonitorID:  m.ID,
		MonitorURL: m.URL,
		StatusCode: status,
		Attempts:   result.Attempts,
		Time:       now,
	})

	if !created {
		e.Dispatcher.SendEmail(ctx, user.Email, email)
		slog.Info("repeated service down warning", "monitor_id", m.ID, "incident_id", inc.ID)
		return nil
	}

	err = e.Store.UpdateMonitorStatus(ctx, m.ID, models.StatusUpdate{LastIncidentAt: models.TimePtr(now)})
	if err != nil {
		return integrity(err, "stamp incident time of monitor %s", m.ID)
	}
	slog.Info("incident opened", "monitor_id", m.ID, "incident_id", inc.ID, "cause", inc.Cause)

	e.Dispatcher.NotifyTeam(ctx, m.TeamID, alertMessage("INCIDENT ALERT", m.URL, inc, now))
	e.Dispatcher.SendEmail(ctx, user.Email, email)
	return nil
}

// repair undoes an expiry incident that was resolved without acknowledgement.
func (e *Engine) repair(ctx context.Context, inc models.Incident) (models.Incident, error) {
	if !inc.NeedsRepair() {
		return inc, nil
	}

	repaired, err := e.Store.UpdateIncident(ctx, inc.ID, models.IncidentUpdate{
		Acknowledged: models.BoolPtr(false),
		Resolved:     models.BoolPtr(false),
	})
	if errors.Is(err, db.ErrConflict) {
		// Another unresolved incident already holds the cause; keep this one closed.
		slog.Warn("incident repair skipped", "incident_id", inc.ID, "error", err)
		return inc, nil
	}
	if err != nil {
		return inc, fmt.Errorf("repair incident %s: %w", inc.ID, err)
	}
	slog.Info("incident repaired", "incident_id", inc.ID, "monitor_id", inc.MonitorID, "cause", inc.Cause)
	return repaired, nil
}

// ListIncidents returns the incidents of a user joined with their monitors,
// newest first. Incidents of deleted monitors are skipped.
func (e *Engine) ListIncidents(ctx context.Context, userID string, filter models.IncidentFilter) ([]models.IncidentView, error) {
	incidents, err := e.Store.FindIncidentsByUser(ctx, userID, filter)
	if err != nil {
		return nil, err
	}

	monitors := map[string]models.Monitor{}
	views := make([]models.IncidentView, 0, len(incidents))

	for i := len(incidents) - 1; i >= 0; i-- {
		inc, err := e.repair(ctx, incidents[i])
		if err != nil {
			return nil, err
		}

		m, ok := monitors[inc.MonitorID]
		if !ok {
			m, err = e.Store.FindMonitorByID(ctx, inc.MonitorID)
			if errors.Is(err, db.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			monitors[m.ID] = m
		}

		views = append(views, models.IncidentView{
			Incident:            inc,
			MonitorURL:          m.URL,
			MonitorAvailability: m.Availability,
			TeamID:              m.TeamID,
		})
	}
	return views, nil
}

func (e *Engine) ownedIncident(ctx context.Context, userID, id string) (models.Incident, models.Monitor, error) {
	inc, err := e.Store.FindIncidentByID(ctx, id)
	if err != nil {
		return models.Incident{}, models.Monitor{}, err
	}
	if userID != "" && inc.UserID != userID {
		return models.Incident{}, models.Monitor{}, db.ErrNotFound
	}
	if inc, err = e.repair(ctx, inc); err != nil {
		return models.Incident{}, models.Monitor{}, err
	}

	m, err := e.Store.FindMonitorByID(ctx, inc.MonitorID)
	if err != nil {
		return models.Incident{}, models.Monitor{}, err
	}
	return inc, m, nil
}

// Acknowledge marks the incident as seen by the user.
func (e *Engine) Acknowledge(ctx context.Context, userID, id string) (models.Incident, error) {
	if _, _, err := e.ownedIncident(ctx, userID, id); err != nil {
		return models.Incident{}, err
	}

	inc, err := e.Store.UpdateIncident(ctx, id, models.IncidentUpdate{Acknowledged: models.BoolPtr(true)})
	if err != nil {
		return models.Incident{}, err
	}
	slog.Info("incident acknowledged", "incident_id", id)
	return inc, nil
}

// Resolve closes the incident by hand. Expiry incidents have to be
// acknowledged first.
func (e *Engine) Resolve(ctx context.Context, userID, id string) (models.Incident, error) {
	inc, m, err := e.ownedIncident(ctx, userID, id)
	if err != nil {
		return models.Incident{}, err
	}
	if inc.Family.IsExpiry() && !inc.Acknowledged {
		return models.Incident{}, newError(ErrWorkflow, ErrNotAcknowledged, "incident %s", id)
	}

	now := e.now()
	inc, err = e.Store.UpdateIncident(ctx, id, models.IncidentUpdate{
		Resolved:   models.BoolPtr(true),
		ResolvedAt: models.TimePtr(now),
	})
	if err != nil {
		return models.Incident{}, err
	}
	slog.Info("incident resolved", "incident_id", id, "monitor_id", m.ID)

	e.Dispatcher.NotifyTeam(ctx, m.TeamID, fmt.Sprintf(
		"✅ *INCIDENT RESOLVED* ✅\n*Monitor:* %s\n*Issue:* %s\n*Resolved at:* %s",
		m.URL, inc.Cause, now.Format(time.RFC1123)))
	return inc, nil
}

func alertMessage(title, url string, inc models.Incident, now time.Time) string {
	return fmt.Sprintf("🚨 *%s* 🚨\n*Monitor:* %s\n*Issue:* %s\n*Details:* %s\n*Time:* %s",
		title, url, inc.Cause, inc.Details, now.Format(time.RFC1123))
}

func repeatedAlertMessage(title, url string, inc models.Incident, now time.Time) string {
	return fmt.Sprintf("🔄 *%s* 🔄\n*Monitor:* %s\n*Issue:* %s\n*Details:* %s\n*First alerted:* %s\n*Time:* %s",
		title, url, inc.Cause, inc.Details, humanize.RelTime(inc.CreatedAt, now, "ago", "from now"), now.Format(time.RFC1123))
}

func autoResolvedMessage(m models.Monitor, inc models.Incident, now time.Time) string {
	return fmt.Sprintf("✅ *INCIDENT AUTOMATICALLY RESOLVED* ✅\n*Monitor:* %s\n*Issue:* %s\n*Downtime:* %s\n*Auto-resolved at:* %s\n*Details:* Service is now responding normally",
		m.URL, inc.Cause, strings.TrimSpace(humanize.RelTime(inc.CreatedAt, now, "", "")), now.Format(time.RFC1123))
}
