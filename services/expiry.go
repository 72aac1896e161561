package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"uptimedock/db"
	"uptimedock/models"
)

const day = 24 * time.Hour

func daysFloor(from, to time.Time) int {
	return int(math.Floor(float64(to.Sub(from)) / float64(day)))
}

func daysCeil(from, to time.Time) int {
	return int(math.Ceil(float64(to.Sub(from)) / float64(day)))
}

func expiryTitle(kind models.MonitorKind, repeated bool) string {
	switch {
	case kind == models.KindDomainExpiry && repeated:
		return "REPEATED DOMAIN ALERT"
	case kind == models.KindDomainExpiry:
		return "DOMAIN EXPIRATION ALERT"
	case repeated:
		return "REPEATED SSL ALERT"
	default:
		return "SSL CERTIFICATE ALERT"
	}
}

func expiryDetails(kind models.MonitorKind, url string, expiresAt time.Time) string {
	date := expiresAt.UTC().Format("2006-01-02")
	if kind == models.KindDomainExpiry {
		return fmt.Sprintf("Your domain %s will expire on %s", url, date)
	}
	return fmt.Sprintf("Your SSL certificate for %s will expire on %s", url, date)
}

func (e *Engine) expiryEmail(ctx context.Context, m models.Monitor, kind models.MonitorKind, expiresAt time.Time, days int) (string, EmailMessage) {
	user, err := e.Store.FindUserByID(ctx, m.UserID)
	if err != nil {
		slog.Warn("alert recipient not found", "monitor_id", m.ID, "user_id", m.UserID, "error", err)
	}

	data := AlertData{
		FirstName:  user.FirstName,
		MonitorID:  m.ID,
		MonitorURL: m.URL,
		ExpiryDays: days,
		ExpiryDate: expiresAt,
		Time:       e.now(),
	}
	if kind == models.KindDomainExpiry {
		return user.Email, DomainExpiryEmail(data)
	}
	return user.Email, SSLExpiryEmail(data)
}

// openExpiryIncident opens the expiry incident of the monitor unless one is
// already unresolved, and alerts only when it was opened by this call.
func (e *Engine) openExpiryIncident(ctx context.Context, m models.Monitor, kind models.MonitorKind, expiresAt time.Time, days int) (models.Incident, bool, error) {
	now := e.now()
	cause := models.ExpiryCause(kind, days)

	inc, created, err := e.Store.FindOrCreateUnresolved(ctx, models.Incident{
		MonitorID:     m.ID,
		UserID:        m.UserID,
		Cause:         cause.Text,
		Family:        cause.Family,
		CauseKey:      cause.Key,
		Details:       expiryDetails(kind, m.URL, expiresAt),
		LastAlertSent: now,
		CreatedAt:     now,
	})
	if err != nil {
		return models.Incident{}, false, integrity(err, "open expiry incident for monitor %s", m.ID)
	}
	if !created {
		return inc, false, nil
	}
	slog.Info("incident opened", "monitor_id", m.ID, "incident_id", inc.ID, "cause", inc.Cause)

	to, msg := e.expiryEmail(ctx, m, kind, expiresAt, days)
	e.Dispatcher.NotifyTeam(ctx, m.TeamID, alertMessage(expiryTitle(kind, false), m.URL, inc, now))
	e.Dispatcher.SendEmail(ctx, to, msg)
	return inc, true, nil
}

// ValidateCertificate fetches the certificate without persisting anything.
func (e *Engine) ValidateCertificate(ctx context.Context, rawURL string) (CertInfo, error) {
	return e.Certificates.FetchCertificate(ctx, rawURL)
}

// CheckSSL fetches the certificate of the monitor, stores it and opens an
// incident when it expires within the threshold.
func (e *Engine) CheckSSL(ctx context.Context, m models.Monitor) (models.TLSCheck, error) {
	info, err := e.Certificates.FetchCertificate(ctx, m.URL)
	if err != nil {
		return models.TLSCheck{}, err
	}
	return e.storeSSL(ctx, m, info, m.NotifyThreshold)
}

func (e *Engine) storeSSL(ctx context.Context, m models.Monitor, info CertInfo, threshold int) (models.TLSCheck, error) {
	now := e.now()
	check := models.TLSCheck{
		MonitorID:       m.ID,
		Issuer:          info.Issuer,
		ValidFrom:       info.ValidFrom,
		ValidTo:         info.ValidTo,
		Protocol:        info.Protocol,
		NotifyThreshold: threshold,
		CheckedAt:       now,
	}
	if err := e.Store.UpsertTLSCheck(ctx, check); err != nil {
		return models.TLSCheck{}, integrity(err, "store TLS check of monitor %s", m.ID)
	}

	days := daysFloor(now, info.ValidTo)
	slog.Debug("certificate checked", "monitor_id", m.ID, "issuer", info.Issuer, "days_left", days)

	if days <= threshold {
		if _, _, err := e.openExpiryIncident(ctx, m, models.KindSSLExpiry, info.ValidTo, days); err != nil {
			return check, err
		}
	}
	return check, nil
}

// ValidateDomain looks up the expiry date without persisting anything.
func (e *Engine) ValidateDomain(ctx context.Context, rawURL string) (string, time.Time, error) {
	return e.Domains.LookupExpiry(ctx, rawURL)
}

// CheckDomain looks up the registration expiry of the monitor, stores it and
// opens an incident when it expires within the threshold.
func (e *Engine) CheckDomain(ctx context.Context, m models.Monitor) (models.DomainCheck, error) {
	domain, expiresAt, err := e.Domains.LookupExpiry(ctx, m.URL)
	if err != nil {
		return models.DomainCheck{}, err
	}
	return e.storeDomain(ctx, m, domain, expiresAt, m.NotifyThreshold)
}

func (e *Engine) storeDomain(ctx context.Context, m models.Monitor, domain string, expiresAt time.Time, threshold int) (models.DomainCheck, error) {
	now := e.now()
	check := models.DomainCheck{
		MonitorID:       m.ID,
		Domain:          domain,
		ExpiresAt:       expiresAt,
		NotifyThreshold: threshold,
		CheckedAt:       now,
	}
	if err := e.Store.UpsertDomainCheck(ctx, check); err != nil {
		return models.DomainCheck{}, integrity(err, "store domain check of monitor %s", m.ID)
	}

	days := daysCeil(now, expiresAt)
	slog.Debug("domain checked", "monitor_id", m.ID, "domain", domain, "days_left", days)

	if days <= threshold {
		if _, _, err := e.openExpiryIncident(ctx, m, models.KindDomainExpiry, expiresAt, days); err != nil {
			return check, err
		}
	}
	return check, nil
}

// RefreshTLSCheck re-reads the certificate behind a stored record and stores
// the new validity window. Incidents are left to RunExpiryRecheck.
func (e *Engine) RefreshTLSCheck(ctx context.Context, c models.TLSCheck) (models.TLSCheck, error) {
	m, err := e.Store.FindMonitorByID(ctx, c.MonitorID)
	if err != nil {
		return c, integrity(err, "monitor %s of TLS check", c.MonitorID)
	}
	info, err := e.Certificates.FetchCertificate(ctx, m.URL)
	if err != nil {
		return c, err
	}

	c.Issuer = info.Issuer
	c.ValidFrom = info.ValidFrom
	c.ValidTo = info.ValidTo
	c.Protocol = info.Protocol
	c.CheckedAt = e.now()
	if err := e.Store.UpsertTLSCheck(ctx, c); err != nil {
		return c, integrity(err, "store TLS check of monitor %s", c.MonitorID)
	}
	return c, nil
}

// RefreshDomainCheck is RefreshTLSCheck for WHOIS records.
func (e *Engine) RefreshDomainCheck(ctx context.Context, c models.DomainCheck) (models.DomainCheck, error) {
	m, err := e.Store.FindMonitorByID(ctx, c.MonitorID)
	if err != nil {
		return c, integrity(err, "monitor %s of domain check", c.MonitorID)
	}
	domain, expiresAt, err := e.Domains.LookupExpiry(ctx, m.URL)
	if err != nil {
		return c, err
	}

	c.Domain = domain
	c.ExpiresAt = expiresAt
	c.CheckedAt = e.now()
	if err := e.Store.UpsertDomainCheck(ctx, c); err != nil {
		return c, integrity(err, "store domain check of monitor %s", c.MonitorID)
	}
	return c, nil
}

// RunExpiryRecheck opens or re-alerts the expiry incident of a stored TLS or
// domain record. Resolved incidents stay resolved.
func (e *Engine) RunExpiryRecheck(ctx context.Context, rec models.ExpiryRecord) error {
	now := e.now()
	days := daysCeil(now, rec.ExpiresAt)
	if days > rec.NotifyThreshold {
		return nil
	}

	m, err := e.Store.FindMonitorByID(ctx, rec.MonitorID)
	if err != nil {
		return integrity(err, "monitor %s of %s record", rec.MonitorID, rec.Kind)
	}

	family := models.FamilyForKind(rec.Kind)
	latest, err := e.Store.FindLatestByFamily(ctx, m.ID, family)
	if errors.Is(err, db.ErrNotFound) {
		_, _, err := e.openExpiryIncident(ctx, m, rec.Kind, rec.ExpiresAt, days)
		return err
	}
	if err != nil {
		return fmt.Errorf("find %s incident of monitor %s: %w", family, m.ID, err)
	}

	latest, err = e.repair(ctx, latest)
	if err != nil {
		return err
	}
	if latest.Resolved {
		slog.Debug("expiry incident already resolved", "monitor_id", m.ID, "incident_id", latest.ID)
		return nil
	}

	if now.Sub(latest.LastAlertAt()) < e.reAlertInterval() {
		return nil
	}

	inc, err := e.Store.UpdateIncident(ctx, latest.ID, models.IncidentUpdate{LastAlertSent: models.TimePtr(now)})
	if err != nil {
		return integrity(err, "stamp alert time of incident %s", latest.ID)
	}
	slog.Info("repeated expiry warning", "monitor_id", m.ID, "incident_id", inc.ID, "days_left", days)

	current := inc
	current.Cause = models.ExpiryCause(rec.Kind, days).Text
	current.Details = expiryDetails(rec.Kind, m.URL, rec.ExpiresAt)

	to, msg := e.expiryEmail(ctx, m, rec.Kind, rec.ExpiresAt, days)
	e.Dispatcher.NotifyTeam(ctx, m.TeamID, repeatedAlertMessage(expiryTitle(rec.Kind, true), m.URL, current, now))
	e.Dispatcher.SendEmail(ctx, to, msg)
	return nil
}
