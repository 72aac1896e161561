package services

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"uptimedock/db"
	"uptimedock/models"
)

const (
	DefaultNotifyThreshold = 30
	maxNotifyThreshold     = 365
	metricsSamples         = 100
	chartSamples           = 50
)

// MonitorInput is what a user submits to register a monitor.
type MonitorInput struct {
	URL             string             `json:"url"`
	TeamID          string             `json:"team_id"`
	Kind            models.MonitorKind `json:"kind"`
	NotifyThreshold *int               `json:"notify_threshold"`
}

var hostnamePattern = regexp.MustCompile(`(?i)^([a-z\d]([a-z\d-]*[a-z\d])*\.)+[a-z]{2,}$`)

// ValidateMonitor rejects malformed input with a configuration error.
func ValidateMonitor(in MonitorInput) error {
	if in.URL == "" || in.TeamID == "" {
		return newError(ErrConfiguration, nil, "provide all required fields")
	}
	if !in.Kind.Valid() {
		return newError(ErrConfiguration, nil, "unknown monitor kind %q", in.Kind)
	}
	if in.NotifyThreshold != nil && (*in.NotifyThreshold < 0 || *in.NotifyThreshold > maxNotifyThreshold) {
		return newError(ErrConfiguration, nil, "invalid notify threshold %d", *in.NotifyThreshold)
	}

	raw := in.URL
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return newError(ErrConfiguration, nil, "invalid URL")
	}
	host := u.Hostname()
	if ip := net.ParseIP(host); ip != nil && ip.To4() != nil {
		return nil
	}
	if !hostnamePattern.MatchString(host) {
		return newError(ErrConfiguration, nil, "invalid URL")
	}
	return nil
}

// NormalizeURL adds a scheme to bare host names.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "://") {
		return raw
	}
	return "https://" + raw
}

// CreateMonitor validates and stores a monitor. SSL and domain monitors are
// checked before anything is written; URL monitors get their first probe in
// the background.
func (e *Engine) CreateMonitor(ctx context.Context, userID string, in MonitorInput) (models.Monitor, error) {
	if err := ValidateMonitor(in); err != nil {
		return models.Monitor{}, err
	}
	target := NormalizeURL(in.URL)

	existing, err := e.Store.FindMonitorsByUser(ctx, userID)
	if err != nil {
		return models.Monitor{}, err
	}
	for _, m := range existing {
		if m.Kind == in.Kind && (m.URL == target || m.URL == in.URL) {
			return models.Monitor{}, newError(ErrConfiguration, ErrDuplicateMonitor, "")
		}
	}

	threshold := DefaultNotifyThreshold
	if in.NotifyThreshold != nil {
		threshold = *in.NotifyThreshold
	}

	var cert CertInfo
	var domain string
	var expiresAt time.Time

	m := models.Monitor{
		URL:             target,
		UserID:          userID,
		TeamID:          in.TeamID,
		Kind:            in.Kind,
		Active:          true,
		NotifyThreshold: threshold,
		Availability:    true,
	}

	switch in.Kind {
	case models.KindSSLExpiry:
		cert, err = e.ValidateCertificate(ctx, target)
		if err != nil {
			return models.Monitor{}, newError(ErrConfiguration, err,
				"could not verify SSL certificate, check that the URL has a valid SSL certificate")
		}
	case models.KindDomainExpiry:
		domain, expiresAt, err = e.ValidateDomain(ctx, target)
		if err != nil {
			return models.Monitor{}, newError(ErrConfiguration, err,
				"could not fetch domain expiry information, verify that the domain name is correct")
		}
	case models.KindURLAvailability:
	}

	m, err = e.Store.CreateMonitor(ctx, m)
	if errors.Is(err, db.ErrDuplicate) {
		return models.Monitor{}, newError(ErrConfiguration, ErrDuplicateMonitor, "")
	}
	if err != nil {
		return models.Monitor{}, err
	}
	slog.Info("monitor created", "monitor_id", m.ID, "url", m.URL, "kind", m.Kind)

	switch m.Kind {
	case models.KindURLAvailability:
		e.inBackground(ctx, func(ctx context.Context) {
			if err := e.RunAvailabilityCheck(ctx, m); err != nil {
				slog.Warn("first availability check failed", "monitor_id", m.ID, "error", err)
			}
		})
	case models.KindSSLExpiry:
		if _, err := e.storeSSL(ctx, m, cert, threshold); err != nil {
			slog.Warn("first SSL check failed", "monitor_id", m.ID, "error", err)
		}
	case models.KindDomainExpiry:
		if _, err := e.storeDomain(ctx, m, domain, expiresAt, threshold); err != nil {
			slog.Warn("first domain check failed", "monitor_id", m.ID, "error", err)
		}
	}
	return m, nil
}

func (e *Engine) inBackground(ctx context.Context, run func(context.Context)) {
	e.background.Add(1)
	go func() {
		defer e.background.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("background check panic recovered", "panic", r)
			}
		}()
		run(context.WithoutCancel(ctx))
	}()
}

// Wait blocks until background checks and notifications are done.
func (e *Engine) Wait() {
	e.background.Wait()
	e.Dispatcher.Wait()
}

func (e *Engine) ownedMonitor(ctx context.Context, userID, id string) (models.Monitor, error) {
	m, err := e.Store.FindMonitorByID(ctx, id)
	if err != nil {
		return models.Monitor{}, err
	}
	if userID != "" && m.UserID != userID {
		return models.Monitor{}, db.ErrNotFound
	}
	return m, nil
}

// DeleteMonitor removes the monitor with its incidents, samples and checks.
func (e *Engine) DeleteMonitor(ctx context.Context, userID, id string) error {
	if _, err := e.ownedMonitor(ctx, userID, id); err != nil {
		return err
	}
	if err := e.Store.DeleteMonitor(ctx, id); err != nil {
		return err
	}
	slog.Info("monitor deleted", "monitor_id", id)
	return nil
}

// ExpiryInfo returns the stored expiry date of an SSL or domain monitor. ok is
// false for URL monitors and for monitors not checked yet.
func (e *Engine) ExpiryInfo(ctx context.Context, m models.Monitor) (models.ExpiryInfo, bool, error) {
	switch m.Kind {
	case models.KindSSLExpiry:
		c, err := e.Store.FindTLSCheck(ctx, m.ID)
		if errors.Is(err, db.ErrNotFound) {
			return models.ExpiryInfo{}, false, nil
		}
		if err != nil {
			return models.ExpiryInfo{}, false, err
		}
		return models.ExpiryInfo{ValidTo: c.ValidTo, Kind: m.Kind}, true, nil
	case models.KindDomainExpiry:
		c, err := e.Store.FindDomainCheck(ctx, m.ID)
		if errors.Is(err, db.ErrNotFound) {
			return models.ExpiryInfo{}, false, nil
		}
		if err != nil {
			return models.ExpiryInfo{}, false, err
		}
		return models.ExpiryInfo{ValidTo: c.ExpiresAt, Kind: m.Kind}, true, nil
	case models.KindURLAvailability:
		return models.ExpiryInfo{}, false, nil
	default:
		return models.ExpiryInfo{}, false, nil
	}
}

// ListMonitors returns the monitors of a user with their expiry info.
func (e *Engine) ListMonitors(ctx context.Context, userID string) ([]models.MonitorDetail, error) {
	monitors, err := e.Store.FindMonitorsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]models.MonitorDetail, 0, len(monitors))
	for _, m := range monitors {
		d := models.MonitorDetail{Monitor: m}
		info, ok, err := e.ExpiryInfo(ctx, m)
		if err != nil {
			return nil, err
		}
		if ok {
			d.ExpiryInfo = &info
		}
		out = append(out, d)
	}
	return out, nil
}

// MonitorDetail returns one monitor with expiry info and response-time
// metrics over the latest samples.
func (e *Engine) MonitorDetail(ctx context.Context, userID, id string) (models.MonitorDetail, error) {
	m, err := e.ownedMonitor(ctx, userID, id)
	if err != nil {
		return models.MonitorDetail{}, err
	}

	d := models.MonitorDetail{Monitor: m}
	info, ok, err := e.ExpiryInfo(ctx, m)
	if err != nil {
		return models.MonitorDetail{}, err
	}
	if ok {
		d.ExpiryInfo = &info
	}

	samples, err := e.Store.ResponseTimes(ctx, m.ID, nil, nil, metricsSamples)
	if err != nil {
		return models.MonitorDetail{}, err
	}
	if len(samples) > 0 {
		metrics := ResponseMetrics(samples)
		d.Metrics = &metrics
	}
	return d, nil
}

// ResponseMetrics summarises samples given newest first.
func ResponseMetrics(samples []models.ResponseTime) models.ResponseTimeMetrics {
	if len(samples) == 0 {
		return models.ResponseTimeMetrics{}
	}

	latencies := make([]int64, len(samples))
	var sum int64
	for i, s := range samples {
		latencies[i] = s.LatencyMs
		sum += s.LatencyMs
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	chart := samples
	if len(chart) > chartSamples {
		chart = chart[:chartSamples]
	}

	return models.ResponseTimeMetrics{
		Average: float64(sum) / float64(len(samples)),
		Min:     latencies[0],
		Max:     latencies[len(latencies)-1],
		P90:     latencies[len(latencies)*9/10],
		Last:    samples[0].LatencyMs,
		Samples: chart,
	}
}

// ResponseTimes returns the latest samples of a monitor, newest first.
func (e *Engine) ResponseTimes(ctx context.Context, userID, id string, limit int) ([]models.ResponseTime, error) {
	if _, err := e.ownedMonitor(ctx, userID, id); err != nil {
		return nil, err
	}
	return e.Store.ResponseTimes(ctx, id, nil, nil, limit)
}
