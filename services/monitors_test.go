package services_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"uptimedock/db"
	"uptimedock/models"
	"uptimedock/services"
)

func intPtr(i int) *int { return &i }

func TestValidateMonitor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   services.MonitorInput
		ok   bool
	}{
		{"bare host", services.MonitorInput{URL: "example.com", TeamID: "t", Kind: models.KindURLAvailability}, true},
		{"https with path", services.MonitorInput{URL: "https://www.example.co.uk/status", TeamID: "t", Kind: models.KindSSLExpiry}, true},
		{"ipv4", services.MonitorInput{URL: "http://10.0.0.1:8080", TeamID: "t", Kind: models.KindURLAvailability}, true},
		{"threshold", services.MonitorInput{URL: "example.com", TeamID: "t", Kind: models.KindDomainExpiry, NotifyThreshold: intPtr(60)}, true},
		{"missing url", services.MonitorInput{TeamID: "t", Kind: models.KindURLAvailability}, false},
		{"missing team", services.MonitorInput{URL: "example.com", Kind: models.KindURLAvailability}, false},
		{"unknown kind", services.MonitorInput{URL: "example.com", TeamID: "t", Kind: "ping"}, false},
		{"no tld", services.MonitorInput{URL: "localhost", TeamID: "t", Kind: models.KindURLAvailability}, false},
		{"ftp", services.MonitorInput{URL: "ftp://example.com", TeamID: "t", Kind: models.KindURLAvailability}, false},
		{"negative threshold", services.MonitorInput{URL: "example.com", TeamID: "t", Kind: models.KindSSLExpiry, NotifyThreshold: intPtr(-1)}, false},
		{"huge threshold", services.MonitorInput{URL: "example.com", TeamID: "t", Kind: models.KindSSLExpiry, NotifyThreshold: intPtr(400)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := services.ValidateMonitor(tt.in)
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %s", err)
			}
			if !tt.ok && !errors.Is(err, services.ErrConfiguration) {
				t.Errorf("expected a configuration error, got %v", err)
			}
		})
	}
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"example.com":          "https://example.com",
		" example.com/x ":      "https://example.com/x",
		"http://example.com":   "http://example.com",
		"https://example.com/": "https://example.com/",
	}
	for in, want := range tests {
		if got := services.NormalizeURL(in); got != want {
			t.Errorf("%q: expected %q but got %q", in, want, got)
		}
	}
}

func TestEngine_CreateMonitor_ssl(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.certs.info = services.CertInfo{Issuer: "Test CA", ValidTo: t0.Add(90 * day)}
	ctx := context.Background()

	m, err := f.engine.CreateMonitor(ctx, f.user.ID, services.MonitorInput{
		URL:             "example.com",
		TeamID:          "team-1",
		Kind:            models.KindSSLExpiry,
		NotifyThreshold: intPtr(14),
	})
	if err != nil {
		t.Fatalf("create failed: %s", err)
	}
	f.engine.Wait()

	if m.URL != "https://example.com" || m.NotifyThreshold != 14 || !m.Active {
		t.Errorf("unexpected monitor: %#v", m)
	}

	check, err := f.store.FindTLSCheck(ctx, m.ID)
	if err != nil {
		t.Fatalf("TLS check should be stored: %s", err)
	}
	if check.NotifyThreshold != 14 || !check.ValidTo.Equal(t0.Add(90*day)) {
		t.Errorf("unexpected TLS check: %#v", check)
	}
	if incs := f.incidents(t, m.ID); len(incs) != 0 {
		t.Errorf("a certificate far from expiry opens no incident: %v", causes(incs))
	}

	_, err = f.engine.CreateMonitor(ctx, f.user.ID, services.MonitorInput{
		URL:    "https://example.com",
		TeamID: "team-1",
		Kind:   models.KindSSLExpiry,
	})
	if !errors.Is(err, services.ErrDuplicateMonitor) || !errors.Is(err, services.ErrConfiguration) {
		t.Errorf("expected a duplicate error, got %v", err)
	}
}

func TestEngine_CreateMonitor_concurrentDuplicates(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.certs.info = services.CertInfo{Issuer: "Test CA", ValidTo: t0.Add(90 * day)}

	var created, duplicates atomic.Int32
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.CreateMonitor(context.Background(), f.user.ID, services.MonitorInput{
				URL:    "example.com",
				TeamID: "team-1",
				Kind:   models.KindSSLExpiry,
			})
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, services.ErrDuplicateMonitor):
				duplicates.Add(1)
			default:
				t.Errorf("unexpected error: %s", err)
			}
		}()
	}
	wg.Wait()
	f.engine.Wait()

	if created.Load() != 1 || duplicates.Load() != 9 {
		t.Errorf("expected one monitor and nine duplicates, got %d and %d", created.Load(), duplicates.Load())
	}
	monitors, err := f.store.FindMonitorsByUser(context.Background(), f.user.ID)
	if err != nil || len(monitors) != 1 {
		t.Errorf("expected one stored monitor: %d %v", len(monitors), err)
	}
}

func TestEngine_CreateMonitor_validationFailures(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.certs.err = services.ErrNoCertificate
	f.domains.err = services.ErrExpiryNotFound
	ctx := context.Background()

	for _, kind := range []models.MonitorKind{models.KindSSLExpiry, models.KindDomainExpiry} {
		_, err := f.engine.CreateMonitor(ctx, f.user.ID, services.MonitorInput{
			URL:    "example.com",
			TeamID: "team-1",
			Kind:   kind,
		})
		if !errors.Is(err, services.ErrConfiguration) {
			t.Errorf("%s: expected a configuration error, got %v", kind, err)
		}
	}

	monitors, err := f.store.FindMonitorsByUser(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("failed to list monitors: %s", err)
	}
	if len(monitors) != 0 {
		t.Errorf("nothing should be stored after a failed validation, got %d monitors", len(monitors))
	}
}

func TestEngine_CreateMonitor_domainNearExpiry(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.domains.domain = "example.com"
	f.domains.expiresAt = t0.Add(10 * day)

	m, err := f.engine.CreateMonitor(context.Background(), f.user.ID, services.MonitorInput{
		URL:    "https://www.example.com",
		TeamID: "team-1",
		Kind:   models.KindDomainExpiry,
	})
	if err != nil {
		t.Fatalf("create failed: %s", err)
	}
	f.engine.Wait()

	if diff := cmp.Diff([]string{"Domain Name expires in 10 days"}, causes(f.incidents(t, m.ID))); diff != "" {
		t.Errorf("unexpected incidents (-want +got):\n%s", diff)
	}
	if n := len(f.slack.Messages()); n != 1 {
		t.Errorf("expected one chat alert, got %d", n)
	}
}

func TestEngine_CreateMonitor_firstAvailabilityCheck(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	srv := newStatusServer(t, 500)

	m, err := f.engine.CreateMonitor(context.Background(), f.user.ID, services.MonitorInput{
		URL:    srv.URL,
		TeamID: "team-1",
		Kind:   models.KindURLAvailability,
	})
	if err != nil {
		t.Fatalf("create failed: %s", err)
	}
	f.engine.Wait()

	if got := f.monitor(t, m.ID); got.Availability {
		t.Errorf("the background probe should have marked the monitor down")
	}
	if diff := cmp.Diff([]string{"Service Down Status 500"}, causes(f.incidents(t, m.ID))); diff != "" {
		t.Errorf("unexpected incidents (-want +got):\n%s", diff)
	}
}

func TestEngine_DeleteMonitor(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.addMonitor(t, models.KindURLAvailability, "https://example.com")
	ctx := context.Background()

	if err := f.engine.DeleteMonitor(ctx, "someone-else", m.ID); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("deleting a monitor of another user should fail, got %v", err)
	}
	if err := f.engine.DeleteMonitor(ctx, f.user.ID, m.ID); err != nil {
		t.Fatalf("delete failed: %s", err)
	}
	if _, err := f.store.FindMonitorByID(ctx, m.ID); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("monitor should be gone, got %v", err)
	}
}

func TestEngine_MonitorDetail(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.addMonitor(t, models.KindSSLExpiry, "https://example.com")
	ctx := context.Background()

	err := f.store.UpsertTLSCheck(ctx, models.TLSCheck{MonitorID: m.ID, ValidTo: t0.Add(40 * day), NotifyThreshold: 30})
	if err != nil {
		t.Fatalf("failed to store TLS check: %s", err)
	}
	for i, ms := range []int64{120, 80, 100} {
		err := f.store.AddResponseTime(ctx, models.ResponseTime{
			MonitorID: m.ID,
			LatencyMs: ms,
			CreatedAt: t0.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("failed to add response time: %s", err)
		}
	}

	d, err := f.engine.MonitorDetail(ctx, f.user.ID, m.ID)
	if err != nil {
		t.Fatalf("detail failed: %s", err)
	}

	want := &models.ExpiryInfo{ValidTo: t0.Add(40 * day), Kind: models.KindSSLExpiry}
	if diff := cmp.Diff(want, d.ExpiryInfo); diff != "" {
		t.Errorf("unexpected expiry info (-want +got):\n%s", diff)
	}
	if d.Metrics == nil {
		t.Fatalf("metrics should be present")
	}
	got := []float64{d.Metrics.Average, float64(d.Metrics.Min), float64(d.Metrics.Max), float64(d.Metrics.P90), float64(d.Metrics.Last)}
	if diff := cmp.Diff([]float64{100, 80, 120, 120, 100}, got); diff != "" {
		t.Errorf("unexpected metrics [avg min max p90 last] (-want +got):\n%s", diff)
	}

	list, err := f.engine.ListMonitors(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("list failed: %s", err)
	}
	if len(list) != 1 || list[0].ExpiryInfo == nil || list[0].Metrics != nil {
		t.Errorf("unexpected monitor list: %#v", list)
	}
}

func TestResponseMetrics(t *testing.T) {
	t.Parallel()

	var samples []models.ResponseTime
	for i := 100; i >= 1; i-- {
		samples = append(samples, models.ResponseTime{LatencyMs: int64(i)})
	}

	m := services.ResponseMetrics(samples)
	if m.Average != 50.5 || m.Min != 1 || m.Max != 100 || m.P90 != 91 || m.Last != 100 {
		t.Errorf("unexpected metrics: %#v", m)
	}
	if len(m.Samples) != 50 {
		t.Errorf("expected 50 chart samples, got %d", len(m.Samples))
	}
}
