package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"uptimedock/models"
	"uptimedock/services"
)

func TestSweeper_AvailabilitySweep(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	up := newStatusServer(t, 200)
	down := newStatusServer(t, 500)

	f.addMonitor(t, models.KindURLAvailability, up.URL)
	broken := f.addMonitor(t, models.KindURLAvailability, down.URL)
	f.addMonitor(t, models.KindSSLExpiry, down.URL)

	s := &services.Sweeper{Engine: f.engine, Concurrency: 2}
	stats, err := s.AvailabilitySweep(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %s", err)
	}
	f.engine.Wait()

	if diff := cmp.Diff(services.SweepStats{Checked: 2}, stats); diff != "" {
		t.Errorf("unexpected stats (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Service Down Status 500"}, causes(f.incidents(t, broken.ID))); diff != "" {
		t.Errorf("unexpected incidents (-want +got):\n%s", diff)
	}
}

func TestSweeper_SSLSweep_orphanedRecord(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.addMonitor(t, models.KindSSLExpiry, "https://example.com")
	ctx := context.Background()

	err := f.store.UpsertTLSCheck(ctx, models.TLSCheck{MonitorID: m.ID, ValidTo: t0.Add(2 * day), NotifyThreshold: 30})
	if err != nil {
		t.Fatalf("failed to store TLS check: %s", err)
	}
	f.store.PutTLSCheck(models.TLSCheck{MonitorID: "deleted-monitor", ValidTo: t0.Add(2 * day), NotifyThreshold: 30})

	s := &services.Sweeper{Engine: f.engine, Concurrency: 4}
	stats, err := s.SSLSweep(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %s", err)
	}
	f.engine.Wait()

	if diff := cmp.Diff(services.SweepStats{Checked: 2, Failed: 1}, stats); diff != "" {
		t.Errorf("unexpected stats (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"SSL certificate expires in 2 days"}, causes(f.incidents(t, m.ID))); diff != "" {
		t.Errorf("unexpected incidents (-want +got):\n%s", diff)
	}
}

func TestSweeper_DomainSweep_refresh(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.addMonitor(t, models.KindDomainExpiry, "https://example.com")
	ctx := context.Background()

	err := f.store.UpsertDomainCheck(ctx, models.DomainCheck{
		MonitorID:       m.ID,
		Domain:          "example.com",
		ExpiresAt:       t0.Add(300 * day),
		NotifyThreshold: 30,
	})
	if err != nil {
		t.Fatalf("failed to store domain check: %s", err)
	}

	f.domains.domain = "example.com"
	f.domains.expiresAt = t0.Add(7 * day)

	s := &services.Sweeper{Engine: f.engine, Concurrency: 1, RefreshRecords: true}
	if _, err := s.DomainSweep(ctx); err != nil {
		t.Fatalf("sweep failed: %s", err)
	}
	f.engine.Wait()

	check, err := f.store.FindDomainCheck(ctx, m.ID)
	if err != nil {
		t.Fatalf("failed to read domain check: %s", err)
	}
	if !check.ExpiresAt.Equal(t0.Add(7 * day)) {
		t.Errorf("record should be refreshed, got %s", check.ExpiresAt)
	}
	if diff := cmp.Diff([]string{"Domain Name expires in 7 days"}, causes(f.incidents(t, m.ID))); diff != "" {
		t.Errorf("unexpected incidents (-want +got):\n%s", diff)
	}
}

func TestSweeper_SSLSweep_refreshFailureKeepsRecord(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.addMonitor(t, models.KindSSLExpiry, "https://example.com")
	ctx := context.Background()

	err := f.store.UpsertTLSCheck(ctx, models.TLSCheck{MonitorID: m.ID, ValidTo: t0.Add(3 * day), NotifyThreshold: 30})
	if err != nil {
		t.Fatalf("failed to store TLS check: %s", err)
	}
	f.certs.err = errors.New("connection reset")

	s := &services.Sweeper{Engine: f.engine, RefreshRecords: true}
	stats, err := s.SSLSweep(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %s", err)
	}
	f.engine.Wait()

	if stats.Failed != 0 {
		t.Errorf("a failed refresh should fall back to the stored record: %#v", stats)
	}
	if diff := cmp.Diff([]string{"SSL certificate expires in 3 days"}, causes(f.incidents(t, m.ID))); diff != "" {
		t.Errorf("unexpected incidents (-want +got):\n%s", diff)
	}
}

func TestSweeper_RunOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	srv := newStatusServer(t, 200)
	f.addMonitor(t, models.KindURLAvailability, srv.URL)

	s := &services.Sweeper{Engine: f.engine}
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run failed: %s", err)
	}
	f.engine.Wait()

	if n := srv.calls.Load(); n != 1 {
		t.Errorf("expected one probe, got %d", n)
	}
}

func TestSweeper_Tasks(t *testing.T) {
	t.Parallel()

	s := &services.Sweeper{}
	tasks := s.Tasks(services.ScheduleSpecs{Availability: "*/5 * * * *", SSL: "0 * * * *", Domain: "0 0 * * *"})

	var got []string
	for _, task := range tasks {
		got = append(got, task.Name+" "+task.Spec)
		if task.Run == nil {
			t.Errorf("%s: missing run function", task.Name)
		}
	}
	want := []string{"availability */5 * * * *", "ssl 0 * * * *", "domain 0 0 * * *"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected tasks (-want +got):\n%s", diff)
	}
}

func TestScheduler(t *testing.T) {
	t.Parallel()

	s := services.NewScheduler(nil)

	err := s.Add(services.Task{Name: "broken", Spec: "every now and then", Run: func(context.Context) {}})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Errorf("expected a configuration error, got %v", err)
	}
	if err == nil || !strings.Contains(err.Error(), "broken") {
		t.Errorf("error should name the task: %v", err)
	}

	for _, spec := range []string{"*/5 * * * *", "@every 1h"} {
		if err := s.Add(services.Task{Name: "ok", Spec: spec, Run: func(context.Context) {}}); err != nil {
			t.Errorf("%s: unexpected error: %s", spec, err)
		}
	}
	if s.Len() != 2 {
		t.Errorf("expected 2 tasks, got %d", s.Len())
	}

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Errorf("stop failed: %s", err)
	}
}
