package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"uptimedock/models"
)

const DefaultSweepConcurrency = 8

// SweepStats counts the items of one sweep. Items skipped after the context
// was cancelled are not checked.
type SweepStats struct {
	Checked int
	Failed  int
}

// Sweeper runs the periodic checks over all eligible monitors and records.
// One failing item never stops the others.
type Sweeper struct {
	Engine      *Engine
	Concurrency int

	// RefreshRecords re-reads certificates and WHOIS data before the expiry
	// re-check. Without it the stored records are evaluated as they are.
	RefreshRecords bool
}

func sweepItems[T any](ctx context.Context, sweep string, items []T, limit int, idOf func(T) string, run func(context.Context, T) error) SweepStats {
	if limit < 1 {
		limit = 1
	}

	var failed atomic.Int64
	sem := make(chan struct{}, limit)
	wg := &sync.WaitGroup{}

	checked := 0
	for _, item := range items {
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
			if ctx.Err() != nil {
				<-sem
			}
		}
		if ctx.Err() != nil {
			break
		}

		checked++
		wg.Add(1)
		go func() {
			defer func() {
				<-sem
				wg.Done()
			}()
			defer func() {
				if r := recover(); r != nil {
					failed.Add(1)
					slog.Error("sweep item panic recovered", "sweep", sweep, "item", idOf(item), "panic", r)
				}
			}()

			if err := run(ctx, item); err != nil {
				failed.Add(1)
				level := slog.LevelWarn
				if errors.Is(err, ErrDataIntegrity) {
					level = slog.LevelInfo
				}
				slog.Log(ctx, level, "sweep item failed", "sweep", sweep, "item", idOf(item), "error", err)
			}
		}()
	}
	wg.Wait()

	return SweepStats{Checked: checked, Failed: int(failed.Load())}
}

func (s *Sweeper) run(ctx context.Context, sweep string, body func(context.Context) (SweepStats, error)) (SweepStats, error) {
	start := time.Now()
	slog.Debug("sweep started", "sweep", sweep)

	stats, err := body(ctx)
	if err != nil {
		slog.Error("sweep aborted", "sweep", sweep, "error", err)
		return stats, err
	}

	slog.Info("sweep finished",
		"sweep", sweep,
		"checked", stats.Checked,
		"failed", stats.Failed,
		"took", time.Since(start).Round(time.Millisecond),
	)
	return stats, nil
}

// AvailabilitySweep probes every active URL monitor.
func (s *Sweeper) AvailabilitySweep(ctx context.Context) (SweepStats, error) {
	return s.run(ctx, "availability", func(ctx context.Context) (SweepStats, error) {
		monitors, err := s.Engine.Store.FindActiveMonitorsByKind(ctx, models.KindURLAvailability)
		if err != nil {
			return SweepStats{}, fmt.Errorf("list URL monitors: %w", err)
		}
		return sweepItems(ctx, "availability", monitors, s.Concurrency,
			func(m models.Monitor) string { return m.ID },
			s.Engine.RunAvailabilityCheck,
		), nil
	})
}

// SSLSweep re-checks every stored TLS record.
func (s *Sweeper) SSLSweep(ctx context.Context) (SweepStats, error) {
	return s.run(ctx, "ssl", func(ctx context.Context) (SweepStats, error) {
		checks, err := s.Engine.Store.ListTLSChecks(ctx)
		if err != nil {
			return SweepStats{}, fmt.Errorf("list TLS checks: %w", err)
		}
		return sweepItems(ctx, "ssl", checks, s.Concurrency,
			func(c models.TLSCheck) string { return c.MonitorID },
			func(ctx context.Context, c models.TLSCheck) error {
				if s.RefreshRecords {
					fresh, err := s.Engine.RefreshTLSCheck(ctx, c)
					if errors.Is(err, ErrDataIntegrity) {
						return err
					}
					if err != nil {
						slog.Warn("certificate refresh failed", "monitor_id", c.MonitorID, "error", err)
					}
					c = fresh
				}
				return s.Engine.RunExpiryRecheck(ctx, c.Expiry())
			},
		), nil
	})
}

// DomainSweep re-checks every stored domain record.
func (s *Sweeper) DomainSweep(ctx context.Context) (SweepStats, error) {
	return s.run(ctx, "domain", func(ctx context.Context) (SweepStats, error) {
		checks, err := s.Engine.Store.ListDomainChecks(ctx)
		if err != nil {
			return SweepStats{}, fmt.Errorf("list domain checks: %w", err)
		}
		return sweepItems(ctx, "domain", checks, s.Concurrency,
			func(c models.DomainCheck) string { return c.MonitorID },
			func(ctx context.Context, c models.DomainCheck) error {
				if s.RefreshRecords {
					fresh, err := s.Engine.RefreshDomainCheck(ctx, c)
					if errors.Is(err, ErrDataIntegrity) {
						return err
					}
					if err != nil {
						slog.Warn("WHOIS refresh failed", "monitor_id", c.MonitorID, "error", err)
					}
					c = fresh
				}
				return s.Engine.RunExpiryRecheck(ctx, c.Expiry())
			},
		), nil
	})
}

// RunOnce runs all three sweeps one after another.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	var errs []error
	for _, sweep := range []func(context.Context) (SweepStats, error){
		s.AvailabilitySweep,
		s.SSLSweep,
		s.DomainSweep,
	} {
		if _, err := sweep(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ScheduleSpecs are the cron specs of the three sweeps.
type ScheduleSpecs struct {
	Availability string
	SSL          string
	Domain       string
}

// Tasks binds the sweeps to their schedules.
func (s *Sweeper) Tasks(specs ScheduleSpecs) []Task {
	wrap := func(sweep func(context.Context) (SweepStats, error)) func(context.Context) {
		return func(ctx context.Context) {
			sweep(ctx)
		}
	}

	return []Task{
		{Name: "availability", Spec: specs.Availability, Run: wrap(s.AvailabilitySweep)},
		{Name: "ssl", Spec: specs.SSL, Run: wrap(s.SSLSweep)},
		{Name: "domain", Spec: specs.Domain, Run: wrap(s.DomainSweep)},
	}
}
