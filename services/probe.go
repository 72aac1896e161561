package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

var HTTPUserAgent = "uptimedock health check"

// ProbeResult is the outcome of one availability probe.
type ProbeResult struct {
	Up         bool
	StatusCode int // last status seen, 0 when no response arrived
	Latency    time.Duration
	Attempts   int
	Err        error
}

// Prober performs GET requests with a fixed attempt budget and a constant
// pause between attempts.
type Prober struct {
	Client   *http.Client
	Attempts int
	Backoff  time.Duration

	// Sleep waits between attempts. It returns early with the context error.
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewProber(timeout time.Duration, attempts int, backoff time.Duration) *Prober {
	return &Prober{
		Client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DisableKeepAlives: true,
			},
		},
		Attempts: attempts,
		Backoff:  backoff,
		Sleep:    sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Probe stops at the first response below 400. Otherwise it returns the last
// failure after the budget is used up.
func (p *Prober) Probe(ctx context.Context, url string) ProbeResult {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var result ProbeResult
	for attempt := 1; attempt <= attempts; attempt++ {
		result.Attempts = attempt

		status, latency, err := p.get(ctx, url)
		if err == nil {
			result.Up = true
			result.StatusCode = status
			result.Latency = latency
			result.Err = nil
			return result
		}

		result.StatusCode = status
		result.Err = err

		if attempt == attempts {
			break
		}

		slog.Debug("probe attempt failed",
			"url", url,
			"attempt", attempt,
			"attempts", attempts,
			"retry_in", p.Backoff,
			"error", err,
		)

		sleep := p.Sleep
		if sleep == nil {
			sleep = sleepContext
		}
		if err := sleep(ctx, p.Backoff); err != nil {
			result.Err = err
			break
		}
	}

	return result
}

func (p *Prober) get(ctx context.Context, url string) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("User-Agent", HTTPUserAgent)

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	latency := time.Since(start)

	if resp.StatusCode >= 400 {
		return resp.StatusCode, latency, fmt.Errorf("HTTP Error: %d", resp.StatusCode)
	}
	return resp.StatusCode, latency, nil
}
