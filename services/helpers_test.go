package services_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"uptimedock/db"
	"uptimedock/models"
	"uptimedock/services"
)

const day = 24 * time.Hour

var t0 = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type teamMessage struct {
	TeamID  string
	Message string
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []teamMessage
	err      error
}

func (r *recordingNotifier) Notify(_ context.Context, teamID, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, teamMessage{teamID, message})
	return r.err
}

func (r *recordingNotifier) Messages() []teamMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]teamMessage(nil), r.messages...)
}

type sentMail struct {
	To      string
	Subject string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (r *recordingMailer) Send(_ context.Context, to string, msg services.EmailMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentMail{to, msg.Subject})
	return nil
}

func (r *recordingMailer) Sent() []sentMail {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentMail(nil), r.sent...)
}

type fakeCerts struct {
	info services.CertInfo
	err  error
}

func (f *fakeCerts) FetchCertificate(context.Context, string) (services.CertInfo, error) {
	return f.info, f.err
}

type fakeDomains struct {
	domain    string
	expiresAt time.Time
	err       error
}

func (f *fakeDomains) LookupExpiry(context.Context, string) (string, time.Time, error) {
	return f.domain, f.expiresAt, f.err
}

// statusServer answers with the configured status code.
type statusServer struct {
	*httptest.Server
	status atomic.Int32
	calls  atomic.Int32

	// failFirst makes the first n requests answer 503 regardless of status.
	failFirst atomic.Int32
}

func newStatusServer(t *testing.T, status int) *statusServer {
	t.Helper()

	s := &statusServer{}
	s.status.Store(int32(status))
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := s.calls.Add(1)
		if n <= s.failFirst.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(int(s.status.Load()))
	}))
	t.Cleanup(s.Close)
	return s
}

type fixture struct {
	store   *db.MemoryStore
	clock   *fakeClock
	slack   *recordingNotifier
	mail    *recordingMailer
	certs   *fakeCerts
	domains *fakeDomains
	engine  *services.Engine
	user    models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:   db.NewMemoryStore(),
		clock:   &fakeClock{now: t0},
		slack:   &recordingNotifier{},
		mail:    &recordingMailer{},
		certs:   &fakeCerts{},
		domains: &fakeDomains{},
	}
	f.store.Now = f.clock.Now
	f.user = f.store.AddUser(models.User{ID: "user-1", Email: "owner@example.com", FirstName: "Ada"})

	prober := services.NewProber(2*time.Second, 5, time.Second)
	prober.Sleep = func(context.Context, time.Duration) error { return nil }

	f.engine = &services.Engine{
		Store:           f.store,
		Prober:          prober,
		Certificates:    f.certs,
		Domains:         f.domains,
		Dispatcher:      services.NewDispatcher(f.slack, f.mail),
		ReAlertInterval: 3 * time.Hour,
		Now:             f.clock.Now,
	}
	return f
}

func (f *fixture) addMonitor(t *testing.T, kind models.MonitorKind, url string) models.Monitor {
	t.Helper()

	m, err := f.store.CreateMonitor(context.Background(), models.Monitor{
		URL:             url,
		UserID:          f.user.ID,
		TeamID:          "team-1",
		Kind:            kind,
		Active:          true,
		NotifyThreshold: 30,
		Availability:    true,
		CreatedAt:       f.clock.Now(),
	})
	if err != nil {
		t.Fatalf("failed to create monitor: %s", err)
	}
	return m
}

func (f *fixture) monitor(t *testing.T, id string) models.Monitor {
	t.Helper()

	m, err := f.store.FindMonitorByID(context.Background(), id)
	if err != nil {
		t.Fatalf("failed to load monitor: %s", err)
	}
	return m
}

func (f *fixture) incidents(t *testing.T, monitorID string) []models.Incident {
	t.Helper()

	all, err := f.store.FindIncidentsByUser(context.Background(), f.user.ID, models.IncidentFilter{})
	if err != nil {
		t.Fatalf("failed to list incidents: %s", err)
	}

	var out []models.Incident
	for _, inc := range all {
		if inc.MonitorID == monitorID {
			out = append(out, inc)
		}
	}
	return out
}

func unresolved(incidents []models.Incident) []models.Incident {
	var out []models.Incident
	for _, inc := range incidents {
		if !inc.Resolved {
			out = append(out, inc)
		}
	}
	return out
}
