package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"uptimedock/db"
	"uptimedock/handlers"
	"uptimedock/middleware"
	"uptimedock/models"
	"uptimedock/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticCerts struct {
	info services.CertInfo
	err  error
}

func (s staticCerts) FetchCertificate(context.Context, string) (services.CertInfo, error) {
	return s.info, s.err
}

type staticDomains struct {
	err error
}

func (s staticDomains) LookupExpiry(context.Context, string) (string, time.Time, error) {
	return "", time.Time{}, s.err
}

type server struct {
	store  *db.MemoryStore
	engine *services.Engine
	router *gin.Engine
}

func newServer(t *testing.T, certs services.CertFetcher) *server {
	t.Helper()

	store := db.NewMemoryStore()
	store.AddUser(models.User{ID: "system", Email: "owner@example.com", FirstName: "Ada"})

	engine := &services.Engine{
		Store:        store,
		Prober:       services.NewProber(time.Second, 1, 0),
		Certificates: certs,
		Domains:      staticDomains{err: services.ErrExpiryNotFound},
		Dispatcher:   services.NewDispatcher(nil, nil),
	}
	t.Cleanup(engine.Wait)

	r := gin.New()
	h := &handlers.Handler{Engine: engine}
	h.Register(r, middleware.Auth{SystemUserID: "system"}.Required())

	return &server{store: store, engine: engine, router: r}
}

func (s *server) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("%s %s: invalid JSON response %q: %s", method, path, w.Body.String(), err)
	}
	return w.Code, out
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	s := newServer(t, staticCerts{})
	code, body := s.do(t, http.MethodGet, "/healthz", "")
	if code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("unexpected response: %d %v", code, body)
	}
}

func TestMonitorLifecycle(t *testing.T) {
	t.Parallel()

	expires := time.Now().Add(5 * 24 * time.Hour)
	s := newServer(t, staticCerts{info: services.CertInfo{Issuer: "Test CA", ValidTo: expires}})

	code, body := s.do(t, http.MethodPost, "/api/monitors", `{"url":"example.com","team_id":"team-1","kind":"ssl_expiry"}`)
	if code != http.StatusCreated {
		t.Fatalf("create: unexpected response %d %v", code, body)
	}
	id, _ := body["id"].(string)
	if body["url"] != "https://example.com" || id == "" {
		t.Errorf("unexpected monitor: %v", body)
	}

	code, body = s.do(t, http.MethodPost, "/api/monitors", `{"url":"https://example.com","team_id":"team-1","kind":"3"}`)
	if code != http.StatusConflict {
		t.Errorf("duplicate: unexpected response %d %v", code, body)
	}

	code, body = s.do(t, http.MethodGet, "/api/monitors/"+id, "")
	if code != http.StatusOK || body["expiry_info"] == nil {
		t.Errorf("get: unexpected response %d %v", code, body)
	}

	code, body = s.do(t, http.MethodGet, "/api/monitors", "")
	if monitors, _ := body["monitors"].([]any); code != http.StatusOK || len(monitors) != 1 {
		t.Errorf("list: unexpected response %d %v", code, body)
	}

	code, body = s.do(t, http.MethodGet, "/api/me", "")
	if code != http.StatusOK || body["monitor_count"] != float64(1) || body["email"] != "owner@example.com" {
		t.Errorf("me: unexpected response %d %v", code, body)
	}

	code, body = s.do(t, http.MethodGet, "/api/monitors/"+id+"/response-times?limit=0", "")
	if code != http.StatusBadRequest {
		t.Errorf("response times: unexpected response %d %v", code, body)
	}
	code, body = s.do(t, http.MethodGet, "/api/monitors/"+id+"/response-times?limit=5", "")
	if samples, ok := body["response_times"].([]any); code != http.StatusOK || !ok || len(samples) != 0 {
		t.Errorf("response times: unexpected response %d %v", code, body)
	}

	code, _ = s.do(t, http.MethodDelete, "/api/monitors/"+id, "")
	if code != http.StatusOK {
		t.Errorf("delete: unexpected status %d", code)
	}
	code, _ = s.do(t, http.MethodGet, "/api/monitors/"+id, "")
	if code != http.StatusNotFound {
		t.Errorf("get after delete: unexpected status %d", code)
	}
}

func TestCreateMonitor_rejected(t *testing.T) {
	t.Parallel()

	s := newServer(t, staticCerts{err: errors.New("handshake failure")})

	tests := []struct {
		body string
		code int
	}{
		{`{"url":`, http.StatusBadRequest},
		{`{"url":"example.com","team_id":"t","kind":"ping"}`, http.StatusBadRequest},
		{`{"url":"example.com","kind":"url_availability"}`, http.StatusBadRequest},
		{`{"url":"example.com","team_id":"t","kind":"ssl_expiry"}`, http.StatusBadRequest},
		{`{"url":"example.com","team_id":"t","kind":"domain_expiry"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		code, body := s.do(t, http.MethodPost, "/api/monitors", tt.body)
		if code != tt.code {
			t.Errorf("%s: expected %d but got %d %v", tt.body, tt.code, code, body)
		}
		if _, ok := body["error"].(string); !ok {
			t.Errorf("%s: error message missing: %v", tt.body, body)
		}
	}
}

func TestIncidentWorkflow(t *testing.T) {
	t.Parallel()

	s := newServer(t, staticCerts{})
	ctx := context.Background()

	m, err := s.store.CreateMonitor(ctx, models.Monitor{URL: "https://example.com", UserID: "system", Kind: models.KindSSLExpiry})
	if err != nil {
		t.Fatalf("failed to create monitor: %s", err)
	}
	inc, _, err := s.store.FindOrCreateUnresolved(ctx, models.Incident{
		MonitorID: m.ID,
		UserID:    "system",
		Cause:     "SSL certificate expires in 3 days",
		Family:    models.FamilySSLExpiry,
	})
	if err != nil {
		t.Fatalf("failed to open incident: %s", err)
	}

	code, body := s.do(t, http.MethodPost, "/api/incidents/"+inc.ID+"/resolve", "")
	if code != http.StatusConflict || !strings.Contains(body["error"].(string), "acknowledged") {
		t.Errorf("resolve before acknowledge: unexpected response %d %v", code, body)
	}

	code, body = s.do(t, http.MethodPost, "/api/incidents/"+inc.ID+"/acknowledge", "")
	if code != http.StatusOK || body["acknowledged"] != true {
		t.Errorf("acknowledge: unexpected response %d %v", code, body)
	}

	code, body = s.do(t, http.MethodPost, "/api/incidents/"+inc.ID+"/resolve", "")
	if code != http.StatusOK || body["resolved"] != true {
		t.Errorf("resolve: unexpected response %d %v", code, body)
	}

	code, _ = s.do(t, http.MethodPost, "/api/incidents/missing/acknowledge", "")
	if code != http.StatusNotFound {
		t.Errorf("acknowledge missing: unexpected status %d", code)
	}

	code, body = s.do(t, http.MethodGet, "/api/incidents?start_date=2000-01-01", "")
	incidents, _ := body["incidents"].([]any)
	if code != http.StatusOK || len(incidents) != 1 {
		t.Fatalf("list: unexpected response %d %v", code, body)
	}
	if first, _ := incidents[0].(map[string]any); first["monitor_url"] != "https://example.com" {
		t.Errorf("list: incident should carry its monitor URL: %v", first)
	}

	code, _ = s.do(t, http.MethodGet, "/api/incidents?end_date=yesterday", "")
	if code != http.StatusBadRequest {
		t.Errorf("invalid date: unexpected status %d", code)
	}

	code, _ = s.do(t, http.MethodGet, "/api/analytics?start_date=0001-01-01", "")
	if code != http.StatusBadRequest {
		t.Errorf("unbounded analytics range: unexpected status %d", code)
	}

	code, body = s.do(t, http.MethodGet, "/api/analytics?url=example", "")
	if code != http.StatusOK || body["total_incidents"] != float64(1) || body["resolved_incidents"] != float64(1) {
		t.Errorf("analytics: unexpected response %d %v", code, body)
	}
}
