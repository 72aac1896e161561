package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"uptimedock/models"
)

// MemoryStore keeps everything in process memory. It honours the same
// contracts as PostgresStore, including cascading deletes and the single
// unresolved incident per cause rule.
type MemoryStore struct {
	mu sync.Mutex

	// Now stamps UpdatedAt on incident updates.
	Now func() time.Time

	users         map[string]models.User
	webhooks      map[string]string
	monitors      map[string]models.Monitor
	incidents     map[string]models.Incident
	responseTimes []models.ResponseTime
	tlsChecks     map[string]models.TLSCheck
	domainChecks  map[string]models.DomainCheck
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Now:          time.Now,
		users:        make(map[string]models.User),
		webhooks:     make(map[string]string),
		monitors:     make(map[string]models.Monitor),
		incidents:    make(map[string]models.Incident),
		tlsChecks:    make(map[string]models.TLSCheck),
		domainChecks: make(map[string]models.DomainCheck),
	}
}

func (s *MemoryStore) AddUser(u models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	s.users[u.ID] = u
	return u
}

func (s *MemoryStore) AddSlackIntegration(i models.SlackIntegration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.webhooks[i.TeamID] = i.WebhookURL
}

func (s *MemoryStore) FindUserByID(_ context.Context, id string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return u, nil
}

func (s *MemoryStore) FindSlackWebhook(_ context.Context, teamID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.webhooks[teamID]
	if !ok {
		return "", ErrNotFound
	}
	return u, nil
}

func (s *MemoryStore) FindMonitorByID(_ context.Context, id string) (models.Monitor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.monitors[id]
	if !ok {
		return models.Monitor{}, ErrNotFound
	}
	return m, nil
}

func (s *MemoryStore) sortedMonitors(match func(models.Monitor) bool) []models.Monitor {
	var out []models.Monitor
	for _, m := range s.monitors {
		if match(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *MemoryStore) FindActiveMonitorsByKind(_ context.Context, kind models.MonitorKind) ([]models.Monitor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sortedMonitors(func(m models.Monitor) bool {
		return m.Active && m.Kind == kind
	}), nil
}

func (s *MemoryStore) FindMonitorsByUser(_ context.Context, userID string) ([]models.Monitor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.sortedMonitors(func(m models.Monitor) bool { return m.UserID == userID })
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *MemoryStore) CreateMonitor(_ context.Context, m models.Monitor) (models.Monitor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, other := range s.monitors {
		if other.URL == m.URL && other.UserID == m.UserID && other.Kind == m.Kind {
			return models.Monitor{}, ErrDuplicate
		}
	}

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.Now()
	}
	s.monitors[m.ID] = m
	return m, nil
}

func (s *MemoryStore) UpdateMonitorStatus(_ context.Context, id string, u models.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.monitors[id]
	if !ok {
		return ErrNotFound
	}

	if u.Availability != nil {
		m.Availability = *u.Availability
	}
	if u.LastError != nil {
		if *u.LastError == "" {
			m.LastError = nil
		} else {
			v := *u.LastError
			m.LastError = &v
		}
	}
	if u.LastIncidentAt != nil {
		t := *u.LastIncidentAt
		m.LastIncidentAt = &t
	}
	s.monitors[id] = m
	return nil
}

func (s *MemoryStore) DeleteMonitor(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.monitors[id]; !ok {
		return ErrNotFound
	}
	delete(s.monitors, id)
	delete(s.tlsChecks, id)
	delete(s.domainChecks, id)

	for iid, inc := range s.incidents {
		if inc.MonitorID == id {
			delete(s.incidents, iid)
		}
	}

	kept := s.responseTimes[:0]
	for _, rt := range s.responseTimes {
		if rt.MonitorID != id {
			kept = append(kept, rt)
		}
	}
	s.responseTimes = kept
	return nil
}

func (s *MemoryStore) FindOrCreateUnresolved(_ context.Context, inc models.Incident) (models.Incident, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.monitors[inc.MonitorID]; !ok {
		return models.Incident{}, false, ErrNotFound
	}

	for _, existing := range s.incidents {
		if existing.MonitorID == inc.MonitorID && existing.Family == inc.Family &&
			existing.CauseKey == inc.CauseKey && !existing.Resolved {
			return existing, false, nil
		}
	}

	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	if inc.CreatedAt.IsZero() {
		inc.CreatedAt = s.Now()
	}
	if inc.LastAlertSent.IsZero() {
		inc.LastAlertSent = inc.CreatedAt
	}
	inc.UpdatedAt = inc.CreatedAt
	inc.Acknowledged = false
	inc.Resolved = false
	inc.ResolvedAt = nil

	s.incidents[inc.ID] = inc
	return inc, true, nil
}

func (s *MemoryStore) sortedIncidents(match func(models.Incident) bool) []models.Incident {
	var out []models.Incident
	for _, inc := range s.incidents {
		if match(inc) {
			out = append(out, inc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *MemoryStore) FindUnresolvedByFamily(_ context.Context, monitorID string, family models.CauseFamily) ([]models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sortedIncidents(func(i models.Incident) bool {
		return i.MonitorID == monitorID && i.Family == family && !i.Resolved
	}), nil
}

func (s *MemoryStore) FindLatestByFamily(_ context.Context, monitorID string, family models.CauseFamily) (models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.sortedIncidents(func(i models.Incident) bool {
		return i.MonitorID == monitorID && i.Family == family
	})
	if len(all) == 0 {
		return models.Incident{}, ErrNotFound
	}

	for i := len(all) - 1; i >= 0; i-- {
		if !all[i].Resolved {
			return all[i], nil
		}
	}
	return all[len(all)-1], nil
}

func (s *MemoryStore) FindIncidentByID(_ context.Context, id string) (models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inc, ok := s.incidents[id]
	if !ok {
		return models.Incident{}, ErrNotFound
	}
	return inc, nil
}

func (s *MemoryStore) FindIncidentsByUser(_ context.Context, userID string, filter models.IncidentFilter) ([]models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sortedIncidents(func(i models.Incident) bool {
		return i.UserID == userID && filter.Match(i)
	}), nil
}

func (s *MemoryStore) UpdateIncident(_ context.Context, id string, u models.IncidentUpdate) (models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inc, ok := s.incidents[id]
	if !ok {
		return models.Incident{}, ErrNotFound
	}

	if u.Resolved != nil && !*u.Resolved && inc.Resolved {
		for oid, other := range s.incidents {
			if oid != id && other.MonitorID == inc.MonitorID && other.Family == inc.Family &&
				other.CauseKey == inc.CauseKey && !other.Resolved {
				return models.Incident{}, ErrConflict
			}
		}
	}

	if u.Acknowledged != nil {
		inc.Acknowledged = *u.Acknowledged
	}
	if u.Resolved != nil {
		inc.Resolved = *u.Resolved
		if !inc.Resolved {
			inc.ResolvedAt = nil
		}
	}
	if u.ResolvedAt != nil {
		t := *u.ResolvedAt
		inc.ResolvedAt = &t
	}
	if u.LastAlertSent != nil {
		inc.LastAlertSent = *u.LastAlertSent
	}
	inc.UpdatedAt = s.Now()

	s.incidents[id] = inc
	return inc, nil
}

// PutIncident stores an incident as is. It exists to load fixtures and legacy
// rows that bypassed the state machine.
func (s *MemoryStore) PutIncident(inc models.Incident) models.Incident {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	s.incidents[inc.ID] = inc
	return inc
}

func (s *MemoryStore) UpsertTLSCheck(_ context.Context, c models.TLSCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.monitors[c.MonitorID]; !ok {
		return fmt.Errorf("tls check for monitor %s: %w", c.MonitorID, ErrNotFound)
	}
	if c.CheckedAt.IsZero() {
		c.CheckedAt = s.Now()
	}
	s.tlsChecks[c.MonitorID] = c
	return nil
}

func (s *MemoryStore) UpsertDomainCheck(_ context.Context, c models.DomainCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.monitors[c.MonitorID]; !ok {
		return fmt.Errorf("domain check for monitor %s: %w", c.MonitorID, ErrNotFound)
	}
	if c.CheckedAt.IsZero() {
		c.CheckedAt = s.Now()
	}
	s.domainChecks[c.MonitorID] = c
	return nil
}

// PutTLSCheck and PutDomainCheck store records without checking the monitor,
// the way rows orphaned by a concurrent delete look during a sweep.
func (s *MemoryStore) PutTLSCheck(c models.TLSCheck) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tlsChecks[c.MonitorID] = c
}

func (s *MemoryStore) PutDomainCheck(c models.DomainCheck) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.domainChecks[c.MonitorID] = c
}

func (s *MemoryStore) ListTLSChecks(_ context.Context) ([]models.TLSCheck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.TLSCheck, 0, len(s.tlsChecks))
	for _, c := range s.tlsChecks {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MonitorID < out[j].MonitorID })
	return out, nil
}

func (s *MemoryStore) ListDomainChecks(_ context.Context) ([]models.DomainCheck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.DomainCheck, 0, len(s.domainChecks))
	for _, c := range s.domainChecks {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MonitorID < out[j].MonitorID })
	return out, nil
}

func (s *MemoryStore) FindTLSCheck(_ context.Context, monitorID string) (models.TLSCheck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.tlsChecks[monitorID]
	if !ok {
		return models.TLSCheck{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) FindDomainCheck(_ context.Context, monitorID string) (models.DomainCheck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.domainChecks[monitorID]
	if !ok {
		return models.DomainCheck{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) AddResponseTime(_ context.Context, rt models.ResponseTime) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.monitors[rt.MonitorID]; !ok {
		return fmt.Errorf("response time for monitor %s: %w", rt.MonitorID, ErrNotFound)
	}
	if rt.CreatedAt.IsZero() {
		rt.CreatedAt = s.Now()
	}
	s.responseTimes = append(s.responseTimes, rt)
	return nil
}

func (s *MemoryStore) ResponseTimes(_ context.Context, monitorID string, start, end *time.Time, limit int) ([]models.ResponseTime, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.ResponseTime
	for i := len(s.responseTimes) - 1; i >= 0; i-- {
		rt := s.responseTimes[i]
		if rt.MonitorID != monitorID {
			continue
		}
		if start != nil && rt.CreatedAt.Before(*start) {
			continue
		}
		if end != nil && rt.CreatedAt.After(*end) {
			continue
		}
		out = append(out, rt)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
