package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"uptimedock/models"
)

const monitorColumns = `id, url, user_id, COALESCE(team_id, ''), kind, active, notify_threshold,
	availability, last_error, last_incident_at, created_at`

func scanMonitor(row scanner) (models.Monitor, error) {
	var m models.Monitor
	var lastError sql.NullString
	var lastIncidentAt sql.NullTime

	err := row.Scan(&m.ID, &m.URL, &m.UserID, &m.TeamID, &m.Kind, &m.Active, &m.NotifyThreshold,
		&m.Availability, &lastError, &lastIncidentAt, &m.CreatedAt)
	if err != nil {
		return models.Monitor{}, err
	}

	if lastError.Valid {
		m.LastError = &lastError.String
	}
	if lastIncidentAt.Valid {
		t := lastIncidentAt.Time
		m.LastIncidentAt = &t
	}
	return m, nil
}

func (s *PostgresStore) queryMonitors(ctx context.Context, query string, args ...any) ([]models.Monitor, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var monitors []models.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, err
		}
		monitors = append(monitors, m)
	}
	return monitors, rows.Err()
}

func (s *PostgresStore) FindMonitorByID(ctx context.Context, id string) (models.Monitor, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+monitorColumns+` FROM monitors WHERE id = $1`, id)
	m, err := scanMonitor(row)
	return m, notFound(err)
}

func (s *PostgresStore) FindActiveMonitorsByKind(ctx context.Context, kind models.MonitorKind) ([]models.Monitor, error) {
	return s.queryMonitors(ctx, `
		SELECT `+monitorColumns+`
		FROM monitors
		WHERE active AND kind = $1
		ORDER BY created_at
	`, kind)
}

func (s *PostgresStore) FindMonitorsByUser(ctx context.Context, userID string) ([]models.Monitor, error) {
	return s.queryMonitors(ctx, `
		SELECT `+monitorColumns+`
		FROM monitors
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
}

func (s *PostgresStore) CreateMonitor(ctx context.Context, m models.Monitor) (models.Monitor, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO monitors (id, url, user_id, team_id, kind, active, notify_threshold,
			availability, last_error, last_incident_at, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11)
	`, m.ID, m.URL, m.UserID, m.TeamID, m.Kind, m.Active, m.NotifyThreshold,
		m.Availability, nullString(m.LastError), m.LastIncidentAt, m.CreatedAt)
	if isUniqueViolation(err) {
		return models.Monitor{}, ErrDuplicate
	}
	if err != nil {
		return models.Monitor{}, err
	}
	return m, nil
}

func (s *PostgresStore) UpdateMonitorStatus(ctx context.Context, id string, u models.StatusUpdate) error {
	var sets []string
	var args []any

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if u.Availability != nil {
		add("availability", *u.Availability)
	}
	if u.LastError != nil {
		add("last_error", nullString(u.LastError))
	}
	if u.LastIncidentAt != nil {
		add("last_incident_at", *u.LastIncidentAt)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE monitors SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMonitor removes the monitor; incidents, response times and check
// records go with it through ON DELETE CASCADE.
func (s *PostgresStore) DeleteMonitor(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM monitors WHERE id = $1", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindUserByID(ctx context.Context, id string) (models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, first_name, created_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.FirstName, &u.CreatedAt)
	return u, notFound(err)
}

func (s *PostgresStore) FindSlackWebhook(ctx context.Context, teamID string) (string, error) {
	var webhookURL string
	err := s.db.QueryRowContext(ctx,
		`SELECT webhook_url FROM slack_integrations WHERE team_id = $1`, teamID,
	).Scan(&webhookURL)
	return webhookURL, notFound(err)
}
