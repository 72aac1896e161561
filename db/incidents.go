package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"uptimedock/models"
)

const incidentColumns = `id, monitor_id, user_id, cause, cause_family, cause_key, details,
	acknowledged, resolved, resolved_at, last_alert_sent, created_at, updated_at`

func scanIncident(row scanner) (models.Incident, error) {
	var i models.Incident
	var resolvedAt sql.NullTime

	err := row.Scan(&i.ID, &i.MonitorID, &i.UserID, &i.Cause, &i.Family, &i.CauseKey, &i.Details,
		&i.Acknowledged, &i.Resolved, &resolvedAt, &i.LastAlertSent, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return models.Incident{}, err
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		i.ResolvedAt = &t
	}
	return i, nil
}

func (s *PostgresStore) queryIncidents(ctx context.Context, query string, args ...any) ([]models.Incident, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var incidents []models.Incident
	for rows.Next() {
		i, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, i)
	}
	return incidents, rows.Err()
}

// FindOrCreateUnresolved inserts the incident unless an unresolved one with
// the same monitor, family and key exists. The partial unique index makes
// this a single atomic statement; created reports which case happened.
func (s *PostgresStore) FindOrCreateUnresolved(ctx context.Context, inc models.Incident) (models.Incident, bool, error) {
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	if inc.CreatedAt.IsZero() {
		inc.CreatedAt = time.Now()
	}
	if inc.LastAlertSent.IsZero() {
		inc.LastAlertSent = inc.CreatedAt
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO incidents (id, monitor_id, user_id, cause, cause_family, cause_key, details,
			acknowledged, resolved, last_alert_sent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, FALSE, $8, $9, $9)
		ON CONFLICT (monitor_id, cause_family, cause_key) WHERE NOT resolved DO NOTHING
		RETURNING `+incidentColumns,
		inc.ID, inc.MonitorID, inc.UserID, inc.Cause, inc.Family, inc.CauseKey, inc.Details,
		inc.LastAlertSent, inc.CreatedAt)

	created, err := scanIncident(row)
	if err == nil {
		return created, true, nil
	}
	if isForeignKeyViolation(err) {
		return models.Incident{}, false, ErrNotFound
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Incident{}, false, err
	}

	row = s.db.QueryRowContext(ctx, `
		SELECT `+incidentColumns+`
		FROM incidents
		WHERE monitor_id = $1 AND cause_family = $2 AND cause_key = $3 AND NOT resolved
	`, inc.MonitorID, inc.Family, inc.CauseKey)

	existing, err := scanIncident(row)
	if err != nil {
		return models.Incident{}, false, notFound(err)
	}
	return existing, false, nil
}

func (s *PostgresStore) FindUnresolvedByFamily(ctx context.Context, monitorID string, family models.CauseFamily) ([]models.Incident, error) {
	return s.queryIncidents(ctx, `
		SELECT `+incidentColumns+`
		FROM incidents
		WHERE monitor_id = $1 AND cause_family = $2 AND NOT resolved
		ORDER BY created_at
	`, monitorID, family)
}

func (s *PostgresStore) FindLatestByFamily(ctx context.Context, monitorID string, family models.CauseFamily) (models.Incident, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+incidentColumns+`
		FROM incidents
		WHERE monitor_id = $1 AND cause_family = $2
		ORDER BY resolved, created_at DESC
		LIMIT 1
	`, monitorID, family)
	i, err := scanIncident(row)
	return i, notFound(err)
}

func (s *PostgresStore) FindIncidentByID(ctx context.Context, id string) (models.Incident, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = $1`, id)
	i, err := scanIncident(row)
	return i, notFound(err)
}

func (s *PostgresStore) FindIncidentsByUser(ctx context.Context, userID string, filter models.IncidentFilter) ([]models.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE user_id = $1`
	args := []any{userID}

	if filter.Start != nil {
		args = append(args, *filter.Start)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if filter.End != nil {
		args = append(args, *filter.End)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	query += " ORDER BY created_at"

	return s.queryIncidents(ctx, query, args...)
}

func (s *PostgresStore) UpdateIncident(ctx context.Context, id string, u models.IncidentUpdate) (models.Incident, error) {
	sets := []string{"updated_at = NOW()"}
	var args []any

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if u.Acknowledged != nil {
		add("acknowledged", *u.Acknowledged)
	}
	if u.Resolved != nil {
		add("resolved", *u.Resolved)
		if !*u.Resolved {
			sets = append(sets, "resolved_at = NULL")
		}
	}
	if u.ResolvedAt != nil {
		add("resolved_at", *u.ResolvedAt)
	}
	if u.LastAlertSent != nil {
		add("last_alert_sent", *u.LastAlertSent)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE incidents SET %s WHERE id = $%d RETURNING %s",
		strings.Join(sets, ", "), len(args), incidentColumns)

	i, err := scanIncident(s.db.QueryRowContext(ctx, query, args...))
	if isUniqueViolation(err) {
		return models.Incident{}, ErrConflict
	}
	return i, notFound(err)
}
