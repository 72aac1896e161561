package db

import (
	"context"
	"fmt"
	"time"

	"uptimedock/models"
)

func (s *PostgresStore) UpsertTLSCheck(ctx context.Context, c models.TLSCheck) error {
	if c.CheckedAt.IsZero() {
		c.CheckedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tls_checks (monitor_id, issuer, valid_from, valid_to, protocol, notify_threshold, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (monitor_id) DO UPDATE SET
			issuer = EXCLUDED.issuer,
			valid_from = EXCLUDED.valid_from,
			valid_to = EXCLUDED.valid_to,
			protocol = EXCLUDED.protocol,
			notify_threshold = EXCLUDED.notify_threshold,
			checked_at = EXCLUDED.checked_at
	`, c.MonitorID, c.Issuer, c.ValidFrom, c.ValidTo, c.Protocol, c.NotifyThreshold, c.CheckedAt)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("tls check for monitor %s: %w", c.MonitorID, ErrNotFound)
	}
	return err
}

func (s *PostgresStore) UpsertDomainCheck(ctx context.Context, c models.DomainCheck) error {
	if c.CheckedAt.IsZero() {
		c.CheckedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO domain_checks (monitor_id, domain, expires_at, notify_threshold, checked_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (monitor_id) DO UPDATE SET
			domain = EXCLUDED.domain,
			expires_at = EXCLUDED.expires_at,
			notify_threshold = EXCLUDED.notify_threshold,
			checked_at = EXCLUDED.checked_at
	`, c.MonitorID, c.Domain, c.ExpiresAt, c.NotifyThreshold, c.CheckedAt)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("domain check for monitor %s: %w", c.MonitorID, ErrNotFound)
	}
	return err
}

func (s *PostgresStore) ListTLSChecks(ctx context.Context) ([]models.TLSCheck, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT monitor_id, issuer, valid_from, valid_to, protocol, notify_threshold, checked_at
		FROM tls_checks
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var checks []models.TLSCheck
	for rows.Next() {
		var c models.TLSCheck
		if err := rows.Scan(&c.MonitorID, &c.Issuer, &c.ValidFrom, &c.ValidTo, &c.Protocol, &c.NotifyThreshold, &c.CheckedAt); err != nil {
			return nil, err
		}
		checks = append(checks, c)
	}
	return checks, rows.Err()
}

func (s *PostgresStore) ListDomainChecks(ctx context.Context) ([]models.DomainCheck, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT monitor_id, domain, expires_at, notify_threshold, checked_at
		FROM domain_checks
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var checks []models.DomainCheck
	for rows.Next() {
		var c models.DomainCheck
		if err := rows.Scan(&c.MonitorID, &c.Domain, &c.ExpiresAt, &c.NotifyThreshold, &c.CheckedAt); err != nil {
			return nil, err
		}
		checks = append(checks, c)
	}
	return checks, rows.Err()
}

func (s *PostgresStore) FindTLSCheck(ctx context.Context, monitorID string) (models.TLSCheck, error) {
	var c models.TLSCheck
	err := s.db.QueryRowContext(ctx, `
		SELECT monitor_id, issuer, valid_from, valid_to, protocol, notify_threshold, checked_at
		FROM tls_checks WHERE monitor_id = $1
	`, monitorID).Scan(&c.MonitorID, &c.Issuer, &c.ValidFrom, &c.ValidTo, &c.Protocol, &c.NotifyThreshold, &c.CheckedAt)
	return c, notFound(err)
}

func (s *PostgresStore) FindDomainCheck(ctx context.Context, monitorID string) (models.DomainCheck, error) {
	var c models.DomainCheck
	err := s.db.QueryRowContext(ctx, `
		SELECT monitor_id, domain, expires_at, notify_threshold, checked_at
		FROM domain_checks WHERE monitor_id = $1
	`, monitorID).Scan(&c.MonitorID, &c.Domain, &c.ExpiresAt, &c.NotifyThreshold, &c.CheckedAt)
	return c, notFound(err)
}

func (s *PostgresStore) AddResponseTime(ctx context.Context, rt models.ResponseTime) error {
	if rt.CreatedAt.IsZero() {
		rt.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO response_times (monitor_id, latency_ms, created_at) VALUES ($1, $2, $3)`,
		rt.MonitorID, rt.LatencyMs, rt.CreatedAt)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("response time for monitor %s: %w", rt.MonitorID, ErrNotFound)
	}
	return err
}

// ResponseTimes returns samples newest first. Zero bounds are open.
func (s *PostgresStore) ResponseTimes(ctx context.Context, monitorID string, start, end *time.Time, limit int) ([]models.ResponseTime, error) {
	query := `SELECT monitor_id, latency_ms, created_at FROM response_times WHERE monitor_id = $1`
	args := []any{monitorID}

	if start != nil {
		args = append(args, *start)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if end != nil {
		args = append(args, *end)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []models.ResponseTime
	for rows.Next() {
		var rt models.ResponseTime
		if err := rows.Scan(&rt.MonitorID, &rt.LatencyMs, &rt.CreatedAt); err != nil {
			return nil, err
		}
		samples = append(samples, rt)
	}
	return samples, rows.Err()
}
