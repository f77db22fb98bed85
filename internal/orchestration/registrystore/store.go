// Package registrystore persists the local record of DNS-SD registrations
// this node has made, so they can be replayed against the service
// registry and re-asserted via dynamic update after a restart.
package registrystore

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
)

// Registration is one locally-tracked DNS-SD registration.
type Registration struct {
	ID          uuid.UUID
	ServiceType string
	Instance    string
	Target      string
	Port        int
	CreatedAt   time.Time
}

// Store wraps a *sql.DB opened against the jackc/pgx stdlib driver.
type Store struct {
	db *sql.DB
}

// New wraps an already-opened database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert records a new registration.
func (s *Store) Insert(ctx context.Context, reg Registration) error {
	const query = `INSERT INTO dnssd_registrations (id, service_type, instance, target, port, created_at)
	               VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.db.ExecContext(ctx, query, reg.ID, reg.ServiceType, reg.Instance, reg.Target, reg.Port, reg.CreatedAt)
	return err
}

// Get fetches a registration by ID, returning (nil, nil) if it does not
// exist.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Registration, error) {
	const query = `SELECT id, service_type, instance, target, port, created_at
	               FROM dnssd_registrations WHERE id = $1`
	var reg Registration
	err := s.db.QueryRowContext(ctx, query, id).
		Scan(&reg.ID, &reg.ServiceType, &reg.Instance, &reg.Target, &reg.Port, &reg.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// ListAll returns every tracked registration, used to re-assert them
// against the zone after a restart.
func (s *Store) ListAll(ctx context.Context) ([]Registration, error) {
	const query = `SELECT id, service_type, instance, target, port, created_at FROM dnssd_registrations`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() {
		if errClose := rows.Close(); errClose != nil {
			log.Printf("registrystore: failed to close rows: %v", errClose)
		}
	}()

	var out []Registration
	for rows.Next() {
		var reg Registration
		if err := rows.Scan(&reg.ID, &reg.ServiceType, &reg.Instance, &reg.Target, &reg.Port, &reg.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, reg)
	}
	return out, rows.Err()
}

// Delete removes a registration by ID.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	const query = `DELETE FROM dnssd_registrations WHERE id = $1`
	_, err := s.db.ExecContext(ctx, query, id)
	return err
}
