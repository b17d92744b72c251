// Package store persists alert records in a local sqlite database.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Alert is one persisted alert: the treatment recommendation plus the
// notification message shown to subscribers. Written once, never mutated.
type Alert struct {
	ID         string    `json:"id"`
	Disease    string    `json:"disease"`
	PlantID    int64     `json:"plantId"`
	Fertilizer string    `json:"fertilizer"`
	Pesticide  string    `json:"pesticide"`
	Solution   string    `json:"solution"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS recommendations (
			recommendation_id TEXT PRIMARY KEY,
			disease           TEXT NOT NULL,
			plant_id          INTEGER NOT NULL,
			fertilizer        TEXT,
			pesticide         TEXT,
			solution          TEXT,
			created_at        TIMESTAMP NOT NULL
		);
		CREATE TABLE IF NOT EXISTS notifications (
			notification_id   TEXT PRIMARY KEY,
			recommendation_id TEXT NOT NULL,
			message           TEXT NOT NULL,
			is_read           BOOLEAN NOT NULL DEFAULT 0,
			created_at        TIMESTAMP NOT NULL,
			FOREIGN KEY(recommendation_id) REFERENCES recommendations(recommendation_id)
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db}, nil
}

// SaveAlert writes the recommendation row and its notification row in one
// transaction; a failure in either leaves nothing behind.
func (s *Store) SaveAlert(a Alert) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin alert tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO recommendations (recommendation_id, disease, plant_id, fertilizer, pesticide, solution, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Disease, a.PlantID, a.Fertilizer, a.Pesticide, a.Solution, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert recommendation: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO notifications (notification_id, recommendation_id, message, created_at)
		 VALUES (?, ?, ?, ?)`,
		uuid.New().String(), a.ID, a.Message, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}

	return tx.Commit()
}

// RecentAlerts returns the newest alerts, most recent first.
func (s *Store) RecentAlerts(limit int) ([]Alert, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT r.recommendation_id, r.disease, r.plant_id, r.fertilizer, r.pesticide, r.solution, n.message, r.created_at
		 FROM recommendations r
		 JOIN notifications n ON n.recommendation_id = r.recommendation_id
		 ORDER BY r.created_at DESC
		 LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.ID, &a.Disease, &a.PlantID, &a.Fertilizer, &a.Pesticide, &a.Solution, &a.Message, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
