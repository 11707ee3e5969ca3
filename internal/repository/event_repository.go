// Package repository - Data Access Layer поверх PostgreSQL.
package repository

import (
	"database/sql"
	"time"

	jsoniter "github.com/json-iterator/go"

	"trader/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// EventRepository - работа с append-only таблицей events
type EventRepository struct {
	db *sql.DB
}

// NewEventRepository создает новый экземпляр репозитория
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Create добавляет запись в журнал событий
func (r *EventRepository) Create(event *models.Event) error {
	query := `
		INSERT INTO events (ts, type, severity, symbol, message, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Severity == "" {
		event.Severity = models.SeverityInfo
	}

	var payload []byte
	if event.Payload != nil {
		data, err := json.Marshal(event.Payload)
		if err != nil {
			return err
		}
		payload = data
	}

	return r.db.QueryRow(
		query,
		event.Timestamp,
		event.Type,
		event.Severity,
		event.Symbol,
		event.Message,
		payload,
	).Scan(&event.ID)
}

// GetRecent возвращает последние limit событий (новые первыми)
func (r *EventRepository) GetRecent(limit int) ([]*models.Event, error) {
	query := `
		SELECT id, ts, type, severity, symbol, message, payload
		FROM events
		ORDER BY ts DESC
		LIMIT $1`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]*models.Event, 0, limit)
	for rows.Next() {
		event := &models.Event{}
		var payload []byte

		if err := rows.Scan(
			&event.ID,
			&event.Timestamp,
			&event.Type,
			&event.Severity,
			&event.Symbol,
			&event.Message,
			&payload,
		); err != nil {
			return nil, err
		}

		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &event.Payload); err != nil {
				return nil, err
			}
		}

		events = append(events, event)
	}

	return events, rows.Err()
}

// DeleteOlderThan удаляет события старше заданного возраста, возвращает число удаленных
func (r *EventRepository) DeleteOlderThan(age time.Duration) (int64, error) {
	query := `DELETE FROM events WHERE ts < $1`

	result, err := r.db.Exec(query, time.Now().Add(-age))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
