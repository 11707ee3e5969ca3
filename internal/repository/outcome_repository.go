package repository

import (
	"database/sql"
	"time"

	"trader/internal/models"
)

// OutcomeRepository - работа с таблицей trade_outcomes (итоги закрытых позиций)
type OutcomeRepository struct {
	db *sql.DB
}

// NewOutcomeRepository создает новый экземпляр репозитория
func NewOutcomeRepository(db *sql.DB) *OutcomeRepository {
	return &OutcomeRepository{db: db}
}

// Create записывает итог закрытой позиции
func (r *OutcomeRepository) Create(outcome *models.TradeOutcome) error {
	query := `
		INSERT INTO trade_outcomes (ts, symbol, side, entry_price, exit_price, pnl_pct, hold_hours, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	if outcome.Timestamp.IsZero() {
		outcome.Timestamp = time.Now()
	}

	return r.db.QueryRow(
		query,
		outcome.Timestamp,
		outcome.Symbol,
		outcome.Side,
		outcome.EntryPrice,
		outcome.ExitPrice,
		outcome.PnlPct,
		outcome.HoldHours,
		outcome.Reason,
	).Scan(&outcome.ID)
}

// GetRecent возвращает последние limit итогов (новые первыми)
func (r *OutcomeRepository) GetRecent(limit int) ([]*models.TradeOutcome, error) {
	query := `
		SELECT id, ts, symbol, side, entry_price, exit_price, pnl_pct, hold_hours, reason
		FROM trade_outcomes
		ORDER BY ts DESC
		LIMIT $1`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	outcomes := make([]*models.TradeOutcome, 0, limit)
	for rows.Next() {
		outcome := &models.TradeOutcome{}
		if err := rows.Scan(
			&outcome.ID,
			&outcome.Timestamp,
			&outcome.Symbol,
			&outcome.Side,
			&outcome.EntryPrice,
			&outcome.ExitPrice,
			&outcome.PnlPct,
			&outcome.HoldHours,
			&outcome.Reason,
		); err != nil {
			return nil, err
		}
		outcomes = append(outcomes, outcome)
	}

	return outcomes, rows.Err()
}
