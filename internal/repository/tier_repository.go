package repository

import (
	"database/sql"
	"errors"
	"time"

	"trader/internal/models"
)

// ErrOverrideNotFound - переопределение для группы символов не найдено
var ErrOverrideNotFound = errors.New("tier override not found")

// TierRepository - работа с таблицей tier_overrides
// (редактируемые извне переопределения базового тейк-профита по группам символов)
type TierRepository struct {
	db *sql.DB
}

// NewTierRepository создает новый экземпляр репозитория
func NewTierRepository(db *sql.DB) *TierRepository {
	return &TierRepository{db: db}
}

// GetAll возвращает все переопределения
func (r *TierRepository) GetAll() ([]*models.TierOverride, error) {
	query := `
		SELECT id, symbol_group, base_tp_pct, updated_at
		FROM tier_overrides
		ORDER BY symbol_group`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	overrides := make([]*models.TierOverride, 0)
	for rows.Next() {
		override := &models.TierOverride{}
		if err := rows.Scan(
			&override.ID,
			&override.SymbolGroup,
			&override.BaseTPPct,
			&override.UpdatedAt,
		); err != nil {
			return nil, err
		}
		overrides = append(overrides, override)
	}

	return overrides, rows.Err()
}

// GetBySymbolGroup возвращает переопределение для группы символов
func (r *TierRepository) GetBySymbolGroup(group string) (*models.TierOverride, error) {
	query := `
		SELECT id, symbol_group, base_tp_pct, updated_at
		FROM tier_overrides
		WHERE symbol_group = $1`

	override := &models.TierOverride{}
	err := r.db.QueryRow(query, group).Scan(
		&override.ID,
		&override.SymbolGroup,
		&override.BaseTPPct,
		&override.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOverrideNotFound
		}
		return nil, err
	}

	return override, nil
}

// Upsert создает или обновляет переопределение для группы символов
func (r *TierRepository) Upsert(override *models.TierOverride) error {
	query := `
		INSERT INTO tier_overrides (symbol_group, base_tp_pct, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (symbol_group)
		DO UPDATE SET base_tp_pct = EXCLUDED.base_tp_pct, updated_at = EXCLUDED.updated_at
		RETURNING id`

	override.UpdatedAt = time.Now()

	return r.db.QueryRow(
		query,
		override.SymbolGroup,
		override.BaseTPPct,
		override.UpdatedAt,
	).Scan(&override.ID)
}

// Delete удаляет переопределение для группы символов
func (r *TierRepository) Delete(group string) error {
	result, err := r.db.Exec(`DELETE FROM tier_overrides WHERE symbol_group = $1`, group)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOverrideNotFound
	}
	return nil
}
