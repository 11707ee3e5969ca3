package bot

import (
	"sync"

	"trader/internal/models"
)

// PositionBook - in-process книга позиций движка, ключ - символ.
// Обеспечивает правило "не больше одной позиции на символ" и хранит
// метаданные жизненного цикла (уверенность входа, ID защитных ордеров).
// Источником истины остается биржа: книга перечитывается при старте
// и корректируется каждым свипом
type PositionBook struct {
	mu        sync.RWMutex
	positions map[string]*models.Position
}

// NewPositionBook создает пустую книгу
func NewPositionBook() *PositionBook {
	return &PositionBook{
		positions: make(map[string]*models.Position),
	}
}

// Get возвращает позицию по символу
func (b *PositionBook) Get(symbol string) (*models.Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	pos, ok := b.positions[symbol]
	return pos, ok
}

// Has возвращает true, если по символу есть позиция
func (b *PositionBook) Has(symbol string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.positions[symbol]
	return ok
}

// Add добавляет позицию; false - по символу уже есть позиция
func (b *PositionBook) Add(pos *models.Position) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.positions[pos.Symbol]; exists {
		return false
	}
	b.positions[pos.Symbol] = pos
	return true
}

// Remove удаляет позицию по символу
func (b *PositionBook) Remove(symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.positions, symbol)
}

// SetState переводит позицию в новое состояние с проверкой допустимости.
// false - позиции нет или переход недопустим
func (b *PositionBook) SetState(symbol, state string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	pos, ok := b.positions[symbol]
	if !ok {
		return false
	}
	if !CanTransition(pos.State, state) {
		return false
	}
	pos.State = state
	return true
}

// List возвращает срез позиций (копии, без разделяемых указателей)
func (b *PositionBook) List() []models.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]models.Position, 0, len(b.positions))
	for _, pos := range b.positions {
		out = append(out, *pos)
	}
	return out
}

// Count возвращает число позиций в книге
func (b *PositionBook) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.positions)
}
