package service

import (
	"time"

	"trader/internal/models"
	"trader/internal/repository"
	"trader/pkg/utils"
)

// EventService - журнал событий движка
//
// Отвечает за:
// - Запись каждого размещения ордера, ошибки и предупреждения в append-only журнал
// - Пересылку warn/error событий в канал уведомлений
//
// Отказ журнала не останавливает торговлю: событие логируется и теряется
type EventService struct {
	repo     *repository.EventRepository
	notifier Notifier
	logger   *utils.Logger
}

// NewEventService создает новый экземпляр EventService
func NewEventService(repo *repository.EventRepository, notifier Notifier) *EventService {
	return &EventService{
		repo:     repo,
		notifier: notifier,
		logger:   utils.L().WithComponent("events"),
	}
}

// Log записывает событие в журнал и уведомляет о warn/error
func (s *EventService) Log(event *models.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Severity == "" {
		event.Severity = models.SeverityInfo
	}

	if s.repo != nil {
		if err := s.repo.Create(event); err != nil {
			s.logger.Error("failed to persist event",
				utils.String("type", event.Type), utils.Err(err))
		}
	}

	if s.notifier != nil {
		s.notifier.Notify(event)
	}
}

// Info записывает информационное событие
func (s *EventService) Info(eventType, symbol, message string, payload map[string]interface{}) {
	s.Log(&models.Event{
		Type:     eventType,
		Severity: models.SeverityInfo,
		Symbol:   symbol,
		Message:  message,
		Payload:  payload,
	})
}

// Warn записывает предупреждение (уходит и в канал уведомлений)
func (s *EventService) Warn(eventType, symbol, message string, payload map[string]interface{}) {
	s.Log(&models.Event{
		Type:     eventType,
		Severity: models.SeverityWarn,
		Symbol:   symbol,
		Message:  message,
		Payload:  payload,
	})
}

// Error записывает ошибку (уходит и в канал уведомлений)
func (s *EventService) Error(eventType, symbol, message string, payload map[string]interface{}) {
	s.Log(&models.Event{
		Type:     eventType,
		Severity: models.SeverityError,
		Symbol:   symbol,
		Message:  message,
		Payload:  payload,
	})
}

// Recent возвращает последние события журнала
func (s *EventService) Recent(limit int) ([]*models.Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.GetRecent(limit)
}
