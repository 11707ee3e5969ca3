package service

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"trader/internal/models"
	"trader/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Notifier - интерфейс канала уведомлений
//
// Позволяет избежать циклических зависимостей между пакетами
// и упрощает тестирование (можно подставить mock)
type Notifier interface {
	Notify(event *models.Event)
}

// TelegramNotifier отправляет уведомления об ошибках и предупреждениях в Telegram.
// Доставка best-effort: сбои канала проглатываются и не влияют на торговлю
type TelegramNotifier struct {
	apiURL  string
	chatID  string
	client  *http.Client
	enabled bool
	logger  *utils.Logger
}

// NewTelegramNotifier создает уведомитель Telegram
// Пустой токен или chat ID отключают отправку (Notify становится no-op)
func NewTelegramNotifier(botToken, chatID string, timeout time.Duration) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &TelegramNotifier{
		apiURL:  fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", botToken),
		chatID:  chatID,
		client:  &http.Client{Timeout: timeout},
		enabled: botToken != "" && chatID != "",
		logger:  utils.L().WithComponent("notifier"),
	}
}

// Notify отправляет событие уровня warn/error в Telegram
// События уровня info игнорируются
func (t *TelegramNotifier) Notify(event *models.Event) {
	if !t.enabled {
		return
	}
	if event.Severity != models.SeverityWarn && event.Severity != models.SeverityError {
		return
	}

	payload := map[string]interface{}{
		"chat_id": t.chatID,
		"text":    formatEventText(event),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		t.logger.Debug("notification marshal failed", utils.Err(err))
		return
	}

	resp, err := t.client.Post(t.apiURL, "application/json", bytes.NewBuffer(data))
	if err != nil {
		t.logger.Debug("notification delivery failed", utils.Err(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		t.logger.Debug("notification rejected",
			utils.Int("status", resp.StatusCode))
	}
}

// formatEventText собирает текст сообщения из события
func formatEventText(event *models.Event) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", strings.ToUpper(event.Severity), event.Type))
	if event.Symbol != "" {
		b.WriteString(" " + event.Symbol)
	}
	b.WriteString("\n" + event.Message)

	for key, value := range event.Payload {
		b.WriteString(fmt.Sprintf("\n%s: %v", key, value))
	}
	return b.String()
}
