// Package feed реализует чтение внешнего источника торговых сигналов.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/samber/lo"

	"trader/internal/models"
	"trader/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// statusOperational - единственный здоровый статус источника
const statusOperational = "operational"

// maxSignals - верхняя граница количества сигналов на цикл
const maxSignals = 50

// maxBodySize - защита от неограниченного ответа источника
const maxBodySize = 4 << 20

// Ошибки источника сигналов
var (
	ErrFeedUnhealthy = errors.New("signal feed unhealthy")
	ErrFeedStale     = errors.New("signal feed is stale")
)

// Config - настройки клиента источника сигналов
type Config struct {
	URL        string
	Timeout    time.Duration
	StaleAfter time.Duration // максимальный возраст generated_at
}

// Client читает список сигналов из внешнего аналитического сервиса
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *utils.Logger
}

// feedResponse - формат ответа источника
type feedResponse struct {
	Status      string          `json:"status"`
	GeneratedAt time.Time       `json:"generated_at"`
	Signals     []models.Signal `json:"signals"`
}

// NewClient создаёт клиент источника сигналов
func NewClient(config Config) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
		logger:     utils.L().WithComponent("feed"),
	}
}

// Fetch читает источник и возвращает пригодные к исполнению сигналы:
// малформированные записи отброшены, уверенность нормализована и >= порога,
// сортировка по убыванию уверенности, не больше maxSignals.
// Нездоровый или устаревший источник - ошибка, цикл пропускается
func (c *Client) Fetch(ctx context.Context) ([]models.Signal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch signal feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("signal feed returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}

	var feed feedResponse
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("decode feed body: %w", err)
	}

	if feed.Status != statusOperational {
		return nil, fmt.Errorf("%w: status %q", ErrFeedUnhealthy, feed.Status)
	}

	if c.config.StaleAfter > 0 {
		if feed.GeneratedAt.IsZero() {
			return nil, fmt.Errorf("%w: missing generated_at", ErrFeedStale)
		}
		if age := time.Since(feed.GeneratedAt); age > c.config.StaleAfter {
			return nil, fmt.Errorf("%w: generated %s ago", ErrFeedStale, age.Round(time.Second))
		}
	}

	return c.sanitize(feed.Signals), nil
}

// sanitize валидирует, нормализует, фильтрует и упорядочивает сигналы
func (c *Client) sanitize(raw []models.Signal) []models.Signal {
	signals := lo.FilterMap(raw, func(s models.Signal, _ int) (models.Signal, bool) {
		if err := utils.ValidateSymbol(s.Symbol); err != nil {
			c.logger.Debug("signal dropped: bad symbol",
				utils.Symbol(s.Symbol), utils.Err(err))
			return s, false
		}
		if err := s.Normalize(); err != nil {
			c.logger.Debug("signal dropped: invalid",
				utils.Symbol(s.Symbol), utils.Err(err))
			return s, false
		}
		if s.Confidence < models.MinTierConfidence {
			return s, false
		}
		return s, true
	})

	// Дубликаты по символу: остаётся самый уверенный сигнал
	bySymbol := make(map[string]models.Signal, len(signals))
	for _, s := range signals {
		if prev, ok := bySymbol[s.Symbol]; !ok || s.Confidence > prev.Confidence {
			bySymbol[s.Symbol] = s
		}
	}
	signals = lo.Values(bySymbol)

	sort.Slice(signals, func(i, j int) bool {
		return signals[i].Confidence > signals[j].Confidence
	})

	if len(signals) > maxSignals {
		signals = signals[:maxSignals]
	}
	return signals
}
