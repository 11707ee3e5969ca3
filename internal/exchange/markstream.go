package exchange

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"trader/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultMarkStreamURL - комбинированный поток mark price по всем символам (обновление раз в секунду)
const DefaultMarkStreamURL = "wss://fstream.binance.com/ws/!markPrice@arr@1s"

// StreamConfig конфигурация WebSocket потока mark price
type StreamConfig struct {
	// Начальная задержка перед переподключением
	InitialDelay time.Duration
	// Максимальная задержка (после exponential backoff)
	MaxDelay time.Duration
	// Максимальное количество попыток (0 = бесконечно)
	MaxRetries int
	// Таймаут подключения
	ConnectTimeout time.Duration
	// Интервал ping для проверки соединения
	PingInterval time.Duration
	// Таймаут ожидания pong
	PongTimeout time.Duration
	// Максимальный возраст котировки, после которого Price() её не отдаёт
	StaleAfter time.Duration
}

// DefaultStreamConfig возвращает конфигурацию по умолчанию
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		InitialDelay:   2 * time.Second,
		MaxDelay:       16 * time.Second,
		MaxRetries:     0, // поток нужен всегда, переподключаемся бесконечно
		ConnectTimeout: 10 * time.Second,
		PingInterval:   30 * time.Second,
		PongTimeout:    10 * time.Second,
		StaleAfter:     30 * time.Second,
	}
}

// StreamState состояние WebSocket соединения
type StreamState int32

const (
	StreamDisconnected StreamState = iota
	StreamConnecting
	StreamConnected
	StreamReconnecting
	StreamClosed
)

func (s StreamState) String() string {
	switch s {
	case StreamDisconnected:
		return "disconnected"
	case StreamConnecting:
		return "connecting"
	case StreamConnected:
		return "connected"
	case StreamReconnecting:
		return "reconnecting"
	case StreamClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// markPoint - котировка с моментом получения
type markPoint struct {
	price float64
	at    time.Time
}

// markFrame - кадр потока markPrice
type markFrame struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	MarkPrice string `json:"p"`
	EventTime int64  `json:"E"`
}

// MarkPriceStream поддерживает кеш mark price по всем символам через WebSocket
// с автоматическим переподключением (exponential backoff) и ping/pong проверкой живости.
// При недоступности потока потребители обязаны падать обратно на REST запрос
type MarkPriceStream struct {
	wsURL  string
	config StreamConfig
	logger *utils.Logger

	conn   *websocket.Conn
	connMu sync.RWMutex

	state      int32 // atomic StreamState
	retryCount int32 // atomic

	closeChan chan struct{}
	closeOnce sync.Once

	pricesMu sync.RWMutex
	prices   map[string]markPoint
}

// NewMarkPriceStream создаёт поток mark price
func NewMarkPriceStream(wsURL string, config StreamConfig) *MarkPriceStream {
	if wsURL == "" {
		wsURL = DefaultMarkStreamURL
	}
	return &MarkPriceStream{
		wsURL:     wsURL,
		config:    config,
		logger:    utils.L().WithComponent("markstream"),
		closeChan: make(chan struct{}),
		prices:    make(map[string]markPoint),
	}
}

// GetState возвращает текущее состояние соединения
func (m *MarkPriceStream) GetState() StreamState {
	return StreamState(atomic.LoadInt32(&m.state))
}

// IsConnected проверяет, установлено ли соединение
func (m *MarkPriceStream) IsConnected() bool {
	return m.GetState() == StreamConnected
}

// Price возвращает свежую mark price символа из кеша
// false - символа нет в кеше или котировка устарела
func (m *MarkPriceStream) Price(symbol string) (float64, bool) {
	m.pricesMu.RLock()
	point, ok := m.prices[symbol]
	m.pricesMu.RUnlock()

	if !ok {
		return 0, false
	}
	if m.config.StaleAfter > 0 && time.Since(point.at) > m.config.StaleAfter {
		return 0, false
	}
	return point.price, true
}

// Connect устанавливает WebSocket соединение и запускает чтение
func (m *MarkPriceStream) Connect() error {
	select {
	case <-m.closeChan:
		return fmt.Errorf("stream is closed")
	default:
	}

	atomic.StoreInt32(&m.state, int32(StreamConnecting))

	if err := m.dial(); err != nil {
		atomic.StoreInt32(&m.state, int32(StreamDisconnected))
		return err
	}

	atomic.StoreInt32(&m.state, int32(StreamConnected))
	atomic.StoreInt32(&m.retryCount, 0)

	go m.readPump()
	go m.pingPump()

	m.logger.Info("mark price stream connected", utils.String("url", m.wsURL))
	return nil
}

// dial выполняет подключение к WebSocket
func (m *MarkPriceStream) dial() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{
		HandshakeTimeout: m.config.ConnectTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, m.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial error: %w", err)
	}

	// Продление дедлайна чтения на каждый pong
	conn.SetReadDeadline(time.Now().Add(m.config.PingInterval + m.config.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(m.config.PingInterval + m.config.PongTimeout))
	})

	m.connMu.Lock()
	m.conn = conn
	m.connMu.Unlock()

	return nil
}

// readPump читает кадры потока и обновляет кеш котировок
func (m *MarkPriceStream) readPump() {
	for {
		select {
		case <-m.closeChan:
			return
		default:
		}

		m.connMu.RLock()
		conn := m.conn
		m.connMu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			m.handleDisconnect(err)
			return
		}

		conn.SetReadDeadline(time.Now().Add(m.config.PingInterval + m.config.PongTimeout))
		m.handleFrame(message)
	}
}

// handleFrame разбирает кадр markPrice и обновляет кеш
// Малформированные кадры пропускаются без остановки потока
func (m *MarkPriceStream) handleFrame(message []byte) {
	var frames []markFrame
	if err := json.Unmarshal(message, &frames); err != nil {
		// Одиночный объект вместо массива (поток одного символа)
		var single markFrame
		if err := json.Unmarshal(message, &single); err != nil {
			m.logger.Debug("unparsable stream frame", utils.Err(err))
			return
		}
		frames = []markFrame{single}
	}

	now := time.Now()

	m.pricesMu.Lock()
	for _, f := range frames {
		if f.EventType != "markPriceUpdate" || f.Symbol == "" {
			continue
		}
		price := parseFloat(f.MarkPrice)
		if price <= 0 {
			continue
		}
		m.prices[f.Symbol] = markPoint{price: price, at: now}
	}
	m.pricesMu.Unlock()
}

// pingPump отправляет ping для проверки соединения
func (m *MarkPriceStream) pingPump() {
	ticker := time.NewTicker(m.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.closeChan:
			return
		case <-ticker.C:
			m.connMu.RLock()
			conn := m.conn
			m.connMu.RUnlock()

			if conn == nil || m.GetState() != StreamConnected {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(m.config.PongTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				m.logger.Warn("ping error", utils.Err(err))
				m.handleDisconnect(err)
				return
			}
		}
	}
}

// handleDisconnect обрабатывает разрыв соединения
func (m *MarkPriceStream) handleDisconnect(err error) {
	select {
	case <-m.closeChan:
		return
	default:
	}

	// Избегаем повторной обработки
	state := m.GetState()
	if state == StreamReconnecting || state == StreamClosed {
		return
	}

	atomic.StoreInt32(&m.state, int32(StreamReconnecting))

	m.connMu.Lock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.connMu.Unlock()

	if err != nil {
		m.logger.Warn("mark price stream disconnected", utils.Err(err))
	}

	go m.reconnectLoop()
}

// reconnectLoop выполняет переподключение с exponential backoff
func (m *MarkPriceStream) reconnectLoop() {
	delay := m.config.InitialDelay

	for {
		select {
		case <-m.closeChan:
			return
		default:
		}

		retryCount := atomic.AddInt32(&m.retryCount, 1)

		if m.config.MaxRetries > 0 && int(retryCount) > m.config.MaxRetries {
			m.logger.Error("max reconnect attempts reached",
				utils.Int("attempts", m.config.MaxRetries))
			atomic.StoreInt32(&m.state, int32(StreamDisconnected))
			return
		}

		m.logger.Info("reconnecting mark price stream",
			utils.Int("attempt", int(retryCount)),
			utils.String("delay", delay.String()))

		select {
		case <-m.closeChan:
			return
		case <-time.After(delay):
		}

		if err := m.dial(); err != nil {
			m.logger.Warn("reconnect failed", utils.Err(err))

			delay *= 2
			if delay > m.config.MaxDelay {
				delay = m.config.MaxDelay
			}
			continue
		}

		atomic.StoreInt32(&m.state, int32(StreamConnected))
		atomic.StoreInt32(&m.retryCount, 0)

		go m.readPump()
		go m.pingPump()

		m.logger.Info("mark price stream reconnected")
		return
	}
}

// Close закрывает поток; повторный вызов безопасен
func (m *MarkPriceStream) Close() error {
	m.closeOnce.Do(func() {
		close(m.closeChan)
		atomic.StoreInt32(&m.state, int32(StreamClosed))

		m.connMu.Lock()
		if m.conn != nil {
			m.conn.Close()
			m.conn = nil
		}
		m.connMu.Unlock()
	})
	return nil
}
