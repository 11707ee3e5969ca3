package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Exchange ExchangeConfig
	Feed     FeedConfig
	Bot      BotConfig
	Risk     RiskConfig
	Notify   NotifyConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port int
	Host string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// ExchangeConfig - настройки подключения к бирже
type ExchangeConfig struct {
	APIKey    string
	APISecret string
	Testnet   bool

	// Rate limiting и retry для REST вызовов
	RequestsPerSecond float64
	RequestBurst      int
	MaxRetries        int
	RetryBackoff      time.Duration
	RequestTimeout    time.Duration

	// WebSocket поток mark price
	WSReconnectDelay time.Duration
	WSPingInterval   time.Duration
	WSReadTimeout    time.Duration
}

// FeedConfig - настройки источника сигналов
type FeedConfig struct {
	URL        string
	Timeout    time.Duration
	StaleAfter time.Duration // максимальный возраст generated_at
}

// BotConfig - расписание периодических задач движка
type BotConfig struct {
	TradeCycleInterval     time.Duration // цикл обработки сигналов
	LifecycleInterval      time.Duration // свип монитора позиций
	StaleOrderInterval     time.Duration // свип janitor по ордерам
	StalePositionInterval  time.Duration // свип janitor по позициям
	TierRefreshInterval    time.Duration // перечитывание tier_overrides
}

// RiskConfig - риск-параметры движка
type RiskConfig struct {
	MarginCapPct     float64       // доля баланса под суммарную маржу
	MaxNewPerCycle   int           // лимит новых позиций за цикл
	MaxHoldHours     float64       // жесткий стоп по времени удержания
	DecayHalfLife    time.Duration // период полураспада уверенности
	DecayCloseBelow  float64       // порог затухшей уверенности для закрытия
	FlipMinConf      float64       // минимальная уверенность встречного сигнала
	TakeProfit1Frac  float64       // доля объема на первом тейке
	StaleOrderAfter  time.Duration // возраст неисполненного limit входа до отмены
	PositionTTL      time.Duration // предельный возраст позиции для janitor
	ClientIDPrefix   string        // префикс клиентских ID ордеров движка
}

// NotifyConfig - настройки канала уведомлений (Telegram)
type NotifyConfig struct {
	BotToken string
	ChatID   string
	Timeout  time.Duration
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvAsInt("SERVER_PORT", 8080),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "trader"),
			User:     getEnv("DB_USER", "trader"),
			Password: getEnv("DB_PASSWORD", ""),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Exchange: ExchangeConfig{
			APIKey:    getEnv("EXCHANGE_API_KEY", ""),
			APISecret: getEnv("EXCHANGE_API_SECRET", ""),
			Testnet:   getEnvAsBool("EXCHANGE_TESTNET", false),

			RequestsPerSecond: getEnvAsFloat("EXCHANGE_RPS", 8),
			RequestBurst:      getEnvAsInt("EXCHANGE_BURST", 16),
			MaxRetries:        getEnvAsInt("MAX_RETRIES", 3),
			RetryBackoff:      getEnvAsDuration("RETRY_BACKOFF", 500*time.Millisecond),
			RequestTimeout:    getEnvAsDuration("REQUEST_TIMEOUT", 10*time.Second),

			WSReconnectDelay: getEnvAsDuration("WS_RECONNECT_DELAY", 1*time.Second),
			WSPingInterval:   getEnvAsDuration("WS_PING_INTERVAL", 15*time.Second),
			WSReadTimeout:    getEnvAsDuration("WS_READ_TIMEOUT", 30*time.Second),
		},
		Feed: FeedConfig{
			URL:        getEnv("SIGNAL_URL", ""),
			Timeout:    getEnvAsDuration("SIGNAL_TIMEOUT", 10*time.Second),
			StaleAfter: getEnvAsDuration("FEED_STALE_AFTER", 15*time.Minute),
		},
		Bot: BotConfig{
			TradeCycleInterval:    getEnvAsDuration("TRADE_CYCLE_INTERVAL", 15*time.Minute),
			LifecycleInterval:     getEnvAsDuration("LIFECYCLE_INTERVAL", 1*time.Minute),
			StaleOrderInterval:    getEnvAsDuration("STALE_ORDER_INTERVAL", 5*time.Minute),
			StalePositionInterval: getEnvAsDuration("STALE_POSITION_INTERVAL", 1*time.Hour),
			TierRefreshInterval:   getEnvAsDuration("TIER_REFRESH_INTERVAL", 5*time.Minute),
		},
		Risk: RiskConfig{
			MarginCapPct:    getEnvAsFloat("MARGIN_CAP_PCT", 0.60),
			MaxNewPerCycle:  getEnvAsInt("MAX_NEW_PER_CYCLE", 10),
			MaxHoldHours:    getEnvAsFloat("MAX_HOLD_HOURS", 3),
			DecayHalfLife:   getEnvAsDuration("DECAY_HALF_LIFE", 6*time.Hour),
			DecayCloseBelow: getEnvAsFloat("DECAY_CLOSE_BELOW", 0.40),
			FlipMinConf:     getEnvAsFloat("FLIP_MIN_CONF", 0.60),
			TakeProfit1Frac: getEnvAsFloat("TAKE_PROFIT1_FRAC", 0.50),
			StaleOrderAfter: getEnvAsDuration("STALE_ORDER_AFTER", 15*time.Minute),
			PositionTTL:     getEnvAsDuration("POSITION_TTL", 48*time.Hour),
			ClientIDPrefix:  getEnv("CLIENT_ID_PREFIX", "pex"),
		},
		Notify: NotifyConfig{
			BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
			Timeout:  getEnvAsDuration("TELEGRAM_TIMEOUT", 5*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
	}

	// Валидация числовых диапазонов
	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	// Валидация портов
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	// Валидация retry параметров
	if c.Exchange.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES cannot be negative, got %d", c.Exchange.MaxRetries)
	}

	if c.Exchange.MaxRetries > 10 {
		return fmt.Errorf("MAX_RETRIES should not exceed 10, got %d", c.Exchange.MaxRetries)
	}

	// Валидация таймаутов (должны быть положительными)
	if c.Exchange.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %v", c.Exchange.RequestTimeout)
	}

	if c.Exchange.WSReadTimeout <= 0 {
		return fmt.Errorf("WS_READ_TIMEOUT must be positive, got %v", c.Exchange.WSReadTimeout)
	}

	// Валидация риск-параметров
	if c.Risk.MarginCapPct <= 0 || c.Risk.MarginCapPct > 1 {
		return fmt.Errorf("MARGIN_CAP_PCT must be in (0, 1], got %v", c.Risk.MarginCapPct)
	}

	if c.Risk.MaxNewPerCycle < 1 {
		return fmt.Errorf("MAX_NEW_PER_CYCLE must be at least 1, got %d", c.Risk.MaxNewPerCycle)
	}

	if c.Risk.MaxHoldHours <= 0 {
		return fmt.Errorf("MAX_HOLD_HOURS must be positive, got %v", c.Risk.MaxHoldHours)
	}

	if c.Risk.DecayHalfLife <= 0 {
		return fmt.Errorf("DECAY_HALF_LIFE must be positive, got %v", c.Risk.DecayHalfLife)
	}

	if c.Risk.DecayCloseBelow < 0 || c.Risk.DecayCloseBelow >= 1 {
		return fmt.Errorf("DECAY_CLOSE_BELOW must be in [0, 1), got %v", c.Risk.DecayCloseBelow)
	}

	if c.Risk.TakeProfit1Frac <= 0 || c.Risk.TakeProfit1Frac >= 1 {
		return fmt.Errorf("TAKE_PROFIT1_FRAC must be in (0, 1), got %v", c.Risk.TakeProfit1Frac)
	}

	if c.Risk.ClientIDPrefix == "" {
		return fmt.Errorf("CLIENT_ID_PREFIX cannot be empty")
	}

	// Валидация расписания
	if c.Bot.TradeCycleInterval <= 0 {
		return fmt.Errorf("TRADE_CYCLE_INTERVAL must be positive, got %v", c.Bot.TradeCycleInterval)
	}

	if c.Bot.LifecycleInterval <= 0 {
		return fmt.Errorf("LIFECYCLE_INTERVAL must be positive, got %v", c.Bot.LifecycleInterval)
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
