package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"trader/internal/api"
	"trader/internal/bot"
	"trader/internal/config"
	"trader/internal/exchange"
	"trader/internal/feed"
	"trader/internal/repository"
	"trader/internal/service"
	"trader/pkg/retry"
	"trader/pkg/utils"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Инициализация логгера
	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	defer logger.Sync()

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatal("Не удалось подключиться к БД", utils.Err(err))
	}
	defer db.Close()

	if err := ensureSchema(db); err != nil {
		logger.Fatal("Не удалось применить схему БД", utils.Err(err))
	}
	logger.Info("БД подключена", utils.String("host", cfg.Database.Host))

	// Подключение к бирже
	retryCfg := retry.DefaultConfig()
	if cfg.Exchange.MaxRetries > 0 {
		retryCfg.MaxRetries = cfg.Exchange.MaxRetries
	}
	if cfg.Exchange.RetryBackoff > 0 {
		retryCfg.InitialDelay = cfg.Exchange.RetryBackoff
	}

	ex := exchange.NewBinance(exchange.BinanceOptions{
		APIKey:            cfg.Exchange.APIKey,
		APISecret:         cfg.Exchange.APISecret,
		Testnet:           cfg.Exchange.Testnet,
		RequestsPerSecond: cfg.Exchange.RequestsPerSecond,
		RequestBurst:      cfg.Exchange.RequestBurst,
		Retry:             retryCfg,
	})
	defer ex.Close()

	// WebSocket поток mark price с авто-переподключением
	streamCfg := exchange.DefaultStreamConfig()
	streamCfg.PingInterval = cfg.Exchange.WSPingInterval
	streamCfg.StaleAfter = cfg.Exchange.WSReadTimeout
	stream := exchange.NewMarkPriceStream(exchange.DefaultMarkStreamURL, streamCfg)

	// Репозитории и сервисы
	eventRepo := repository.NewEventRepository(db)
	outcomeRepo := repository.NewOutcomeRepository(db)
	tierRepo := repository.NewTierRepository(db)

	notifier := service.NewTelegramNotifier(cfg.Notify.BotToken, cfg.Notify.ChatID, cfg.Notify.Timeout)
	events := service.NewEventService(eventRepo, notifier)
	tiers := service.NewTierService(tierRepo)

	feedClient := feed.NewClient(feed.Config{
		URL:        cfg.Feed.URL,
		Timeout:    cfg.Feed.Timeout,
		StaleAfter: cfg.Feed.StaleAfter,
	})

	// Торговый движок
	engine := bot.NewEngine(cfg, ex, stream, feedClient, outcomeRepo, events, tiers)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.Start(ctx); err != nil {
		logger.Fatal("Не удалось запустить движок", utils.Err(err))
	}

	// HTTP API
	deps := &api.Dependencies{
		Engine: engine,
		Events: events,
		Tiers:  tiers,
	}
	router := api.SetupRoutes(deps)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP сервер запущен", utils.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP сервер упал", utils.Err(err))
		}
	}()

	// Graceful shutdown по SIGINT/SIGTERM
	<-ctx.Done()
	logger.Info("Останавливаемся...")

	engine.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Принудительная остановка HTTP сервера", utils.Err(err))
	}

	logger.Info("Остановлено")
}

// initDatabase создает подключение к базе данных с пулом соединений
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// ensureSchema создает таблицы движка, если их еще нет
func ensureSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			type VARCHAR(20) NOT NULL,
			severity VARCHAR(10) NOT NULL DEFAULT 'info',
			symbol VARCHAR(20),
			message TEXT NOT NULL,
			payload JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_ts ON events (ts DESC)`,
		`CREATE TABLE IF NOT EXISTS trade_outcomes (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			symbol VARCHAR(20) NOT NULL,
			side VARCHAR(5) NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			exit_price DOUBLE PRECISION NOT NULL,
			pnl_pct DOUBLE PRECISION NOT NULL,
			hold_hours DOUBLE PRECISION NOT NULL,
			reason VARCHAR(20) NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trade_outcomes_ts ON trade_outcomes (ts DESC)`,
		`CREATE TABLE IF NOT EXISTS tier_overrides (
			id BIGSERIAL PRIMARY KEY,
			symbol_group VARCHAR(20) NOT NULL UNIQUE,
			base_tp_pct DOUBLE PRECISION NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}
