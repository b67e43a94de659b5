package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"hutkeeper/internal/api"
	"hutkeeper/internal/config"
	"hutkeeper/internal/database"
	"hutkeeper/internal/domain"
	"hutkeeper/internal/events"
	"hutkeeper/internal/export"
	"hutkeeper/internal/google"
	"hutkeeper/internal/logging"
	"hutkeeper/internal/metrics"
	"hutkeeper/internal/models"
	"hutkeeper/internal/notify"
	"hutkeeper/internal/repository"
	"hutkeeper/internal/service"
	"hutkeeper/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка инициализации базы данных")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sheetsService, err := initGoogleSheets(ctx, cfg, &logger)
	if err != nil {
		return err
	}

	redisClient, sessionRepo := initSessionStore(ctx, cfg, &logger)
	defer func() {
		if redisClient != nil {
			_ = repository.Close(redisClient)
		}
	}()

	var syncWorker domain.SyncWorker
	if sheetsService != nil {
		retryPolicy := worker.RetryPolicy{MaxRetries: 5, InitialDelay: 2 * time.Second, MaxDelay: time.Minute, BackoffFactor: 2}
		workerLog := log.New(os.Stdout, "sheets-worker ", log.LstdFlags)
		sheetsWorker := worker.NewSheetsWorker(db, sheetsService, redisClient, retryPolicy, workerLog)
		go sheetsWorker.Start(ctx)
		syncWorker = sheetsWorker
	}

	eventBus := events.NewEventBus()
	initNotifier(cfg, db, eventBus, &logger)

	authService := service.NewAuthService(db, sessionRepo, cfg.Auth, &logger)
	reservationService := service.NewReservationService(
		db, eventBus, syncWorker, cfg.Admin.PendingCountIncludesCancellations, &logger)
	exporter := export.NewService(db, cfg.Exports.Path, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(cfg.Monitoring.PrometheusPort, &logger)
	}

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
		go backupService.Start(ctx)
	}

	server := api.NewServer(cfg, authService, reservationService, db, exporter, &logger)
	go startExportCleanup(ctx, server)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown error")
	}

	logger.Info().Msg("Shutdown complete.")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}
	logger := baseLogger.With().Str("component", "server-main").Logger()

	return cfg, logger, closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if cfg == nil {
		return os.ErrInvalid
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("Ошибка создания директории для базы данных")
		return err
	}
	if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
		logger.Error().Err(err).Msg("Ошибка создания директории для экспорта")
		return err
	}
	return nil
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*google.SheetsService, error) {
	if !cfg.Google.Enabled {
		logger.Info().Msg("Google Sheets mirror disabled")
		return nil, nil
	}

	sheetsSvc, err := google.NewSheetsService(
		cfg.Google.GoogleCredentialsFile,
		cfg.Google.ScheduleSpreadsheetID,
	)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize Google Sheets service")
		return nil, err
	}

	if err := sheetsSvc.TestConnection(ctx); err != nil {
		logger.Error().Err(err).Msg("Google Sheets connection test failed")
		return nil, err
	}

	logger.Info().Msg("Google Sheets service initialized successfully")
	return sheetsSvc, nil
}

func initSessionStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, domain.SessionRepository) {
	ttl := time.Duration(cfg.Auth.RefreshTTLDays) * 24 * time.Hour
	if ttl <= 0 {
		ttl = time.Duration(models.DefaultSessionTTLDays) * 24 * time.Hour
	}

	var redisClient *redis.Client
	if cfg.Redis.Address != "" {
		redisClient = repository.NewRedisClient(cfg.Redis)
		if errPing := repository.Ping(ctx, redisClient); errPing != nil {
			logger.Warn().Err(errPing).Msg("Redis unavailable")
		}
	}

	primaryRepo := repository.NewRedisSessionRepository(redisClient, ttl)
	fallbackRepo := repository.NewMemorySessionRepository()
	return redisClient, repository.NewFailoverSessionRepository(primaryRepo, fallbackRepo, logger)
}

func initNotifier(cfg *config.Config, db *database.DB, bus *events.EventBus, logger *zerolog.Logger) {
	var email notify.EmailSender
	if cfg.Notifications.Email.Enabled {
		email = notify.NewSendGridSender(
			cfg.Notifications.Email.SendGridKey,
			cfg.Notifications.Email.FromAddress,
			cfg.Notifications.Email.FromName,
		)
	}

	var telegram notify.Broadcaster
	if cfg.Notifications.Telegram.Enabled {
		broadcaster, err := notify.NewTelegramBroadcaster(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatIDs)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize telegram broadcaster")
		} else {
			telegram = broadcaster
		}
	}

	if email == nil && telegram == nil {
		logger.Info().Msg("Notifications disabled")
		return
	}

	notify.NewService(db, email, telegram, logger).Subscribe(bus)
}

func startMetricsServer(port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info().Str("addr", addr).Msg("Metrics listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("Metrics server error")
	}
}

func startExportCleanup(ctx context.Context, server *api.Server) {
	ticker := time.NewTicker(6 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			server.ExpireStaleExports()
		}
	}
}
