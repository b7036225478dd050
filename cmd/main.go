package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "agropres/docs"
	"agropres/internal/bridge"
	"agropres/internal/handlers"
	"agropres/internal/logger"
	"agropres/internal/notify"
	"agropres/internal/server"
	"agropres/internal/service"
	"agropres/internal/store"

	"github.com/spf13/viper"
)

func main() {
	// init logger
	log := logger.Get(logger.InfoLevel)

	// load config.yml
	if err := loadConfig(); err != nil {
		log.Fatalw("error reading config", "err", err)
	}

	// open DB backing the document store and event log
	db, err := openDB(log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Fatalw("failed to close sqlite", "err", cerr)
		}
	}()

	// wire dependencies
	stores := store.NewStores(db)
	session := service.NewSession(stores.Docs, log,
		viper.GetString("device.id"), viper.GetString("user.id"))
	services := service.NewService(session, stores, buildSender(log), service.Config{
		HeartbeatThreshold: viper.GetDuration("device.heartbeat_threshold"),
		DebounceQuiet:      viper.GetDuration("engine.debounce_quiet"),
		RetireAfterSend:    viper.GetBool("reminders.retire_after_send"),
	}, log)
	apiHandler := handlers.NewHandler(services, log)

	// context for background loops
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// session cache first, then the loops that read it
	go session.Run(ctx)
	go services.Reconciler.Run(ctx, tickOrDefault("engine.reconcile_tick", service.DefaultReconcileTick))
	go services.Reminders.Run(ctx, tickOrDefault("reminders.poll_tick", service.DefaultReminderTick))

	// optional MQTT bridge for device heartbeat/telemetry
	if broker := viper.GetString("mqtt.broker"); broker != "" {
		br, err := bridge.New(broker, viper.GetString("device.id"), stores.Docs, log)
		if err != nil {
			log.Fatalw("failed to connect mqtt bridge", "err", err)
		}
		if err := br.Start(); err != nil {
			log.Fatalw("failed to subscribe mqtt bridge", "err", err)
		}
		defer br.Close()
	}

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, viper.GetString("port"), apiHandler, log)

	// graceful shutdown
	waitForShutdown(cancel, srv, log)
}

func loadConfig() error {
	viper.AddConfigPath("configs") // configs/config.yml
	viper.SetConfigName("config")
	return viper.ReadInConfig()
}

// openDB initializes the SQLite database using configuration.
func openDB(log *logger.Logger) (*sql.DB, error) {
	dbPath := viper.GetString("db.path")
	if dbPath == "" {
		log.Infow("db.path not set in config; using default file", "default", "agropres.db")
		dbPath = "agropres.db"
	}
	return store.InitDB(dbPath)
}

// buildSender picks the notification backend from config. With none
// configured the reminder loop skips its polls entirely.
func buildSender(log *logger.Logger) notify.Sender {
	switch backend := viper.GetString("notify.backend"); backend {
	case "gateway":
		return notify.NewGateway(
			viper.GetString("notify.gateway_url"),
			viper.GetString("notify.api_key"),
			viper.GetString("notify.success_marker"),
		)
	case "telegram":
		return notify.NewTelegram(
			viper.GetString("notify.telegram_token"),
			viper.GetInt64("notify.telegram_chat_id"),
		)
	default:
		if backend != "" {
			log.Warnw("unknown notify backend; reminders disabled", "backend", backend)
		}
		return notify.Disabled{}
	}
}

func tickOrDefault(key string, def time.Duration) time.Duration {
	if d := viper.GetDuration(key); d > 0 {
		return d
	}
	return def
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down...")

	// stop background loops
	cancel()

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}
}
