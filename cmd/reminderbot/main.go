// Command reminderbot runs the Telegram reminder bot: the conversation
// wizard, the firing scheduler and the optional admin HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/go-reminder-bot/internal/assistant"
	"github.com/tbourn/go-reminder-bot/internal/config"
	"github.com/tbourn/go-reminder-bot/internal/conversation"
	httpapi "github.com/tbourn/go-reminder-bot/internal/http"
	"github.com/tbourn/go-reminder-bot/internal/http/handlers"
	"github.com/tbourn/go-reminder-bot/internal/observability"
	"github.com/tbourn/go-reminder-bot/internal/recurrence"
	"github.com/tbourn/go-reminder-bot/internal/repo"
	"github.com/tbourn/go-reminder-bot/internal/scheduler"
	"github.com/tbourn/go-reminder-bot/internal/search"
	"github.com/tbourn/go-reminder-bot/internal/services"
	"github.com/tbourn/go-reminder-bot/internal/store"
	"github.com/tbourn/go-reminder-bot/internal/sysutil"
	"github.com/tbourn/go-reminder-bot/internal/transport/telegram"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	sysutil.SetupLogger(os.Stdout, cfg.LogLevel, cfg.LogPretty)

	if err := run(cfg); err != nil {
		log.Error().Err(err).Msg("reminderbot stopped")
		os.Exit(1)
	}
	log.Info().Msg("reminderbot stopped")
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version))
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	// A corrupt data file stops startup; nothing is overwritten.
	st, err := store.Open(cfg.Store.DataFile, store.Options{
		SaveAttempts: cfg.Store.SaveRetries,
		RetryBackoff: cfg.Store.RetryBackoff,
	})
	if err != nil {
		return fmt.Errorf("open reminder store: %w", err)
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer closeDB(db)
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	chats := services.NewChatService(db, repo.Chats{}, cfg.DefaultGroupID)
	deliveries := services.NewDeliveryTracker(db, repo.Deliveries{})

	help, err := loadHelp(cfg.HelpPath)
	if err != nil {
		return fmt.Errorf("help index: %w", err)
	}
	var asker services.Asker
	if cfg.Assistant.Enabled {
		asker = assistant.NewClient(assistant.Config{
			BaseURL: cfg.Assistant.BaseURL,
			APIKey:  cfg.Assistant.APIKey,
			Model:   cfg.Assistant.Model,
			Timeout: cfg.Assistant.Timeout,
		})
	}
	asst := services.NewAssistantService(asker, help, cfg.Assistant.RPS, cfg.Assistant.Burst)

	calc := recurrence.New(cfg.Location())
	engine := conversation.New(st, chats, deliveries, calc, conversation.Config{
		Timeout:             cfg.Session.Timeout,
		RequestConfirmation: cfg.ConfirmButton,
	})

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	log.Info().
		Str("bot", api.Self.UserName).
		Str("tz", cfg.Location().String()).
		Msg("authorized on telegram")

	bot := telegram.New(api, engine, chats, deliveries, asst, telegram.Config{
		SendRPS:   cfg.Telegram.SendRPS,
		SendBurst: cfg.Telegram.SendBurst,
		SendTries: cfg.Telegram.SendTries,
	})
	if err := bot.SetCommands(); err != nil {
		log.Warn().Err(err).Msg("set bot commands")
	}

	sched := scheduler.New(st, bot, deliveries, calc, scheduler.Config{
		MaxSleep:      cfg.Scheduler.MaxSleep,
		LateThreshold: cfg.Scheduler.LateThreshold,
	})
	st.OnChange(sched.Notify)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error {
		engine.RunJanitor(gctx, cfg.Session.SweepInterval)
		return nil
	})

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)
	g.Go(func() error { return bot.Run(gctx, updates) })
	g.Go(func() error {
		<-gctx.Done()
		api.StopReceivingUpdates()
		return nil
	})

	if cfg.HTTP.Enabled {
		// An admin delete that cannot be saved stops the process like any
		// other persistence failure.
		fatal := make(chan error, 1)
		srv := newHTTPServer(cfg, handlers.Deps{
			Reminders:  st,
			Chats:      chats,
			Deliveries: deliveries,
			DB:         db,
			Sessions:   engine.Active,
			OnFatal: func(err error) {
				select {
				case fatal <- err:
				default:
				}
			},
		})
		g.Go(func() error {
			select {
			case err := <-fatal:
				return fmt.Errorf("admin delete: %w", err)
			case <-gctx.Done():
				return nil
			}
		})
		g.Go(func() error {
			log.Info().Str("addr", srv.Addr).Msg("admin http listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	log.Info().Int("reminders", st.Len()).Msg("reminderbot started")
	err = g.Wait()
	if errors.Is(err, store.ErrPersistence) {
		log.Error().Err(err).Msg("reminder store can no longer save, shutting down")
	}
	return err
}

func newHTTPServer(cfg config.Config, d handlers.Deps) *http.Server {
	gin.SetMode(cfg.HTTP.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, d, cfg.HTTP, cfg.OTEL.ServiceName)

	return &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           r,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		MaxHeaderBytes:    cfg.HTTP.MaxHeaderBytes,
	}
}

// loadHelp returns the FAQ index, preferring an operator-supplied file.
func loadHelp(path string) (search.Index, error) {
	if path == "" {
		return search.HelpIndex(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return search.LoadHelp(f)
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
