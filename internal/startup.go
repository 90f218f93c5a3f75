package internal

import (
	"context"
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/internal/admin"
	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/internal/campaign"
	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/internal/dispatch"
	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/internal/reconcile"
	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/internal/storage"
	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/internal/transport"
	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/internal/webhooks"
	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/pkg/env"
	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/pkg/log"
)

var (
	appDB         *sql.DB
	appStore      *storage.Store
	appDispatcher *campaign.Dispatcher
	appService    *campaign.Service
)

// Setup builds the application graph: database, transport, dispatcher,
// reconciler and controllers. Fatal on misconfiguration, there is nothing to
// serve without it.
func Setup() {
	log.Print(nil).Info("Running Setup Tasks")

	dsn := env.MustGetEnvString("DATABASE_URL")
	db, err := storage.Open(dsn)
	if err != nil {
		log.Print(nil).Fatal("open database: " + err.Error())
	}
	if err := storage.Migrate(db); err != nil {
		log.Print(nil).Fatal("migrate database: " + err.Error())
	}

	appDB = db
	appStore = storage.NewStore(db)

	sender := transport.NewClient()
	appDispatcher = campaign.NewDispatcher(appStore, sender)

	window := campaign.Window{
		StartHour: env.GetEnvIntOrDefault("SEND_WINDOW_START_HOUR", 8),
		EndHour:   env.GetEnvIntOrDefault("SEND_WINDOW_END_HOUR", 18),
	}
	pacing := campaign.PacingConfig{
		DelayMin:      env.GetEnvDurationOrDefault("SEND_DELAY_MIN", 30*time.Second),
		DelayMax:      env.GetEnvDurationOrDefault("SEND_DELAY_MAX", 90*time.Second),
		PauseEvery:    env.GetEnvIntOrDefault("SEND_PAUSE_EVERY", 20),
		PauseDuration: env.GetEnvDurationOrDefault("SEND_PAUSE_DURATION", 10*time.Minute),
	}
	appService = campaign.NewService(appStore, appDispatcher, window, pacing)

	seenTTL := env.GetEnvDurationOrDefault("EVENT_SEEN_TTL", 24*time.Hour)
	var seen reconcile.SeenCache
	if addr, err := env.GetEnvString("REDIS_ADDR"); err == nil && addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: env.GetEnvStringOrDefault("REDIS_PASSWORD", ""),
			DB:       env.GetEnvIntOrDefault("REDIS_DB", 0),
		})
		seen = reconcile.NewRedisSeen(client, seenTTL)
		log.Print(nil).Info("Event dedupe backed by redis: " + addr)
	} else {
		seen = reconcile.NewMemorySeen(seenTTL)
		log.Print(nil).Info("Event dedupe backed by process memory")
	}
	reconciler := reconcile.NewReconciler(appStore, seen)

	dispatch.Init(appService, appStore)
	webhooks.Init(reconciler)
	admin.Init(appDB, appDispatcher)
}

// Startup resumes batches interrupted by the last shutdown: rows still queued
// or sending are re-enqueued with their persisted schedule.
func Startup() {
	log.Print(nil).Info("Running Startup Tasks")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	jobs, err := appStore.PendingJobs(ctx)
	if err != nil {
		log.Print(nil).Warn("resume pending jobs: " + err.Error())
		return
	}
	appService.Resume(jobs)
}

// Shutdown stops the dispatcher and closes the database.
func Shutdown() {
	appDispatcher.Stop()
	if err := appDB.Close(); err != nil {
		log.Print(nil).Warn("close database: " + err.Error())
	}
}
