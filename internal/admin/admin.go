package admin

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/internal/campaign"
	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/pkg/router"
)

var (
	db         *sql.DB
	dispatcher *campaign.Dispatcher
	startedAt  = time.Now()
)

func Init(database *sql.DB, d *campaign.Dispatcher) {
	db = database
	dispatcher = d
}

// GetHealth reports database reachability and the in-memory queue depth.
func GetHealth(c *fiber.Ctx) error {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	dbStatus := "ok"
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		dbStatus = err.Error()
	}

	batches, jobs := dispatcher.QueueDepth()

	health := fiber.Map{
		"database":       dbStatus,
		"queued_batches": batches,
		"queued_jobs":    jobs,
		"uptime_seconds": int(time.Since(startedAt).Seconds()),
	}
	if dbStatus != "ok" {
		return router.ResponseInternalError(c, "Database unreachable")
	}
	return router.ResponseSuccessWithData(c, "Healthy", health)
}

// GetStats summarizes batch counts by roll-up status.
func GetStats(c *fiber.Ctx) error {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM batches GROUP BY status
	`)
	if err != nil {
		return router.ResponseInternalError(c, "Failed to load stats")
	}
	defer rows.Close()

	stats := fiber.Map{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return router.ResponseInternalError(c, "Failed to load stats")
		}
		stats[status] = count
	}
	if err := rows.Err(); err != nil {
		return router.ResponseInternalError(c, "Failed to load stats")
	}
	return router.ResponseSuccessWithData(c, "Batch stats", stats)
}
