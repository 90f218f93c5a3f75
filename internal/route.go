package internal

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/pkg/auth"
	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/pkg/router"

	ctlAdmin "github.com/gdbrns/go-whatsapp-campaign-dispatcher/internal/admin"
	ctlDispatch "github.com/gdbrns/go-whatsapp-campaign-dispatcher/internal/dispatch"
	ctlIndex "github.com/gdbrns/go-whatsapp-campaign-dispatcher/internal/index"
	ctlWebhooks "github.com/gdbrns/go-whatsapp-campaign-dispatcher/internal/webhooks"
)

func Routes(app *fiber.App) {
	// Route for Index
	// ---------------------------------------------
	if router.BaseURL == "" {
		app.Get("/", ctlIndex.Index)
	} else {
		app.Get(router.BaseURL, ctlIndex.Index)
		app.Get(router.BaseURL+"/", ctlIndex.Index)
	}

	// Campaign Routes
	// ---------------------------------------------
	app.Post(router.BaseURL+"/campaigns", ctlDispatch.CreateCampaign)
	app.Get(router.BaseURL+"/campaigns/:batch_id/progress", ctlDispatch.GetProgress)
	app.Get(router.BaseURL+"/campaigns/:batch_id/items", ctlDispatch.ListItems)
	app.Get(router.BaseURL+"/campaigns/:batch_id/stream", ctlDispatch.StreamItems)

	// Webhook Routes (X-Webhook-Secret authentication when configured)
	// ---------------------------------------------
	webhookMiddleware := auth.WebhookAuth()
	app.Post(router.BaseURL+"/webhooks/inbound", webhookMiddleware, ctlWebhooks.Inbound)

	// Admin Routes (X-Admin-Secret authentication)
	// ---------------------------------------------
	adminMiddleware := auth.AdminAuth()
	app.Get(router.BaseURL+"/admin/health", adminMiddleware, ctlAdmin.GetHealth)
	app.Get(router.BaseURL+"/admin/stats", adminMiddleware, ctlAdmin.GetStats)
}
