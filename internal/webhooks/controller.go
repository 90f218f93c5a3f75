package webhooks

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/internal/reconcile"
	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/pkg/log"
	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/pkg/router"
)

var reconciler *reconcile.Reconciler

func Init(r *reconcile.Reconciler) {
	reconciler = r
}

// Inbound receives provider webhooks. The body may be a single event object
// or an array of them; each is reconciled independently. The endpoint always
// answers 200, even for undecodable bodies, so the provider is never driven
// into a retry storm.
func Inbound(c *fiber.Ctx) error {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	bodies, err := decodeEvents(c.Body())
	if err != nil {
		// Absorb the junk as one ignored event; it still hits the audit
		// trail through the reconciler.
		log.Print(c).Warnf("undecodable webhook body: %v", err)
		bodies = []map[string]any{{"unparseable_body": string(c.Body())}}
	}

	outcomes := make([]string, 0, len(bodies))
	for _, body := range bodies {
		ev := reconcile.Normalize(body)
		outcome := reconciler.Apply(ctx, ev)
		outcomes = append(outcomes, string(outcome))
	}

	log.Print(c).WithField("events", len(bodies)).Debug("webhook processed")
	return router.ResponseSuccessWithData(c, "Processed", fiber.Map{"outcomes": outcomes})
}

// decodeEvents accepts both the array and single-object webhook shapes.
func decodeEvents(raw []byte) ([]map[string]any, error) {
	var many []map[string]any
	if err := json.Unmarshal(raw, &many); err == nil {
		return many, nil
	}
	var one map[string]any
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, err
	}
	return []map[string]any{one}, nil
}
