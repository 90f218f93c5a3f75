package dispatch

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/internal/campaign"
	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/internal/live"
	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/internal/storage"
	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/pkg/log"
	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/pkg/router"
)

var (
	svc   *campaign.Service
	store *storage.Store

	trackersMu sync.Mutex
	trackers   = make(map[int64]*live.ReplyTracker)
)

// Init wires the controller's collaborators. Called once from route setup.
func Init(service *campaign.Service, st *storage.Store) {
	svc = service
	store = st
}

type CreateCampaignRequest struct {
	ListID      int64              `json:"list_id"`
	ListName    string             `json:"list_name"`
	Contacts    []campaign.Contact `json:"contacts"`
	Templates   []string           `json:"templates"`
	CadenceDays []int              `json:"cadence_days"`
	StartAt     time.Time          `json:"start_at"`
}

// CreateCampaign accepts a contact list plus template pool and schedules the
// batch. Contacts may be inline or referenced by a saved list id.
func CreateCampaign(c *fiber.Ctx) error {
	ctx := userContext(c)

	var req CreateCampaignRequest
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Invalid request body")
	}

	contacts := req.Contacts
	listID := req.ListID
	if len(contacts) == 0 && req.ListID != 0 {
		loaded, err := store.ContactList(ctx, req.ListID)
		if err != nil {
			return router.ResponseBadRequest(c, fmt.Sprintf("Contact list %d not found", req.ListID))
		}
		contacts = loaded
	} else if len(contacts) > 0 && req.ListID == 0 {
		// Persist inline contacts so reply inference can diff the list later.
		id, err := store.SaveContactList(ctx, req.ListName, contacts)
		if err != nil {
			log.Print(c).Warnf("save contact list: %v", err)
		} else {
			listID = id
		}
	}

	res, err := svc.CreateAndSchedule(ctx, campaign.CreateRequest{
		ListID:      listID,
		ListName:    req.ListName,
		Contacts:    contacts,
		Templates:   req.Templates,
		CadenceDays: req.CadenceDays,
		StartAt:     req.StartAt,
	})
	switch {
	case errors.Is(err, campaign.ErrEmptyTemplates):
		return router.ResponseBadRequest(c, "No usable template after trimming")
	case errors.Is(err, campaign.ErrEmptyContacts):
		return router.ResponseBadRequest(c, "Contact list is empty")
	case errors.Is(err, campaign.ErrNoValidNumbers):
		return router.ResponseBadRequest(c, "No contact has a valid number")
	case err != nil:
		log.Print(c).Errorf("create campaign: %v", err)
		return router.ResponseInternalError(c, "Failed to create campaign")
	}

	return router.ResponseCreatedWithData(c, "Campaign scheduled", res)
}

// GetProgress reports the batch counters.
func GetProgress(c *fiber.Ctx) error {
	batchID, err := parseBatchID(c)
	if err != nil {
		return router.ResponseBadRequest(c, "Invalid batch id")
	}

	p, err := svc.Progress(userContext(c), batchID)
	if err != nil {
		log.Print(c).Errorf("batch progress: %v", err)
		return router.ResponseNotFound(c, "Batch not found")
	}
	return router.ResponseSuccessWithData(c, "Batch progress", p)
}

// ListItems returns the deduped, ranked live view of a batch's rows.
func ListItems(c *fiber.Ctx) error {
	batchID, err := parseBatchID(c)
	if err != nil {
		return router.ResponseBadRequest(c, "Invalid batch id")
	}
	ctx := userContext(c)

	items, status, err := snapshot(ctx, batchID)
	if err != nil {
		log.Print(c).Errorf("load items: %v", err)
		return router.ResponseInternalError(c, "Failed to load batch items")
	}

	return router.ResponseSuccessWithData(c, "Batch items", fiber.Map{
		"batch_id": batchID,
		"status":   status,
		"items":    items,
	})
}

// StreamItems pushes the live view over SSE, one snapshot every two seconds,
// until the client disconnects or the batch reaches a terminal roll-up.
func StreamItems(c *fiber.Ctx) error {
	batchID, err := parseBatchID(c)
	if err != nil {
		return router.ResponseBadRequest(c, "Invalid batch id")
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		ctx := context.Background()
		for {
			items, status, err := snapshot(ctx, batchID)
			if err != nil {
				log.CampaignOp(batchID, "stream").Warnf("snapshot: %v", err)
				return
			}

			payload, err := json.Marshal(fiber.Map{
				"batch_id": batchID,
				"status":   status,
				"items":    items,
			})
			if err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}

			if status == campaign.StatusDone {
				return
			}
			time.Sleep(2 * time.Second)
		}
	}))
	return nil
}

// snapshot builds one live view: load rows, coalesce endpoint-fallback noise,
// fold in inferred replies, dedupe per contact and derive the batch status.
func snapshot(ctx context.Context, batchID int64) ([]live.Item, campaign.Status, error) {
	items, err := store.LiveItems(ctx, batchID)
	if err != nil {
		return nil, "", err
	}

	live.CoalesceFallback(items)

	if listID, err := store.BatchListID(ctx, batchID); err == nil && listID != 0 {
		if remaining, err := store.RemainingNumbers(ctx, listID); err == nil {
			t := trackerFor(batchID)
			t.Observe(remaining)
			t.Augment(items)
		}
	}

	deduped := live.Dedupe(items)
	return deduped, live.DeriveBatchStatus(deduped), nil
}

func trackerFor(batchID int64) *live.ReplyTracker {
	trackersMu.Lock()
	defer trackersMu.Unlock()
	t, ok := trackers[batchID]
	if !ok {
		t = live.NewReplyTracker()
		trackers[batchID] = t
	}
	return t
}

func parseBatchID(c *fiber.Ctx) (int64, error) {
	return strconv.ParseInt(c.Params("batch_id"), 10, 64)
}

func userContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}
