package campaign

import (
	"context"
	"errors"
	mathrand "math/rand/v2"
	"time"

	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/pkg/log"
)

var (
	ErrEmptyTemplates = errors.New("template pool is empty after trimming")
	ErrEmptyContacts  = errors.New("contact list is empty")
	ErrNoValidNumbers = errors.New("no contact has a valid number")
)

// CreateRequest is one campaign submission: a contact list, a template
// variation pool and an optional follow-up cadence in day offsets.
type CreateRequest struct {
	ListID      int64
	ListName    string
	Contacts    []Contact
	Templates   []string
	CadenceDays []int
	StartAt     time.Time
}

// CreateResult summarizes the accepted campaign.
type CreateResult struct {
	BatchID int64     `json:"batch_id"`
	Queued  int       `json:"queued"`
	FirstAt time.Time `json:"first_at"`
	LastAt  time.Time `json:"last_at"`
}

// Service validates submissions, expands them into paced jobs, persists the
// rows and hands the batch to the dispatcher.
type Service struct {
	store      Store
	dispatcher *Dispatcher
	window     Window
	pacing     PacingConfig
	rng        *mathrand.Rand
}

func NewService(store Store, dispatcher *Dispatcher, window Window, pacing PacingConfig) *Service {
	return &Service{
		store:      store,
		dispatcher: dispatcher,
		window:     window,
		pacing:     pacing,
	}
}

// CreateAndSchedule runs the full submission pipeline. All validation happens
// before the first store write, so a rejected request leaves no partial batch
// behind.
func (s *Service) CreateAndSchedule(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	pool := TrimPool(req.Templates)
	if len(pool) == 0 {
		return nil, ErrEmptyTemplates
	}
	if len(req.Contacts) == 0 {
		return nil, ErrEmptyContacts
	}

	start := req.StartAt
	if start.IsZero() {
		start = time.Now()
	}
	start = s.window.NextOpen(start)

	jobs, seeds := ExpandJobs(req.Contacts, pool, req.CadenceDays, start)
	if len(jobs) == 0 {
		return nil, ErrNoValidNumbers
	}

	batchID, err := s.store.CreateBatch(ctx, req.ListID, req.ListName, len(jobs))
	if err != nil {
		return nil, err
	}

	ids, err := s.store.InsertQueued(ctx, batchID, req.ListID, seeds)
	if err != nil {
		return nil, err
	}
	for i, j := range jobs {
		j.BatchID = batchID
		if i < len(ids) {
			j.MessageID = ids[i]
		}
	}

	Schedule(jobs, time.Now(), s.pacing, s.rng)

	for _, j := range jobs {
		if j.MessageID == 0 {
			continue
		}
		if err := s.store.UpdateScheduledAt(ctx, j.MessageID, j.ScheduledAt); err != nil {
			log.CampaignOp(batchID, "schedule").Warnf("persist scheduled_at for %d: %v", j.MessageID, err)
		}
	}

	s.dispatcher.Enqueue(&Batch{ID: batchID, CreatedAt: time.Now(), Jobs: jobs})
	s.dispatcher.Kick()

	res := &CreateResult{
		BatchID: batchID,
		Queued:  len(jobs),
		FirstAt: jobs[0].ScheduledAt,
		LastAt:  jobs[len(jobs)-1].ScheduledAt,
	}
	log.CampaignOp(batchID, "create").
		WithField("queued", res.Queued).
		Info("campaign scheduled")
	return res, nil
}

// Progress reports batch counters from the store plus the in-memory drain flag.
func (s *Service) Progress(ctx context.Context, batchID int64) (*Progress, error) {
	p, err := s.store.BatchProgress(ctx, batchID)
	if err != nil {
		return nil, err
	}
	s.dispatcher.mu.Lock()
	if b, ok := s.dispatcher.batches[batchID]; ok {
		p.InProgress = b.InProgress
		p.Queued = len(b.Jobs)
	}
	s.dispatcher.mu.Unlock()
	return p, nil
}

// Resume re-enqueues jobs that were still queued when the process last
// stopped, typically called once at boot.
func (s *Service) Resume(jobs []*Job) {
	if len(jobs) == 0 {
		return
	}
	byBatch := make(map[int64][]*Job)
	for _, j := range jobs {
		byBatch[j.BatchID] = append(byBatch[j.BatchID], j)
	}
	for id, pending := range byBatch {
		s.dispatcher.Enqueue(&Batch{ID: id, CreatedAt: time.Now(), Jobs: pending})
		log.CampaignOp(id, "resume").
			WithField("pending", len(pending)).
			Info("resumed queued jobs")
	}
	s.dispatcher.Kick()
}
