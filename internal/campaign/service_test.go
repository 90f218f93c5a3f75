package campaign

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestService(store *fakeStore, sender *fakeSender) (*Service, *Dispatcher) {
	d := NewDispatcher(store, sender)
	window := Window{StartHour: 0, EndHour: 24}
	pacing := PacingConfig{DelayMin: time.Millisecond, DelayMax: time.Millisecond}
	return NewService(store, d, window, pacing), d
}

func TestCreateAndSchedule_Validation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		contacts  []Contact
		templates []string
		wantErr   error
	}{
		{"no templates", []Contact{{Number: "11987654321"}}, nil, ErrEmptyTemplates},
		{"only blank templates", []Contact{{Number: "11987654321"}}, []string{"  ", ""}, ErrEmptyTemplates},
		{"no contacts", nil, []string{"oi"}, ErrEmptyContacts},
		{"no valid numbers", []Contact{{Number: "123"}}, []string{"oi"}, ErrNoValidNumbers},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store := newFakeStore()
			svc, d := newTestService(store, newFakeSender())
			defer d.Stop()

			_, err := svc.CreateAndSchedule(context.Background(), CreateRequest{
				Contacts:  tc.contacts,
				Templates: tc.templates,
			})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if store.batches != 0 {
				t.Fatalf("rejected request created a batch")
			}
		})
	}
}

func TestCreateAndSchedule_PersistsAndEnqueues(t *testing.T) {
	store := newFakeStore()
	sender := newFakeSender()
	svc, d := newTestService(store, sender)
	defer d.Stop()

	res, err := svc.CreateAndSchedule(context.Background(), CreateRequest{
		Contacts:  []Contact{{Name: "Ana", Number: "11987654321"}, {Name: "Bia", Number: "11912345678"}},
		Templates: []string{"oi {{nome}}"},
		StartAt:   time.Now(),
	})
	if err != nil {
		t.Fatalf("CreateAndSchedule: %v", err)
	}
	if res.Queued != 2 {
		t.Fatalf("queued = %d, want 2", res.Queued)
	}
	if res.LastAt.Before(res.FirstAt) {
		t.Fatalf("LastAt %v before FirstAt %v", res.LastAt, res.FirstAt)
	}

	store.mu.Lock()
	persisted := len(store.scheduled)
	store.mu.Unlock()
	if persisted != 2 {
		t.Fatalf("expected 2 persisted schedules, got %d", persisted)
	}

	waitFor(t, 2*time.Second, func() bool { return len(sender.sentNumbers()) == 2 })
}

func TestCreateAndSchedule_ClampsToWindow(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	d := NewDispatcher(store, newFakeSender())
	defer d.Stop()

	// Window far in the future so nothing actually sends during the test.
	now := time.Now()
	svc := NewService(store, d, Window{StartHour: 23, EndHour: 24}, PacingConfig{
		DelayMin: time.Second, DelayMax: time.Second,
	})
	if now.Hour() == 23 {
		t.Skip("test window would be open right now")
	}

	res, err := svc.CreateAndSchedule(context.Background(), CreateRequest{
		Contacts:  []Contact{{Number: "11987654321"}},
		Templates: []string{"oi"},
		StartAt:   now,
	})
	if err != nil {
		t.Fatalf("CreateAndSchedule: %v", err)
	}
	if res.FirstAt.Hour() != 23 {
		t.Fatalf("first send at hour %d, want 23", res.FirstAt.Hour())
	}
}

func TestProgress_MergesQueueState(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.progress = &Progress{BatchID: 7, Sent: 3, Failed: 1}
	d := NewDispatcher(store, newFakeSender())
	defer d.Stop()
	svc := NewService(store, d, Window{StartHour: 0, EndHour: 24}, PacingConfig{})

	d.Enqueue(&Batch{ID: 7, CreatedAt: time.Now(), Jobs: []*Job{
		{BatchID: 7, MessageID: 9, ScheduledAt: time.Now().Add(time.Hour)},
	}})

	p, err := svc.Progress(context.Background(), 7)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if p.Sent != 3 || p.Failed != 1 {
		t.Fatalf("store counters lost: %+v", p)
	}
	if p.Queued != 1 {
		t.Fatalf("queued = %d, want in-memory count 1", p.Queued)
	}
}

func TestResume_GroupsByBatch(t *testing.T) {
	store := newFakeStore()
	sender := newFakeSender()
	svc, d := newTestService(store, sender)
	defer d.Stop()

	past := time.Now().Add(-time.Second)
	svc.Resume([]*Job{
		{BatchID: 1, MessageID: 1, To: "5511911110001", ScheduledAt: past},
		{BatchID: 2, MessageID: 2, To: "5511911110002", ScheduledAt: past},
		{BatchID: 1, MessageID: 3, To: "5511911110003", ScheduledAt: past},
	})

	waitFor(t, 2*time.Second, func() bool { return len(sender.sentNumbers()) == 3 })
}
