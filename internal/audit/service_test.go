package audit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAppendFillsIDAndTimestamp(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	fixed := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	svc.clock = func() time.Time { return fixed }

	err := svc.LogPipeline(context.Background(), "transcript_saved", "p1", "u1", "call-1", "")
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}

	events := repo.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.ID == "" {
		t.Fatalf("expected generated id")
	}
	if !e.CreatedAt.Equal(fixed) {
		t.Fatalf("expected clock timestamp, got %v", e.CreatedAt)
	}
	if e.Type != EventTypePipeline || e.CallID != "call-1" {
		t.Fatalf("unexpected event %+v", e)
	}
}

func TestAppendRejectsEmptyMessage(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	err := svc.Append(context.Background(), Event{Type: EventTypePipeline})
	if !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestObserverRecordsEventWithOwnership(t *testing.T) {
	repo := NewMemoryRepo()
	obs := NewObserver(NewService(repo))

	obs.RecordEvent(context.Background(), "call_initiated", map[string]any{
		"project_id": "p1",
		"call_id":    "call-9",
	})
	obs.RecordError(context.Background(), "vapi.populate_profile", errors.New("boom"))
	obs.RecordError(context.Background(), "vapi.populate_profile", nil)

	events := repo.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].ProjectID != "p1" || events[0].CallID != "call-9" {
		t.Fatalf("expected ownership copied from attrs, got %+v", events[0])
	}
	if events[1].Type != EventTypeError || events[1].Metadata != "boom" {
		t.Fatalf("unexpected error event %+v", events[1])
	}
}
