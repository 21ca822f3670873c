package vapi

import (
	"context"
	"errors"
	"testing"
	"time"

	"intake-platform/internal/profile"
	"intake-platform/internal/projects"
	"intake-platform/internal/transcripts"
)

/* ===================== FAKES ===================== */

type fakeVendor struct {
	calls       map[string]Call
	recent      []Call
	created     []CreateCallRequest
	getAttempts int

	// notFoundUntil makes GetCall return not-found for the first N attempts.
	notFoundUntil int
}

func (f *fakeVendor) GetCall(_ context.Context, callID string) (Call, error) {
	f.getAttempts++
	if f.getAttempts <= f.notFoundUntil {
		return Call{}, ErrCallNotFound
	}
	c, ok := f.calls[callID]
	if !ok {
		return Call{}, ErrCallNotFound
	}
	return c, nil
}

func (f *fakeVendor) ListCalls(context.Context, int) ([]Call, error) {
	return f.recent, nil
}

func (f *fakeVendor) CreateCall(_ context.Context, req CreateCallRequest) (Call, error) {
	f.created = append(f.created, req)
	return Call{ID: "new-call"}, nil
}

type fakePopulator struct {
	populated int
	fail      bool
}

func (f *fakePopulator) GetOrCreateProfile(_ context.Context, userID, projectID string) (profile.Profile, error) {
	if f.fail {
		return profile.Profile{}, errors.New("profile backend down")
	}
	return profile.Profile{ID: "prof-1", UserID: userID, ProjectID: projectID}, nil
}

func (f *fakePopulator) PopulateFromIntake(context.Context, string, profile.Intake, string) error {
	if f.fail {
		return errors.New("profile backend down")
	}
	f.populated++
	return nil
}

type fakeProjects struct {
	owned map[string]string // projectID -> userID
}

func (f *fakeProjects) GetOwned(_ context.Context, projectID, userID string) (projects.Project, error) {
	if f.owned[projectID] != userID {
		return projects.Project{}, projects.ErrNotFound
	}
	return projects.Project{ID: projectID, UserID: userID, Name: "Demo Funnel"}, nil
}

type fakeLimiter struct {
	acquired int
	released int
	deny     bool
}

func (f *fakeLimiter) Acquire(context.Context, string) (bool, error) {
	if f.deny {
		return false, nil
	}
	f.acquired++
	return true, nil
}

func (f *fakeLimiter) Release(context.Context, string) error {
	f.released++
	return nil
}

func newTestService(vendor *fakeVendor, repo *transcripts.MemoryRepo, pop ProfilePopulator) *Service {
	s := NewService(vendor, repo, &fakeProjects{owned: map[string]string{"p1": "u1"}}, pop, nil, nil)
	s.sleep = func(time.Duration) {}
	return s
}

func endedCall(id string, start, end time.Time) Call {
	return Call{
		ID:         id,
		Status:     "ended",
		StartedAt:  &start,
		EndedAt:    &end,
		Transcript: "User: hi\nAssistant: hello",
		Metadata:   map[string]any{"userId": "u1", "funnelProjectId": "p1"},
	}
}

/* ===================== TESTS ===================== */

func TestIngestIsIdempotentAcrossBothEntryPaths(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(3*time.Minute + 15*time.Second)
	vendor := &fakeVendor{calls: map[string]Call{"call-1": endedCall("call-1", start, end)}}
	repo := transcripts.NewMemoryRepo()
	pop := &fakePopulator{}
	svc := newTestService(vendor, repo, pop)
	ctx := context.Background()

	// webhook path
	if err := svc.HandleWebhookEvent(ctx, WebhookEvent{
		Type:    EventCallEnded,
		Payload: map[string]any{"call": map[string]any{"id": "call-1"}},
	}); err != nil {
		t.Fatalf("webhook path: %v", err)
	}

	// client path racing for the same identity
	result, err := svc.SaveFromClient(ctx, ClientSaveRequest{CallID: "call-1", ProjectID: "p1", UserID: "u1"})
	if err != nil {
		t.Fatalf("client path: %v", err)
	}

	if repo.Len() != 1 {
		t.Fatalf("expected exactly one row per call identity, got %d", repo.Len())
	}
	if result.DurationSeconds != 195 {
		t.Fatalf("expected duration 195, got %d", result.DurationSeconds)
	}
	rec, _, _ := repo.GetByCallID(ctx, "call-1")
	if rec.Status != transcripts.StatusCompleted {
		t.Fatalf("expected completed, got %s", rec.Status)
	}
	if pop.populated != 2 {
		t.Fatalf("expected populator invoked on both paths, got %d", pop.populated)
	}
}

func TestCorrelationPicksClosestWithinWindow(t *testing.T) {
	target := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tooFar := target.Add(-200 * time.Second)
	closest := target.Add(-90 * time.Second)
	vendor := &fakeVendor{
		recent: []Call{
			{ID: "far", StartedAt: &tooFar},
			{ID: "near", StartedAt: &closest},
		},
	}
	svc := newTestService(vendor, transcripts.NewMemoryRepo(), nil)

	got, err := svc.correlateByStartTime(context.Background(), target)
	if err != nil {
		t.Fatalf("correlate: %v", err)
	}
	if got != "near" {
		t.Fatalf("expected near call selected, got %q", got)
	}
}

func TestCorrelationRejectsOutsideWindow(t *testing.T) {
	target := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	old := target.Add(-400 * time.Second)
	vendor := &fakeVendor{recent: []Call{{ID: "stale", StartedAt: &old}}}
	svc := newTestService(vendor, transcripts.NewMemoryRepo(), nil)

	if _, err := svc.correlateByStartTime(context.Background(), target); !errors.Is(err, ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}
}

func TestDurationSeconds(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 1, 10, 3, 15, 0, time.UTC)
	if got := durationSeconds(&start, &end); got != 195 {
		t.Fatalf("expected 195, got %d", got)
	}
	if got := durationSeconds(nil, &end); got != 0 {
		t.Fatalf("expected 0 for missing start, got %d", got)
	}
	if got := durationSeconds(&start, nil); got != 0 {
		t.Fatalf("expected 0 for missing end, got %d", got)
	}
}

func TestPopulatorFailureDoesNotFailIngestion(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Minute)
	vendor := &fakeVendor{calls: map[string]Call{"call-1": endedCall("call-1", start, end)}}
	repo := transcripts.NewMemoryRepo()
	svc := newTestService(vendor, repo, &fakePopulator{fail: true})

	result, err := svc.SaveFromClient(context.Background(), ClientSaveRequest{CallID: "call-1", ProjectID: "p1", UserID: "u1"})
	if err != nil {
		t.Fatalf("expected success despite populator failure, got %v", err)
	}
	if result.CallID != "call-1" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if repo.Len() != 1 {
		t.Fatalf("expected transcript persisted, got %d rows", repo.Len())
	}
}

func TestFetchArtifactRetriesNotFound(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Minute)
	vendor := &fakeVendor{
		calls:         map[string]Call{"call-1": endedCall("call-1", start, end)},
		notFoundUntil: 2,
	}
	svc := newTestService(vendor, transcripts.NewMemoryRepo(), nil)

	if _, err := svc.SaveFromClient(context.Background(), ClientSaveRequest{CallID: "call-1", ProjectID: "p1", UserID: "u1"}); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if vendor.getAttempts != 3 {
		t.Fatalf("expected 3 fetch attempts, got %d", vendor.getAttempts)
	}
}

func TestFetchArtifactGivesUpAfterBoundedRetries(t *testing.T) {
	vendor := &fakeVendor{calls: map[string]Call{}, notFoundUntil: 100}
	svc := newTestService(vendor, transcripts.NewMemoryRepo(), nil)

	_, err := svc.SaveFromClient(context.Background(), ClientSaveRequest{CallID: "gone", ProjectID: "p1", UserID: "u1"})
	if !errors.Is(err, ErrCallNotFound) {
		t.Fatalf("expected not-found after bounded retries, got %v", err)
	}
	if vendor.getAttempts != svc.fetchRetries+1 {
		t.Fatalf("expected %d attempts, got %d", svc.fetchRetries+1, vendor.getAttempts)
	}
}

func TestCallStartedCreatesOptimisticRow(t *testing.T) {
	repo := transcripts.NewMemoryRepo()
	svc := newTestService(&fakeVendor{}, repo, nil)
	ctx := context.Background()

	err := svc.HandleWebhookEvent(ctx, WebhookEvent{
		Type: EventCallStarted,
		Payload: map[string]any{
			"call": map[string]any{
				"id":       "call-9",
				"metadata": map[string]any{"userId": "u1", "funnelProjectId": "p1"},
			},
		},
	})
	if err != nil {
		t.Fatalf("call.started: %v", err)
	}
	rec, ok, _ := repo.GetByCallID(ctx, "call-9")
	if !ok || rec.Status != transcripts.StatusInProgress {
		t.Fatalf("expected in_progress row, got ok=%v rec=%+v", ok, rec)
	}
}

func TestCallStartedWithoutOwnershipIsNoop(t *testing.T) {
	repo := transcripts.NewMemoryRepo()
	svc := newTestService(&fakeVendor{}, repo, nil)

	err := svc.HandleWebhookEvent(context.Background(), WebhookEvent{
		Type:    EventCallStarted,
		Payload: map[string]any{"call": map[string]any{"id": "call-9"}},
	})
	if err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
	if repo.Len() != 0 {
		t.Fatalf("expected no rows, got %d", repo.Len())
	}
}

func TestTranscriptEventIsAcceptedNoop(t *testing.T) {
	svc := newTestService(&fakeVendor{}, transcripts.NewMemoryRepo(), nil)
	if err := svc.HandleWebhookEvent(context.Background(), WebhookEvent{Type: EventTranscript, Payload: map[string]any{}}); err != nil {
		t.Fatalf("transcript event must not error, got %v", err)
	}
}

func TestInitiateCallVerifiesOwnershipAndCap(t *testing.T) {
	repo := transcripts.NewMemoryRepo()
	vendor := &fakeVendor{}
	limiter := &fakeLimiter{}
	svc := NewService(vendor, repo, &fakeProjects{owned: map[string]string{"p1": "u1"}}, nil, limiter, nil)
	svc.sleep = func(time.Duration) {}
	ctx := context.Background()

	callID, err := svc.InitiateCall(ctx, "u1", "p1")
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if callID != "new-call" {
		t.Fatalf("expected vendor call id, got %q", callID)
	}
	if limiter.acquired != 1 {
		t.Fatalf("expected cap acquired")
	}
	rec, ok, _ := repo.GetByCallID(ctx, "new-call")
	if !ok || rec.Status != transcripts.StatusInProgress {
		t.Fatalf("expected in_progress row, got ok=%v rec=%+v", ok, rec)
	}
	if len(vendor.created) != 1 {
		t.Fatalf("expected one vendor call created")
	}
	meta := vendor.created[0].Metadata
	if meta["funnelProjectId"] != "p1" || meta["userId"] != "u1" || meta["projectName"] != "Demo Funnel" {
		t.Fatalf("unexpected call metadata: %v", meta)
	}

	// not the owner
	if _, err := svc.InitiateCall(ctx, "intruder", "p1"); !errors.Is(err, projects.ErrNotFound) {
		t.Fatalf("expected ownership failure, got %v", err)
	}

	// cap exhausted
	limiter.deny = true
	if _, err := svc.InitiateCall(ctx, "u1", "p1"); !errors.Is(err, ErrTooManyCalls) {
		t.Fatalf("expected cap rejection, got %v", err)
	}
}

func TestFinalizeReleasesCap(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Minute)
	vendor := &fakeVendor{calls: map[string]Call{"call-1": endedCall("call-1", start, end)}}
	limiter := &fakeLimiter{}
	svc := NewService(vendor, transcripts.NewMemoryRepo(), nil, nil, limiter, nil)
	svc.sleep = func(time.Duration) {}

	if _, err := svc.SaveFromClient(context.Background(), ClientSaveRequest{CallID: "call-1", ProjectID: "p1", UserID: "u1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if limiter.released != 1 {
		t.Fatalf("expected cap released on completion")
	}
}
