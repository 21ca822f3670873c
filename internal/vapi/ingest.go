package vapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"intake-platform/internal/observer"
	"intake-platform/internal/profile"
	"intake-platform/internal/projects"
	"intake-platform/internal/transcripts"
	"intake-platform/pkg/logger"
)

// VendorAPI is the vendor surface the ingestion service needs. *Client
// satisfies it; tests substitute fakes.
type VendorAPI interface {
	GetCall(ctx context.Context, callID string) (Call, error)
	ListCalls(ctx context.Context, limit int) ([]Call, error)
	CreateCall(ctx context.Context, req CreateCallRequest) (Call, error)
}

// ProfilePopulator is the opaque downstream consumer invoked after a
// transcript completes. Failures are logged and swallowed by this package.
type ProfilePopulator interface {
	GetOrCreateProfile(ctx context.Context, userID, projectID string) (profile.Profile, error)
	PopulateFromIntake(ctx context.Context, profileID string, intake profile.Intake, source string) error
}

// ConcurrencyLimiter caps concurrent intake calls per project.
type ConcurrencyLimiter interface {
	Acquire(ctx context.Context, projectID string) (bool, error)
	Release(ctx context.Context, projectID string) error
}

var (
	ErrInvalidRequest = errors.New("vapi: invalid request")

	// ErrNoMatch means no vendor call started within the match window of the
	// client-provided timestamp. The transcript stays unsaved; this is an
	// accepted limitation surfaced as not-found.
	ErrNoMatch = errors.New("vapi: no call matched the start timestamp")

	ErrTooManyCalls = errors.New("vapi: project call limit reached")
)

// matchWindow is how far a vendor call's start time may be from the
// client-observed start time and still correlate.
const defaultMatchWindow = 3 * time.Minute

// Service is the single write path for transcript records, reachable via the
// vendor webhook and the client-initiated save request. Both entry paths
// converge on finalize, so behavior is identical regardless of how an ended
// call was reported. Persistence is keyed by call identity with upsert
// semantics; duplicate arrivals are not an error.
type Service struct {
	vendor    VendorAPI
	repo      transcripts.Repository
	projects  projects.Repository
	populator ProfilePopulator
	limiter   ConcurrencyLimiter // optional
	obs       observer.Observer

	clock func() time.Time
	sleep func(time.Duration)

	matchWindow time.Duration
	listLimit   int

	// Bounded retry for the artifact fetch. The vendor needs a short window
	// after call end before the artifact is available; the client-side delay
	// is a heuristic, not a contract, so the server retries on not-found.
	fetchRetries int
	fetchBackoff time.Duration
}

func NewService(vendor VendorAPI, repo transcripts.Repository, projRepo projects.Repository, populator ProfilePopulator, limiter ConcurrencyLimiter, obs observer.Observer) *Service {
	if obs == nil {
		obs = observer.Nop{}
	}
	return &Service{
		vendor:       vendor,
		repo:         repo,
		projects:     projRepo,
		populator:    populator,
		limiter:      limiter,
		obs:          obs,
		clock:        time.Now,
		sleep:        time.Sleep,
		matchWindow:  defaultMatchWindow,
		listLimit:    50,
		fetchRetries: 3,
		fetchBackoff: 2 * time.Second,
	}
}

// SaveResult is returned to the client save path.
type SaveResult struct {
	CallID          string `json:"call_id"`
	Transcript      string `json:"transcript"`
	DurationSeconds int    `json:"duration_seconds"`
}

/* ===================== WEBHOOK PATH ===================== */

// HandleWebhookEvent dispatches a verified vendor event. Unknown event types
// are acknowledged and ignored.
func (s *Service) HandleWebhookEvent(ctx context.Context, ev WebhookEvent) error {
	switch ev.Type {
	case EventCallStarted:
		return s.handleCallStarted(ctx, ev)
	case EventCallEnded:
		return s.handleCallEnded(ctx, ev)
	case EventTranscript:
		// Hook point for partial-transcript persistence once interim
		// fragments are worth storing. Must not error.
		return nil
	default:
		return nil
	}
}

func (s *Service) handleCallStarted(ctx context.Context, ev WebhookEvent) error {
	log := logger.From(ctx)

	callID, ok := ExtractCallID(ev.Payload)
	if !ok {
		log.Warn("call.started event carried no call id, skipping")
		return nil
	}
	projectID := metadataString(ev.Payload, "funnelProjectId")
	userID := metadataString(ev.Payload, "userId")
	if projectID == "" || userID == "" {
		// Non-fatal: the record is created at call end instead.
		log.Warn("call.started missing ownership metadata, skipping optimistic row", "call_id", callID)
		return nil
	}

	_, err := s.repo.Upsert(ctx, transcripts.Record{
		CallID:    callID,
		ProjectID: projectID,
		UserID:    userID,
		Status:    transcripts.StatusInProgress,
	})
	if err != nil {
		return fmt.Errorf("optimistic transcript row failed: %w", err)
	}
	s.obs.RecordEvent(ctx, "call_started", map[string]any{"call_id": callID, "project_id": projectID})
	return nil
}

func (s *Service) handleCallEnded(ctx context.Context, ev WebhookEvent) error {
	callID, ok := ExtractCallID(ev.Payload)
	if !ok {
		// Without an identity there is nothing to correlate against;
		// the client save path remains as the fallback.
		logger.From(ctx).Warn("call.ended event carried no call id, skipping")
		return nil
	}
	userID := metadataString(ev.Payload, "userId")
	projectID := metadataString(ev.Payload, "funnelProjectId")

	_, err := s.finalize(ctx, callID, userID, projectID)
	return err
}

/* ===================== CLIENT SAVE PATH ===================== */

// SaveFromClient handles the client-initiated fetch-and-save request. When no
// call identity is known, the client's locally captured start time is matched
// against the vendor's recent calls.
func (s *Service) SaveFromClient(ctx context.Context, req ClientSaveRequest) (SaveResult, error) {
	if req.ProjectID == "" || req.UserID == "" {
		return SaveResult{}, ErrInvalidRequest
	}

	callID := req.CallID
	if callID == "" {
		if req.CallStartTimestamp == nil {
			return SaveResult{}, ErrInvalidRequest
		}
		matched, err := s.correlateByStartTime(ctx, *req.CallStartTimestamp)
		if err != nil {
			return SaveResult{}, err
		}
		callID = matched
	}

	rec, err := s.finalize(ctx, callID, req.UserID, req.ProjectID)
	if err != nil {
		return SaveResult{}, err
	}
	return SaveResult{
		CallID:          rec.CallID,
		Transcript:      rec.TranscriptText,
		DurationSeconds: rec.DurationSeconds,
	}, nil
}

// correlateByStartTime picks the vendor call whose start time is closest to
// target and within the match window.
func (s *Service) correlateByStartTime(ctx context.Context, target time.Time) (string, error) {
	calls, err := s.vendor.ListCalls(ctx, s.listLimit)
	if err != nil {
		return "", err
	}

	var (
		bestID   string
		bestDiff time.Duration
	)
	for _, c := range calls {
		if c.StartedAt == nil || c.ID == "" {
			continue
		}
		diff := target.Sub(*c.StartedAt)
		if diff < 0 {
			diff = -diff
		}
		if bestID == "" || diff < bestDiff {
			bestID = c.ID
			bestDiff = diff
		}
	}
	if bestID == "" || bestDiff > s.matchWindow {
		return "", ErrNoMatch
	}
	return bestID, nil
}

/* ===================== SHARED FINALIZE ===================== */

// finalize fetches the ended call's artifact and upserts the completed
// transcript row, then kicks the profile populator as a non-critical side
// effect. userID/projectID may be empty on the webhook path; ownership then
// falls back to the artifact metadata and the optimistic row.
func (s *Service) finalize(ctx context.Context, callID, userID, projectID string) (transcripts.Record, error) {
	call, err := s.fetchArtifact(ctx, callID)
	if err != nil {
		return transcripts.Record{}, err
	}

	existing, haveExisting, err := s.repo.GetByCallID(ctx, callID)
	if err != nil {
		return transcripts.Record{}, err
	}

	if userID == "" {
		userID = callMetadataString(call, "userId")
	}
	if projectID == "" {
		projectID = callMetadataString(call, "funnelProjectId")
	}
	if haveExisting {
		if userID == "" {
			userID = existing.UserID
		}
		if projectID == "" {
			projectID = existing.ProjectID
		}
	}

	// Prefer the artifact's own transcript over any previously summarized
	// text already on the row.
	text := call.Transcript
	if text == "" && haveExisting {
		text = existing.TranscriptText
	}
	if text == "" {
		text = call.Summary
	}

	var extracted map[string]any
	if call.Analysis != nil {
		extracted = call.Analysis.StructuredData
	}

	meta := map[string]any{}
	if call.RecordingURL != "" {
		meta["recording_url"] = call.RecordingURL
	}
	if call.EndedReason != "" {
		meta["ended_reason"] = call.EndedReason
	}
	if call.Cost > 0 {
		meta["cost"] = call.Cost
	}
	summary := call.Summary
	if summary == "" && call.Analysis != nil {
		summary = call.Analysis.Summary
	}
	if summary != "" {
		meta["summary"] = summary
	}

	rec, err := s.repo.Upsert(ctx, transcripts.Record{
		CallID:          callID,
		ProjectID:       projectID,
		UserID:          userID,
		Status:          transcripts.StatusCompleted,
		TranscriptText:  text,
		ExtractedData:   extracted,
		DurationSeconds: durationSeconds(call.StartedAt, call.EndedAt),
		Metadata:        meta,
	})
	if err != nil {
		return transcripts.Record{}, fmt.Errorf("transcript upsert failed: %w", err)
	}

	if s.limiter != nil && projectID != "" {
		if err := s.limiter.Release(ctx, projectID); err != nil {
			s.obs.RecordError(ctx, "vapi.limiter_release", err)
		}
	}

	s.populateProfile(ctx, rec)
	return rec, nil
}

// populateProfile runs the Business Profile Populator inside its own error
// boundary. Voice intake must never be blocked by profile-population issues.
func (s *Service) populateProfile(ctx context.Context, rec transcripts.Record) {
	if s.populator == nil || rec.UserID == "" || rec.ProjectID == "" {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			s.obs.RecordError(ctx, "vapi.populate_profile", fmt.Errorf("panic: %v", p))
		}
	}()

	prof, err := s.populator.GetOrCreateProfile(ctx, rec.UserID, rec.ProjectID)
	if err != nil {
		s.obs.RecordError(ctx, "vapi.populate_profile", err)
		logger.From(ctx).Warn("profile lookup failed after transcript save", "call_id", rec.CallID, "err", err)
		return
	}
	err = s.populator.PopulateFromIntake(ctx, prof.ID, profile.Intake{
		TranscriptText: rec.TranscriptText,
		ExtractedData:  rec.ExtractedData,
	}, profile.SourceVoice)
	if err != nil {
		s.obs.RecordError(ctx, "vapi.populate_profile", err)
		logger.From(ctx).Warn("profile population failed after transcript save", "call_id", rec.CallID, "err", err)
	}
}

// fetchArtifact retries not-found responses with exponential backoff; the
// artifact for a just-ended call lags its webhook by several seconds.
func (s *Service) fetchArtifact(ctx context.Context, callID string) (Call, error) {
	backoff := s.fetchBackoff
	for attempt := 0; ; attempt++ {
		call, err := s.vendor.GetCall(ctx, callID)
		if err == nil {
			return call, nil
		}
		if !errors.Is(err, ErrCallNotFound) || attempt >= s.fetchRetries {
			return Call{}, err
		}
		s.sleep(backoff)
		backoff *= 2
	}
}

/* ===================== CALL INITIATION ===================== */

// InitiateCall verifies project ownership, starts a vendor call carrying
// ownership metadata, and inserts the optimistic in-progress row.
func (s *Service) InitiateCall(ctx context.Context, userID, projectID string) (string, error) {
	if userID == "" || projectID == "" {
		return "", ErrInvalidRequest
	}
	if s.projects == nil {
		return "", errors.New("vapi: project repository not configured")
	}

	proj, err := s.projects.GetOwned(ctx, projectID, userID)
	if err != nil {
		return "", err
	}

	acquired := false
	if s.limiter != nil {
		ok, err := s.limiter.Acquire(ctx, projectID)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", ErrTooManyCalls
		}
		acquired = true
	}

	call, err := s.vendor.CreateCall(ctx, CreateCallRequest{
		Metadata: map[string]any{
			"userId":          userID,
			"funnelProjectId": projectID,
			"projectName":     proj.Name,
		},
	})
	if err != nil {
		if acquired {
			if rerr := s.limiter.Release(ctx, projectID); rerr != nil {
				s.obs.RecordError(ctx, "vapi.limiter_release", rerr)
			}
		}
		return "", err
	}

	if _, err := s.repo.Upsert(ctx, transcripts.Record{
		CallID:    call.ID,
		ProjectID: projectID,
		UserID:    userID,
		Status:    transcripts.StatusInProgress,
	}); err != nil {
		return "", fmt.Errorf("optimistic transcript row failed: %w", err)
	}

	s.obs.RecordEvent(ctx, "call_initiated", map[string]any{"call_id": call.ID, "project_id": projectID})
	return call.ID, nil
}

/* ===================== HELPERS ===================== */

// durationSeconds computes the call duration; 0 when either timestamp is
// missing or the interval is negative.
func durationSeconds(startedAt, endedAt *time.Time) int {
	if startedAt == nil || endedAt == nil {
		return 0
	}
	d := (*endedAt).Sub(*startedAt)
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}

func callMetadataString(c Call, key string) string {
	if c.Metadata == nil {
		return ""
	}
	if v, ok := c.Metadata[key].(string); ok {
		return v
	}
	return ""
}
