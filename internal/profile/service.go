package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"intake-platform/internal/observer"
	"intake-platform/pkg/logger"
)

var ErrInvalidArgument = errors.New("profile: invalid argument")

// Service is the Business Profile Populator. It is invoked as a best-effort
// side effect after a transcript completes; callers catch and log failures
// rather than failing the parent request.
type Service struct {
	repo      Repository
	extractor FactExtractor // optional; nil disables LLM fallback
	obs       observer.Observer
	clock     func() time.Time
}

func NewService(repo Repository, extractor FactExtractor, obs observer.Observer) *Service {
	if obs == nil {
		obs = observer.Nop{}
	}
	return &Service{repo: repo, extractor: extractor, obs: obs, clock: time.Now}
}

// GetOrCreateProfile returns the project's profile, creating an empty one on
// first use.
func (s *Service) GetOrCreateProfile(ctx context.Context, userID, projectID string) (Profile, error) {
	if userID == "" || projectID == "" {
		return Profile{}, ErrInvalidArgument
	}
	if s.repo == nil {
		return Profile{}, errors.New("profile: repository not configured")
	}

	existing, ok, err := s.repo.GetByProject(ctx, projectID)
	if err != nil {
		return Profile{}, err
	}
	if ok {
		return existing, nil
	}

	created, err := s.repo.Save(ctx, Profile{
		UserID:    userID,
		ProjectID: projectID,
		Fields:    map[string]any{},
	})
	if err != nil {
		return Profile{}, err
	}
	s.obs.RecordEvent(ctx, "profile_created", map[string]any{"project_id": projectID})
	return created, nil
}

// PopulateFromIntake merges intake-derived facts into a profile.
//
// Merge policy: fill gaps only. A non-empty existing field is never
// overwritten by later intake data; transcript provenance is appended under
// an intake history key.
func (s *Service) PopulateFromIntake(ctx context.Context, profileID string, intake Intake, source string) error {
	if profileID == "" {
		return ErrInvalidArgument
	}
	if source == "" {
		source = SourceVoice
	}
	if s.repo == nil {
		return errors.New("profile: repository not configured")
	}

	p, err := s.repo.GetByID(ctx, profileID)
	if err != nil {
		return err
	}

	facts := intake.ExtractedData
	if len(facts) == 0 && s.extractor != nil {
		// LLM fallback; extraction failure leaves facts empty, never fails
		// the merge.
		extracted, err := s.extractor.Extract(ctx, intake.TranscriptText)
		if err != nil {
			s.obs.RecordError(ctx, "profile.extract", err)
			logger.From(ctx).Warn("fact extraction failed, merging without facts", "profile_id", profileID, "err", err)
		} else {
			facts = extracted
		}
	}

	merged := mergeFields(p.Fields, facts)
	merged["last_intake"] = map[string]any{
		"source":      source,
		"received_at": s.clock().UTC().Format(time.RFC3339),
		"chars":       len(intake.TranscriptText),
	}
	p.Fields = merged

	if _, err := s.repo.Save(ctx, p); err != nil {
		return fmt.Errorf("profile save failed: %w", err)
	}
	s.obs.RecordEvent(ctx, "profile_populated", map[string]any{
		"profile_id": profileID,
		"source":     source,
		"facts":      len(facts),
	})
	return nil
}

// mergeFields returns existing with gaps filled from incoming.
func mergeFields(existing, incoming map[string]any) map[string]any {
	out := make(map[string]any, len(existing)+len(incoming))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range incoming {
		if cur, ok := out[k]; ok && !isEmptyValue(cur) {
			continue
		}
		if isEmptyValue(v) {
			continue
		}
		out[k] = v
	}
	return out
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}
