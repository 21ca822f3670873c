package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only. No Update/Delete methods are provided.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information about the intake pipeline.
//
// Audit is internal-only; do not expose these records to tenant users.
// Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.Message == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogPipeline records a pipeline milestone (call initiated, transcript
// saved, profile populated).
func (s *Service) LogPipeline(ctx context.Context, message, projectID, userID, callID, metadata string) error {
	return s.Append(ctx, Event{
		Type:      EventTypePipeline,
		ProjectID: projectID,
		UserID:    userID,
		CallID:    callID,
		Message:   message,
		Metadata:  metadata,
	})
}

// LogError records a pipeline failure under its scope name.
func (s *Service) LogError(ctx context.Context, scope string, err error) error {
	if err == nil {
		return nil
	}
	return s.Append(ctx, Event{
		Type:     EventTypeError,
		Message:  scope,
		Metadata: err.Error(),
	})
}
