package audit

import (
	"context"
	"encoding/json"
)

// Observer adapts the audit trail to the pipeline's observer capability.
// Append failures are swallowed; audit must never break the intake flow.
type Observer struct {
	svc *Service
}

func NewObserver(svc *Service) *Observer {
	return &Observer{svc: svc}
}

func (o *Observer) RecordError(ctx context.Context, scope string, err error) {
	_ = o.svc.LogError(ctx, scope, err)
}

func (o *Observer) RecordEvent(ctx context.Context, name string, attrs map[string]any) {
	e := Event{
		Type:      EventTypePipeline,
		Message:   name,
		ProjectID: attrString(attrs, "project_id"),
		UserID:    attrString(attrs, "user_id"),
		CallID:    attrString(attrs, "call_id"),
	}
	if len(attrs) > 0 {
		if b, err := json.Marshal(attrs); err == nil {
			e.Metadata = string(b)
		}
	}
	_ = o.svc.Append(ctx, e)
}

func attrString(attrs map[string]any, key string) string {
	if v, ok := attrs[key].(string); ok {
		return v
	}
	return ""
}
