package profile

import (
	"context"
	"errors"
	"testing"
)

type failingExtractor struct{}

func (failingExtractor) Extract(context.Context, string) (map[string]any, error) {
	return nil, errors.New("extractor down")
}

type staticExtractor struct {
	facts map[string]any
}

func (e staticExtractor) Extract(context.Context, string) (map[string]any, error) {
	return e.facts, nil
}

func TestGetOrCreateProfileIsStable(t *testing.T) {
	svc := NewService(NewMemoryRepo(), nil, nil)
	ctx := context.Background()

	a, err := svc.GetOrCreateProfile(ctx, "u1", "p1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b, err := svc.GetOrCreateProfile(ctx, "u1", "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a.ID != b.ID {
		t.Fatalf("expected one profile per project, got %q and %q", a.ID, b.ID)
	}
}

func TestPopulateFromIntakeFillsGapsOnly(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	p, err := svc.GetOrCreateProfile(ctx, "u1", "p1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.PopulateFromIntake(ctx, p.ID, Intake{
		TranscriptText: "first call",
		ExtractedData:  map[string]any{"business_name": "Acme", "industry": "plumbing"},
	}, SourceVoice); err != nil {
		t.Fatalf("first populate: %v", err)
	}
	if err := svc.PopulateFromIntake(ctx, p.ID, Intake{
		TranscriptText: "second call",
		ExtractedData:  map[string]any{"business_name": "Other Co", "offer": "tune-ups"},
	}, SourceVoice); err != nil {
		t.Fatalf("second populate: %v", err)
	}

	got, _, err := repo.GetByProject(ctx, "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Fields["business_name"] != "Acme" {
		t.Fatalf("expected earlier value kept, got %v", got.Fields["business_name"])
	}
	if got.Fields["offer"] != "tune-ups" {
		t.Fatalf("expected gap filled, got %v", got.Fields["offer"])
	}
}

func TestPopulateFromIntakeSurvivesExtractorFailure(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, failingExtractor{}, nil)
	ctx := context.Background()

	p, err := svc.GetOrCreateProfile(ctx, "u1", "p1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.PopulateFromIntake(ctx, p.ID, Intake{TranscriptText: "hello"}, SourceVoice); err != nil {
		t.Fatalf("expected merge to proceed despite extractor failure, got %v", err)
	}
}

func TestPopulateFromIntakeUsesExtractorWhenNoVendorFacts(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, staticExtractor{facts: map[string]any{"industry": "roofing"}}, nil)
	ctx := context.Background()

	p, err := svc.GetOrCreateProfile(ctx, "u1", "p1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.PopulateFromIntake(ctx, p.ID, Intake{TranscriptText: "we do roofs"}, SourceVoice); err != nil {
		t.Fatalf("populate: %v", err)
	}
	got, _, _ := repo.GetByProject(ctx, "p1")
	if got.Fields["industry"] != "roofing" {
		t.Fatalf("expected extracted fact merged, got %v", got.Fields["industry"])
	}
}
