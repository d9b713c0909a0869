package services_test

import (
	"context"
	"testing"

	"binky/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithEpisodeID(ctx, 42)
	ctx = services.WithStage(ctx, "transcription")
	ctx = services.WithJobID(ctx, "job-1")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.EpisodeIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("unexpected episode id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "transcription" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if jid, ok := services.JobIDFromContext(ctx); !ok || jid != "job-1" {
		t.Fatalf("unexpected job id: %v %v", jid, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	if _, ok := services.EpisodeIDFromContext(ctx); ok {
		t.Fatal("expected no episode id")
	}
}
