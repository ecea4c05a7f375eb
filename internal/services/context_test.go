package services_test

import (
	"context"
	"testing"

	"podmill/internal/services"
)

func TestJobIDRoundTrip(t *testing.T) {
	ctx := services.WithJobID(context.Background(), "job_a1b2c3d4e5f6_1700000000")
	id, ok := services.JobIDFromContext(ctx)
	if !ok || id != "job_a1b2c3d4e5f6_1700000000" {
		t.Fatalf("unexpected job id: %q ok=%v", id, ok)
	}
}

func TestMissingValuesReportAbsent(t *testing.T) {
	ctx := context.Background()
	if _, ok := services.JobIDFromContext(ctx); ok {
		t.Fatal("expected no job id on empty context")
	}
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage on empty context")
	}
	if _, ok := services.UserIDFromContext(ctx); ok {
		t.Fatal("expected no user id on empty context")
	}
	if _, ok := services.RequestIDFromContext(ctx); ok {
		t.Fatal("expected no request id on empty context")
	}
}

func TestEmptyValuesNotStored(t *testing.T) {
	ctx := services.WithUserID(context.Background(), "")
	if _, ok := services.UserIDFromContext(ctx); ok {
		t.Fatal("empty user id should not be stored")
	}
}

func TestStageAndUserComposition(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "transcribing")
	ctx = services.WithUserID(ctx, "user-42")
	ctx = services.WithRequestID(ctx, "req-7")

	if stage, ok := services.StageFromContext(ctx); !ok || stage != "transcribing" {
		t.Fatalf("unexpected stage: %q ok=%v", stage, ok)
	}
	if user, ok := services.UserIDFromContext(ctx); !ok || user != "user-42" {
		t.Fatalf("unexpected user: %q ok=%v", user, ok)
	}
	if req, ok := services.RequestIDFromContext(ctx); !ok || req != "req-7" {
		t.Fatalf("unexpected request id: %q ok=%v", req, ok)
	}
}
