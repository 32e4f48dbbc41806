package services_test

import (
	"context"
	"testing"

	"docflow/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithJobID(ctx, "job-42")
	ctx = services.WithJobType(ctx, "preprocess_document")
	ctx = services.WithStep(ctx, "load_content")
	ctx = services.WithDevice(ctx, "cpu")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.JobIDFromContext(ctx); !ok || id != "job-42" {
		t.Fatalf("unexpected job id: %v %v", id, ok)
	}
	if jobType, ok := services.JobTypeFromContext(ctx); !ok || jobType != "preprocess_document" {
		t.Fatalf("unexpected job type: %v %v", jobType, ok)
	}
	if step, ok := services.StepFromContext(ctx); !ok || step != "load_content" {
		t.Fatalf("unexpected step: %v %v", step, ok)
	}
	if device, ok := services.DeviceFromContext(ctx); !ok || device != "cpu" {
		t.Fatalf("unexpected device: %v %v", device, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStep(ctx, "")
	ctx = services.WithJobID(ctx, "")
	if _, ok := services.StepFromContext(ctx); ok {
		t.Fatal("expected no step value")
	}
	if _, ok := services.JobIDFromContext(ctx); ok {
		t.Fatal("expected no job id value")
	}
}
