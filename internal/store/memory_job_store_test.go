package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dunamismax/grayblur/internal/domain"
)

func TestMemoryJobStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryJobStore()

	created := time.Now().UTC().Add(-time.Minute)
	if err := s.Create(ctx, domain.Job{ID: "job-1", Status: domain.JobStatusCreated, UpdatedAt: created}); err != nil {
		t.Fatalf("create: %v", err)
	}

	job, ok, err := s.Get(ctx, "job-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if job.Status != domain.JobStatusCreated {
		t.Fatalf("expected created status, got %s", job.Status)
	}

	updated, err := s.UpdateStatus(ctx, "job-1", domain.JobStatusQueued)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != domain.JobStatusQueued || !updated.UpdatedAt.After(created) {
		t.Fatalf("unexpected updated job: %+v", updated)
	}

	if _, ok, _ := s.Get(ctx, "missing"); ok {
		t.Fatal("expected missing job lookup to report not found")
	}
	if _, err := s.UpdateStatus(ctx, "missing", domain.JobStatusFailed); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestMemoryJobStoreUsageLogs(t *testing.T) {
	s := NewMemoryJobStore()
	if err := s.CreateUsageLog(context.Background(), domain.UsageLog{JobID: "job-1", PixelsProcessed: 4}); err != nil {
		t.Fatalf("create usage log: %v", err)
	}

	logs := s.UsageLogs()
	if len(logs) != 1 || logs[0].PixelsProcessed != 4 {
		t.Fatalf("unexpected usage logs: %+v", logs)
	}

	logs[0].JobID = "mutated"
	if s.UsageLogs()[0].JobID != "job-1" {
		t.Fatal("UsageLogs must return a copy")
	}
}
