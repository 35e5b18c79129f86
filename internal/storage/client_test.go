package storage

import (
	"testing"

	"github.com/dunamismax/grayblur/internal/config"
)

func TestNewClientRequiresBucket(t *testing.T) {
	if _, err := NewClient(Config{Endpoint: "localhost:9000"}); err == nil {
		t.Fatal("expected error for empty bucket")
	}
}

func TestNewClientFromConfig(t *testing.T) {
	cfg := FromConfig(config.Defaults().Storage)
	if cfg.Access != "minioadmin" || cfg.Bucket != "grayblur-jobs" {
		t.Fatalf("unexpected storage config: %+v", cfg)
	}

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if client.Bucket() != "grayblur-jobs" {
		t.Fatalf("expected bucket grayblur-jobs, got %s", client.Bucket())
	}
}
