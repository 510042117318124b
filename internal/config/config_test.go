package config

import (
	"testing"
	"time"
)

func TestLoadIncludesPipelineDefaults(t *testing.T) {
	t.Setenv("EMBED_GROUP_SIZE", "")
	t.Setenv("EMBED_GROUPS_PER_SECOND", "")
	t.Setenv("JOB_MAX_RETRIES", "")
	t.Setenv("JOBS_SELF_HEAL_AFTER", "")
	t.Setenv("VISION_STUCK_AFTER", "")
	t.Setenv("ENRICH_MAX_ITERATIONS", "")

	cfg := Load()
	if cfg.EmbedGroupSize != 10 {
		t.Fatalf("expected default embed group size 10, got %d", cfg.EmbedGroupSize)
	}
	if cfg.EmbedGroupsPerSecond != 2 {
		t.Fatalf("expected default embed groups per second 2, got %d", cfg.EmbedGroupsPerSecond)
	}
	if cfg.JobMaxRetries != 3 {
		t.Fatalf("expected default job max retries 3, got %d", cfg.JobMaxRetries)
	}
	if cfg.JobsSelfHealAfter != 10*time.Minute {
		t.Fatalf("expected default self heal threshold 10m, got %s", cfg.JobsSelfHealAfter)
	}
	if !cfg.JobsSelfHealEnable {
		t.Fatalf("expected self heal enabled by default")
	}
	if cfg.VisionStuckAfter != 5*time.Minute {
		t.Fatalf("expected default vision stuck threshold 5m, got %s", cfg.VisionStuckAfter)
	}
	if cfg.EnrichMaxIterations != 20 {
		t.Fatalf("expected default enrich iteration cap 20, got %d", cfg.EnrichMaxIterations)
	}
}

func TestLoadParsesPipelineOverrides(t *testing.T) {
	t.Setenv("EMBEDDING_BACKOFF_BASE", "500ms")
	t.Setenv("JOB_STUCK_AFTER", "7m")
	t.Setenv("JOBS_SELF_HEAL_ENABLED", "false")
	t.Setenv("STORAGE_BACKEND", "s3")
	t.Setenv("ORPHAN_RECOVERY_PER_TICK", "9")

	cfg := Load()
	if cfg.EmbeddingBackoffBase != 500*time.Millisecond {
		t.Fatalf("expected backoff base 500ms, got %s", cfg.EmbeddingBackoffBase)
	}
	if cfg.JobStuckAfter != 7*time.Minute {
		t.Fatalf("expected job stuck threshold 7m, got %s", cfg.JobStuckAfter)
	}
	if cfg.JobsSelfHealEnable {
		t.Fatalf("expected self heal disabled by override")
	}
	if cfg.StorageBackend != "s3" {
		t.Fatalf("expected storage backend s3, got %q", cfg.StorageBackend)
	}
	if cfg.OrphanRecoveryPerTick != 9 {
		t.Fatalf("expected orphan recovery cap 9, got %d", cfg.OrphanRecoveryPerTick)
	}
}

func TestLoadFallsBackOnMalformedDuration(t *testing.T) {
	t.Setenv("RECONCILE_INTERVAL", "soon")

	cfg := Load()
	if cfg.ReconcileInterval != time.Minute {
		t.Fatalf("expected default reconcile interval 1m, got %s", cfg.ReconcileInterval)
	}
}
