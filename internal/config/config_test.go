package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Media.ChunkSeconds != 300 {
		t.Fatalf("expected default chunk seconds, got %d", cfg.Media.ChunkSeconds)
	}
	if cfg.Worker.Count != 2 {
		t.Fatalf("expected default worker count, got %d", cfg.Worker.Count)
	}
	if cfg.Engine.Mode != "mock" {
		t.Fatalf("expected default engine mode mock, got %q", cfg.Engine.Mode)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SCRIBED_BUS_ENABLED", "true")
	t.Setenv("SCRIBED_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("SCRIBED_BUS_EMBEDDED", "false")
	t.Setenv("SCRIBED_BUS_USERNAME", "alice")
	t.Setenv("SCRIBED_BUS_PASSWORD", "secret")
	t.Setenv("SCRIBED_JOB_STORE_PATH", "./tmp.db")
	t.Setenv("SCRIBED_MEDIA_CHUNK_SECONDS", "15")
	t.Setenv("SCRIBED_ENGINE_MODE", "exec")
	t.Setenv("SCRIBED_ENGINE_COMMAND", "whisper-cli")
	t.Setenv("SCRIBED_WORKER_COUNT", "4")
	t.Setenv("SCRIBED_WORKER_JOB_TIMEOUT_MS", "60000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if cfg.JobStore.Path != "./tmp.db" {
		t.Fatalf("expected job store path override")
	}
	if cfg.Media.ChunkSeconds != 15 {
		t.Fatalf("expected chunk seconds override, got %d", cfg.Media.ChunkSeconds)
	}
	if cfg.Engine.Mode != "exec" || cfg.Engine.Command != "whisper-cli" {
		t.Fatalf("expected engine override, got %q/%q", cfg.Engine.Mode, cfg.Engine.Command)
	}
	if cfg.Worker.Count != 4 {
		t.Fatalf("expected worker count override, got %d", cfg.Worker.Count)
	}
	if cfg.Worker.JobTimeoutMS != 60000 {
		t.Fatalf("expected job timeout override, got %d", cfg.Worker.JobTimeoutMS)
	}
}

func TestValidateRejectsExecWithoutCommand(t *testing.T) {
	t.Setenv("SCRIBED_ENGINE_MODE", "exec")

	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for exec mode without command")
	}
}
