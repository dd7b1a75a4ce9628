package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDataDirDefault(t *testing.T) {
	t.Setenv("INTERPSERVE_DATA_DIR", "")

	if got := GetDataDir(); got != "./data" {
		t.Errorf("Expected default data dir ./data, got %s", got)
	}
	if filepath.Dir(GetRecordsDBPath()) != "data" {
		t.Errorf("Expected records db inside data, got %s", GetRecordsDBPath())
	}
	if filepath.Base(GetTargetsDBPath()) != "targets.db" {
		t.Errorf("Expected targets.db, got %s", filepath.Base(GetTargetsDBPath()))
	}
}

func TestDataDirEnv(t *testing.T) {
	customDir := "/tmp/interpserve-test-data"
	t.Setenv("INTERPSERVE_DATA_DIR", customDir)

	if got, want := GetRecordsDBPath(), filepath.Join(customDir, "records.db"); got != want {
		t.Errorf("Expected records path %s, got %s", want, got)
	}
	if got, want := GetTargetsDBPath(), filepath.Join(customDir, "targets.db"); got != want {
		t.Errorf("Expected targets path %s, got %s", want, got)
	}
}

func TestSVFIPaths(t *testing.T) {
	t.Setenv("INTERPSERVE_SVFI_DIR", "/opt/svfi")
	t.Setenv("INTERPSERVE_PYTHON", "")

	if got := GetSVFIEntrypoint(); got != filepath.Join("/opt/svfi", "one_line_shot_args.py") {
		t.Errorf("Unexpected entrypoint %s", got)
	}
	if got := GetPython(); got != "python" {
		t.Errorf("Expected default interpreter python, got %s", got)
	}
}

func TestNumericFallbacks(t *testing.T) {
	t.Setenv("INTERPSERVE_QUEUE_SIZE", "not-a-number")
	t.Setenv("INTERPSERVE_MAX_UPLOAD_MB", "10")
	t.Setenv("INTERPSERVE_JOB_RETENTION", "90m")
	t.Setenv("INTERPSERVE_RECORD_MAX_AGE", "-1h")

	if got := GetQueueSize(); got != 16 {
		t.Errorf("Expected queue size fallback 16, got %d", got)
	}
	if got := GetMaxUploadBytes(); got != 10<<20 {
		t.Errorf("Expected 10 MiB upload limit, got %d", got)
	}
	if got := GetJobRetention(); got != 90*time.Minute {
		t.Errorf("Expected 90m retention, got %v", got)
	}
	if got := GetRecordMaxAge(); got != 30*24*time.Hour {
		t.Errorf("Expected negative duration to fall back, got %v", got)
	}
}

func TestLoadEnvFile(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("Missing env file should be ignored: %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("INTERPSERVE_TEST_DOTENV=from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("INTERPSERVE_TEST_DOTENV") })

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("Failed to load env file: %v", err)
	}
	if got := os.Getenv("INTERPSERVE_TEST_DOTENV"); got != "from-file" {
		t.Errorf("Expected value from env file, got %q", got)
	}
}
