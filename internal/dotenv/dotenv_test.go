package dotenv

import (
	"os"
	"path/filepath"
	"testing"
)

func unsetAfter(t *testing.T, keys ...string) {
	t.Helper()
	t.Cleanup(func() {
		for _, k := range keys {
			_ = os.Unsetenv(k)
		}
	})
}

func TestLoadFiles_MissingFileIsNoop(t *testing.T) {
	t.Parallel()
	if err := LoadFiles(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Fatalf("LoadFiles missing file error: %v", err)
	}
}

func TestLoadFiles_LoadsValuesAndPreservesExisting(t *testing.T) {
	tempDir := t.TempDir()
	envPath := filepath.Join(tempDir, ".env")
	content := "" +
		"# comment\n" +
		"INTERVIEW_DOTENV_FROM_FILE=loaded\n" +
		"INTERVIEW_DOTENV_QUOTED=\"hello world\"\n" +
		"export INTERVIEW_DOTENV_EXPORTED=ok\n" +
		"INTERVIEW_DOTENV_EXISTING=from_file\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	unsetAfter(t, "INTERVIEW_DOTENV_FROM_FILE", "INTERVIEW_DOTENV_QUOTED", "INTERVIEW_DOTENV_EXPORTED")

	t.Setenv("INTERVIEW_DOTENV_EXISTING", "already_set")

	if err := LoadFiles(envPath); err != nil {
		t.Fatalf("LoadFiles error: %v", err)
	}

	if got := os.Getenv("INTERVIEW_DOTENV_FROM_FILE"); got != "loaded" {
		t.Fatalf("FROM_FILE=%q, want %q", got, "loaded")
	}
	if got := os.Getenv("INTERVIEW_DOTENV_QUOTED"); got != "hello world" {
		t.Fatalf("QUOTED=%q, want %q", got, "hello world")
	}
	if got := os.Getenv("INTERVIEW_DOTENV_EXPORTED"); got != "ok" {
		t.Fatalf("EXPORTED=%q, want %q", got, "ok")
	}
	if got := os.Getenv("INTERVIEW_DOTENV_EXISTING"); got != "already_set" {
		t.Fatalf("EXISTING=%q, want existing value preserved", got)
	}
}

func TestLoadFiles_EarlierFileWins(t *testing.T) {
	tempDir := t.TempDir()
	local := filepath.Join(tempDir, ".env.local")
	base := filepath.Join(tempDir, ".env")
	if err := os.WriteFile(local, []byte("INTERVIEW_DOTENV_ORDER=local\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(base, []byte("INTERVIEW_DOTENV_ORDER=base\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	unsetAfter(t, "INTERVIEW_DOTENV_ORDER")

	if err := LoadFiles(local, base); err != nil {
		t.Fatalf("LoadFiles error: %v", err)
	}
	if got := os.Getenv("INTERVIEW_DOTENV_ORDER"); got != "local" {
		t.Fatalf("ORDER=%q, want local", got)
	}
}
