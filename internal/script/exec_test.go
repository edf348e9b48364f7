package script

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestRun_ExitZero(t *testing.T) {
	r := NewExec([]string{"true"}, "", 0)

	code, err := r.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
}

func TestRun_ExitNonZero(t *testing.T) {
	r := NewExec([]string{"sh", "-c", "exit 3"}, "", 0)

	code, err := r.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run returned error for a started process: %v", err)
	}
	if code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}
}

func TestRun_EnvInjection(t *testing.T) {
	// The script succeeds only if the injected variable is present.
	r := NewExec([]string{"sh", "-c", `[ "$DISCORD_WEBHOOK_URL" = "hook" ]`}, "", 0)

	code, err := r.Run(context.Background(), []string{"DISCORD_WEBHOOK_URL=hook"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if code != 0 {
		t.Errorf("exit code = %d, want 0 (env var not visible to script)", code)
	}
}

func TestRun_WorkDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "marker"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewExec([]string{"sh", "-c", "test -f marker"}, dir, 0)

	code, err := r.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if code != 0 {
		t.Errorf("exit code = %d, want 0 (workdir not applied)", code)
	}
}

func TestRun_StartFailure(t *testing.T) {
	r := NewExec([]string{"definitely-not-a-real-script-xyz"}, "", 0)

	code, err := r.Run(context.Background(), nil)
	if err == nil {
		t.Fatal("Run should return error when the script cannot start")
	}
	if code != -1 {
		t.Errorf("exit code = %d, want -1 for start failure", code)
	}
}

func TestRun_NoCommand(t *testing.T) {
	r := NewExec(nil, "", 0)

	if _, err := r.Run(context.Background(), nil); err == nil {
		t.Error("Run with empty command should return error")
	}
}
