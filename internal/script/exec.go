// Package script invokes the external outlook script.
//
// The script is an opaque executable: it takes no arguments, reads its
// secrets from the environment, and reports success or failure solely
// through its exit code.
package script

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"time"
)

// Runner abstracts the executable task so the real script can be replaced
// with a fake in tests.
type Runner interface {
	// Run executes the script once with extraEnv appended to the process
	// environment. It returns the script's exit code; err is non-nil only
	// when the process could not be started or was cut off externally.
	Run(ctx context.Context, extraEnv []string) (exitCode int, err error)
}

// ExecRunner runs the configured script command as a subprocess.
type ExecRunner struct {
	command []string
	workDir string
	timeout time.Duration // 0 = run to completion
}

func NewExec(command []string, workDir string, timeout time.Duration) *ExecRunner {
	return &ExecRunner{command: command, workDir: workDir, timeout: timeout}
}

func (r *ExecRunner) Run(ctx context.Context, extraEnv []string) (int, error) {
	if len(r.command) == 0 {
		return -1, errors.New("no script command configured")
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	log.Printf("script: running %v", r.command)

	// Secrets travel only through the environment, never argv, so they
	// cannot leak into process listings.
	cmd := exec.CommandContext(ctx, r.command[0], r.command[1:]...)
	cmd.Dir = r.workDir
	cmd.Env = append(os.Environ(), extraEnv...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	elapsed := time.Since(start).Round(time.Millisecond)

	if err == nil {
		log.Printf("script: exited 0 in %s", elapsed)
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		log.Printf("script: exited %d in %s", code, elapsed)
		return code, nil
	}

	return -1, fmt.Errorf("start script %q: %w", r.command[0], err)
}
