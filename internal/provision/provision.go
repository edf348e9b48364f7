// Package provision installs the script's declared dependencies before a run.
//
// The install command is expected to be re-run-safe (pip-style installers
// are); provisioning happens before every run and a non-zero exit aborts the
// run before the script is ever started.
package provision

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"time"
)

// Provisioner prepares the script's runtime environment.
type Provisioner interface {
	Provision(ctx context.Context) error
}

// ExecProvisioner runs a configured install command as a subprocess.
type ExecProvisioner struct {
	command []string
	workDir string
	timeout time.Duration
}

// NewExec creates a provisioner for the given install command argv.
// An empty command disables provisioning.
func NewExec(command []string, workDir string, timeout time.Duration) *ExecProvisioner {
	return &ExecProvisioner{command: command, workDir: workDir, timeout: timeout}
}

func (p *ExecProvisioner) Provision(ctx context.Context) error {
	if len(p.command) == 0 {
		log.Println("provision: no install command configured, skipping")
		return nil
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	log.Printf("provision: running %v", p.command)

	cmd := exec.CommandContext(ctx, p.command[0], p.command[1:]...)
	cmd.Dir = p.workDir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("install command %q: %w", p.command[0], err)
	}

	log.Printf("provision: completed in %s", time.Since(start).Round(time.Millisecond))
	return nil
}
