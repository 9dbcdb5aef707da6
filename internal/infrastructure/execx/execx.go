// Package execx runs external tools so that cancelling the context kills the
// tool and every process it spawned.
package execx

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// maxOutput caps how much combined output is quoted back in an error.
const maxOutput = 4096

// Command prepares name to run in its own process group. On cancellation
// the whole group receives SIGKILL.
func Command(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second
	return cmd
}

// Run executes name and returns its combined output. A failing exit status
// is reported together with the tail of that output.
func Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := Command(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return output, fmt.Errorf("%s interrupted: %w", name, ctxErr)
		}
		return output, Failure(name, err, output)
	}
	return output, nil
}

// Failure formats a subprocess error with the tail of its output.
func Failure(name string, err error, output []byte) error {
	text := strings.TrimSpace(string(output))
	if len(text) > maxOutput {
		text = "..." + text[len(text)-maxOutput:]
	}
	if text == "" {
		return fmt.Errorf("%s failed: %w", name, err)
	}
	return fmt.Errorf("%s failed: %w, output: %s", name, err, text)
}
