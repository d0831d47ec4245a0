package session

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"kasbot/internal/logging"
)

// Reaper terminates OS processes left behind by a session's browser.
type Reaper func(ctx context.Context, workDir string) error

// KillOrphans runs `pkill -f <workDir>`, which matches every browser process
// launched with a profile inside the working area. No match and a missing
// pkill are not errors.
func KillOrphans(ctx context.Context, workDir string) error {
	if workDir == "" {
		return nil
	}
	cmd := exec.CommandContext(ctx, "pkill", "-f", workDir)
	err := cmd.Run()
	if err == nil {
		logging.SessionDebug("killed orphaned processes for %s", workDir)
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return nil
	}
	if errors.Is(err, exec.ErrNotFound) {
		logging.SessionDebug("pkill unavailable, skipping orphan sweep")
		return nil
	}
	return fmt.Errorf("pkill -f %s: %w", workDir, err)
}
