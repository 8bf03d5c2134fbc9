package dmsetup

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/cuemby/drover/pkg/errdefs"
)

// RunnerFunc executes a dmsetup command and returns its combined output.
// The default runner shells out to the dmsetup binary; tests inject
// their own.
type RunnerFunc func(ctx context.Context, args ...string) (string, error)

// DMSetup wraps the device-mapper control commands used for clone
// overlays: one method per primitive against a named target.
type DMSetup struct {
	run RunnerFunc
}

// New creates a DMSetup using the system dmsetup binary.
func New() *DMSetup {
	return &DMSetup{run: runCommand}
}

// NewWithRunner creates a DMSetup with a custom command runner.
func NewWithRunner(run RunnerFunc) *DMSetup {
	return &DMSetup{run: run}
}

func runCommand(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "dmsetup", args...).CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("dmsetup %s: %s: %w",
			strings.Join(args, " "), strings.TrimSpace(string(out)), errdefs.ErrOverlay)
	}
	return string(out), nil
}

// DevicePath returns the device node for a mapping name.
func DevicePath(name string) string {
	return "/dev/mapper/" + name
}

// Create instantiates a new mapping with the given table line. It fails
// if a target of that name already exists or the table is malformed.
func (d *DMSetup) Create(ctx context.Context, name, table string) error {
	_, err := d.run(ctx, "create", name, "--table", table)
	return err
}

// Load replaces the inactive table of an existing mapping. The mapping
// must be suspended for the new table to take effect on resume.
func (d *DMSetup) Load(ctx context.Context, name, table string) error {
	_, err := d.run(ctx, "load", name, "--table", table)
	return err
}

// Suspend blocks I/O to the mapping so the table can be swapped atomically.
func (d *DMSetup) Suspend(ctx context.Context, name string) error {
	_, err := d.run(ctx, "suspend", name)
	return err
}

// Resume unblocks I/O and activates the most recently loaded table.
// Resuming an active mapping is a no-op.
func (d *DMSetup) Resume(ctx context.Context, name string) error {
	_, err := d.run(ctx, "resume", name)
	return err
}

// Message sends a control message to a live mapping at the given sector.
func (d *DMSetup) Message(ctx context.Context, name string, sector uint64, message string) error {
	_, err := d.run(ctx, "message", name, fmt.Sprintf("%d", sector), message)
	return err
}

// Status queries and parses the status line of a mapping.
func (d *DMSetup) Status(ctx context.Context, name string) (*Status, error) {
	out, err := d.run(ctx, "status", name)
	if err != nil {
		return nil, err
	}
	line := out
	if i := strings.IndexByte(out, '\n'); i >= 0 {
		line = out[:i]
	}
	return ParseStatus(line)
}

// Remove tears down a mapping. Removing a mapping that does not exist
// is a no-op, so cleanup paths are safe to repeat.
func (d *DMSetup) Remove(ctx context.Context, name string) error {
	out, err := d.run(ctx, "remove", name)
	if err != nil && isNotFound(out, err) {
		return nil
	}
	return err
}

// isNotFound matches dmsetup's output for absent targets.
func isNotFound(out string, err error) bool {
	for _, s := range []string{out, err.Error()} {
		if strings.Contains(s, "No such device") || strings.Contains(s, "not found") {
			return true
		}
	}
	return false
}
