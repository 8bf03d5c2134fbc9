// Package lvm manages logical volumes in a single volume group via the
// LVM command-line tools. Drover uses two instances: one for volume
// data and one for dm-clone hydration metadata devices.
package lvm

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// RunnerFunc executes an LVM command and returns its combined output.
type RunnerFunc func(ctx context.Context, name string, args ...string) (string, error)

// VG wraps logical volume operations for one volume group.
type VG struct {
	name string
	run  RunnerFunc
}

// New creates a VG handle using the system LVM tools.
func New(name string) *VG {
	return &VG{name: name, run: runCommand}
}

// NewWithRunner creates a VG handle with a custom command runner.
func NewWithRunner(name string, run RunnerFunc) *VG {
	return &VG{name: name, run: run}
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%s %s: %s: %w",
			name, strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return string(out), nil
}

// Name returns the volume group name.
func (v *VG) Name() string {
	return v.name
}

// LocalPath returns the device node of a logical volume in this group.
func (v *VG) LocalPath(name string) string {
	return "/dev/" + v.name + "/" + name
}

// CreateVolume creates a logical volume of the given size.
func (v *VG) CreateVolume(ctx context.Context, name string, sizeGiB uint64) error {
	_, err := v.run(ctx, "lvcreate",
		"-n", name,
		"-L", fmt.Sprintf("%dg", sizeGiB),
		"--wipesignatures", "y",
		v.name)
	if err != nil {
		return fmt.Errorf("failed to create logical volume %s/%s: %w", v.name, name, err)
	}
	return nil
}

// Delete removes a logical volume. Deleting a volume that does not
// exist is a no-op so cleanup paths can be repeated.
func (v *VG) Delete(ctx context.Context, name string) error {
	out, err := v.run(ctx, "lvremove", "-f", v.name+"/"+name)
	if err != nil {
		if strings.Contains(out, "Failed to find logical volume") ||
			strings.Contains(err.Error(), "Failed to find logical volume") {
			return nil
		}
		return fmt.Errorf("failed to delete logical volume %s/%s: %w", v.name, name, err)
	}
	return nil
}

// Extend grows a logical volume to the given size.
func (v *VG) Extend(ctx context.Context, name string, sizeGiB uint64) error {
	_, err := v.run(ctx, "lvextend",
		"-L", fmt.Sprintf("%dg", sizeGiB),
		v.name+"/"+name)
	if err != nil {
		return fmt.Errorf("failed to extend logical volume %s/%s: %w", v.name, name, err)
	}
	return nil
}

// Exists reports whether the logical volume is present in this group.
func (v *VG) Exists(ctx context.Context, name string) (bool, error) {
	out, err := v.run(ctx, "lvs", "--noheadings", "-o", "lv_name", v.name)
	if err != nil {
		return false, fmt.Errorf("failed to list logical volumes in %s: %w", v.name, err)
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == name {
			return true, nil
		}
	}
	return false, nil
}
