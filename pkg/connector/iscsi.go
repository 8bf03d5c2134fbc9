package connector

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// RunnerFunc executes an iscsiadm command and returns its combined output.
type RunnerFunc func(ctx context.Context, args ...string) (string, error)

// ISCSIConnector implements Connector with open-iscsi.
type ISCSIConnector struct {
	run RunnerFunc
	// stat is os.Stat unless a test replaces it
	stat func(string) (os.FileInfo, error)
	// waitInterval paces the wait for the device node to appear
	waitInterval time.Duration
	waitAttempts int
}

// NewISCSI creates a connector using the system iscsiadm binary.
func NewISCSI() *ISCSIConnector {
	return &ISCSIConnector{
		run:          runISCSIAdm,
		stat:         os.Stat,
		waitInterval: time.Second,
		waitAttempts: 10,
	}
}

// NewISCSIWithRunner creates a connector with a custom command runner
// and device stat function.
func NewISCSIWithRunner(run RunnerFunc, stat func(string) (os.FileInfo, error)) *ISCSIConnector {
	return &ISCSIConnector{
		run:          run,
		stat:         stat,
		waitInterval: 0,
		waitAttempts: 1,
	}
}

func runISCSIAdm(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "iscsiadm", args...).CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("iscsiadm %s: %s: %w",
			strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return string(out), nil
}

// devicePath is the by-path node open-iscsi creates for a session LUN.
func devicePath(props ConnectionProperties) string {
	return fmt.Sprintf("/dev/disk/by-path/ip-%s-iscsi-%s-lun-%s",
		props.TargetPortal, props.TargetIQN, props.TargetLun)
}

func (c *ISCSIConnector) ConnectVolume(ctx context.Context, props ConnectionProperties) (*DeviceHandle, error) {
	target := []string{"-m", "node", "-T", props.TargetIQN, "-p", props.TargetPortal}

	if _, err := c.run(ctx, append(target, "-o", "new")...); err != nil {
		return nil, fmt.Errorf("failed to register iscsi node: %w", err)
	}

	if props.AuthMethod != "" {
		settings := [][2]string{
			{"node.session.auth.authmethod", props.AuthMethod},
			{"node.session.auth.username", props.AuthUsername},
			{"node.session.auth.password", props.AuthPassword},
		}
		for _, s := range settings {
			args := append(target, "-o", "update", "-n", s[0], "-v", s[1])
			if _, err := c.run(ctx, args...); err != nil {
				return nil, fmt.Errorf("failed to configure iscsi auth: %w", err)
			}
		}
	}

	if _, err := c.run(ctx, append(target, "--login")...); err != nil {
		// A session that already exists is fine
		if !strings.Contains(err.Error(), "already exists") {
			return nil, fmt.Errorf("failed to log into iscsi target: %w", err)
		}
	}

	path := devicePath(props)
	for attempt := 0; ; attempt++ {
		if _, err := c.stat(path); err == nil {
			break
		}
		if attempt+1 >= c.waitAttempts {
			return nil, fmt.Errorf("device %s did not appear after iscsi login", path)
		}
		time.Sleep(c.waitInterval)
	}

	return &DeviceHandle{Path: path}, nil
}

func (c *ISCSIConnector) DisconnectVolume(ctx context.Context, props ConnectionProperties, devicePath string, force bool) error {
	target := []string{"-m", "node", "-T", props.TargetIQN, "-p", props.TargetPortal}

	if _, err := c.run(ctx, append(target, "--logout")...); err != nil && !force {
		return fmt.Errorf("failed to log out of iscsi target: %w", err)
	}
	if _, err := c.run(ctx, append(target, "-o", "delete")...); err != nil && !force {
		return fmt.Errorf("failed to delete iscsi node: %w", err)
	}
	return nil
}
