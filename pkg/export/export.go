// Package export manages iSCSI exports of local volumes so peer hosts
// can attach them during migration.
package export

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/cuemby/drover/pkg/types"
)

// Exporter makes a local volume reachable as a network block endpoint.
type Exporter interface {
	// EnsureExport exposes the device behind the volume and returns the
	// provider location ("portal,id iqn lun") describing it. Calling it
	// for an already exported volume returns the existing location.
	EnsureExport(ctx context.Context, volume *types.VolumeRecord, devicePath string) (string, error)

	// RemoveExport withdraws the export. Removing an absent export is a
	// no-op.
	RemoveExport(ctx context.Context, volume *types.VolumeRecord) error
}

// RunnerFunc executes a tgtadm command and returns its combined output.
type RunnerFunc func(ctx context.Context, args ...string) (string, error)

// TGTExporter implements Exporter with the Linux SCSI target daemon.
type TGTExporter struct {
	portal  string // advertised host:port
	iqnBase string
	run     RunnerFunc

	mu      sync.Mutex
	tids    map[string]int // volume name -> target id
	nextTID int
}

// TODO: recover the tid map from `tgtadm --mode target --op show` on
// startup so exports survive a daemon restart.

// NewTGT creates an exporter advertising the given portal address.
func NewTGT(portal string) *TGTExporter {
	return NewTGTWithRunner(portal, runCommand)
}

// NewTGTWithRunner creates an exporter with a custom command runner.
func NewTGTWithRunner(portal string, run RunnerFunc) *TGTExporter {
	return &TGTExporter{
		portal:  portal,
		iqnBase: "iqn.2024-01.org.drover",
		run:     run,
		tids:    make(map[string]int),
		nextTID: 1,
	}
}

func runCommand(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "tgtadm", args...).CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("tgtadm %s: %s: %w",
			strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return string(out), nil
}

func (e *TGTExporter) iqn(volume *types.VolumeRecord) string {
	return e.iqnBase + ":" + volume.Name()
}

func (e *TGTExporter) EnsureExport(ctx context.Context, volume *types.VolumeRecord, devicePath string) (string, error) {
	iqn := e.iqn(volume)
	location := fmt.Sprintf("%s,1 %s 1", e.portal, iqn)

	e.mu.Lock()
	tid, exported := e.tids[volume.Name()]
	if !exported {
		tid = e.nextTID
		e.nextTID++
	}
	e.mu.Unlock()

	if exported {
		return location, nil
	}

	tidArg := strconv.Itoa(tid)
	_, err := e.run(ctx,
		"--lld", "iscsi", "--mode", "target", "--op", "new",
		"--tid", tidArg, "--targetname", iqn)
	if err != nil {
		return "", fmt.Errorf("failed to create iscsi target for %s: %w", volume.ID, err)
	}

	_, err = e.run(ctx,
		"--lld", "iscsi", "--mode", "logicalunit", "--op", "new",
		"--tid", tidArg, "--lun", "1", "--backing-store", devicePath)
	if err != nil {
		return "", fmt.Errorf("failed to attach backing store for %s: %w", volume.ID, err)
	}

	_, err = e.run(ctx,
		"--lld", "iscsi", "--mode", "target", "--op", "bind",
		"--tid", tidArg, "--initiator-address", "ALL")
	if err != nil {
		return "", fmt.Errorf("failed to bind iscsi target for %s: %w", volume.ID, err)
	}

	e.mu.Lock()
	e.tids[volume.Name()] = tid
	e.mu.Unlock()

	return location, nil
}

func (e *TGTExporter) RemoveExport(ctx context.Context, volume *types.VolumeRecord) error {
	e.mu.Lock()
	tid, ok := e.tids[volume.Name()]
	delete(e.tids, volume.Name())
	e.mu.Unlock()

	if !ok {
		return nil
	}

	_, err := e.run(ctx,
		"--lld", "iscsi", "--mode", "target", "--op", "delete",
		"--force", "--tid", strconv.Itoa(tid))
	if err != nil {
		if strings.Contains(err.Error(), "can't find") {
			return nil
		}
		return fmt.Errorf("failed to delete iscsi target for %s: %w", volume.ID, err)
	}
	return nil
}
