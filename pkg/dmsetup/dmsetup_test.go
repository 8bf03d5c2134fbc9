package dmsetup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cuemby/drover/pkg/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner records commands and replays canned results.
type fakeRunner struct {
	calls   [][]string
	outputs map[string]string
	errs    map[string]error
}

func (f *fakeRunner) run(ctx context.Context, args ...string) (string, error) {
	f.calls = append(f.calls, args)
	key := strings.Join(args, " ")
	if err, ok := f.errs[key]; ok {
		return f.outputs[key], err
	}
	return f.outputs[key], nil
}

func TestParseStatusClone(t *testing.T) {
	line := "0 2097152 clone 8 262144/262144 0 0 4 hydration_threshold 1 hydration_batch_size 1 rw"

	status, err := ParseStatus(line)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), status.Start)
	assert.Equal(t, uint64(2097152), status.Length)
	assert.Equal(t, TargetClone, status.TargetType)
	require.NotNil(t, status.Clone)

	clone := status.Clone
	assert.Equal(t, uint64(8), clone.MetadataSectors)
	assert.Equal(t, uint64(262144), clone.HydratedRegions)
	assert.Equal(t, uint64(262144), clone.TotalRegions)
	assert.Equal(t, uint64(0), clone.DirtyRegions)
	assert.Equal(t, uint64(0), clone.HydrationErrors)
	assert.Equal(t, "rw", clone.Mode)
	assert.Equal(t, []string{"4", "hydration_threshold", "1", "hydration_batch_size", "1"}, clone.Policy)
	assert.True(t, clone.HydrationComplete())
}

func TestParseStatusClonePartialHydration(t *testing.T) {
	line := "0 2097152 clone 8 30/262144 0 0 4 hydration_threshold 1 hydration_batch_size 1 rw"

	status, err := ParseStatus(line)
	require.NoError(t, err)
	require.NotNil(t, status.Clone)

	assert.Equal(t, uint64(30), status.Clone.HydratedRegions)
	assert.Equal(t, uint64(262144), status.Clone.TotalRegions)
	assert.False(t, status.Clone.HydrationComplete())
}

func TestParseStatusLinear(t *testing.T) {
	status, err := ParseStatus("0 2097152 linear")
	require.NoError(t, err)
	assert.Equal(t, TargetLinear, status.TargetType)
	assert.Nil(t, status.Clone)
}

func TestParseStatusMalformed(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"empty", ""},
		{"too short", "0 2097152"},
		{"bad start", "x 2097152 clone 8 1/2 0 0 rw"},
		{"missing pair", "0 2097152 clone 8 262144 0 0 p rw"},
		{"bad mode", "0 2097152 clone 8 1/2 0 0 p xx"},
		// The kernel's long form carries a second ratio pair where this
		// parser expects the error count; it must be rejected, which in
		// turn means no finalization is ever triggered from it.
		{"long form", "0 2097152 clone 8 30/262144 8 262144/262144 0 0 4 hydration_threshold 1 hydration_batch_size 1 rw"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseStatus(tt.line)
			assert.True(t, errors.Is(err, errdefs.ErrOverlay), "error = %v", err)
		})
	}
}

func TestHydrationCompleteRequiresZeroErrors(t *testing.T) {
	clone := &CloneStatus{HydratedRegions: 100, TotalRegions: 100, HydrationErrors: 1}
	assert.False(t, clone.HydrationComplete())

	clone.HydrationErrors = 0
	assert.True(t, clone.HydrationComplete())
}

func TestHydrationCompleteNeverBeforeTotal(t *testing.T) {
	for hydrated := uint64(0); hydrated < 100; hydrated += 7 {
		clone := &CloneStatus{HydratedRegions: hydrated, TotalRegions: 100}
		assert.False(t, clone.HydrationComplete(), "hydrated=%d", hydrated)
	}
}

func TestRemoveIdempotentOnAbsentTarget(t *testing.T) {
	runner := &fakeRunner{
		outputs: map[string]string{},
		errs: map[string]error{
			"remove volume-x-handle": fmt.Errorf(
				"dmsetup remove volume-x-handle: device volume-x-handle not found: %w",
				errdefs.ErrOverlay),
		},
	}
	dm := NewWithRunner(runner.run)

	err := dm.Remove(context.Background(), "volume-x-handle")
	assert.NoError(t, err)
}

func TestRemovePropagatesOtherErrors(t *testing.T) {
	runner := &fakeRunner{
		outputs: map[string]string{},
		errs: map[string]error{
			"remove busy-handle": fmt.Errorf("Device or resource busy: %w", errdefs.ErrOverlay),
		},
	}
	dm := NewWithRunner(runner.run)

	err := dm.Remove(context.Background(), "busy-handle")
	assert.True(t, errors.Is(err, errdefs.ErrOverlay))
}

func TestSuspendLoadResumeCommands(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{}}
	dm := NewWithRunner(runner.run)
	ctx := context.Background()

	require.NoError(t, dm.Suspend(ctx, "v-handle"))
	require.NoError(t, dm.Load(ctx, "v-handle", "0 2097152 linear /dev/vg0/v 0"))
	require.NoError(t, dm.Resume(ctx, "v-handle"))
	require.NoError(t, dm.Message(ctx, "v-handle", 0, EnableHydration))

	assert.Equal(t, [][]string{
		{"suspend", "v-handle"},
		{"load", "v-handle", "--table", "0 2097152 linear /dev/vg0/v 0"},
		{"resume", "v-handle"},
		{"message", "v-handle", "0", "enable_hydration"},
	}, runner.calls)
}

func TestTables(t *testing.T) {
	clone := CloneTable("/dev/meta/m", "/dev/vg0/v", "/dev/sdx", 2097152)
	assert.Equal(t, "0 2097152 clone /dev/meta/m /dev/vg0/v /dev/sdx 8 1 no_hydration", clone)

	linear := LinearTable("/dev/vg0/v", 2097152)
	assert.Equal(t, "0 2097152 linear /dev/vg0/v 0", linear)
}

func TestDevicePath(t *testing.T) {
	assert.Equal(t, "/dev/mapper/volume-a-handle", DevicePath("volume-a-handle"))
}

func TestStatusUsesFirstLine(t *testing.T) {
	runner := &fakeRunner{
		outputs: map[string]string{
			"status v-handle": "0 2097152 linear\ntrailing noise\n",
		},
	}
	dm := NewWithRunner(runner.run)

	status, err := dm.Status(context.Background(), "v-handle")
	require.NoError(t, err)
	assert.Equal(t, TargetLinear, status.TargetType)
}
