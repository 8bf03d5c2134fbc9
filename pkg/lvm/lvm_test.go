package lvm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeRunner struct {
	calls  []string
	output string
	err    error
}

func (f *fakeRunner) run(ctx context.Context, name string, args ...string) (string, error) {
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	return f.output, f.err
}

func TestCreateVolume(t *testing.T) {
	runner := &fakeRunner{}
	vg := NewWithRunner("vg0", runner.run)

	if err := vg.CreateVolume(context.Background(), "volume-abc", 4); err != nil {
		t.Fatalf("CreateVolume() error = %v", err)
	}

	want := "lvcreate -n volume-abc -L 4g --wipesignatures y vg0"
	if len(runner.calls) != 1 || runner.calls[0] != want {
		t.Errorf("calls = %v, want [%s]", runner.calls, want)
	}
}

func TestDeleteAbsentVolumeIsNoop(t *testing.T) {
	runner := &fakeRunner{
		output: `Failed to find logical volume "vg0/volume-gone"`,
		err:    errors.New("exit status 5"),
	}
	vg := NewWithRunner("vg0", runner.run)

	if err := vg.Delete(context.Background(), "volume-gone"); err != nil {
		t.Errorf("Delete() error = %v, want nil for absent volume", err)
	}
}

func TestDeletePropagatesOtherErrors(t *testing.T) {
	runner := &fakeRunner{
		output: "Logical volume vg0/volume-busy in use",
		err:    errors.New("exit status 5"),
	}
	vg := NewWithRunner("vg0", runner.run)

	if err := vg.Delete(context.Background(), "volume-busy"); err == nil {
		t.Error("Delete() error = nil, want error for busy volume")
	}
}

func TestLocalPath(t *testing.T) {
	vg := New("vg0")
	if got := vg.LocalPath("volume-abc"); got != "/dev/vg0/volume-abc" {
		t.Errorf("LocalPath() = %q, want /dev/vg0/volume-abc", got)
	}
}

func TestExists(t *testing.T) {
	runner := &fakeRunner{output: "  volume-a\n  volume-b\n"}
	vg := NewWithRunner("vg0", runner.run)

	ok, err := vg.Exists(context.Background(), "volume-b")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !ok {
		t.Error("Exists(volume-b) = false, want true")
	}

	ok, err = vg.Exists(context.Background(), "volume-c")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if ok {
		t.Error("Exists(volume-c) = true, want false")
	}
}
