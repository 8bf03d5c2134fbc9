package storage

import (
	"testing"

	"github.com/cuemby/drover/pkg/errdefs"
	"github.com/cuemby/drover/pkg/types"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestVolumeCRUD(t *testing.T) {
	store := newTestStore(t)

	volume := &types.VolumeRecord{
		ID:      "vol-1",
		NameID:  "vol-1",
		Host:    "node1@dmclone",
		Status:  types.VolumeStatusCreating,
		SizeGiB: 4,
	}

	if err := store.CreateVolume(volume); err != nil {
		t.Fatalf("CreateVolume() error = %v", err)
	}
	if volume.CreatedAt.IsZero() {
		t.Error("CreateVolume() did not stamp CreatedAt")
	}

	got, err := store.GetVolume("vol-1")
	if err != nil {
		t.Fatalf("GetVolume() error = %v", err)
	}
	if got.Host != "node1@dmclone" {
		t.Errorf("Host = %q, want node1@dmclone", got.Host)
	}

	got.Status = types.VolumeStatusAvailable
	if err := store.UpdateVolume(got); err != nil {
		t.Fatalf("UpdateVolume() error = %v", err)
	}

	got, err = store.GetVolume("vol-1")
	if err != nil {
		t.Fatalf("GetVolume() error = %v", err)
	}
	if got.Status != types.VolumeStatusAvailable {
		t.Errorf("Status = %q, want available", got.Status)
	}

	if err := store.DeleteVolume("vol-1"); err != nil {
		t.Fatalf("DeleteVolume() error = %v", err)
	}
	if _, err := store.GetVolume("vol-1"); !errdefs.IsNotFound(err) {
		t.Errorf("GetVolume() after delete error = %v, want ErrNotFound", err)
	}
}

func TestGetVolumeNotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetVolume("missing"); !errdefs.IsNotFound(err) {
		t.Errorf("GetVolume() error = %v, want ErrNotFound", err)
	}
}

func TestUpdateVolumeNotFound(t *testing.T) {
	store := newTestStore(t)
	err := store.UpdateVolume(&types.VolumeRecord{ID: "missing"})
	if !errdefs.IsNotFound(err) {
		t.Errorf("UpdateVolume() error = %v, want ErrNotFound", err)
	}
}

func TestListVolumesByHost(t *testing.T) {
	store := newTestStore(t)

	for _, v := range []*types.VolumeRecord{
		{ID: "a", Host: "node1@dmclone"},
		{ID: "b", Host: "node2@dmclone"},
		{ID: "c", Host: "node1@dmclone"},
	} {
		if err := store.CreateVolume(v); err != nil {
			t.Fatalf("CreateVolume(%s) error = %v", v.ID, err)
		}
	}

	volumes, err := store.ListVolumesByHost("node1@dmclone")
	if err != nil {
		t.Fatalf("ListVolumesByHost() error = %v", err)
	}
	if len(volumes) != 2 {
		t.Errorf("ListVolumesByHost() returned %d volumes, want 2", len(volumes))
	}
}

func TestGetVolumeByMigrationTarget(t *testing.T) {
	store := newTestStore(t)

	src := &types.VolumeRecord{
		ID:              "src",
		Host:            "node1@dmclone",
		MigrationStatus: types.MigrationTarget("dst"),
	}
	dst := &types.VolumeRecord{
		ID:              "dst",
		Host:            "node2@dmclone",
		MigrationStatus: types.MigrationStarting,
	}
	for _, v := range []*types.VolumeRecord{src, dst} {
		if err := store.CreateVolume(v); err != nil {
			t.Fatalf("CreateVolume(%s) error = %v", v.ID, err)
		}
	}

	got, err := store.GetVolumeByMigrationTarget("dst")
	if err != nil {
		t.Fatalf("GetVolumeByMigrationTarget() error = %v", err)
	}
	if got.ID != "src" {
		t.Errorf("GetVolumeByMigrationTarget() = %s, want src", got.ID)
	}

	if _, err := store.GetVolumeByMigrationTarget("nothing"); !errdefs.IsNotFound(err) {
		t.Errorf("GetVolumeByMigrationTarget() error = %v, want ErrNotFound", err)
	}
}

func TestServices(t *testing.T) {
	store := newTestStore(t)

	svc := &types.Service{
		ID:      "svc-1",
		Host:    "node1@dmclone",
		Backend: "dmclone",
		Address: "node1:8470",
	}
	if err := store.UpsertService(svc); err != nil {
		t.Fatalf("UpsertService() error = %v", err)
	}

	got, err := store.GetServiceByHost("node1@dmclone")
	if err != nil {
		t.Fatalf("GetServiceByHost() error = %v", err)
	}
	if got.Address != "node1:8470" {
		t.Errorf("Address = %q, want node1:8470", got.Address)
	}

	// Upsert replaces
	svc.Address = "node1:9000"
	if err := store.UpsertService(svc); err != nil {
		t.Fatalf("UpsertService() error = %v", err)
	}
	got, _ = store.GetServiceByHost("node1@dmclone")
	if got.Address != "node1:9000" {
		t.Errorf("Address after upsert = %q, want node1:9000", got.Address)
	}

	services, err := store.ListServices()
	if err != nil {
		t.Fatalf("ListServices() error = %v", err)
	}
	if len(services) != 1 {
		t.Errorf("ListServices() returned %d services, want 1", len(services))
	}

	if _, err := store.GetServiceByHost("absent@x"); !errdefs.IsNotFound(err) {
		t.Errorf("GetServiceByHost() error = %v, want ErrNotFound", err)
	}
}
