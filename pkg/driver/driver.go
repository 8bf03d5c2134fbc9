package driver

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cuemby/drover/pkg/config"
	"github.com/cuemby/drover/pkg/connector"
	"github.com/cuemby/drover/pkg/dmsetup"
	"github.com/cuemby/drover/pkg/export"
	"github.com/cuemby/drover/pkg/log"
	"github.com/cuemby/drover/pkg/remote"
	"github.com/cuemby/drover/pkg/storage"
	"github.com/cuemby/drover/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Version of the driver, reported in stats.
const Version = "0.1.0"

// OverlayController drives a named device-mapper target.
type OverlayController interface {
	Create(ctx context.Context, name, table string) error
	Load(ctx context.Context, name, table string) error
	Suspend(ctx context.Context, name string) error
	Resume(ctx context.Context, name string) error
	Message(ctx context.Context, name string, sector uint64, message string) error
	Status(ctx context.Context, name string) (*dmsetup.Status, error)
	Remove(ctx context.Context, name string) error
}

// LocalVolumes provisions volume data in the local volume group.
type LocalVolumes interface {
	CreateVolume(ctx context.Context, name string, sizeGiB uint64) error
	Delete(ctx context.Context, name string) error
	Extend(ctx context.Context, name string, sizeGiB uint64) error
	LocalPath(name string) string
}

// MetadataAllocator provisions dm-clone metadata devices.
type MetadataAllocator interface {
	CreateVolume(ctx context.Context, name string, sizeGiB uint64) error
	Delete(ctx context.Context, name string) error
	LocalPath(name string) string
}

// ConnectionBroker attaches remote volume endpoints locally.
type ConnectionBroker interface {
	Connect(ctx context.Context, volume *types.VolumeRecord) (*connector.DeviceHandle, error)
	// Disconnect detaches locally and removes the remote export,
	// best-effort.
	Disconnect(ctx context.Context, volume *types.VolumeRecord)
	// DisconnectLocal detaches locally only, best-effort. Used by
	// rollback paths that must leave the source export alone.
	DisconnectLocal(ctx context.Context, volume *types.VolumeRecord)
}

// metadataSizeGiB is the fixed size of a hydration metadata device.
const metadataSizeGiB = 1

// Options carries the driver's collaborators. Nil fields are filled
// with the production implementations.
type Options struct {
	DM       OverlayController
	Data     LocalVolumes
	Meta     MetadataAllocator
	Broker   ConnectionBroker
	Remote   remote.VolumeService
	Exporter export.Exporter

	// Now and Sleep let tests control the bounded-wait clock.
	Now   func() time.Time
	Sleep func(time.Duration)
}

// Driver orchestrates volume provisioning and cross-host migration
// through dm-clone overlays on one host.
type Driver struct {
	cfg    *config.Config
	store  storage.Store
	dm     OverlayController
	data   LocalVolumes
	meta   MetadataAllocator
	broker ConnectionBroker
	remote remote.VolumeService
	export export.Exporter
	logger zerolog.Logger

	now   func() time.Time
	sleep func(time.Duration)

	registered atomic.Bool
}

// New creates a driver for this host.
func New(cfg *config.Config, store storage.Store, opts Options) *Driver {
	d := &Driver{
		cfg:    cfg,
		store:  store,
		dm:     opts.DM,
		data:   opts.Data,
		meta:   opts.Meta,
		broker: opts.Broker,
		remote: opts.Remote,
		export: opts.Exporter,
		logger: log.WithComponent("driver"),
		now:    opts.Now,
		sleep:  opts.Sleep,
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.sleep == nil {
		d.sleep = time.Sleep
	}
	return d
}

// BackendHost returns this daemon's host@backend identifier. ok is
// false until the service has been registered; callers treat that as a
// normal startup race and skip their work.
func (d *Driver) BackendHost() (string, bool) {
	if !d.registered.Load() {
		return "", false
	}
	return d.cfg.BackendHost(), true
}

// RegisterService publishes this daemon in the service registry.
func (d *Driver) RegisterService(ctx context.Context) error {
	service := &types.Service{
		ID:               uuid.NewString(),
		Host:             d.cfg.BackendHost(),
		Backend:          d.cfg.Backend,
		AvailabilityZone: d.cfg.AvailabilityZone,
		ClusterName:      d.cfg.ClusterName,
		Address:          d.cfg.AdvertiseAddr,
	}
	if err := d.store.UpsertService(service); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}
	d.registered.Store(true)
	d.logger.Info().Str("host", service.Host).Str("address", service.Address).
		Msg("service registered")
	return nil
}

// targetName is the dm mapping name for a volume's overlay or linear
// handle.
func targetName(volume *types.VolumeRecord) string {
	return volume.Name() + "-handle"
}

// metadataName is the metadata device name for a volume's overlay.
func metadataName(volume *types.VolumeRecord) string {
	return volume.Name() + "-metadata"
}

// TargetName exposes the mapping name for a volume.
func (d *Driver) TargetName(volume *types.VolumeRecord) string {
	return targetName(volume)
}

// LocalPath returns the backing device of a volume in the data group.
func (d *Driver) LocalPath(volume *types.VolumeRecord) string {
	return d.data.LocalPath(volume.Name())
}

// Stats describes this backend.
type Stats struct {
	BackendName   string `json:"backend_name"`
	DriverVersion string `json:"driver_version"`
	Protocol      string `json:"storage_protocol"`
	VolumeGroup   string `json:"volume_group"`
}

// GetStats reports backend identification data.
func (d *Driver) GetStats() Stats {
	return Stats{
		BackendName:   d.cfg.Backend,
		DriverVersion: Version,
		Protocol:      "iSCSI",
		VolumeGroup:   d.cfg.VolumeGroup,
	}
}
