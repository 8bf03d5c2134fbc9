// Package remote calls volume operations on peer Drover daemons.
//
// The VolumeService interface is the boundary the migration logic
// depends on; Client implements it over the peers' HTTP API, resolving
// each volume's daemon through the service registry.
package remote

import (
	"context"

	"github.com/cuemby/drover/pkg/types"
)

// VolumeService executes volume operations on the daemon that owns the
// volume's host.
type VolumeService interface {
	// CreateVolume asks the owning daemon to provision the backing
	// storage for an already-persisted volume record. Provisioning is
	// asynchronous; callers observe progress through the record status.
	// Rescheduling to another host is refused when allowReschedule is
	// false.
	CreateVolume(ctx context.Context, volume *types.VolumeRecord, allowReschedule bool) error

	// DeleteVolume asks the owning daemon to tear down the backing
	// storage and destroy the record.
	DeleteVolume(ctx context.Context, volume *types.VolumeRecord) error

	// RemoveExport asks the owning daemon to stop exporting the volume.
	RemoveExport(ctx context.Context, volume *types.VolumeRecord, sync bool) error

	// TerminateConnection runs the owning daemon's detach logic for the
	// given connector.
	TerminateConnection(ctx context.Context, volume *types.VolumeRecord, connector *types.Connector) error
}
