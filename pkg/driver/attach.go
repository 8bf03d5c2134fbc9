package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/drover/pkg/dmsetup"
	"github.com/cuemby/drover/pkg/errdefs"
	"github.com/cuemby/drover/pkg/metrics"
	"github.com/cuemby/drover/pkg/types"
	"github.com/google/uuid"
)

// creationDeadline bounds the wait for the destination volume of a
// migration to come up on the remote host.
const creationDeadline = 60 * time.Second

// InitializeConnection prepares a volume for attachment by the given
// connector and returns the local device to attach.
//
// A connector on the volume's own host gets a linear mapping onto the
// local backing store. A connector on another host starts a migration:
// a shadow volume is created on the destination, the destination builds
// a clone overlay over this volume, and once it is up the two records
// swap identities so the caller-visible volume now lives on the
// destination. The returned device path always references the mapping
// of the (possibly swapped) volume.
func (d *Driver) InitializeConnection(ctx context.Context, volume *types.VolumeRecord, conn *types.Connector) (*types.ConnectionInfo, error) {
	if conn == nil || conn.Host == "" {
		return nil, fmt.Errorf("connector host is required: %w", errdefs.ErrInvalidConnector)
	}
	d.logger.Debug().Str("volume_id", volume.ID).Str("connector_host", conn.Host).
		Msg("initializing connection")

	if conn.Host == types.ExtractHost(volume.Host) {
		if err := d.createLocalMapping(ctx, volume); err != nil {
			return nil, err
		}
	} else {
		if err := d.startMigration(ctx, volume, conn); err != nil {
			return nil, err
		}
	}

	return &types.ConnectionInfo{
		DriverVolumeType: "local",
		Data: types.ConnectionData{
			DevicePath: dmsetup.DevicePath(targetName(volume)),
		},
	}, nil
}

// createLocalMapping exposes the local backing store through a linear
// mapping so local and migrating attachments look identical to callers.
// An existing mapping of the same name is replaced.
func (d *Driver) createLocalMapping(ctx context.Context, volume *types.VolumeRecord) error {
	if err := d.dm.Remove(ctx, targetName(volume)); err != nil {
		return err
	}
	table := dmsetup.LinearTable(d.LocalPath(volume), volume.SizeSectors())
	return d.dm.Create(ctx, targetName(volume), table)
}

// startMigration creates the destination shadow volume, waits for it,
// and swaps identities. On any failure the destination is retracted
// before the error is returned; the source volume stays usable.
func (d *Driver) startMigration(ctx context.Context, volume *types.VolumeRecord, conn *types.Connector) error {
	// Host-specific prep: make sure the source is exported so the
	// destination's overlay can reach it.
	location, err := d.export.EnsureExport(ctx, volume, d.LocalPath(volume))
	if err != nil {
		return err
	}
	volume.ProviderLocation = location

	// Same backend on both sides is assumed.
	dstHost := conn.Host + "@" + types.ExtractBackend(volume.Host)
	dstService, err := d.store.GetServiceByHost(dstHost)
	if err != nil {
		return fmt.Errorf("failed to resolve destination service for %s: %w", dstHost, err)
	}

	var role types.MigrationStatus
	switch volume.Status {
	case types.VolumeStatusReserved:
		// Attach is about to happen on the destination; hydrate
		// immediately.
		role = types.MigrationMigrating
	case types.VolumeStatusInUse:
		// Attach is already live elsewhere; hydration starts once the
		// live migration confirms cutover.
		role = types.MigrationStarting
	default:
		role = types.MigrationNone
	}

	newID := uuid.NewString()
	newVolume := &types.VolumeRecord{
		ID:               newID,
		NameID:           newID,
		Host:             dstService.Host,
		ClusterName:      dstService.ClusterName,
		AvailabilityZone: dstService.AvailabilityZone,
		Status:           types.VolumeStatusCreating,
		AttachStatus:     types.AttachStatusDetached,
		MigrationStatus:  role,
		UseQuota:         false, // transient shadow, not a billable resource
		SizeGiB:          volume.SizeGiB,
		UserID:           volume.UserID,
		ProjectID:        volume.ProjectID,
	}

	if err := d.store.CreateVolume(newVolume); err != nil {
		return fmt.Errorf("failed to create destination record: %w", err)
	}
	d.logger.Debug().Str("volume_id", volume.ID).Str("destination_id", newVolume.ID).
		Msg("created destination volume record")

	// The pointer must be published only after the destination record
	// exists, and both must be visible before the remote creation call:
	// the destination's creation hook and concurrent monitor ticks key
	// off it.
	volume.MigrationStatus = types.MigrationTarget(newVolume.ID)
	if err := d.store.UpdateVolume(volume); err != nil {
		return fmt.Errorf("failed to publish migration pointer: %w", err)
	}

	if err := d.remote.CreateVolume(ctx, newVolume, false); err != nil {
		d.retractDestination(ctx, volume, newVolume)
		metrics.RemoteCreationsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: %v", errdefs.ErrRemoteCreationFailed, err)
	}

	refreshed, err := d.waitForDestination(ctx, volume, newVolume)
	if err != nil {
		return err
	}
	newVolume = refreshed
	metrics.RemoteCreationsTotal.WithLabelValues("ok").Inc()

	// New volumes come up available; force maintenance so no other code
	// path can claim the shadow, and annotate it for traceability.
	newVolume.Status = types.VolumeStatusMaintenance
	newVolume.Description = "migration src for " + volume.ID
	if err := d.store.UpdateVolume(newVolume); err != nil {
		return fmt.Errorf("failed to update destination record: %w", err)
	}

	types.SwapIdentity(volume, newVolume)
	if err := d.store.UpdateVolume(volume); err != nil {
		return fmt.Errorf("failed to persist identity swap: %w", err)
	}
	if err := d.store.UpdateVolume(newVolume); err != nil {
		return fmt.Errorf("failed to persist identity swap: %w", err)
	}
	d.logger.Info().Str("volume_id", volume.ID).Str("destination_id", newVolume.ID).
		Msg("migration started, identities swapped")
	return nil
}

// waitForDestination polls the destination record until it becomes
// available, backing off tries*tries seconds between polls, for at most
// creationDeadline. On timeout or error the destination is retracted
// and a migration-specific error is returned.
func (d *Driver) waitForDestination(ctx context.Context, volume, newVolume *types.VolumeRecord) (*types.VolumeRecord, error) {
	deadline := d.now().Add(creationDeadline)
	tries := 0

	current, err := d.store.GetVolume(newVolume.ID)
	if err != nil {
		return nil, err
	}
	for current.Status != types.VolumeStatusAvailable {
		tries++
		if d.now().After(deadline) || current.Status == types.VolumeStatusError {
			d.retractDestination(ctx, volume, current)
			metrics.RemoteCreationsTotal.WithLabelValues("error").Inc()
			if current.Status == types.VolumeStatusError {
				return nil, fmt.Errorf("destination volume %s: %w",
					current.ID, errdefs.ErrRemoteCreationFailed)
			}
			return nil, fmt.Errorf("destination volume %s: %w",
				current.ID, errdefs.ErrRemoteCreationTimeout)
		}
		d.sleep(time.Duration(tries*tries) * time.Second)

		current, err = d.store.GetVolume(newVolume.ID)
		if err != nil {
			return nil, err
		}
	}
	return current, nil
}

// retractDestination rolls back a half-created destination: its backing
// storage and record are deleted and the origin's migration state is
// marked failed. Rollback failures are logged, never returned, so they
// cannot mask the original error.
func (d *Driver) retractDestination(ctx context.Context, volume, newVolume *types.VolumeRecord) {
	cleanupCtx := context.WithoutCancel(ctx)

	if err := d.remote.DeleteVolume(cleanupCtx, newVolume); err != nil {
		if errdefs.IsNotFound(err) {
			d.logger.Info().Str("destination_id", newVolume.ID).
				Msg("destination volume already gone, nothing to clean up")
		} else {
			d.logger.Error().Err(err).Str("destination_id", newVolume.ID).
				Msg("failed to delete destination volume")
		}
	}
	if err := d.store.DeleteVolume(newVolume.ID); err != nil {
		d.logger.Error().Err(err).Str("destination_id", newVolume.ID).
			Msg("failed to destroy destination record")
	}

	volume.MigrationStatus = types.MigrationError
	if err := d.store.UpdateVolume(volume); err != nil {
		d.logger.Error().Err(err).Str("volume_id", volume.ID).
			Msg("failed to mark origin migration state")
	}
}
