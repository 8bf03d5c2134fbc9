package driver

import (
	"context"
	"fmt"

	"github.com/cuemby/drover/pkg/dmsetup"
	"github.com/cuemby/drover/pkg/errdefs"
	"github.com/cuemby/drover/pkg/types"
)

// CreateVolume provisions the backing storage for a volume record.
//
// For a plain volume this is a single logical volume in the data group.
// For a record created as the destination of a migration (migration
// status starting or migrating) it additionally builds the hydration
// metadata device and the clone overlay over the source volume. A
// record in the migrating role gets hydration enabled immediately; in
// the starting role hydration waits for the cutover confirmation that
// arrives through TerminateConnection.
func (d *Driver) CreateVolume(ctx context.Context, volume *types.VolumeRecord) error {
	d.logger.Debug().Str("volume_id", volume.ID).
		Str("migration_status", string(volume.MigrationStatus)).
		Msg("creating volume")

	if err := d.data.CreateVolume(ctx, volume.Name(), volume.SizeGiB); err != nil {
		return err
	}

	switch volume.MigrationStatus {
	case types.MigrationStarting, types.MigrationMigrating:
		if err := d.createMigrationOverlay(ctx, volume); err != nil {
			return err
		}
	}
	return nil
}

// createMigrationOverlay wires the clone overlay for a migration
// destination. Every step already completed is undone on failure, the
// record is marked failed, and the original error is returned.
func (d *Driver) createMigrationOverlay(ctx context.Context, volume *types.VolumeRecord) (err error) {
	var (
		source      *types.VolumeRecord
		connected   bool
		metaCreated bool
		overlayMade bool
	)

	defer func() {
		if err == nil {
			return
		}
		d.logger.Error().Err(err).Str("volume_id", volume.ID).
			Msg("failed to create migration volume, rolling back")

		volume.Status = types.VolumeStatusError
		volume.MigrationStatus = types.MigrationError
		if uerr := d.store.UpdateVolume(volume); uerr != nil {
			d.logger.Error().Err(uerr).Str("volume_id", volume.ID).
				Msg("failed to persist error state")
		}

		cleanupCtx := context.WithoutCancel(ctx)
		if overlayMade {
			if rerr := d.dm.Remove(cleanupCtx, targetName(volume)); rerr != nil {
				d.logger.Error().Err(rerr).Msg("rollback: failed to remove overlay")
			}
		}
		if connected {
			d.broker.DisconnectLocal(cleanupCtx, source)
		}
		if metaCreated {
			if rerr := d.meta.Delete(cleanupCtx, metadataName(volume)); rerr != nil {
				d.logger.Error().Err(rerr).Msg("rollback: failed to delete metadata device")
			}
		}
		if rerr := d.data.Delete(cleanupCtx, volume.Name()); rerr != nil {
			d.logger.Error().Err(rerr).Msg("rollback: failed to delete backing volume")
		}
	}()

	// The record pointing at us was persisted before our creation was
	// requested, so a missing pairing is a hard validation failure.
	source, err = d.store.GetVolumeByMigrationTarget(volume.ID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("source volume for migration volume %s: %w",
				volume.ID, errdefs.ErrValidation)
		}
		return err
	}
	d.logger.Debug().Str("volume_id", volume.ID).Str("source_id", source.ID).
		Msg("found migration source")

	handle, err := d.broker.Connect(ctx, source)
	if err != nil {
		return err
	}
	connected = true

	if err = d.meta.CreateVolume(ctx, metadataName(volume), metadataSizeGiB); err != nil {
		return err
	}
	metaCreated = true

	table := dmsetup.CloneTable(
		d.meta.LocalPath(metadataName(volume)),
		d.LocalPath(volume),
		handle.Path,
		volume.SizeSectors(),
	)
	if err = d.dm.Create(ctx, targetName(volume), table); err != nil {
		return err
	}
	overlayMade = true

	if volume.MigrationStatus == types.MigrationMigrating {
		// Attach is already live on this host; start copying right away.
		if err = d.dm.Message(ctx, targetName(volume), 0, dmsetup.EnableHydration); err != nil {
			return err
		}
	}
	return nil
}

// DeleteVolume tears down a volume: any leftover mapping, migration
// plumbing and export go first, then the backing storage. Everything
// but the final data removal is best-effort so a half-built migration
// leftover can always be reclaimed.
func (d *Driver) DeleteVolume(ctx context.Context, volume *types.VolumeRecord) error {
	d.logger.Debug().Str("volume_id", volume.ID).Msg("deleting volume")

	if err := d.dm.Remove(ctx, targetName(volume)); err != nil {
		d.logger.Error().Err(err).Str("volume_id", volume.ID).
			Msg("failed to remove mapping before delete")
	}
	// A migration destination holds a connection to its source export.
	if src, err := d.store.GetVolumeByMigrationTarget(volume.ID); err == nil {
		d.broker.DisconnectLocal(ctx, src)
	}
	if err := d.meta.Delete(ctx, metadataName(volume)); err != nil {
		d.logger.Error().Err(err).Str("volume_id", volume.ID).
			Msg("failed to delete metadata device")
	}
	if err := d.export.RemoveExport(ctx, volume); err != nil {
		d.logger.Error().Err(err).Str("volume_id", volume.ID).
			Msg("failed to remove export before delete")
	}
	return d.data.Delete(ctx, volume.Name())
}

// RemoveExport drops the volume's export on this host.
func (d *Driver) RemoveExport(ctx context.Context, volume *types.VolumeRecord) error {
	return d.export.RemoveExport(ctx, volume)
}

// ExtendVolume grows the backing storage for a volume.
func (d *Driver) ExtendVolume(ctx context.Context, volume *types.VolumeRecord, sizeGiB uint64) error {
	return d.data.Extend(ctx, volume.Name(), sizeGiB)
}
