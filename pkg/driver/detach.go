package driver

import (
	"context"
	"fmt"

	"github.com/cuemby/drover/pkg/dmsetup"
	"github.com/cuemby/drover/pkg/errdefs"
	"github.com/cuemby/drover/pkg/types"
)

// TerminateConnection tears down the attachment of a volume for the
// given connector. Which path runs is decided purely from the
// persisted (migration status, status, connector host) triple:
//
//   - migrating destination, reserved: the attachment was aborted
//     before it was ever used, undo the migration.
//   - migrating destination, in-use, connector on this host: the live
//     migration failed, undo the migration.
//   - migrating destination, in-use, connector elsewhere: the live
//     migration succeeded, confirm it and start hydration.
//   - detaching: plain mapping removal.
//   - stale starting destination in maintenance: leftover mapping
//     removal.
func (d *Driver) TerminateConnection(ctx context.Context, volume *types.VolumeRecord, conn *types.Connector) error {
	d.logger.Debug().Str("volume_id", volume.ID).
		Str("status", string(volume.Status)).
		Str("migration_status", string(volume.MigrationStatus)).
		Msg("terminating connection")

	if volume.MigrationStatus.IsTarget() {
		switch {
		case volume.Status == types.VolumeStatusReserved:
			return d.rollbackMigration(ctx, volume)
		case volume.Status == types.VolumeStatusInUse:
			if conn == nil || conn.Host == "" {
				return fmt.Errorf("in-use migrating volume %s needs a connector: %w",
					volume.ID, errdefs.ErrInvalidConnector)
			}
			if conn.Host == types.ExtractHost(volume.Host) {
				return d.rollbackMigration(ctx, volume)
			}
			return d.confirmLiveMigration(ctx, volume, conn)
		}
	}

	switch {
	case volume.Status == types.VolumeStatusDetaching:
		return d.dm.Remove(ctx, targetName(volume))
	case volume.Status == types.VolumeStatusMaintenance &&
		volume.MigrationStatus == types.MigrationStarting:
		// Abandoned destination shadow; the record itself is reclaimed
		// through the normal delete path.
		return d.dm.Remove(ctx, targetName(volume))
	}
	return nil
}

// rollbackMigration undoes a started migration: identities are swapped
// back so the caller-visible volume returns to the source host, then
// the destination overlay, metadata, connection and record are removed
// in that order.
func (d *Driver) rollbackMigration(ctx context.Context, volume *types.VolumeRecord) error {
	src, err := d.store.GetVolume(volume.MigrationStatus.TargetID())
	if err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("migration pair of volume %s: %w",
				volume.ID, errdefs.ErrValidation)
		}
		return err
	}
	d.logger.Info().Str("volume_id", volume.ID).Str("destination_id", src.ID).
		Msg("rolling back migration")

	types.SwapIdentity(volume, src)
	if err := d.store.UpdateVolume(volume); err != nil {
		return fmt.Errorf("failed to persist identity swap: %w", err)
	}
	if err := d.store.UpdateVolume(src); err != nil {
		return fmt.Errorf("failed to persist identity swap: %w", err)
	}

	// src now carries the destination's naming again, so the overlay and
	// metadata device names derive from it. Both removals tolerate the
	// device already being gone.
	if err := d.dm.Remove(ctx, targetName(src)); err != nil {
		return err
	}
	if err := d.meta.Delete(ctx, metadataName(src)); err != nil {
		return err
	}

	d.broker.Disconnect(ctx, volume)

	if err := d.remote.DeleteVolume(ctx, src); err != nil {
		if errdefs.IsNotFound(err) {
			d.logger.Info().Str("destination_id", src.ID).
				Msg("destination volume already gone")
		} else {
			d.logger.Error().Err(err).Str("destination_id", src.ID).
				Msg("failed to delete destination volume")
		}
	}
	if err := d.store.DeleteVolume(src.ID); err != nil && !errdefs.IsNotFound(err) {
		d.logger.Error().Err(err).Str("destination_id", src.ID).
			Msg("failed to destroy destination record")
	}

	volume.MigrationStatus = types.MigrationNone
	if err := d.store.UpdateVolume(volume); err != nil {
		return fmt.Errorf("failed to clear migration state: %w", err)
	}
	return nil
}

// confirmLiveMigration handles a detach on the old host after the
// workload moved: the source's attachment is released remotely, the
// source record enters the migrating phase, and hydration starts on the
// local overlay.
func (d *Driver) confirmLiveMigration(ctx context.Context, volume *types.VolumeRecord, conn *types.Connector) error {
	src, err := d.store.GetVolume(volume.MigrationStatus.TargetID())
	if err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("migration pair of volume %s: %w",
				volume.ID, errdefs.ErrValidation)
		}
		return err
	}
	d.logger.Info().Str("volume_id", volume.ID).Str("source_id", src.ID).
		Str("connector_host", conn.Host).
		Msg("live migration confirmed, starting hydration")

	if err := d.remote.TerminateConnection(ctx, src, conn); err != nil {
		return err
	}

	src.MigrationStatus = types.MigrationMigrating
	if err := d.store.UpdateVolume(src); err != nil {
		return fmt.Errorf("failed to advance source migration state: %w", err)
	}

	return d.dm.Message(ctx, targetName(volume), 0, dmsetup.EnableHydration)
}
