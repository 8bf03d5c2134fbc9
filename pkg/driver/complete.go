package driver

import (
	"context"
	"fmt"

	"github.com/cuemby/drover/pkg/dmsetup"
	"github.com/cuemby/drover/pkg/errdefs"
	"github.com/cuemby/drover/pkg/metrics"
	"github.com/cuemby/drover/pkg/types"
)

// OverlayStatus reports the live mapping status of a volume's handle.
func (d *Driver) OverlayStatus(ctx context.Context, volume *types.VolumeRecord) (*dmsetup.Status, error) {
	return d.dm.Status(ctx, targetName(volume))
}

// CompleteMigration finalizes a fully hydrated migration: the clone
// overlay is atomically replaced by a linear mapping onto the local
// copy, the hydration metadata is released, and the source side is
// disconnected and deleted. The volume keeps serving I/O throughout;
// only the suspend/resume window pauses it.
func (d *Driver) CompleteMigration(ctx context.Context, volume *types.VolumeRecord) error {
	d.logger.Info().Str("volume_id", volume.ID).Msg("completing migration")

	var src *types.VolumeRecord
	if id := volume.MigrationStatus.TargetID(); id != "" {
		var err error
		src, err = d.store.GetVolume(id)
		if err != nil {
			if !errdefs.IsNotFound(err) {
				// Transient store failure: leave all state untouched so
				// the next tick retries the whole finalization.
				return fmt.Errorf("failed to load migration pair %s: %w", id, err)
			}
			// A missing pair record can legitimately remain from a
			// partial earlier completion; finish the local side anyway.
			d.logger.Warn().Err(err).Str("volume_id", volume.ID).Str("pair_id", id).
				Msg("migration pair record not found")
			src = nil
		}
	}

	volume.MigrationStatus = types.MigrationCompleting
	if err := d.store.UpdateVolume(volume); err != nil {
		return fmt.Errorf("failed to enter completing state: %w", err)
	}

	name := targetName(volume)
	table := dmsetup.LinearTable(d.LocalPath(volume), volume.SizeSectors())

	if err := d.dm.Suspend(ctx, name); err != nil {
		metrics.MigrationFinalizationsTotal.WithLabelValues("error").Inc()
		return err
	}
	if err := d.dm.Load(ctx, name, table); err != nil {
		metrics.MigrationFinalizationsTotal.WithLabelValues("error").Inc()
		// Resume with the old table so the volume keeps working.
		if rerr := d.dm.Resume(ctx, name); rerr != nil {
			d.logger.Error().Err(rerr).Str("volume_id", volume.ID).
				Msg("failed to resume overlay after load failure")
		}
		return err
	}
	if err := d.dm.Resume(ctx, name); err != nil {
		metrics.MigrationFinalizationsTotal.WithLabelValues("error").Inc()
		return err
	}

	if err := d.meta.Delete(ctx, metadataName(volume)); err != nil {
		d.logger.Error().Err(err).Str("volume_id", volume.ID).
			Msg("failed to delete metadata device")
	}

	if src != nil {
		d.broker.Disconnect(ctx, src)

		if err := d.remote.DeleteVolume(ctx, src); err != nil {
			if errdefs.IsNotFound(err) {
				d.logger.Info().Str("source_id", src.ID).Msg("source volume already gone")
			} else {
				d.logger.Error().Err(err).Str("source_id", src.ID).
					Msg("failed to delete source volume")
			}
		}
		if err := d.store.DeleteVolume(src.ID); err != nil && !errdefs.IsNotFound(err) {
			d.logger.Error().Err(err).Str("source_id", src.ID).
				Msg("failed to destroy source record")
		}
	}

	volume.MigrationStatus = types.MigrationSuccess
	if err := d.store.UpdateVolume(volume); err != nil {
		return fmt.Errorf("failed to record migration success: %w", err)
	}
	metrics.MigrationFinalizationsTotal.WithLabelValues("ok").Inc()
	d.logger.Info().Str("volume_id", volume.ID).Msg("migration completed")
	return nil
}
