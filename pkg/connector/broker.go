package connector

import (
	"context"
	"fmt"

	"github.com/cuemby/drover/pkg/log"
	"github.com/cuemby/drover/pkg/remote"
	"github.com/cuemby/drover/pkg/types"
	"github.com/rs/zerolog"
)

// Broker obtains block endpoints for volumes and tears them down again,
// including the remote export behind them.
type Broker struct {
	connector Connector
	remote    remote.VolumeService
	logger    zerolog.Logger
}

// NewBroker creates a broker over the given connector and peer service.
func NewBroker(conn Connector, remoteSvc remote.VolumeService) *Broker {
	return &Broker{
		connector: conn,
		remote:    remoteSvc,
		logger:    log.WithComponent("broker"),
	}
}

// Connect attaches the volume's endpoint and returns the local device.
func (b *Broker) Connect(ctx context.Context, volume *types.VolumeRecord) (*DeviceHandle, error) {
	props, err := PropertiesFromVolume(volume)
	if err != nil {
		return nil, err
	}
	handle, err := b.connector.ConnectVolume(ctx, props)
	if err != nil {
		return nil, fmt.Errorf("failed to connect volume %s: %w", volume.ID, err)
	}
	return handle, nil
}

// Disconnect detaches the volume's endpoint and asks the owning daemon
// to remove the export. Both steps are best-effort: a stuck export must
// never block migration progress, so failures are logged, not returned.
func (b *Broker) Disconnect(ctx context.Context, volume *types.VolumeRecord) {
	b.DisconnectLocal(ctx, volume)

	b.logger.Debug().Str("volume_id", volume.ID).Msg("removing remote export")
	if err := b.remote.RemoveExport(ctx, volume, true); err != nil {
		b.logger.Error().Err(err).Str("volume_id", volume.ID).
			Msg("failed to remove remote export")
	}
}

// DisconnectLocal detaches the volume's endpoint without touching the
// remote export. Rollback paths use it so an aborted migration leaves
// the source export in place. Best-effort, like Disconnect.
func (b *Broker) DisconnectLocal(ctx context.Context, volume *types.VolumeRecord) {
	props, err := PropertiesFromVolume(volume)
	if err != nil {
		b.logger.Error().Err(err).Str("volume_id", volume.ID).
			Msg("cannot derive connection properties, skipping local disconnect")
		return
	}
	if err := b.connector.DisconnectVolume(ctx, props, devicePath(props), true); err != nil {
		b.logger.Error().Err(err).Str("volume_id", volume.ID).
			Msg("failed to disconnect volume")
	}
}
