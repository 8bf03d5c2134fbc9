package connector

import (
	"context"
	"fmt"
	"strings"

	"github.com/cuemby/drover/pkg/errdefs"
	"github.com/cuemby/drover/pkg/types"
)

// ConnectionProperties describes a network block endpoint for a volume.
type ConnectionProperties struct {
	VolumeID     string
	TargetPortal string // host:port
	TargetIQN    string
	TargetLun    string
	AuthMethod   string
	AuthUsername string
	AuthPassword string
}

// DeviceHandle is an attached endpoint on the local host.
type DeviceHandle struct {
	Path string
}

// Connector attaches and detaches network block endpoints.
type Connector interface {
	// ConnectVolume logs into the endpoint and returns the local device.
	ConnectVolume(ctx context.Context, props ConnectionProperties) (*DeviceHandle, error)

	// DisconnectVolume tears the local attachment down. With force set,
	// errors from the transport are ignored as far as possible.
	DisconnectVolume(ctx context.Context, props ConnectionProperties, devicePath string, force bool) error
}

// PropertiesFromVolume derives connection properties from a volume's
// provider fields. ProviderLocation follows the "portal,id iqn lun"
// convention; ProviderAuth is "CHAP username password" when set.
func PropertiesFromVolume(volume *types.VolumeRecord) (ConnectionProperties, error) {
	props := ConnectionProperties{VolumeID: volume.ID}

	fields := strings.Fields(volume.ProviderLocation)
	if len(fields) != 3 {
		return props, fmt.Errorf("bad provider location %q for volume %s: %w",
			volume.ProviderLocation, volume.ID, errdefs.ErrValidation)
	}
	props.TargetPortal = strings.SplitN(fields[0], ",", 2)[0]
	props.TargetIQN = fields[1]
	props.TargetLun = fields[2]

	if volume.ProviderAuth != "" {
		auth := strings.Fields(volume.ProviderAuth)
		if len(auth) != 3 {
			return props, fmt.Errorf("bad provider auth for volume %s: %w",
				volume.ID, errdefs.ErrValidation)
		}
		props.AuthMethod = auth[0]
		props.AuthUsername = auth[1]
		props.AuthPassword = auth[2]
	}

	return props, nil
}
