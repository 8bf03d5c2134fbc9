package storage

import (
	"github.com/cuemby/drover/pkg/types"
)

// Store is the metadata store for volume and service records.
//
// All writes are atomic per record; no multi-record transactions are
// offered or assumed. Implementations must return errdefs.ErrNotFound
// (wrapped) for missing records.
type Store interface {
	// Volumes
	CreateVolume(volume *types.VolumeRecord) error
	GetVolume(id string) (*types.VolumeRecord, error)
	ListVolumes() ([]*types.VolumeRecord, error)
	ListVolumesByHost(host string) ([]*types.VolumeRecord, error)
	// GetVolumeByMigrationTarget returns the record whose migration
	// status points at the given volume ID.
	GetVolumeByMigrationTarget(id string) (*types.VolumeRecord, error)
	UpdateVolume(volume *types.VolumeRecord) error
	DeleteVolume(id string) error

	// Services
	UpsertService(service *types.Service) error
	GetServiceByHost(host string) (*types.Service, error)
	ListServices() ([]*types.Service, error)

	// Utility
	Close() error
}
