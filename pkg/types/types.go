package types

import (
	"strings"
	"time"
)

// VolumeStatus represents the lifecycle state of a volume
type VolumeStatus string

const (
	VolumeStatusCreating    VolumeStatus = "creating"
	VolumeStatusAvailable   VolumeStatus = "available"
	VolumeStatusInUse       VolumeStatus = "in-use"
	VolumeStatusReserved    VolumeStatus = "reserved"
	VolumeStatusMaintenance VolumeStatus = "maintenance"
	VolumeStatusDetaching   VolumeStatus = "detaching"
	VolumeStatusError       VolumeStatus = "error"
	VolumeStatusDeleting    VolumeStatus = "deleting"
)

// AttachStatus represents whether a volume is attached to a consumer
type AttachStatus string

const (
	AttachStatusAttached AttachStatus = "attached"
	AttachStatusDetached AttachStatus = "detached"
)

// MigrationStatus is the discriminant of the migration state machine.
// It is stored on the record that currently owns the live overlay and
// moves only along:
//
//	none -> starting|migrating -> target:<id> -> completing -> success|error
type MigrationStatus string

const (
	MigrationNone       MigrationStatus = ""
	MigrationStarting   MigrationStatus = "starting"
	MigrationMigrating  MigrationStatus = "migrating"
	MigrationCompleting MigrationStatus = "completing"
	MigrationSuccess    MigrationStatus = "success"
	MigrationError      MigrationStatus = "error"
)

// migrationTargetPrefix marks a record whose data source is another volume
const migrationTargetPrefix = "target:"

// MigrationTarget builds the migration status that points at the paired
// volume with the given ID.
func MigrationTarget(volumeID string) MigrationStatus {
	return MigrationStatus(migrationTargetPrefix + volumeID)
}

// IsTarget reports whether the status carries a target pointer.
func (m MigrationStatus) IsTarget() bool {
	return strings.HasPrefix(string(m), migrationTargetPrefix)
}

// TargetID returns the volume ID the target pointer references, or ""
// if the status is not a target pointer.
func (m MigrationStatus) TargetID() string {
	if !m.IsTarget() {
		return ""
	}
	return strings.TrimPrefix(string(m), migrationTargetPrefix)
}

// VolumeRecord is the persisted representation of a block volume.
//
// ID is immutable and is what callers hold across a migration. NameID
// determines the backing storage object name and is what the identity
// swap actually exchanges.
type VolumeRecord struct {
	ID     string `json:"id"`
	NameID string `json:"name_id"`

	// Placement
	Host             string `json:"host"` // host@backend
	ClusterName      string `json:"cluster_name,omitempty"`
	AvailabilityZone string `json:"availability_zone,omitempty"`
	ProviderID       string `json:"provider_id,omitempty"`
	ProviderLocation string `json:"provider_location,omitempty"`
	ProviderAuth     string `json:"provider_auth,omitempty"`
	ProviderGeometry string `json:"provider_geometry,omitempty"`

	Status          VolumeStatus    `json:"status"`
	MigrationStatus MigrationStatus `json:"migration_status,omitempty"`
	AttachStatus    AttachStatus    `json:"attach_status"`

	SizeGiB   uint64 `json:"size_gib"`
	UserID    string `json:"user_id,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
	UseQuota  bool   `json:"use_quota"`

	Description string `json:"description,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Name returns the backing storage object name for the volume.
func (v *VolumeRecord) Name() string {
	return "volume-" + v.NameID
}

// SizeSectors returns the volume size in 512-byte sectors.
func (v *VolumeRecord) SizeSectors() uint64 {
	// GiB / 512 B per sector = 2097152 sectors per GiB
	return v.SizeGiB * 2097152
}

// swapPlacement exchanges the placement fields covered by SwapIdentity,
// NameID aside. Kept as an explicit list so the swapped field set stays
// fixed when VolumeRecord grows.
func swapPlacement(a, b *VolumeRecord) {
	a.Host, b.Host = b.Host, a.Host
	a.ClusterName, b.ClusterName = b.ClusterName, a.ClusterName
	a.AvailabilityZone, b.AvailabilityZone = b.AvailabilityZone, a.AvailabilityZone
	a.ProviderID, b.ProviderID = b.ProviderID, a.ProviderID
	a.ProviderLocation, b.ProviderLocation = b.ProviderLocation, a.ProviderLocation
	a.ProviderAuth, b.ProviderAuth = b.ProviderAuth, a.ProviderAuth
	a.ProviderGeometry, b.ProviderGeometry = b.ProviderGeometry, a.ProviderGeometry
}

// SwapIdentity exchanges the mutable naming and placement fields of two
// volume records so the caller-visible identity moves without moving
// data. IDs are untouched; the operation is its own inverse.
func SwapIdentity(a, b *VolumeRecord) {
	a.NameID, b.NameID = b.NameID, a.NameID
	swapPlacement(a, b)
}

// Service is a volume backend registered on a host. Peers resolve the
// destination of a migration through the service registry.
type Service struct {
	ID               string    `json:"id"`
	Host             string    `json:"host"` // host@backend
	Backend          string    `json:"backend"`
	AvailabilityZone string    `json:"availability_zone,omitempty"`
	ClusterName      string    `json:"cluster_name,omitempty"`
	Address          string    `json:"address"` // peer API address, host:port
	UpdatedAt        time.Time `json:"updated_at"`
}

// Connector describes the initiator requesting a volume attachment.
type Connector struct {
	Host      string `json:"host"`
	Initiator string `json:"initiator,omitempty"`
	IP        string `json:"ip,omitempty"`
	Platform  string `json:"platform,omitempty"`
	OSType    string `json:"os_type,omitempty"`
	Multipath bool   `json:"multipath,omitempty"`
}

// ConnectionData carries the attachment details handed back to the caller.
type ConnectionData struct {
	DevicePath string `json:"device_path"`
}

// ConnectionInfo is the result of initializing a connection.
type ConnectionInfo struct {
	DriverVolumeType string         `json:"driver_volume_type"`
	Data             ConnectionData `json:"data"`
}

// ExtractHost returns the bare host part of a host@backend identifier.
func ExtractHost(host string) string {
	if i := strings.IndexByte(host, '@'); i >= 0 {
		return host[:i]
	}
	return host
}

// ExtractBackend returns the backend part of a host@backend identifier,
// or "" if the identifier carries no backend.
func ExtractBackend(host string) string {
	if i := strings.IndexByte(host, '@'); i >= 0 {
		return host[i+1:]
	}
	return ""
}
