// Package driver implements the volume driver that provisions local
// logical volumes and migrates them between hosts without downtime.
//
// A volume normally lives entirely on one host: a logical volume in the
// data group, exposed to attachments through a linear device-mapper
// mapping. Migration starts when an attachment request arrives for a
// host other than the volume's current one. The driver then:
//
//  1. Exports the source volume and records the export location.
//  2. Creates a shadow volume record placed on the destination and
//     publishes a target pointer from the origin record to it.
//  3. Asks the destination daemon to provision the shadow. The
//     destination's creation hook connects to the source export,
//     allocates a hydration metadata device, and builds a dm-clone
//     overlay that serves reads from the source until the local copy
//     is populated.
//  4. Waits, bounded, for the shadow to come up, then swaps the
//     identities of the two records so the caller-visible volume now
//     lives on the destination while the shadow keeps the source
//     placement in maintenance.
//
// From then on the migration monitor watches the overlay's hydration
// progress and calls CompleteMigration once every region is local: the
// overlay is atomically replaced by a linear mapping, the metadata
// device is released, and the source side is disconnected and deleted.
//
// Detach requests dispatch purely on persisted state. A detach before
// the migrated attachment was used, or on the destination while still
// in use, rolls the migration back; a detach on the old host while the
// destination is in use confirms a successful live migration and starts
// hydration.
//
// All collaborators (overlay control, volume groups, connection broker,
// peer service, exporter) are interfaces so tests can run the full
// migration logic against fakes.
package driver
