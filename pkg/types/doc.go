/*
Package types defines the shared data structures for Drover.

The central entity is VolumeRecord, the persisted representation of a
block volume. Two identity fields matter during migration:

  - ID is immutable. Callers hold it across a migration and it is used
    for cross-referencing the two records of a migration pair.
  - NameID is mutable and determines the backing storage object name.
    The identity swap exchanges NameID (and the placement fields), so
    the caller-visible identity moves between hosts without moving data
    up front.

MigrationStatus drives the migration state machine:

	none -> starting|migrating -> target:<id> -> completing -> success|error

A record whose migration status is target:<id> owns a live dm-clone
overlay whose data source is volume <id>. Exactly one record of a
migration pair carries the target pointer while the pair is
mid-transition.

Host identifiers follow the host@backend convention: "node1@lvm" means
the lvm backend on node1. ExtractHost and ExtractBackend split them.
*/
package types
