/*
Package storage persists Drover's volume and service records.

The Store interface offers atomic per-record reads and writes. No
multi-record transactions exist: the migration state machine is designed
so every transition is re-derivable from single-record state plus
overlay status, which keeps the store contract minimal.

Two implementations are provided:

  - BoltStore: the authoritative store, JSON records in a local BoltDB
    file. The daemon that owns the cluster metadata (the registry) runs
    this one and serves it to peers over the HTTP API.
  - RemoteStore: an HTTP client against the registry's /v1/store
    endpoints, used by every other daemon so all hosts observe the same
    records.

Volume records are keyed by their immutable ID; service records are
keyed by their host@backend identifier.
*/
package storage
