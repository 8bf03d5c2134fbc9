// Package api exposes the daemon's HTTP surface.
//
// Three groups of routes share one listener:
//
//   - /v1/volumes: the volume service. Admin clients create, list,
//     attach and delete volumes here; peer daemons use the provision,
//     delete, remove-export and terminate sub-routes to run operations
//     on the host that owns a volume.
//   - /v1/store: the shared record registry, served by the daemon that
//     owns the metadata store and consumed by every other daemon
//     through the storage.RemoteStore client.
//   - /healthz and /metrics for liveness checks and Prometheus.
//
// Provisioning is the only asynchronous operation: it is acknowledged
// with 202 and its outcome lands in the volume record's status, which
// the caller polls.
package api
