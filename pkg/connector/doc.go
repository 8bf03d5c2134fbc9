/*
Package connector attaches network block endpoints to the local host.

The Connector interface covers the transport-level work (today:
open-iscsi). The Broker sits above it and speaks in volumes: it derives
connection properties from a volume's provider fields, attaches or
detaches the endpoint, and asks the volume's owning daemon to remove
its export on disconnect.

Disconnects are deliberately best-effort. During migration a stuck
export on the source host must never block the state machine, so the
broker logs transport failures instead of propagating them.
*/
package connector
