/*
Package dmsetup wraps the device-mapper control commands Drover needs to
run clone overlays.

A dm-clone target exposes a local destination device that serves reads
from either already-copied local regions or the remote source device,
while a background process (hydration) copies the remaining regions
over. Drover drives the target through the usual dmsetup verbs:

	create   instantiate a mapping from a table line
	load     stage a replacement table (mapping must be suspended)
	suspend  block I/O for an atomic table swap
	resume   activate the staged table and unblock I/O
	message  poke a live mapping (enable_hydration)
	status   query progress
	remove   tear the mapping down

Remove is idempotent: removing an absent mapping succeeds, so cleanup
sequences can be repeated after partial failures.

The status parser understands the clone status line:

	<start> <length> clone <meta-dev-sectors> <hydrated>/<total> \
	    <dirty-regions> <hydration-errors> <policy...> <rw|ro>

Hydration is complete exactly when hydrated == total and the hydration
error count is 0. Anything that does not match this format is reported
as an error rather than interpreted loosely; callers treat unparseable
status as "not finished" and retry later.
*/
package dmsetup
