// Package monitor runs the periodic scan that drives migrations to
// completion.
//
// Each tick lists the volumes owned by this daemon's backend, picks the
// ones carrying an active migration pointer, and reads their overlay
// status. A fully hydrated overlay triggers finalization through the
// driver; anything else is left alone and looked at again on the next
// tick. There is no retry cap: a migration that cannot finalize stays
// active until it succeeds or an operator intervenes.
//
// The monitor never repairs state on its own. A mapping that is not a
// clone target, a status line it cannot parse, or a finalization error
// all result in a logged skip, because every transition must remain
// derivable from persisted records if the daemon restarts mid-flight.
package monitor
