// Package mute implements timed role revocation.
//
// A member is placed under the restriction role for a duration (or
// indefinitely). The restriction is persisted through a Store before any
// chat-side state changes, and a per-record timer lifts it at expiry. The
// store is the only authority on who is restricted: timers never carry
// state of their own, and a timer that fires after a manual unmute finds no
// record and does nothing.
//
// On startup Recovery re-reads every record and arms one independent timer
// per finite expiry, so restarts never lose a pending lift.
package mute
