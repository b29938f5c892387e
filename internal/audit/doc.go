// Package audit records security-relevant account events.
//
// Events are built with [New] from a [Type], which also fixes the event's
// [Category]. A [Dispatcher] relays them to a [Sink] from one goroutine.
// Under backpressure with DropIfFull, ordinary events are dropped and
// counted, while critical types (a triggered lockout, a replayed TOTP code,
// a consumed backup code) wait for buffer space.
//
// This package does not decide which events to emit; the engine does.
// It must not import the notevault root package.
package audit
