// Package audit delivers login-flow audit events to a sink off the caller's
// goroutine.
//
// [Dispatcher] buffers events for one worker, which either drops them or
// blocks the emitter when the buffer is full. A panicking [Sink] is logged
// and counted, never propagated. [Event] carries the flow ID, the state and
// the outcome of one transition.
//
// The controller decides which events exist; this package only moves them.
//
// # What this package must NOT do
//
//   - Import authflow or any sibling internal package.
//   - Carry passwords, TOTP codes or tokens in an Event.
package audit
