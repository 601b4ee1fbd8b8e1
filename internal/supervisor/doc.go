// Package supervisor owns the live messaging sessions of the gateway.
//
// A Supervisor keeps one client per session id, mirrors every membership
// and readiness change into the registry, and publishes lifecycle events on
// the bus. Client callbacks never touch shared state directly: they enqueue
// a signal tagged with the client generation, and a single loop goroutine
// applies signals in order. Signals from a client that has since been
// replaced are discarded.
//
// Disconnected sessions are torn down, their descriptor removed, and then
// recreated after the restart backoff so they can pair again. The default
// backoff restarts immediately and never gives up.
package supervisor
