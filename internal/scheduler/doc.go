// Package scheduler serialises every mutation of a module and owns the
// timers that drive its automated pins.
//
// Each module gets one worker goroutine with a FIFO queue. Commands from
// the controller, timer firings and sensor readings are all queued there,
// so transitions on one module apply strictly in arrival order while
// different modules run in parallel.
//
// A mutation runs against a deep copy of the cached aggregate. The copy is
// saved to the module.Store and only replaces the cache once the save has
// succeeded; on failure it is discarded and the cache, timers and devices
// are left as they were.
//
// After each commit the worker reconciles timers against the new pin
// states: at most one timer exists per auto pin, and every timer carries
// a generation number so a firing that raced a cancellation is dropped.
// The resulting directives go to a per-module outbox that feeds the Sink
// from its own goroutine in commit order.
//
// Readers that only need the last committed state use View, which reads
// an atomically published copy and never waits on the queue.
package scheduler
