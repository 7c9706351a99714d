// Package meltdown coordinates graceful shutdown of a dynamic set of services.
//
// It combines:
//   - a single-fire Signal whose Tokens every service can wait on
//   - errgroup-backed service goroutines
//   - a completion queue that reports services in the order they finish
//
// Core behavior:
//   - register services with Register or RegisterTagged
//   - consume completions in completion order via Next(ctx)
//   - broadcast shutdown to every service with Trigger
//   - drain the remaining services with Shutdown
//
// Semantics:
//   - Next(ctx) returns (c, true, nil) for one completed service
//   - Next(ctx) returns (zero, false, nil) once nothing is in flight
//   - Next(ctx) returns (zero, false, ctx.Err()) if caller context ends
//   - Register after a drained Next makes the registry active again
//   - Trigger never stops a service; services observe their Token and return
//
// Policy options:
//   - WithPanicIsolation(true): convert a service panic to *PanicError
//   - WithPanicIsolation(false): re-panic in the goroutine calling Next (default)
//   - WithLogger: logrus logger used for lifecycle events
//
// Dropping a Meltdown without calling Shutdown is abrupt: services that are
// still running keep their goroutines until they return, and their
// completions are discarded.
package meltdown
