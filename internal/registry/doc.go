// Package registry tracks every spawned child process and owns its
// lifecycle. Each run gets a monotonically increasing run id and a Handle;
// the registry is the only component allowed to signal, kill, or wait on
// the underlying process.
//
// Termination escalates: graceful signal, kill, kill retry, each bounded
// by a grace timeout. Processes that survive all three are marked leaked
// and retried by a background sweep, so the registry never silently
// forgets a child that might still be running.
package registry
