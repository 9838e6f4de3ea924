// Package spillable implements composite data structures (sequences, maps)
// whose contents live partly in memory and partly in an ordered byte store,
// kept consistent with an externally driven windowed lifecycle.

// Mutations made during an open window are buffered in memory; EndWindow
// spills the buffer through the store adapter, which decides its own physical
// durability timing. Reads always consult the buffer before the store, so a
// structure observes its own writes immediately regardless of spilling.
//
// Every structure owns an Identifier-qualified key range inside a store
// bucket, handed out by the Allocator, so any number of structures can share
// one store without colliding. The ComplexComponent is the single object the
// surrounding engine drives: it mints structures and fans each lifecycle call
// out to them in creation order.
//
// The whole package assumes a single logical thread of control per component,
// matching the one-open-window-at-a-time lifecycle; nothing here locks.
package spillable
