// Package gamestate holds the authoritative simulation state and the machinery
// that mutates it.
//
// State is split across two views with very different rules:
//
//   - CommittedState is the read-only view of the world as of the last
//     completed apply point. Every domain pass reads from this view, so within
//     a tick all passes observe the same snapshot regardless of what other
//     passes are staging.
//
//   - DiffBuffer is the per-domain staging area. Domain passes never mutate
//     state directly; they record proposed spawns, despawns, and component
//     writes into their own buffer. Buffers are invisible to every other
//     domain.
//
// At exactly one point per tick the EntityCommandBuffer merges all diff
// buffers in domain declaration order and flushes the result to the storage
// layer as a single multi/exec transaction, together with the tick counter
// increment and the RNG cursor. A crash between ticks therefore never leaves
// a partially applied tick behind: either the whole tick committed or none
// of it did.
//
// Conflicting writes to the same (entity, component) pair are resolved by
// last-writer-wins in domain declaration order. This is a documented,
// testable rule, not an accident of iteration order.
package gamestate
