// Package reconcile implements the reaction reconciliation protocol.
//
// A Service owns every write to the reaction record store and the aggregate
// counter. One React call is one logical operation:
//
//  1. Gate: the post must exist.
//  2. Swap: under the (post, user) lock, replace the user's entry and read the
//     previous value from the same atomic store step.
//  3. Delta: reaction.ComputeDelta(previous, next).
//  4. Apply: add the delta to the counter, skipped when it is zero.
//
// CONCURRENCY:
//
// Calls for different users or posts run in parallel; there is no global lock.
// Calls for the same (post, user) are serialized. Recount takes the post's
// lock exclusively, so it never interleaves with an in-process React on that
// post.
//
// FAILURE HANDLING:
//
// A counter write failure after a successful swap marks the post dirty and the
// call fails with STORE_UNAVAILABLE. Dirty posts are rebuilt from the record
// store by the healer (RunHealer), by HealPending, or on the next Count.
// Retrying the same React is always safe: a repeated swap yields a zero delta.
package reconcile
