// Package reaction defines the value types shared by every engage component:
// reactions, per-post reaction records, aggregate tallies and the deltas that
// move a tally from one record state to the next.
//
// # Delta Table
//
// ComputeDelta maps a (previous, next) pair for one user to the change the
// aggregate counter must absorb:
//
//	previous  next   total  histogram
//	nil       R      +1     R+1
//	A         B      0      A-1, B+1   (kind change, still one active reaction)
//	A         nil    -1     A-1
//	nil       nil    0      -          (no-op)
//	A         A      0      -          (no-op, re-application)
//
// Reactions compare by kind. Labels are display data only.
//
// # Errors
//
// All failures surfaced by engage are *Error values carrying a Code. Use the
// IsXxx helpers, which see through wrapping.
package reaction
