// Package scenario runs YAML reaction scenarios against an in-memory engage
// stack and records a deterministic trace.
//
// A scenario names its posts, then lists steps. Each step does one thing:
//
//	react: <kind>     set the user's reaction (optional label)
//	remove: true      remove the user's reaction
//	recount: true     rebuild the post's count from its records
//	set_count: <n>    overwrite the counter, simulating drift
//
// and may assert expect_count or expect_error (an error code such as
// POST_NOT_FOUND). After every react or remove the runner also checks that
// the counter agrees with the record store. The trace can be compared against
// a golden file with RunWithGolden.
package scenario
