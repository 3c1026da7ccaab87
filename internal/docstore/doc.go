// Package docstore is the MongoDB backend for engage.
//
// Layout:
//
//	posts      {_id, reactionCount, commentCount, reactionKinds: {kind: n}, updatedAt}
//	reactions  {postId, userId, kind, label, updatedAt}   unique (postId, userId)
//
// Every reaction entry is its own document, so a user's write never rewrites
// the post's whole reaction map. SwapUserReaction uses FindOneAndUpdate /
// FindOneAndDelete and reads the pre-image from the same server-side atomic
// operation. ApplyDelta is a single pipeline update on the post document that
// clamps with $max, so concurrent deltas cannot lose updates.
package docstore
