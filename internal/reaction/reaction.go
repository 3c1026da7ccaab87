package reaction

import (
	"sort"
	"time"
)

// Kind identifies a reaction type, e.g. "like" or "funny".
type Kind string

// Reaction is an immutable reaction value: a kind tag plus its display label.
type Reaction struct {
	Kind  Kind   `json:"kind" yaml:"kind" mapstructure:"kind"`
	Label string `json:"label" yaml:"label" mapstructure:"label"`
}

// SameKind reports whether two reactions are interchangeable for counting.
func (r Reaction) SameKind(other Reaction) bool {
	return r.Kind == other.Kind
}

// Record is the reaction map for one post, keyed by user ID.
// A user without an entry has no active reaction.
type Record map[string]Reaction

// Tally counts the active reactions in the record.
func (r Record) Tally() Tally {
	t := Tally{Total: int64(len(r)), Kinds: make(map[Kind]int64)}
	for _, re := range r {
		t.Kinds[re.Kind]++
	}
	return t
}

// Users returns the user IDs in the record in ascending order.
func (r Record) Users() []string {
	users := make([]string, 0, len(r))
	for u := range r {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

// Tally is the aggregate counter value for a post.
type Tally struct {
	Total int64          `json:"total"`
	Kinds map[Kind]int64 `json:"kinds,omitempty"`
}

// Equal compares totals and histograms. Zero histogram entries are ignored.
func (t Tally) Equal(other Tally) bool {
	if t.Total != other.Total {
		return false
	}
	for k, n := range t.Kinds {
		if n != other.Kinds[k] {
			return false
		}
	}
	for k, n := range other.Kinds {
		if n != t.Kinds[k] {
			return false
		}
	}
	return true
}

// Apply returns the tally shifted by d, clamped at zero.
// clamped is true when any field would have gone negative.
func (t Tally) Apply(d Delta) (next Tally, clamped bool) {
	next = Tally{Total: t.Total + d.Total, Kinds: make(map[Kind]int64, len(t.Kinds))}
	if next.Total < 0 {
		next.Total = 0
		clamped = true
	}
	for k, n := range t.Kinds {
		next.Kinds[k] = n
	}
	for k, n := range d.Kinds {
		v := next.Kinds[k] + n
		if v < 0 {
			v = 0
			clamped = true
		}
		next.Kinds[k] = v
	}
	for k, n := range next.Kinds {
		if n == 0 {
			delete(next.Kinds, k)
		}
	}
	return next, clamped
}

// Delta is a change to apply to a Tally.
type Delta struct {
	Total int64
	Kinds map[Kind]int64
}

// IsZero reports whether applying d would change nothing.
func (d Delta) IsZero() bool {
	if d.Total != 0 {
		return false
	}
	for _, n := range d.Kinds {
		if n != 0 {
			return false
		}
	}
	return true
}

// ComputeDelta returns the counter change caused by replacing prev with next
// for a single user. Either side may be nil (no active reaction).
func ComputeDelta(prev, next *Reaction) Delta {
	switch {
	case prev == nil && next == nil:
		return Delta{}
	case prev == nil:
		return Delta{Total: 1, Kinds: map[Kind]int64{next.Kind: 1}}
	case next == nil:
		return Delta{Total: -1, Kinds: map[Kind]int64{prev.Kind: -1}}
	case prev.SameKind(*next):
		return Delta{}
	default:
		return Delta{Kinds: map[Kind]int64{prev.Kind: -1, next.Kind: 1}}
	}
}

// Post is the slice of the external post record that engage reads.
// ReactionCount mirrors Tally.Total; CommentCount is maintained by the
// same clamped-delta protocol on behalf of the comment service.
type Post struct {
	ID            string    `json:"id"`
	ReactionCount int64     `json:"reactionCount"`
	CommentCount  int64     `json:"commentCount"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
