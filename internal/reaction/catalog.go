package reaction

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var kindPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,31}$`)

// DefaultKinds is the catalog used when none is configured.
var DefaultKinds = []Reaction{
	{Kind: "like", Label: "Like"},
	{Kind: "love", Label: "Love"},
	{Kind: "funny", Label: "Funny"},
	{Kind: "wow", Label: "Wow"},
	{Kind: "sad", Label: "Sad"},
	{Kind: "angry", Label: "Angry"},
}

// Catalog is the set of reaction kinds a deployment accepts.
// Kinds double as storage field names, so they are restricted to
// lowercase identifiers.
type Catalog struct {
	kinds  []Reaction
	byKind map[Kind]Reaction
}

// NewCatalog validates entries and builds a catalog.
// Declaration order is preserved by Kinds.
func NewCatalog(entries []Reaction) (*Catalog, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("catalog: no reaction kinds")
	}
	c := &Catalog{
		kinds:  make([]Reaction, 0, len(entries)),
		byKind: make(map[Kind]Reaction, len(entries)),
	}
	for _, e := range entries {
		kind := Kind(strings.ToLower(strings.TrimSpace(string(e.Kind))))
		if !kindPattern.MatchString(string(kind)) {
			return nil, fmt.Errorf("catalog: invalid kind %q", e.Kind)
		}
		if _, dup := c.byKind[kind]; dup {
			return nil, fmt.Errorf("catalog: duplicate kind %q", kind)
		}
		label := normalize(e.Label)
		if label == "" {
			label = string(kind)
		}
		r := Reaction{Kind: kind, Label: label}
		c.kinds = append(c.kinds, r)
		c.byKind[kind] = r
	}
	return c, nil
}

// DefaultCatalog returns a catalog of DefaultKinds.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultKinds)
	if err != nil {
		panic(err) // DefaultKinds is static
	}
	return c
}

// Kinds returns the catalog entries in declaration order.
func (c *Catalog) Kinds() []Reaction {
	out := make([]Reaction, len(c.kinds))
	copy(out, c.kinds)
	return out
}

// Resolve turns caller input into a Reaction. The kind is matched
// case-insensitively; an empty label falls back to the catalog label.
func (c *Catalog) Resolve(kind, label string) (Reaction, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(kind)))
	known, ok := c.byKind[k]
	if !ok {
		return Reaction{}, NewInvalid(fmt.Sprintf("unknown reaction kind %q", kind))
	}
	label = normalize(label)
	if label == "" {
		label = known.Label
	}
	return Reaction{Kind: k, Label: label}, nil
}

// NormalizeID trims and NFC-normalizes a post or user identifier so that
// visually identical IDs map to the same key.
func NormalizeID(field, id string) (string, error) {
	id = normalize(id)
	if id == "" {
		return "", NewInvalid(field + " is required")
	}
	return id, nil
}

func normalize(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
