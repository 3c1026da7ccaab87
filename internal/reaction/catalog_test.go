package reaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	kinds := c.Kinds()
	require.Len(t, kinds, len(DefaultKinds))
	assert.Equal(t, Kind("like"), kinds[0].Kind)
}

func TestCatalog_Resolve(t *testing.T) {
	c := DefaultCatalog()

	r, err := c.Resolve("  LIKE ", "")
	require.NoError(t, err)
	assert.Equal(t, Reaction{Kind: "like", Label: "Like"}, r)

	r, err = c.Resolve("funny", "lol")
	require.NoError(t, err)
	assert.Equal(t, Reaction{Kind: "funny", Label: "lol"}, r)
}

func TestCatalog_ResolveUnknownKind(t *testing.T) {
	_, err := DefaultCatalog().Resolve("meh", "")
	require.Error(t, err)
	assert.True(t, IsInvalid(err))
}

func TestCatalog_ResolveNormalizesLabel(t *testing.T) {
	// "e" + combining acute accent composes to U+00E9 under NFC.
	r, err := DefaultCatalog().Resolve("wow", "cafe\u0301")
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9", r.Label)
}

func TestNewCatalog_Validation(t *testing.T) {
	tests := []struct {
		name    string
		entries []Reaction
	}{
		{"empty", nil},
		{"bad kind", []Reaction{{Kind: "thumbs up"}}},
		{"leading digit", []Reaction{{Kind: "1up"}}},
		{"duplicate", []Reaction{{Kind: "like"}, {Kind: "LIKE"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog(tt.entries)
			assert.Error(t, err)
		})
	}
}

func TestNewCatalog_DefaultsLabelToKind(t *testing.T) {
	c, err := NewCatalog([]Reaction{{Kind: "party"}})
	require.NoError(t, err)
	assert.Equal(t, "party", c.Kinds()[0].Label)
}

func TestNormalizeID(t *testing.T) {
	id, err := NormalizeID("post id", "  p1 ")
	require.NoError(t, err)
	assert.Equal(t, "p1", id)

	_, err = NormalizeID("user id", "   ")
	require.Error(t, err)
	assert.True(t, IsInvalid(err))
	assert.Contains(t, err.Error(), "user id is required")
}
