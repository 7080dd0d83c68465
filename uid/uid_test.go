package uid

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestIDTextRoundTrip(t *testing.T) {
	id := New()

	text, err := id.MarshalText()
	assert.NilError(t, err)

	parsed, err := Parse(text)
	assert.NilError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParse(t *testing.T) {
	t.Run("rejects invalid characters", func(t *testing.T) {
		_, err := Parse([]byte("self#referential"))
		assert.ErrorContains(t, err, "invalid id")
	})
	t.Run("rejects zero", func(t *testing.T) {
		_, err := Parse([]byte("1"))
		assert.ErrorContains(t, err, "invalid id")
	})
}

func TestNewIsUnique(t *testing.T) {
	seen := make(map[ID]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := New()
		_, ok := seen[id]
		assert.Assert(t, !ok, "duplicate id %v", id)
		seen[id] = struct{}{}
	}
}
