package shortid_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bootarou/xympay-sub000/pkg/shortid"
)

func Test_String(t *testing.T) {
	t.Run("Length", func(t *testing.T) {
		assert.Len(t, shortid.String(shortid.CharsetUpperAlphaNumeric, 8), 8)
		assert.Len(t, shortid.String(shortid.CharsetUpperAlphaNumeric, 32), 32)
	})

	t.Run("CharsetMembership", func(t *testing.T) {
		id := shortid.String(shortid.CharsetUpperAlphaNumeric, 64)
		for _, r := range id {
			assert.True(t, strings.ContainsRune(shortid.CharsetUpperAlphaNumeric, r), "unexpected rune %q", r)
		}
	})

	t.Run("NoImmediateCollision", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 1000; i++ {
			id := shortid.String(shortid.CharsetUpperAlphaNumeric, 8)
			assert.False(t, seen[id], "duplicate id %s", id)
			seen[id] = true
		}
	})
}
