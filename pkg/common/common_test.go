package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUUIDint64Unique(t *testing.T) {
	seen := make(map[int64]struct{})
	for i := 0; i < 1000; i++ {
		id := UUIDint64()
		_, dup := seen[id]
		assert.False(t, dup)
		seen[id] = struct{}{}
	}
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "rose-gold-ring-18k", Slugify("  Rose Gold Ring (18K) "))
	assert.Equal(t, "", Slugify("---"))
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "9876543210", NormalizePhone("+91 98765-43210"))
	assert.Equal(t, "9876543210", NormalizePhone("9876543210"))
	assert.Equal(t, "******3210", MaskPhone("9876543210"))
}
