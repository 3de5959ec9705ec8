package rc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateCause_UnderLimit(t *testing.T) {
	cause := "boom"
	assert.Equal(t, cause, TruncateCause(cause))
}

func TestTruncateCause_ExactlyAtLimit(t *testing.T) {
	cause := strings.Repeat("a", MaxCauseBytes)
	assert.Equal(t, cause, TruncateCause(cause))
}

func TestTruncateCause_OverLimit(t *testing.T) {
	cause := strings.Repeat("a", 40000)
	got := TruncateCause(cause)

	assert.Len(t, got, MaxCauseBytes)
	assert.True(t, strings.HasSuffix(got, "..."))
}
