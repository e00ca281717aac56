package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLastSplitPart(t *testing.T) {
	assert.Equal(t, "12345", LastSplitPart("promocja-dysk-12345", "-"))
	assert.Equal(t, "nodash", LastSplitPart("nodash", "-"))
	assert.Equal(t, "", LastSplitPart("trailing-", "-"))
}
