package deal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePrice(t *testing.T) {
	testCases := []struct {
		input    string
		expected *float64
	}{
		{"129,99 zł", ptr(129.99)},
		{"1 299 zł", ptr(1299)},
		{"2999 zł", ptr(2999)},
		{"0 zł", ptr(0)},
		{"ZA DARMO", ptr(0)},
		{"Free", ptr(0)},
		{"Bezpłatnie", ptr(0)},
		{"", nil},
		{"???", nil},
		{"od 99 zł", nil},
	}

	for _, tc := range testCases {
		got := ParsePrice(tc.input)
		if tc.expected == nil {
			assert.Nil(t, got, "price should not parse: %q", tc.input)
			continue
		}
		assert.NotNil(t, got, "price should parse: %q", tc.input)
		if got != nil {
			assert.InDelta(t, *tc.expected, *got, 0.001, "parsed value for %q", tc.input)
		}
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("RTX 4070", "https://example.com/d/1", "2999 zł")
	b := Fingerprint("RTX 4070", "https://example.com/d/1", "2999 zł")
	c := Fingerprint("RTX 4070", "https://example.com/d/1", "2799 zł")

	assert.Equal(t, a, b, "identical content should hash identically")
	assert.NotEqual(t, a, c, "price change should change the fingerprint")
	assert.Contains(t, a, "sha256:")
}

func ptr(v float64) *float64 {
	return &v
}
