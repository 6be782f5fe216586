package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSpotID(t *testing.T) {
	testCases := []struct {
		name      string
		raw       string
		expected  ParsedSpot
		expectErr bool
	}{
		{
			name:     "Canonical",
			raw:      "A01",
			expected: ParsedSpot{Row: "A", Number: 1},
		},
		{
			name:     "Last spot of a row",
			raw:      "F10",
			expected: ParsedSpot{Row: "F", Number: 10},
		},
		{
			name:     "Lower case and single digit",
			raw:      " c7 ",
			expected: ParsedSpot{Row: "C", Number: 7},
		},
		{
			name:     "Dash separator",
			raw:      "B-03",
			expected: ParsedSpot{Row: "B", Number: 3},
		},
		{
			name:      "Number zero",
			raw:       "A00",
			expectErr: true,
		},
		{
			name:      "Number above row size",
			raw:       "A11",
			expectErr: true,
		},
		{
			name:      "Two letters",
			raw:       "AB1",
			expectErr: true,
		},
		{
			name:      "Empty",
			raw:       "",
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := ParseSpotID(tc.raw)
			if tc.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, parsed)
		})
	}
}

func TestParsedSpot_ID(t *testing.T) {
	assert.Equal(t, "C07", ParsedSpot{Row: "C", Number: 7}.ID())
	assert.Equal(t, "F10", ParsedSpot{Row: "F", Number: 10}.ID())
}
